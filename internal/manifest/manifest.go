// Package manifest reads YAML documents declaring many resources at once.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/vultrsync/internal/config"
	"github.com/dokzlo13/vultrsync/internal/reconcile"
)

// ErrInvalidManifest is wrapped by every validation failure.
var ErrInvalidManifest = errors.New("invalid manifest")

// KindChecker reports whether a kind can be reconciled.
type KindChecker interface {
	Lookup(kind string) (*reconcile.Descriptor, error)
}

// Manifest is a parsed desired-state document.
type Manifest struct {
	Resources []Resource `yaml:"resources"`
}

// Resource is one declared resource.
type Resource struct {
	Kind       string         `yaml:"kind"`
	State      string         `yaml:"state"`
	Attributes map[string]any `yaml:"attributes"`
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse parses a manifest. ${VAR} and ${VAR:default} are expanded first.
func Parse(data []byte) (*Manifest, error) {
	expanded := config.ExpandEnv(string(data))

	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &m, nil
}

// Items validates every resource and converts them for the orchestrator.
func (m *Manifest) Items(kinds KindChecker) ([]reconcile.Item, error) {
	items := make([]reconcile.Item, 0, len(m.Resources))
	for i, r := range m.Resources {
		if r.Kind == "" {
			return nil, fmt.Errorf("%w: resources[%d]: kind is required", ErrInvalidManifest, i)
		}
		if _, err := kinds.Lookup(r.Kind); err != nil {
			return nil, fmt.Errorf("%w: resources[%d]: %v", ErrInvalidManifest, i, err)
		}
		disposition, err := reconcile.ParseDisposition(r.State)
		if err != nil {
			return nil, fmt.Errorf("%w: resources[%d]: %v", ErrInvalidManifest, i, err)
		}

		attrs := make(reconcile.Attributes, len(r.Attributes))
		for k, v := range r.Attributes {
			attrs[k] = v
		}
		items = append(items, reconcile.Item{
			Kind:    r.Kind,
			Desired: reconcile.Desired{Disposition: disposition, Attributes: attrs},
		})
	}
	return items, nil
}
