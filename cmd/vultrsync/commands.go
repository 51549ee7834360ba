package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vultrsync/internal/app"
	"github.com/dokzlo13/vultrsync/internal/ledger"
	"github.com/dokzlo13/vultrsync/internal/manifest"
	"github.com/dokzlo13/vultrsync/internal/reconcile"
)

// errSomeFailed is returned after printing a report with failed items.
var errSomeFailed = errors.New("one or more resources failed to reconcile")

// ReconcileCmd reconciles one resource from flags.
type ReconcileCmd struct {
	Kind  string   `arg:"" help:"Resource kind (see 'vultrsync kinds')."`
	State string   `help:"Target state: present or absent." default:"present" enum:"present,absent"`
	Set   []string `help:"Attribute as key=value, or key=@file to read the value from a file." short:"s" sep:"none"`
}

func (c *ReconcileCmd) Run(g *Globals) error {
	attrs, err := parseSets(c.Set)
	if err != nil {
		return err
	}
	disposition, err := reconcile.ParseDisposition(c.State)
	if err != nil {
		return err
	}

	a, err := g.open(true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Reconcile(app.SignalContext(), c.Kind, reconcile.Desired{
		Disposition: disposition,
		Attributes:  attrs,
	})
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, result)
}

// ApplyCmd reconciles a manifest.
type ApplyCmd struct {
	File     string `help:"Manifest file." short:"f" required:"" type:"existingfile"`
	Parallel int    `help:"Resources reconciled concurrently (default from config)."`
}

func (c *ApplyCmd) Run(g *Globals) error {
	m, err := manifest.Load(c.File)
	if err != nil {
		return err
	}

	cfg, err := g.load()
	if err != nil {
		return err
	}
	if c.Parallel > 0 {
		cfg.Apply.Parallel = c.Parallel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := app.New(cfg, g.dryRun())
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := m.Items(a)
	if err != nil {
		return err
	}

	outcomes, err := a.Apply(app.SignalContext(), items)
	if err != nil {
		return err
	}

	if err := writeJSON(os.Stdout, newApplyReport(outcomes)); err != nil {
		return err
	}
	if failed := reconcile.Failed(outcomes); failed > 0 {
		log.Error().Int("failed", failed).Int("total", len(outcomes)).Msg("Apply finished with failures")
		return errSomeFailed
	}
	return nil
}

type applyReport struct {
	Changed bool              `json:"changed"`
	Failed  int               `json:"failed"`
	Results []json.RawMessage `json:"results"`
}

func newApplyReport(outcomes []reconcile.Outcome) applyReport {
	report := applyReport{Results: make([]json.RawMessage, 0, len(outcomes))}
	for _, o := range outcomes {
		var entry any
		if o.Err != nil {
			report.Failed++
			entry = map[string]any{"kind": o.Item.Kind, "failed": true, "msg": o.Err.Error()}
		} else {
			report.Changed = report.Changed || o.Result.Changed
			entry = o.Result
		}
		data, err := json.Marshal(entry)
		if err != nil {
			data, _ = json.Marshal(map[string]any{"kind": o.Item.Kind, "failed": true, "msg": err.Error()})
		}
		report.Results = append(report.Results, data)
	}
	return report
}

// InfoCmd lists resources of a kind.
type InfoCmd struct {
	Kind string `arg:"" help:"Resource kind."`
}

func (c *InfoCmd) Run(g *Globals) error {
	a, err := g.open(true)
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.Info(app.SignalContext(), c.Kind)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, info)
}

// KindsCmd lists supported kinds.
type KindsCmd struct{}

type kindReport struct {
	Kind         string        `json:"kind"`
	Namespace    string        `json:"namespace"`
	Path         string        `json:"path"`
	KeyField     string        `json:"key_field"`
	CreateFields []string      `json:"create_fields"`
	UpdateFields []string      `json:"update_fields"`
	Fields       []fieldReport `json:"fields"`
}

type fieldReport struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	Aliases           []string `json:"aliases,omitempty"`
	Choices           []string `json:"choices,omitempty"`
	Default           any      `json:"default,omitempty"`
	RequiredIfPresent bool     `json:"required_if_present,omitempty"`
	Description       string   `json:"description,omitempty"`
}

func (c *KindsCmd) Run(g *Globals) error {
	a, err := g.open(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var reports []kindReport
	for _, d := range a.Kinds() {
		r := kindReport{
			Kind:         d.Kind,
			Namespace:    d.Namespace,
			Path:         d.CollectionPath,
			KeyField:     d.Key(),
			CreateFields: d.CreateFields,
			UpdateFields: d.UpdateFields,
		}
		for _, f := range d.Schema {
			r.Fields = append(r.Fields, fieldReport{
				Name:              f.Name,
				Type:              f.Type.String(),
				Aliases:           f.Aliases,
				Choices:           f.Choices,
				Default:           f.Default,
				RequiredIfPresent: f.RequiredIfPresent,
				Description:       f.Description,
			})
		}
		reports = append(reports, r)
	}
	return writeJSON(os.Stdout, reports)
}

// HistoryCmd prints recent ledger entries, optionally of one resource.
type HistoryCmd struct {
	Limit int    `help:"Number of entries." default:"20"`
	Kind  string `help:"Only entries of this kind (requires --key)."`
	Key   string `help:"Natural key of the resource (requires --kind)."`
}

func (c *HistoryCmd) Validate() error {
	if (c.Kind == "") != (c.Key == "") {
		return errors.New("--kind and --key must be given together")
	}
	return nil
}

func (c *HistoryCmd) Run(g *Globals) error {
	a, err := g.open(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var entries []*ledger.Entry
	if c.Kind != "" {
		entries, err = a.ResourceHistory(c.Kind, c.Key, c.Limit)
	} else {
		entries, err = a.History(c.Limit)
	}
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, entries)
}

// parseSets turns key=value flags into raw attributes. key=@path reads the
// value from a file, byte for byte.
func parseSets(sets []string) (map[string]any, error) {
	attrs := make(map[string]any, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--set %q: expected key=value", s)
		}
		if _, dup := attrs[key]; dup {
			return nil, fmt.Errorf("--set %q: %s given twice", s, key)
		}

		if path, fromFile := strings.CutPrefix(value, "@"); fromFile {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("--set %s: %w", key, err)
			}
			value = string(data)
		}
		attrs[key] = value
	}
	return attrs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
