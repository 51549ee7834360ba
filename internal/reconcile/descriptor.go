package reconcile

import (
	"context"
	"fmt"
	"net/http"
)

// Fetcher loads a single resource by remote ID (detail view).
type Fetcher interface {
	Get(ctx context.Context, id string) (*Snapshot, error)
}

// PostLocateFunc may replace a located snapshot, e.g. with its detail view.
type PostLocateFunc func(ctx context.Context, f Fetcher, s *Snapshot) (*Snapshot, error)

// Hooks are optional per-kind capabilities.
type Hooks struct {
	// PostLocate runs on every non-nil snapshot the Locator returns from Find.
	PostLocate PostLocateFunc

	// EncodeDesired maps desired attributes to their API representation
	// before diffing and sending.
	EncodeDesired func(Attributes) (Attributes, error)

	// ResultTransform maps API representations back for reporting. It is
	// applied to the reported resource and both sides of the diff.
	ResultTransform func(map[string]any) (map[string]any, error)
}

// Descriptor is the static description of one resource kind.
type Descriptor struct {
	Kind           string
	Namespace      string
	CollectionPath string
	SingularKey    string
	PluralKey      string // default SingularKey + "s"
	KeyField       string // default "name"
	IDField        string // default "id"
	UpdateMethod   string // default PATCH
	CreateFields   []string
	UpdateFields   []string
	Schema         Schema
	Hooks          Hooks
}

// Plural returns the collection payload key.
func (d *Descriptor) Plural() string {
	if d.PluralKey != "" {
		return d.PluralKey
	}
	return d.SingularKey + "s"
}

// Key returns the natural key field.
func (d *Descriptor) Key() string {
	if d.KeyField != "" {
		return d.KeyField
	}
	return "name"
}

// IDKey returns the remote identity field.
func (d *Descriptor) IDKey() string {
	if d.IDField != "" {
		return d.IDField
	}
	return "id"
}

// UpdateVerb returns the HTTP method used for updates.
func (d *Descriptor) UpdateVerb() string {
	if d.UpdateMethod != "" {
		return d.UpdateMethod
	}
	return http.MethodPatch
}

// ItemPath returns the path of one resource.
func (d *Descriptor) ItemPath(id string) string {
	return d.CollectionPath + "/" + escapePathSegment(id)
}

// Validate checks the descriptor's static invariants.
func (d *Descriptor) Validate() error {
	if d.Kind == "" || d.Namespace == "" || d.CollectionPath == "" || d.SingularKey == "" {
		return fmt.Errorf("%w: kind, namespace, collection path and singular key are required", ErrInvalidDescriptor)
	}
	if !d.Schema.Has(d.Key()) {
		return fmt.Errorf("%w: %s: key field %q not in schema", ErrInvalidDescriptor, d.Kind, d.Key())
	}
	for _, f := range d.CreateFields {
		if !d.Schema.Has(f) {
			return fmt.Errorf("%w: %s: create field %q not in schema", ErrInvalidDescriptor, d.Kind, f)
		}
	}
	for _, f := range d.UpdateFields {
		if !d.Schema.Has(f) {
			return fmt.Errorf("%w: %s: update field %q not in schema", ErrInvalidDescriptor, d.Kind, f)
		}
	}
	return nil
}

// Decode turns one raw API object into a Snapshot.
func (d *Descriptor) Decode(raw map[string]any) *Snapshot {
	if raw == nil {
		return nil
	}
	s := &Snapshot{
		Fields: make(map[string]any),
		Extra:  make(map[string]any),
	}
	for k, v := range raw {
		if k == d.Key() || k == d.IDKey() || d.Schema.Has(k) {
			s.Fields[k] = v
		} else {
			s.Extra[k] = v
		}
	}
	if id, ok := raw[d.IDKey()]; ok && id != nil {
		s.ID = fmt.Sprint(id)
	}
	return s
}

// RequireDetail returns a PostLocate hook that refetches the detail view
// when the list view lacks any of the given fields.
func RequireDetail(fields ...string) PostLocateFunc {
	return func(ctx context.Context, f Fetcher, s *Snapshot) (*Snapshot, error) {
		if s == nil || s.ID == "" {
			return s, nil
		}
		for _, field := range fields {
			if _, ok := s.Get(field); !ok {
				detail, err := f.Get(ctx, s.ID)
				if err != nil {
					return nil, err
				}
				if detail == nil {
					return s, nil
				}
				return detail, nil
			}
		}
		return s, nil
	}
}
