// Package reconcile drives one remote resource toward a desired state:
// locate it by natural key, diff it, then create, update, delete or leave it.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// Requester performs one API call. A nil map with a nil error means the API
// answered "no content" (404/204).
type Requester interface {
	Execute(ctx context.Context, method, path string, body any) (map[string]any, error)
}

// Disposition is the target state of a resource.
type Disposition string

// Dispositions
const (
	Present Disposition = "present"
	Absent  Disposition = "absent"
)

// ParseDisposition parses a state name. Empty means present.
func ParseDisposition(s string) (Disposition, error) {
	switch Disposition(strings.ToLower(strings.TrimSpace(s))) {
	case "", Present:
		return Present, nil
	case Absent:
		return Absent, nil
	}
	return "", &ValidationError{Field: "state", Reason: fmt.Sprintf("must be one of present, absent; got %q", s)}
}

// Attributes are attribute values keyed by API field name.
// A nil value means "unset": it is never diffed and never sent.
type Attributes map[string]any

// Pick returns the set (non-nil) values of the named fields.
func (a Attributes) Pick(fields []string) Attributes {
	out := make(Attributes, len(fields))
	for _, f := range fields {
		if v, ok := a[f]; ok && v != nil {
			out[f] = v
		}
	}
	return out
}

// Desired is what the caller wants for one resource.
type Desired struct {
	Disposition Disposition
	Attributes  Attributes
}

// Snapshot is one remote resource as returned by the API.
// Fields holds what the kind's schema declares (plus key and id fields);
// Extra holds everything else untouched, so nothing the API adds is lost.
// A nil *Snapshot means the resource does not exist.
type Snapshot struct {
	ID     string
	Fields map[string]any
	Extra  map[string]any
}

// Get looks a field up in Fields, then Extra.
func (s *Snapshot) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	if v, ok := s.Fields[key]; ok {
		return v, true
	}
	v, ok := s.Extra[key]
	return v, ok
}

// Map flattens the snapshot into a fresh map. Nil snapshots give an empty map.
func (s *Snapshot) Map() map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	maps.Copy(out, s.Extra)
	maps.Copy(out, s.Fields)
	return out
}

// Diff is the before/after view reported for audit and dry-run preview.
type Diff struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
}

// APIEcho reports the API settings a run used.
type APIEcho struct {
	Timeout  int    `json:"api_timeout"`
	Retries  int    `json:"api_retries"`
	MaxDelay int    `json:"api_retry_max_delay"`
	Endpoint string `json:"api_endpoint"`
}

// Result is the outcome of one reconciliation run.
type Result struct {
	RunID     string
	Kind      string
	Namespace string
	Action    Action
	DryRun    bool
	Changed   bool
	Resource  map[string]any
	Diff      Diff
	API       APIEcho
}

// MarshalJSON renders {"changed", "<namespace>", "diff", "vultr_api"}.
func (r *Result) MarshalJSON() ([]byte, error) {
	resource := r.Resource
	if resource == nil {
		resource = map[string]any{}
	}
	return json.Marshal(map[string]any{
		"changed":   r.Changed,
		r.Namespace: resource,
		"diff":      normalizeDiff(r.Diff),
		"vultr_api": r.API,
	})
}

func normalizeDiff(d Diff) Diff {
	if d.Before == nil {
		d.Before = map[string]any{}
	}
	if d.After == nil {
		d.After = map[string]any{}
	}
	return d
}

// InfoResult lists every resource of one kind.
type InfoResult struct {
	Namespace string
	Items     []map[string]any
	API       APIEcho
}

// MarshalJSON renders {"changed": false, "<namespace>": [...], "vultr_api"}.
func (r *InfoResult) MarshalJSON() ([]byte, error) {
	items := r.Items
	if items == nil {
		items = []map[string]any{}
	}
	return json.Marshal(map[string]any{
		"changed":   false,
		r.Namespace: items,
		"vultr_api": r.API,
	})
}
