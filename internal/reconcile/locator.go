package reconcile

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
)

const (
	// maxPages bounds cursor pagination against a misbehaving API.
	maxPages = 1000
	perPage  = 500
)

// Locator finds remote resources of one kind. Every call hits the API;
// nothing is cached.
type Locator struct {
	desc *Descriptor
	api  Requester
}

// NewLocator creates a locator for desc.
func NewLocator(desc *Descriptor, api Requester) *Locator {
	return &Locator{desc: desc, api: api}
}

// Find returns the single resource whose key field equals keyValue, or nil.
// More than one match is an *AmbiguousMatchError.
func (l *Locator) Find(ctx context.Context, keyValue any) (*Snapshot, error) {
	items, err := l.list(ctx)
	if err != nil {
		return nil, err
	}

	keyField := l.desc.Key()
	var matches []map[string]any
	for _, item := range items {
		if v, ok := item[keyField]; ok && v != nil && valuesEqual(v, keyValue) {
			matches = append(matches, item)
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, fmt.Sprint(m[l.desc.IDKey()]))
		}
		return nil, &AmbiguousMatchError{Kind: l.desc.Kind, KeyField: keyField, Value: keyValue, IDs: ids}
	}

	snap := l.desc.Decode(matches[0])
	return l.complete(ctx, snap)
}

// complete runs the kind's PostLocate hook, if any.
func (l *Locator) complete(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	if snap == nil || l.desc.Hooks.PostLocate == nil {
		return snap, nil
	}
	return l.desc.Hooks.PostLocate(ctx, l, snap)
}

// Get fetches the detail view of one resource by remote ID, or nil.
func (l *Locator) Get(ctx context.Context, id string) (*Snapshot, error) {
	log.Debug().Str("kind", l.desc.Kind).Str("id", id).Msg("Fetching resource detail")

	data, err := l.api.Execute(ctx, http.MethodGet, l.desc.ItemPath(id), nil)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return l.desc.Decode(singular(data, l.desc.SingularKey)), nil
}

// List returns every resource of the kind in API order.
func (l *Locator) List(ctx context.Context) ([]*Snapshot, error) {
	items, err := l.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot, 0, len(items))
	for _, item := range items {
		out = append(out, l.desc.Decode(item))
	}
	return out, nil
}

func (l *Locator) list(ctx context.Context) ([]map[string]any, error) {
	var all []map[string]any
	query := url.Values{"per_page": {strconv.Itoa(perPage)}}
	path := l.desc.CollectionPath + "?" + query.Encode()
	seen := make(map[string]bool)

	for page := 0; page < maxPages; page++ {
		data, err := l.api.Execute(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return all, nil
		}

		items, err := pluralItems(data, l.desc.Plural())
		if err != nil {
			return nil, fmt.Errorf("GET %q: %w", path, err)
		}
		all = append(all, items...)

		next := nextCursor(data)
		if next == "" || seen[next] {
			return all, nil
		}
		seen[next] = true
		query.Set("cursor", next)
		path = l.desc.CollectionPath + "?" + query.Encode()
	}
	return all, nil
}

func pluralItems(data map[string]any, key string) ([]map[string]any, error) {
	raw, ok := data[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("payload key %q: expected list, got %T", key, raw)
	}
	items := make([]map[string]any, 0, len(list))
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("payload key %q: element %d: expected object, got %T", key, i, entry)
		}
		items = append(items, obj)
	}
	return items, nil
}

// nextCursor reads meta.links.next of a paginated Vultr response.
func nextCursor(data map[string]any) string {
	meta, _ := data["meta"].(map[string]any)
	links, _ := meta["links"].(map[string]any)
	next, _ := links["next"].(string)
	return next
}

// singular unwraps {"<key>": {...}}, or returns nil.
func singular(data map[string]any, key string) map[string]any {
	if obj, ok := data[key].(map[string]any); ok {
		return obj
	}
	return nil
}

func escapePathSegment(s string) string {
	return url.PathEscape(s)
}
