package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// apiCall is one request seen by fakeAPI.
type apiCall struct {
	Method string
	Path   string
	Body   map[string]any
}

func (c apiCall) String() string {
	return c.Method + " " + c.Path
}

// fakeAPI is an in-memory Vultr-style collection endpoint.
type fakeAPI struct {
	mu sync.Mutex

	desc      *Descriptor
	items     []map[string]any
	calls     []apiCall
	listOmits []string // fields the list view leaves out
	pageSize  int      // 0 = no pagination
	nextID    int

	// failures maps "METHOD path" to the error returned for it
	failures map[string]error
}

func newFakeAPI(desc *Descriptor, items ...map[string]any) *fakeAPI {
	return &fakeAPI{desc: desc, items: items, failures: map[string]error{}}
}

func (f *fakeAPI) Execute(_ context.Context, method, path string, body any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := apiCall{Method: method, Path: path}
	if body != nil {
		call.Body = toJSONMap(body)
	}
	f.calls = append(f.calls, call)

	if err, ok := f.failures[call.String()]; ok {
		return nil, err
	}

	base, query, _ := strings.Cut(path, "?")
	idField := f.desc.IDKey()

	if base == f.desc.CollectionPath {
		switch method {
		case http.MethodGet:
			return f.listPage(query), nil
		case http.MethodPost:
			f.nextID++
			item := maps.Clone(call.Body)
			if _, ok := item[idField]; !ok {
				item[idField] = fmt.Sprintf("id-%d", f.nextID)
			}
			f.items = append(f.items, item)
			return map[string]any{f.desc.SingularKey: maps.Clone(item)}, nil
		}
		return nil, fmt.Errorf("unexpected %s", call)
	}

	id := strings.TrimPrefix(base, f.desc.CollectionPath+"/")
	idx := f.indexOf(id)
	switch method {
	case http.MethodGet:
		if idx < 0 {
			return nil, nil
		}
		return map[string]any{f.desc.SingularKey: maps.Clone(f.items[idx])}, nil
	case http.MethodPatch, http.MethodPut:
		if idx >= 0 {
			maps.Copy(f.items[idx], call.Body)
		}
		return nil, nil
	case http.MethodDelete:
		if idx >= 0 {
			f.items = append(f.items[:idx], f.items[idx+1:]...)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected %s", call)
}

func (f *fakeAPI) listPage(query string) map[string]any {
	start := 0
	if values, err := url.ParseQuery(query); err == nil && values.Get("cursor") != "" {
		start, _ = strconv.Atoi(values.Get("cursor"))
	}
	end := len(f.items)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	list := make([]any, 0, end-start)
	for _, item := range f.items[start:end] {
		view := maps.Clone(item)
		for _, omit := range f.listOmits {
			delete(view, omit)
		}
		list = append(list, view)
	}

	out := map[string]any{f.desc.Plural(): list}
	if end < len(f.items) {
		out["meta"] = map[string]any{
			"total": float64(len(f.items)),
			"links": map[string]any{"next": strconv.Itoa(end), "prev": ""},
		}
	}
	return out
}

func (f *fakeAPI) indexOf(id string) int {
	for i, item := range f.items {
		if fmt.Sprint(item[f.desc.IDKey()]) == id {
			return i
		}
	}
	return -1
}

func (f *fakeAPI) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

func (f *fakeAPI) mutatingCalls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method != http.MethodGet {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) resetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func toJSONMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return out
}

// testDescriptor is a small generic kind used across tests.
func testDescriptor() *Descriptor {
	return &Descriptor{
		Kind:           "thing",
		Namespace:      "vultr_thing",
		CollectionPath: "/things",
		SingularKey:    "thing",
		CreateFields:   []string{"name", "script", "size"},
		UpdateFields:   []string{"name", "script", "size"},
		Schema: Schema{
			{Name: "name", Type: TypeString, Aliases: []string{"label"}},
			{Name: "script", Type: TypeString},
			{Name: "size", Type: TypeInt},
			{Name: "tags", Type: TypeStringList},
		},
	}
}
