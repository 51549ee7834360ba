package reconcile

import (
	"encoding/json"
	"maps"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// ChangedFields returns, sorted, the desired keys whose value is set and
// either missing (or null) in current or different from it.
// Unset desired values never count: omitting an attribute never clears it.
// Object values only compare the keys the desired object sets.
func ChangedFields(desired Attributes, current *Snapshot) []string {
	var changed []string
	for key, want := range desired {
		if want == nil {
			continue
		}
		have, ok := current.Get(key)
		if !ok || have == nil || !covers(want, have) {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

// IsChanged reports whether reconciling desired against current needs an update.
func IsChanged(desired Attributes, current *Snapshot) bool {
	return len(ChangedFields(desired, current)) > 0
}

// CreateDiff is {} -> the create payload.
func CreateDiff(payload Attributes) Diff {
	after := make(map[string]any, len(payload))
	maps.Copy(after, payload)
	return Diff{Before: map[string]any{}, After: after}
}

// UpdateDiff is current -> current overlaid with changes.
func UpdateDiff(current *Snapshot, changes Attributes) Diff {
	after := current.Map()
	maps.Copy(after, changes)
	return Diff{Before: current.Map(), After: after}
}

// DeleteDiff is current -> {}.
func DeleteDiff(current *Snapshot) Diff {
	return Diff{Before: current.Map(), After: map[string]any{}}
}

// NoopDiff reports nothing on either side.
func NoopDiff() Diff {
	return Diff{Before: map[string]any{}, After: map[string]any{}}
}

var equateEmpty = cmpopts.EquateEmpty()

// valuesEqual compares values in their JSON form, so an int from YAML equals
// the float64 the API decoded, and a nil list equals an empty one.
func valuesEqual(a, b any) bool {
	return cmp.Equal(jsonForm(a), jsonForm(b), equateEmpty)
}

// covers is valuesEqual, except that a desired object matches any current
// object holding the same values for the desired keys.
func covers(want, have any) bool {
	wantObj, ok := jsonForm(want).(map[string]any)
	if !ok {
		return valuesEqual(want, have)
	}
	haveObj, ok := jsonForm(have).(map[string]any)
	if !ok {
		return false
	}
	for key, w := range wantObj {
		if w == nil {
			continue
		}
		h, ok := haveObj[key]
		if !ok || !covers(w, h) {
			return false
		}
	}
	return true
}

func jsonForm(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
