package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func present(attrs Attributes) Desired {
	return Desired{Disposition: Present, Attributes: attrs}
}

func absent(attrs Attributes) Desired {
	return Desired{Disposition: Absent, Attributes: attrs}
}

func TestReconcileCreate(t *testing.T) {
	api := newFakeAPI(testDescriptor())
	r := New(testDescriptor(), api, WithRunID("run-1"))

	result, err := r.Reconcile(context.Background(), present(Attributes{"name": "web"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"GET /things?per_page=500", "POST /things"}, api.callLog())
	assert.Equal(t, map[string]any{"name": "web"}, api.calls[1].Body)

	assert.True(t, result.Changed)
	assert.Equal(t, ActionCreate, result.Action)
	assert.Equal(t, "run-1", result.RunID)
	assert.Empty(t, result.Diff.Before)
	assert.Equal(t, map[string]any{"name": "web"}, result.Diff.After)
	assert.Equal(t, "id-1", result.Resource["id"])
	assert.Equal(t, StateDone, r.State())
}

func TestReconcileCreateWithoutBodyRelocates(t *testing.T) {
	desc := testDescriptor()
	inner := newFakeAPI(desc)
	// POST answers with no content; the resource shows up in the next listing
	api := requesterFunc(func(ctx context.Context, method, path string, body any) (map[string]any, error) {
		data, err := inner.Execute(ctx, method, path, body)
		if method == http.MethodPost {
			return nil, err
		}
		return data, err
	})

	result, err := New(desc, api).Reconcile(context.Background(), present(Attributes{"name": "web"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /things?per_page=500", "POST /things", "GET /things?per_page=500"}, inner.callLog())
	assert.Equal(t, "web", result.Resource["name"])
}

func TestReconcileUpdate(t *testing.T) {
	api := newFakeAPI(testDescriptor(), map[string]any{"id": "1", "name": "web", "script": "Y"})
	r := New(testDescriptor(), api)

	result, err := r.Reconcile(context.Background(), present(Attributes{"name": "web", "script": "X"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"GET /things?per_page=500", "PATCH /things/1", "GET /things?per_page=500"}, api.callLog())
	assert.Equal(t, map[string]any{"script": "X"}, api.calls[1].Body)

	assert.True(t, result.Changed)
	assert.Equal(t, ActionUpdate, result.Action)
	assert.Equal(t, "Y", result.Diff.Before["script"])
	assert.Equal(t, "X", result.Diff.After["script"])
	assert.Equal(t, "X", result.Resource["script"])
}

func TestReconcileUpdateWithPut(t *testing.T) {
	desc := testDescriptor()
	desc.UpdateMethod = http.MethodPut
	api := newFakeAPI(desc, map[string]any{"id": "1", "name": "web", "size": float64(1)})

	_, err := New(desc, api).Reconcile(context.Background(), present(Attributes{"name": "web", "size": 2}))
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /things?per_page=500", "PUT /things/1", "GET /things?per_page=500"}, api.callLog())
	assert.Equal(t, map[string]any{"size": float64(2)}, api.calls[1].Body)
}

func TestReconcileUpdateVanished(t *testing.T) {
	desc := testDescriptor()
	inner := newFakeAPI(desc, map[string]any{"id": "1", "name": "web", "script": "Y"})
	api := requesterFunc(func(ctx context.Context, method, path string, body any) (map[string]any, error) {
		data, err := inner.Execute(ctx, method, path, body)
		if method == http.MethodPatch {
			inner.items = nil
		}
		return data, err
	})

	result, err := New(desc, api).Reconcile(context.Background(), present(Attributes{"name": "web", "script": "X"}))
	require.NoError(t, err)
	assert.Equal(t, result.Diff.After, result.Resource)
}

func TestReconcileDelete(t *testing.T) {
	api := newFakeAPI(testDescriptor(), map[string]any{"id": "9", "name": "web"})

	result, err := New(testDescriptor(), api).Reconcile(context.Background(), absent(Attributes{"name": "web"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"GET /things?per_page=500", "DELETE /things/9"}, api.callLog())
	assert.True(t, result.Changed)
	assert.Equal(t, map[string]any{"id": "9", "name": "web"}, result.Diff.Before)
	assert.Empty(t, result.Diff.After)
	assert.Equal(t, "9", result.Resource["id"])
	assert.Empty(t, api.items)
}

func TestReconcileAbsentOnAbsent(t *testing.T) {
	api := newFakeAPI(testDescriptor(), map[string]any{"id": "1", "name": "other"})

	result, err := New(testDescriptor(), api).Reconcile(context.Background(), absent(Attributes{"name": "web"}))
	require.NoError(t, err)

	assert.Empty(t, api.mutatingCalls())
	assert.False(t, result.Changed)
	assert.Equal(t, ActionNone, result.Action)
	assert.Empty(t, result.Resource)
	assert.Empty(t, result.Diff.Before)
	assert.Empty(t, result.Diff.After)
}

func TestReconcileIdempotent(t *testing.T) {
	api := newFakeAPI(testDescriptor())
	desired := present(Attributes{"name": "web", "script": "echo", "size": 3})

	first, err := New(testDescriptor(), api).Reconcile(context.Background(), desired)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	api.resetCalls()
	second, err := New(testDescriptor(), api).Reconcile(context.Background(), desired)
	require.NoError(t, err)

	assert.False(t, second.Changed)
	assert.Empty(t, api.mutatingCalls())
	if diff := cmp.Diff(first.Resource, second.Resource); diff != "" {
		t.Errorf("resource changed between runs (-first +second):\n%s", diff)
	}
}

func TestReconcileOmittedAttributeNeverClears(t *testing.T) {
	api := newFakeAPI(testDescriptor(), map[string]any{"id": "1", "name": "web", "script": "keep"})

	result, err := New(testDescriptor(), api).Reconcile(context.Background(), present(Attributes{"name": "web"}))
	require.NoError(t, err)

	assert.False(t, result.Changed)
	assert.Empty(t, api.mutatingCalls())
	assert.Equal(t, "keep", result.Resource["script"])
	assert.Equal(t, NoopDiff(), result.Diff)
}

func TestReconcileDryRunMatchesRealRun(t *testing.T) {
	seed := func() []map[string]any {
		return []map[string]any{
			{"id": "1", "name": "upd", "script": "old"},
			{"id": "2", "name": "del"},
		}
	}
	scenarios := []struct {
		name    string
		desired Desired
	}{
		{"create", present(Attributes{"name": "new", "script": "s"})},
		{"update", present(Attributes{"name": "upd", "script": "new"})},
		{"delete", absent(Attributes{"name": "del"})},
		{"noop", present(Attributes{"name": "upd"})},
		{"absent", absent(Attributes{"name": "ghost"})},
	}

	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			dryAPI := newFakeAPI(testDescriptor(), seed()...)
			dry, err := New(testDescriptor(), dryAPI, WithDryRun(true)).Reconcile(context.Background(), sc.desired)
			require.NoError(t, err)
			assert.Empty(t, dryAPI.mutatingCalls())
			assert.True(t, dry.DryRun)

			liveAPI := newFakeAPI(testDescriptor(), seed()...)
			live, err := New(testDescriptor(), liveAPI).Reconcile(context.Background(), sc.desired)
			require.NoError(t, err)

			assert.Equal(t, live.Changed, dry.Changed)
			assert.Equal(t, live.Action, dry.Action)
			if diff := cmp.Diff(toJSONMap(live.Diff), toJSONMap(dry.Diff)); diff != "" {
				t.Errorf("diff differs (-live +dry):\n%s", diff)
			}
		})
	}
}

func TestReconcileDryRunCreateReportsEmptyResource(t *testing.T) {
	api := newFakeAPI(testDescriptor())
	result, err := New(testDescriptor(), api, WithDryRun(true)).Reconcile(context.Background(), present(Attributes{"name": "web"}))
	require.NoError(t, err)
	assert.Empty(t, result.Resource)
	assert.Equal(t, []string{"GET /things?per_page=500"}, api.callLog())
}

func TestReconcileValidationBeforeNetwork(t *testing.T) {
	tests := []struct {
		name    string
		desired Desired
	}{
		{"missing_key", present(Attributes{"script": "x"})},
		{"unknown_attribute", present(Attributes{"name": "web", "colour": "red"})},
		{"bad_type", present(Attributes{"name": "web", "size": "huge"})},
		{"bad_disposition", Desired{Disposition: "gone", Attributes: Attributes{"name": "web"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(testDescriptor())
			_, err := New(testDescriptor(), api).Reconcile(context.Background(), tt.desired)
			assert.ErrorIs(t, err, ErrInvalidDesiredState)
			assert.Empty(t, api.callLog())
		})
	}
}

func TestReconcileAmbiguousMutatesNothing(t *testing.T) {
	api := newFakeAPI(testDescriptor(),
		map[string]any{"id": "1", "name": "web"},
		map[string]any{"id": "2", "name": "web"},
	)
	_, err := New(testDescriptor(), api).Reconcile(context.Background(), absent(Attributes{"name": "web"}))
	assert.ErrorIs(t, err, ErrAmbiguousMatch)
	assert.Empty(t, api.mutatingCalls())
}

func TestReconcileAPIFailurePropagates(t *testing.T) {
	api := newFakeAPI(testDescriptor(), map[string]any{"id": "1", "name": "web", "script": "Y"})
	apiErr := errors.New("status 500")
	api.failures["PATCH /things/1"] = apiErr

	r := New(testDescriptor(), api)
	result, err := r.Reconcile(context.Background(), present(Attributes{"name": "web", "script": "X"}))
	assert.ErrorIs(t, err, apiErr)
	assert.Nil(t, result)
	assert.Equal(t, StateUpdating, r.State())
}

func TestReconcileHooks(t *testing.T) {
	desc := testDescriptor()
	desc.Hooks.EncodeDesired = func(a Attributes) (Attributes, error) {
		out := maps.Clone(a)
		if s, ok := out["script"].(string); ok {
			out["script"] = "enc:" + s
		}
		return out, nil
	}
	desc.Hooks.ResultTransform = func(m map[string]any) (map[string]any, error) {
		out := maps.Clone(m)
		if s, ok := out["script"].(string); ok && len(s) > 4 {
			out["script"] = s[4:]
		}
		return out, nil
	}
	api := newFakeAPI(desc, map[string]any{"id": "1", "name": "web", "script": "enc:old"})

	result, err := New(desc, api).Reconcile(context.Background(), present(Attributes{"name": "web", "script": "new"}))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"script": "enc:new"}, api.calls[1].Body)
	assert.Equal(t, "old", result.Diff.Before["script"])
	assert.Equal(t, "new", result.Diff.After["script"])
	assert.Equal(t, "new", result.Resource["script"])

	api.resetCalls()
	again, err := New(desc, api).Reconcile(context.Background(), present(Attributes{"name": "web", "script": "new"}))
	require.NoError(t, err)
	assert.False(t, again.Changed)
}

func TestResultJSON(t *testing.T) {
	api := newFakeAPI(testDescriptor(), map[string]any{"id": "1", "name": "web"})
	echo := APIEcho{Timeout: 60, Retries: 5, MaxDelay: 12, Endpoint: "https://api.vultr.com/v2"}

	result, err := New(testDescriptor(), api, WithAPIEcho(echo)).Reconcile(context.Background(), present(Attributes{"name": "web"}))
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"changed": false,
		"vultr_thing": {"id": "1", "name": "web"},
		"diff": {"before": {}, "after": {}},
		"vultr_api": {
			"api_timeout": 60,
			"api_retries": 5,
			"api_retry_max_delay": 12,
			"api_endpoint": "https://api.vultr.com/v2"
		}
	}`, string(data))
}
