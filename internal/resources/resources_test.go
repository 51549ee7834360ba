package resources

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/vultrsync/internal/reconcile"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	assert.Equal(t, []string{
		"block_storage",
		"dns_domain",
		"firewall_group",
		"load_balancer",
		"ssh_key",
		"startup_script",
	}, r.Kinds())

	for _, kind := range r.Kinds() {
		t.Run(kind, func(t *testing.T) {
			d, err := r.Lookup(kind)
			require.NoError(t, err)
			assert.NoError(t, d.Validate())
			assert.Equal(t, kind, d.Kind)
		})
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	_, err := Default().Lookup("server")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistryRejects(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(SSHKey()))
	assert.Error(t, r.Register(SSHKey()), "duplicate kind")

	broken := SSHKey()
	broken.Kind = "broken"
	broken.CreateFields = append(broken.CreateFields, "nope")
	assert.ErrorIs(t, r.Register(broken), reconcile.ErrInvalidDescriptor)
}

func TestPayloadKeys(t *testing.T) {
	tests := []struct {
		desc     *reconcile.Descriptor
		plural   string
		key      string
		idKey    string
		itemPath string
		update   string
	}{
		{DNSDomain(), "domains", "domain", "domain", "/domains/example.com", http.MethodPut},
		{StartupScript(), "startup_scripts", "name", "id", "/startup-scripts/example.com", http.MethodPatch},
		{SSHKey(), "ssh_keys", "name", "id", "/ssh-keys/example.com", http.MethodPatch},
		{BlockStorage(), "blocks", "label", "id", "/blocks/example.com", http.MethodPatch},
		{LoadBalancer(), "load_balancers", "label", "id", "/load-balancers/example.com", http.MethodPatch},
		{FirewallGroup(), "firewall_groups", "description", "id", "/firewalls/example.com", http.MethodPut},
	}

	for _, tt := range tests {
		t.Run(tt.desc.Kind, func(t *testing.T) {
			assert.Equal(t, tt.plural, tt.desc.Plural())
			assert.Equal(t, tt.key, tt.desc.Key())
			assert.Equal(t, tt.idKey, tt.desc.IDKey())
			assert.Equal(t, tt.itemPath, tt.desc.ItemPath("example.com"))
			assert.Equal(t, tt.update, tt.desc.UpdateVerb())
		})
	}
}

func TestStartupScriptEncoding(t *testing.T) {
	attrs := reconcile.Attributes{"name": "boot", "script": "#!/bin/sh\necho hi\n"}

	encoded, err := encodeScript(attrs)
	require.NoError(t, err)
	assert.Equal(t, "IyEvYmluL3NoCmVjaG8gaGkK", encoded["script"])
	assert.Equal(t, "#!/bin/sh\necho hi\n", attrs["script"], "input must not be modified")

	decoded, err := decodeScript(map[string]any(encoded))
	require.NoError(t, err)
	assert.Equal(t, attrs["script"], decoded["script"])
	assert.Equal(t, "boot", decoded["name"])
}

func TestStartupScriptEncodingWithoutScript(t *testing.T) {
	attrs := reconcile.Attributes{"name": "boot"}
	out, err := encodeScript(attrs)
	require.NoError(t, err)
	assert.Equal(t, attrs, out)

	res, err := decodeScript(map[string]any{"name": "boot"})
	require.NoError(t, err)
	assert.NotContains(t, res, "script")
}

func TestStartupScriptDecodeKeepsNonBase64(t *testing.T) {
	res, err := decodeScript(map[string]any{"script": "not base64!"})
	require.NoError(t, err)
	assert.Equal(t, "not base64!", res["script"])
}

func TestStartupScriptRequiresScriptWhenPresent(t *testing.T) {
	d := StartupScript()
	attrs, err := d.Schema.Normalize(map[string]any{"name": "boot"})
	require.NoError(t, err)
	assert.Equal(t, "boot", attrs["type"])

	assert.ErrorIs(t, d.Schema.Validate(attrs, d.Key(), reconcile.Present), reconcile.ErrInvalidDesiredState)
	assert.NoError(t, d.Schema.Validate(attrs, d.Key(), reconcile.Absent))
}

func TestFlattenLoadBalancer(t *testing.T) {
	d := LoadBalancer()
	snap := d.Decode(map[string]any{
		"id":    "lb-1",
		"label": "web",
		"generic_info": map[string]any{
			"balancing_algorithm": "roundrobin",
			"ssl_redirect":        false,
			"sticky_sessions":     map[string]any{"cookie_name": ""},
		},
		"forwarding_rules": []any{
			map[string]any{"id": "r1", "frontend_protocol": "http", "frontend_port": float64(80)},
		},
	})

	out, err := d.Hooks.PostLocate(context.Background(), nil, snap)
	require.NoError(t, err)

	assert.Equal(t, "roundrobin", out.Fields["balancing_algorithm"])
	assert.Equal(t, false, out.Fields["ssl_redirect"])
	assert.NotContains(t, out.Fields, "proxy_protocol")
	assert.Equal(t, []any{
		map[string]any{"frontend_protocol": "http", "frontend_port": float64(80)},
	}, out.Fields["forwarding_rules"])

	// The located snapshot itself is untouched
	rules := snap.Fields["forwarding_rules"].([]any)
	assert.Contains(t, rules[0], "id")

	changed := reconcile.ChangedFields(reconcile.Attributes{
		"balancing_algorithm": "roundrobin",
		"forwarding_rules":    []any{map[string]any{"frontend_protocol": "http", "frontend_port": 80}},
	}, out)
	assert.Empty(t, changed)
}

func TestLoadBalancerHealthCheckSubset(t *testing.T) {
	d := LoadBalancer()
	snap := d.Decode(map[string]any{
		"id":    "lb-1",
		"label": "web",
		"health_check": map[string]any{
			"protocol":            "http",
			"port":                float64(80),
			"path":                "/",
			"check_interval":      float64(15),
			"response_timeout":    float64(5),
			"unhealthy_threshold": float64(5),
			"healthy_threshold":   float64(5),
		},
	})
	out, err := d.Hooks.PostLocate(context.Background(), nil, snap)
	require.NoError(t, err)

	attrs, err := d.Schema.Normalize(map[string]any{
		"label":        "web",
		"health_check": map[string]any{"protocol": "http", "port": 80},
	})
	require.NoError(t, err)
	assert.Empty(t, reconcile.ChangedFields(attrs.Pick(d.UpdateFields), out))

	attrs["health_check"] = map[string]any{"protocol": "tcp", "port": 80}
	assert.Equal(t, []string{"health_check"}, reconcile.ChangedFields(attrs.Pick(d.UpdateFields), out))
}

func TestSSHKeyTrimsKeyFileWhitespace(t *testing.T) {
	d := SSHKey()
	attrs := reconcile.Attributes{"name": "laptop", "ssh_key": "ssh-ed25519 AAAA me@host\n"}

	out, err := d.Hooks.EncodeDesired(attrs)
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519 AAAA me@host", out["ssh_key"])
	assert.Equal(t, "ssh-ed25519 AAAA me@host\n", attrs["ssh_key"], "input must not be modified")

	snap := d.Decode(map[string]any{"id": "k1", "name": "laptop", "ssh_key": "ssh-ed25519 AAAA me@host"})
	assert.Empty(t, reconcile.ChangedFields(out.Pick(d.UpdateFields), snap))
}
