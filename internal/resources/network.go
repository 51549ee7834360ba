package resources

import (
	"context"
	"maps"
	"net/http"

	"github.com/dokzlo13/vultrsync/internal/reconcile"
)

// LoadBalancer describes /load-balancers, matched by label.
func LoadBalancer() *reconcile.Descriptor {
	return &reconcile.Descriptor{
		Kind:           "load_balancer",
		Namespace:      "vultr_load_balancer",
		CollectionPath: "/load-balancers",
		SingularKey:    "load_balancer",
		KeyField:       "label",
		CreateFields: []string{
			"region", "label", "balancing_algorithm", "ssl_redirect",
			"proxy_protocol", "health_check", "forwarding_rules",
		},
		UpdateFields: []string{
			"label", "balancing_algorithm", "ssl_redirect",
			"proxy_protocol", "health_check", "forwarding_rules",
		},
		Schema: reconcile.Schema{
			{Name: "label", Type: reconcile.TypeString, Aliases: []string{"name"}},
			{Name: "region", Type: reconcile.TypeString, RequiredIfPresent: true},
			{Name: "balancing_algorithm", Type: reconcile.TypeString, Choices: []string{"roundrobin", "leastconn"}},
			{Name: "ssl_redirect", Type: reconcile.TypeBool, Aliases: []string{"config_ssl_redirect"}},
			{Name: "proxy_protocol", Type: reconcile.TypeBool},
			{Name: "health_check", Type: reconcile.TypeObject},
			{Name: "forwarding_rules", Type: reconcile.TypeObjectList},
		},
		Hooks: reconcile.Hooks{
			PostLocate: flattenLoadBalancer,
		},
	}
}

// generic_info fields the API nests but accepts flat on create and update.
var lbGenericInfo = []string{"balancing_algorithm", "ssl_redirect", "proxy_protocol"}

// flattenLoadBalancer lifts generic_info settings to the top level and drops
// the server-assigned forwarding rule IDs, so the snapshot compares against
// the shape that is sent.
func flattenLoadBalancer(_ context.Context, _ reconcile.Fetcher, s *reconcile.Snapshot) (*reconcile.Snapshot, error) {
	out := &reconcile.Snapshot{
		ID:     s.ID,
		Fields: maps.Clone(s.Fields),
		Extra:  maps.Clone(s.Extra),
	}

	if info, ok := s.Extra["generic_info"].(map[string]any); ok {
		for _, key := range lbGenericInfo {
			if v, ok := info[key]; ok {
				if _, set := out.Fields[key]; !set {
					out.Fields[key] = v
				}
			}
		}
	}

	if rules, ok := out.Fields["forwarding_rules"].([]any); ok {
		stripped := make([]any, len(rules))
		for i, r := range rules {
			rule, ok := r.(map[string]any)
			if !ok {
				stripped[i] = r
				continue
			}
			rule = maps.Clone(rule)
			delete(rule, "id")
			stripped[i] = rule
		}
		out.Fields["forwarding_rules"] = stripped
	}

	return out, nil
}

// FirewallGroup describes /firewalls. Groups have no name, so the
// description is the natural key.
func FirewallGroup() *reconcile.Descriptor {
	return &reconcile.Descriptor{
		Kind:           "firewall_group",
		Namespace:      "vultr_firewall_group",
		CollectionPath: "/firewalls",
		SingularKey:    "firewall_group",
		KeyField:       "description",
		UpdateMethod:   http.MethodPut,
		CreateFields:   []string{"description"},
		UpdateFields:   []string{"description"},
		Schema: reconcile.Schema{
			{Name: "description", Type: reconcile.TypeString, Aliases: []string{"name"}},
		},
	}
}
