package resources

import (
	"net/http"

	"github.com/dokzlo13/vultrsync/internal/reconcile"
)

// DNSDomain describes /domains. Domains are identified by their name, and
// only DNSSEC can change after creation.
func DNSDomain() *reconcile.Descriptor {
	return &reconcile.Descriptor{
		Kind:           "dns_domain",
		Namespace:      "vultr_dns_domain",
		CollectionPath: "/domains",
		SingularKey:    "domain",
		KeyField:       "domain",
		IDField:        "domain",
		UpdateMethod:   http.MethodPut,
		CreateFields:   []string{"domain", "ip", "dns_sec"},
		UpdateFields:   []string{"dns_sec"},
		Schema: reconcile.Schema{
			{Name: "domain", Type: reconcile.TypeString, Aliases: []string{"name"}, Description: "Domain name."},
			{Name: "ip", Type: reconcile.TypeString, Aliases: []string{"server_ip"}, Description: "Default IP for the A records."},
			{Name: "dns_sec", Type: reconcile.TypeString, Choices: []string{"enabled", "disabled"}, Description: "DNSSEC state."},
		},
	}
}
