package resources

import (
	"maps"
	"strings"

	"github.com/dokzlo13/vultrsync/internal/reconcile"
)

// SSHKey describes /ssh-keys.
func SSHKey() *reconcile.Descriptor {
	return &reconcile.Descriptor{
		Kind:           "ssh_key",
		Namespace:      "vultr_ssh_key",
		CollectionPath: "/ssh-keys",
		SingularKey:    "ssh_key",
		CreateFields:   []string{"name", "ssh_key"},
		UpdateFields:   []string{"name", "ssh_key"},
		Schema: reconcile.Schema{
			{Name: "name", Type: reconcile.TypeString},
			{Name: "ssh_key", Type: reconcile.TypeString, RequiredIfPresent: true, Description: "Public key in authorized_keys format."},
		},
		Hooks: reconcile.Hooks{
			EncodeDesired: trimPublicKey,
		},
	}
}

// BlockStorage describes /blocks, matched by label.
func BlockStorage() *reconcile.Descriptor {
	return &reconcile.Descriptor{
		Kind:           "block_storage",
		Namespace:      "vultr_block_storage",
		CollectionPath: "/blocks",
		SingularKey:    "block",
		KeyField:       "label",
		CreateFields:   []string{"region", "size_gb", "label"},
		UpdateFields:   []string{"label", "size_gb"},
		Schema: reconcile.Schema{
			{Name: "label", Type: reconcile.TypeString, Aliases: []string{"name", "description"}},
			{Name: "region", Type: reconcile.TypeString, RequiredIfPresent: true, Description: "Region ID, e.g. ams."},
			{Name: "size_gb", Type: reconcile.TypeInt, Aliases: []string{"size"}, RequiredIfPresent: true},
		},
	}
}

// trimPublicKey drops the surrounding whitespace key files end with; the API
// stores keys without it.
func trimPublicKey(attrs reconcile.Attributes) (reconcile.Attributes, error) {
	key, ok := attrs["ssh_key"].(string)
	if !ok {
		return attrs, nil
	}
	out := maps.Clone(attrs)
	out["ssh_key"] = strings.TrimSpace(key)
	return out, nil
}
