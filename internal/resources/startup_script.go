package resources

import (
	"encoding/base64"
	"maps"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/vultrsync/internal/reconcile"
)

// StartupScript describes /startup-scripts.
//
// The API stores script bodies base64-encoded and leaves them out of the
// list view, so located scripts are refetched by ID.
func StartupScript() *reconcile.Descriptor {
	return &reconcile.Descriptor{
		Kind:           "startup_script",
		Namespace:      "vultr_startup_script",
		CollectionPath: "/startup-scripts",
		SingularKey:    "startup_script",
		CreateFields:   []string{"name", "type", "script"},
		UpdateFields:   []string{"name", "script"},
		Schema: reconcile.Schema{
			{Name: "name", Type: reconcile.TypeString, Description: "Script name."},
			{Name: "script", Type: reconcile.TypeString, RequiredIfPresent: true, Description: "Script body, plain text."},
			{Name: "type", Type: reconcile.TypeString, Aliases: []string{"script_type"}, Choices: []string{"boot", "pxe"}, Default: "boot"},
		},
		Hooks: reconcile.Hooks{
			PostLocate:      reconcile.RequireDetail("script"),
			EncodeDesired:   encodeScript,
			ResultTransform: decodeScript,
		},
	}
}

func encodeScript(attrs reconcile.Attributes) (reconcile.Attributes, error) {
	s, ok := attrs["script"].(string)
	if !ok {
		return attrs, nil
	}
	out := maps.Clone(attrs)
	out["script"] = base64.StdEncoding.EncodeToString([]byte(s))
	return out, nil
}

func decodeScript(resource map[string]any) (map[string]any, error) {
	s, ok := resource["script"].(string)
	if !ok {
		return resource, nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Leave it as the API sent it
		log.Debug().Err(err).Msg("Startup script body is not base64")
		return resource, nil
	}
	out := maps.Clone(resource)
	out["script"] = string(raw)
	return out, nil
}
