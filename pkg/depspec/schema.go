// SPDX-License-Identifier: MPL-2.0

package depspec

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Declaration documents the keys a dependency spec may carry. It is used only
// to publish a JSON schema; specs themselves stay map-shaped.
type Declaration struct {
	Coordinates

	Ext              string `json:"ext,omitempty" jsonschema:"description=Artifact extension"`
	Type             string `json:"type,omitempty" jsonschema:"description=Artifact type"`
	Transitive       *bool  `json:"transitive,omitempty" jsonschema:"description=Also fetch the artifact's own dependencies,default=true"`
	Changing         *bool  `json:"changing,omitempty" jsonschema:"description=Re-check the repository even when cached"`
	Force            *bool  `json:"force,omitempty" jsonschema:"description=Fetch again even when cached"`
	AutoDownload     *bool  `json:"autoDownload,omitempty" jsonschema:"description=Allow network access; false means cache only"`
	DisableChecksums *bool  `json:"disableChecksums,omitempty" jsonschema:"description=Skip lock file checksum verification"`
}

// JSONSchema renders the schema of Declaration, synonyms listed in each
// canonical property's description.
func JSONSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&Declaration{})
	schema.Title = "grab dependency"

	if schema.Properties != nil {
		for canonical := range synonymGroups {
			prop, ok := schema.Properties.Get(canonical)
			if !ok {
				continue
			}
			prop.Description = fmt.Sprintf("%s (synonyms: %v)", prop.Description, Synonyms(canonical)[1:])
		}
	}

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}
