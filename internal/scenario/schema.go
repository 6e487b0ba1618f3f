// internal/scenario/schema.go
package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

const schemaID = "https://github.com/cmux-cli/uiverify/schemas/scenario.json"

// GenerateJSONSchema produces the JSON Schema (Draft 2020-12) for scenario files
// from the Scenario type.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Scenario{})
	s.ID = schemaID
	s.Title = "uiverify scenario"
	s.Description = "An ordered list of browser steps verifying one workflow"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
