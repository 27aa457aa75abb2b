package plan

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// Go Plan struct using invopop/jsonschema. The semantic validation phase
// compiles this schema against incoming plan documents.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Plan{})
	s.ID = "https://github.com/ormasoftchile/pert/schemas/plan-v0.json"
	s.Title = "Task Plan v0"
	s.Description = "Schema for task-plan JSON documents consumed by the pert engine"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
