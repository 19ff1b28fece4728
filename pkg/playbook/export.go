package playbook

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/ormasoftchile/irflow/pkg/incident"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// Playbook Go types.
func GenerateJSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{Mapper: mapType}
	s := r.Reflect(&Playbook{})
	s.ID = "https://github.com/ormasoftchile/irflow/schemas/playbook-v1.json"
	s.Title = "Incident Response Playbook (irflow/v1)"
	s.Description = "Schema for irflow/v1 playbook YAML documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal playbook schema: %w", err)
	}
	return data, nil
}

var (
	phaseType  = reflect.TypeOf(incident.Phase(0))
	targetType = reflect.TypeOf(Target{})
)

func mapType(t reflect.Type) *jsonschema.Schema {
	switch t {
	case phaseType:
		names := incident.PhaseNames()
		enum := make([]any, len(names))
		for i, n := range names {
			enum[i] = n
		}
		return &jsonschema.Schema{Type: "string", Enum: enum}
	case targetType:
		return &jsonschema.Schema{
			OneOf: []*jsonschema.Schema{
				{Type: "string"},
				{Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			},
		}
	}
	return nil
}
