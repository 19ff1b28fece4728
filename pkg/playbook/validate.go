package playbook

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/irflow/pkg/eval"
)

// ValidationError represents one error or warning from the validation pipeline.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] %s at %s", e.Phase, e.Message, e.Path)
	}
	return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
}

func errorf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{Phase: phase, Path: path, Message: fmt.Sprintf(msg, args...), Severity: "error"}
}

func warningf(phase, path, msg string, args ...any) *ValidationError {
	return &ValidationError{Phase: phase, Path: path, Message: fmt.Sprintf(msg, args...), Severity: "warning"}
}

// HasErrors reports whether errs contains at least one error-severity entry.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile runs the full pipeline on a playbook file:
// structural (strict YAML) → semantic (JSON Schema) → domain.
func ValidateFile(path string) (*Playbook, []*ValidationError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []*ValidationError{errorf("structural", "", "failed to read: %s", err)}
	}
	return ValidateBytes(data)
}

// ValidateBytes runs the full pipeline on an in-memory document.
func ValidateBytes(data []byte) (*Playbook, []*ValidationError) {
	pb, err := LoadBytes(data)
	if err != nil {
		return nil, []*ValidationError{errorf("structural", "", "failed to load: %s", err)}
	}
	return pb, ValidatePlaybook(pb)
}

// ValidatePlaybook runs the semantic and domain phases on a loaded playbook.
// Domain rules only run once the document is schema-valid.
func ValidatePlaybook(pb *Playbook) []*ValidationError {
	errs := validateSemantic(pb)
	if HasErrors(errs) {
		return errs
	}
	if pb.APIVersion != APIVersion {
		errs = append(errs, errorf("domain", "apiVersion", "unsupported apiVersion %q, want %q", pb.APIVersion, APIVersion))
	}
	if pb.Meta.Name == "" {
		errs = append(errs, errorf("domain", "meta.name", "meta.name is required"))
	}
	if pb.Meta.IncidentType == "" {
		errs = append(errs, errorf("domain", "meta.incident_type", "meta.incident_type is required"))
	}
	if len(pb.Steps) == 0 {
		errs = append(errs, errorf("domain", "steps", "at least one step is required"))
	}
	return append(errs, Validate(pb.Steps)...)
}

// ---------------------------------------------------------------------------
// Semantic
// ---------------------------------------------------------------------------

func validateSemantic(pb *Playbook) []*ValidationError {
	data, err := json.Marshal(pb)
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "marshal for schema validation: %v", err)}
	}
	sch, err := compiledSchema()
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "%v", err)}
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{errorf("semantic", "", "unmarshal document: %v", err)}
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return []*ValidationError{errorf("semantic", "", "%s", err)}
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, errorf("semantic", strings.Join(cause.InstanceLocation, "/"), "%v", cause.ErrorKind))
		}
		return errs
	}
	return nil
}

func compiledSchema() (*sjsonschema.Schema, error) {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource("playbook-v1.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile("playbook-v1.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ---------------------------------------------------------------------------
// Domain
// ---------------------------------------------------------------------------

// Validate checks a step sequence for the rules the sweep relies on:
// unique non-empty IDs, dependencies that name an earlier step, compilable
// guards and named actions. Unknown actions and dependencies on a later
// phase are reported as warnings.
func Validate(steps []Step) []*ValidationError {
	var errs []*ValidationError
	index := make(map[string]int, len(steps))

	for i, step := range steps {
		path := fmt.Sprintf("steps[%d]", i)

		if step.ID == "" {
			errs = append(errs, errorf("domain", path+".id", "step id is required"))
		} else if prev, dup := index[step.ID]; dup {
			errs = append(errs, errorf("domain", path+".id", "duplicate step id %q (first at steps[%d])", step.ID, prev))
		}
		if !step.Phase.Valid() {
			errs = append(errs, errorf("domain", path+".phase", "invalid phase %d", int(step.Phase)))
		}

		for j, dep := range step.Dependencies {
			dpath := fmt.Sprintf("%s.dependencies[%d]", path, j)
			if dep == step.ID {
				errs = append(errs, errorf("domain", dpath, "step %q depends on itself", step.ID))
				continue
			}
			at, ok := index[dep]
			if !ok {
				if stepIndex(steps, dep) >= 0 {
					errs = append(errs, errorf("domain", dpath, "dependency %q is declared after step %q", dep, step.ID))
				} else {
					errs = append(errs, errorf("domain", dpath, "unknown dependency %q", dep))
				}
				continue
			}
			if steps[at].Phase > step.Phase {
				errs = append(errs, warningf("domain", dpath, "dependency %q runs in a later phase (%s) than step %q (%s)",
					dep, steps[at].Phase, step.ID, step.Phase))
			}
		}

		if _, err := eval.Compile(step.When); err != nil {
			errs = append(errs, errorf("domain", path+".when", "%s", err))
		}

		for j, a := range step.AutomatedActions {
			apath := fmt.Sprintf("%s.automated_actions[%d]", path, j)
			switch {
			case a.Name == "":
				errs = append(errs, errorf("domain", apath+".action", "action name is required"))
			case !IsKnownAction(a.Name):
				errs = append(errs, warningf("domain", apath+".action", "unknown action %q", a.Name))
			}
		}

		if step.ID != "" {
			if _, dup := index[step.ID]; !dup {
				index[step.ID] = i
			}
		}
	}
	return errs
}

func stepIndex(steps []Step, id string) int {
	for i := range steps {
		if steps[i].ID == id {
			return i
		}
	}
	return -1
}
