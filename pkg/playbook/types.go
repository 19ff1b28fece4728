// Package playbook defines incident-response playbooks: ordered workflow
// steps keyed by incident type, their YAML form, validation and the catalog.
package playbook

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/irflow/pkg/incident"
)

// APIVersion is the playbook document version.
const APIVersion = "irflow/v1"

// ---------------------------------------------------------------------------
// Document
// ---------------------------------------------------------------------------

// Playbook is the top-level playbook document.
type Playbook struct {
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`
	Meta       Meta   `yaml:"meta"       json:"meta"`
	Steps      []Step `yaml:"steps"      json:"steps"`
}

// Meta carries playbook metadata.
type Meta struct {
	Name         string `yaml:"name"          json:"name"`
	IncidentType string `yaml:"incident_type" json:"incident_type"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ---------------------------------------------------------------------------
// Step
// ---------------------------------------------------------------------------

// Step is an immutable template for one unit of playbook work.
type Step struct {
	ID                string         `yaml:"id"    json:"id"`
	Title             string         `yaml:"title,omitempty" json:"title,omitempty"`
	Description       string         `yaml:"description,omitempty" json:"description,omitempty"`
	Phase             incident.Phase `yaml:"phase" json:"phase"`
	Dependencies      []string       `yaml:"dependencies,omitempty"       json:"dependencies,omitempty"`
	RequiredApprovals []string       `yaml:"required_approvals,omitempty" json:"required_approvals,omitempty"`
	AutomatedActions  []Action       `yaml:"automated_actions,omitempty"  json:"automated_actions,omitempty"`
	ManualTasks       []string       `yaml:"manual_tasks,omitempty"       json:"manual_tasks,omitempty"`
	EstimatedDuration int            `yaml:"estimated_duration,omitempty" json:"estimated_duration,omitempty"` // minutes
	When              string         `yaml:"when,omitempty" json:"when,omitempty"`
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// Action is a symbolic automated-action descriptor.
type Action struct {
	Name   string            `yaml:"action"           json:"action"`
	Target Target            `yaml:"target,omitempty" json:"target,omitempty"`
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Known action names.
const (
	ActionIsolateEndpoint        = "isolate_endpoint"
	ActionRestoreEndpoint        = "restore_endpoint"
	ActionScanNetwork            = "scan_network"
	ActionDisableAccounts        = "disable_accounts"
	ActionEnableAccounts         = "enable_accounts"
	ActionBlockIP                = "block_ip"
	ActionUnblockIP              = "unblock_ip"
	ActionIsolateNetworkSegment  = "isolate_network_segment"
	ActionCollectEndpointThreats = "collect_endpoint_threats"
	ActionCollectTrafficLogs     = "collect_traffic_logs"
	ActionCollectFileDetails     = "collect_file_details"
	ActionCollectBlockedIPs      = "collect_blocked_ips"
)

// KnownActions lists every action name the dispatcher routes.
var KnownActions = []string{
	ActionIsolateEndpoint,
	ActionRestoreEndpoint,
	ActionScanNetwork,
	ActionDisableAccounts,
	ActionEnableAccounts,
	ActionBlockIP,
	ActionUnblockIP,
	ActionIsolateNetworkSegment,
	ActionCollectEndpointThreats,
	ActionCollectTrafficLogs,
	ActionCollectFileDetails,
	ActionCollectBlockedIPs,
}

// IsKnownAction reports whether name is routed by the dispatcher.
func IsKnownAction(name string) bool {
	for _, a := range KnownActions {
		if a == name {
			return true
		}
	}
	return false
}

// Target is either a symbolic reference resolved against the incident
// (e.g. "affected_assets") or a literal list of identifiers.
type Target struct {
	Ref    string
	Values []string
}

// Ref returns a symbolic target.
func Ref(name string) Target { return Target{Ref: name} }

// Literal returns a literal target.
func Literal(values ...string) Target { return Target{Values: values} }

// IsZero reports whether the target is unset.
func (t Target) IsZero() bool { return t.Ref == "" && len(t.Values) == 0 }

// Resolve returns the concrete identifiers using r for symbolic references.
func (t Target) Resolve(r incident.Resolver) []string {
	if t.Ref != "" {
		return r.Targets(t.Ref)
	}
	return append([]string(nil), t.Values...)
}

func (t Target) String() string {
	if t.Ref != "" {
		return t.Ref
	}
	return fmt.Sprint(t.Values)
}

// UnmarshalYAML accepts a scalar reference or a sequence of identifiers.
func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		t.Ref = node.Value
		t.Values = nil
		return nil
	case yaml.SequenceNode:
		var vals []string
		if err := node.Decode(&vals); err != nil {
			return fmt.Errorf("target: %w", err)
		}
		t.Ref = ""
		t.Values = vals
		return nil
	default:
		return fmt.Errorf("line %d: target must be a reference string or a list of identifiers", node.Line)
	}
}

// MarshalYAML mirrors UnmarshalYAML.
func (t Target) MarshalYAML() (any, error) {
	if t.Ref != "" {
		return t.Ref, nil
	}
	return t.Values, nil
}

// MarshalJSON mirrors the YAML form.
func (t Target) MarshalJSON() ([]byte, error) {
	if t.Ref != "" {
		return json.Marshal(t.Ref)
	}
	if t.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.Values)
}

// UnmarshalJSON accepts a string reference or an array of identifiers.
func (t *Target) UnmarshalJSON(data []byte) error {
	var ref string
	if err := json.Unmarshal(data, &ref); err == nil {
		t.Ref, t.Values = ref, nil
		return nil
	}
	var vals []string
	if err := json.Unmarshal(data, &vals); err != nil {
		return fmt.Errorf("target must be a reference string or a list of identifiers")
	}
	t.Ref, t.Values = "", vals
	return nil
}
