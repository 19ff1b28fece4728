// Package governance decides whether an incident may leave its current
// phase and which automated actions a deployment permits.
package governance

import (
	"sort"

	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/playbook"
)

// Action is a gate outcome.
type Action string

const (
	Allow           Action = "allow"
	RequireApproval Action = "require-approval"
	Deny            Action = "deny"
)

// Decision carries the gate evaluation for an incident's current phase.
type Decision struct {
	Action           Action   `json:"action"`
	Phase            string   `json:"phase"`
	PendingSteps     []string `json:"pending_steps,omitempty"`
	MissingApprovals []string `json:"missing_approvals,omitempty"` // "<step>:<role>"
}

// Allowed reports whether the phase may advance.
func (d Decision) Allowed() bool { return d.Action == Allow }

// Input is what the gate looks at. Eligible reports whether a step in the
// current phase is expected to run (guard true, dependencies met); a nil
// Eligible treats every step as eligible.
type Input struct {
	Incident *incident.Incident
	Steps    []playbook.Step
	Eligible func(playbook.Step) bool
}

// Policy configures the gate.
type Policy struct {
	RequireApprovals bool `yaml:"require_approvals"`
}

// Evaluate returns deny while eligible current-phase steps are pending,
// require-approval when the policy asks for sign-off that is missing, and
// allow otherwise.
func Evaluate(in Input, p Policy) Decision {
	inc := in.Incident
	phase := inc.Phase.String()
	steps := Decision{Action: Allow, Phase: phase}
	approvals := Decision{Action: Allow, Phase: phase}

	for _, s := range in.Steps {
		if s.Phase != inc.Phase {
			continue
		}
		if in.Eligible != nil && !inc.HasExecuted(s.ID) && !in.Eligible(s) {
			continue
		}
		if !inc.HasExecuted(s.ID) {
			steps.PendingSteps = append(steps.PendingSteps, s.ID)
			continue
		}
		if !p.RequireApprovals {
			continue
		}
		for _, role := range s.RequiredApprovals {
			if !inc.HasApproval(s.ID, role) {
				approvals.MissingApprovals = append(approvals.MissingApprovals, s.ID+":"+role)
			}
		}
	}

	if len(steps.PendingSteps) > 0 {
		steps.Action = Deny
	}
	if len(approvals.MissingApprovals) > 0 {
		approvals.Action = RequireApproval
		sort.Strings(approvals.MissingApprovals)
	}

	d := MostRestrictive(steps, approvals)
	d.PendingSteps = steps.PendingSteps
	d.MissingApprovals = approvals.MissingApprovals
	return d
}

// MostRestrictive returns the more restrictive of two decisions.
// deny > require-approval > allow
func MostRestrictive(a, b Decision) Decision {
	if severity(a.Action) >= severity(b.Action) {
		return a
	}
	return b
}

func severity(a Action) int {
	switch a {
	case Deny:
		return 2
	case RequireApproval:
		return 1
	default:
		return 0
	}
}
