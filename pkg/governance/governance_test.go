package governance

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/playbook"
)

func newIncident() *incident.Incident {
	return incident.New("INC-1", "t", "", "HIGH", "ransomware", []string{"DESKTOP-123"}, nil, time.Now())
}

func TestEvaluate(t *testing.T) {
	steps := playbook.Ransomware()

	tests := []struct {
		name     string
		setup    func(*incident.Incident)
		policy   Policy
		eligible func(playbook.Step) bool
		want     Action
		pending  string
		missing  string
	}{
		{
			name:    "pending step denies",
			want:    Deny,
			pending: "R1",
		},
		{
			name:  "executed step allows",
			setup: func(inc *incident.Incident) { inc.MarkExecuted("R1") },
			want:  Allow,
		},
		{
			name:    "missing approval",
			setup:   func(inc *incident.Incident) { inc.MarkExecuted("R1") },
			policy:  Policy{RequireApprovals: true},
			want:    RequireApproval,
			missing: "R1:SOC Manager",
		},
		{
			name: "approval recorded",
			setup: func(inc *incident.Incident) {
				inc.MarkExecuted("R1")
				inc.Approvals = append(inc.Approvals, incident.Approval{StepID: "R1", Role: "SOC Manager"})
			},
			policy: Policy{RequireApprovals: true},
			want:   Allow,
		},
		{
			name:     "ineligible step does not block",
			eligible: func(playbook.Step) bool { return false },
			want:     Allow,
		},
		{
			name: "later phases are ignored",
			setup: func(inc *incident.Incident) {
				inc.Phase = incident.PhaseContainment
			},
			want:    Deny,
			pending: "R3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := newIncident()
			if tt.setup != nil {
				tt.setup(inc)
			}
			d := Evaluate(Input{Incident: inc, Steps: steps, Eligible: tt.eligible}, tt.policy)
			if d.Action != tt.want {
				t.Errorf("Action = %s, want %s (%+v)", d.Action, tt.want, d)
			}
			if got := strings.Join(d.PendingSteps, ","); got != tt.pending {
				t.Errorf("PendingSteps = %q, want %q", got, tt.pending)
			}
			if got := strings.Join(d.MissingApprovals, ","); got != tt.missing {
				t.Errorf("MissingApprovals = %q, want %q", got, tt.missing)
			}
		})
	}
}

func TestEvaluate_PendingStepsOutrankMissingApprovals(t *testing.T) {
	steps := []playbook.Step{
		{ID: "X1", Phase: incident.PhaseDetection, RequiredApprovals: []string{"CISO"}},
		{ID: "X2", Phase: incident.PhaseDetection},
	}
	inc := newIncident()
	inc.MarkExecuted("X1")

	d := Evaluate(Input{Incident: inc, Steps: steps}, Policy{RequireApprovals: true})
	if d.Action != Deny {
		t.Errorf("Action = %s, want deny", d.Action)
	}
	if got := strings.Join(d.PendingSteps, ","); got != "X2" {
		t.Errorf("PendingSteps = %q", got)
	}
	if got := strings.Join(d.MissingApprovals, ","); got != "X1:CISO" {
		t.Errorf("MissingApprovals = %q, want both findings reported", got)
	}
}

func TestMostRestrictive(t *testing.T) {
	a := Decision{Action: Allow}
	r := Decision{Action: RequireApproval}
	d := Decision{Action: Deny}
	if MostRestrictive(a, r).Action != RequireApproval {
		t.Error("require-approval beats allow")
	}
	if MostRestrictive(d, r).Action != Deny {
		t.Error("deny beats require-approval")
	}
}

func TestActionPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy ActionPolicy
		action string
		denied bool
	}{
		{"empty policy allows", ActionPolicy{}, "isolate_endpoint", false},
		{"allowlisted", ActionPolicy{AllowedActions: []string{"scan_network"}}, "scan_network", false},
		{"not allowlisted", ActionPolicy{AllowedActions: []string{"scan_network"}}, "disable_accounts", true},
		{"denylisted", ActionPolicy{DeniedActions: []string{"disable_accounts"}}, "disable_accounts", true},
		{"deny beats allow", ActionPolicy{AllowedActions: []string{"block_ip"}, DeniedActions: []string{"block_ip"}}, "block_ip", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.CheckAction(tt.action)
			if got := errors.Is(err, ErrActionDenied); got != tt.denied {
				t.Errorf("denied = %v, want %v (err %v)", got, tt.denied, err)
			}
		})
	}
}

func TestRedactor(t *testing.T) {
	r, err := NewRedactor([]RedactionRule{
		{Pattern: `(?i)password=\S+`, Replace: "password=***"},
		{Pattern: `\b\d{3}-\d{2}-\d{4}\b`},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := r.Redact("login failed password=hunter2 for 123-45-6789")
	want := "login failed password=*** for [REDACTED]"
	if got != want {
		t.Errorf("Redact = %q, want %q", got, want)
	}

	var nilR *Redactor
	if nilR.Redact("x") != "x" {
		t.Error("nil redactor should pass text through")
	}

	if _, err := NewRedactor([]RedactionRule{{Pattern: "("}}); err == nil {
		t.Error("invalid pattern should fail")
	}
}
