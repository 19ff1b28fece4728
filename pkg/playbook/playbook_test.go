package playbook

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/irflow/pkg/incident"
)

func TestCatalog_BuiltinRansomware(t *testing.T) {
	c := NewBuiltinCatalog()
	steps, err := c.Lookup("ransomware")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(steps))
	}

	want := []struct {
		id    string
		phase incident.Phase
		deps  []string
		acts  []string
	}{
		{"R1", incident.PhaseDetection, nil, []string{ActionIsolateEndpoint}},
		{"R2", incident.PhaseAnalysis, []string{"R1"}, []string{ActionScanNetwork}},
		{"R3", incident.PhaseContainment, []string{"R2"}, []string{ActionIsolateNetworkSegment, ActionDisableAccounts}},
	}
	for i, w := range want {
		s := steps[i]
		if s.ID != w.id || s.Phase != w.phase {
			t.Errorf("steps[%d] = %s/%s, want %s/%s", i, s.ID, s.Phase, w.id, w.phase)
		}
		if strings.Join(s.Dependencies, ",") != strings.Join(w.deps, ",") {
			t.Errorf("%s deps = %v, want %v", s.ID, s.Dependencies, w.deps)
		}
		if len(s.AutomatedActions) != len(w.acts) {
			t.Fatalf("%s has %d actions, want %d", s.ID, len(s.AutomatedActions), len(w.acts))
		}
		for j, a := range s.AutomatedActions {
			if a.Name != w.acts[j] {
				t.Errorf("%s action[%d] = %s, want %s", s.ID, j, a.Name, w.acts[j])
			}
		}
	}
	if got := steps[2].RequiredApprovals; len(got) != 2 || got[0] != "CISO" || got[1] != "Infrastructure Manager" {
		t.Errorf("R3 approvals = %v", got)
	}
}

func TestCatalog_LookupMissing(t *testing.T) {
	c := NewCatalog()
	_, err := c.Lookup("phishing")
	if !errors.Is(err, ErrPlaybookNotFound) {
		t.Fatalf("err = %v, want ErrPlaybookNotFound", err)
	}
	if !strings.Contains(err.Error(), "phishing") {
		t.Errorf("error should name the type: %v", err)
	}
}

func TestCatalog_RegisterReplaces(t *testing.T) {
	c := NewBuiltinCatalog()
	c.Register("ransomware", []Step{{ID: "X1", Phase: incident.PhaseDetection}})
	steps, _ := c.Lookup("ransomware")
	if len(steps) != 1 || steps[0].ID != "X1" {
		t.Fatalf("steps = %+v", steps)
	}

	// Lookup hands out a copy.
	steps[0].ID = "mutated"
	again, _ := c.Lookup("ransomware")
	if again[0].ID != "X1" {
		t.Error("catalog entry was mutated through Lookup result")
	}

	types := c.Types()
	if strings.Join(types, ",") != "account_compromise,ransomware" {
		t.Errorf("Types() = %v", types)
	}
}

func TestBuiltins_Valid(t *testing.T) {
	for name, steps := range Builtins() {
		t.Run(name, func(t *testing.T) {
			pb := &Playbook{APIVersion: APIVersion, Meta: Meta{Name: name, IncidentType: name}, Steps: steps}
			for _, e := range ValidatePlaybook(pb) {
				t.Errorf("%s", e)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		steps    []Step
		wantErr  string
		wantWarn string
	}{
		{
			name:  "clean",
			steps: Ransomware(),
		},
		{
			name:    "empty id",
			steps:   []Step{{Phase: incident.PhaseDetection}},
			wantErr: "step id is required",
		},
		{
			name:    "duplicate id",
			steps:   []Step{{ID: "S1"}, {ID: "S1"}},
			wantErr: `duplicate step id "S1"`,
		},
		{
			name:    "self dependency",
			steps:   []Step{{ID: "S1", Dependencies: []string{"S1"}}},
			wantErr: "depends on itself",
		},
		{
			name:    "unknown dependency",
			steps:   []Step{{ID: "S1", Dependencies: []string{"ghost"}}},
			wantErr: `unknown dependency "ghost"`,
		},
		{
			name:    "forward dependency",
			steps:   []Step{{ID: "S1", Dependencies: []string{"S2"}}, {ID: "S2"}},
			wantErr: "declared after",
		},
		{
			name:    "bad guard",
			steps:   []Step{{ID: "S1", When: "severity =="}},
			wantErr: "compile condition",
		},
		{
			name:    "unnamed action",
			steps:   []Step{{ID: "S1", AutomatedActions: []Action{{Target: Ref("affected_assets")}}}},
			wantErr: "action name is required",
		},
		{
			name:     "unknown action",
			steps:    []Step{{ID: "S1", AutomatedActions: []Action{{Name: "reboot_everything"}}}},
			wantWarn: `unknown action "reboot_everything"`,
		},
		{
			name: "dependency in later phase",
			steps: []Step{
				{ID: "S1", Phase: incident.PhaseRecovery},
				{ID: "S2", Phase: incident.PhaseDetection, Dependencies: []string{"S1"}},
			},
			wantWarn: "later phase",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.steps)
			var gotErr, gotWarn []string
			for _, e := range errs {
				if e.Severity == "error" {
					gotErr = append(gotErr, e.Message)
				} else {
					gotWarn = append(gotWarn, e.Message)
				}
			}
			check := func(kind, want string, got []string) {
				if want == "" {
					if len(got) > 0 {
						t.Errorf("unexpected %ss: %v", kind, got)
					}
					return
				}
				for _, g := range got {
					if strings.Contains(g, want) {
						return
					}
				}
				t.Errorf("missing %s containing %q, got %v", kind, want, got)
			}
			check("error", tt.wantErr, gotErr)
			check("warning", tt.wantWarn, gotWarn)
		})
	}
}

func TestValidateFile_Phishing(t *testing.T) {
	pb, errs := ValidateFile("../../testdata/playbooks/phishing.yaml")
	if len(errs) > 0 {
		for _, e := range errs {
			t.Errorf("%s", e)
		}
		t.FailNow()
	}
	if pb.Meta.IncidentType != "phishing" || len(pb.Steps) != 2 {
		t.Fatalf("unexpected playbook: %+v", pb.Meta)
	}
	p2 := pb.Steps[1]
	if p2.Phase != incident.PhaseContainment {
		t.Errorf("P2 phase = %s", p2.Phase)
	}
	if p2.AutomatedActions[0].Target.Ref != "malicious_ips" {
		t.Errorf("block_ip target = %+v", p2.AutomatedActions[0].Target)
	}
	if got := p2.AutomatedActions[1].Target.Values; len(got) != 2 || got[0] != "jdoe" {
		t.Errorf("disable_accounts literal target = %v", got)
	}
}

func TestValidateFile_Invalid(t *testing.T) {
	tests := []struct {
		file  string
		phase string
		want  []string
	}{
		{"unknown-field.yaml", "structural", []string{"automated_action"}},
		{"deps.yaml", "domain", []string{"declared after", "depends on itself", `unknown dependency "ghost"`, "compile condition"}},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, errs := ValidateFile("../../testdata/invalid/" + tt.file)
			if !HasErrors(errs) {
				t.Fatal("expected errors")
			}
			var all []string
			for _, e := range errs {
				if e.Phase != tt.phase {
					t.Errorf("error in phase %s, want %s: %s", e.Phase, tt.phase, e)
				}
				all = append(all, e.Message)
			}
			joined := strings.Join(all, "\n")
			for _, w := range tt.want {
				if !strings.Contains(joined, w) {
					t.Errorf("missing %q in:\n%s", w, joined)
				}
			}
		})
	}
}

func TestValidateBytes_BadPhase(t *testing.T) {
	doc := `apiVersion: irflow/v1
meta: {name: x, incident_type: x}
steps:
  - id: S1
    phase: triage
`
	_, errs := ValidateBytes([]byte(doc))
	if len(errs) != 1 || errs[0].Phase != "structural" {
		t.Fatalf("errs = %v", errs)
	}
	if !strings.Contains(errs[0].Message, "triage") {
		t.Errorf("message should name the bad phase: %s", errs[0].Message)
	}
}

func TestValidatePlaybook_Meta(t *testing.T) {
	pb := &Playbook{APIVersion: "irflow/v0", Steps: []Step{{ID: "S1"}}}
	errs := ValidatePlaybook(pb)
	var paths []string
	for _, e := range errs {
		paths = append(paths, e.Path)
	}
	joined := strings.Join(paths, ",")
	for _, p := range []string{"apiVersion", "meta.name", "meta.incident_type"} {
		if !strings.Contains(joined, p) {
			t.Errorf("missing error at %s, got %v", p, paths)
		}
	}
}

func TestTarget_Resolve(t *testing.T) {
	inc := incident.New("INC-1", "t", "", "HIGH", "ransomware",
		[]string{"DESKTOP-123"},
		map[string][]string{"compromised_accounts": {"jdoe"}},
		time.Now())

	tests := []struct {
		target Target
		want   string
	}{
		{Ref(incident.RefAffectedAssets), "DESKTOP-123"},
		{Ref(incident.RefAllAssets), incident.AllAssetsWildcard},
		{Ref("compromised_accounts"), "jdoe"},
		{Ref("affected_networks"), ""},
		{Literal("10.0.0.0/24", "10.0.1.0/24"), "10.0.0.0/24,10.0.1.0/24"},
	}
	for _, tt := range tests {
		t.Run(tt.target.String(), func(t *testing.T) {
			got := strings.Join(tt.target.Resolve(inc), ",")
			if got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTarget_JSON(t *testing.T) {
	data, err := json.Marshal(Action{Name: ActionBlockIP, Target: Literal("203.0.113.7")})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"target":["203.0.113.7"]`) {
		t.Errorf("literal target JSON = %s", data)
	}

	var a Action
	if err := json.Unmarshal([]byte(`{"action":"scan_network","target":"all_assets"}`), &a); err != nil {
		t.Fatal(err)
	}
	if a.Target.Ref != "all_assets" {
		t.Errorf("Ref = %q", a.Target.Ref)
	}
}

func TestMarshal_RoundTripsThroughValidation(t *testing.T) {
	pb := &Playbook{APIVersion: APIVersion, Meta: Meta{Name: "ransomware", IncidentType: "ransomware"}, Steps: Ransomware()}
	data, err := Marshal(pb)
	if err != nil {
		t.Fatal(err)
	}
	back, errs := ValidateBytes(data)
	if len(errs) > 0 {
		t.Fatalf("errs = %v", errs)
	}
	if back.Steps[2].AutomatedActions[0].Target.Ref != "affected_networks" {
		t.Errorf("target lost in round trip: %+v", back.Steps[2].AutomatedActions[0])
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"lessons_learned"`, `"oneOf"`, `"incident_type"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("schema missing %s", want)
		}
	}
}
