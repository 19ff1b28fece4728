package eval

import (
	"testing"
	"time"

	"github.com/ormasoftchile/irflow/pkg/incident"
)

func testIncident() *incident.Incident {
	return incident.New("INC-20260101-0001", "Ransomware on file server", "", "CRITICAL", "ransomware",
		[]string{"DESKTOP-123", "FILE-SERVER-01"},
		map[string][]string{"malicious_ips": {"203.0.113.7"}},
		time.Now())
}

func TestGuard(t *testing.T) {
	inc := testIncident()

	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"empty is true", "", true},
		{"whitespace is true", "   ", true},
		{"severity match", `severity == "CRITICAL"`, true},
		{"severity mismatch", `severity == "LOW"`, false},
		{"asset count", "asset_count > 1", true},
		{"membership", `"FILE-SERVER-01" in affected_assets`, true},
		{"indicator length", `len(indicators["malicious_ips"]) > 0`, true},
		{"missing indicator", `len(indicators["compromised_accounts"]) > 0`, false},
		{"phase", `phase == "detection"`, true},
		{"executed", `"R1" in playbook_executed`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Guard(tt.src, inc)
			if err != nil {
				t.Fatalf("Guard(%q): %v", tt.src, err)
			}
			if got != tt.want {
				t.Errorf("Guard(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	bad := []string{
		`severity ==`,
		`asset_count + 1`,
		`unknown_field == "x"`,
	}
	for _, src := range bad {
		if _, err := Compile(src); err == nil {
			t.Errorf("Compile(%q) should fail", src)
		}
	}
}

func TestGuard_TracksIncidentChanges(t *testing.T) {
	inc := testIncident()
	inc.MarkExecuted("R1")
	ok, err := Guard(`"R1" in playbook_executed`, inc)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("guard should see executed step")
	}
}
