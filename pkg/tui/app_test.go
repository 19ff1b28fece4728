package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/irflow/pkg/engine"
	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/playbook"
)

func TestClassify(t *testing.T) {
	step := playbook.Step{
		ID:                "R2",
		Phase:             incident.PhaseAnalysis,
		Dependencies:      []string{"R1"},
		RequiredApprovals: []string{"CISO"},
	}
	tests := []struct {
		name      string
		snap      incident.Snapshot
		want      stepStatus
		approvals bool
	}{
		{"future phase", incident.Snapshot{Phase: incident.PhaseDetection}, statusFuture, true},
		{"blocked", incident.Snapshot{Phase: incident.PhaseAnalysis}, statusBlocked, true},
		{"ready", incident.Snapshot{Phase: incident.PhaseAnalysis, Executed: []string{"R1"}}, statusReady, true},
		{"approved", incident.Snapshot{
			Phase:     incident.PhaseAnalysis,
			Executed:  []string{"R1"},
			Approvals: []incident.Approval{{StepID: "R2", Role: "CISO"}},
		}, statusReady, false},
		{"missed", incident.Snapshot{Phase: incident.PhaseContainment, Executed: []string{"R1"}}, statusWaiting, true},
		{"executed", incident.Snapshot{Phase: incident.PhaseContainment, Executed: []string{"R1", "R2"}}, statusExecuted, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(step, tt.snap)
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
			if got.NeedsApprovals != tt.approvals {
				t.Errorf("needs approvals = %v, want %v", got.NeedsApprovals, tt.approvals)
			}
		})
	}
}

func TestTaskChecklist(t *testing.T) {
	if got := taskChecklist(nil, false); got != "" {
		t.Errorf("empty = %q", got)
	}
	got := taskChecklist([]string{"Verify encryption indicators", "Identify patient zero"}, true)
	want := "- [x] Verify encryption indicators\n- [x] Identify patient zero\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// newDashboard returns a model loaded with a ransomware incident whose
// initial sweep has finished.
func newDashboard(t *testing.T) (Model, *engine.Engine, string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	eng := engine.New(engine.Config{
		Clock: func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) },
	})
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	id, err := eng.CreateIncident(ctx, engine.NewIncident{
		Title:          "Ransomware on finance share",
		Severity:       "CRITICAL",
		Type:           "ransomware",
		AffectedAssets: []string{"DESKTOP-123"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Wait(ctx, id); err != nil {
		t.Fatal(err)
	}

	m := NewModel(ctx, Config{Engine: eng, IncidentID: id})
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = update(t, m, m.fetchSnapshot()())
	return m, eng, id
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out
}

// press sends a key and runs the command it returns, if any.
func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	m = next.(Model)
	if cmd != nil {
		m = update(t, m, cmd())
	}
	return m
}

func TestModel_Loads(t *testing.T) {
	m, _, id := newDashboard(t)
	if !m.loaded || m.fatalErr != "" {
		t.Fatalf("loaded=%v fatal=%q", m.loaded, m.fatalErr)
	}
	view := m.View()
	for _, want := range []string{id, "detection", "CRITICAL", "Initial Detection", "isolate_endpoint"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	total, executed, _, _ := m.steps.Stats()
	if total != 3 || executed != 1 {
		t.Errorf("stats total=%d executed=%d", total, executed)
	}
}

func TestModel_AdvanceAndSweep(t *testing.T) {
	m, eng, id := newDashboard(t)

	m = press(t, m, "a")
	if m.busy {
		t.Error("busy after command finished")
	}
	if m.detail.notice != "advanced to analysis" {
		t.Errorf("notice = %q, err = %q", m.detail.notice, m.detail.errMsg)
	}

	m = press(t, m, "s")
	if !strings.Contains(m.detail.notice, "executed R2") {
		t.Errorf("notice = %q, err = %q", m.detail.notice, m.detail.errMsg)
	}
	snap, err := eng.GetIncidentStatus(id)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(snap.Executed, ",") != "R1,R2" {
		t.Errorf("executed = %v", snap.Executed)
	}

	// Every analysis step has run, so the gate opens containment.
	m = press(t, m, "a")
	if m.detail.errMsg != "" {
		t.Errorf("advance to containment: %s", m.detail.errMsg)
	}
}

func TestModel_Browse(t *testing.T) {
	m, _, _ := newDashboard(t)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	info, ok := m.steps.Selected()
	if !ok || info.Step.ID != "R2" {
		t.Fatalf("selected %+v", info.Step.ID)
	}
	if !strings.Contains(m.output.content, "Scope Assessment") || !strings.Contains(m.output.content, "CISO") {
		t.Errorf("output = %q", m.output.content)
	}
}

func TestModel_ClosedIgnoresCommands(t *testing.T) {
	m, eng, id := newDashboard(t)
	if err := eng.Close(id, "restored"); err != nil {
		t.Fatal(err)
	}
	m = update(t, m, m.fetchSnapshot()())

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	if cmd != nil || next.(Model).busy {
		t.Error("advance on a closed incident should be ignored")
	}
	if !strings.Contains(m.View(), "restored") {
		t.Error("resolution notes not shown")
	}
}

func TestModel_UnknownIncident(t *testing.T) {
	m, _, _ := newDashboard(t)
	m.incidentID = "INC-20000101-0001"
	m.loaded = false
	m = update(t, m, m.fetchSnapshot()())
	if !strings.Contains(m.View(), "incident not found") {
		t.Errorf("view = %q", m.View())
	}
}
