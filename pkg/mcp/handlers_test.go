package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/irflow/pkg/engine"
	"github.com/ormasoftchile/irflow/pkg/incident"
)

func newHandlers(t *testing.T) *Handlers {
	t.Helper()
	eng := engine.New(engine.Config{
		Clock: func() time.Time { return time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })
	return &Handlers{Engine: eng}
}

func call(t *testing.T, fn func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := fn(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content is %T, want text", res.Content[0])
	}
	return tc.Text, res.IsError
}

func createIncident(t *testing.T, h *Handlers) incident.Snapshot {
	t.Helper()
	text, isErr := call(t, h.HandleCreateIncident, map[string]any{
		"title":           "Ransomware on finance share",
		"incident_type":   "ransomware",
		"severity":        "critical",
		"affected_assets": []any{"DESKTOP-123"},
		"indicators":      map[string]any{"compromised_accounts": []any{"svc-backup"}},
		"wait":            true,
	})
	if isErr {
		t.Fatalf("create_incident: %s", text)
	}
	var snap incident.Snapshot
	if err := json.Unmarshal([]byte(text), &snap); err != nil {
		t.Fatalf("decode snapshot: %v\n%s", err, text)
	}
	return snap
}

func TestNewServer_RegistersTools(t *testing.T) {
	h := newHandlers(t)
	s := NewServer(h.Engine, "test")
	tools := s.ListTools()
	for _, name := range []string{
		"irflow/create_incident",
		"irflow/get_incident_status",
		"irflow/list_incidents",
		"irflow/advance_phase",
		"irflow/sweep",
		"irflow/set_status",
		"irflow/add_evidence",
		"irflow/approve",
		"irflow/close_incident",
		"irflow/list_playbooks",
	} {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestHandleCreateIncident(t *testing.T) {
	h := newHandlers(t)
	snap := createIncident(t, h)
	if snap.ID != "INC-20261018-0001" {
		t.Errorf("id = %q", snap.ID)
	}
	if strings.Join(snap.Executed, ",") != "R1" {
		t.Errorf("executed = %v", snap.Executed)
	}
	if snap.Indicators["compromised_accounts"][0] != "svc-backup" {
		t.Errorf("indicators = %v", snap.Indicators)
	}

	_, isErr := call(t, h.HandleCreateIncident, map[string]any{"title": "no type"})
	if !isErr {
		t.Error("missing incident_type should fail")
	}
	_, isErr = call(t, h.HandleCreateIncident, map[string]any{
		"title": "x", "incident_type": "ransomware", "indicators": map[string]any{"ips": "1.2.3.4"},
	})
	if !isErr {
		t.Error("non-array indicator should fail")
	}
}

func TestHandleGetIncidentStatus_NotFound(t *testing.T) {
	h := newHandlers(t)
	text, isErr := call(t, h.HandleGetIncidentStatus, map[string]any{"incident_id": "INC-20000101-0001"})
	if !isErr || !strings.Contains(text, "incident not found") {
		t.Errorf("got %q (error=%v)", text, isErr)
	}
	if _, isErr := call(t, h.HandleGetIncidentStatus, map[string]any{}); !isErr {
		t.Error("missing incident_id should fail")
	}
}

func TestHandleAdvanceAndSweep(t *testing.T) {
	h := newHandlers(t)
	snap := createIncident(t, h)

	text, isErr := call(t, h.HandleAdvancePhase, map[string]any{"incident_id": snap.ID, "sweep": true})
	if isErr {
		t.Fatalf("advance_phase: %s", text)
	}
	var resp struct {
		Phase string              `json:"current_phase"`
		Sweep *engine.SweepReport `json:"sweep"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Phase != "analysis" || resp.Sweep == nil || strings.Join(resp.Sweep.Executed, ",") != "R2" {
		t.Errorf("advance response = %s", text)
	}

	text, isErr = call(t, h.HandleSweep, map[string]any{"incident_id": snap.ID})
	if isErr || !strings.Contains(text, `"executed": []`) {
		t.Errorf("re-sweep = %s", text)
	}
}

func TestHandleLifecycle(t *testing.T) {
	h := newHandlers(t)
	snap := createIncident(t, h)
	id := snap.ID

	if text, isErr := call(t, h.HandleSetStatus, map[string]any{"incident_id": id, "status": "investigating"}); isErr {
		t.Fatalf("set_status: %s", text)
	}
	if text, isErr := call(t, h.HandleSetStatus, map[string]any{"incident_id": id, "status": "detected"}); !isErr {
		t.Errorf("backwards status should fail: %s", text)
	}
	if text, isErr := call(t, h.HandleAddEvidence, map[string]any{
		"incident_id": id, "kind": "ransom_note", "data": map[string]any{"path": "README.txt"},
	}); isErr {
		t.Fatalf("add_evidence: %s", text)
	}
	if text, isErr := call(t, h.HandleApprove, map[string]any{
		"incident_id": id, "step_id": "R1", "role": "SOC Manager", "approver": "alice",
	}); isErr {
		t.Fatalf("approve: %s", text)
	}

	text, isErr := call(t, h.HandleListIncidents, map[string]any{"status": "investigating"})
	if isErr || !strings.Contains(text, id) {
		t.Errorf("list_incidents = %s", text)
	}

	text, isErr = call(t, h.HandleCloseIncident, map[string]any{"incident_id": id, "notes": "restored from backup"})
	if isErr {
		t.Fatalf("close_incident: %s", text)
	}
	var closed incident.Snapshot
	if err := json.Unmarshal([]byte(text), &closed); err != nil {
		t.Fatal(err)
	}
	if closed.Status != incident.StatusClosed || len(closed.Evidence) != 1 || len(closed.Approvals) != 1 {
		t.Errorf("closed snapshot = %+v", closed)
	}

	text, _ = call(t, h.HandleListIncidents, map[string]any{"status": "investigating"})
	if strings.Contains(text, id) {
		t.Errorf("closed incident listed as investigating: %s", text)
	}
}

func TestHandleListPlaybooks(t *testing.T) {
	h := newHandlers(t)
	text, isErr := call(t, h.HandleListPlaybooks, map[string]any{})
	if isErr || !strings.Contains(text, `"ransomware"`) || !strings.Contains(text, `"account_compromise"`) {
		t.Errorf("list_playbooks = %s", text)
	}
	text, isErr = call(t, h.HandleListPlaybooks, map[string]any{"incident_type": "ransomware"})
	if isErr || !strings.Contains(text, `"R3"`) {
		t.Errorf("ransomware steps = %s", text)
	}
	if _, isErr := call(t, h.HandleListPlaybooks, map[string]any{"incident_type": "nope"}); !isErr {
		t.Error("unknown playbook should fail")
	}
}
