package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_RecordAndServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncidentCreated("ransomware", "CRITICAL")
	m.StepExecuted("ransomware", "detection")
	m.ActionDispatched("isolate_endpoint", "success")
	m.ActionDispatched("isolate_endpoint", "error")
	m.SweepFinished("ransomware", "detection", "completed", 20*time.Millisecond)
	m.PhaseAdvanced("ransomware", "analysis")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	out := string(body)

	for _, want := range []string{
		`irflow_incidents_created_total{severity="CRITICAL",type="ransomware"} 1`,
		`irflow_actions_dispatched_total{action="isolate_endpoint",result="error"} 1`,
		`irflow_sweeps_total{result="completed",type="ransomware"} 1`,
		`irflow_phase_advances_total{to="analysis",type="ransomware"} 1`,
		`irflow_open_incidents 1`,
		`irflow_sweep_duration_seconds_count{phase="detection",type="ransomware"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.IncidentCreated("x", "y")
	m.IncidentClosed()
	m.StepExecuted("x", "y")
	m.ActionDispatched("x", "y")
	m.SweepFinished("x", "y", "z", time.Second)
	m.PhaseAdvanced("x", "y")
}
