package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/irflow/pkg/config"
	"github.com/ormasoftchile/irflow/pkg/diagram"
	"github.com/ormasoftchile/irflow/pkg/engine"
	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/trace"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Trace = filepath.Join(t.TempDir(), "trace.jsonl")
	return cfg
}

func TestParseIndicators(t *testing.T) {
	tests := []struct {
		name    string
		flags   []string
		want    map[string][]string
		wantErr bool
	}{
		{"none", nil, nil, false},
		{"lists", []string{"malicious_ips=203.0.113.7, 198.51.100.2", "compromised_accounts=svc"},
			map[string][]string{"malicious_ips": {"203.0.113.7", "198.51.100.2"}, "compromised_accounts": {"svc"}}, false},
		{"repeated", []string{"ips=a", "ips=b"}, map[string][]string{"ips": {"a", "b"}}, false},
		{"missing equals", []string{"ips"}, nil, true},
		{"empty name", []string{"=a"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIndicators(tt.flags)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if strings.Join(got[k], ",") != strings.Join(v, ",") {
					t.Errorf("%s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestRunValidate(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := runValidate(&stdout, &stderr, []string{"../../testdata/playbooks/phishing.yaml"}); err != nil {
		t.Fatalf("valid playbook rejected: %v\n%s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "is valid (phishing") {
		t.Errorf("stdout = %q", stdout.String())
	}

	stdout.Reset()
	stderr.Reset()
	err := runValidate(&stdout, &stderr, []string{
		"../../testdata/playbooks/phishing.yaml",
		"../../testdata/invalid/deps.yaml",
	})
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(stderr.String(), "deps.yaml") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunIncident_AdvanceAndTrace(t *testing.T) {
	t.Setenv(trace.SigningKeyEnv, "test-secret")
	t.Setenv(signingKeyIDEnv, "ci")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := testConfig(t)
	cfg.Playbooks = "../../testdata/playbooks"
	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err = runIncident(ctx, &out, a.engine, engine.NewIncident{
		Title:          "Finance share encrypted",
		Severity:       "critical",
		Type:           "ransomware",
		AffectedAssets: []string{"DESKTOP-123"},
	}, true, "restored from backup")
	if err != nil {
		t.Fatal(err)
	}
	var snap incident.Snapshot
	if err := json.Unmarshal(out.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if strings.Join(snap.Executed, ",") != "R1,R2,R3" {
		t.Errorf("executed = %v", snap.Executed)
	}
	if snap.Phase != incident.PhaseLessonsLearned || snap.Status != incident.StatusClosed {
		t.Errorf("phase = %s, status = %s", snap.Phase, snap.Status)
	}

	var pbs bytes.Buffer
	if err := printPlaybooks(&pbs, a.engine, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(pbs.String(), "phishing") {
		t.Errorf("loaded playbooks missing phishing:\n%s", pbs.String())
	}

	if err := a.Close(ctx); err != nil {
		t.Fatal(err)
	}

	res, err := trace.VerifyFile(cfg.Trace)
	if err != nil {
		t.Fatal(err)
	}
	var report bytes.Buffer
	if err := reportVerify(&report, res); err != nil {
		t.Fatalf("verify: %v\n%s", err, report.String())
	}
	if !strings.Contains(report.String(), `signed by key "ci"`) {
		t.Errorf("report = %q", report.String())
	}
}

func TestReportVerify(t *testing.T) {
	tests := []struct {
		name    string
		result  trace.VerifyResult
		want    string
		wantErr bool
	}{
		{"broken", trace.VerifyResult{Valid: false, BrokenAt: 2, Error: "prev_hash mismatch"}, "Chain broken at event 2", true},
		{"unsealed", trace.VerifyResult{Valid: true, EventCount: 3}, "not sealed", false},
		{"no key", trace.VerifyResult{Valid: true, Sealed: true, Signed: true, SignatureNoKey: true, SigningKeyID: "ci"}, "no " + trace.SigningKeyEnv, false},
		{"bad signature", trace.VerifyResult{Valid: true, Sealed: true, Signed: true}, "Signature invalid", true},
		{"unsigned seal", trace.VerifyResult{Valid: true, Sealed: true}, "Sealed without signature", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			res := tt.result
			err := reportVerify(&buf, &res)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestPrintPlaybooks_YAML(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trace = ""
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(context.Background())

	var buf bytes.Buffer
	if err := printPlaybooks(&buf, a.engine, []string{"ransomware"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"apiVersion: irflow/v1", "id: R1", "phase: containment"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("yaml missing %q:\n%s", want, buf.String())
		}
	}
	if err := printPlaybooks(&buf, a.engine, []string{"nope"}); err == nil {
		t.Error("unknown playbook should fail")
	}
}

func TestPrintDiagram(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trace = ""
	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(context.Background())

	var buf bytes.Buffer
	if err := printDiagram(&buf, a.engine, "ransomware", diagram.FormatMermaid); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "R2 --> R3") {
		t.Errorf("mermaid missing dependency edge:\n%s", buf.String())
	}
	if err := printDiagram(&buf, a.engine, "ransomware", diagram.Format("svg")); err == nil {
		t.Error("unsupported format should fail")
	}
}

func TestNewApp_ConnectorErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Connectors.EDR.Vendor = "sentinelone"
	if _, err := newApp(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Errorf("err = %v", err)
	}
}
