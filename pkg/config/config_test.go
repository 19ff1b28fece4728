package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "irflow.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
playbooks: ./playbooks
auto_advance: true
require_approvals: true
metrics_addr: ":9102"
connectors:
  edr:
    vendor: crowdstrike
    client_id: abc
    client_secret: def
  firewall:
    vendor: paloalto
    host: fw.example.internal
    port: 8443
breaker:
  timeout: 10s
  failure_threshold: 3
governance:
  actions:
    denied_actions: [disable_accounts]
  redaction:
    - pattern: 'password=\S+'
      replace: password=***
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if !cfg.AutoAdvance || !cfg.RequireApprovals {
		t.Error("auto_advance and require_approvals should be set")
	}
	if cfg.Connectors.EDR.Vendor != "crowdstrike" || cfg.Connectors.Firewall.Port != 8443 {
		t.Errorf("connectors = %+v", cfg.Connectors)
	}
	if cfg.Breaker.Timeout != 10*time.Second || cfg.Breaker.FailureThreshold != 3 {
		t.Errorf("breaker = %+v", cfg.Breaker)
	}
	// Unset breaker fields keep their defaults.
	if cfg.Breaker.MaxRequests != 1 {
		t.Errorf("max_requests = %d, want default 1", cfg.Breaker.MaxRequests)
	}
	if got := strings.Join(cfg.Governance.Actions.DeniedActions, ","); got != "disable_accounts" {
		t.Errorf("denied = %q", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", "colour: blue\n", "field colour not found"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"bad vendor", "connectors:\n  edr:\n    vendor: acme\n", "not supported"},
		{"crowdstrike creds", "connectors:\n  edr:\n    vendor: crowdstrike\n", "client_id"},
		{"bad redaction", "governance:\n  redaction:\n    - pattern: '('\n", "redaction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Connectors.EDR.Vendor != "simulated" || cfg.Log.Level != "info" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"IRFLOW_LOG_LEVEL":                 "warn",
		"IRFLOW_AUTO_ADVANCE":              "true",
		"IRFLOW_FIREWALL_VENDOR":           "ciscoasa",
		"IRFLOW_FIREWALL_PORT":             "8443",
		"IRFLOW_BREAKER_TIMEOUT":           "45s",
		"IRFLOW_BREAKER_FAILURE_THRESHOLD": "7",
		"IRFLOW_DENIED_ACTIONS":            "block_ip, disable_accounts",
		"IRFLOW_METRICS_ADDR":              "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.MetricsAddr = ":9102"
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "warn" || !cfg.AutoAdvance {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Connectors.Firewall.Vendor != "ciscoasa" || cfg.Connectors.Firewall.Port != 8443 {
		t.Errorf("firewall = %+v", cfg.Connectors.Firewall)
	}
	if cfg.Breaker.Timeout != 45*time.Second || cfg.Breaker.FailureThreshold != 7 {
		t.Errorf("breaker = %+v", cfg.Breaker)
	}
	if got := strings.Join(cfg.Governance.Actions.DeniedActions, "|"); got != "block_ip|disable_accounts" {
		t.Errorf("denied = %q", got)
	}
	if cfg.MetricsAddr != ":9102" {
		t.Error("empty env values must not override")
	}

	env = map[string]string{"IRFLOW_AUTO_ADVANCE": "maybe", "IRFLOW_FIREWALL_PORT": "x"}
	err := Default().ApplyEnv(lookup)
	if err == nil || !strings.Contains(err.Error(), "IRFLOW_AUTO_ADVANCE") || !strings.Contains(err.Error(), "IRFLOW_FIREWALL_PORT") {
		t.Errorf("err = %v, want both bad keys", err)
	}
}
