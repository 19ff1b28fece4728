// Package config loads the irflow configuration file and applies IRFLOW_*
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/irflow/pkg/connectors"
	"github.com/ormasoftchile/irflow/pkg/dispatch"
	"github.com/ormasoftchile/irflow/pkg/governance"
	"github.com/ormasoftchile/irflow/pkg/logging"
)

// Config is the top-level configuration document.
type Config struct {
	Log              Log                      `yaml:"log"`
	Trace            string                   `yaml:"trace,omitempty"`
	Playbooks        string                   `yaml:"playbooks,omitempty"`
	AutoAdvance      bool                     `yaml:"auto_advance"`
	RequireApprovals bool                     `yaml:"require_approvals"`
	MetricsAddr      string                   `yaml:"metrics_addr,omitempty"`
	Connectors       Connectors               `yaml:"connectors"`
	Breaker          dispatch.BreakerSettings `yaml:"breaker"`
	Governance       Governance               `yaml:"governance"`
}

// Log selects the logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output,omitempty"`
}

// Options converts to logging options.
func (l Log) Options() logging.Options {
	return logging.Options{Level: l.Level, Format: l.Format, Output: l.Output}
}

// Connectors selects the vendor integrations.
type Connectors struct {
	EDR      connectors.EDRConfig      `yaml:"edr"`
	Firewall connectors.FirewallConfig `yaml:"firewall"`
}

// Governance restricts automated actions and scrubs recorded text.
type Governance struct {
	Actions   governance.ActionPolicy    `yaml:"actions"`
	Redaction []governance.RedactionRule `yaml:"redaction,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log:     Log{Level: "info", Format: "console"},
		Breaker: dispatch.DefaultBreakerSettings,
		Connectors: Connectors{
			EDR:      connectors.EDRConfig{Vendor: "simulated"},
			Firewall: connectors.FirewallConfig{Vendor: "simulated"},
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(bytes.NewReader(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IRFLOW_"

// ApplyEnv overrides fields from the environment read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_OUTPUT", &c.Log.Output)
	str("TRACE", &c.Trace)
	str("PLAYBOOKS", &c.Playbooks)
	boolean("AUTO_ADVANCE", &c.AutoAdvance)
	boolean("REQUIRE_APPROVALS", &c.RequireApprovals)
	str("METRICS_ADDR", &c.MetricsAddr)

	str("EDR_VENDOR", &c.Connectors.EDR.Vendor)
	str("EDR_BASE_URL", &c.Connectors.EDR.BaseURL)
	str("EDR_CLIENT_ID", &c.Connectors.EDR.ClientID)
	str("EDR_CLIENT_SECRET", &c.Connectors.EDR.ClientSecret)
	str("EDR_API_TOKEN", &c.Connectors.EDR.APIToken)

	str("FIREWALL_VENDOR", &c.Connectors.Firewall.Vendor)
	str("FIREWALL_HOST", &c.Connectors.Firewall.Host)
	integer("FIREWALL_PORT", &c.Connectors.Firewall.Port)
	str("FIREWALL_API_KEY", &c.Connectors.Firewall.APIKey)
	str("FIREWALL_USERNAME", &c.Connectors.Firewall.Username)
	str("FIREWALL_PASSWORD", &c.Connectors.Firewall.Password)
	boolean("FIREWALL_INSECURE", &c.Connectors.Firewall.Insecure)

	duration("BREAKER_TIMEOUT", &c.Breaker.Timeout)
	duration("BREAKER_INTERVAL", &c.Breaker.Interval)
	if v, ok := lookup(EnvPrefix + "BREAKER_FAILURE_THRESHOLD"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBREAKER_FAILURE_THRESHOLD: %w", EnvPrefix, err))
		} else {
			c.Breaker.FailureThreshold = uint32(n)
		}
	}

	if v, ok := lookup(EnvPrefix + "DENIED_ACTIONS"); ok && v != "" {
		c.Governance.Actions.DeniedActions = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "ALLOWED_ACTIONS"); ok && v != "" {
		c.Governance.Actions.AllowedActions = splitList(v)
	}
	return errors.Join(errs...)
}

// Validate reports configuration errors that would only surface later.
func (c *Config) Validate() error {
	var problems []string
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be console or json", c.Log.Format))
	}
	switch strings.ToLower(c.Connectors.EDR.Vendor) {
	case "", "simulated", "sentinelone":
	case "crowdstrike":
		if c.Connectors.EDR.ClientID == "" || c.Connectors.EDR.ClientSecret == "" {
			problems = append(problems, "connectors.edr: crowdstrike needs client_id and client_secret")
		}
	default:
		problems = append(problems, fmt.Sprintf("connectors.edr.vendor %q is not supported", c.Connectors.EDR.Vendor))
	}
	switch strings.ToLower(c.Connectors.Firewall.Vendor) {
	case "", "simulated", "paloalto", "palo_alto", "ciscoasa", "cisco_asa":
	default:
		problems = append(problems, fmt.Sprintf("connectors.firewall.vendor %q is not supported", c.Connectors.Firewall.Vendor))
	}
	if _, err := governance.NewRedactor(c.Governance.Redaction); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
