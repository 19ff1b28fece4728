// Package connectors talks to the security tooling an incident response
// acts through: EDR platforms, firewalls, network scanners and identity
// directories. Each vendor implements one of the capability interfaces
// below; callers depend on the interfaces only.
package connectors

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultBlockDuration is used when a block request carries no duration.
const DefaultBlockDuration = time.Hour

// Result is the outcome of a single containment or recovery call.
type Result struct {
	Success bool   `json:"success"`
	Target  string `json:"target"`
	Message string `json:"message,omitempty"`
}

// TimeRange bounds a log or detection query.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Last returns the range [now-d, now].
func Last(d time.Duration, now time.Time) TimeRange {
	return TimeRange{Start: now.Add(-d), End: now}
}

// Threat is a detection reported by an EDR for an endpoint.
type Threat struct {
	ID         string    `json:"id"`
	EndpointID string    `json:"endpoint_id"`
	Name       string    `json:"name"`
	Severity   string    `json:"severity,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// FileDetails is EDR reputation data for a file hash.
type FileDetails struct {
	Hash    string `json:"hash"`
	Name    string `json:"name,omitempty"`
	Verdict string `json:"verdict,omitempty"`
}

// BlockedIP is an active firewall block.
type BlockedIP struct {
	IP      string    `json:"ip"`
	Reason  string    `json:"reason,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// TrafficLog is one firewall traffic record. Raw carries the vendor line
// when the device only exposes text output.
type TrafficLog struct {
	Time        time.Time `json:"time,omitempty"`
	Source      string    `json:"source,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Port        int       `json:"port,omitempty"`
	Action      string    `json:"action,omitempty"`
	Raw         string    `json:"raw,omitempty"`
}

// ---------------------------------------------------------------------------
// Capabilities
// ---------------------------------------------------------------------------

// EDR is an endpoint detection and response platform.
type EDR interface {
	Connect(ctx context.Context) error
	IsolateEndpoint(ctx context.Context, endpointID, reason string) (Result, error)
	RestoreEndpoint(ctx context.Context, endpointID string) (Result, error)
	EndpointThreats(ctx context.Context, endpointID string, tr TimeRange) ([]Threat, error)
	FileDetails(ctx context.Context, hash string) (FileDetails, error)
}

// Firewall is a perimeter or segment firewall.
type Firewall interface {
	Connect(ctx context.Context) error
	BlockIP(ctx context.Context, ip, reason string, duration time.Duration) (Result, error)
	UnblockIP(ctx context.Context, ip string) (Result, error)
	BlockedIPs(ctx context.Context) ([]BlockedIP, error)
	TrafficLogs(ctx context.Context, tr TimeRange, filters map[string]string) ([]TrafficLog, error)
}

// Scanner runs network discovery or vulnerability scans.
type Scanner interface {
	ScanNetwork(ctx context.Context, target string) (Result, error)
}

// Directory manages user accounts.
type Directory interface {
	DisableAccount(ctx context.Context, account string) (Result, error)
	EnableAccount(ctx context.Context, account string) (Result, error)
}

// ---------------------------------------------------------------------------
// Factories
// ---------------------------------------------------------------------------

// EDRConfig selects and configures an EDR connector.
type EDRConfig struct {
	Vendor       string `yaml:"vendor"`
	BaseURL      string `yaml:"base_url,omitempty"`
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	APIToken     string `yaml:"api_token,omitempty"`
}

// FirewallConfig selects and configures a firewall connector.
type FirewallConfig struct {
	Vendor   string `yaml:"vendor"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

// NewEDR builds the EDR connector named by cfg.Vendor. sim backs the
// "simulated" vendor and may be nil otherwise.
func NewEDR(cfg EDRConfig, sim *Simulated, opts ...Option) (EDR, error) {
	switch strings.ToLower(cfg.Vendor) {
	case "", "simulated":
		if sim == nil {
			sim = NewSimulated()
		}
		return sim, nil
	case "crowdstrike":
		return NewCrowdStrike(cfg.ClientID, cfg.ClientSecret, cfg.BaseURL, opts...), nil
	case "sentinelone":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("sentinelone: base_url is required")
		}
		return NewSentinelOne(cfg.APIToken, cfg.BaseURL, opts...), nil
	default:
		return nil, fmt.Errorf("unknown edr vendor %q", cfg.Vendor)
	}
}

// NewFirewall builds the firewall connector named by cfg.Vendor.
func NewFirewall(cfg FirewallConfig, sim *Simulated, opts ...Option) (Firewall, error) {
	if cfg.Insecure {
		opts = append(opts, WithInsecureTLS())
	}
	switch strings.ToLower(cfg.Vendor) {
	case "", "simulated":
		if sim == nil {
			sim = NewSimulated()
		}
		return sim, nil
	case "paloalto", "palo_alto":
		if cfg.Host == "" {
			return nil, fmt.Errorf("paloalto: host is required")
		}
		return NewPaloAlto(cfg.Host, cfg.APIKey, cfg.Port, opts...), nil
	case "ciscoasa", "cisco_asa":
		if cfg.Host == "" {
			return nil, fmt.Errorf("ciscoasa: host is required")
		}
		return NewCiscoASA(cfg.Host, cfg.Username, cfg.Password, cfg.Port, opts...), nil
	default:
		return nil, fmt.Errorf("unknown firewall vendor %q", cfg.Vendor)
	}
}
