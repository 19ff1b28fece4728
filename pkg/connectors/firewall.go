package connectors

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

func managementURL(host string, port int) string {
	if port == 0 {
		port = 443
	}
	return fmt.Sprintf("https://%s:%d/api", host, port)
}

// ---------------------------------------------------------------------------
// Palo Alto Networks
// ---------------------------------------------------------------------------

// PaloAlto is a PAN-OS connector authenticated with an API key. Blocks are
// entries in a dynamic block list with a lifetime.
type PaloAlto struct {
	c *client
}

var _ Firewall = (*PaloAlto)(nil)

// NewPaloAlto creates a connector for the firewall at host:port (port 0
// means 443).
func NewPaloAlto(host, apiKey string, port int, opts ...Option) *PaloAlto {
	return newPaloAlto(managementURL(host, port), apiKey, opts)
}

func newPaloAlto(baseURL, apiKey string, opts []Option) *PaloAlto {
	p := &PaloAlto{c: newClient(baseURL, opts)}
	p.c.authorize = func(_ context.Context, req *http.Request) error {
		req.Header.Set("X-PAN-KEY", apiKey)
		return nil
	}
	return p
}

type panResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Connect checks the management API answers.
func (p *PaloAlto) Connect(ctx context.Context) error {
	return p.c.connect(ctx, "paloalto", func() error {
		return p.c.do(ctx, http.MethodGet, "/system/info", nil, nil, nil)
	})
}

// BlockIP adds ip to the block list for duration (DefaultBlockDuration when
// zero or negative).
func (p *PaloAlto) BlockIP(ctx context.Context, ip, reason string, duration time.Duration) (Result, error) {
	if duration <= 0 {
		duration = DefaultBlockDuration
	}
	body := map[string]any{
		"ip":       ip,
		"reason":   reason,
		"duration": int(duration.Seconds()),
	}
	var resp panResponse
	if err := p.c.do(ctx, http.MethodPost, "/block-list", nil, body, &resp); err != nil {
		return Result{Target: ip}, fmt.Errorf("paloalto block %s: %w", ip, err)
	}
	return panResult(ip, resp), nil
}

// UnblockIP removes ip from the block list.
func (p *PaloAlto) UnblockIP(ctx context.Context, ip string) (Result, error) {
	var resp panResponse
	if err := p.c.do(ctx, http.MethodDelete, "/block-list/"+url.PathEscape(ip), nil, nil, &resp); err != nil {
		return Result{Target: ip}, fmt.Errorf("paloalto unblock %s: %w", ip, err)
	}
	return panResult(ip, resp), nil
}

func panResult(ip string, resp panResponse) Result {
	return Result{Success: resp.Status == "success", Target: ip, Message: resp.Message}
}

// BlockedIPs lists the active block-list entries.
func (p *PaloAlto) BlockedIPs(ctx context.Context) ([]BlockedIP, error) {
	var resp struct {
		Result struct {
			Entries []BlockedIP `json:"entries"`
		} `json:"result"`
	}
	if err := p.c.do(ctx, http.MethodGet, "/block-list", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("paloalto block list: %w", err)
	}
	return resp.Result.Entries, nil
}

// TrafficLogs queries traffic logs inside tr. filters are passed through as
// query parameters (e.g. src, dst, port).
func (p *PaloAlto) TrafficLogs(ctx context.Context, tr TimeRange, filters map[string]string) ([]TrafficLog, error) {
	q := url.Values{
		"start": {tr.Start.UTC().Format(time.RFC3339)},
		"end":   {tr.End.UTC().Format(time.RFC3339)},
	}
	for k, v := range filters {
		q.Set(k, v)
	}
	var resp struct {
		Result struct {
			Logs []TrafficLog `json:"logs"`
		} `json:"result"`
	}
	if err := p.c.do(ctx, http.MethodGet, "/logs/traffic", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("paloalto traffic logs: %w", err)
	}
	return resp.Result.Logs, nil
}

// ---------------------------------------------------------------------------
// Cisco ASA
// ---------------------------------------------------------------------------

// CiscoASA drives an ASA through its REST CLI endpoint with basic auth.
// Blocks are shuns; the ASA has no native shun lifetime so duration is
// not enforced by the device.
type CiscoASA struct {
	c *client
}

var _ Firewall = (*CiscoASA)(nil)

// NewCiscoASA creates a connector for the ASA at host:port (port 0 means 443).
func NewCiscoASA(host, username, password string, port int, opts ...Option) *CiscoASA {
	return newCiscoASA(managementURL(host, port), username, password, opts)
}

func newCiscoASA(baseURL, username, password string, opts []Option) *CiscoASA {
	a := &CiscoASA{c: newClient(baseURL, opts)}
	a.c.authorize = func(_ context.Context, req *http.Request) error {
		req.SetBasicAuth(username, password)
		return nil
	}
	return a
}

// Connect checks the REST agent answers.
func (a *CiscoASA) Connect(ctx context.Context) error {
	return a.c.connect(ctx, "ciscoasa", func() error {
		return a.c.do(ctx, http.MethodGet, "/monitoring/device/components/version", nil, nil, nil)
	})
}

func (a *CiscoASA) cli(ctx context.Context, commands ...string) ([]string, error) {
	var resp struct {
		Response []string `json:"response"`
	}
	if err := a.c.do(ctx, http.MethodPost, "/cli", nil, map[string]any{"commands": commands}, &resp); err != nil {
		return nil, err
	}
	return resp.Response, nil
}

// BlockIP shuns ip.
func (a *CiscoASA) BlockIP(ctx context.Context, ip, reason string, _ time.Duration) (Result, error) {
	out, err := a.cli(ctx, "shun "+ip)
	if err != nil {
		return Result{Target: ip}, fmt.Errorf("ciscoasa shun %s: %w", ip, err)
	}
	return asaResult(ip, reason, out), nil
}

// UnblockIP removes the shun for ip.
func (a *CiscoASA) UnblockIP(ctx context.Context, ip string) (Result, error) {
	out, err := a.cli(ctx, "no shun "+ip)
	if err != nil {
		return Result{Target: ip}, fmt.Errorf("ciscoasa no shun %s: %w", ip, err)
	}
	return asaResult(ip, "", out), nil
}

// asaResult treats any "ERROR:" line in the CLI output as failure.
func asaResult(ip, msg string, out []string) Result {
	for _, line := range out {
		if strings.HasPrefix(strings.TrimSpace(line), "ERROR:") {
			return Result{Target: ip, Message: strings.TrimSpace(line)}
		}
	}
	return Result{Success: true, Target: ip, Message: msg}
}

// BlockedIPs parses `show shun` output:
//
//	shun (outside) 203.0.113.7 0.0.0.0 0 0 0
func (a *CiscoASA) BlockedIPs(ctx context.Context) ([]BlockedIP, error) {
	out, err := a.cli(ctx, "show shun")
	if err != nil {
		return nil, fmt.Errorf("ciscoasa show shun: %w", err)
	}
	var blocked []BlockedIP
	for _, chunk := range out {
		for _, line := range strings.Split(chunk, "\n") {
			fields := strings.Fields(line)
			if len(fields) >= 3 && fields[0] == "shun" {
				blocked = append(blocked, BlockedIP{IP: fields[2]})
			}
		}
	}
	return blocked, nil
}

// TrafficLogs returns buffered syslog lines. A "match" filter narrows the
// lines with an include clause; lines are returned raw.
func (a *CiscoASA) TrafficLogs(ctx context.Context, _ TimeRange, filters map[string]string) ([]TrafficLog, error) {
	cmd := "show logging"
	if m := filters["match"]; m != "" {
		cmd += " | include " + m
	}
	out, err := a.cli(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("ciscoasa show logging: %w", err)
	}
	var logs []TrafficLog
	for _, chunk := range out {
		for _, line := range strings.Split(chunk, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			logs = append(logs, TrafficLog{Raw: line, Action: asaAction(line)})
		}
	}
	return logs, nil
}

func asaAction(line string) string {
	switch {
	case strings.Contains(line, "Deny"), strings.Contains(line, "deny"):
		return "deny"
	case strings.Contains(line, "Built"):
		return "allow"
	}
	return ""
}
