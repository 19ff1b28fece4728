// Package dispatch translates symbolic playbook actions into calls on an
// injected Capability. It holds no network logic of its own.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ormasoftchile/irflow/pkg/connectors"
	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/playbook"
)

// Capability is the operation set the dispatcher drives. Toolkit adapts
// connectors to it; Guard wraps one in circuit breakers.
type Capability interface {
	IsolateEndpoints(ctx context.Context, assets []string, reason string) ([]connectors.Result, error)
	RestoreEndpoints(ctx context.Context, assets []string) ([]connectors.Result, error)
	ScanNetwork(ctx context.Context, target string) (connectors.Result, error)
	DisableAccounts(ctx context.Context, accounts []string) ([]connectors.Result, error)
	EnableAccounts(ctx context.Context, accounts []string) ([]connectors.Result, error)
	BlockIP(ctx context.Context, ip, reason string, duration time.Duration) (connectors.Result, error)
	UnblockIP(ctx context.Context, ip string) (connectors.Result, error)
	EndpointThreats(ctx context.Context, assets []string, tr connectors.TimeRange) ([]connectors.Threat, error)
	TrafficLogs(ctx context.Context, tr connectors.TimeRange, filters map[string]string) ([]connectors.TrafficLog, error)
	FileDetails(ctx context.Context, hashes []string) ([]connectors.FileDetails, error)
	BlockedIPs(ctx context.Context) ([]connectors.BlockedIP, error)
}

// ActionResult is the outcome of one dispatched action.
type ActionResult struct {
	Action   string
	Success  bool
	Message  string
	Targets  []string
	Results  []connectors.Result
	Evidence []incident.Evidence
}

// Default collection windows.
const (
	DefaultThreatWindow  = 24 * time.Hour
	DefaultTrafficWindow = 24 * time.Hour
)

// Dispatcher routes actions to a Capability.
type Dispatcher struct {
	cap Capability
	now func() time.Time
}

// New returns a dispatcher over c.
func New(c Capability) *Dispatcher {
	return &Dispatcher{cap: c, now: time.Now}
}

// WithClock overrides the clock used for collection windows and evidence
// timestamps.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch executes a single action against the targets it resolves from v.
//
// An unknown action name or an action that resolves no targets yields
// Success=false and a nil error. A capability failure yields Success=false
// and the (joined) capability error; every target is still attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, a playbook.Action, v incident.View) (ActionResult, error) {
	res := ActionResult{Action: a.Name}
	if !playbook.IsKnownAction(a.Name) {
		res.Message = "unknown action: " + a.Name
		return res, nil
	}

	targets := a.Target.Resolve(v)
	res.Targets = targets
	// collect_blocked_ips without a target snapshots the whole blocklist.
	wholeList := a.Name == playbook.ActionCollectBlockedIPs && a.Target.IsZero()
	if len(targets) == 0 && !wholeList {
		res.Message = fmt.Sprintf("no targets resolved for %s (target %s)", a.Name, a.Target)
		return res, nil
	}

	reason := a.Params["reason"]
	if reason == "" {
		reason = "incident " + v.ID
	}

	var err error
	switch a.Name {
	case playbook.ActionIsolateEndpoint:
		res.Results, err = d.cap.IsolateEndpoints(ctx, targets, reason)
	case playbook.ActionRestoreEndpoint:
		res.Results, err = d.cap.RestoreEndpoints(ctx, targets)
	case playbook.ActionDisableAccounts:
		res.Results, err = d.cap.DisableAccounts(ctx, targets)
	case playbook.ActionEnableAccounts:
		res.Results, err = d.cap.EnableAccounts(ctx, targets)
	case playbook.ActionScanNetwork:
		res.Results, err = eachTarget(targets, func(t string) (connectors.Result, error) {
			return d.cap.ScanNetwork(ctx, t)
		})
	case playbook.ActionBlockIP, playbook.ActionIsolateNetworkSegment:
		dur, perr := duration(a.Params["duration"], 0)
		if perr != nil {
			res.Message = perr.Error()
			return res, nil
		}
		res.Results, err = eachTarget(targets, func(t string) (connectors.Result, error) {
			return d.cap.BlockIP(ctx, t, reason, dur)
		})
	case playbook.ActionUnblockIP:
		res.Results, err = eachTarget(targets, func(t string) (connectors.Result, error) {
			return d.cap.UnblockIP(ctx, t)
		})
	case playbook.ActionCollectEndpointThreats:
		err = d.collectThreats(ctx, a, targets, &res)
	case playbook.ActionCollectTrafficLogs:
		err = d.collectTraffic(ctx, a, targets, &res)
	case playbook.ActionCollectFileDetails:
		err = d.collectFiles(ctx, targets, &res)
	case playbook.ActionCollectBlockedIPs:
		err = d.collectBlocked(ctx, targets, &res)
	}

	if err != nil {
		res.Success = false
		res.Message = err.Error()
		return res, err
	}
	res.Success = allSucceeded(res.Results)
	if res.Message == "" {
		res.Message = summarize(res)
	}
	return res, nil
}

func (d *Dispatcher) collectThreats(ctx context.Context, a playbook.Action, targets []string, res *ActionResult) error {
	window, err := duration(a.Params["window"], DefaultThreatWindow)
	if err != nil {
		res.Message = err.Error()
		return nil
	}
	now := d.now()
	threats, err := d.cap.EndpointThreats(ctx, targets, connectors.Last(window, now))
	if err != nil {
		return err
	}
	res.Evidence = append(res.Evidence, incident.Evidence{
		Kind:        "endpoint_threats",
		Source:      "edr",
		CollectedAt: now,
		Data: map[string]any{
			"endpoints": targets,
			"window":    window.String(),
			"count":     len(threats),
			"threats":   threats,
		},
	})
	res.Message = fmt.Sprintf("collected %d threat(s) from %d endpoint(s)", len(threats), len(targets))
	res.Success = true
	return nil
}

func (d *Dispatcher) collectTraffic(ctx context.Context, a playbook.Action, targets []string, res *ActionResult) error {
	window, err := duration(a.Params["window"], DefaultTrafficWindow)
	if err != nil {
		res.Message = err.Error()
		return nil
	}
	now := d.now()
	tr := connectors.Last(window, now)

	var (
		all  []connectors.TrafficLog
		errs []error
	)
	for _, ip := range targets {
		logs, err := d.cap.TrafficLogs(ctx, tr, map[string]string{"src": ip})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ip, err))
			continue
		}
		all = append(all, logs...)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	res.Evidence = append(res.Evidence, incident.Evidence{
		Kind:        "traffic_logs",
		Source:      "firewall",
		CollectedAt: now,
		Data: map[string]any{
			"sources": targets,
			"window":  window.String(),
			"count":   len(all),
			"logs":    all,
		},
	})
	res.Message = fmt.Sprintf("collected %d traffic record(s) for %d source(s)", len(all), len(targets))
	res.Success = true
	return nil
}

func (d *Dispatcher) collectFiles(ctx context.Context, hashes []string, res *ActionResult) error {
	files, err := d.cap.FileDetails(ctx, hashes)
	if err != nil && len(files) == 0 {
		return err
	}
	res.Evidence = append(res.Evidence, incident.Evidence{
		Kind:        "file_details",
		Source:      "edr",
		CollectedAt: d.now(),
		Data: map[string]any{
			"hashes": hashes,
			"count":  len(files),
			"files":  files,
		},
	})
	if err != nil {
		return err
	}
	res.Message = fmt.Sprintf("collected details for %d file(s)", len(files))
	res.Success = true
	return nil
}

// collectBlocked records the firewall's active blocks, narrowed to
// targets when any were given.
func (d *Dispatcher) collectBlocked(ctx context.Context, targets []string, res *ActionResult) error {
	blocked, err := d.cap.BlockedIPs(ctx)
	if err != nil {
		return err
	}
	if len(targets) > 0 {
		want := make(map[string]bool, len(targets))
		for _, t := range targets {
			want[t] = true
		}
		kept := blocked[:0]
		for _, b := range blocked {
			if want[b.IP] {
				kept = append(kept, b)
			}
		}
		blocked = kept
	}
	res.Evidence = append(res.Evidence, incident.Evidence{
		Kind:        "blocked_ips",
		Source:      "firewall",
		CollectedAt: d.now(),
		Data: map[string]any{
			"count":   len(blocked),
			"blocked": blocked,
		},
	})
	res.Message = fmt.Sprintf("%d address(es) blocked at the firewall", len(blocked))
	res.Success = true
	return nil
}

// eachTarget calls fn for every target, keeping going past failures.
func eachTarget(targets []string, fn func(string) (connectors.Result, error)) ([]connectors.Result, error) {
	results := make([]connectors.Result, 0, len(targets))
	var errs []error
	for _, t := range targets {
		r, err := fn(t)
		if r.Target == "" {
			r.Target = t
		}
		if err != nil {
			r.Success = false
			errs = append(errs, err)
		}
		results = append(results, r)
	}
	return results, errors.Join(errs...)
}

func allSucceeded(results []connectors.Result) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Success {
			return false
		}
	}
	return true
}

func summarize(res ActionResult) string {
	if res.Success {
		return fmt.Sprintf("%s: %s", res.Action, strings.Join(res.Targets, ", "))
	}
	var failed []string
	for _, r := range res.Results {
		if !r.Success {
			msg := r.Target
			if r.Message != "" {
				msg += " (" + r.Message + ")"
			}
			failed = append(failed, msg)
		}
	}
	return fmt.Sprintf("%s failed for %s", res.Action, strings.Join(failed, ", "))
}

// duration parses a Go duration param, returning def when empty.
func duration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
