package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ormasoftchile/irflow/pkg/connectors"
)

// ErrNoConnector is returned when an action needs a connector the toolkit
// was built without.
var ErrNoConnector = errors.New("no connector configured")

// Toolkit adapts vendor connectors to Capability. Any field may be nil;
// calls that need a missing connector fail with ErrNoConnector.
type Toolkit struct {
	EDR       connectors.EDR
	Firewall  connectors.Firewall
	Scanner   connectors.Scanner
	Directory connectors.Directory
}

var _ Capability = (*Toolkit)(nil)

// SimulatedToolkit wires every capability to one simulated estate.
func SimulatedToolkit(sim *connectors.Simulated) *Toolkit {
	return &Toolkit{EDR: sim, Firewall: sim, Scanner: sim, Directory: sim}
}

func missing(kind string) error {
	return fmt.Errorf("%s: %w", kind, ErrNoConnector)
}

func (t *Toolkit) IsolateEndpoints(ctx context.Context, assets []string, reason string) ([]connectors.Result, error) {
	if t.EDR == nil {
		return nil, missing("edr")
	}
	return eachTarget(assets, func(a string) (connectors.Result, error) {
		return t.EDR.IsolateEndpoint(ctx, a, reason)
	})
}

func (t *Toolkit) RestoreEndpoints(ctx context.Context, assets []string) ([]connectors.Result, error) {
	if t.EDR == nil {
		return nil, missing("edr")
	}
	return eachTarget(assets, func(a string) (connectors.Result, error) {
		return t.EDR.RestoreEndpoint(ctx, a)
	})
}

func (t *Toolkit) ScanNetwork(ctx context.Context, target string) (connectors.Result, error) {
	if t.Scanner == nil {
		return connectors.Result{Target: target}, missing("scanner")
	}
	return t.Scanner.ScanNetwork(ctx, target)
}

func (t *Toolkit) DisableAccounts(ctx context.Context, accounts []string) ([]connectors.Result, error) {
	if t.Directory == nil {
		return nil, missing("directory")
	}
	return eachTarget(accounts, func(a string) (connectors.Result, error) {
		return t.Directory.DisableAccount(ctx, a)
	})
}

func (t *Toolkit) EnableAccounts(ctx context.Context, accounts []string) ([]connectors.Result, error) {
	if t.Directory == nil {
		return nil, missing("directory")
	}
	return eachTarget(accounts, func(a string) (connectors.Result, error) {
		return t.Directory.EnableAccount(ctx, a)
	})
}

func (t *Toolkit) BlockIP(ctx context.Context, ip, reason string, duration time.Duration) (connectors.Result, error) {
	if t.Firewall == nil {
		return connectors.Result{Target: ip}, missing("firewall")
	}
	return t.Firewall.BlockIP(ctx, ip, reason, duration)
}

func (t *Toolkit) UnblockIP(ctx context.Context, ip string) (connectors.Result, error) {
	if t.Firewall == nil {
		return connectors.Result{Target: ip}, missing("firewall")
	}
	return t.Firewall.UnblockIP(ctx, ip)
}

// EndpointThreats merges detections across assets. Per-asset failures are
// joined; threats from the assets that answered are still returned.
func (t *Toolkit) EndpointThreats(ctx context.Context, assets []string, tr connectors.TimeRange) ([]connectors.Threat, error) {
	if t.EDR == nil {
		return nil, missing("edr")
	}
	var (
		out  []connectors.Threat
		errs []error
	)
	for _, a := range assets {
		th, err := t.EDR.EndpointThreats(ctx, a, tr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, th...)
	}
	return out, errors.Join(errs...)
}

// FileDetails looks up every hash. Per-hash failures are joined; details
// for the hashes that answered are still returned.
func (t *Toolkit) FileDetails(ctx context.Context, hashes []string) ([]connectors.FileDetails, error) {
	if t.EDR == nil {
		return nil, missing("edr")
	}
	var (
		out  []connectors.FileDetails
		errs []error
	)
	for _, h := range hashes {
		fd, err := t.EDR.FileDetails(ctx, h)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, fd)
	}
	return out, errors.Join(errs...)
}

func (t *Toolkit) BlockedIPs(ctx context.Context) ([]connectors.BlockedIP, error) {
	if t.Firewall == nil {
		return nil, missing("firewall")
	}
	return t.Firewall.BlockedIPs(ctx)
}

func (t *Toolkit) TrafficLogs(ctx context.Context, tr connectors.TimeRange, filters map[string]string) ([]connectors.TrafficLog, error) {
	if t.Firewall == nil {
		return nil, missing("firewall")
	}
	return t.Firewall.TrafficLogs(ctx, tr, filters)
}
