package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/ormasoftchile/irflow/pkg/connectors"
)

// BreakerSettings configures the per-connector circuit breakers.
type BreakerSettings struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

// DefaultBreakerSettings trips after five consecutive failures and probes
// again after thirty seconds.
var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:      1,
	Interval:         time.Minute,
	Timeout:          30 * time.Second,
	FailureThreshold: 5,
}

// guarded wraps each capability group (edr, firewall, scanner, directory)
// in its own breaker so one failing vendor does not stop the others.
type guarded struct {
	next      Capability
	edr       *gobreaker.CircuitBreaker
	firewall  *gobreaker.CircuitBreaker
	scanner   *gobreaker.CircuitBreaker
	directory *gobreaker.CircuitBreaker
}

// Guard wraps c so every call passes through a circuit breaker. While a
// breaker is open calls fail fast with gobreaker.ErrOpenState. Context
// cancellation does not count as a failure.
func Guard(c Capability, s BreakerSettings, logger *zap.Logger) Capability {
	if logger == nil {
		logger = zap.NewNop()
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultBreakerSettings.FailureThreshold
	}
	newCB := func(name string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: s.MaxRequests,
			Interval:    s.Interval,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("connector circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrNoConnector)
			},
		})
	}
	return &guarded{
		next:      c,
		edr:       newCB("edr"),
		firewall:  newCB("firewall"),
		scanner:   newCB("scanner"),
		directory: newCB("directory"),
	}
}

func run[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	out, _ := v.(T)
	return out, err
}

func (g *guarded) IsolateEndpoints(ctx context.Context, assets []string, reason string) ([]connectors.Result, error) {
	return run(g.edr, func() ([]connectors.Result, error) { return g.next.IsolateEndpoints(ctx, assets, reason) })
}

func (g *guarded) RestoreEndpoints(ctx context.Context, assets []string) ([]connectors.Result, error) {
	return run(g.edr, func() ([]connectors.Result, error) { return g.next.RestoreEndpoints(ctx, assets) })
}

func (g *guarded) EndpointThreats(ctx context.Context, assets []string, tr connectors.TimeRange) ([]connectors.Threat, error) {
	return run(g.edr, func() ([]connectors.Threat, error) { return g.next.EndpointThreats(ctx, assets, tr) })
}

func (g *guarded) ScanNetwork(ctx context.Context, target string) (connectors.Result, error) {
	return run(g.scanner, func() (connectors.Result, error) { return g.next.ScanNetwork(ctx, target) })
}

func (g *guarded) DisableAccounts(ctx context.Context, accounts []string) ([]connectors.Result, error) {
	return run(g.directory, func() ([]connectors.Result, error) { return g.next.DisableAccounts(ctx, accounts) })
}

func (g *guarded) EnableAccounts(ctx context.Context, accounts []string) ([]connectors.Result, error) {
	return run(g.directory, func() ([]connectors.Result, error) { return g.next.EnableAccounts(ctx, accounts) })
}

func (g *guarded) BlockIP(ctx context.Context, ip, reason string, duration time.Duration) (connectors.Result, error) {
	return run(g.firewall, func() (connectors.Result, error) { return g.next.BlockIP(ctx, ip, reason, duration) })
}

func (g *guarded) UnblockIP(ctx context.Context, ip string) (connectors.Result, error) {
	return run(g.firewall, func() (connectors.Result, error) { return g.next.UnblockIP(ctx, ip) })
}

func (g *guarded) TrafficLogs(ctx context.Context, tr connectors.TimeRange, filters map[string]string) ([]connectors.TrafficLog, error) {
	return run(g.firewall, func() ([]connectors.TrafficLog, error) { return g.next.TrafficLogs(ctx, tr, filters) })
}

func (g *guarded) FileDetails(ctx context.Context, hashes []string) ([]connectors.FileDetails, error) {
	return run(g.edr, func() ([]connectors.FileDetails, error) { return g.next.FileDetails(ctx, hashes) })
}

func (g *guarded) BlockedIPs(ctx context.Context) ([]connectors.BlockedIP, error) {
	return run(g.firewall, func() ([]connectors.BlockedIP, error) { return g.next.BlockedIPs(ctx) })
}
