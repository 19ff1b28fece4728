package connectors

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Call is one recorded Simulated invocation.
type Call struct {
	Op     string
	Target string
	At     time.Time
}

// Simulated implements every capability in memory. It records calls,
// keeps block and isolation state, and can be told to fail specific
// operations. Safe for concurrent use.
type Simulated struct {
	mu       sync.Mutex
	calls    []Call
	isolated map[string]bool
	disabled map[string]bool
	blocked  map[string]BlockedIP
	threats  map[string][]Threat
	files    map[string]FileDetails
	traffic  []TrafficLog
	failures map[string]error
	delay    time.Duration
	now      func() time.Time
}

var (
	_ EDR       = (*Simulated)(nil)
	_ Firewall  = (*Simulated)(nil)
	_ Scanner   = (*Simulated)(nil)
	_ Directory = (*Simulated)(nil)
)

// NewSimulated returns an empty simulated estate.
func NewSimulated() *Simulated {
	return &Simulated{
		isolated: make(map[string]bool),
		disabled: make(map[string]bool),
		blocked:  make(map[string]BlockedIP),
		threats:  make(map[string][]Threat),
		files:    make(map[string]FileDetails),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// Fail makes op fail with err. target narrows the failure to one target;
// an empty target fails every call of op. A nil err clears the entry.
func (s *Simulated) Fail(op, target string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := op + "|" + target
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

// SetDelay makes every call wait d (or until its context ends).
func (s *Simulated) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// AddFile seeds reputation data for a file hash.
func (s *Simulated) AddFile(fd FileDetails) {
	s.mu.Lock()
	s.files[fd.Hash] = fd
	s.mu.Unlock()
}

// AddThreat seeds a detection for an endpoint.
func (s *Simulated) AddThreat(t Threat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threats[t.EndpointID] = append(s.threats[t.EndpointID], t)
}

// AddTraffic seeds firewall traffic records.
func (s *Simulated) AddTraffic(logs ...TrafficLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traffic = append(s.traffic, logs...)
}

// Calls returns a copy of the call log.
func (s *Simulated) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsFor returns the targets of every recorded call of op, in order.
func (s *Simulated) CallsFor(op string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if c.Op == op {
			out = append(out, c.Target)
		}
	}
	return out
}

// Isolated reports whether the endpoint is currently isolated.
func (s *Simulated) Isolated(endpointID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isolated[endpointID]
}

// Disabled reports whether the account is currently disabled.
func (s *Simulated) Disabled(account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled[account]
}

// record logs the call and returns the configured failure, if any.
func (s *Simulated) record(ctx context.Context, op, target string) error {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: op, Target: target, At: s.now()})
	err := s.failures[op+"|"+target]
	if err == nil {
		err = s.failures[op+"|"]
	}
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if err != nil {
		return fmt.Errorf("simulated %s %s: %w", op, target, err)
	}
	return ctx.Err()
}

// Connect always succeeds unless a "connect" failure is configured.
func (s *Simulated) Connect(ctx context.Context) error {
	return s.record(ctx, "connect", "")
}

func (s *Simulated) IsolateEndpoint(ctx context.Context, endpointID, reason string) (Result, error) {
	if err := s.record(ctx, "isolate_endpoint", endpointID); err != nil {
		return Result{Target: endpointID}, err
	}
	s.mu.Lock()
	s.isolated[endpointID] = true
	s.mu.Unlock()
	return Result{Success: true, Target: endpointID, Message: reason}, nil
}

func (s *Simulated) RestoreEndpoint(ctx context.Context, endpointID string) (Result, error) {
	if err := s.record(ctx, "restore_endpoint", endpointID); err != nil {
		return Result{Target: endpointID}, err
	}
	s.mu.Lock()
	delete(s.isolated, endpointID)
	s.mu.Unlock()
	return Result{Success: true, Target: endpointID}, nil
}

func (s *Simulated) EndpointThreats(ctx context.Context, endpointID string, tr TimeRange) ([]Threat, error) {
	if err := s.record(ctx, "endpoint_threats", endpointID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Threat
	for _, t := range s.threats[endpointID] {
		if inRange(t.DetectedAt, tr) {
			out = append(out, t)
		}
	}
	return out, nil
}

// FileDetails returns the seeded reputation for hash, or an "unknown"
// verdict.
func (s *Simulated) FileDetails(ctx context.Context, hash string) (FileDetails, error) {
	if err := s.record(ctx, "file_details", hash); err != nil {
		return FileDetails{Hash: hash}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if fd, ok := s.files[hash]; ok {
		return fd, nil
	}
	return FileDetails{Hash: hash, Verdict: "unknown"}, nil
}

func (s *Simulated) BlockIP(ctx context.Context, ip, reason string, duration time.Duration) (Result, error) {
	if err := s.record(ctx, "block_ip", ip); err != nil {
		return Result{Target: ip}, err
	}
	if duration <= 0 {
		duration = DefaultBlockDuration
	}
	s.mu.Lock()
	s.blocked[ip] = BlockedIP{IP: ip, Reason: reason, Expires: s.now().Add(duration)}
	s.mu.Unlock()
	return Result{Success: true, Target: ip, Message: reason}, nil
}

func (s *Simulated) UnblockIP(ctx context.Context, ip string) (Result, error) {
	if err := s.record(ctx, "unblock_ip", ip); err != nil {
		return Result{Target: ip}, err
	}
	s.mu.Lock()
	delete(s.blocked, ip)
	s.mu.Unlock()
	return Result{Success: true, Target: ip}, nil
}

func (s *Simulated) BlockedIPs(ctx context.Context) ([]BlockedIP, error) {
	if err := s.record(ctx, "blocked_ips", ""); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BlockedIP, 0, len(s.blocked))
	for _, b := range s.blocked {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out, nil
}

// TrafficLogs returns seeded records inside tr. Filters "src" and "dst"
// match exactly; "match" is a substring test on any field.
func (s *Simulated) TrafficLogs(ctx context.Context, tr TimeRange, filters map[string]string) ([]TrafficLog, error) {
	if err := s.record(ctx, "traffic_logs", filters["src"]); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TrafficLog
	for _, l := range s.traffic {
		if !inRange(l.Time, tr) {
			continue
		}
		if v := filters["src"]; v != "" && l.Source != v {
			continue
		}
		if v := filters["dst"]; v != "" && l.Destination != v {
			continue
		}
		if v := filters["match"]; v != "" &&
			!strings.Contains(l.Source+" "+l.Destination+" "+l.Raw, v) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Simulated) ScanNetwork(ctx context.Context, target string) (Result, error) {
	if err := s.record(ctx, "scan_network", target); err != nil {
		return Result{Target: target}, err
	}
	return Result{Success: true, Target: target, Message: "scan queued"}, nil
}

func (s *Simulated) DisableAccount(ctx context.Context, account string) (Result, error) {
	if err := s.record(ctx, "disable_account", account); err != nil {
		return Result{Target: account}, err
	}
	s.mu.Lock()
	s.disabled[account] = true
	s.mu.Unlock()
	return Result{Success: true, Target: account}, nil
}

func (s *Simulated) EnableAccount(ctx context.Context, account string) (Result, error) {
	if err := s.record(ctx, "enable_account", account); err != nil {
		return Result{Target: account}, err
	}
	s.mu.Lock()
	delete(s.disabled, account)
	s.mu.Unlock()
	return Result{Success: true, Target: account}, nil
}

// inRange treats a zero range bound as open.
func inRange(t time.Time, tr TimeRange) bool {
	if !tr.Start.IsZero() && t.Before(tr.Start) {
		return false
	}
	if !tr.End.IsZero() && t.After(tr.End) {
		return false
	}
	return true
}
