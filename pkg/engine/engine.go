// Package engine implements the incident workflow engine: the incident
// table, per-incident sweep tasks, phase advancement and status queries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ormasoftchile/irflow/pkg/connectors"
	"github.com/ormasoftchile/irflow/pkg/dispatch"
	"github.com/ormasoftchile/irflow/pkg/governance"
	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/logging"
	"github.com/ormasoftchile/irflow/pkg/metrics"
	"github.com/ormasoftchile/irflow/pkg/playbook"
	"github.com/ormasoftchile/irflow/pkg/trace"
)

var (
	ErrNotFound          = errors.New("incident not found")
	ErrPlaybookNotFound  = playbook.ErrPlaybookNotFound
	ErrIncidentClosed    = errors.New("incident is closed")
	ErrFinalPhase        = errors.New("incident is already in the final phase")
	ErrGateBlocked       = errors.New("phase gate blocked")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidApproval   = errors.New("invalid approval")
	ErrEngineClosed      = errors.New("engine is shut down")
)

// Config configures an Engine. Every field is optional.
type Config struct {
	Logger  *zap.Logger
	Trace   *trace.Writer
	Metrics *metrics.Metrics

	// Capability receives dispatched actions. Nil uses a fresh simulated
	// estate.
	Capability dispatch.Capability

	// Catalog holds the playbooks. Nil seeds the built-ins.
	Catalog *playbook.Catalog

	// Clock supplies incident ids, detection times and record timestamps.
	Clock func() time.Time

	// AutoAdvance lets a sweep task advance the phase and sweep again
	// whenever the gate allows it.
	AutoAdvance bool

	Policy       governance.Policy
	ActionPolicy governance.ActionPolicy
	Redactor     *governance.Redactor
}

// NewIncident is the input to CreateIncident.
type NewIncident struct {
	Title          string              `json:"title"`
	Description    string              `json:"description,omitempty"`
	Severity       string              `json:"severity"`
	Type           string              `json:"incident_type"`
	AffectedAssets []string            `json:"affected_assets,omitempty"`
	Indicators     map[string][]string `json:"indicators,omitempty"`
	AssignedTo     string              `json:"assigned_to,omitempty"`
}

// Engine owns the incident table. It is safe for concurrent use.
type Engine struct {
	cfg        Config
	log        *zap.Logger
	trace      *trace.Writer
	metrics    *metrics.Metrics
	catalog    *playbook.Catalog
	dispatcher *dispatch.Dispatcher
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	ids       *incident.IDGenerator
	incidents map[string]*entry
	closed    bool
}

// entry is one row of the incident table.
//
// mu guards inc, task and active and is never held across a dispatch.
// sweep is a one-slot semaphore held for the whole of a sweep or phase
// advance, so two sweeps of the same incident never interleave. active
// cancels the sweep currently holding the slot, background or not.
type entry struct {
	mu     sync.Mutex
	inc    *incident.Incident
	task   *task
	active context.CancelFunc
	sweep  chan struct{}
}

// task is the handle of an asynchronous sweep.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (e *entry) acquire(ctx context.Context) error {
	select {
	case e.sweep <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) release() { <-e.sweep }

// stopSweep cancels the background task and whichever sweep is running.
// The caller holds e.mu.
func (e *entry) stopSweep() bool {
	stopped := false
	if e.task != nil {
		e.task.cancel()
		stopped = true
	}
	if e.active != nil {
		e.active()
		stopped = true
	}
	return stopped
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Catalog == nil {
		cfg.Catalog = playbook.NewBuiltinCatalog()
	}
	if cfg.Capability == nil {
		cfg.Capability = dispatch.SimulatedToolkit(connectors.NewSimulated())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		log:        logging.OrNop(cfg.Logger),
		trace:      cfg.Trace,
		metrics:    cfg.Metrics,
		catalog:    cfg.Catalog,
		dispatcher: dispatch.New(cfg.Capability).WithClock(cfg.Clock),
		now:        cfg.Clock,
		ctx:        ctx,
		cancel:     cancel,
		ids:        incident.NewIDGenerator(cfg.Clock),
		incidents:  make(map[string]*entry),
	}
}

// CreateIncident stores a new incident in DETECTED / DETECTION and starts
// its sweep in the background. The id is returned before the sweep runs;
// a missing playbook surfaces later as the incident's fault.
func (e *Engine) CreateIncident(ctx context.Context, req NewIncident) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return "", errors.New("incident title is required")
	}
	severity := strings.ToUpper(strings.TrimSpace(req.Severity))
	incidentType := strings.TrimSpace(req.Type)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrEngineClosed
	}
	id, err := e.ids.Next()
	for err == nil && e.incidents[id] != nil {
		id, err = e.ids.Next()
	}
	if err != nil {
		e.mu.Unlock()
		return "", err
	}
	inc := incident.New(id, title, req.Description, severity, incidentType, req.AffectedAssets, req.Indicators, e.now())
	inc.AssignedTo = req.AssignedTo
	ent := &entry{inc: inc, sweep: make(chan struct{}, 1)}
	e.incidents[id] = ent

	// The creation event must precede anything the sweep task traces.
	e.trace.Emit(trace.EventIncidentCreated, id, map[string]any{
		"title":           title,
		"incident_type":   incidentType,
		"severity":        severity,
		"affected_assets": inc.AffectedAssets,
	})
	e.startTask(ent)
	e.mu.Unlock()

	e.log.Info("incident created",
		zap.String("incident_id", id),
		zap.String("incident_type", incidentType),
		zap.String("severity", severity),
		zap.Int("affected_assets", len(inc.AffectedAssets)))
	e.metrics.IncidentCreated(incidentType, severity)
	return id, nil
}

// startTask launches the background sweep for ent. Callers hold e.mu so
// the WaitGroup never grows after Shutdown starts waiting.
func (e *Engine) startTask(ent *entry) {
	ctx, cancel := context.WithCancel(e.ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	ent.mu.Lock()
	ent.task = t
	ent.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(t.done)
		defer cancel()
		e.runTask(ctx, ent)
	}()
}

func (e *Engine) lookup(id string) (*entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ent, ok := e.incidents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ent, nil
}

// GetIncidentStatus returns a snapshot of the incident as of the call.
func (e *Engine) GetIncidentStatus(id string) (incident.Snapshot, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return incident.Snapshot{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.inc.Snapshot(), nil
}

// List returns a snapshot of every incident, ordered by id.
func (e *Engine) List() []incident.Snapshot {
	e.mu.RLock()
	entries := make([]*entry, 0, len(e.incidents))
	for _, ent := range e.incidents {
		entries = append(entries, ent)
	}
	e.mu.RUnlock()

	out := make([]incident.Snapshot, 0, len(entries))
	for _, ent := range entries {
		ent.mu.Lock()
		out = append(out, ent.inc.Snapshot())
		ent.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Wait blocks until the incident's background sweep task has finished.
func (e *Engine) Wait(ctx context.Context, id string) error {
	ent, err := e.lookup(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	t := ent.task
	ent.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the incident's background sweep task and any synchronous
// sweep in progress. The sweep stops before its next action; an action
// already in flight sees its context cancelled.
func (e *Engine) Cancel(id string) error {
	ent, err := e.lookup(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	stopped := ent.stopSweep()
	ent.mu.Unlock()
	if stopped {
		e.log.Info("sweep cancelled", zap.String("incident_id", id))
	}
	return nil
}

// RegisterPlaybook validates steps and stores them for incidentType,
// replacing any existing playbook.
func (e *Engine) RegisterPlaybook(incidentType string, steps []playbook.Step) error {
	incidentType = strings.TrimSpace(incidentType)
	if incidentType == "" {
		return errors.New("incident type is required")
	}
	var errs []error
	for _, ve := range playbook.Validate(steps) {
		if ve.Severity == "warning" {
			e.log.Warn("playbook warning",
				zap.String("incident_type", incidentType),
				zap.String("path", ve.Path),
				zap.String("message", ve.Message))
			continue
		}
		errs = append(errs, ve)
	}
	if len(errs) > 0 {
		return fmt.Errorf("playbook %q: %w", incidentType, errors.Join(errs...))
	}
	e.catalog.Register(incidentType, steps)
	e.log.Info("playbook registered",
		zap.String("incident_type", incidentType),
		zap.Int("steps", len(steps)))
	return nil
}

// Playbooks returns the registered incident types, sorted.
func (e *Engine) Playbooks() []string {
	return e.catalog.Types()
}

// Playbook returns a copy of the steps registered for incidentType.
func (e *Engine) Playbook(incidentType string) ([]playbook.Step, error) {
	return e.catalog.Lookup(incidentType)
}

// Shutdown refuses new incidents, cancels every sweep task and waits for
// them to stop or for ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
