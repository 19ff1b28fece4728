package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ormasoftchile/irflow/pkg/eval"
	"github.com/ormasoftchile/irflow/pkg/governance"
	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/playbook"
	"github.com/ormasoftchile/irflow/pkg/trace"
)

// SweepReport describes one pass over the current phase.
type SweepReport struct {
	SweepID    string                  `json:"sweep_id"`
	IncidentID string                  `json:"incident_id"`
	Phase      incident.Phase          `json:"phase"`
	Executed   []string                `json:"executed"`
	Skipped    []SkippedStep           `json:"skipped,omitempty"`
	Actions    []incident.ActionRecord `json:"actions,omitempty"`
	Cancelled  bool                    `json:"cancelled,omitempty"`
	Duration   time.Duration           `json:"duration"`
}

// SkippedStep is a current-phase step the sweep did not run.
type SkippedStep struct {
	StepID string `json:"step_id"`
	Reason string `json:"reason"`
}

// Sweep runs one synchronous sweep of the incident's current phase. It
// waits for any sweep already running on the incident.
func (e *Engine) Sweep(ctx context.Context, id string) (*SweepReport, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := ent.acquire(ctx); err != nil {
		return nil, err
	}
	defer ent.release()
	return e.sweepLocked(ctx, ent)
}

// runTask is the body of a background sweep task.
func (e *Engine) runTask(ctx context.Context, ent *entry) {
	if err := ent.acquire(ctx); err != nil {
		ent.mu.Lock()
		ent.inc.Sweep = incident.SweepCancelled
		ent.mu.Unlock()
		return
	}
	defer ent.release()

	for {
		rep, err := e.sweepLocked(ctx, ent)
		if err != nil || rep.Cancelled || !e.cfg.AutoAdvance {
			return
		}
		if _, err := e.advanceLocked(ent); err != nil {
			if !errors.Is(err, ErrFinalPhase) {
				e.log.Debug("auto-advance stopped",
					zap.String("incident_id", rep.IncidentID),
					zap.Error(err))
			}
			return
		}
	}
}

// sweepLocked walks the playbook once, in catalog order, running every
// current-phase step that has not run, whose dependencies have run and
// whose guard holds. Skipped steps are not retried within the pass. The
// caller holds the entry's sweep slot.
func (e *Engine) sweepLocked(ctx context.Context, ent *entry) (*SweepReport, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ent.mu.Lock()
	inc := ent.inc
	if inc.Status == incident.StatusClosed {
		ent.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrIncidentClosed, inc.ID)
	}
	ent.active = cancel
	defer func() {
		ent.mu.Lock()
		ent.active = nil
		ent.mu.Unlock()
	}()
	report := &SweepReport{SweepID: uuid.NewString(), IncidentID: inc.ID, Phase: inc.Phase, Executed: []string{}}
	incidentType := inc.Type
	if ctx.Err() != nil {
		inc.Sweep = incident.SweepCancelled
		ent.mu.Unlock()
		report.Cancelled = true
		return report, nil
	}
	inc.Sweep = incident.SweepRunning
	ent.mu.Unlock()

	log := e.log.With(
		zap.String("incident_id", report.IncidentID),
		zap.String("sweep_id", report.SweepID),
		zap.String("phase", report.Phase.String()))

	steps, err := e.catalog.Lookup(incidentType)
	if err != nil {
		ent.mu.Lock()
		inc.Sweep = incident.SweepFailed
		inc.Fault = err.Error()
		ent.mu.Unlock()

		report.Duration = time.Since(start)
		log.Error("playbook lookup failed", zap.String("incident_type", incidentType), zap.Error(err))
		e.trace.Emit(trace.EventSweepComplete, report.IncidentID, map[string]any{
			"sweep_id": report.SweepID,
			"result":   "failed",
			"error":    err.Error(),
		})
		e.metrics.SweepFinished(incidentType, report.Phase.String(), "failed", report.Duration)
		return report, err
	}

	ent.mu.Lock()
	inc.Fault = ""
	ent.mu.Unlock()

	e.trace.Emit(trace.EventSweepStart, report.IncidentID, map[string]any{
		"sweep_id":      report.SweepID,
		"incident_type": incidentType,
		"phase":         report.Phase.String(),
	})
	log.Debug("sweep started", zap.Int("steps", len(steps)))

	for _, step := range steps {
		if step.Phase != report.Phase {
			continue
		}

		ent.mu.Lock()
		if ctx.Err() != nil || inc.Status == incident.StatusClosed {
			ent.mu.Unlock()
			report.Cancelled = true
			break
		}
		reason := skipReason(inc, step)
		var view incident.View
		if reason == "" {
			view = inc.View()
		}
		ent.mu.Unlock()

		if reason != "" {
			report.Skipped = append(report.Skipped, SkippedStep{StepID: step.ID, Reason: reason})
			log.Debug("step skipped", zap.String("step_id", step.ID), zap.String("reason", reason))
			continue
		}
		if !e.executeStep(ctx, ent, step, view, report, log) {
			report.Cancelled = true
			break
		}
	}

	if ctx.Err() != nil {
		report.Cancelled = true
	}
	result := incident.SweepCompleted
	if report.Cancelled {
		result = incident.SweepCancelled
	}
	ent.mu.Lock()
	inc.Sweep = result
	ent.mu.Unlock()

	report.Duration = time.Since(start)
	e.trace.Emit(trace.EventSweepComplete, report.IncidentID, map[string]any{
		"sweep_id": report.SweepID,
		"result":   string(result),
		"executed": report.Executed,
	})
	e.metrics.SweepFinished(incidentType, report.Phase.String(), string(result), report.Duration)
	log.Info("sweep finished",
		zap.String("result", string(result)),
		zap.Strings("executed", report.Executed),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// skipReason returns why step cannot run now, or "" when it can. The
// caller holds the entry lock.
func skipReason(inc *incident.Incident, step playbook.Step) string {
	if inc.HasExecuted(step.ID) {
		return "already executed"
	}
	if !inc.DependenciesMet(step.Dependencies) {
		return "dependencies not met"
	}
	ok, err := eval.Guard(step.When, inc)
	if err != nil {
		return "guard error: " + err.Error()
	}
	if !ok {
		return "guard is false"
	}
	return ""
}

// eligible reports whether step is expected to run in the current phase.
// Used by the gate so steps held back by a false guard do not block it.
func eligible(inc *incident.Incident, step playbook.Step) bool {
	if !inc.DependenciesMet(step.Dependencies) {
		return false
	}
	ok, err := eval.Guard(step.When, inc)
	return err == nil && ok
}

// executeStep dispatches every action of step in order, then marks the
// step executed whatever the outcome of its actions. It returns false,
// leaving the step unrecorded, when the sweep is cancelled or the incident
// closed before every action was attempted.
func (e *Engine) executeStep(ctx context.Context, ent *entry, step playbook.Step, view incident.View, report *SweepReport, log *zap.Logger) bool {
	log = log.With(zap.String("step_id", step.ID))
	e.trace.Emit(trace.EventStepStart, view.ID, map[string]any{
		"sweep_id": report.SweepID,
		"step_id":  step.ID,
		"title":    step.Title,
	})

	for _, a := range step.AutomatedActions {
		if e.interrupted(ctx, ent) {
			log.Info("step interrupted")
			return false
		}
		rec, evidence := e.dispatchAction(ctx, step.ID, a, view, log)
		report.Actions = append(report.Actions, rec)

		ent.mu.Lock()
		ent.inc.Actions = append(ent.inc.Actions, rec)
		ent.inc.Evidence = append(ent.inc.Evidence, evidence...)
		ent.mu.Unlock()

		e.trace.Emit(trace.EventActionDispatched, view.ID, map[string]any{
			"sweep_id": report.SweepID,
			"step_id":  step.ID,
			"action":   rec.Action,
			"targets":  rec.Targets,
			"success":  rec.Success,
			"message":  rec.Message,
			"error":    rec.Error,
		})
		for _, ev := range evidence {
			e.trace.Emit(trace.EventEvidenceAdded, view.ID, map[string]any{
				"step_id": step.ID,
				"kind":    ev.Kind,
				"source":  ev.Source,
			})
		}
	}

	ent.mu.Lock()
	if ent.inc.Status == incident.StatusClosed {
		ent.mu.Unlock()
		log.Info("step interrupted by closure")
		return false
	}
	ent.inc.MarkExecuted(step.ID)
	incidentType := ent.inc.Type
	ent.mu.Unlock()

	report.Executed = append(report.Executed, step.ID)
	e.trace.Emit(trace.EventStepComplete, view.ID, map[string]any{
		"sweep_id": report.SweepID,
		"step_id":  step.ID,
	})
	e.metrics.StepExecuted(incidentType, report.Phase.String())
	log.Info("step executed", zap.Int("actions", len(step.AutomatedActions)))
	return true
}

// interrupted reports whether the sweep should stop before its next
// action.
func (e *Engine) interrupted(ctx context.Context, ent *entry) bool {
	if ctx.Err() != nil {
		return true
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.inc.Status == incident.StatusClosed
}

// dispatchAction runs one action and converts the outcome to a record.
// Failures are recorded, never returned.
func (e *Engine) dispatchAction(ctx context.Context, stepID string, a playbook.Action, view incident.View, log *zap.Logger) (incident.ActionRecord, []incident.Evidence) {
	rec := incident.ActionRecord{StepID: stepID, Action: a.Name, At: e.now()}
	log = log.With(zap.String("action", a.Name))

	if err := e.cfg.ActionPolicy.CheckAction(a.Name); err != nil {
		rec.Message = err.Error()
		rec.Error = err.Error()
		log.Warn("action blocked by policy")
		e.metrics.ActionDispatched(a.Name, "denied")
		return rec, nil
	}

	res, err := e.dispatcher.Dispatch(ctx, a, view)
	rec.Success = res.Success
	rec.Targets = res.Targets
	rec.Message = e.redact(res.Message)

	result := "success"
	switch {
	case err != nil:
		result = "error"
		rec.Error = e.redact(err.Error())
		log.Error("action dispatch failed", zap.Strings("targets", res.Targets), zap.String("error", rec.Error))
	case !res.Success:
		result = "failure"
		log.Warn("action reported failure", zap.String("message", rec.Message))
	default:
		log.Info("action dispatched", zap.Strings("targets", res.Targets))
	}
	e.metrics.ActionDispatched(a.Name, result)
	return rec, res.Evidence
}

func (e *Engine) redact(s string) string {
	return e.cfg.Redactor.Redact(s)
}

// gate evaluates the phase gate for inc. The caller holds the entry lock.
func (e *Engine) gate(inc *incident.Incident, steps []playbook.Step) governance.Decision {
	return governance.Evaluate(governance.Input{
		Incident: inc,
		Steps:    steps,
		Eligible: func(s playbook.Step) bool { return eligible(inc, s) },
	}, e.cfg.Policy)
}
