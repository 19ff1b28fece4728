package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ormasoftchile/irflow/pkg/governance"
	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/trace"
)

// AdvancePhase moves the incident to its next phase when the gate allows
// it. It waits for any sweep running on the incident. The new phase is not
// swept; call Sweep to run it.
func (e *Engine) AdvancePhase(ctx context.Context, id string) (incident.Phase, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return 0, err
	}
	if err := ent.acquire(ctx); err != nil {
		return 0, err
	}
	defer ent.release()
	return e.advanceLocked(ent)
}

// Gate reports the gate decision for the incident's current phase without
// changing anything.
func (e *Engine) Gate(id string) (governance.Decision, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return governance.Decision{}, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	steps, err := e.catalog.Lookup(ent.inc.Type)
	if err != nil {
		return governance.Decision{}, err
	}
	return e.gate(ent.inc, steps), nil
}

// advanceLocked is AdvancePhase for a caller holding the sweep slot.
func (e *Engine) advanceLocked(ent *entry) (incident.Phase, error) {
	ent.mu.Lock()
	inc := ent.inc
	id, incidentType, from := inc.ID, inc.Type, inc.Phase
	if inc.Status == incident.StatusClosed {
		ent.mu.Unlock()
		return from, fmt.Errorf("%w: %s", ErrIncidentClosed, id)
	}
	to, ok := from.Next()
	if !ok {
		ent.mu.Unlock()
		return from, fmt.Errorf("%w: %s is in %s", ErrFinalPhase, id, from)
	}
	steps, err := e.catalog.Lookup(incidentType)
	if err != nil {
		ent.mu.Unlock()
		return from, err
	}
	d := e.gate(inc, steps)
	if d.Allowed() {
		inc.Phase = to
	}
	ent.mu.Unlock()

	e.trace.Emit(trace.EventGateEvaluated, id, map[string]any{
		"phase":             d.Phase,
		"action":            string(d.Action),
		"pending_steps":     d.PendingSteps,
		"missing_approvals": d.MissingApprovals,
	})
	if !d.Allowed() {
		e.log.Info("phase gate blocked",
			zap.String("incident_id", id),
			zap.String("phase", from.String()),
			zap.String("decision", string(d.Action)))
		return from, fmt.Errorf("%w: %s", ErrGateBlocked, describe(d))
	}

	e.trace.Emit(trace.EventPhaseAdvanced, id, map[string]any{
		"from": from.String(),
		"to":   to.String(),
	})
	e.metrics.PhaseAdvanced(incidentType, to.String())
	e.log.Info("phase advanced",
		zap.String("incident_id", id),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	return to, nil
}

func describe(d governance.Decision) string {
	var parts []string
	if len(d.PendingSteps) > 0 {
		parts = append(parts, "pending steps "+strings.Join(d.PendingSteps, ", "))
	}
	if len(d.MissingApprovals) > 0 {
		parts = append(parts, "missing approvals "+strings.Join(d.MissingApprovals, ", "))
	}
	return fmt.Sprintf("%s in %s: %s", d.Action, d.Phase, strings.Join(parts, "; "))
}

// SetStatus changes the incident status. Status only moves forward;
// setting StatusClosed is the same as Close with no notes.
func (e *Engine) SetStatus(id string, status incident.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, status)
	}
	if status == incident.StatusClosed {
		return e.Close(id, "")
	}
	ent, err := e.lookup(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	from := ent.inc.Status
	if from == incident.StatusClosed {
		ent.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrIncidentClosed, id)
	}
	if !from.CanTransition(status) {
		ent.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}
	ent.inc.Status = status
	ent.mu.Unlock()

	if from != status {
		e.trace.Emit(trace.EventStatusChanged, id, map[string]any{
			"from": from.String(),
			"to":   status.String(),
		})
		e.log.Info("status changed",
			zap.String("incident_id", id),
			zap.String("from", from.String()),
			zap.String("to", status.String()))
	}
	return nil
}

// Close marks the incident CLOSED, records the resolution notes and
// cancels any sweep in progress, synchronous ones included. No action is
// dispatched and no step is recorded after Close returns.
func (e *Engine) Close(id, notes string) error {
	ent, err := e.lookup(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	inc := ent.inc
	if inc.Status == incident.StatusClosed {
		ent.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrIncidentClosed, id)
	}
	from := inc.Status
	notes = e.redact(notes)
	inc.Status = incident.StatusClosed
	inc.ResolutionNotes = notes
	if inc.Sweep == incident.SweepPending {
		inc.Sweep = incident.SweepCancelled
	}
	ent.stopSweep()
	ent.mu.Unlock()

	e.trace.Emit(trace.EventIncidentClosed, id, map[string]any{
		"from":  from.String(),
		"notes": notes,
	})
	e.metrics.IncidentClosed()
	e.log.Info("incident closed", zap.String("incident_id", id), zap.String("from", from.String()))
	return nil
}

// AddEvidence attaches an evidence record. A zero CollectedAt is set to
// the engine clock.
func (e *Engine) AddEvidence(id string, ev incident.Evidence) error {
	if strings.TrimSpace(ev.Kind) == "" {
		return errors.New("evidence kind is required")
	}
	ent, err := e.lookup(id)
	if err != nil {
		return err
	}
	if ev.CollectedAt.IsZero() {
		ev.CollectedAt = e.now()
	}
	ent.mu.Lock()
	if ent.inc.Status == incident.StatusClosed {
		ent.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrIncidentClosed, id)
	}
	ent.inc.Evidence = append(ent.inc.Evidence, ev)
	ent.mu.Unlock()

	e.trace.Emit(trace.EventEvidenceAdded, id, map[string]any{
		"kind":   ev.Kind,
		"source": ev.Source,
	})
	e.log.Debug("evidence added", zap.String("incident_id", id), zap.String("kind", ev.Kind))
	return nil
}

// Approve records role's sign-off on stepID. The step must exist in the
// incident's playbook and require that role. Repeat approvals are a no-op.
func (e *Engine) Approve(id, stepID, role, approver string) error {
	ent, err := e.lookup(id)
	if err != nil {
		return err
	}
	ent.mu.Lock()
	inc := ent.inc
	incidentType := inc.Type
	closed := inc.Status == incident.StatusClosed
	ent.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: %s", ErrIncidentClosed, id)
	}

	steps, err := e.catalog.Lookup(incidentType)
	if err != nil {
		return err
	}
	known := false
	for _, s := range steps {
		if s.ID != stepID {
			continue
		}
		for _, r := range s.RequiredApprovals {
			if r == role {
				known = true
			}
		}
	}
	if !known {
		return fmt.Errorf("%w: step %q does not require approval by %q", ErrInvalidApproval, stepID, role)
	}

	ent.mu.Lock()
	if inc.HasApproval(stepID, role) {
		ent.mu.Unlock()
		return nil
	}
	inc.Approvals = append(inc.Approvals, incident.Approval{StepID: stepID, Role: role, Approver: approver, At: e.now()})
	ent.mu.Unlock()

	e.trace.Emit(trace.EventApprovalRecorded, id, map[string]any{
		"step_id":  stepID,
		"role":     role,
		"approver": approver,
	})
	e.log.Info("approval recorded",
		zap.String("incident_id", id),
		zap.String("step_id", stepID),
		zap.String("role", role))
	return nil
}
