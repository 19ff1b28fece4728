// Package incident defines the incident record, its lifecycle enums and the
// read-only snapshot handed to callers.
package incident

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status is the incident lifecycle state. The lifecycle is monotonic.
type Status int

const (
	StatusDetected Status = iota
	StatusInvestigating
	StatusContained
	StatusEradicated
	StatusRecovered
	StatusClosed
)

var statusNames = [...]string{
	StatusDetected:      "detected",
	StatusInvestigating: "investigating",
	StatusContained:     "contained",
	StatusEradicated:    "eradicated",
	StatusRecovered:     "recovered",
	StatusClosed:        "closed",
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusDetected, StatusInvestigating, StatusContained, StatusEradicated, StatusRecovered, StatusClosed}
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	return s >= StatusDetected && s <= StatusClosed
}

// CanTransition reports whether moving from s to next respects the
// monotonic lifecycle. Staying put is allowed.
func (s Status) CanTransition(next Status) bool {
	return next.Valid() && next >= s
}

// ParseStatus parses the lowercase text form of a status.
func ParseStatus(v string) (Status, error) {
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("invalid status %q", v)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ---------------------------------------------------------------------------
// Phase
// ---------------------------------------------------------------------------

// Phase is one stage of the response lifecycle. It gates which playbook
// steps may run.
type Phase int

const (
	PhaseDetection Phase = iota
	PhaseAnalysis
	PhaseContainment
	PhaseEradication
	PhaseRecovery
	PhaseLessonsLearned
)

var phaseNames = [...]string{
	PhaseDetection:      "detection",
	PhaseAnalysis:       "analysis",
	PhaseContainment:    "containment",
	PhaseEradication:    "eradication",
	PhaseRecovery:       "recovery",
	PhaseLessonsLearned: "lessons_learned",
}

// Phases lists every phase in lifecycle order.
func Phases() []Phase {
	return []Phase{PhaseDetection, PhaseAnalysis, PhaseContainment, PhaseEradication, PhaseRecovery, PhaseLessonsLearned}
}

// PhaseNames returns the text form of every phase, in order.
func PhaseNames() []string {
	out := make([]string, len(phaseNames))
	copy(out, phaseNames[:])
	return out
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Valid reports whether p is one of the declared phases.
func (p Phase) Valid() bool {
	return p >= PhaseDetection && p <= PhaseLessonsLearned
}

// Next returns the phase after p. ok is false for the final phase.
func (p Phase) Next() (next Phase, ok bool) {
	if !p.Valid() || p == PhaseLessonsLearned {
		return p, false
	}
	return p + 1, true
}

// ParsePhase parses the lowercase text form of a phase.
func ParsePhase(v string) (Phase, error) {
	for i, name := range phaseNames {
		if name == v {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("invalid phase %q", v)
}

func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ---------------------------------------------------------------------------
// Sweep state
// ---------------------------------------------------------------------------

// SweepState is the state of the most recent sweep task for an incident.
type SweepState string

const (
	SweepPending   SweepState = "pending"
	SweepRunning   SweepState = "running"
	SweepCompleted SweepState = "completed"
	SweepFailed    SweepState = "failed"
	SweepCancelled SweepState = "cancelled"
)

// Done reports whether the state is terminal.
func (s SweepState) Done() bool {
	return s == SweepCompleted || s == SweepFailed || s == SweepCancelled
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// Evidence is an opaque evidence record attached to an incident.
type Evidence struct {
	Kind        string         `json:"kind"`
	Source      string         `json:"source,omitempty"`
	CollectedAt time.Time      `json:"collected_at"`
	Data        map[string]any `json:"data,omitempty"`
}

// ActionRecord is the outcome of one dispatched automated action.
type ActionRecord struct {
	StepID  string    `json:"step_id"`
	Action  string    `json:"action"`
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Targets []string  `json:"targets,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Approval is a recorded sign-off for a step by a named role.
type Approval struct {
	StepID   string    `json:"step_id"`
	Role     string    `json:"role"`
	Approver string    `json:"approver,omitempty"`
	At       time.Time `json:"at"`
}

// ---------------------------------------------------------------------------
// Incident
// ---------------------------------------------------------------------------

// Incident is the mutable record of one live response effort. It is owned by
// the engine's incident table and is not safe for concurrent use on its own.
type Incident struct {
	ID              string
	Title           string
	Description     string
	Severity        string
	Type            string
	Status          Status
	Phase           Phase
	DetectedAt      time.Time
	AssignedTo      string
	AffectedAssets  []string
	Indicators      map[string][]string
	Executed        []string
	Evidence        []Evidence
	Actions         []ActionRecord
	Approvals       []Approval
	ResolutionNotes string
	Sweep           SweepState
	Fault           string
}

// New builds an incident in its initial state (DETECTED, DETECTION).
// Assets are de-duplicated with order preserved.
func New(id, title, description, severity, incidentType string, assets []string, indicators map[string][]string, detectedAt time.Time) *Incident {
	inds := make(map[string][]string, len(indicators))
	for k, v := range indicators {
		inds[k] = dedupe(v)
	}
	return &Incident{
		ID:             id,
		Title:          title,
		Description:    description,
		Severity:       severity,
		Type:           incidentType,
		Status:         StatusDetected,
		Phase:          PhaseDetection,
		DetectedAt:     detectedAt,
		AffectedAssets: dedupe(assets),
		Indicators:     inds,
		Executed:       []string{},
		Evidence:       []Evidence{},
		Sweep:          SweepPending,
	}
}

// HasExecuted reports whether stepID is recorded in the executed list.
func (inc *Incident) HasExecuted(stepID string) bool {
	for _, s := range inc.Executed {
		if s == stepID {
			return true
		}
	}
	return false
}

// DependenciesMet reports whether every dependency is already executed.
func (inc *Incident) DependenciesMet(deps []string) bool {
	for _, d := range deps {
		if !inc.HasExecuted(d) {
			return false
		}
	}
	return true
}

// MarkExecuted appends stepID unless it is already present. It returns false
// when the step was already recorded.
func (inc *Incident) MarkExecuted(stepID string) bool {
	if inc.HasExecuted(stepID) {
		return false
	}
	inc.Executed = append(inc.Executed, stepID)
	return true
}

// HasApproval reports whether role has signed off stepID.
func (inc *Incident) HasApproval(stepID, role string) bool {
	for _, a := range inc.Approvals {
		if a.StepID == stepID && a.Role == role {
			return true
		}
	}
	return false
}

// Targets resolves a symbolic target reference against the incident.
// "affected_assets" yields the affected assets, "all_assets" the estate
// wildcard, anything else the indicator list of that name.
func (inc *Incident) Targets(ref string) []string {
	return resolve(ref, inc.AffectedAssets, inc.Indicators)
}

func resolve(ref string, assets []string, indicators map[string][]string) []string {
	switch ref {
	case RefAffectedAssets:
		return append([]string(nil), assets...)
	case RefAllAssets:
		return []string{AllAssetsWildcard}
	default:
		return append([]string(nil), indicators[ref]...)
	}
}

// Symbolic target references understood by every incident.
const (
	RefAffectedAssets = "affected_assets"
	RefAllAssets      = "all_assets"

	// AllAssetsWildcard stands for the whole estate.
	AllAssetsWildcard = "*"
)

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// Resolver resolves symbolic target references.
type Resolver interface {
	Targets(ref string) []string
}

// View is a detached copy of the incident fields an action reads. It is
// safe to use after the incident's lock is released.
type View struct {
	ID         string
	Type       string
	Severity   string
	assets     []string
	indicators map[string][]string
}

var (
	_ Resolver = (*Incident)(nil)
	_ Resolver = View{}
)

// View returns a detached view of inc.
func (inc *Incident) View() View {
	inds := make(map[string][]string, len(inc.Indicators))
	for k, v := range inc.Indicators {
		inds[k] = append([]string(nil), v...)
	}
	return View{
		ID:         inc.ID,
		Type:       inc.Type,
		Severity:   inc.Severity,
		assets:     append([]string(nil), inc.AffectedAssets...),
		indicators: inds,
	}
}

// Targets resolves ref the same way Incident.Targets does.
func (v View) Targets(ref string) []string {
	return resolve(ref, v.assets, v.indicators)
}
