package incident

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Snapshot is the read-only projection of an incident returned by status
// queries. It shares no memory with the live record.
type Snapshot struct {
	ID              string              `json:"incident_id"`
	Title           string              `json:"title"`
	Description     string              `json:"description,omitempty"`
	Type            string              `json:"incident_type"`
	Status          Status              `json:"status"`
	Severity        string              `json:"severity"`
	Phase           Phase               `json:"current_phase"`
	DetectedAt      string              `json:"detected_at"`
	AssignedTo      string              `json:"assigned_to,omitempty"`
	AffectedAssets  []string            `json:"affected_assets"`
	Indicators      map[string][]string `json:"indicators,omitempty"`
	Executed        []string            `json:"playbook_executed"`
	Evidence        []Evidence          `json:"evidence"`
	Actions         []ActionRecord      `json:"actions,omitempty"`
	Approvals       []Approval          `json:"approvals,omitempty"`
	ResolutionNotes string              `json:"resolution_notes,omitempty"`
	Sweep           SweepState          `json:"sweep_state"`
	Fault           string              `json:"fault,omitempty"`
}

// Snapshot copies the incident into a Snapshot.
func (inc *Incident) Snapshot() Snapshot {
	inds := make(map[string][]string, len(inc.Indicators))
	for k, v := range inc.Indicators {
		inds[k] = append([]string(nil), v...)
	}
	evidence := make([]Evidence, len(inc.Evidence))
	for i, ev := range inc.Evidence {
		evidence[i] = ev
		if ev.Data != nil {
			evidence[i].Data = cloneData(ev.Data)
		}
	}
	actions := make([]ActionRecord, len(inc.Actions))
	for i, a := range inc.Actions {
		actions[i] = a
		actions[i].Targets = append([]string(nil), a.Targets...)
	}
	return Snapshot{
		ID:              inc.ID,
		Title:           inc.Title,
		Description:     inc.Description,
		Type:            inc.Type,
		Status:          inc.Status,
		Severity:        inc.Severity,
		Phase:           inc.Phase,
		DetectedAt:      inc.DetectedAt.Format(time.RFC3339),
		AssignedTo:      inc.AssignedTo,
		AffectedAssets:  append([]string{}, inc.AffectedAssets...),
		Indicators:      inds,
		Executed:        append([]string{}, inc.Executed...),
		Evidence:        evidence,
		Actions:         actions,
		Approvals:       append([]Approval(nil), inc.Approvals...),
		ResolutionNotes: inc.ResolutionNotes,
		Sweep:           inc.Sweep,
		Fault:           inc.Fault,
	}
}

func cloneData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Identifiers
// ---------------------------------------------------------------------------

// MaxDailySequence is the last sequence number a day can issue.
const MaxDailySequence = 9999

// ErrSequenceExhausted is returned once a day has issued MaxDailySequence
// identifiers.
var ErrSequenceExhausted = errors.New("daily incident sequence exhausted")

// IDGenerator allocates INC-YYYYMMDD-NNNN identifiers. The sequence restarts
// at 1 each calendar day and increases for every id issued that day.
type IDGenerator struct {
	mu  sync.Mutex
	now func() time.Time
	day string
	seq int
}

// NewIDGenerator returns a generator reading dates from now. A nil clock
// uses time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns the next identifier, or ErrSequenceExhausted when the
// day has no four-digit sequence numbers left.
func (g *IDGenerator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	day := g.now().Format("20060102")
	if day != g.day {
		g.day = day
		g.seq = 0
	}
	if g.seq >= MaxDailySequence {
		return "", fmt.Errorf("%w for %s", ErrSequenceExhausted, day)
	}
	g.seq++
	return fmt.Sprintf("INC-%s-%04d", day, g.seq), nil
}
