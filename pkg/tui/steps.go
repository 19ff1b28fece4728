package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/playbook"
)

// stepStatus tracks the display state of each playbook step.
type stepStatus int

const (
	statusFuture  stepStatus = iota // phase not reached yet
	statusReady                     // current phase, dependencies met
	statusBlocked                   // dependencies not met
	statusWaiting                   // earlier phase, never ran
	statusExecuted
)

func (s stepStatus) String() string {
	switch s {
	case statusReady:
		return "ready"
	case statusBlocked:
		return "blocked"
	case statusWaiting:
		return "not run"
	case statusExecuted:
		return "executed"
	}
	return "upcoming"
}

// stepInfo holds the display state for a single step.
type stepInfo struct {
	Step           playbook.Step
	Status         stepStatus
	NeedsApprovals bool
}

// classify derives a step's status from an incident snapshot.
func classify(step playbook.Step, snap incident.Snapshot) stepInfo {
	executed := make(map[string]bool, len(snap.Executed))
	for _, id := range snap.Executed {
		executed[id] = true
	}
	info := stepInfo{Step: step}
	depsMet := true
	for _, d := range step.Dependencies {
		if !executed[d] {
			depsMet = false
			break
		}
	}
	switch {
	case executed[step.ID]:
		info.Status = statusExecuted
	case step.Phase > snap.Phase:
		info.Status = statusFuture
	case !depsMet:
		info.Status = statusBlocked
	case step.Phase == snap.Phase:
		info.Status = statusReady
	default:
		info.Status = statusWaiting
	}
	if info.Status != statusExecuted {
		for _, role := range step.RequiredApprovals {
			if !approved(snap.Approvals, step.ID, role) {
				info.NeedsApprovals = true
				break
			}
		}
	}
	return info
}

func approved(approvals []incident.Approval, stepID, role string) bool {
	for _, a := range approvals {
		if a.StepID == stepID && a.Role == role {
			return true
		}
	}
	return false
}

// stepsPanel renders the scrollable step list.
type stepsPanel struct {
	steps  []stepInfo
	cursor int
	width  int
	height int
	offset int
}

func newStepsPanel() stepsPanel {
	return stepsPanel{}
}

// Update reclassifies every step against snap, keeping the cursor.
func (p *stepsPanel) Update(steps []playbook.Step, snap incident.Snapshot) {
	p.steps = p.steps[:0]
	for _, s := range steps {
		p.steps = append(p.steps, classify(s, snap))
	}
	if p.cursor >= len(p.steps) {
		p.cursor = len(p.steps) - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

// CursorUp moves the browsing cursor up.
func (p *stepsPanel) CursorUp() {
	if p.cursor > 0 {
		p.cursor--
		p.ensureVisible()
	}
}

// CursorDown moves the browsing cursor down.
func (p *stepsPanel) CursorDown() {
	if p.cursor < len(p.steps)-1 {
		p.cursor++
		p.ensureVisible()
	}
}

// Selected returns the step at the cursor.
func (p *stepsPanel) Selected() (stepInfo, bool) {
	if p.cursor >= 0 && p.cursor < len(p.steps) {
		return p.steps[p.cursor], true
	}
	return stepInfo{}, false
}

func (p *stepsPanel) ensureVisible() {
	visible := p.height - 2
	if visible < 1 {
		visible = 1
	}
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+visible {
		p.offset = p.cursor - visible + 1
	}
}

// View renders the step list panel.
func (p *stepsPanel) View() string {
	if len(p.steps) == 0 {
		return panelBorder.Width(p.width).Height(p.height).Render("  No playbook")
	}

	visible := p.height - 2
	if visible < 1 {
		visible = 1
	}
	end := p.offset + visible
	if end > len(p.steps) {
		end = len(p.steps)
	}

	var lines []string
	for i := p.offset; i < end; i++ {
		s := p.steps[i]
		glyph, style := GlyphFuture, stepFuture
		switch s.Status {
		case statusReady:
			glyph, style = GlyphReady, stepReady
		case statusBlocked:
			glyph, style = GlyphBlocked, stepBlocked
		case statusWaiting:
			glyph, style = GlyphWaiting, stepNormal
		case statusExecuted:
			glyph, style = GlyphExecuted, stepExecuted
		}
		if s.NeedsApprovals && s.Status != statusFuture {
			glyph = GlyphApproval
		}

		title := s.Step.Title
		if title == "" {
			title = s.Step.ID
		}
		maxTitle := p.width - 10 - len(s.Step.ID)
		if maxTitle < 4 {
			maxTitle = 4
		}
		title = runewidth.Truncate(title, maxTitle, "…")

		line := fmt.Sprintf(" %s %s %s", glyph, s.Step.ID, title)
		if i == p.cursor {
			line = style.Reverse(true).Render(line)
		} else {
			line = style.Render(line)
		}
		lines = append(lines, line)
	}
	for len(lines) < visible {
		lines = append(lines, "")
	}

	return panelBorder.Width(p.width).Height(p.height).Render(
		panelTitle.Render("Playbook") + "\n" + strings.Join(lines, "\n"),
	)
}

// Stats returns counts of steps by status.
func (p *stepsPanel) Stats() (total, executed, ready, blocked int) {
	total = len(p.steps)
	for _, s := range p.steps {
		switch s.Status {
		case statusExecuted:
			executed++
		case statusReady:
			ready++
		case statusBlocked:
			blocked++
		}
	}
	return
}
