package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/irflow/pkg/incident"
)

// outputPanel renders the selected step's detail in a scrollable viewport.
type outputPanel struct {
	viewport viewport.Model
	content  string

	width  int
	height int
	ready  bool
}

func newOutputPanel() outputPanel {
	return outputPanel{}
}

// SetSize updates the viewport dimensions.
func (p *outputPanel) SetSize(width, height int) {
	p.width = width
	p.height = height

	contentW := width - 4
	contentH := height - 3
	if contentW < 1 {
		contentW = 1
	}
	if contentH < 1 {
		contentH = 1
	}

	if !p.ready {
		p.viewport = viewport.New(contentW, contentH)
		p.ready = true
	} else {
		p.viewport.Width = contentW
		p.viewport.Height = contentH
	}
	p.viewport.SetContent(p.content)
}

// SetContent replaces the panel text, keeping the scroll position when the
// text is unchanged.
func (p *outputPanel) SetContent(text string) {
	if text == p.content {
		return
	}
	p.content = text
	if p.ready {
		p.viewport.SetContent(text)
	}
}

// Update handles viewport-specific messages (mouse scroll, etc.).
func (p *outputPanel) Update(msg tea.Msg) {
	if p.ready {
		p.viewport, _ = p.viewport.Update(msg)
	}
}

// PageUp scrolls the viewport up.
func (p *outputPanel) PageUp() {
	if p.ready {
		p.viewport.HalfViewUp()
	}
}

// PageDown scrolls the viewport down.
func (p *outputPanel) PageDown() {
	if p.ready {
		p.viewport.HalfViewDown()
	}
}

// View renders the output panel.
func (p *outputPanel) View() string {
	title := panelTitle.Render("Step")

	content := "  Waiting for incident..."
	if p.ready {
		content = p.viewport.View()
	}

	header := title
	if p.ready && p.viewport.TotalLineCount() > p.viewport.VisibleLineCount() {
		scrollInfo := fmt.Sprintf(" %3.0f%%", p.viewport.ScrollPercent()*100)
		padding := p.width - 4 - len("Step") - len(scrollInfo)
		if padding < 0 {
			padding = 0
		}
		header = title + strings.Repeat(" ", padding) + keyDescStyle.Render(scrollInfo)
	}

	return panelBorder.Width(p.width).Height(p.height).Render(
		header + "\n" + content,
	)
}

// describeStep renders everything known about one step of the incident.
func describeStep(info stepInfo, snap incident.Snapshot) string {
	s := info.Step
	var b strings.Builder

	fmt.Fprintf(&b, "━━━ %s ━━━\n", s.ID)
	if s.Title != "" {
		fmt.Fprintf(&b, "  %s\n", s.Title)
	}
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		detailLabelStyle.Render("Phase:"), s.Phase,
		detailLabelStyle.Render("Status:"), info.Status)
	if s.Description != "" {
		b.WriteString("\n" + s.Description + "\n")
	}
	if len(s.Dependencies) > 0 {
		fmt.Fprintf(&b, "%s %s\n", detailLabelStyle.Render("Depends on:"), strings.Join(s.Dependencies, ", "))
	}
	if s.When != "" {
		fmt.Fprintf(&b, "%s %s\n", detailLabelStyle.Render("When:"), s.When)
	}
	if len(s.RequiredApprovals) > 0 {
		b.WriteString(detailLabelStyle.Render("Approvals:") + "\n")
		for _, role := range s.RequiredApprovals {
			mark := statusFailedStyle.Render("pending")
			if approved(snap.Approvals, s.ID, role) {
				mark = statusOKStyle.Render("granted")
			}
			fmt.Fprintf(&b, "  %s  %s\n", role, mark)
		}
	}

	if len(s.AutomatedActions) > 0 {
		b.WriteString("\n" + detailLabelStyle.Render("Automated actions:") + "\n")
		for _, a := range s.AutomatedActions {
			line := "  " + actionStyle.Render(a.Name)
			if !a.Target.IsZero() {
				line += " → " + a.Target.String()
			}
			b.WriteString(line + "\n")
		}
	}

	var records []incident.ActionRecord
	for _, r := range snap.Actions {
		if r.StepID == s.ID {
			records = append(records, r)
		}
	}
	if len(records) > 0 {
		b.WriteString("\n" + detailLabelStyle.Render("Results:") + "\n")
		for _, r := range records {
			mark := statusOKStyle.Render(GlyphExecuted)
			msg := r.Message
			if !r.Success {
				mark = statusFailedStyle.Render("✗")
				if r.Error != "" {
					msg = r.Error
				}
			}
			fmt.Fprintf(&b, "  %s %s %s %s\n", mark, r.At.Format("15:04:05"), r.Action, msg)
		}
	}

	if md := taskChecklist(s.ManualTasks, info.Status == statusExecuted); md != "" {
		b.WriteString("\n" + detailLabelStyle.Render("Manual tasks:") + "\n")
		b.WriteString(renderMarkdown(md) + "\n")
	}
	return b.String()
}
