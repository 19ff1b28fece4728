// Package diagram renders playbooks as Mermaid flowcharts or ASCII boxes.
package diagram

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/playbook"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Generate produces a diagram of a playbook's steps grouped by phase.
func Generate(name string, steps []playbook.Step, format Format) (string, error) {
	switch format {
	case FormatMermaid:
		return generateMermaid(steps), nil
	case FormatASCII:
		return generateASCII(name, steps), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// byPhase groups steps by phase in lifecycle order, keeping catalog order
// within a phase. Phases without steps are omitted.
func byPhase(steps []playbook.Step) []phaseGroup {
	var out []phaseGroup
	for _, p := range incident.Phases() {
		var g phaseGroup
		for _, s := range steps {
			if s.Phase == p {
				g.steps = append(g.steps, s)
			}
		}
		if len(g.steps) > 0 {
			g.phase = p
			out = append(out, g)
		}
	}
	return out
}

type phaseGroup struct {
	phase incident.Phase
	steps []playbook.Step
}

// --- Mermaid flowchart ---

func generateMermaid(steps []playbook.Step) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	if len(steps) == 0 {
		return b.String()
	}

	for _, g := range byPhase(steps) {
		fmt.Fprintf(&b, "    subgraph %s [%s]\n", g.phase, g.phase)
		for _, s := range g.steps {
			b.WriteString("        " + nodeDefinition(s) + "\n")
		}
		b.WriteString("    end\n")
	}

	for _, s := range steps {
		if len(s.Dependencies) == 0 {
			fmt.Fprintf(&b, "    START([Incident]) --> %s\n", safeID(s.ID))
			continue
		}
		for _, d := range s.Dependencies {
			if s.When != "" {
				fmt.Fprintf(&b, "    %s -.->|\"%s\"| %s\n", safeID(d), escMermaid(truncate(s.When, 30)), safeID(s.ID))
			} else {
				fmt.Fprintf(&b, "    %s --> %s\n", safeID(d), safeID(s.ID))
			}
		}
	}

	for _, s := range steps {
		if len(s.RequiredApprovals) > 0 {
			fmt.Fprintf(&b, "    style %s stroke:#e60,stroke-width:2px\n", safeID(s.ID))
		}
	}
	return b.String()
}

// --- ASCII ---

func generateASCII(name string, steps []playbook.Step) string {
	var b strings.Builder
	if name == "" {
		name = "Playbook"
	}
	if len(steps) == 0 {
		b.WriteString(name + " (empty)\n")
		return b.String()
	}

	const indent = 4
	boxWidth := computeUniformBoxWidth(steps, name)
	pad := strings.Repeat(" ", indent)
	connPad := strings.Repeat(" ", indent+1+boxWidth/2)

	b.WriteString(pad + "╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString(pad + "║" + centerPad(name, boxWidth) + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", boxWidth) + "╝\n")

	for _, g := range byPhase(steps) {
		label := " " + g.phase.String() + " "
		rule := boxWidth + 2 - runewidth.StringWidth(label) - 2
		if rule < 0 {
			rule = 0
		}
		b.WriteString(connPad + "│\n")
		b.WriteString(pad + "──" + label + strings.Repeat("─", rule) + "\n")
		for _, s := range g.steps {
			b.WriteString(connPad + "│\n")
			writeASCIIStep(&b, s, indent, boxWidth)
		}
	}
	return b.String()
}

// stepLines returns the interior lines of a step box.
func stepLines(s playbook.Step) []string {
	title := s.Title
	if title == "" {
		title = s.ID
	}
	lines := []string{fmt.Sprintf(" %s %s %s ", stepIcon(s), s.ID, title)}
	if len(s.Dependencies) > 0 {
		lines = append(lines, " after "+strings.Join(s.Dependencies, ", ")+" ")
	}
	if s.When != "" {
		lines = append(lines, " when "+truncate(s.When, 40)+" ")
	}
	for _, a := range s.AutomatedActions {
		line := " → " + a.Name
		if !a.Target.IsZero() {
			line += " " + a.Target.String()
		}
		lines = append(lines, line+" ")
	}
	if len(s.RequiredApprovals) > 0 {
		lines = append(lines, " ✍ "+strings.Join(s.RequiredApprovals, ", ")+" ")
	}
	return lines
}

// computeUniformBoxWidth returns the widest interior width needed across
// all steps and the header name.
func computeUniformBoxWidth(steps []playbook.Step, name string) int {
	w := 22
	if nw := runewidth.StringWidth(name) + 4; nw > w {
		w = nw
	}
	for _, s := range steps {
		for _, l := range stepLines(s) {
			if lw := runewidth.StringWidth(l); lw > w {
				w = lw
			}
		}
	}
	return w
}

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	left := (width - sw) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-sw-left)
}

func writeASCIIStep(b *strings.Builder, s playbook.Step, indent, boxWidth int) {
	pad := strings.Repeat(" ", indent)
	mid := boxWidth / 2

	b.WriteString(pad + "┌" + strings.Repeat("─", mid) + "┴" + strings.Repeat("─", boxWidth-mid-1) + "┐\n")
	for _, l := range stepLines(s) {
		b.WriteString(pad + "│" + l + strings.Repeat(" ", boxWidth-runewidth.StringWidth(l)) + "│\n")
	}
	b.WriteString(pad + "└" + strings.Repeat("─", boxWidth) + "┘\n")
}

// stepIcon marks steps that dispatch actions apart from manual-only ones.
func stepIcon(s playbook.Step) string {
	if len(s.AutomatedActions) > 0 {
		return "⚡"
	}
	return "🧑"
}

// --- string helpers ---

func nodeDefinition(s playbook.Step) string {
	id := safeID(s.ID)
	title := s.Title
	if title == "" {
		title = s.ID
	}
	label := stepIcon(s) + " " + s.ID + " " + escMermaid(title)
	if len(s.RequiredApprovals) > 0 {
		label += "<br/>✍ " + escMermaid(strings.Join(s.RequiredApprovals, ", "))
	}
	if len(s.AutomatedActions) == 0 {
		return fmt.Sprintf(`%s{{"%s"}}`, id, label)
	}
	return fmt.Sprintf(`%s["%s"]`, id, label)
}

func safeID(id string) string {
	r := strings.NewReplacer("-", "_", " ", "_", ".", "_")
	return r.Replace(id)
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	return s
}

func truncate(s string, max int) string {
	return runewidth.Truncate(s, max, "...")
}
