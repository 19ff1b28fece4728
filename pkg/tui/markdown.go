package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// renderer formats manual task checklists. Wrapping is left to the panel.
var renderer *glamour.TermRenderer

func init() {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(0),
	)
	if err == nil {
		renderer = r
	}
}

// renderMarkdown converts markdown to styled terminal output, falling back
// to the raw input when rendering is unavailable.
func renderMarkdown(md string) string {
	if renderer == nil || strings.TrimSpace(md) == "" {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// taskChecklist builds a markdown checklist of manual tasks. Tasks of an
// executed step are ticked.
func taskChecklist(tasks []string, done bool) string {
	if len(tasks) == 0 {
		return ""
	}
	mark := " "
	if done {
		mark = "x"
	}
	var b strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&b, "- [%s] %s\n", mark, t)
	}
	return b.String()
}
