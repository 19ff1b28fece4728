// Package tui implements a terminal dashboard that follows one incident as
// the engine sweeps its playbook.
package tui

import "github.com/charmbracelet/lipgloss"

// Step status glyphs convey meaning without relying on color alone.
const (
	GlyphWaiting  = "○"
	GlyphReady    = "▸"
	GlyphExecuted = "✓"
	GlyphBlocked  = "⊘"
	GlyphFuture   = "·"
	GlyphApproval = "?"
)

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorGreen   = lipgloss.Color("42")
	colorRed     = lipgloss.Color("196")
	colorYellow  = lipgloss.Color("214")
	colorBlue    = lipgloss.Color("39")
	colorCyan    = lipgloss.Color("51")
	colorDim     = lipgloss.Color("240")
	colorWhite   = lipgloss.Color("255")
	colorMagenta = lipgloss.Color("201")
)

// --- Header styles ---

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var phaseBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

// severityStyles colors the severity tag in the header.
var severityStyles = map[string]lipgloss.Style{
	"CRITICAL": lipgloss.NewStyle().Bold(true).Foreground(colorMagenta),
	"HIGH":     lipgloss.NewStyle().Bold(true).Foreground(colorRed),
	"MEDIUM":   lipgloss.NewStyle().Foreground(colorYellow),
	"LOW":      lipgloss.NewStyle().Foreground(colorGreen),
}

// --- Step list styles ---

var (
	stepNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	stepReady = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	stepExecuted = lipgloss.NewStyle().
			Foreground(colorGreen)

	stepBlocked = lipgloss.NewStyle().
			Foreground(colorRed)

	stepFuture = lipgloss.NewStyle().
			Faint(true)
)

// --- Panel styles ---

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)

	actionStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)
)

// --- Detail bar styles ---

var (
	detailBarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	detailLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorBlue)

	detailValueStyle = lipgloss.NewStyle().
				Foreground(colorWhite)

	statusOKStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	statusFailedStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(colorYellow)
)

// --- Key bar styles ---

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	keyBarStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

var spinnerStyle = lipgloss.NewStyle().
	Foreground(colorYellow)
