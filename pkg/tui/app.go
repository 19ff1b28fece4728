package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/irflow/pkg/engine"
	"github.com/ormasoftchile/irflow/pkg/incident"
	"github.com/ormasoftchile/irflow/pkg/playbook"
)

// Engine is the part of the engine the dashboard drives.
type Engine interface {
	GetIncidentStatus(id string) (incident.Snapshot, error)
	Playbook(incidentType string) ([]playbook.Step, error)
	AdvancePhase(ctx context.Context, id string) (incident.Phase, error)
	Sweep(ctx context.Context, id string) (*engine.SweepReport, error)
}

// DefaultRefresh is the polling interval used when Config.Refresh is zero.
const DefaultRefresh = 500 * time.Millisecond

// --- Tea messages ---

type tickMsg time.Time

// snapshotMsg carries a fresh view of the incident.
type snapshotMsg struct {
	snap  incident.Snapshot
	steps []playbook.Step
	err   error
}

// commandDoneMsg reports an advance or sweep issued from the keyboard.
type commandDoneMsg struct {
	notice string
	err    error
}

// --- Model ---

// Model is the top-level Bubble Tea model for the incident dashboard.
type Model struct {
	steps   stepsPanel
	output  outputPanel
	detail  detailBar
	spinner spinner.Model

	eng        Engine
	ctx        context.Context
	incidentID string
	refresh    time.Duration

	snap     incident.Snapshot
	loaded   bool
	busy     bool
	fatalErr string

	width  int
	height int
}

// Config holds the parameters needed to launch the dashboard.
type Config struct {
	Engine     Engine
	IncidentID string
	Refresh    time.Duration
}

// NewModel builds the dashboard model. Commands run under ctx.
func NewModel(ctx context.Context, cfg Config) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	refresh := cfg.Refresh
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return Model{
		steps:      newStepsPanel(),
		output:     newOutputPanel(),
		detail:     newDetailBar(),
		spinner:    sp,
		eng:        cfg.Engine,
		ctx:        ctx,
		incidentID: cfg.IncidentID,
		refresh:    refresh,
	}
}

// Run shows the dashboard until the user quits or ctx is done.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(NewModel(ctx, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init returns the initial commands: start spinner, load the incident, start polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetchSnapshot(),
		m.tick(),
	)
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// fetchSnapshot reads the incident and its playbook.
func (m Model) fetchSnapshot() tea.Cmd {
	eng, id := m.eng, m.incidentID
	return func() tea.Msg {
		snap, err := eng.GetIncidentStatus(id)
		if err != nil {
			return snapshotMsg{err: err}
		}
		// An unknown incident type still shows the incident with its fault.
		steps, _ := eng.Playbook(snap.Type)
		return snapshotMsg{snap: snap, steps: steps}
	}
}

func (m Model) advanceCmd() tea.Cmd {
	eng, ctx, id := m.eng, m.ctx, m.incidentID
	return func() tea.Msg {
		phase, err := eng.AdvancePhase(ctx, id)
		if err != nil {
			return commandDoneMsg{err: err}
		}
		return commandDoneMsg{notice: "advanced to " + phase.String()}
	}
}

func (m Model) sweepCmd() tea.Cmd {
	eng, ctx, id := m.eng, m.ctx, m.incidentID
	return func() tea.Msg {
		rep, err := eng.Sweep(ctx, id)
		if err != nil {
			return commandDoneMsg{err: err}
		}
		if len(rep.Executed) == 0 {
			return commandDoneMsg{notice: fmt.Sprintf("sweep %s: nothing to run in %s", rep.SweepID, rep.Phase)}
		}
		return commandDoneMsg{notice: fmt.Sprintf("sweep %s executed %s", rep.SweepID, strings.Join(rep.Executed, ", "))}
	}
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutPanels()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.output.Update(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tea.Batch(m.fetchSnapshot(), m.tick())

	case snapshotMsg:
		if msg.err != nil {
			if !m.loaded {
				m.fatalErr = msg.err.Error()
			}
			return m, nil
		}
		m.loaded = true
		m.snap = msg.snap
		m.steps.Update(msg.steps, msg.snap)
		m.refreshOutput()
		return m, nil

	case commandDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.detail.SetError(msg.err)
		} else {
			m.detail.SetNotice(msg.notice)
		}
		return m, m.fetchSnapshot()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		return m, tea.Quit
	}
	if m.fatalErr != "" {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Advance):
		if m.ready() {
			m.busy = true
			return m, m.advanceCmd()
		}
	case key.Matches(msg, keys.Sweep):
		if m.ready() {
			m.busy = true
			return m, m.sweepCmd()
		}
	case key.Matches(msg, keys.Up):
		m.steps.CursorUp()
		m.refreshOutput()
	case key.Matches(msg, keys.Down):
		m.steps.CursorDown()
		m.refreshOutput()
	case key.Matches(msg, keys.PgUp):
		m.output.PageUp()
	case key.Matches(msg, keys.PgDown):
		m.output.PageDown()
	}
	return m, nil
}

// ready reports whether a keyboard command may be issued.
func (m Model) ready() bool {
	return m.loaded && !m.busy && m.snap.Status != incident.StatusClosed
}

// sweeping reports whether the background sweep has not finished.
func (m Model) sweeping() bool {
	return m.busy || (m.loaded && !m.snap.Sweep.Done())
}

func (m *Model) refreshOutput() {
	info, ok := m.steps.Selected()
	if !ok {
		m.output.SetContent("")
		return
	}
	m.output.SetContent(describeStep(info, m.snap))
}

// layoutPanels recalculates panel dimensions based on terminal size.
func (m *Model) layoutPanels() {
	if m.width == 0 || m.height == 0 {
		return
	}

	headerH := 1
	detailH := 7
	mainH := m.height - headerH - detailH
	if mainH < 4 {
		mainH = 4
	}

	stepsW := m.width * 35 / 100
	if stepsW < 25 {
		stepsW = 25
	}
	if stepsW > 50 {
		stepsW = 50
	}
	m.steps.width = stepsW
	m.steps.height = mainH
	m.steps.ensureVisible()
	m.output.SetSize(m.width-stepsW, mainH)
	m.detail.width = m.width
}

// View renders the complete dashboard.
func (m Model) View() string {
	if m.fatalErr != "" {
		return errorStyle.Render("Fatal: "+m.fatalErr) + "\n\nPress q to quit."
	}
	if !m.loaded {
		return m.spinner.View() + " loading " + m.incidentID
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.steps.View(), m.output.View())
	return m.renderHeader() + "\n" + main + "\n" + m.detail.View(m.snap, m.busy)
}

// renderHeader builds the top header line.
func (m Model) renderHeader() string {
	left := headerStyle.Render("irflow") + " " +
		phaseBadgeStyle.Render(m.snap.Phase.String()) + "  " +
		detailValueStyle.Render(m.snap.ID+" "+m.snap.Title)
	if style, ok := severityStyles[m.snap.Severity]; ok {
		left += "  " + style.Render(m.snap.Severity)
	}

	total, executed, ready, blocked := m.steps.Stats()
	right := fmt.Sprintf("%s %s %s %d",
		stepExecuted.Render(fmt.Sprintf("%s%d", GlyphExecuted, executed)),
		stepReady.Render(fmt.Sprintf("%s%d", GlyphReady, ready)),
		stepBlocked.Render(fmt.Sprintf("%s%d", GlyphBlocked, blocked)),
		total)
	if m.sweeping() {
		right = m.spinner.View() + " sweeping  " + right
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + right
}
