package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds all TUI key bindings.
type keyMap struct {
	Advance key.Binding
	Sweep   key.Binding
	Up      key.Binding
	Down    key.Binding
	PgUp    key.Binding
	PgDown  key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Advance: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "advance phase"),
	),
	Sweep: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "sweep"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "browse up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "browse down"),
	),
	PgUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PgDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "scroll down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// keyBarText renders the context-sensitive key hint string.
func keyBarText(busy, closed bool) string {
	browse := keyStyle.Render("↑↓") + keyDescStyle.Render(":browse") + "  " +
		keyStyle.Render("PgUp/Dn") + keyDescStyle.Render(":scroll") + "  "
	quit := keyStyle.Render("q") + keyDescStyle.Render(":quit")
	if closed || busy {
		return browse + quit
	}
	return keyStyle.Render("a") + keyDescStyle.Render(":advance") + "  " +
		keyStyle.Render("s") + keyDescStyle.Render(":sweep") + "  " +
		browse + quit
}
