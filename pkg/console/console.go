// Package console implements the interactive incident console.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/irflow/pkg/engine"
)

// Console is a REPL over one engine. It remembers a current incident so
// most commands can omit the id.
type Console struct {
	engine  *engine.Engine
	output  io.Writer
	actor   string
	current string
}

// New creates a console writing to stdout. actor is recorded as the
// approver unless an approve command names one.
func New(eng *engine.Engine, actor string) *Console {
	return &Console{engine: eng, output: os.Stdout, actor: actor}
}

// SetOutput redirects command output.
func (c *Console) SetOutput(w io.Writer) { c.output = w }

var commands = []string{"create", "use", "status", "list", "gate", "advance", "sweep",
	"approve", "evidence", "attach", "set-status", "close", "playbooks", "help", "quit"}

// Run starts the interactive REPL loop.
func (c *Console) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()
	c.output = rl.Stdout()

	fmt.Fprintf(c.output, "irflow console: %d playbooks loaded\n", len(c.engine.Playbooks()))
	fmt.Fprintf(c.output, "Type 'help' for available commands.\n\n")

	for {
		if ctx.Err() != nil {
			return nil
		}
		rl.SetPrompt(c.prompt())
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if c.Exec(ctx, line) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the console should exit.
func (c *Console) Exec(ctx context.Context, line string) (quit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := parts[0], parts[1:]

	var err error
	switch cmd {
	case "create", "new":
		err = c.handleCreate(ctx, args)
	case "use":
		err = c.handleUse(args)
	case "status", "s":
		err = c.handleStatus(args)
	case "list", "ls":
		c.handleList()
	case "gate":
		err = c.handleGate(args)
	case "advance", "a":
		err = c.handleAdvance(ctx, args)
	case "sweep":
		err = c.handleSweep(ctx, args)
	case "approve":
		err = c.handleApprove(args)
	case "evidence":
		err = c.handleEvidence(args)
	case "attach":
		err = c.handleAttach(args)
	case "set-status":
		err = c.handleSetStatus(args)
	case "close":
		err = c.handleClose(args)
	case "playbooks", "pb":
		err = c.handlePlaybooks(args)
	case "help", "?":
		c.handleHelp()
	case "quit", "q", "exit":
		fmt.Fprintf(c.output, "Exiting console.\n")
		return true
	default:
		fmt.Fprintf(c.output, "Unknown command: %q. Type 'help' for available commands.\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(c.output, "Error: %v\n", err)
	}
	return false
}

// prompt shows the current incident and its phase: irflow[INC-… | analysis]>
func (c *Console) prompt() string {
	if c.current == "" {
		return "irflow> "
	}
	snap, err := c.engine.GetIncidentStatus(c.current)
	if err != nil {
		return "irflow> "
	}
	return fmt.Sprintf("irflow[%s | %s]> ", snap.ID, snap.Phase)
}
