package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/irflow/pkg/engine"
	"github.com/ormasoftchile/irflow/pkg/evidence"
	"github.com/ormasoftchile/irflow/pkg/incident"
)

var errNoIncident = errors.New("no incident selected: pass an id or 'use <id>'")

// target splits an optional leading incident id off args, falling back to
// the current incident.
func (c *Console) target(args []string) (string, []string, error) {
	if len(args) > 0 && strings.HasPrefix(args[0], "INC-") {
		return args[0], args[1:], nil
	}
	if c.current == "" {
		return "", args, errNoIncident
	}
	return c.current, args, nil
}

// handleCreate opens an incident:
//
//	create <type> <severity> [assets=a,b] [<indicator>=v1,v2 ...] <title...>
func (c *Console) handleCreate(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: create <type> <severity> [assets=a,b] [<indicator>=v,...] <title>")
	}
	req := engine.NewIncident{Type: args[0], Severity: args[1]}
	rest := args[2:]
	for len(rest) > 0 {
		k, v, ok := strings.Cut(rest[0], "=")
		if !ok {
			break
		}
		values := splitList(v)
		if k == "assets" {
			req.AffectedAssets = append(req.AffectedAssets, values...)
		} else {
			if req.Indicators == nil {
				req.Indicators = map[string][]string{}
			}
			req.Indicators[k] = append(req.Indicators[k], values...)
		}
		rest = rest[1:]
	}
	req.Title = strings.Join(rest, " ")

	id, err := c.engine.CreateIncident(ctx, req)
	if err != nil {
		return err
	}
	c.current = id
	if err := c.engine.Wait(ctx, id); err != nil {
		return fmt.Errorf("wait for %s: %w", id, err)
	}
	snap, err := c.engine.GetIncidentStatus(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "  Created %s (%s, %s)\n", id, snap.Type, snap.Severity)
	c.printSweepOutcome(snap)
	return nil
}

func (c *Console) printSweepOutcome(snap incident.Snapshot) {
	switch {
	case snap.Fault != "":
		fmt.Fprintf(c.output, "  ✗ sweep %s: %s\n", snap.Sweep, snap.Fault)
	case len(snap.Executed) == 0:
		fmt.Fprintf(c.output, "  sweep %s, no steps executed\n", snap.Sweep)
	default:
		fmt.Fprintf(c.output, "  ✓ sweep %s, executed %s\n", snap.Sweep, strings.Join(snap.Executed, ", "))
	}
}

func (c *Console) handleUse(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: use <incident-id>")
	}
	if _, err := c.engine.GetIncidentStatus(args[0]); err != nil {
		return err
	}
	c.current = args[0]
	return nil
}

// handleStatus prints the full incident snapshot as JSON.
func (c *Console) handleStatus(args []string) error {
	id, _, err := c.target(args)
	if err != nil {
		return err
	}
	snap, err := c.engine.GetIncidentStatus(id)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	fmt.Fprintln(c.output, string(data))
	return nil
}

// column widths for list output
const (
	idWidth    = 18
	titleWidth = 32
	typeWidth  = 20
	phaseWidth = 16
)

func cell(s string, w int) string {
	return runewidth.FillRight(runewidth.Truncate(s, w, "…"), w)
}

func (c *Console) handleList() {
	snaps := c.engine.List()
	if len(snaps) == 0 {
		fmt.Fprintf(c.output, "No incidents.\n")
		return
	}
	fmt.Fprintf(c.output, "  %s %s %s %s %-9s %s\n",
		cell("ID", idWidth), cell("TITLE", titleWidth), cell("TYPE", typeWidth),
		cell("PHASE", phaseWidth), "SEVERITY", "STATUS")
	for _, s := range snaps {
		marker := " "
		if s.ID == c.current {
			marker = "*"
		}
		fmt.Fprintf(c.output, "%s %s %s %s %s %-9s %s\n", marker,
			cell(s.ID, idWidth), cell(s.Title, titleWidth), cell(s.Type, typeWidth),
			cell(s.Phase.String(), phaseWidth), s.Severity, s.Status)
	}
}

func (c *Console) handleGate(args []string) error {
	id, _, err := c.target(args)
	if err != nil {
		return err
	}
	d, err := c.engine.Gate(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "  %s in %s\n", d.Action, d.Phase)
	for _, s := range d.PendingSteps {
		fmt.Fprintf(c.output, "    pending step  %s\n", s)
	}
	for _, a := range d.MissingApprovals {
		fmt.Fprintf(c.output, "    approval      %s\n", a)
	}
	return nil
}

// handleAdvance moves to the next phase and sweeps it.
func (c *Console) handleAdvance(ctx context.Context, args []string) error {
	id, _, err := c.target(args)
	if err != nil {
		return err
	}
	phase, err := c.engine.AdvancePhase(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "  Advanced %s to %s\n", id, phase)
	return c.sweep(ctx, id)
}

func (c *Console) handleSweep(ctx context.Context, args []string) error {
	id, _, err := c.target(args)
	if err != nil {
		return err
	}
	return c.sweep(ctx, id)
}

func (c *Console) sweep(ctx context.Context, id string) error {
	rep, err := c.engine.Sweep(ctx, id)
	if err != nil {
		return err
	}
	for _, a := range rep.Actions {
		status := "✓"
		msg := a.Message
		if !a.Success {
			status = "✗"
			if a.Error != "" {
				msg = a.Error
			}
		}
		fmt.Fprintf(c.output, "  %s %s %s: %s\n", status, a.StepID, a.Action, msg)
	}
	for _, s := range rep.Skipped {
		fmt.Fprintf(c.output, "  ⏭ %s: %s\n", s.StepID, s.Reason)
	}
	if len(rep.Executed) == 0 {
		fmt.Fprintf(c.output, "  Sweep %s in %s: nothing to run\n", rep.SweepID, rep.Phase)
		return nil
	}
	fmt.Fprintf(c.output, "  Sweep %s in %s executed %s\n", rep.SweepID, rep.Phase, strings.Join(rep.Executed, ", "))
	return nil
}

// handleApprove records a sign-off: approve [id] <step> <role...> [--as <name>]
func (c *Console) handleApprove(args []string) error {
	id, args, err := c.target(args)
	if err != nil {
		return err
	}
	approver := c.actor
	for i, p := range args {
		if p == "--as" && i+1 < len(args) {
			approver = strings.Join(args[i+1:], " ")
			args = args[:i]
			break
		}
	}
	if len(args) < 2 {
		return errors.New("usage: approve [id] <step> <role> [--as <name>]")
	}
	step, role := args[0], strings.Join(args[1:], " ")
	if err := c.engine.Approve(id, step, role, approver); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "  Approval %s:%s recorded from %q\n", step, role, approver)
	return nil
}

// handleEvidence attaches evidence: evidence [id] <kind> [key=value ...]
func (c *Console) handleEvidence(args []string) error {
	id, args, err := c.target(args)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("usage: evidence [id] <kind> [key=value ...]")
	}
	ev, err := evidence.Fields(args[0], "console", args[1:])
	if err != nil {
		return err
	}
	if err := c.engine.AddEvidence(id, ev); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "  Evidence %q added to %s\n", ev.Kind, id)
	return nil
}

// handleAttach records a file as evidence, pinned by its SHA256 digest.
func (c *Console) handleAttach(args []string) error {
	id, args, err := c.target(args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return errors.New("usage: attach [id] <kind> <path>")
	}
	ev, err := evidence.Attachment(args[0], "console", args[1])
	if err != nil {
		return err
	}
	if err := c.engine.AddEvidence(id, ev); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "  Attached %s to %s (sha256 %.12s, %d bytes)\n", ev.Data["name"], id, ev.Data["sha256"], ev.Data["size"])
	return nil
}

func (c *Console) handleSetStatus(args []string) error {
	id, args, err := c.target(args)
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: set-status [id] <%s>", strings.Join(statusNames(), "|"))
	}
	status, err := incident.ParseStatus(strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	if err := c.engine.SetStatus(id, status); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "  %s is %s\n", id, status)
	return nil
}

func statusNames() []string {
	var out []string
	for _, s := range incident.Statuses() {
		out = append(out, s.String())
	}
	return out
}

func (c *Console) handleClose(args []string) error {
	id, args, err := c.target(args)
	if err != nil {
		return err
	}
	if err := c.engine.Close(id, strings.Join(args, " ")); err != nil {
		return err
	}
	fmt.Fprintf(c.output, "  Closed %s\n", id)
	return nil
}

func (c *Console) handlePlaybooks(args []string) error {
	if len(args) == 0 {
		for _, t := range c.engine.Playbooks() {
			steps, err := c.engine.Playbook(t)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.output, "  %s %d steps\n", cell(t, typeWidth), len(steps))
		}
		return nil
	}
	steps, err := c.engine.Playbook(args[0])
	if err != nil {
		return err
	}
	for _, s := range steps {
		fmt.Fprintf(c.output, "  %-4s %s %s", s.ID, cell(s.Phase.String(), phaseWidth), s.Title)
		if len(s.Dependencies) > 0 {
			fmt.Fprintf(c.output, " (after %s)", strings.Join(s.Dependencies, ", "))
		}
		fmt.Fprintln(c.output)
	}
	return nil
}

// handleHelp displays available commands.
func (c *Console) handleHelp() {
	fmt.Fprintln(c.output, "Available commands:")
	fmt.Fprintln(c.output, "  create <type> <severity> [assets=a,b] [ind=v,..] <title>   Open an incident")
	fmt.Fprintln(c.output, "  use <id>                     Select the current incident")
	fmt.Fprintln(c.output, "  status (s) [id]              Show the incident as JSON")
	fmt.Fprintln(c.output, "  list (ls)                    List incidents")
	fmt.Fprintln(c.output, "  gate [id]                    Show the phase gate decision")
	fmt.Fprintln(c.output, "  advance (a) [id]             Advance the phase and sweep it")
	fmt.Fprintln(c.output, "  sweep [id]                   Sweep the current phase")
	fmt.Fprintln(c.output, "  approve [id] <step> <role>   Record an approval (--as <name>)")
	fmt.Fprintln(c.output, "  evidence [id] <kind> [k=v]   Record evidence")
	fmt.Fprintln(c.output, "  attach [id] <kind> <path>    Attach a file as hashed evidence")
	fmt.Fprintln(c.output, "  set-status [id] <status>     Move the incident status forward")
	fmt.Fprintln(c.output, "  close [id] [notes]           Close the incident")
	fmt.Fprintln(c.output, "  playbooks (pb) [type]        List playbooks or one playbook's steps")
	fmt.Fprintln(c.output, "  help (?)                     Show this help")
	fmt.Fprintln(c.output, "  quit (q)                     Exit the console")
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
