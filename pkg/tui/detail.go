package tui

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/irflow/pkg/incident"
)

// detailBar renders incident status, the last command result and key hints.
type detailBar struct {
	notice string
	errMsg string
	width  int
}

func newDetailBar() detailBar {
	return detailBar{}
}

// SetNotice shows the outcome of the last command.
func (d *detailBar) SetNotice(msg string) {
	d.notice = msg
	d.errMsg = ""
}

// SetError shows a failed command.
func (d *detailBar) SetError(err error) {
	d.notice = ""
	d.errMsg = err.Error()
}

// View renders the detail bar.
func (d *detailBar) View(snap incident.Snapshot, busy bool) string {
	parts := []string{
		detailLabelStyle.Render("Status: ") + detailValueStyle.Render(snap.Status.String()),
		detailLabelStyle.Render("│ Sweep: ") + sweepLabel(snap.Sweep),
		detailLabelStyle.Render("│ Evidence: ") + detailValueStyle.Render(fmt.Sprint(len(snap.Evidence))),
	}
	if len(snap.AffectedAssets) > 0 {
		parts = append(parts, detailLabelStyle.Render("│ Assets: ")+detailValueStyle.Render(strings.Join(snap.AffectedAssets, ", ")))
	}
	content := strings.Join(parts, " ")

	switch {
	case snap.Fault != "":
		content += "\n  " + errorStyle.Render("Fault: "+snap.Fault)
	case d.errMsg != "":
		content += "\n  " + errorStyle.Render("Error: "+d.errMsg)
	case d.notice != "":
		content += "\n  " + statusOKStyle.Render(d.notice)
	}
	if snap.ResolutionNotes != "" {
		content += "\n  " + detailLabelStyle.Render("Resolution: ") + snap.ResolutionNotes
	}

	content += "\n\n" + keyBarStyle.Render(keyBarText(busy, snap.Status == incident.StatusClosed))

	w := d.width - 4
	if w < 10 {
		w = 10
	}
	return detailBarStyle.Width(w).Render(content)
}

func sweepLabel(s incident.SweepState) string {
	switch s {
	case incident.SweepCompleted:
		return statusOKStyle.Render(string(s))
	case incident.SweepFailed, incident.SweepCancelled:
		return statusFailedStyle.Render(string(s))
	}
	return statusRunningStyle.Render(string(s))
}
