// Package mcp exposes the engine's boundary operations as MCP tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/irflow/pkg/engine"
	"github.com/ormasoftchile/irflow/pkg/incident"
)

// NewServer creates an MCP server with the irflow tools registered
// against eng.
func NewServer(eng *engine.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"irflow",
		version,
		server.WithToolCapabilities(true),
	)
	h := &Handlers{Engine: eng}

	s.AddTool(
		mcp.NewTool("irflow/create_incident",
			mcp.WithDescription("Open an incident and start its playbook sweep"),
			mcp.WithString("title", mcp.Required(), mcp.Description("Short incident title")),
			mcp.WithString("incident_type", mcp.Required(), mcp.Description("Playbook incident type, e.g. ransomware")),
			mcp.WithString("severity", mcp.Description("Severity tag: LOW, MEDIUM, HIGH or CRITICAL")),
			mcp.WithString("description", mcp.Description("Free-text description")),
			mcp.WithArray("affected_assets", mcp.WithStringItems(), mcp.Description("Affected host or asset identifiers")),
			mcp.WithObject("indicators", mcp.Description("Named indicator lists, e.g. {\"malicious_ips\": [\"203.0.113.7\"]}")),
			mcp.WithString("assigned_to", mcp.Description("Responder the incident is assigned to")),
			mcp.WithBoolean("wait", mcp.Description("Wait for the initial sweep before returning")),
		),
		h.HandleCreateIncident,
	)

	s.AddTool(
		mcp.NewTool("irflow/get_incident_status",
			mcp.WithDescription("Return the current snapshot of an incident"),
			mcp.WithString("incident_id", mcp.Required(), mcp.Description("Incident identifier (INC-YYYYMMDD-NNNN)")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		h.HandleGetIncidentStatus,
	)

	s.AddTool(
		mcp.NewTool("irflow/list_incidents",
			mcp.WithDescription("List incidents, optionally filtered by status"),
			mcp.WithString("status", mcp.Enum(statusNames()...), mcp.Description("Only incidents in this status")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		h.HandleListIncidents,
	)

	s.AddTool(
		mcp.NewTool("irflow/advance_phase",
			mcp.WithDescription("Advance an incident to its next response phase when the phase gate allows it"),
			mcp.WithString("incident_id", mcp.Required(), mcp.Description("Incident identifier")),
			mcp.WithBoolean("sweep", mcp.Description("Sweep the new phase after advancing")),
		),
		h.HandleAdvancePhase,
	)

	s.AddTool(
		mcp.NewTool("irflow/sweep",
			mcp.WithDescription("Run the playbook steps eligible in the incident's current phase"),
			mcp.WithString("incident_id", mcp.Required(), mcp.Description("Incident identifier")),
		),
		h.HandleSweep,
	)

	s.AddTool(
		mcp.NewTool("irflow/set_status",
			mcp.WithDescription("Move an incident forward in its lifecycle"),
			mcp.WithString("incident_id", mcp.Required(), mcp.Description("Incident identifier")),
			mcp.WithString("status", mcp.Required(), mcp.Enum(statusNames()...), mcp.Description("New status")),
		),
		h.HandleSetStatus,
	)

	s.AddTool(
		mcp.NewTool("irflow/add_evidence",
			mcp.WithDescription("Attach an evidence record to an incident"),
			mcp.WithString("incident_id", mcp.Required(), mcp.Description("Incident identifier")),
			mcp.WithString("kind", mcp.Required(), mcp.Description("Evidence kind, e.g. ransom_note")),
			mcp.WithString("source", mcp.Description("Where the evidence came from")),
			mcp.WithObject("data", mcp.Description("Evidence payload")),
		),
		h.HandleAddEvidence,
	)

	s.AddTool(
		mcp.NewTool("irflow/approve",
			mcp.WithDescription("Record a required sign-off for a playbook step"),
			mcp.WithString("incident_id", mcp.Required(), mcp.Description("Incident identifier")),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("Playbook step id")),
			mcp.WithString("role", mcp.Required(), mcp.Description("Approving role, e.g. SOC Manager")),
			mcp.WithString("approver", mcp.Description("Name of the approver")),
		),
		h.HandleApprove,
	)

	s.AddTool(
		mcp.NewTool("irflow/close_incident",
			mcp.WithDescription("Close an incident and cancel its running sweep"),
			mcp.WithString("incident_id", mcp.Required(), mcp.Description("Incident identifier")),
			mcp.WithString("notes", mcp.Description("Resolution notes")),
			mcp.WithDestructiveHintAnnotation(true),
		),
		h.HandleCloseIncident,
	)

	s.AddTool(
		mcp.NewTool("irflow/list_playbooks",
			mcp.WithDescription("List registered playbooks, or the steps of one playbook"),
			mcp.WithString("incident_type", mcp.Description("Return the steps for this incident type")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		h.HandleListPlaybooks,
	)

	return s
}

func statusNames() []string {
	var out []string
	for _, s := range incident.Statuses() {
		out = append(out, s.String())
	}
	return out
}
