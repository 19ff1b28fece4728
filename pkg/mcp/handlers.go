package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/irflow/pkg/engine"
	"github.com/ormasoftchile/irflow/pkg/incident"
)

// Handlers implements the irflow MCP tools against one engine.
type Handlers struct {
	Engine *engine.Engine
}

// HandleCreateIncident implements irflow/create_incident.
func (h *Handlers) HandleCreateIncident(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := req.GetString("title", "")
	incidentType := req.GetString("incident_type", "")
	if title == "" || incidentType == "" {
		return errorResult("title and incident_type arguments are required"), nil
	}
	indicators, err := stringLists(req.GetArguments()["indicators"])
	if err != nil {
		return errorResult(err.Error()), nil
	}

	id, err := h.Engine.CreateIncident(ctx, engine.NewIncident{
		Title:          title,
		Description:    req.GetString("description", ""),
		Severity:       req.GetString("severity", "MEDIUM"),
		Type:           incidentType,
		AffectedAssets: req.GetStringSlice("affected_assets", nil),
		Indicators:     indicators,
		AssignedTo:     req.GetString("assigned_to", ""),
	})
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if !req.GetBool("wait", false) {
		return jsonResult(map[string]any{"incident_id": id})
	}
	if err := h.Engine.Wait(ctx, id); err != nil {
		return errorResult(fmt.Sprintf("wait for %s: %s", id, err)), nil
	}
	return h.snapshot(id)
}

// HandleGetIncidentStatus implements irflow/get_incident_status.
func (h *Handlers) HandleGetIncidentStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("incident_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return h.snapshot(id)
}

// incidentRow is the list_incidents summary of one incident.
type incidentRow struct {
	ID       string `json:"incident_id"`
	Title    string `json:"title"`
	Type     string `json:"incident_type"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Phase    string `json:"current_phase"`
	Sweep    string `json:"sweep_state"`
	Fault    string `json:"fault,omitempty"`
}

// HandleListIncidents implements irflow/list_incidents.
func (h *Handlers) HandleListIncidents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := req.GetString("status", "")
	if filter != "" {
		if _, err := incident.ParseStatus(filter); err != nil {
			return errorResult(err.Error()), nil
		}
	}
	rows := []incidentRow{}
	for _, s := range h.Engine.List() {
		if filter != "" && s.Status.String() != filter {
			continue
		}
		rows = append(rows, incidentRow{
			ID:       s.ID,
			Title:    s.Title,
			Type:     s.Type,
			Severity: s.Severity,
			Status:   s.Status.String(),
			Phase:    s.Phase.String(),
			Sweep:    string(s.Sweep),
			Fault:    s.Fault,
		})
	}
	return jsonResult(rows)
}

// HandleAdvancePhase implements irflow/advance_phase.
func (h *Handlers) HandleAdvancePhase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("incident_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	phase, err := h.Engine.AdvancePhase(ctx, id)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	resp := map[string]any{"incident_id": id, "current_phase": phase.String()}
	if req.GetBool("sweep", false) {
		rep, err := h.Engine.Sweep(ctx, id)
		if err != nil {
			return errorResult(fmt.Sprintf("advanced to %s, sweep failed: %s", phase, err)), nil
		}
		resp["sweep"] = rep
	}
	return jsonResult(resp)
}

// HandleSweep implements irflow/sweep.
func (h *Handlers) HandleSweep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("incident_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	rep, err := h.Engine.Sweep(ctx, id)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(rep)
}

// HandleSetStatus implements irflow/set_status.
func (h *Handlers) HandleSetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("incident_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	status, err := incident.ParseStatus(strings.ToLower(req.GetString("status", "")))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if err := h.Engine.SetStatus(id, status); err != nil {
		return errorResult(err.Error()), nil
	}
	return h.snapshot(id)
}

// HandleAddEvidence implements irflow/add_evidence.
func (h *Handlers) HandleAddEvidence(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("incident_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	ev := incident.Evidence{
		Kind:   req.GetString("kind", ""),
		Source: req.GetString("source", ""),
	}
	if data, ok := req.GetArguments()["data"].(map[string]any); ok {
		ev.Data = data
	}
	if err := h.Engine.AddEvidence(id, ev); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("evidence %s added to %s", ev.Kind, id)), nil
}

// HandleApprove implements irflow/approve.
func (h *Handlers) HandleApprove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("incident_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	stepID := req.GetString("step_id", "")
	role := req.GetString("role", "")
	if err := h.Engine.Approve(id, stepID, role, req.GetString("approver", "")); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("%s approved %s on %s", role, stepID, id)), nil
}

// HandleCloseIncident implements irflow/close_incident.
func (h *Handlers) HandleCloseIncident(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("incident_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if err := h.Engine.Close(id, req.GetString("notes", "")); err != nil {
		return errorResult(err.Error()), nil
	}
	return h.snapshot(id)
}

// HandleListPlaybooks implements irflow/list_playbooks.
func (h *Handlers) HandleListPlaybooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t := req.GetString("incident_type", ""); t != "" {
		steps, err := h.Engine.Playbook(t)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return jsonResult(steps)
	}
	type row struct {
		IncidentType string `json:"incident_type"`
		Steps        int    `json:"steps"`
	}
	rows := []row{}
	for _, t := range h.Engine.Playbooks() {
		steps, err := h.Engine.Playbook(t)
		if err != nil {
			continue
		}
		rows = append(rows, row{IncidentType: t, Steps: len(steps)})
	}
	return jsonResult(rows)
}

func (h *Handlers) snapshot(id string) (*mcp.CallToolResult, error) {
	snap, err := h.Engine.GetIncidentStatus(id)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(snap)
}

// stringLists converts a JSON object of string arrays.
func stringLists(v any) (map[string][]string, error) {
	if v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("indicators must be an object of string arrays")
	}
	out := make(map[string][]string, len(obj))
	for k, raw := range obj {
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("indicators.%s must be an array of strings", k)
		}
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("indicators.%s must be an array of strings", k)
			}
			out[k] = append(out[k], s)
		}
	}
	return out, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %s", err)), nil
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
