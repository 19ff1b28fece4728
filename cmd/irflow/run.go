package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/irflow/pkg/engine"
	"github.com/ormasoftchile/irflow/pkg/tui"
)

// incidentFlags are shared by run and watch.
type incidentFlags struct {
	title       string
	description string
	severity    string
	kind        string
	assignedTo  string
	assets      []string
	indicators  []string
}

func (f *incidentFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.title, "title", "", "Incident title (required)")
	fl.StringVar(&f.kind, "type", "", "Incident type selecting the playbook (required)")
	fl.StringVar(&f.severity, "severity", "MEDIUM", "Severity: LOW, MEDIUM, HIGH or CRITICAL")
	fl.StringVar(&f.description, "description", "", "Free-text description")
	fl.StringVar(&f.assignedTo, "assign", "", "Responder the incident is assigned to")
	fl.StringSliceVar(&f.assets, "asset", nil, "Affected asset, repeatable or comma separated")
	fl.StringArrayVar(&f.indicators, "indicator", nil, "Indicator list as name=v1,v2 (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("type")
}

func (f *incidentFlags) request() (engine.NewIncident, error) {
	indicators, err := parseIndicators(f.indicators)
	if err != nil {
		return engine.NewIncident{}, err
	}
	return engine.NewIncident{
		Title:          f.title,
		Description:    f.description,
		Severity:       f.severity,
		Type:           f.kind,
		AffectedAssets: f.assets,
		Indicators:     indicators,
		AssignedTo:     f.assignedTo,
	}, nil
}

// parseIndicators turns name=v1,v2 flags into indicator lists.
func parseIndicators(flags []string) (map[string][]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string][]string, len(flags))
	for _, f := range flags {
		name, values, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("--indicator %q: want name=value[,value]", f)
		}
		for _, v := range strings.Split(values, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out[name] = append(out[name], v)
			}
		}
	}
	return out, nil
}

// --- run ---

var (
	runFlags   incidentFlags
	runAdvance bool
	runClose   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open an incident, sweep its playbook and print the result",
	Long: `Open an incident and wait for its initial sweep. With --advance the
incident is walked through every phase the gate allows. The final
snapshot is printed as JSON.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := runFlags.request()
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			return runIncident(cmd.Context(), cmd.OutOrStdout(), a.engine, req, runAdvance, runClose)
		})
	},
}

func runIncident(ctx context.Context, w io.Writer, eng *engine.Engine, req engine.NewIncident, advance bool, closeNotes string) error {
	id, err := eng.CreateIncident(ctx, req)
	if err != nil {
		return err
	}
	if err := eng.Wait(ctx, id); err != nil {
		return err
	}
	if advance {
		if err := advanceAll(ctx, eng, id); err != nil {
			return err
		}
	}
	if closeNotes != "" {
		if err := eng.Close(id, closeNotes); err != nil {
			return err
		}
	}
	snap, err := eng.GetIncidentStatus(id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// advanceAll advances and sweeps until the gate blocks or the final phase
// is reached. A blocked gate is not an error.
func advanceAll(ctx context.Context, eng *engine.Engine, id string) error {
	for {
		snap, err := eng.GetIncidentStatus(id)
		if err != nil {
			return err
		}
		if snap.Fault != "" {
			return nil
		}
		if _, ok := snap.Phase.Next(); !ok {
			return nil
		}
		if _, err := eng.AdvancePhase(ctx, id); err != nil {
			if isGateStop(err) {
				return nil
			}
			return err
		}
		if _, err := eng.Sweep(ctx, id); err != nil {
			return err
		}
	}
}

func isGateStop(err error) bool {
	return errors.Is(err, engine.ErrGateBlocked) || errors.Is(err, engine.ErrFinalPhase)
}

// --- watch ---

var watchFlags incidentFlags

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open an incident and follow it in the terminal dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := watchFlags.request()
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app) error {
			id, err := a.engine.CreateIncident(cmd.Context(), req)
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), tui.Config{Engine: a.engine, IncidentID: id})
		})
	},
}

func init() {
	runFlags.register(runCmd)
	runCmd.Flags().BoolVar(&runAdvance, "advance", false, "Advance through every phase the gate allows")
	runCmd.Flags().StringVar(&runClose, "close", "", "Close the incident with these resolution notes")
	watchFlags.register(watchCmd)
}
