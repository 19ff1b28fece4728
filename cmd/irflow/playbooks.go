package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/irflow/pkg/diagram"
	"github.com/ormasoftchile/irflow/pkg/engine"
	"github.com/ormasoftchile/irflow/pkg/playbook"
)

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [playbook.yaml...]",
	Short: "Validate playbook YAML files against the schema and domain rules",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
	},
}

func runValidate(stdout, stderr io.Writer, paths []string) error {
	failed := 0
	for _, path := range paths {
		pb, errs := playbook.ValidateFile(path)
		var errors, warnings []*playbook.ValidationError
		for _, e := range errs {
			if e.Severity == "warning" {
				warnings = append(warnings, e)
			} else {
				errors = append(errors, e)
			}
		}
		for _, w := range warnings {
			fmt.Fprintf(stderr, "  ⚠ %s: [%s] %s\n", path, w.Phase, w.Message)
			if w.Path != "" {
				fmt.Fprintf(stderr, "    at: %s\n", w.Path)
			}
		}
		if len(errors) > 0 {
			failed++
			fmt.Fprintf(stderr, "✗ %s: %d error(s)\n", path, len(errors))
			for i, e := range errors {
				fmt.Fprintf(stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(stderr, "     at: %s\n", e.Path)
				}
			}
			continue
		}
		fmt.Fprintf(stdout, "✓ %s is valid (%s, %d steps)\n", path, pb.Meta.IncidentType, len(pb.Steps))
	}
	if failed > 0 {
		return fmt.Errorf("validation failed for %d of %d file(s)", failed, len(paths))
	}
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Playbook schema operations",
}

var schemaOut string

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the playbook JSON Schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := playbook.GenerateJSONSchema()
		if err != nil {
			return err
		}
		if schemaOut == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		if err := os.WriteFile(schemaOut, data, 0o644); err != nil {
			return fmt.Errorf("write schema: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", schemaOut)
		return nil
	},
}

// --- playbooks ---

var playbooksDiagram string

var playbooksCmd = &cobra.Command{
	Use:   "playbooks [incident-type]",
	Short: "List registered playbooks, or print one as YAML or a diagram",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if playbooksDiagram != "" {
				if len(args) == 0 {
					return fmt.Errorf("--diagram needs an incident type")
				}
				return printDiagram(cmd.OutOrStdout(), a.engine, args[0], diagram.Format(playbooksDiagram))
			}
			return printPlaybooks(cmd.OutOrStdout(), a.engine, args)
		})
	},
}

func printDiagram(w io.Writer, eng *engine.Engine, incidentType string, format diagram.Format) error {
	steps, err := eng.Playbook(incidentType)
	if err != nil {
		return err
	}
	out, err := diagram.Generate(incidentType, steps, format)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func printPlaybooks(w io.Writer, eng *engine.Engine, args []string) error {
	if len(args) == 0 {
		for _, t := range eng.Playbooks() {
			steps, err := eng.Playbook(t)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%-24s %d steps\n", t, len(steps))
		}
		return nil
	}
	steps, err := eng.Playbook(args[0])
	if err != nil {
		return err
	}
	data, err := playbook.Marshal(&playbook.Playbook{
		APIVersion: playbook.APIVersion,
		Meta:       playbook.Meta{Name: args[0], IncidentType: args[0]},
		Steps:      steps,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func init() {
	playbooksCmd.Flags().StringVar(&playbooksDiagram, "diagram", "", "Render the playbook as a diagram: mermaid or ascii")
	schemaExportCmd.Flags().StringVar(&schemaOut, "out", "", "Write the schema to this file instead of stdout")
	schemaCmd.AddCommand(schemaExportCmd)
}
