package main

import (
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/irflow/pkg/console"
	irmcp "github.com/ormasoftchile/irflow/pkg/mcp"
)

// --- console ---

var consoleAs string

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the interactive incident console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return console.New(a.engine, consoleAs).Run(cmd.Context())
		})
	},
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the irflow tools over MCP on stdio",
	Long: `Serve the irflow tools to an AI agent over the Model Context Protocol
on stdin/stdout. Logs must not go to stdout; set log.output or leave the
default stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			s := irmcp.NewServer(a.engine, version)
			return server.ServeStdio(s)
		})
	},
}

func init() {
	consoleCmd.Flags().StringVar(&consoleAs, "as", os.Getenv("USER"), "Approver identity recorded by 'approve'")
}
