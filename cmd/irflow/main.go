package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadDotEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file from the working directory and sets any
// variables that aren't already set. Lines are KEY=VALUE; comments (#) and
// blanks are skipped.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// Global flags override the config file and environment.
var (
	configPath   string
	playbooksDir string
	logLevel     string
	tracePath    string
)

var rootCmd = &cobra.Command{
	Use:           "irflow",
	Short:         "Incident-response orchestration engine",
	Long:          "irflow drives security incidents through phase-gated response playbooks, dispatching containment actions to EDR and firewall connectors.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "irflow %s (commit %s)\n", version, commit)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to irflow.yaml (default: none, IRFLOW_* environment only)")
	pf.StringVar(&playbooksDir, "playbooks", "", "Directory of playbook YAML files to load")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&tracePath, "trace", "", "Append the audit trace to this JSONL file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(playbooksCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(mcpCmd)
}
