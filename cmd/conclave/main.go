// Package main is the CLI entry point for the conclave collaboration
// kernel: a leader-led multi-agent runtime served over a streaming HTTP
// endpoint, with control commands for conversation history and the
// persisted event log.
//
// Start the server:
//
//	conclave serve --config conclave.yaml
//
// Inspect a running server:
//
//	conclave health
//	conclave conversations list
//	conclave events tail -n 50
//
// Configuration can reference environment variables (expanded on load),
// including ANTHROPIC_API_KEY / OPENAI_API_KEY for the reasoning oracle.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "conclave",
		Short:        "Conclave - multi-agent collaboration kernel",
		Long:         "Conclave hosts a leader-led set of conversational agents behind a streaming HTTP endpoint,\nrouting delegation and tool calls through an in-process kernel.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildHealthCmd(),
		buildConversationsCmd(),
		buildEventsCmd(),
	)
	return rootCmd
}
