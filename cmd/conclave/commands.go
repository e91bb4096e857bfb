// commands.go contains the cobra command definitions; each builder wires
// flags to its handler in serve.go / conversations.go / events.go.
package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "conclave.yaml"

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the collaboration kernel server",
		Long: `Start the streaming HTTP server: load the agent roster from config,
connect the reasoning oracle, open the conversation store, and serve
/v1/chat, /healthz, and /metrics until SIGINT/SIGTERM.`,
		Example: `  conclave serve
  conclave serve --config /etc/conclave/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildHealthCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running server's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "Base URL of the running server")
	return cmd
}

func buildConversationsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Inspect and manage the conversation store",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List conversation summaries",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConversationsList(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Print one conversation's full message log",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConversationsGet(cmd.Context(), configPath, args[0])
			},
		},
		&cobra.Command{
			Use:   "search <query>",
			Short: "Search conversation titles",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConversationsSearch(cmd.Context(), configPath, args[0])
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a conversation and its messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConversationsDelete(cmd.Context(), configPath, args[0])
			},
		},
	)
	return cmd
}

func buildEventsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and replay the persisted event log",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")

	var tailN int
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the last N events from the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsTail(configPath, tailN)
		},
	}
	tailCmd.Flags().IntVarP(&tailN, "lines", "n", 20, "Number of trailing events to print")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild the actor table from the event log's structural events",
		Long: `Replay spawn_agent system-calls from the persisted event log through a
fresh kernel and print the resulting actor table. Reasoning history is
not restored — recovery is structural only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEventsReplay(cmd.Context(), configPath)
		},
	}

	cmd.AddCommand(tailCmd, replayCmd)
	return cmd
}
