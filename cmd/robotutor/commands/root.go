// Package commands defines all Cobra CLI commands for the robotutor binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/robolabs/robotutor/internal/audit"
	"github.com/robolabs/robotutor/internal/config"
	"github.com/robolabs/robotutor/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "robotutor",
		Short: "robotutor is a robotics textbook tutor powered by RAG",
		Long: `robotutor answers questions about robotics using retrieval augmented
generation over an ingested textbook corpus.

Ingest markdown chapters once, then ask questions from the CLI or run the
HTTP server for interactive use. Answers are grounded in retrieved chapter
excerpts and cite their sources.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.robotutor/config.yaml).
See 'robotutor --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.robotutor/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewIngestCmd(),
		NewServeCmd(),
		NewStatsCmd(),
		NewSnapshotCmd(),
		NewDedupeCmd(),
		NewVersionCmd(),
	)

	return root
}
