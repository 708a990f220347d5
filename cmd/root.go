// Package cmd implements the dossier command line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dossier-ai/dossier/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "dossier",
	Short: "Document retrieval service",
	Long: `Dossier ingests documents (PDF, images, plain text), chunks and embeds
them into PostgreSQL with pgvector, and serves hybrid vector and full-text
retrieval over HTTP.

Run "dossier migrate" once to create the schema, then "dossier serve".`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG in the environment switches to
// debug level, DOSSIER_LOG_JSON to JSON output.
func newLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	if os.Getenv("DOSSIER_LOG_JSON") != "" {
		cfg.JSON = true
	}
	return log.New(cfg)
}
