package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dossier-ai/dossier/internal/app"
	"github.com/dossier-ai/dossier/internal/config"
	"github.com/dossier-ai/dossier/internal/ingest"
)

var rechunkCmd = &cobra.Command{
	Use:   "rechunk",
	Short: "Re-chunk and re-embed all documents",
	Long: `Re-runs chunking and embedding over every ready and errored document
using the stored extracted text. Use after changing chunk settings or
switching the embedding provider. Ctrl+C stops after the current document.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRechunk()
	},
}

func init() {
	rootCmd.AddCommand(rechunkCmd)
}

func runRechunk() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	if err := a.Rechunker.Start(ctx); err != nil {
		return fmt.Errorf("starting rechunk: %w", err)
	}

	done := make(chan struct{})
	go func() {
		a.Rechunker.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		logger.Info("stopping after current document")
		a.Rechunker.Cancel()
		<-done
	case <-done:
	}

	status := a.Rechunker.Status()
	if status.Result != nil {
		logger.Info("rechunk finished",
			"state", status.State,
			"processed", status.Result.Processed,
			"failed", status.Result.Failed,
			"skipped", status.Result.Skipped,
			"total", status.Result.Total,
		)
	}
	if status.State == ingest.RechunkCompleted && status.Result != nil && status.Result.Failed > 0 {
		return fmt.Errorf("%d documents failed to rechunk", status.Result.Failed)
	}
	return nil
}
