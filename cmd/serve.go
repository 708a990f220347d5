package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dossier-ai/dossier/internal/api"
	"github.com/dossier-ai/dossier/internal/app"
	"github.com/dossier-ai/dossier/internal/config"
)

// Rate limit defaults for the HTTP API, overridable via environment.
const (
	defaultRatePerSecond = 10
	defaultRateBurst     = 30
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting dossier", "version", AppVersion, "addr", cfg.ListenAddr)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	srv := api.NewServer(api.Config{
		MaxUploadBytes:     int64(cfg.MaxUploadMB) << 20,
		RateLimitPerSecond: envFloat("DOSSIER_RATE_LIMIT", defaultRatePerSecond),
		RateLimitBurst:     envInt("DOSSIER_RATE_BURST", defaultRateBurst),
		TrustProxy:         cfg.TrustProxy,
	},
		api.NewHealthHandler(a.Pool, AppVersion, logger),
		api.NewDocumentHandler(a.Pipeline, a.Store, logger),
		api.NewSearchHandler(a.Engine, logger),
		api.NewAdminHandler(a.Rechunker, a.Settings, logger),
		logger,
	)

	return srv.Run(ctx, cfg.ListenAddr)
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
