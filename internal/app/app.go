// Package app wires configuration, storage, providers and the retrieval
// services into one application instance.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dossier-ai/dossier/internal/config"
	doc "github.com/dossier-ai/dossier/internal/document"
	"github.com/dossier-ai/dossier/internal/ingest"
	"github.com/dossier-ai/dossier/internal/log"
	"github.com/dossier-ai/dossier/internal/provider"
	"github.com/dossier-ai/dossier/internal/search"
	"github.com/dossier-ai/dossier/internal/settings"
)

// closeTimeout bounds the wait for in-flight ingestion work and the trace
// flush during shutdown.
const closeTimeout = 30 * time.Second

// App holds the initialized application components.
type App struct {
	Config    *config.Config
	Pool      *pgxpool.Pool
	Genkit    *genkit.Genkit
	Registry  *provider.Registry
	Store     *doc.Store
	Settings  *settings.Service
	Pipeline  *ingest.Pipeline
	Rechunker *ingest.Rechunker
	Engine    *search.Engine
	Logger    log.Logger

	otelShutdown func(context.Context) error
}

// Close releases all resources. It waits for in-flight ingestion goroutines
// so document rows are not left stuck in processing, then closes the pool
// and flushes pending trace spans.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error

	if a.Rechunker != nil {
		a.Rechunker.Cancel()
		a.Rechunker.Wait()
	}
	if a.Pipeline != nil {
		a.Pipeline.Wait()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
