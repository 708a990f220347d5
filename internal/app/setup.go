package app

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dossier-ai/dossier/db"
	"github.com/dossier-ai/dossier/internal/chunk"
	"github.com/dossier-ai/dossier/internal/config"
	doc "github.com/dossier-ai/dossier/internal/document"
	"github.com/dossier-ai/dossier/internal/extract"
	"github.com/dossier-ai/dossier/internal/ingest"
	"github.com/dossier-ai/dossier/internal/log"
	"github.com/dossier-ai/dossier/internal/observability"
	"github.com/dossier-ai/dossier/internal/provider"
	"github.com/dossier-ai/dossier/internal/provider/azure"
	"github.com/dossier-ai/dossier/internal/provider/cohere"
	"github.com/dossier-ai/dossier/internal/provider/googleai"
	"github.com/dossier-ai/dossier/internal/provider/mistral"
	"github.com/dossier-ai/dossier/internal/provider/openai"
	"github.com/dossier-ai/dossier/internal/search"
	"github.com/dossier-ai/dossier/internal/settings"
)

// Embedding providers bill per request; keep bursts of chunk batches from
// tripping their limits.
const (
	embedRequestsPerSecond = 5
	embedBurst             = 10
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if cfg.Datadog.Enabled {
		shutdown, err := observability.SetupDatadog(ctx, observability.Config{
			AgentHost:   cfg.Datadog.AgentHost,
			Environment: cfg.Datadog.Environment,
			ServiceName: cfg.Datadog.ServiceName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.otelShutdown = shutdown
	}

	pool, err := db.Connect(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.Pool = pool

	if err := provideGenkit(ctx, a); err != nil {
		return nil, err
	}

	a.Registry = provideRegistry(a.Genkit, cfg)

	if err := provideServices(pool, a); err != nil {
		return nil, err
	}

	return a, nil
}

// provideGenkit initializes Genkit with the Google AI plugin when a Gemini
// key is present. Without a key the summarizer stays disabled and documents
// are ingested without summaries.
func provideGenkit(ctx context.Context, a *App) error {
	if a.Config.Providers.GeminiAPIKey == "" {
		a.Logger.Info("GEMINI_API_KEY not set, document summaries disabled")
		return nil
	}

	a.Genkit = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{
		APIKey: a.Config.Providers.GeminiAPIKey,
	}))
	return nil
}

func provideRegistry(g *genkit.Genkit, cfg *config.Config) *provider.Registry {
	p := cfg.Providers

	openaiEmbedder := provider.NewRateLimitedEmbedder(
		openai.NewEmbedder(p.OpenAIAPIKey, p.EmbeddingModel),
		embedRequestsPerSecond, embedBurst,
	)

	return &provider.Registry{
		OpenAI: openaiEmbedder,
		NewAzure: func(deployment string) provider.Embedder {
			if deployment == "" {
				deployment = p.EmbeddingModel
			}
			return provider.NewRateLimitedEmbedder(
				azure.NewEmbedder(p.AzureAPIKey, p.AzureEndpoint, deployment, p.AzureAPIVersion),
				embedRequestsPerSecond, embedBurst,
			)
		},
		OCR:        mistral.NewOCR(p.MistralAPIKey),
		Reranker:   cohere.NewReranker(p.CohereAPIKey),
		Summarizer: googleai.NewSummarizer(g, p.SummaryModel, p.GeminiAPIKey != ""),
	}
}

func provideServices(pool *pgxpool.Pool, a *App) error {
	cfg := a.Config

	store, err := doc.NewStore(pool, a.Logger.With("component", "store"))
	if err != nil {
		return fmt.Errorf("creating document store: %w", err)
	}
	a.Store = store

	settingsSvc, err := settings.NewService(pool, a.Logger.With("component", "settings"))
	if err != nil {
		return fmt.Errorf("creating settings service: %w", err)
	}
	a.Settings = settingsSvc

	chunker, err := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	extractor := extract.New(a.Registry.OCR, a.Logger.With("component", "extract"))

	pipeline, err := ingest.New(store, extractor, chunker, a.Registry, settingsSvc,
		a.Logger.With("component", "ingest"))
	if err != nil {
		return fmt.Errorf("creating ingest pipeline: %w", err)
	}
	a.Pipeline = pipeline
	a.Rechunker = ingest.NewRechunker(pipeline, a.Logger.With("component", "rechunk"))

	engine, err := search.New(store, a.Registry, settingsSvc,
		cfg.SimilarityThreshold, cfg.TopK, a.Logger.With("component", "search"))
	if err != nil {
		return fmt.Errorf("creating search engine: %w", err)
	}
	a.Engine = engine

	return nil
}
