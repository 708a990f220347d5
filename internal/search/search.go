// Package search runs hybrid retrieval: vector similarity and lexical
// full-text search over one scope, merged into a single deterministic
// ranking, optionally re-ranked by a cross-encoder model.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	doc "github.com/dossier-ai/dossier/internal/document"
	"github.com/dossier-ai/dossier/internal/provider"
	"github.com/dossier-ai/dossier/internal/settings"
)

// Match is one retrieval hit.
type Match struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Filename   string    `json:"filename"`
	PageNumber *int      `json:"page_number,omitempty"`
	Excerpt    string    `json:"excerpt"`
	Score      float64   `json:"score"`
}

// store is the subset of the document store the engine uses.
type store interface {
	VectorSearch(ctx context.Context, q doc.VectorQuery) ([]doc.ChunkMatch, error)
	LexicalSearch(ctx context.Context, q doc.LexicalQuery) ([]doc.ChunkMatch, error)
	AssetSearch(ctx context.Context, q doc.VectorQuery) ([]doc.AssetMatch, error)
	HasReady(ctx context.Context, ownerID uuid.UUID, scope doc.Scope) (bool, error)
}

// settingsSource serves the runtime retrieval settings.
type settingsSource interface {
	Current(ctx context.Context) (settings.Retrieval, error)
}

// Engine executes hybrid searches.
type Engine struct {
	store     store
	registry  *provider.Registry
	settings  settingsSource
	threshold float64
	topK      int
	logger    *slog.Logger
}

// New creates a search engine. threshold is the minimum cosine similarity
// for the vector channel; topK the default result budget.
func New(s store, reg *provider.Registry, st settingsSource, threshold float64, topK int, logger *slog.Logger) (*Engine, error) {
	if s == nil || reg == nil || st == nil {
		return nil, fmt.Errorf("store, registry and settings are required")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold %v out of [0,1]", threshold)
	}
	if topK < 1 {
		return nil, fmt.Errorf("top k must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     s,
		registry:  reg,
		settings:  st,
		threshold: threshold,
		topK:      topK,
		logger:    logger,
	}, nil
}

// HasReadyDocuments reports whether the scope holds anything searchable.
// Callers use it to skip retrieval entirely for document-free conversations.
func (e *Engine) HasReadyDocuments(ctx context.Context, ownerID uuid.UUID, scope doc.Scope) (bool, error) {
	return e.store.HasReady(ctx, ownerID, scope)
}

// Search retrieves at most limit matches for the query within one scope.
// limit <= 0 means the engine's default budget.
//
// The vector channel requires a query embedding; if embedding fails the
// search degrades to lexical-only rather than failing. Re-ranking, when
// enabled, is likewise best-effort.
func (e *Engine) Search(ctx context.Context, ownerID uuid.UUID, scope doc.Scope, query string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = e.topK
	}
	current, err := e.settings.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading retrieval settings: %w", err)
	}

	// With re-ranking on, both channels fetch the candidate pool so the
	// re-ranker has something to work with beyond the final budget.
	fetch := limit
	rerank := current.RerankEnabled && e.registry.Reranker != nil
	if rerank && current.RerankCandidatePool > fetch {
		fetch = current.RerankCandidatePool
	}

	vector := e.vectorChannel(ctx, ownerID, scope, query, current, fetch)
	lexical := e.lexicalChannel(ctx, ownerID, scope, query, fetch)

	merged := merge(vector, lexical)

	if rerank {
		merged = e.rerank(ctx, current, query, merged, limit)
	}

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// SearchAssets retrieves image assets similar to the query within one
// scope. The asset channel is purely vector-based, so it requires a query
// embedding; embedding failure yields an error rather than silent emptiness
// since there is no lexical fallback to degrade to.
func (e *Engine) SearchAssets(ctx context.Context, ownerID uuid.UUID, scope doc.Scope, query string, limit int) ([]doc.AssetMatch, error) {
	if limit <= 0 {
		limit = e.topK
	}
	current, err := e.settings.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading retrieval settings: %w", err)
	}
	embedder, err := e.registry.ActiveEmbedder(current.EmbeddingProvider, current.EmbeddingDeployment)
	if err != nil {
		return nil, err
	}
	vectors, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding asset query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: %d embeddings for one query",
			provider.ErrMalformedResponse, len(vectors))
	}

	return e.store.AssetSearch(ctx, doc.VectorQuery{
		OwnerID:        ownerID,
		Scope:          scope,
		Embedding:      vectors[0],
		EmbeddingModel: embedder.ModelID(),
		Threshold:      e.threshold,
		Limit:          limit,
	})
}

// vectorChannel embeds the query and runs the similarity search. Any
// failure degrades the channel to empty.
func (e *Engine) vectorChannel(ctx context.Context, ownerID uuid.UUID, scope doc.Scope, query string, current settings.Retrieval, limit int) []doc.ChunkMatch {
	embedder, err := e.registry.ActiveEmbedder(current.EmbeddingProvider, current.EmbeddingDeployment)
	if err != nil {
		e.logger.Warn("vector channel unavailable", "error", err)
		return nil
	}
	vectors, err := embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		e.logger.Warn("query embedding failed, degrading to lexical-only", "error", err)
		return nil
	}

	matches, err := e.store.VectorSearch(ctx, doc.VectorQuery{
		OwnerID:        ownerID,
		Scope:          scope,
		Embedding:      vectors[0],
		EmbeddingModel: embedder.ModelID(),
		Threshold:      e.threshold,
		Limit:          limit,
	})
	if err != nil {
		e.logger.Warn("vector search failed, degrading to lexical-only", "error", err)
		return nil
	}
	return matches
}

func (e *Engine) lexicalChannel(ctx context.Context, ownerID uuid.UUID, scope doc.Scope, query string, limit int) []doc.ChunkMatch {
	matches, err := e.store.LexicalSearch(ctx, doc.LexicalQuery{
		OwnerID: ownerID,
		Scope:   scope,
		Query:   query,
		Limit:   limit,
	})
	if err != nil {
		e.logger.Warn("lexical search failed", "error", err)
		return nil
	}
	return matches
}

// merge unions the two channels by chunk identity. Vector hits come first
// in similarity order; chunks found only lexically follow in rank order with
// their rank normalized into (0,1) via rank/(rank+1). Both input orders are
// already deterministic (score, then document id, then chunk index), so the
// merged order is too.
func merge(vector, lexical []doc.ChunkMatch) []Match {
	seen := make(map[uuid.UUID]bool, len(vector))
	merged := make([]Match, 0, len(vector)+len(lexical))

	for _, m := range vector {
		seen[m.ChunkID] = true
		merged = append(merged, toMatch(m, m.Similarity))
	}
	for _, m := range lexical {
		if seen[m.ChunkID] {
			continue
		}
		merged = append(merged, toMatch(m, m.Rank/(m.Rank+1)))
	}
	return merged
}

func toMatch(m doc.ChunkMatch, score float64) Match {
	return Match{
		ChunkID:    m.ChunkID,
		DocumentID: m.DocumentID,
		ChunkIndex: m.ChunkIndex,
		Filename:   m.Filename,
		PageNumber: m.PageNumber,
		Excerpt:    m.Content,
		Score:      score,
	}
}

// rerank submits the top candidates to the re-ranking model and keeps its
// top picks. Any failure keeps the merged ordering: re-ranking improves
// results, it never gates them.
func (e *Engine) rerank(ctx context.Context, current settings.Retrieval, query string, merged []Match, limit int) []Match {
	pool := merged
	if len(pool) > current.RerankCandidatePool {
		pool = pool[:current.RerankCandidatePool]
	}
	if len(pool) == 0 {
		return merged
	}

	passages := make([]string, len(pool))
	for i, m := range pool {
		passages[i] = m.Excerpt
	}
	topN := min(current.RerankTopN, limit)

	ranked, err := e.registry.Reranker.Rerank(ctx, current.RerankModel, query, passages, topN)
	if err != nil {
		e.logger.Warn("re-ranking failed, keeping merged order", "error", err)
		return merged
	}

	result := make([]Match, 0, len(ranked))
	for _, r := range ranked {
		m := pool[r.Index]
		m.Score = r.Score
		result = append(result, m)
	}
	return result
}
