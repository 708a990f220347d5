package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	doc "github.com/dossier-ai/dossier/internal/document"
	"github.com/dossier-ai/dossier/internal/provider"
	"github.com/dossier-ai/dossier/internal/search"
)

// searcher is the subset of the search engine the handler uses.
type searcher interface {
	Search(ctx context.Context, ownerID uuid.UUID, scope doc.Scope, query string, limit int) ([]search.Match, error)
	SearchAssets(ctx context.Context, ownerID uuid.UUID, scope doc.Scope, query string, limit int) ([]doc.AssetMatch, error)
	HasReadyDocuments(ctx context.Context, ownerID uuid.UUID, scope doc.Scope) (bool, error)
}

// SearchHandler serves retrieval queries.
type SearchHandler struct {
	engine searcher
	logger *slog.Logger
}

// NewSearchHandler creates the search handler.
func NewSearchHandler(engine searcher, logger *slog.Logger) *SearchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers the search endpoints.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.handleSearch)
	mux.HandleFunc("GET /api/search/readiness", h.handleReadiness)
}

type searchRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
	PoolID         string `json:"pool_id,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	IncludeAssets  bool   `json:"include_assets,omitempty"`
}

type assetMatchResponse struct {
	AssetID    string  `json:"asset_id"`
	DocumentID string  `json:"document_id"`
	PageNumber *int    `json:"page_number,omitempty"`
	Caption    string  `json:"caption,omitempty"`
	OCRText    string  `json:"ocr_text,omitempty"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

type searchResponse struct {
	Matches   []search.Match       `json:"matches"`
	Citations []search.Citation    `json:"citations"`
	Sources   []search.Source      `json:"sources"`
	Context   string               `json:"context"`
	Assets    []assetMatchResponse `json:"assets,omitempty"`
}

func (h *SearchHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query is required")
		return
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must not be negative")
		return
	}

	scope, ok := h.parseScope(w, req.ConversationID, req.PoolID)
	if !ok {
		return
	}

	matches, err := h.engine.Search(r.Context(), ownerID, scope, req.Query, req.Limit)
	if err != nil {
		h.writeSearchError(w, err)
		return
	}

	resp := searchResponse{
		Matches:   matches,
		Citations: search.Citations(matches),
		Sources:   search.Sources(matches),
		Context:   search.BuildContext(matches),
	}

	if req.IncludeAssets {
		assets, assetErr := h.engine.SearchAssets(r.Context(), ownerID, scope, req.Query, req.Limit)
		if assetErr != nil {
			// Chunk results already answered the query; asset misses are
			// logged and the field stays empty.
			h.logger.Warn("asset search failed", "error", assetErr)
		}
		for _, a := range assets {
			resp.Assets = append(resp.Assets, assetMatchResponse{
				AssetID:    a.AssetID.String(),
				DocumentID: a.DocumentID.String(),
				PageNumber: a.PageNumber,
				Caption:    a.Caption,
				OCRText:    a.OCRText,
				Filename:   a.Filename,
				Score:      a.Similarity,
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleReadiness reports whether the scope has at least one ready document,
// so callers can skip retrieval for empty scopes.
func (h *SearchHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	scope, ok := h.parseScope(w, q.Get("conversation_id"), q.Get("pool_id"))
	if !ok {
		return
	}

	ready, err := h.engine.HasReadyDocuments(r.Context(), ownerID, scope)
	if err != nil {
		h.logger.Error("readiness check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "readiness_failed", "could not check document readiness")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"has_ready_documents": ready})
}

func (h *SearchHandler) parseScope(w http.ResponseWriter, conversationID, poolID string) (doc.Scope, bool) {
	if conversationID != "" && poolID != "" {
		writeError(w, http.StatusBadRequest, "scope_conflict",
			"conversation_id and pool_id are mutually exclusive")
		return doc.Scope{}, false
	}
	switch {
	case poolID != "":
		id, err := uuid.Parse(poolID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pool_id", "pool_id is not a UUID")
			return doc.Scope{}, false
		}
		return doc.PoolScope(id), true
	case conversationID != "":
		id, err := uuid.Parse(conversationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_conversation_id", "conversation_id is not a UUID")
			return doc.Scope{}, false
		}
		return doc.ConversationScope(id), true
	default:
		return doc.GlobalScope(), true
	}
}

func (h *SearchHandler) writeSearchError(w http.ResponseWriter, err error) {
	if errors.Is(err, provider.ErrNoCredential) {
		writeError(w, http.StatusServiceUnavailable, "provider_unconfigured", err.Error())
		return
	}
	h.logger.Error("search failed", "error", err)
	writeError(w, http.StatusInternalServerError, "search_failed", "search could not be completed")
}
