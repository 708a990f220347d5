package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dossier-ai/dossier/internal/ingest"
	"github.com/dossier-ai/dossier/internal/settings"
)

// rechunker controls the background re-embedding batch.
type rechunker interface {
	Start(ctx context.Context) error
	Cancel()
	Status() ingest.RechunkStatus
}

// settingsService reads and updates runtime retrieval settings.
type settingsService interface {
	Current(ctx context.Context) (settings.Retrieval, error)
	Update(ctx context.Context, changes map[string]string) (settings.Retrieval, error)
}

// AdminHandler serves the rechunk and retrieval-settings endpoints.
type AdminHandler struct {
	rechunker rechunker
	settings  settingsService
	logger    *slog.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(rc rechunker, svc settingsService, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{rechunker: rc, settings: svc, logger: logger}
}

// RegisterRoutes registers the admin endpoints.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/rechunk", h.handleRechunkStart)
	mux.HandleFunc("GET /api/admin/rechunk/status", h.handleRechunkStatus)
	mux.HandleFunc("POST /api/admin/rechunk/cancel", h.handleRechunkCancel)
	mux.HandleFunc("GET /api/admin/retrieval-settings", h.handleGetSettings)
	mux.HandleFunc("PATCH /api/admin/retrieval-settings", h.handleUpdateSettings)
}

func (h *AdminHandler) handleRechunkStart(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}

	err := h.rechunker.Start(r.Context())
	if errors.Is(err, ingest.ErrRechunkRunning) {
		writeError(w, http.StatusConflict, "rechunk_running", "a rechunk batch is already running")
		return
	}
	if err != nil {
		h.logger.Error("starting rechunk failed", "error", err)
		writeError(w, http.StatusInternalServerError, "rechunk_failed", "could not start rechunk")
		return
	}
	writeJSON(w, http.StatusAccepted, h.rechunker.Status())
}

func (h *AdminHandler) handleRechunkStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.rechunker.Status())
}

func (h *AdminHandler) handleRechunkCancel(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}
	h.rechunker.Cancel()
	writeJSON(w, http.StatusOK, h.rechunker.Status())
}

// retrievalSettingsResponse is the JSON shape of the runtime settings.
type retrievalSettingsResponse struct {
	RerankEnabled       bool   `json:"rerank_enabled"`
	RerankCandidatePool int    `json:"rerank_candidate_pool"`
	RerankTopN          int    `json:"rerank_top_n"`
	RerankModel         string `json:"rerank_model"`
	EmbeddingProvider   string `json:"embedding_provider"`
	EmbeddingDeployment string `json:"embedding_deployment"`
}

func toSettingsResponse(s settings.Retrieval) retrievalSettingsResponse {
	return retrievalSettingsResponse{
		RerankEnabled:       s.RerankEnabled,
		RerankCandidatePool: s.RerankCandidatePool,
		RerankTopN:          s.RerankTopN,
		RerankModel:         s.RerankModel,
		EmbeddingProvider:   s.EmbeddingProvider,
		EmbeddingDeployment: s.EmbeddingDeployment,
	}
}

func (h *AdminHandler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}

	current, err := h.settings.Current(r.Context())
	if err != nil {
		h.logger.Error("loading retrieval settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "settings_failed", "could not load retrieval settings")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(current))
}

func (h *AdminHandler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerID(w, r); !ok {
		return
	}

	var changes map[string]string
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}
	if len(changes) == 0 {
		writeError(w, http.StatusBadRequest, "empty_update", "no settings provided")
		return
	}

	updated, err := h.settings.Update(r.Context(), changes)
	switch {
	case errors.Is(err, settings.ErrUnknownKey), errors.Is(err, settings.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, "invalid_settings", err.Error())
		return
	case err != nil:
		h.logger.Error("updating retrieval settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "settings_failed", "could not update retrieval settings")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(updated))
}
