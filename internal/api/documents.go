package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	doc "github.com/dossier-ai/dossier/internal/document"
	"github.com/dossier-ai/dossier/internal/extract"
	"github.com/dossier-ai/dossier/internal/ingest"
	"github.com/dossier-ai/dossier/internal/provider"
)

// ingestor starts document processing.
type ingestor interface {
	Ingest(ctx context.Context, req ingest.UploadRequest) (uuid.UUID, error)
}

// documentStore is the subset of the store the document handler uses.
type documentStore interface {
	Get(ctx context.Context, id, ownerID uuid.UUID) (*doc.Document, error)
	ListByScope(ctx context.Context, ownerID uuid.UUID, scope doc.Scope) ([]*doc.Document, error)
	ListVisible(ctx context.Context, ownerID, conversationID uuid.UUID) ([]*doc.Document, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
}

// DocumentHandler serves upload, listing, detail and deletion.
type DocumentHandler struct {
	ingestor ingestor
	store    documentStore
	logger   *slog.Logger

	maxUploadBytes int64 // set by NewServer from its Config
}

// NewDocumentHandler creates the document handler.
func NewDocumentHandler(ing ingestor, store documentStore, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{ingestor: ing, store: store, logger: logger}
}

// RegisterRoutes registers the document endpoints.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.handleUpload)
	mux.HandleFunc("GET /api/documents", h.handleList)
	mux.HandleFunc("GET /api/documents/{id}", h.handleGet)
	mux.HandleFunc("DELETE /api/documents/{id}", h.handleDelete)
}

// documentResponse is the JSON shape of one document.
type documentResponse struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	FileType       string    `json:"file_type"`
	FileSizeBytes  int64     `json:"file_size_bytes"`
	Summary        string    `json:"summary,omitempty"`
	ChunkCount     int       `json:"chunk_count"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Scope          string    `json:"scope"`
	ConversationID string    `json:"conversation_id,omitempty"`
	PoolID         string    `json:"pool_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toDocumentResponse(d *doc.Document) documentResponse {
	resp := documentResponse{
		ID:            d.ID.String(),
		Filename:      d.Filename,
		FileType:      string(d.FileType),
		FileSizeBytes: d.FileSizeBytes,
		Summary:       d.Summary,
		ChunkCount:    d.ChunkCount,
		Status:        string(d.Status),
		ErrorMessage:  d.ErrorMessage,
		CreatedAt:     d.CreatedAt,
	}
	switch d.Scope.Kind() {
	case doc.ScopePool:
		id, _ := d.Scope.PoolID()
		resp.Scope = "pool"
		resp.PoolID = id.String()
	case doc.ScopeConversation:
		id, _ := d.Scope.ConversationID()
		resp.Scope = "conversation"
		resp.ConversationID = id.String()
	default:
		resp.Scope = "global"
	}
	return resp
}

// handleUpload accepts a multipart form with either a "file" part or a
// "text" field (with "filename"), plus optional conversation_id or pool_id
// scope fields.
func (h *DocumentHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_form", "malformed multipart form")
		return
	}

	scope, ok := h.parseScope(w, r.FormValue("conversation_id"), r.FormValue("pool_id"))
	if !ok {
		return
	}

	filename, data, ok := h.readUploadContent(w, r)
	if !ok {
		return
	}

	id, err := h.ingestor.Ingest(r.Context(), ingest.UploadRequest{
		OwnerID:  ownerID,
		Scope:    scope,
		Filename: filename,
		Data:     data,
	})
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     id.String(),
		"status": string(doc.StatusProcessing),
	})
}

// readUploadContent pulls the document bytes out of the form: a file part
// when present, pasted text otherwise.
func (h *DocumentHandler) readUploadContent(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	file, header, err := r.FormFile("file")
	if err == nil {
		defer func() { _ = file.Close() }()
		data, readErr := io.ReadAll(file)
		if readErr != nil {
			writeError(w, http.StatusBadRequest, "unreadable_upload", "could not read the uploaded file")
			return "", nil, false
		}
		return header.Filename, data, true
	}

	text := r.FormValue("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "empty_upload", "provide a file part or a text field")
		return "", nil, false
	}
	filename := r.FormValue("filename")
	if filename == "" {
		filename = "pasted.txt"
	}
	return filename, []byte(text), true
}

func (h *DocumentHandler) parseScope(w http.ResponseWriter, conversationID, poolID string) (doc.Scope, bool) {
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

func (h *DocumentHandler) writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, extract.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, "unsupported_file_type", err.Error())
	case errors.Is(err, extract.ErrInvalidEncoding):
		writeError(w, http.StatusBadRequest, "invalid_encoding", "text files must be valid UTF-8")
	case errors.Is(err, extract.ErrNoText):
		writeError(w, http.StatusBadRequest, "no_text", err.Error())
	case errors.Is(err, provider.ErrNoCredential):
		writeError(w, http.StatusServiceUnavailable, "provider_unconfigured", err.Error())
	default:
		h.logger.Error("upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "document could not be ingested")
	}
}

// handleList lists documents. scope=chat needs conversation_id and returns
// that conversation's documents; scope=global the owner's untagged ones;
// scope=all (the default) both, for the conversation's document panel.
// A pool_id parameter lists a shared pool instead.
func (h *DocumentHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if poolID := q.Get("pool_id"); poolID != "" {
		id, err := uuid.Parse(poolID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pool_id", "pool_id is not a UUID")
			return
		}
		h.writeList(w, r, func(ctx context.Context) ([]*doc.Document, error) {
			return h.store.ListByScope(ctx, ownerID, doc.PoolScope(id))
		})
		return
	}

	scope := q.Get("scope")
	if scope == "" {
		scope = "all"
	}

	var conversationID uuid.UUID
	if raw := q.Get("conversation_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_conversation_id", "conversation_id is not a UUID")
			return
		}
		conversationID = id
	}

	switch scope {
	case "chat":
		if conversationID == uuid.Nil {
			writeError(w, http.StatusBadRequest, "missing_conversation_id", "scope=chat requires conversation_id")
			return
		}
		h.writeList(w, r, func(ctx context.Context) ([]*doc.Document, error) {
			return h.store.ListByScope(ctx, ownerID, doc.ConversationScope(conversationID))
		})
	case "global":
		h.writeList(w, r, func(ctx context.Context) ([]*doc.Document, error) {
			return h.store.ListByScope(ctx, ownerID, doc.GlobalScope())
		})
	case "all":
		if conversationID == uuid.Nil {
			// Without a conversation, "all" is just the global set.
			h.writeList(w, r, func(ctx context.Context) ([]*doc.Document, error) {
				return h.store.ListByScope(ctx, ownerID, doc.GlobalScope())
			})
			return
		}
		h.writeList(w, r, func(ctx context.Context) ([]*doc.Document, error) {
			return h.store.ListVisible(ctx, ownerID, conversationID)
		})
	default:
		writeError(w, http.StatusBadRequest, "invalid_scope", "scope must be chat, global or all")
	}
}

func (h *DocumentHandler) writeList(w http.ResponseWriter, r *http.Request, list func(context.Context) ([]*doc.Document, error)) {
	docs, err := list(r.Context())
	if err != nil {
		h.logger.Error("listing documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "could not list documents")
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": resp})
}

func (h *DocumentHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "document id is not a UUID")
		return
	}

	d, err := h.store.Get(r.Context(), id, ownerID)
	if errors.Is(err, doc.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		h.logger.Error("loading document failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get_failed", "could not load document")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(d))
}

func (h *DocumentHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "document id is not a UUID")
		return
	}

	err = h.store.Delete(r.Context(), id, ownerID)
	if errors.Is(err, doc.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		h.logger.Error("deleting document failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "could not delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
