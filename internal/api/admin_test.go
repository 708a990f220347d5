package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/dossier-ai/dossier/internal/ingest"
	"github.com/dossier-ai/dossier/internal/settings"
)

type mockRechunker struct {
	startErr  error
	status    ingest.RechunkStatus
	started   bool
	cancelled bool
}

func (m *mockRechunker) Start(context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	m.status = ingest.RechunkStatus{State: ingest.RechunkRunning}
	return nil
}

func (m *mockRechunker) Cancel() { m.cancelled = true }

func (m *mockRechunker) Status() ingest.RechunkStatus {
	if m.status.State == "" {
		return ingest.RechunkStatus{State: ingest.RechunkIdle}
	}
	return m.status
}

type mockSettingsService struct {
	current     settings.Retrieval
	updateErr   error
	lastChanges map[string]string
}

func (m *mockSettingsService) Current(context.Context) (settings.Retrieval, error) {
	return m.current, nil
}

func (m *mockSettingsService) Update(_ context.Context, changes map[string]string) (settings.Retrieval, error) {
	m.lastChanges = changes
	if m.updateErr != nil {
		return settings.Retrieval{}, m.updateErr
	}
	return m.current, nil
}

func newTestAdminServer(rc *mockRechunker, svc *mockSettingsService) http.Handler {
	logger := slog.New(slog.DiscardHandler)
	cfg := Config{
		MaxUploadBytes:     1 << 20,
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}
	srv := NewServer(cfg,
		NewHealthHandler(nil, "test", logger),
		NewDocumentHandler(&mockIngestor{}, &mockDocStore{}, logger),
		NewSearchHandler(&mockSearcher{}, logger),
		NewAdminHandler(rc, svc, logger),
		logger,
	)
	return srv.Handler()
}

func TestRechunkStart(t *testing.T) {
	rc := &mockRechunker{}
	handler := newTestAdminServer(rc, &mockSettingsService{})

	req := authedRequest(http.MethodPost, "/api/admin/rechunk", nil, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if !rc.started {
		t.Error("rechunker was not started")
	}
	var status ingest.RechunkStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.State != ingest.RechunkRunning {
		t.Errorf("state = %q, want running", status.State)
	}
}

func TestRechunkStartConflict(t *testing.T) {
	rc := &mockRechunker{startErr: ingest.ErrRechunkRunning}
	handler := newTestAdminServer(rc, &mockSettingsService{})

	req := authedRequest(http.MethodPost, "/api/admin/rechunk", nil, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRechunkStatusAndCancel(t *testing.T) {
	result := &ingest.RechunkResult{Processed: 5, Total: 5}
	rc := &mockRechunker{status: ingest.RechunkStatus{
		State:    ingest.RechunkCompleted,
		Progress: ingest.RechunkProgress{Done: 5, Total: 5},
		Result:   result,
	}}
	handler := newTestAdminServer(rc, &mockSettingsService{})

	req := authedRequest(http.MethodGet, "/api/admin/rechunk/status", nil, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var status ingest.RechunkStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.State != ingest.RechunkCompleted || status.Result == nil || status.Result.Processed != 5 {
		t.Errorf("status = %+v", status)
	}

	req = authedRequest(http.MethodPost, "/api/admin/rechunk/cancel", nil, uuid.New())
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	if !rc.cancelled {
		t.Error("rechunker was not cancelled")
	}
}

func TestGetRetrievalSettings(t *testing.T) {
	svc := &mockSettingsService{current: settings.Retrieval{
		RerankEnabled:       true,
		RerankCandidatePool: 20,
		RerankTopN:          6,
		RerankModel:         "rerank-v3.5",
		EmbeddingProvider:   "openai",
	}}
	handler := newTestAdminServer(&mockRechunker{}, svc)

	req := authedRequest(http.MethodGet, "/api/admin/retrieval-settings", nil, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp retrievalSettingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.RerankEnabled || resp.RerankCandidatePool != 20 || resp.EmbeddingProvider != "openai" {
		t.Errorf("settings = %+v", resp)
	}
}

func TestUpdateRetrievalSettings(t *testing.T) {
	svc := &mockSettingsService{current: settings.Retrieval{EmbeddingProvider: "azure"}}
	handler := newTestAdminServer(&mockRechunker{}, svc)

	body := bytes.NewBufferString(`{"embedding_provider": "azure", "embedding_deployment": "embed-prod"}`)
	req := authedRequest(http.MethodPatch, "/api/admin/retrieval-settings", body, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastChanges["embedding_provider"] != "azure" {
		t.Errorf("changes = %v", svc.lastChanges)
	}
}

func TestUpdateRetrievalSettingsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{"unknown key", `{"nonsense": "1"}`, settings.ErrUnknownKey},
		{"invalid value", `{"rerank_top_n": "zero"}`, settings.ErrInvalidValue},
		{"empty object", `{}`, nil},
		{"not json", `nope`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSettingsService{updateErr: tt.err}
			handler := newTestAdminServer(&mockRechunker{}, svc)

			req := authedRequest(http.MethodPatch, "/api/admin/retrieval-settings", bytes.NewBufferString(tt.body), uuid.New())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}
