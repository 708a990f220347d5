package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(context.Context) error { return m.err }

func newProbeServer(db pinger) http.Handler {
	logger := slog.New(slog.DiscardHandler)
	cfg := Config{
		MaxUploadBytes:     1 << 20,
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}
	srv := NewServer(cfg,
		NewHealthHandler(db, "1.2.3", logger),
		NewDocumentHandler(&mockIngestor{}, &mockDocStore{}, logger),
		NewSearchHandler(&mockSearcher{}, logger),
		NewAdminHandler(&mockRechunker{}, &mockSettingsService{}, logger),
		logger,
	)
	return srv.Handler()
}

func TestHealth(t *testing.T) {
	handler := newProbeServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["version"] != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", resp["version"])
	}
}

func TestReadyWithDatabase(t *testing.T) {
	handler := newProbeServer(&mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyDatabaseDown(t *testing.T) {
	handler := newProbeServer(&mockPinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestCallerIDRejectsMalformedHeader(t *testing.T) {
	handler := newProbeServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	req.Header.Set(userIDHeader, "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	cfg := Config{
		MaxUploadBytes:     1 << 20,
		RateLimitPerSecond: 1,
		RateLimitBurst:     2,
	}
	srv := NewServer(cfg,
		NewHealthHandler(nil, "test", logger),
		NewDocumentHandler(&mockIngestor{}, &mockDocStore{}, logger),
		NewSearchHandler(&mockSearcher{}, logger),
		NewAdminHandler(&mockRechunker{}, &mockSettingsService{}, logger),
		logger,
	)
	handler := srv.Handler()

	var lastCode int
	for range 5 {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", lastCode)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := chain(panicky, recoveryMiddleware(logger))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
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
		NewAdminHandler(&mockRechunker{}, &mockSettingsService{}, logger),
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestUnknownDocumentID(t *testing.T) {
	handler := newProbeServer(nil)

	req := authedRequest(http.MethodGet, "/api/documents/not-a-uuid", nil, uuid.New())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
