// Package api exposes the document pipeline over HTTP.
//
// Endpoints:
//
//	GET    /health                        liveness probe
//	GET    /ready                         readiness probe (database ping)
//	POST   /api/documents                 upload a file or paste text
//	GET    /api/documents                 list documents (scope=chat|global|all)
//	GET    /api/documents/{id}            document detail
//	DELETE /api/documents/{id}            delete a document
//	POST   /api/search                    hybrid retrieval
//	GET    /api/search/readiness          ready-document check for a scope
//	POST   /api/admin/rechunk             start a batch rechunk
//	GET    /api/admin/rechunk/status      poll the batch
//	POST   /api/admin/rechunk/cancel      cancel the batch
//	GET    /api/admin/retrieval-settings  runtime settings
//	PATCH  /api/admin/retrieval-settings  update runtime settings
//
// File structure:
//   - server.go: server setup and lifecycle
//   - middleware.go: recovery, logging middleware
//   - ratelimit.go: per-IP rate limiting
//   - identity.go: caller identity from the upstream auth header
//   - documents.go, search.go, admin.go, health.go: handlers
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header connections.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout covers the whole request, uploads included.
	ReadTimeout = 60 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout bounds keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

// Config carries the server's own knobs; handler dependencies are passed
// separately to NewServer.
type Config struct {
	// MaxUploadBytes caps the request body of the upload endpoint.
	MaxUploadBytes int64

	// RateLimitPerSecond and RateLimitBurst configure per-IP limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int

	// TrustProxy enables client IPs from X-Real-IP / X-Forwarded-For.
	TrustProxy bool
}

// Server is the HTTP server for the document pipeline API.
type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	limiter    *rateLimiter
	trustProxy bool

	health    *HealthHandler
	documents *DocumentHandler
	search    *SearchHandler
	admin     *AdminHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg Config, health *HealthHandler, documents *DocumentHandler, search *SearchHandler, admin *AdminHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		limiter:    newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		trustProxy: cfg.TrustProxy,
		health:     health,
		documents:  documents,
		search:     search,
		admin:      admin,
	}
	s.documents.maxUploadBytes = cfg.MaxUploadBytes

	s.health.RegisterRoutes(s.mux)
	s.documents.RegisterRoutes(s.mux)
	s.search.RegisterRoutes(s.mux)
	s.admin.RegisterRoutes(s.mux)

	return s
}

// Handler returns the handler with middleware applied.
// Order: recovery → logging → rate limit → routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		rateLimitMiddleware(s.limiter, s.trustProxy, s.logger),
	)
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
