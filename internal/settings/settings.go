// Package settings serves runtime-adjustable retrieval configuration from
// the database. Unlike the process configuration in internal/config, these
// values can be changed by an administrator without a restart and take effect
// on the next cache refresh.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Known setting keys. The migration seeds a row for each.
const (
	KeyRerankEnabled       = "rerank_enabled"
	KeyRerankCandidatePool = "rerank_candidate_pool"
	KeyRerankTopN          = "rerank_top_n"
	KeyRerankModel         = "rerank_model"
	KeyEmbeddingProvider   = "embedding_provider"
	KeyEmbeddingDeployment = "embedding_deployment"
)

// defaultTTL bounds how stale a cached snapshot may be. Every process sees
// an administrator's change within this window without any invalidation
// fan-out between instances.
const defaultTTL = 30 * time.Second

var (
	ErrUnknownKey   = errors.New("unknown retrieval setting")
	ErrInvalidValue = errors.New("invalid retrieval setting value")
)

// Retrieval is one consistent snapshot of the runtime retrieval settings.
type Retrieval struct {
	RerankEnabled       bool
	RerankCandidatePool int
	RerankTopN          int
	RerankModel         string
	EmbeddingProvider   string
	EmbeddingDeployment string
}

type snapshot struct {
	settings  Retrieval
	fetchedAt time.Time
}

// Service loads retrieval settings with a short-lived cache.
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	ttl    time.Duration
	cached atomic.Pointer[snapshot]
}

// NewService creates a settings service with the default cache TTL.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) (*Service, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pool: pool, logger: logger, ttl: defaultTTL}, nil
}

// Current returns the active retrieval settings, served from cache when the
// cached snapshot is younger than the TTL.
func (s *Service) Current(ctx context.Context) (Retrieval, error) {
	if snap := s.cached.Load(); snap != nil && time.Since(snap.fetchedAt) < s.ttl {
		return snap.settings, nil
	}

	settings, err := s.load(ctx)
	if err != nil {
		// Serve the stale snapshot rather than failing a search over a
		// transient settings read error.
		if snap := s.cached.Load(); snap != nil {
			s.logger.Warn("serving stale retrieval settings", "error", err)
			return snap.settings, nil
		}
		return Retrieval{}, err
	}

	s.cached.Store(&snapshot{settings: settings, fetchedAt: time.Now()})
	return settings, nil
}

// Update applies the given key/value changes in one transaction, validates
// the resulting snapshot as a whole, and invalidates the local cache.
func (s *Service) Update(ctx context.Context, changes map[string]string) (Retrieval, error) {
	if len(changes) == 0 {
		return s.Current(ctx)
	}
	for key := range changes {
		if !knownKey(key) {
			return Retrieval{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Retrieval{}, fmt.Errorf("beginning settings update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for key, value := range changes {
		if _, err := tx.Exec(ctx, `
			UPDATE retrieval_settings SET value = $2, updated_at = now() WHERE key = $1`,
			key, value); err != nil {
			return Retrieval{}, fmt.Errorf("updating setting %s: %w", key, err)
		}
	}

	// Validate the full snapshot inside the transaction so a bad combination
	// (top_n above the candidate pool, unparsable integer) never commits.
	raw, err := readAll(ctx, tx)
	if err != nil {
		return Retrieval{}, err
	}
	settings, err := parse(raw)
	if err != nil {
		return Retrieval{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Retrieval{}, fmt.Errorf("committing settings update: %w", err)
	}

	s.cached.Store(&snapshot{settings: settings, fetchedAt: time.Now()})
	s.logger.Info("retrieval settings updated", "changed", len(changes))
	return settings, nil
}

// Invalidate drops the cached snapshot; the next Current call hits the
// database.
func (s *Service) Invalidate() {
	s.cached.Store(nil)
}

func (s *Service) load(ctx context.Context) (Retrieval, error) {
	raw, err := readAll(ctx, s.pool)
	if err != nil {
		return Retrieval{}, err
	}
	return parse(raw)
}

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func readAll(ctx context.Context, q querier) (map[string]string, error) {
	rows, err := q.Query(ctx, `SELECT key, value FROM retrieval_settings`)
	if err != nil {
		return nil, fmt.Errorf("reading retrieval settings: %w", err)
	}
	defer rows.Close()

	raw := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning retrieval setting: %w", err)
		}
		raw[key] = value
	}
	return raw, rows.Err()
}

// parse turns the raw key/value rows into a validated snapshot. Missing rows
// fall back to the seeded defaults so parse never depends on migration order.
func parse(raw map[string]string) (Retrieval, error) {
	settings := Retrieval{
		RerankEnabled:       false,
		RerankCandidatePool: 20,
		RerankTopN:          6,
		RerankModel:         "rerank-v3.5",
		EmbeddingProvider:   "openai",
	}

	var err error
	if v, ok := raw[KeyRerankEnabled]; ok {
		settings.RerankEnabled, err = strconv.ParseBool(v)
		if err != nil {
			return Retrieval{}, fmt.Errorf("%w: %s=%q", ErrInvalidValue, KeyRerankEnabled, v)
		}
	}
	if v, ok := raw[KeyRerankCandidatePool]; ok {
		settings.RerankCandidatePool, err = strconv.Atoi(v)
		if err != nil || settings.RerankCandidatePool < 1 {
			return Retrieval{}, fmt.Errorf("%w: %s=%q", ErrInvalidValue, KeyRerankCandidatePool, v)
		}
	}
	if v, ok := raw[KeyRerankTopN]; ok {
		settings.RerankTopN, err = strconv.Atoi(v)
		if err != nil || settings.RerankTopN < 1 {
			return Retrieval{}, fmt.Errorf("%w: %s=%q", ErrInvalidValue, KeyRerankTopN, v)
		}
	}
	if v, ok := raw[KeyRerankModel]; ok && v != "" {
		settings.RerankModel = v
	}
	if v, ok := raw[KeyEmbeddingProvider]; ok && v != "" {
		settings.EmbeddingProvider = v
	}
	if v, ok := raw[KeyEmbeddingDeployment]; ok {
		settings.EmbeddingDeployment = v
	}

	if settings.RerankTopN > settings.RerankCandidatePool {
		return Retrieval{}, fmt.Errorf("%w: %s (%d) exceeds %s (%d)",
			ErrInvalidValue, KeyRerankTopN, settings.RerankTopN,
			KeyRerankCandidatePool, settings.RerankCandidatePool)
	}
	if settings.EmbeddingProvider != "openai" && settings.EmbeddingProvider != "azure" {
		return Retrieval{}, fmt.Errorf("%w: %s=%q",
			ErrInvalidValue, KeyEmbeddingProvider, settings.EmbeddingProvider)
	}
	return settings, nil
}

func knownKey(key string) bool {
	switch key {
	case KeyRerankEnabled, KeyRerankCandidatePool, KeyRerankTopN,
		KeyRerankModel, KeyEmbeddingProvider, KeyEmbeddingDeployment:
		return true
	}
	return false
}
