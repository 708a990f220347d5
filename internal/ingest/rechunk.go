package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	doc "github.com/dossier-ai/dossier/internal/document"
)

// ErrRechunkRunning indicates a batch rechunk was requested while one is
// already in flight. Only one batch runs at a time.
var ErrRechunkRunning = errors.New("a rechunk is already running")

// Rechunk states.
const (
	RechunkIdle      = "idle"
	RechunkRunning   = "running"
	RechunkCompleted = "completed"
	RechunkCancelled = "cancelled"
)

// RechunkProgress counts documents handled so far.
type RechunkProgress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// RechunkResult is the tally of a finished (or cancelled) batch.
type RechunkResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// RechunkStatus is one pollable snapshot of the batch. Snapshots are
// immutable; the worker publishes whole replacements.
type RechunkStatus struct {
	State    string          `json:"state"`
	Progress RechunkProgress `json:"progress"`
	Result   *RechunkResult  `json:"result,omitempty"`
}

// Rechunker re-runs chunking and embedding over every ready and error
// document, from stored extracted text. Used after changing chunking
// settings or switching embedding provider.
type Rechunker struct {
	pipeline *Pipeline
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	status atomic.Pointer[RechunkStatus]
}

// NewRechunker creates a batch rechunker over the given pipeline.
func NewRechunker(pipeline *Pipeline, logger *slog.Logger) *Rechunker {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rechunker{pipeline: pipeline, logger: logger}
	r.status.Store(&RechunkStatus{State: RechunkIdle})
	return r
}

// Status returns the latest snapshot.
func (r *Rechunker) Status() RechunkStatus {
	return *r.status.Load()
}

// Start launches a batch over all currently eligible documents and returns
// immediately. A second Start while one is running fails with
// ErrRechunkRunning.
func (r *Rechunker) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrRechunkRunning
	}

	// Snapshot the document list up front so documents uploaded mid-batch
	// are not pulled in.
	docs, err := r.pipeline.store.ListForRechunk(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.running = true
	r.cancel = cancel
	r.status.Store(&RechunkStatus{
		State:    RechunkRunning,
		Progress: RechunkProgress{Total: len(docs)},
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.runBatch(runCtx, docs)
	}()
	return nil
}

// Cancel stops the running batch after the in-flight document finishes.
// No-op when nothing is running.
func (r *Rechunker) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running && r.cancel != nil {
		r.cancel()
	}
}

// Wait blocks until the current batch, if any, finishes. Used on shutdown
// and in tests.
func (r *Rechunker) Wait() {
	r.wg.Wait()
}

func (r *Rechunker) runBatch(ctx context.Context, docs []*doc.Document) {
	result := RechunkResult{Total: len(docs)}
	cancelled := false

	for i, d := range docs {
		// Cancellation stops starting new documents; the in-flight one
		// already completed.
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		if err := r.rechunkOne(ctx, d); err != nil {
			switch {
			case errors.Is(err, doc.ErrAlreadyProcessing), errors.Is(err, doc.ErrNotFound):
				// Claimed by a concurrent upload pipeline, or deleted since
				// the batch was listed.
				result.Skipped++
			default:
				result.Failed++
			}
		} else {
			result.Processed++
		}

		r.status.Store(&RechunkStatus{
			State:    RechunkRunning,
			Progress: RechunkProgress{Done: i + 1, Total: len(docs)},
		})
	}

	state := RechunkCompleted
	if cancelled {
		state = RechunkCancelled
	}
	done := result.Processed + result.Failed + result.Skipped
	r.status.Store(&RechunkStatus{
		State:    state,
		Progress: RechunkProgress{Done: done, Total: len(docs)},
		Result:   &result,
	})

	r.mu.Lock()
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	r.logger.Info("rechunk finished", "state", state,
		"processed", result.Processed, "failed", result.Failed,
		"skipped", result.Skipped, "total", result.Total)
}

func (r *Rechunker) rechunkOne(ctx context.Context, d *doc.Document) error {
	// Cancellation only stops the batch between documents. Once a document
	// is claimed its run completes on a context that survives Cancel, so a
	// cancelled batch never aborts a write or strands a document in
	// processing.
	docCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), processTimeout)
	defer cancel()
	if err := r.pipeline.store.ClaimProcessing(docCtx, d.ID); err != nil {
		return err
	}
	return r.pipeline.Reprocess(docCtx, d)
}
