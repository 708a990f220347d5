// Package ingest runs the document processing pipeline: extract, chunk,
// embed, summarize, persist. Uploads return as soon as the document row
// exists; the pipeline itself runs in the background and lands the document
// in ready or error.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dossier-ai/dossier/internal/chunk"
	doc "github.com/dossier-ai/dossier/internal/document"
	"github.com/dossier-ai/dossier/internal/extract"
	"github.com/dossier-ai/dossier/internal/provider"
	"github.com/dossier-ai/dossier/internal/settings"
)

// processTimeout bounds one document's pipeline run, OCR and embedding
// batches included.
const processTimeout = 10 * time.Minute

// ErrNoChunks indicates extraction succeeded but chunking produced nothing
// to index.
var ErrNoChunks = errors.New("document produced no chunks")

// store is the subset of the document store the pipeline uses.
type store interface {
	Create(ctx context.Context, p doc.CreateParams) (uuid.UUID, error)
	ClaimProcessing(ctx context.Context, id uuid.UUID) error
	ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []doc.NewChunk, embeddingModel, summary string) error
	AddAsset(ctx context.Context, a doc.Asset) (uuid.UUID, error)
	SetError(ctx context.Context, id uuid.UUID, msg string) error
	ListForRechunk(ctx context.Context) ([]*doc.Document, error)
}

// extractor is the subset of the text extractor the pipeline uses.
type extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (*extract.Result, error)
}

// settingsSource serves the runtime retrieval settings.
type settingsSource interface {
	Current(ctx context.Context) (settings.Retrieval, error)
}

// Pipeline ingests documents.
type Pipeline struct {
	store     store
	extractor extractor
	chunker   *chunk.Chunker
	registry  *provider.Registry
	settings  settingsSource
	logger    *slog.Logger

	wg sync.WaitGroup
}

// New creates an ingestion pipeline.
func New(s store, ex extractor, ch *chunk.Chunker, reg *provider.Registry, st settingsSource, logger *slog.Logger) (*Pipeline, error) {
	if s == nil || ex == nil || ch == nil || reg == nil || st == nil {
		return nil, fmt.Errorf("store, extractor, chunker, registry and settings are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     s,
		extractor: ex,
		chunker:   ch,
		registry:  reg,
		settings:  st,
		logger:    logger,
	}, nil
}

// UploadRequest is one file to ingest.
type UploadRequest struct {
	OwnerID  uuid.UUID
	Scope    doc.Scope
	Filename string
	Data     []byte
}

// Ingest extracts the upload's text, creates the document in processing, and
// returns its id. Chunking, embedding and summarization continue in the
// background; failures there land in the document's error status.
//
// Extraction runs before the row exists so an unreadable upload is rejected
// synchronously and never leaves a dead document behind.
func (p *Pipeline) Ingest(ctx context.Context, req UploadRequest) (uuid.UUID, error) {
	res, err := p.extractor.Extract(ctx, req.Filename, req.Data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("extracting %s: %w", req.Filename, err)
	}

	id, err := p.store.Create(ctx, doc.CreateParams{
		OwnerID:       req.OwnerID,
		Scope:         req.Scope,
		Filename:      req.Filename,
		FileType:      res.FileType,
		FileSizeBytes: int64(len(req.Data)),
		ExtractedText: res.Text,
	})
	if err != nil {
		return uuid.Nil, err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// The upload request's context ends with the HTTP request; the
		// pipeline run must not.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), processTimeout)
		defer cancel()
		p.run(runCtx, id, req.Filename, res, "")
	}()

	return id, nil
}

// Wait blocks until all background pipeline runs finish. Used on shutdown.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Reprocess re-runs chunking and embedding from a document's stored
// extracted text. Extraction and OCR are never repeated; the text on record
// is the source of truth. The caller must already hold the processing claim.
func (p *Pipeline) Reprocess(ctx context.Context, d *doc.Document) error {
	res := &extract.Result{FileType: d.FileType, Text: d.ExtractedText}
	return p.run(ctx, d.ID, d.Filename, res, d.Summary)
}

// run executes chunk → embed → summarize → persist for one document. Any
// failure is recorded as the document's error status; the returned error
// mirrors what was recorded.
func (p *Pipeline) run(ctx context.Context, id uuid.UUID, filename string, res *extract.Result, existingSummary string) error {
	start := time.Now()
	err := p.process(ctx, id, filename, res, existingSummary)
	if err != nil {
		p.logger.Error("document processing failed",
			"document_id", id, "filename", filename, "error", err)
		if setErr := p.store.SetError(ctx, id, userFacingError(err)); setErr != nil {
			p.logger.Error("recording document error failed",
				"document_id", id, "error", setErr)
		}
		return err
	}
	p.logger.Info("document processed",
		"document_id", id, "filename", filename, "took", time.Since(start))
	return nil
}

func (p *Pipeline) process(ctx context.Context, id uuid.UUID, filename string, res *extract.Result, existingSummary string) error {
	current, err := p.settings.Current(ctx)
	if err != nil {
		return fmt.Errorf("loading retrieval settings: %w", err)
	}
	embedder, err := p.registry.ActiveEmbedder(current.EmbeddingProvider, current.EmbeddingDeployment)
	if err != nil {
		return err
	}

	var pieces []chunk.Piece
	if len(res.Pages) > 0 {
		pages := make([]chunk.Page, len(res.Pages))
		for i, pg := range res.Pages {
			pages[i] = chunk.Page{Number: pg.Number, Text: pg.Text}
		}
		pieces = p.chunker.ChunkPages(filename, pages)
	} else {
		pieces = p.chunker.Chunk(filename, res.Text)
	}
	if len(pieces) == 0 {
		return ErrNoChunks
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.EmbedText
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(pieces), err)
	}
	if len(vectors) != len(pieces) {
		return fmt.Errorf("%w: %d vectors for %d chunks",
			provider.ErrMalformedResponse, len(vectors), len(pieces))
	}

	summary := p.summarize(ctx, filename, res.Text, existingSummary)

	chunks := make([]doc.NewChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = doc.NewChunk{
			Index:      piece.Index,
			Content:    piece.Content,
			TokenCount: piece.TokenCount,
			PageNumber: piece.PageNumber,
			Embedding:  vectors[i],
		}
	}
	if err := p.store.ReplaceChunks(ctx, id, chunks, embedder.ModelID(), summary); err != nil {
		return err
	}

	if res.FileType == doc.FileTypeImage && res.UsedOCR {
		p.indexAsset(ctx, id, filename, res.Text, embedder)
	}
	return nil
}

// indexAsset records an uploaded image as a searchable asset alongside its
// text chunks. Best-effort: a failure here leaves the document ready and
// text-searchable, just without the asset channel.
func (p *Pipeline) indexAsset(ctx context.Context, id uuid.UUID, filename, ocrText string, embedder provider.Embedder) {
	vectors, err := embedder.Embed(ctx, []string{ocrText})
	if err != nil || len(vectors) != 1 {
		p.logger.Warn("asset embedding failed", "document_id", id, "error", err)
		return
	}
	_, err = p.store.AddAsset(ctx, doc.Asset{
		DocumentID:     id,
		Caption:        filename,
		OCRText:        ocrText,
		Embedding:      vectors[0],
		EmbeddingModel: embedder.ModelID(),
	})
	if err != nil {
		p.logger.Warn("asset indexing failed", "document_id", id, "error", err)
	}
}

// summarize is best-effort: a missing credential or provider failure leaves
// the summary empty (or keeps the existing one) and never fails the run.
func (p *Pipeline) summarize(ctx context.Context, filename, text, existing string) string {
	if p.registry.Summarizer == nil {
		return existing
	}
	summary, err := p.registry.Summarizer.Summarize(ctx, filename, text)
	if err != nil {
		if !errors.Is(err, provider.ErrNoCredential) {
			p.logger.Warn("document summary failed", "filename", filename, "error", err)
		}
		return existing
	}
	if summary == "" {
		return existing
	}
	return summary
}

// userFacingError trims an error chain down to a message fit for the
// document's error field.
func userFacingError(err error) string {
	msg := err.Error()
	if len(msg) > 500 {
		msg = strings.TrimSpace(msg[:500])
	}
	return msg
}
