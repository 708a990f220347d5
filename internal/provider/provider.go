// Package provider defines the capability interfaces the retrieval pipeline
// consumes (embedding, OCR, re-ranking, summarization) and the sentinel
// errors every implementation maps its failures onto. Callers depend on a
// capability, never on a concrete vendor.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrNoCredential indicates the capability's provider has no API key
	// configured. Callers degrade (skip OCR, skip rerank, skip summary)
	// rather than fail the whole operation, except embedding, which is
	// load-bearing for ingestion and search.
	ErrNoCredential = errors.New("provider credential not configured")

	// ErrProviderCall wraps transport-level and non-2xx failures from a
	// provider API.
	ErrProviderCall = errors.New("provider call failed")

	// ErrMalformedResponse indicates a 2xx response whose body did not match
	// the provider's documented shape.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// Embedder turns texts into vectors in one embedding space.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelID identifies the embedding space, e.g. "openai:text-embedding-3-small"
	// or "azure:my-deployment". Chunks are stored tagged with this identifier
	// and vector search only compares within one space.
	ModelID() string
}

// OCR extracts text from a binary document or image.
type OCR interface {
	// ExtractPages returns the recognized text of each page in order.
	// Blank pages are kept as empty strings so positions stay aligned with
	// page numbers. Images yield a single page.
	ExtractPages(ctx context.Context, mimeType string, data []byte) ([]string, error)
}

// Ranked is one re-ranked result: the index into the candidate slice and the
// model's relevance score.
type Ranked struct {
	Index int
	Score float64
}

// Reranker reorders candidate passages by relevance to a query.
type Reranker interface {
	// Rerank returns at most topN results ordered by descending relevance.
	Rerank(ctx context.Context, model, query string, passages []string, topN int) ([]Ranked, error)
}

// Summarizer produces a short summary of a document's text.
type Summarizer interface {
	Summarize(ctx context.Context, filename, text string) (string, error)
}
