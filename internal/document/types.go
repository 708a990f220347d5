// Package document defines the core domain types of the retrieval pipeline
// (documents, their derived chunks and image assets, retrieval scopes) and
// the PostgreSQL store that persists them.
package document

import (
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding dimensionality of the chunk store.
// Both supported embedding providers (OpenAI and Azure OpenAI deployments of
// text-embedding-3-small) emit vectors of this size; the pgvector column in
// db/migrations is declared to match. A provider returning a different size
// is treated as an incompatible embedding space and rejected at ingestion.
const VectorDimension = 1536

// Status is the lifecycle state of a document.
// Valid transitions: processing → ready, processing → error. A ready or error
// document re-enters processing only through the explicit rechunk operation.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// FileType is the detected type of an uploaded document.
type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeImage FileType = "image"
	FileTypeText  FileType = "text"
)

// Document is one ingested unit: an uploaded file or pasted text.
type Document struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	Scope         Scope
	Filename      string
	FileType      FileType
	FileSizeBytes int64
	ExtractedText string
	Summary       string
	ChunkCount    int
	Status        Status
	ErrorMessage  string
	CreatedAt     time.Time
}

// Chunk is a contiguous slice of a document's extracted text.
// Index values within one document are contiguous starting at 0.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int
	Content    string
	TokenCount int
	PageNumber *int // nil for chunks without page attribution
	Embedding  []float32
	CreatedAt  time.Time
}

// Asset is image-grounded evidence extracted from a document: a PDF page
// render or an uploaded image, with its own embedding and OCR text.
type Asset struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	PageNumber  *int
	Caption     string
	OCRText     string
	StoragePath string
	Embedding   []float32
	// EmbeddingModel tags the embedding space, like chunks. Empty when the
	// asset carries no embedding.
	EmbeddingModel string
	CreatedAt      time.Time
}

// AssetMatch is an asset similarity hit.
type AssetMatch struct {
	AssetID    uuid.UUID
	DocumentID uuid.UUID
	PageNumber *int
	Caption    string
	OCRText    string
	Filename   string
	Similarity float64
}

// ChunkMatch is a search hit: a chunk plus the filename of its document and
// the scores assigned by the retrieval channels.
type ChunkMatch struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	TokenCount int
	PageNumber *int
	Filename   string

	// Similarity is the cosine similarity from the vector channel (1 − cosine
	// distance), zero when the chunk was found only lexically.
	Similarity float64

	// Rank is the ts_rank_cd score from the lexical channel, zero when the
	// chunk was found only by vector similarity.
	Rank float64
}
