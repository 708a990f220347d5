package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// documentCols is the standard SELECT column list for scanDocument.
const documentCols = `id, owner_id, conversation_id, pool_id, filename, file_type,
	file_size_bytes, extracted_text, summary, chunk_count, status, error_message, created_at`

// scopeDispatchSQL selects exactly one scope branch based on which of the
// nullable pool/conversation parameters is set. The three branches are
// mutually exclusive: a pool-scoped query never sees conversation or global
// documents, and vice versa. Placeholders: pool id, conversation id, owner id.
const scopeDispatchSQL = `(
	(%[1]s::uuid IS NOT NULL AND d.pool_id = %[1]s)
	OR (%[1]s::uuid IS NULL AND %[2]s::uuid IS NOT NULL
		AND d.owner_id = %[3]s AND d.conversation_id = %[2]s AND d.pool_id IS NULL)
	OR (%[1]s::uuid IS NULL AND %[2]s::uuid IS NULL
		AND d.owner_id = %[3]s AND d.conversation_id IS NULL AND d.pool_id IS NULL)
)`

// Store persists documents, chunks and assets in PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a document store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// CreateParams describes a new document at upload time.
type CreateParams struct {
	OwnerID       uuid.UUID
	Scope         Scope
	Filename      string
	FileType      FileType
	FileSizeBytes int64
	ExtractedText string
}

// Create inserts a document in the processing state and returns its id.
func (s *Store) Create(ctx context.Context, p CreateParams) (uuid.UUID, error) {
	poolID, convID := p.Scope.sqlArgs()

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO documents (owner_id, conversation_id, pool_id, filename, file_type, file_size_bytes, extracted_text, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'processing')
		RETURNING id`,
		p.OwnerID, convID, poolID, p.Filename, p.FileType, p.FileSizeBytes, p.ExtractedText,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting document: %w", err)
	}

	s.logger.Debug("document created",
		"id", id, "owner", p.OwnerID, "scope", p.Scope.String(), "filename", p.Filename)
	return id, nil
}

// Get returns a document visible to the given owner.
func (s *Store) Get(ctx context.Context, id, ownerID uuid.UUID) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentCols+` FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading document %s: %w", id, err)
	}
	return doc, nil
}

// ListByScope lists the owner's documents in exactly the given scope,
// newest first.
func (s *Store) ListByScope(ctx context.Context, ownerID uuid.UUID, scope Scope) ([]*Document, error) {
	poolID, convID := scope.sqlArgs()
	rows, err := s.pool.Query(ctx, `
		SELECT `+documentCols+`
		FROM documents d
		WHERE `+fmt.Sprintf(scopeDispatchSQL, "$1", "$2", "$3")+`
		ORDER BY created_at DESC`,
		poolID, convID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// ListVisible lists documents an owner sees in a conversation's document
// panel: the conversation's own documents plus the owner's global ones.
// This is a display listing only; retrieval never unions scopes.
func (s *Store) ListVisible(ctx context.Context, ownerID, conversationID uuid.UUID) ([]*Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+documentCols+`
		FROM documents
		WHERE owner_id = $1 AND pool_id IS NULL
		  AND (conversation_id = $2 OR conversation_id IS NULL)
		ORDER BY created_at DESC`,
		ownerID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing visible documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// Delete removes a document owned by the given user. Chunks and assets are
// removed by the schema's ON DELETE CASCADE.
func (s *Store) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Debug("document deleted", "id", id)
	return nil
}

// SetError moves a document to the terminal error state with a
// human-readable message.
func (s *Store) SetError(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = 'error', error_message = $2 WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("marking document %s as error: %w", id, err)
	}
	return nil
}

// ClaimProcessing transitions a document into processing as an exclusive
// claim. A document already in processing is not claimed again: a second
// concurrent pipeline run would produce duplicate chunk rows.
func (s *Store) ClaimProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = 'processing', error_message = NULL
		WHERE id = $1 AND status <> 'processing'`, id)
	if err != nil {
		return fmt.Errorf("claiming document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already processing; disambiguate for the caller.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("checking document %s: %w", id, err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadyProcessing
	}
	return nil
}

// NewChunk describes one chunk to persist.
type NewChunk struct {
	Index      int
	Content    string
	TokenCount int
	PageNumber *int
	Embedding  []float32
}

// ReplaceChunks atomically replaces a document's chunks and marks it ready.
//
// Delete-then-insert in a single transaction, never an incremental patch: a
// crash mid-rechunk leaves the document in processing or error, never ready
// with a mix of old and new chunks. The ready status and the chunk count are
// written in the same transaction, so ready is only ever observed together
// with a complete chunk set.
func (s *Store) ReplaceChunks(ctx context.Context, docID uuid.UUID, chunks []NewChunk, embeddingModel, summary string) error {
	for _, c := range chunks {
		if len(c.Embedding) != VectorDimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, store expects %d",
				ErrDimensionMismatch, c.Index, len(c.Embedding), VectorDimension)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	for _, c := range chunks {
		vec := pgvector.NewVector(c.Embedding)
		if _, err := tx.Exec(ctx, `
			INSERT INTO document_chunks (document_id, chunk_index, content, token_count, page_number, embedding, embedding_model)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			docID, c.Index, c.Content, c.TokenCount, c.PageNumber, vec, embeddingModel); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Index, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = 'ready', chunk_count = $2, summary = $3, error_message = NULL
		WHERE id = $1`,
		docID, len(chunks), summary); err != nil {
		return fmt.Errorf("marking document ready: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk replacement: %w", err)
	}

	s.logger.Debug("chunks replaced",
		"document_id", docID, "chunks", len(chunks), "embedding_model", embeddingModel)
	return nil
}

// Chunks returns a document's chunks ordered by index. Embeddings are not
// loaded; they are write-only from the application's point of view.
func (s *Store) Chunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, page_number, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("loading chunks for %s: %w", docID, err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content,
			&c.TokenCount, &c.PageNumber, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// HasReady reports whether any ready document exists in the given scope.
// Used by the chat orchestrator to decide whether retrieval is worth running.
func (s *Store) HasReady(ctx context.Context, ownerID uuid.UUID, scope Scope) (bool, error) {
	poolID, convID := scope.sqlArgs()
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM documents d
			WHERE d.status = 'ready' AND `+fmt.Sprintf(scopeDispatchSQL, "$1", "$2", "$3")+`
		)`,
		poolID, convID, ownerID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking ready documents: %w", err)
	}
	return exists, nil
}

// ListForRechunk returns every document eligible for batch re-chunking:
// ready and error documents that still hold extracted text. Processing
// documents are skipped; their pipeline run owns them.
func (s *Store) ListForRechunk(ctx context.Context) ([]*Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+documentCols+`
		FROM documents
		WHERE status IN ('ready', 'error')
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing documents for rechunk: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

// VectorQuery parameterizes a scope-locked vector similarity search.
type VectorQuery struct {
	OwnerID        uuid.UUID
	Scope          Scope
	Embedding      []float32
	EmbeddingModel string  // chunks from other embedding spaces are excluded
	Threshold      float64 // minimum cosine similarity
	Limit          int
}

// VectorSearch returns chunks of ready documents in the query's scope,
// ordered by descending cosine similarity. Chunks embedded under a different
// provider configuration are stale and excluded: vectors from incompatible
// embedding spaces must never meet in one distance comparison.
func (s *Store) VectorSearch(ctx context.Context, q VectorQuery) ([]ChunkMatch, error) {
	if len(q.Embedding) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			ErrDimensionMismatch, len(q.Embedding), VectorDimension)
	}

	poolID, convID := q.Scope.sqlArgs()
	vec := pgvector.NewVector(q.Embedding)

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.page_number,
		       d.filename, 1 - (c.embedding <=> $1) AS similarity
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.status = 'ready'
		  AND c.embedding_model = $2
		  AND `+fmt.Sprintf(scopeDispatchSQL, "$3", "$4", "$5")+`
		  AND 1 - (c.embedding <=> $1) >= $6
		ORDER BY c.embedding <=> $1, c.document_id, c.chunk_index
		LIMIT $7`,
		vec, q.EmbeddingModel, poolID, convID, q.OwnerID, q.Threshold, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.ChunkIndex, &m.Content,
			&m.TokenCount, &m.PageNumber, &m.Filename, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning vector match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// LexicalQuery parameterizes a scope-locked full-text search.
type LexicalQuery struct {
	OwnerID uuid.UUID
	Scope   Scope
	Query   string
	Limit   int
}

// LexicalSearch returns chunks of ready documents in the query's scope,
// ranked by English-stemmed full-text relevance. The lexical channel is
// independent of the embedding space, so stale-embedding chunks still match.
func (s *Store) LexicalSearch(ctx context.Context, q LexicalQuery) ([]ChunkMatch, error) {
	poolID, convID := q.Scope.sqlArgs()

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.page_number,
		       d.filename, ts_rank_cd(c.content_tsv, query) AS rank
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id,
		     websearch_to_tsquery('english', $1) AS query
		WHERE d.status = 'ready'
		  AND c.content_tsv @@ query
		  AND `+fmt.Sprintf(scopeDispatchSQL, "$2", "$3", "$4")+`
		ORDER BY rank DESC, c.document_id, c.chunk_index
		LIMIT $5`,
		q.Query, poolID, convID, q.OwnerID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.ChunkIndex, &m.Content,
			&m.TokenCount, &m.PageNumber, &m.Filename, &m.Rank); err != nil {
			return nil, fmt.Errorf("scanning lexical match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// AddAsset stores one image asset for a document.
func (s *Store) AddAsset(ctx context.Context, a Asset) (uuid.UUID, error) {
	if a.Embedding != nil && len(a.Embedding) != VectorDimension {
		return uuid.Nil, fmt.Errorf("%w: asset has %d dimensions, store expects %d",
			ErrDimensionMismatch, len(a.Embedding), VectorDimension)
	}

	var vec *pgvector.Vector
	var model *string
	if a.Embedding != nil {
		v := pgvector.NewVector(a.Embedding)
		vec = &v
		model = &a.EmbeddingModel
	}

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO document_assets (document_id, page_number, caption, ocr_text, storage_path, embedding, embedding_model)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		a.DocumentID, a.PageNumber, a.Caption, a.OCRText, a.StoragePath, vec, model).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting asset: %w", err)
	}
	return id, nil
}

// AssetSearch returns image assets of ready documents in the query's scope
// by embedding similarity. Assets without an embedding, or embedded in a
// different space, are excluded.
func (s *Store) AssetSearch(ctx context.Context, q VectorQuery) ([]AssetMatch, error) {
	if len(q.Embedding) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			ErrDimensionMismatch, len(q.Embedding), VectorDimension)
	}

	poolID, convID := q.Scope.sqlArgs()
	vec := pgvector.NewVector(q.Embedding)

	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.document_id, a.page_number, a.caption, a.ocr_text,
		       d.filename, 1 - (a.embedding <=> $1) AS similarity
		FROM document_assets a
		JOIN documents d ON d.id = a.document_id
		WHERE d.status = 'ready'
		  AND a.embedding IS NOT NULL
		  AND a.embedding_model = $2
		  AND `+fmt.Sprintf(scopeDispatchSQL, "$3", "$4", "$5")+`
		  AND 1 - (a.embedding <=> $1) >= $6
		ORDER BY a.embedding <=> $1, a.document_id, a.id
		LIMIT $7`,
		vec, q.EmbeddingModel, poolID, convID, q.OwnerID, q.Threshold, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("asset search: %w", err)
	}
	defer rows.Close()

	var matches []AssetMatch
	for rows.Next() {
		var m AssetMatch
		if err := rows.Scan(&m.AssetID, &m.DocumentID, &m.PageNumber, &m.Caption,
			&m.OCRText, &m.Filename, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning asset match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Assets returns a document's image assets in page order.
func (s *Store) Assets(ctx context.Context, docID uuid.UUID) ([]Asset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, page_number, caption, ocr_text, storage_path, created_at
		FROM document_assets
		WHERE document_id = $1
		ORDER BY page_number NULLS LAST, created_at`, docID)
	if err != nil {
		return nil, fmt.Errorf("loading assets for %s: %w", docID, err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.PageNumber, &a.Caption,
			&a.OCRText, &a.StoragePath, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// scanDocument scans one document row from the documentCols column list.
func scanDocument(row pgx.Row) (*Document, error) {
	var (
		d        Document
		convID   *uuid.UUID
		poolID   *uuid.UUID
		errMsg   *string
		created  time.Time
		fileType string
		status   string
	)
	if err := row.Scan(&d.ID, &d.OwnerID, &convID, &poolID, &d.Filename, &fileType,
		&d.FileSizeBytes, &d.ExtractedText, &d.Summary, &d.ChunkCount, &status,
		&errMsg, &created); err != nil {
		return nil, err
	}

	switch {
	case poolID != nil:
		d.Scope = PoolScope(*poolID)
	case convID != nil:
		d.Scope = ConversationScope(*convID)
	default:
		d.Scope = GlobalScope()
	}
	d.FileType = FileType(fileType)
	d.Status = Status(status)
	if errMsg != nil {
		d.ErrorMessage = *errMsg
	}
	d.CreatedAt = created
	return &d, nil
}

func scanDocuments(rows pgx.Rows) ([]*Document, error) {
	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
