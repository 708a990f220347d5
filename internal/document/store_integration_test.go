package document

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/dossier-ai/dossier/internal/log"
	"github.com/dossier-ai/dossier/internal/testutil"
)

const testModel = "openai:text-embedding-3-small"

// unitVector returns a 1536-dimensional unit vector along the given axis.
// Identical axes have cosine similarity 1, distinct axes 0, which makes
// similarity ordering in assertions exact.
func unitVector(axis int) []float32 {
	v := make([]float32, VectorDimension)
	v[axis] = 1
	return v
}

func mustCreateReady(t *testing.T, store *Store, ownerID uuid.UUID, scope Scope, filename string, chunks []NewChunk) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id, err := store.Create(ctx, CreateParams{
		OwnerID:       ownerID,
		Scope:         scope,
		Filename:      filename,
		FileType:      FileTypeText,
		FileSizeBytes: 128,
		ExtractedText: "extracted text",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := store.ReplaceChunks(ctx, id, chunks, testModel, "summary of "+filename); err != nil {
		t.Fatalf("ReplaceChunks() error: %v", err)
	}
	return id
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := testutil.SetupTestDB(t)
	store, err := NewStore(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	ctx := context.Background()

	t.Run("lifecycle", func(t *testing.T) {
		ownerID := uuid.New()
		id, err := store.Create(ctx, CreateParams{
			OwnerID:       ownerID,
			Scope:         GlobalScope(),
			Filename:      "report.txt",
			FileType:      FileTypeText,
			FileSizeBytes: 42,
			ExtractedText: "the text",
		})
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}

		d, err := store.Get(ctx, id, ownerID)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if d.Status != StatusProcessing {
			t.Errorf("status = %q, want processing", d.Status)
		}

		// A document being processed cannot be claimed again.
		if err := store.ClaimProcessing(ctx, id); !errors.Is(err, ErrAlreadyProcessing) {
			t.Errorf("ClaimProcessing(processing doc) = %v, want ErrAlreadyProcessing", err)
		}

		if err := store.SetError(ctx, id, "provider down"); err != nil {
			t.Fatalf("SetError() error: %v", err)
		}
		d, err = store.Get(ctx, id, ownerID)
		if err != nil {
			t.Fatalf("Get() after SetError error: %v", err)
		}
		if d.Status != StatusError || d.ErrorMessage != "provider down" {
			t.Errorf("after SetError: status=%q message=%q", d.Status, d.ErrorMessage)
		}

		// Errored documents can be claimed for reprocessing.
		if err := store.ClaimProcessing(ctx, id); err != nil {
			t.Fatalf("ClaimProcessing(error doc) error: %v", err)
		}

		page := 2
		chunks := []NewChunk{
			{Index: 0, Content: "first chunk", TokenCount: 3, Embedding: unitVector(0)},
			{Index: 1, Content: "second chunk", TokenCount: 3, PageNumber: &page, Embedding: unitVector(1)},
		}
		if err := store.ReplaceChunks(ctx, id, chunks, testModel, "a summary"); err != nil {
			t.Fatalf("ReplaceChunks() error: %v", err)
		}

		d, err = store.Get(ctx, id, ownerID)
		if err != nil {
			t.Fatalf("Get() after ReplaceChunks error: %v", err)
		}
		if d.Status != StatusReady || d.ChunkCount != 2 || d.Summary != "a summary" {
			t.Errorf("after ReplaceChunks: status=%q count=%d summary=%q", d.Status, d.ChunkCount, d.Summary)
		}
		if d.ErrorMessage != "" {
			t.Errorf("error message not cleared: %q", d.ErrorMessage)
		}

		stored, err := store.Chunks(ctx, id)
		if err != nil {
			t.Fatalf("Chunks() error: %v", err)
		}
		if len(stored) != 2 || stored[0].Content != "first chunk" {
			t.Fatalf("Chunks() = %+v", stored)
		}
		if stored[1].PageNumber == nil || *stored[1].PageNumber != 2 {
			t.Errorf("chunk 1 page = %v, want 2", stored[1].PageNumber)
		}

		if err := store.Delete(ctx, id, ownerID); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if _, err := store.Get(ctx, id, ownerID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("claim missing document", func(t *testing.T) {
		if err := store.ClaimProcessing(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("ClaimProcessing(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("vector search ordering and threshold", func(t *testing.T) {
		ownerID := uuid.New()
		mustCreateReady(t, store, ownerID, GlobalScope(), "near.txt", []NewChunk{
			{Index: 0, Content: "near match", TokenCount: 2, Embedding: unitVector(3)},
		})
		mustCreateReady(t, store, ownerID, GlobalScope(), "far.txt", []NewChunk{
			{Index: 0, Content: "far match", TokenCount: 2, Embedding: unitVector(4)},
		})

		matches, err := store.VectorSearch(ctx, VectorQuery{
			OwnerID:        ownerID,
			Scope:          GlobalScope(),
			Embedding:      unitVector(3),
			EmbeddingModel: testModel,
			Threshold:      0.5,
			Limit:          10,
		})
		if err != nil {
			t.Fatalf("VectorSearch() error: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("got %d matches, want 1 (orthogonal chunk under threshold): %+v", len(matches), matches)
		}
		if matches[0].Content != "near match" {
			t.Errorf("top match = %q", matches[0].Content)
		}
		if matches[0].Similarity < 0.99 {
			t.Errorf("similarity = %f, want ~1", matches[0].Similarity)
		}
		if matches[0].Filename != "near.txt" {
			t.Errorf("filename = %q", matches[0].Filename)
		}
	})

	t.Run("vector search excludes other embedding spaces", func(t *testing.T) {
		ownerID := uuid.New()
		id := mustCreateReady(t, store, ownerID, GlobalScope(), "stale.txt", []NewChunk{
			{Index: 0, Content: "stale chunk", TokenCount: 2, Embedding: unitVector(5)},
		})

		matches, err := store.VectorSearch(ctx, VectorQuery{
			OwnerID:        ownerID,
			Scope:          GlobalScope(),
			Embedding:      unitVector(5),
			EmbeddingModel: "azure:other-deployment",
			Threshold:      0,
			Limit:          10,
		})
		if err != nil {
			t.Fatalf("VectorSearch() error: %v", err)
		}
		for _, m := range matches {
			if m.DocumentID == id {
				t.Errorf("chunk from a different embedding space returned: %+v", m)
			}
		}
	})

	t.Run("lexical search", func(t *testing.T) {
		ownerID := uuid.New()
		mustCreateReady(t, store, ownerID, GlobalScope(), "policy.txt", []NewChunk{
			{Index: 0, Content: "employees accrue vacation days monthly", TokenCount: 5, Embedding: unitVector(6)},
			{Index: 1, Content: "the office closes on public holidays", TokenCount: 6, Embedding: unitVector(7)},
		})

		matches, err := store.LexicalSearch(ctx, LexicalQuery{
			OwnerID: ownerID,
			Scope:   GlobalScope(),
			Query:   "vacation accrual",
			Limit:   10,
		})
		if err != nil {
			t.Fatalf("LexicalSearch() error: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("got %d matches, want 1: %+v", len(matches), matches)
		}
		if matches[0].Content != "employees accrue vacation days monthly" {
			t.Errorf("match = %q", matches[0].Content)
		}
		if matches[0].Rank <= 0 {
			t.Errorf("rank = %f, want > 0", matches[0].Rank)
		}
	})

	t.Run("lexical ranking across chunks", func(t *testing.T) {
		ownerID := uuid.New()
		mustCreateReady(t, store, ownerID, GlobalScope(), "capitals.txt", []NewChunk{
			{Index: 0, Content: "Paris is the capital of France", TokenCount: 6, Embedding: unitVector(20)},
			{Index: 1, Content: "Berlin is the capital of Germany", TokenCount: 6, Embedding: unitVector(21)},
		})

		matches, err := store.LexicalSearch(ctx, LexicalQuery{
			OwnerID: ownerID,
			Scope:   GlobalScope(),
			Query:   "capital of Germany",
			Limit:   10,
		})
		if err != nil {
			t.Fatalf("LexicalSearch() error: %v", err)
		}
		if len(matches) == 0 {
			t.Fatal("no matches")
		}
		if matches[0].Content != "Berlin is the capital of Germany" {
			t.Errorf("top match = %q, want the Germany chunk first", matches[0].Content)
		}
	})

	t.Run("scope isolation", func(t *testing.T) {
		ownerID := uuid.New()
		otherOwner := uuid.New()
		convID := uuid.New()
		poolID := uuid.New()

		globalDoc := mustCreateReady(t, store, ownerID, GlobalScope(), "global.txt", []NewChunk{
			{Index: 0, Content: "global", TokenCount: 1, Embedding: unitVector(8)},
		})
		convDoc := mustCreateReady(t, store, ownerID, ConversationScope(convID), "conv.txt", []NewChunk{
			{Index: 0, Content: "conversation", TokenCount: 1, Embedding: unitVector(8)},
		})
		poolDoc := mustCreateReady(t, store, otherOwner, PoolScope(poolID), "pool.txt", []NewChunk{
			{Index: 0, Content: "pool", TokenCount: 1, Embedding: unitVector(8)},
		})

		search := func(ownerID uuid.UUID, scope Scope) map[uuid.UUID]bool {
			t.Helper()
			matches, err := store.VectorSearch(ctx, VectorQuery{
				OwnerID:        ownerID,
				Scope:          scope,
				Embedding:      unitVector(8),
				EmbeddingModel: testModel,
				Threshold:      0,
				Limit:          50,
			})
			if err != nil {
				t.Fatalf("VectorSearch() error: %v", err)
			}
			got := make(map[uuid.UUID]bool)
			for _, m := range matches {
				got[m.DocumentID] = true
			}
			return got
		}

		global := search(ownerID, GlobalScope())
		if !global[globalDoc] || global[convDoc] || global[poolDoc] {
			t.Errorf("global scope hits = %v", global)
		}

		conv := search(ownerID, ConversationScope(convID))
		if !conv[convDoc] || conv[globalDoc] || conv[poolDoc] {
			t.Errorf("conversation scope hits = %v", conv)
		}

		// Pool scope ignores ownership: a different member sees the document.
		pool := search(uuid.New(), PoolScope(poolID))
		if !pool[poolDoc] || pool[globalDoc] || pool[convDoc] {
			t.Errorf("pool scope hits = %v", pool)
		}

		// Another user never sees someone else's global documents.
		stranger := search(otherOwner, GlobalScope())
		if stranger[globalDoc] {
			t.Errorf("global document leaked across owners")
		}
	})

	t.Run("list visible", func(t *testing.T) {
		ownerID := uuid.New()
		convID := uuid.New()
		globalDoc := mustCreateReady(t, store, ownerID, GlobalScope(), "g.txt", []NewChunk{
			{Index: 0, Content: "g", TokenCount: 1, Embedding: unitVector(9)},
		})
		convDoc := mustCreateReady(t, store, ownerID, ConversationScope(convID), "c.txt", []NewChunk{
			{Index: 0, Content: "c", TokenCount: 1, Embedding: unitVector(9)},
		})
		mustCreateReady(t, store, ownerID, ConversationScope(uuid.New()), "other.txt", []NewChunk{
			{Index: 0, Content: "o", TokenCount: 1, Embedding: unitVector(9)},
		})

		docs, err := store.ListVisible(ctx, ownerID, convID)
		if err != nil {
			t.Fatalf("ListVisible() error: %v", err)
		}
		got := make(map[uuid.UUID]bool, len(docs))
		for _, d := range docs {
			got[d.ID] = true
		}
		if len(docs) != 2 || !got[globalDoc] || !got[convDoc] {
			t.Errorf("ListVisible() = %v, want global and conversation docs", got)
		}
	})

	t.Run("has ready", func(t *testing.T) {
		ownerID := uuid.New()

		ready, err := store.HasReady(ctx, ownerID, GlobalScope())
		if err != nil {
			t.Fatalf("HasReady() error: %v", err)
		}
		if ready {
			t.Error("HasReady() = true for empty scope")
		}

		mustCreateReady(t, store, ownerID, GlobalScope(), "r.txt", []NewChunk{
			{Index: 0, Content: "r", TokenCount: 1, Embedding: unitVector(10)},
		})

		ready, err = store.HasReady(ctx, ownerID, GlobalScope())
		if err != nil {
			t.Fatalf("HasReady() error: %v", err)
		}
		if !ready {
			t.Error("HasReady() = false after ingesting a document")
		}
	})

	t.Run("assets", func(t *testing.T) {
		ownerID := uuid.New()
		docID := mustCreateReady(t, store, ownerID, GlobalScope(), "scan.pdf", []NewChunk{
			{Index: 0, Content: "scanned text", TokenCount: 2, Embedding: unitVector(11)},
		})

		page := 1
		assetID, err := store.AddAsset(ctx, Asset{
			DocumentID:     docID,
			PageNumber:     &page,
			Caption:        "figure 1",
			OCRText:        "chart contents",
			StoragePath:    "assets/scan-1.png",
			Embedding:      unitVector(12),
			EmbeddingModel: testModel,
		})
		if err != nil {
			t.Fatalf("AddAsset() error: %v", err)
		}

		assets, err := store.Assets(ctx, docID)
		if err != nil {
			t.Fatalf("Assets() error: %v", err)
		}
		if len(assets) != 1 || assets[0].ID != assetID || assets[0].Caption != "figure 1" {
			t.Fatalf("Assets() = %+v", assets)
		}

		matches, err := store.AssetSearch(ctx, VectorQuery{
			OwnerID:        ownerID,
			Scope:          GlobalScope(),
			Embedding:      unitVector(12),
			EmbeddingModel: testModel,
			Threshold:      0.5,
			Limit:          10,
		})
		if err != nil {
			t.Fatalf("AssetSearch() error: %v", err)
		}
		if len(matches) != 1 || matches[0].AssetID != assetID {
			t.Fatalf("AssetSearch() = %+v", matches)
		}
		if matches[0].Filename != "scan.pdf" {
			t.Errorf("asset match filename = %q", matches[0].Filename)
		}
	})

	t.Run("list for rechunk", func(t *testing.T) {
		ownerID := uuid.New()
		readyDoc := mustCreateReady(t, store, ownerID, GlobalScope(), "ready.txt", []NewChunk{
			{Index: 0, Content: "x", TokenCount: 1, Embedding: unitVector(13)},
		})
		processingDoc, err := store.Create(ctx, CreateParams{
			OwnerID:       ownerID,
			Scope:         GlobalScope(),
			Filename:      "inflight.txt",
			FileType:      FileTypeText,
			FileSizeBytes: 1,
			ExtractedText: "y",
		})
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}

		docs, err := store.ListForRechunk(ctx)
		if err != nil {
			t.Fatalf("ListForRechunk() error: %v", err)
		}
		ids := make(map[uuid.UUID]bool, len(docs))
		for _, d := range docs {
			ids[d.ID] = true
		}
		if !ids[readyDoc] {
			t.Error("ready document missing from rechunk list")
		}
		if ids[processingDoc] {
			t.Error("processing document included in rechunk list")
		}
	})
}
