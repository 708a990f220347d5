package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	doc "github.com/dossier-ai/dossier/internal/document"
	"github.com/dossier-ai/dossier/internal/provider"
)

func rechunkableDoc(name string) *doc.Document {
	return &doc.Document{
		ID:            uuid.New(),
		Filename:      name,
		FileType:      doc.FileTypeText,
		ExtractedText: "text of " + name,
		Status:        doc.StatusReady,
	}
}

func TestRechunkBatch(t *testing.T) {
	s := newMockStore()
	docs := []*doc.Document{
		rechunkableDoc("a.txt"),
		rechunkableDoc("b.txt"),
		rechunkableDoc("c.txt"),
	}
	s.rechunk = docs
	// One document is claimed by a concurrent pipeline run.
	s.claimErr[docs[1].ID] = doc.ErrAlreadyProcessing

	p := newTestPipeline(t, s, &mockExtractor{}, &provider.Registry{OpenAI: &mockEmbedder{}})
	r := NewRechunker(p, nil)

	if got := r.Status(); got.State != RechunkIdle {
		t.Fatalf("initial state = %q, want idle", got.State)
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	r.Wait()

	status := r.Status()
	if status.State != RechunkCompleted {
		t.Errorf("state = %q, want completed", status.State)
	}
	if status.Result == nil {
		t.Fatal("finished batch has no result")
	}
	if status.Result.Processed != 2 || status.Result.Skipped != 1 || status.Result.Failed != 0 {
		t.Errorf("result = %+v", *status.Result)
	}
	if status.Progress.Done != 3 || status.Progress.Total != 3 {
		t.Errorf("progress = %+v", status.Progress)
	}
	if len(s.replaced) != 2 {
		t.Errorf("replaced chunks for %d documents, want 2", len(s.replaced))
	}
}

func TestRechunkRejectsConcurrentStart(t *testing.T) {
	s := newMockStore()
	s.rechunk = []*doc.Document{rechunkableDoc("a.txt")}

	gate := make(chan struct{})
	embedder := &mockEmbedder{gate: gate}
	p := newTestPipeline(t, s, &mockExtractor{}, &provider.Registry{OpenAI: embedder})
	r := NewRechunker(p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(context.Background()); err != ErrRechunkRunning {
		t.Errorf("second Start() error = %v, want ErrRechunkRunning", err)
	}

	close(gate)
	r.Wait()

	// After the batch finishes, a new one may start.
	if err := r.Start(context.Background()); err != nil {
		t.Errorf("Start() after completion error = %v", err)
	}
	r.Wait()
}

func TestRechunkCancelStopsNewDocuments(t *testing.T) {
	s := newMockStore()
	s.rechunk = []*doc.Document{
		rechunkableDoc("a.txt"),
		rechunkableDoc("b.txt"),
		rechunkableDoc("c.txt"),
	}

	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	embedder := &mockEmbedder{gate: gate, started: started}
	p := newTestPipeline(t, s, &mockExtractor{}, &provider.Registry{OpenAI: embedder})
	r := NewRechunker(p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The first document is blocked inside Embed; cancel, then let it finish.
	<-started
	r.Cancel()
	close(gate)
	r.Wait()

	status := r.Status()
	if status.State != RechunkCancelled {
		t.Errorf("state = %q, want cancelled", status.State)
	}
	if status.Result == nil || status.Result.Total != 3 {
		t.Fatalf("result = %+v", status.Result)
	}
	if done := status.Result.Processed + status.Result.Failed + status.Result.Skipped; done >= 3 {
		t.Errorf("cancelled batch handled all %d documents", done)
	}
	// Cancellation must not abort the in-flight document: its chunks land
	// and it never records an error.
	if status.Result.Processed != 1 || status.Result.Failed != 0 {
		t.Errorf("result = %+v, want the in-flight document processed", *status.Result)
	}
	if len(s.replaced[s.rechunk[0].ID]) == 0 {
		t.Error("in-flight document's chunks were not written")
	}
	if msg, ok := s.errMsgs[s.rechunk[0].ID]; ok {
		t.Errorf("in-flight document recorded error %q", msg)
	}
}

func TestRechunkCancelWhenIdleIsNoop(t *testing.T) {
	p := newTestPipeline(t, newMockStore(), &mockExtractor{},
		&provider.Registry{OpenAI: &mockEmbedder{}})
	r := NewRechunker(p, nil)
	r.Cancel()
	if got := r.Status(); got.State != RechunkIdle {
		t.Errorf("state = %q, want idle", got.State)
	}
}

func TestRechunkStatusProgressesMonotonically(t *testing.T) {
	s := newMockStore()
	for range 5 {
		s.rechunk = append(s.rechunk, rechunkableDoc("doc.txt"))
	}
	p := newTestPipeline(t, s, &mockExtractor{}, &provider.Registry{OpenAI: &mockEmbedder{}})
	r := NewRechunker(p, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	prev := -1
	deadline := time.After(5 * time.Second)
	for {
		status := r.Status()
		if status.Progress.Done < prev {
			t.Fatalf("progress went backwards: %d -> %d", prev, status.Progress.Done)
		}
		prev = status.Progress.Done
		if status.State == RechunkCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("batch did not complete")
		case <-time.After(time.Millisecond):
		}
	}
	r.Wait()
}
