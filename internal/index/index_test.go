package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tuannvm/workorder-a2a/internal/models"
)

// vocabEmbedder embeds text as keyword counts over a fixed vocabulary
type vocabEmbedder struct {
	vocab []string
	err   error
}

func (e vocabEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	text = strings.ToLower(text)
	v := make([]float32, len(e.vocab))
	for i, w := range e.vocab {
		v[i] = float32(strings.Count(text, w))
	}
	return v, nil
}

func (e vocabEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

var testVocab = []string{"thermal", "gpu", "pdu", "power", "switch", "packet"}

func newSQLiteIndex(t *testing.T, embedder Embedder) *Index {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	idx := New(store, embedder, 800, 120)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func seed(t *testing.T, idx *Index) {
	t.Helper()
	n, err := idx.Upsert(context.Background(), []Document{
		{ID: "DWOS-1", Text: "GPU thermal runaway on rack A12", Metadata: map[string]string{MetaSource: "DWOS-1", MetaSummary: "GPU thermal"}},
		{ID: "DWOS-2", Text: "PDU power alarm in row 4", Metadata: map[string]string{MetaSource: "DWOS-2"}},
		{ID: "DWOS-3", Text: "Packet loss on spine switch", Metadata: map[string]string{MetaSource: "DWOS-3"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n != 3 {
		t.Fatalf("Upsert wrote %d chunks, want 3", n)
	}
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	idx := newSQLiteIndex(t, vocabEmbedder{vocab: testVocab})
	seed(t, idx)

	hits, err := idx.Search(context.Background(), "gpu thermal alert", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits", len(hits))
	}
	if hits[0].SourceID() != "DWOS-1" || hits[0].Summary() != "GPU thermal" {
		t.Errorf("top hit = %s / %s", hits[0].SourceID(), hits[0].Summary())
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("hits not ordered: %v >= %v", hits[1].Score, hits[0].Score)
	}
}

func TestUpsert_ReplacesDocument(t *testing.T) {
	idx := newSQLiteIndex(t, vocabEmbedder{vocab: testVocab})
	seed(t, idx)

	ctx := context.Background()
	if _, err := idx.Upsert(ctx, []Document{{ID: "DWOS-2", Text: "switch reboot"}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	chunks, err := idx.store.Chunks(ctx)
	if err != nil {
		t.Fatalf("Chunks: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks after replace, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.DocumentID == "DWOS-2" {
			if c.Content != "switch reboot" || c.ID != ChunkID("DWOS-2", "switch reboot") {
				t.Errorf("chunk not replaced: %+v", c)
			}
			if c.Metadata != nil && len(c.Metadata) != 0 {
				t.Errorf("metadata = %v", c.Metadata)
			}
		}
	}
}

func TestUpsert_SplitsLongText(t *testing.T) {
	idx := newSQLiteIndex(t, vocabEmbedder{vocab: testVocab})

	paragraph := strings.Repeat("thermal sensors report drift on the gpu sled. ", 20)
	text := strings.Join([]string{paragraph, paragraph, paragraph}, "\n\n")
	n, err := idx.Upsert(context.Background(), []Document{{ID: "guide", Text: text}})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n < 2 {
		t.Errorf("expected the guide to be split, got %d chunk(s)", n)
	}
}

func TestUpsert_Validation(t *testing.T) {
	idx := newSQLiteIndex(t, vocabEmbedder{vocab: testVocab})
	if _, err := idx.Upsert(context.Background(), []Document{{Text: "x"}}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	n, err := idx.Upsert(context.Background(), []Document{{ID: "blank", Text: "   "}})
	if err != nil || n != 0 {
		t.Errorf("blank document = %d, %v", n, err)
	}
}

func TestSearch_EmbedderFailure(t *testing.T) {
	idx := newSQLiteIndex(t, vocabEmbedder{vocab: testVocab, err: models.ErrTransport})
	if _, err := idx.Search(context.Background(), "gpu", 4); !errors.Is(err, models.ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if _, err := idx.Search(context.Background(), "gpu", 0); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()
	want := []float32{0.5, -1.25, 3}
	if err := store.ReplaceDocument(ctx, "doc", []Chunk{{ID: "c1", DocumentID: "doc", Content: "x", Embedding: want}}); err != nil {
		t.Fatalf("ReplaceDocument: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	chunks, err := reopened.Chunks(ctx)
	if err != nil || len(chunks) != 1 {
		t.Fatalf("Chunks = %v, %v", chunks, err)
	}
	for i, f := range want {
		if chunks[0].Embedding[i] != f {
			t.Errorf("embedding[%d] = %v, want %v", i, chunks[0].Embedding[i], f)
		}
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("WORKORDER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WORKORDER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	idx := New(store, vocabEmbedder{vocab: testVocab}, 800, 120)
	defer idx.Close()

	seed(t, idx)
	hits, err := idx.Search(ctx, "pdu power", 1)
	if err != nil || len(hits) != 1 || hits[0].SourceID() != "DWOS-2" {
		t.Errorf("Search = %+v, %v", hits, err)
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 2}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosine(tt.a, tt.b); got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("cosine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHitSummaryTruncates(t *testing.T) {
	h := Hit{Chunk: Chunk{DocumentID: "doc", Content: strings.Repeat("a", 200)}}
	if h.SourceID() != "doc" {
		t.Errorf("SourceID = %q", h.SourceID())
	}
	if got := h.Summary(); len(got) != 163 {
		t.Errorf("summary length = %d", len(got))
	}
}
