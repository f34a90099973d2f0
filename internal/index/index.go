package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/tuannvm/workorder-a2a/internal/config"
	log "github.com/tuannvm/workorder-a2a/internal/logging"
	"github.com/tuannvm/workorder-a2a/internal/models"
)

// Embedder turns text into vectors
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists chunks. ReplaceDocument swaps every chunk of a document in
// one transaction.
type Store interface {
	ReplaceDocument(ctx context.Context, documentID string, chunks []Chunk) error
	Chunks(ctx context.Context) ([]Chunk, error)
	Close() error
}

// Index chunks, embeds and searches documents
type Index struct {
	store    Store
	embedder Embedder
	splitter textsplitter.TextSplitter
}

// New creates an index over a store
func New(store Store, embedder Embedder, chunkSize, chunkOverlap int) *Index {
	return &Index{
		store:    store,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Open builds the index for the configured backend
func Open(ctx context.Context, cfg *config.Config, embedder Embedder) (*Index, error) {
	var (
		store Store
		err   error
	)
	switch cfg.IndexBackend {
	case "sqlite", "":
		if dir := filepath.Dir(cfg.IndexSQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create index directory: %w", err)
			}
		}
		store, err = NewSQLiteStore(cfg.IndexSQLitePath)
	case "postgres":
		store, err = NewPostgresStore(ctx, cfg.IndexPostgresDSN)
	default:
		return nil, fmt.Errorf("%w: unsupported index backend %q", models.ErrValidation, cfg.IndexBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDependencyUnavailable, err)
	}
	log.Infof("Retrieval index opened (backend=%s)", cfg.IndexBackend)
	return New(store, embedder, cfg.IndexChunkSize, cfg.IndexChunkOverlap), nil
}

// Close releases the underlying store
func (x *Index) Close() error {
	return x.store.Close()
}

// Upsert chunks and embeds documents, replacing any earlier version of each
// document, and reports how many chunks were written.
func (x *Index) Upsert(ctx context.Context, docs []Document) (int, error) {
	total := 0
	for _, doc := range docs {
		if doc.ID == "" {
			return total, fmt.Errorf("%w: document id is required", models.ErrValidation)
		}
		texts, err := x.splitter.SplitText(doc.Text)
		if err != nil {
			return total, fmt.Errorf("split %s: %w", doc.ID, err)
		}
		texts = nonBlank(texts)
		if len(texts) == 0 {
			log.Warnf("Document %s has no text to index", doc.ID)
			continue
		}

		vectors, err := x.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("embed %s: %w", doc.ID, err)
		}
		if len(vectors) != len(texts) {
			return total, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", models.ErrTransport, len(vectors), len(texts))
		}

		chunks := make([]Chunk, len(texts))
		for i, text := range texts {
			chunks[i] = Chunk{
				ID:         ChunkID(doc.ID, text),
				DocumentID: doc.ID,
				Ordinal:    i,
				Content:    text,
				Metadata:   doc.Metadata,
				Embedding:  vectors[i],
			}
		}
		if err := x.store.ReplaceDocument(ctx, doc.ID, chunks); err != nil {
			return total, fmt.Errorf("store %s: %w", doc.ID, err)
		}
		total += len(chunks)
	}
	return total, nil
}

// Search returns the k chunks most similar to the query, best first
func (x *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", models.ErrValidation)
	}
	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := x.store.Chunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	hits := make([]Hit, 0, len(chunks))
	for _, c := range chunks {
		hits = append(hits, Hit{Chunk: c, Score: cosine(vec, c.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func nonBlank(texts []string) []string {
	out := texts[:0]
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}
