// Package index is the persistent similarity store over chunked tickets and
// operator documents used to ground work order generation.
package index

import (
	"encoding/hex"
	"math"

	"github.com/zeebo/blake3"
)

// Metadata keys written on every chunk
const (
	MetaSource  = "source"
	MetaSummary = "summary"
	MetaKind    = "kind"
)

// Document is one logical text to index (a ticket, a guide, operator notes)
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Chunk is a piece of a document with its embedding. ID is derived from the
// owning document and the chunk content, so re-ingesting unchanged text is
// idempotent.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Content    string
	Metadata   map[string]string
	Embedding  []float32
}

// Hit is a ranked search result
type Hit struct {
	Chunk Chunk
	Score float64
}

// SourceID returns the provenance identifier of the hit
func (h Hit) SourceID() string {
	if s := h.Chunk.Metadata[MetaSource]; s != "" {
		return s
	}
	return h.Chunk.DocumentID
}

// Summary returns a short description of the hit
func (h Hit) Summary() string {
	if s := h.Chunk.Metadata[MetaSummary]; s != "" {
		return s
	}
	const maxLen = 160
	content := []rune(h.Chunk.Content)
	if len(content) <= maxLen {
		return string(content)
	}
	return string(content[:maxLen]) + "..."
}

// ChunkID content-addresses a chunk
func ChunkID(documentID, content string) string {
	sum := blake3.Sum256([]byte(documentID + "\x00" + content))
	return hex.EncodeToString(sum[:16])
}

// cosine returns the cosine similarity of two vectors, or 0 when either is
// empty, zero or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
