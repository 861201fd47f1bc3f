// Package rag owns the knowledge-base side of the pipeline: the ordered chunk
// collection, its embeddings, the vector index built over them, semantic
// search with score filtering, and assembly of the retrieved text into a
// bounded prompt context.
//
// All process-wide state lives in a [Manager]. Backends (the in-process flat
// index and Qdrant) satisfy [Backend] so the manager never depends on a
// specific nearest-neighbour implementation.
package rag

import (
	"context"
	"errors"
)

var (
	// ErrNoChunks is returned when a rebuild has nothing to index.
	ErrNoChunks = errors.New("rag: no chunks to index")
	// ErrCorrupt is returned when persisted index files exist but are
	// unreadable or disagree with each other.
	ErrCorrupt = errors.New("rag: index files are corrupt")
	// ErrIncompatible is returned when the persisted index was built for a
	// different backend than the one configured.
	ErrIncompatible = errors.New("rag: persisted index is incompatible with the configured backend")
)

// Chunk is one retrievable unit of the knowledge base. Chunks are identified
// by their position in the persisted sequence.
type Chunk struct {
	// Text is the chunk body that is embedded and returned to the prompt.
	Text string `json:"text"`
	// Metadata carries source attributes (title, url, category, ...).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult is one ranked hit for a query.
type SearchResult struct {
	// Position is the ordinal of the chunk in the published collection.
	Position int
	// Text is the chunk text at Position.
	Text string
	// Score is the cosine similarity between query and chunk.
	Score float32
	// Metadata is the chunk metadata at Position.
	Metadata map[string]any
}

// Hit is a raw nearest-neighbour result from a [VectorIndex].
type Hit struct {
	// Position is the ordinal of the matched vector.
	Position int
	// Score is the inner product between the query and the matched vector.
	Score float32
}

// Embedder converts text into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is a built, immutable nearest-neighbour structure where
// position i holds the embedding of chunk i.
type VectorIndex interface {
	// Search returns up to k hits ordered by descending score.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	// Size is the number of indexed vectors.
	Size() int
	// Dimension is the vector length.
	Dimension() int
	// Ref locates the index inside its backend (empty for in-process indexes).
	Ref() string
}

// Backend builds and reopens vector indexes.
type Backend interface {
	// Name identifies the backend in the persisted manifest.
	Name() string
	// Build creates a new index where position i holds row i of vectors.
	// It must not disturb any index previously returned by Build or Open.
	Build(ctx context.Context, vectors *Matrix) (VectorIndex, error)
	// Open restores the index described by m. vectors holds the persisted
	// embeddings in chunk order.
	Open(ctx context.Context, m *Manifest, vectors *Matrix) (VectorIndex, error)
	// Drop releases an index that is no longer published. Unknown refs are
	// not an error.
	Drop(ctx context.Context, ref string) error
}
