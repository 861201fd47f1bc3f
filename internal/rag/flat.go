package rag

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// FlatIndex is an exact inner-product index held in memory. With
// L2-normalised vectors the inner product equals cosine similarity.
type FlatIndex struct {
	vectors *Matrix
}

// NewFlatIndex wraps vectors. The matrix is shared, not copied.
func NewFlatIndex(vectors *Matrix) (*FlatIndex, error) {
	if vectors.Rows() == 0 {
		return nil, fmt.Errorf("flat index: no vectors")
	}
	return &FlatIndex{vectors: vectors}, nil
}

// Search scans every vector and returns the k best by inner product. Equal
// scores keep ascending position order.
func (f *FlatIndex) Search(_ context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.vectors.Dim {
		return nil, fmt.Errorf("flat index: query dimension %d, index dimension %d", len(query), f.vectors.Dim)
	}
	if k <= 0 {
		return nil, nil
	}

	rows := f.vectors.Rows()
	hits := make([]Hit, rows)
	for i := range rows {
		hits[i] = Hit{Position: i, Score: dot(query, f.vectors.Row(i))}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Size returns the number of indexed vectors.
func (f *FlatIndex) Size() int { return f.vectors.Rows() }

// Dimension returns the vector length.
func (f *FlatIndex) Dimension() int { return f.vectors.Dim }

// Ref is empty: a flat index lives entirely in the embeddings file.
func (f *FlatIndex) Ref() string { return "" }

// dot returns the inner product of a and b, accumulated in float64.
func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// FlatBackend builds [FlatIndex] values from the persisted embeddings.
type FlatBackend struct{}

// Name implements [Backend].
func (FlatBackend) Name() string { return "flat" }

// Build implements [Backend].
func (FlatBackend) Build(_ context.Context, vectors *Matrix) (VectorIndex, error) {
	return NewFlatIndex(vectors)
}

// Open implements [Backend].
func (FlatBackend) Open(_ context.Context, _ *Manifest, vectors *Matrix) (VectorIndex, error) {
	return NewFlatIndex(vectors)
}

// Drop implements [Backend]. Flat indexes hold no external resources.
func (FlatBackend) Drop(context.Context, string) error { return nil }
