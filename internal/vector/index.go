// Package vector provides the persisted fault-record vector store and the native
// flat inner-product indexes that mirror it.
package vector

import "context"

// VectorIndex is a native, append-only flat index. Entries are addressed by their
// insertion position; positions are never reused or reordered.
type VectorIndex interface {
	Add(ctx context.Context, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// VectorResult is a single native index hit.
type VectorResult struct {
	Position int
	Score    float64 // inner product; cosine similarity for normalized vectors
}
