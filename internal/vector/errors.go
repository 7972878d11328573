package vector

import "errors"

var (
	// ErrShapeMismatch is returned when embeddings and records differ in count.
	ErrShapeMismatch = errors.New("embeddings and records count mismatch")
	// ErrDimensionMismatch is returned when a vector disagrees with the store's fixed dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrPersistenceFailure is returned when the store could not be written to disk.
	// The previously persisted artifacts remain readable and in-memory state stays valid.
	ErrPersistenceFailure = errors.New("vector store persistence failed")
)
