package vector

import "fmt"

// IndexType represents the type of native index mirroring the store.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search persisted as a binary artifact.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses a FAISS IndexFlatIP. Requires building with -tags=faiss
	// and having the FAISS C library installed.
	IndexTypeFAISS IndexType = "faiss"
	// IndexTypeNone keeps no native index; every search is a linear scan over metadata.
	IndexTypeNone IndexType = "none"
)

// ParseIndexType validates an index type name. Empty means memory.
func ParseIndexType(s string) (IndexType, error) {
	switch IndexType(s) {
	case IndexTypeMemory, "":
		return IndexTypeMemory, nil
	case IndexTypeFAISS:
		return IndexTypeFAISS, nil
	case IndexTypeNone:
		return IndexTypeNone, nil
	default:
		return "", fmt.Errorf("unknown index type: %s (supported: memory, faiss, none)", s)
	}
}

// NewVectorIndex creates a native vector index of the specified type.
func NewVectorIndex(indexType IndexType, dimensions int) (VectorIndex, error) {
	switch indexType {
	case IndexTypeMemory, "":
		idx, err := NewMemoryIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case IndexTypeFAISS:
		idx, err := NewFAISSIndex(dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("index type %q has no native index", indexType)
	}
}

// artifactName is the file name of the native artifact inside the store directory.
func artifactName(indexType IndexType) string {
	if indexType == IndexTypeFAISS {
		return "index.faiss"
	}
	return "index.bin"
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
// This is determined by the build tag -tags=faiss.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
