package embedding

import (
	"context"

	"github.com/hyperjump/rootcause/pkg/utils"
)

// DefaultHashingDimensions is the vector size of the hashing embedder when unset.
const DefaultHashingDimensions = 256

// HashingEmbedder is a deterministic, offline embedder. Each word contributes to one
// bucket and each of its boundary-marked character trigrams to others, so texts that
// share words or word stems ("smell", "smells") land close together. It needs no model
// files or network access and is used for local setups and tests.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a hashing embedder with the given dimensions.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashingDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns the unit-length feature-hashed vector for text.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, w := range Words(text) {
		emb[HashString("w:"+w)%e.dimensions] += 1
		marked := []rune("^" + w + "$")
		for i := 0; i+3 <= len(marked); i++ {
			emb[HashString("g:"+string(marked[i:i+3]))%e.dimensions] += 0.5
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashingEmbedder.
func (e *HashingEmbedder) Close() error {
	return nil
}
