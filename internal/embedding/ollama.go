package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/apiclient"
	"github.com/hyperjump/rootcause/pkg/utils"
)

// DefaultOllamaHost is the local Ollama server address.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// OllamaEmbedder calls a local Ollama server's /api/embed endpoint.
type OllamaEmbedder struct {
	client     *apiclient.Client
	model      string
	dimensions int
	batchSize  int
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an embedder for an Ollama server. Dimensions must match the model.
func NewOllamaEmbedder(cfg OllamaConfig, logger *zap.Logger) (*OllamaEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama embedder: model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("ollama embedder: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	client := apiclient.New(apiclient.Config{
		Service:     "Ollama",
		BaseURL:     cfg.Host,
		MaxAttempts: 2,
		Timeout:     cfg.Timeout,
	}, apiclient.WithLogger(logger))
	return &OllamaEmbedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
	}, nil
}

// Embed embeds a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch embeds texts in chunks of the configured batch size.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		var resp ollamaEmbedResponse
		err := e.client.PostJSON(ctx, "/api/embed", ollamaEmbedRequest{Model: e.model, Input: texts[start:end]}, &resp)
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(resp.Embeddings), end-start)
		}
		for i, emb := range resp.Embeddings {
			if len(emb) != e.dimensions {
				return nil, fmt.Errorf("ollama embed: vector %d has %d dimensions, want %d", start+i, len(emb), e.dimensions)
			}
			utils.NormalizeL2(emb)
			out = append(out, emb)
		}
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for OllamaEmbedder.
func (e *OllamaEmbedder) Close() error {
	return nil
}
