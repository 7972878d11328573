package embedding

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderONNX    = "onnx"
	ProviderHashing = "hashing"
)

// Options selects and configures an embedding provider.
type Options struct {
	Provider   string
	Model      string
	Dimensions int
	BatchSize  int
	CacheSize  int // 0 disables the cache

	OpenAIKey     string
	OpenAIBaseURL string
	OllamaHost    string

	ONNXModelPath string
	MaxTokens     int

	RequestsPerSecond float64
	Timeout           time.Duration
}

// New creates the configured Embedder, wrapped in a CachedEmbedder when CacheSize > 0.
func New(opts Options, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		emb Embedder
		err error
	)
	switch opts.Provider {
	case ProviderOpenAI:
		emb, err = newOpenAI(opts, logger)
	case ProviderOllama:
		emb, err = newOllama(opts, logger)
	case ProviderONNX:
		emb, err = newONNX(opts)
	case ProviderHashing, "":
		emb = NewHashingEmbedder(opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	if opts.CacheSize > 0 {
		emb = NewCachedEmbedder(emb, opts.CacheSize)
	}
	return emb, nil
}

func newOpenAI(opts Options, logger *zap.Logger) (Embedder, error) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:            opts.OpenAIKey,
		BaseURL:           opts.OpenAIBaseURL,
		Model:             opts.Model,
		Dimensions:        opts.Dimensions,
		BatchSize:         opts.BatchSize,
		RequestsPerSecond: opts.RequestsPerSecond,
		Timeout:           opts.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func newOllama(opts Options, logger *zap.Logger) (Embedder, error) {
	e, err := NewOllamaEmbedder(OllamaConfig{
		Host:       opts.OllamaHost,
		Model:      opts.Model,
		Dimensions: opts.Dimensions,
		BatchSize:  opts.BatchSize,
		Timeout:    opts.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func newONNX(opts Options) (Embedder, error) {
	e, err := NewONNXEmbedder(opts.ONNXModelPath, opts.Dimensions, opts.MaxTokens)
	if err != nil {
		return nil, err
	}
	return e, nil
}
