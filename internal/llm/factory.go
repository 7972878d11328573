package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Options selects and configures a question provider.
type Options struct {
	Provider          string // "openai" or "ollama"
	Model             string
	BaseURL           string
	APIKey            string
	Temperature       *float64 // nil or negative selects DefaultTemperature
	MaxTokens         int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// New creates the configured QuestionProvider.
func New(opts Options, logger *zap.Logger) (QuestionProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Provider {
	case "openai", "":
		p, err := NewOpenAIProvider(OpenAIConfig{
			APIKey:            opts.APIKey,
			BaseURL:           opts.BaseURL,
			Model:             opts.Model,
			Temperature:       opts.Temperature,
			MaxTokens:         opts.MaxTokens,
			RequestsPerSecond: opts.RequestsPerSecond,
			Timeout:           opts.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "ollama":
		p, err := NewOllamaProvider(OllamaConfig{
			Host:        opts.BaseURL,
			Model:       opts.Model,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			Timeout:     opts.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown question provider %q", opts.Provider)
	}
}
