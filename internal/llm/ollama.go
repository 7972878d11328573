package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/apiclient"
)

// DefaultOllamaHost is the local Ollama server address.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaConfig configures an OllamaProvider.
type OllamaConfig struct {
	Host        string
	Model       string
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
}

// OllamaProvider asks a local Ollama chat model for questions with JSON output.
type OllamaProvider struct {
	client      *apiclient.Client
	model       string
	temperature float64
	maxTokens   int
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message chatMessage `json:"message"`
}

// NewOllamaProvider creates a provider for an Ollama server.
func NewOllamaProvider(cfg OllamaConfig, logger *zap.Logger) (*OllamaProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama question provider: model is required")
	}
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &OllamaProvider{
		client:      apiclient.New(apiclient.Config{Service: "Ollama", BaseURL: cfg.Host, Timeout: cfg.Timeout}, apiclient.WithLogger(logger)),
		model:       cfg.Model,
		temperature: temperatureOrDefault(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name returns "ollama".
func (p *OllamaProvider) Name() string { return "ollama" }

// Propose makes one non-streaming chat call.
func (p *OllamaProvider) Propose(ctx context.Context, req QuestionRequest) (*QuestionResponse, error) {
	msgs, err := buildMessages(req)
	if err != nil {
		return nil, err
	}
	var resp ollamaChatResponse
	err = p.client.PostJSON(ctx, "/api/chat", ollamaChatRequest{
		Model:    p.model,
		Messages: msgs,
		Format:   "json",
		Options:  ollamaOptions{Temperature: p.temperature, NumPredict: p.maxTokens},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return ParseResponse(resp.Message.Content)
}
