package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/apiclient"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultTemperature   = 0.2
	DefaultMaxTokens     = 250
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       *float64 // nil or negative selects DefaultTemperature
	MaxTokens         int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// OpenAIProvider asks an OpenAI chat model for questions in JSON mode.
type OpenAIProvider struct {
	client      *apiclient.Client
	model       string
	temperature float64
	maxTokens   int
}

type openAIChatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAIProvider creates a provider for the OpenAI chat completions API.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai question provider: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	// Proposal attempts are retried by the caller, so transport retries stay off here.
	client := apiclient.New(apiclient.Config{
		Service:           "OpenAI",
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxAttempts:       1,
	}, apiclient.WithLogger(logger))
	return &OpenAIProvider{
		client:      client,
		model:       cfg.Model,
		temperature: temperatureOrDefault(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// Propose makes one chat completion call.
func (p *OpenAIProvider) Propose(ctx context.Context, req QuestionRequest) (*QuestionResponse, error) {
	msgs, err := buildMessages(req)
	if err != nil {
		return nil, err
	}
	var resp openAIChatResponse
	err = p.client.PostJSON(ctx, "/chat/completions", openAIChatRequest{
		Model:          p.model,
		Messages:       msgs,
		Temperature:    p.temperature,
		MaxTokens:      p.maxTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	return ParseResponse(resp.Choices[0].Message.Content)
}
