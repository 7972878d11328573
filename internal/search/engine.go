// Package search answers free-text fault queries against the vector store.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/embedding"
	"github.com/hyperjump/rootcause/internal/keyword"
	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/internal/vector"
)

var (
	// ErrEmbeddingUnavailable means the embedding provider failed. It is not retried.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrLookupUnavailable means the engine has no keyword index.
	ErrLookupUnavailable = errors.New("keyword lookup unavailable")
)

// Engine runs similarity search over stored fault records.
type Engine struct {
	embedder embedding.Embedder
	store    *vector.Store
	keywords keyword.RecordIndex
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithKeywordIndex enables Lookup.
func WithKeywordIndex(idx keyword.RecordIndex) Option {
	return func(e *Engine) {
		e.keywords = idx
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(embedder embedding.Embedder, store *vector.Store, opts ...Option) *Engine {
	e := &Engine{embedder: embedder, store: store}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Diagnose embeds the query once and returns the top matching records as candidates,
// best first. Hits below the query's MinSimilarity are dropped. No match is an empty,
// non-nil slice.
func (e *Engine) Diagnose(ctx context.Context, q *models.DiagnoseQuery) ([]models.CandidateResult, error) {
	start := time.Now()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	emb, err := e.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	matches, err := e.store.Search(ctx, emb, q.TopK, vector.Filter{Component: q.Component, Model: q.Model})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := make([]models.CandidateResult, 0, len(matches))
	for _, m := range matches {
		if m.Score < q.MinSimilarity {
			continue
		}
		out = append(out, models.NewCandidate(m.Record, m.Score))
	}
	e.logger.Debug("diagnose",
		zap.String("component", q.Component),
		zap.Int("top_k", q.TopK),
		zap.Int("matches", len(matches)),
		zap.Int("returned", len(out)),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}

// Lookup finds records containing the given terms, optionally within one component.
// Typos are tolerated and description matches rank first.
func (e *Engine) Lookup(ctx context.Context, terms, component string, limit int) ([]keyword.Hit, error) {
	if e.keywords == nil {
		return nil, ErrLookupUnavailable
	}
	if limit <= 0 || limit > models.MaxTopK {
		limit = models.DefaultTopK
	}
	hits, err := e.keywords.Search(ctx, terms, limit, &keyword.SearchOptions{
		Component:        component,
		DescriptionBoost: 2,
		PhraseBoost:      1.5,
		FuzzyEnabled:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword lookup failed: %w", err)
	}
	return hits, nil
}

// Store returns the underlying vector store.
func (e *Engine) Store() *vector.Store {
	return e.store
}
