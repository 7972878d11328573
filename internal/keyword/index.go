// Package keyword provides free-text lookup over fault records using Bleve.
package keyword

import (
	"context"

	"github.com/hyperjump/rootcause/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// Component restricts hits to one canonical component label.
	Component string
	// DescriptionBoost multiplies the score contribution from fault description matches.
	// Values > 1 rank symptom matches above cause/action matches. Use 1.0 for no boost.
	DescriptionBoost float64
	// PhraseBoost multiplies the score when query terms appear together as a phrase.
	PhraseBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 1.
	Fuzziness int
}

// RecordIndex indexes records and finds them by keywords.
type RecordIndex interface {
	Index(ctx context.Context, records []models.Record) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error)
	Reset(ctx context.Context, records []models.Record) error
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single keyword search hit.
type Hit struct {
	Record models.Record `json:"record"`
	Score  float64       `json:"score"`
}
