package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery wraps every DiagnoseQuery validation failure.
var ErrInvalidQuery = errors.New("invalid query")

const (
	// DefaultTopK is the result count used when a query does not ask for one.
	DefaultTopK = 10
	// MaxTopK bounds the number of results a single query may request.
	MaxTopK = 50
)

// DiagnoseQuery is a free-text fault query with optional component/model filters.
type DiagnoseQuery struct {
	Query         string  `json:"query"`
	Component     string  `json:"component,omitempty"`
	Model         string  `json:"model,omitempty"`
	TopK          int     `json:"top_k,omitempty"`
	MinSimilarity float64 `json:"min_similarity,omitempty"` // hide hits scoring below this
}

// Validate rejects blank queries and out-of-range parameters, defaults TopK, and
// canonicalizes the filters.
func (q *DiagnoseQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: query must not be empty", ErrInvalidQuery)
	}
	if q.TopK == 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK < 1 || q.TopK > MaxTopK {
		return fmt.Errorf("%w: top_k must be between 1 and %d, got %d", ErrInvalidQuery, MaxTopK, q.TopK)
	}
	if q.MinSimilarity < 0 || q.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be between 0 and 1, got %g", ErrInvalidQuery, q.MinSimilarity)
	}
	q.Component = CanonicalLabel(q.Component)
	q.Model = CanonicalLabel(q.Model)
	return nil
}
