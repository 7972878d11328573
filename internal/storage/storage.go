// Package storage persists the fault record catalog.
package storage

import (
	"context"

	"github.com/hyperjump/rootcause/internal/models"
)

// Catalog defines record persistence operations. Fault descriptions are unique.
type Catalog interface {
	// Insert stores records, skipping any whose fault description already exists, and
	// returns how many were inserted. source names where the records came from.
	Insert(ctx context.Context, records []models.Record, source string) (int, error)
	All(ctx context.Context) ([]models.Record, error)
	Count(ctx context.Context) (int64, error)
	Components(ctx context.Context) ([]string, error)
	Models(ctx context.Context, component string) ([]string, error)
	Close() error
}
