package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/rootcause/internal/embedding"
	"github.com/hyperjump/rootcause/internal/keyword"
	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/internal/search"
	"github.com/hyperjump/rootcause/internal/storage"
	"github.com/hyperjump/rootcause/internal/vector"
)

// Result summarizes one ingest.
type Result struct {
	Added      int      `json:"added"`
	Skipped    int      `json:"skipped"` // duplicate fault descriptions
	Invalid    int      `json:"invalid"` // dropped by Normalize
	Components []string `json:"components"`
}

// Ingester adds records to the vector store, the catalog and the keyword index. Writes
// are serialized, so a fault description checked as new is still new when it is added.
type Ingester struct {
	mu       sync.Mutex
	embedder embedding.Embedder
	store    *vector.Store
	catalog  storage.Catalog
	keywords keyword.RecordIndex
	logger   *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithCatalog records ingested rows in the catalog.
func WithCatalog(c storage.Catalog) Option {
	return func(i *Ingester) {
		i.catalog = c
	}
}

// WithKeywordIndex keeps the keyword index in step with the store.
func WithKeywordIndex(idx keyword.RecordIndex) Option {
	return func(i *Ingester) {
		i.keywords = idx
	}
}

// WithLogger sets the ingester logger.
func WithLogger(logger *zap.Logger) Option {
	return func(i *Ingester) {
		i.logger = logger
	}
}

// NewIngester creates an Ingester.
func NewIngester(embedder embedding.Embedder, store *vector.Store, opts ...Option) *Ingester {
	i := &Ingester{embedder: embedder, store: store}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = zap.NewNop()
	}
	return i
}

// Ingest normalizes records, drops those whose fault description is already stored or
// repeated in the batch, embeds the rest in one batch and appends them.
func (i *Ingester) Ingest(ctx context.Context, records []models.Record, source string) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ingest(ctx, records, source)
}

func (i *Ingester) ingest(ctx context.Context, records []models.Record, source string) (Result, error) {
	valid, invalid := Normalize(records)
	fresh := make([]models.Record, 0, len(valid))
	seen := make(map[string]struct{}, len(valid))
	for _, r := range valid {
		if _, dup := seen[r.FaultDescription]; dup || i.store.HasFaultDescription(r.FaultDescription) {
			continue
		}
		seen[r.FaultDescription] = struct{}{}
		fresh = append(fresh, r)
	}
	res := Result{Skipped: len(valid) - len(fresh), Invalid: invalid}
	if len(fresh) == 0 {
		res.Components = i.store.Components()
		return res, nil
	}

	embs, err := i.embed(ctx, fresh)
	if err != nil {
		return res, err
	}
	if err := i.store.Add(ctx, embs, fresh); err != nil {
		return res, err
	}
	res.Added = len(fresh)
	res.Components = i.store.Components()

	if err := i.sync(ctx, fresh, source, false); err != nil {
		return res, err
	}
	i.logger.Info("records ingested",
		zap.String("source", source),
		zap.Int("added", res.Added),
		zap.Int("skipped", res.Skipped),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}

// Rebuild replaces the store contents with records.
func (i *Ingester) Rebuild(ctx context.Context, records []models.Record, source string) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rebuild(ctx, records, source)
}

func (i *Ingester) rebuild(ctx context.Context, records []models.Record, source string) (Result, error) {
	valid, invalid := Normalize(records)
	unique := make([]models.Record, 0, len(valid))
	seen := make(map[string]struct{}, len(valid))
	for _, r := range valid {
		if _, dup := seen[r.FaultDescription]; dup {
			continue
		}
		seen[r.FaultDescription] = struct{}{}
		unique = append(unique, r)
	}
	res := Result{Skipped: len(valid) - len(unique), Invalid: invalid}
	if len(unique) == 0 {
		res.Components = i.store.Components()
		return res, nil
	}

	embs, err := i.embed(ctx, unique)
	if err != nil {
		return res, err
	}
	if err := i.store.Build(ctx, embs, unique); err != nil {
		return res, err
	}
	res.Added = len(unique)
	res.Components = i.store.Components()

	if err := i.sync(ctx, unique, source, true); err != nil {
		return res, err
	}
	i.logger.Info("index rebuilt", zap.String("source", source), zap.Int("records", res.Added))
	return res, nil
}

// Bootstrap loads the persisted store and brings it up to date with the seed file, or
// with the catalog when no seed file exists. Without prior state, or when rebuild is
// set, the store is built from scratch; otherwise only new rows are appended. The
// catalog and keyword index are then reconciled with the store.
func (i *Ingester) Bootstrap(ctx context.Context, seedPath string, rebuild bool) (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	have, err := i.store.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load store: %w", err)
	}

	rows, source, err := i.seedRows(ctx, seedPath)
	if err != nil {
		return Result{}, err
	}

	var res Result
	switch {
	case len(rows) == 0:
		res.Components = i.store.Components()
	case rebuild || !have:
		res, err = i.rebuild(ctx, rows, source)
	default:
		res, err = i.ingest(ctx, rows, source)
	}
	if err != nil {
		return res, err
	}
	return res, i.reconcile(ctx)
}

func (i *Ingester) seedRows(ctx context.Context, seedPath string) ([]models.Record, string, error) {
	if seedPath != "" {
		rows, err := ReadFile(seedPath)
		if err == nil {
			return rows, filepath.Base(seedPath), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", err
		}
		i.logger.Debug("seed file not found", zap.String("path", seedPath))
	}
	if i.catalog == nil {
		return nil, "", nil
	}
	rows, err := i.catalog.All(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("read catalog: %w", err)
	}
	return rows, "catalog", nil
}

// reconcile copies store records missing from the catalog and rebuilds the keyword
// index when its size differs from the store.
func (i *Ingester) reconcile(ctx context.Context) error {
	records := i.store.Records()
	if i.catalog != nil && len(records) > 0 {
		if _, err := i.catalog.Insert(ctx, records, "index"); err != nil {
			return fmt.Errorf("sync catalog: %w", err)
		}
	}
	if i.keywords == nil {
		return nil
	}
	n, err := i.keywords.DocCount()
	if err != nil {
		return fmt.Errorf("count keyword index: %w", err)
	}
	if int(n) == len(records) {
		return nil
	}
	i.logger.Info("rebuilding keyword index", zap.Uint64("indexed", n), zap.Int("records", len(records)))
	return i.keywords.Reset(ctx, records)
}

func (i *Ingester) embed(ctx context.Context, records []models.Record) ([][]float32, error) {
	texts := make([]string, len(records))
	for j, r := range records {
		texts[j] = r.FaultDescription
	}
	embs, err := i.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrEmbeddingUnavailable, err)
	}
	return embs, nil
}

// sync writes records to the catalog and keyword index. reset replaces the keyword index.
func (i *Ingester) sync(ctx context.Context, records []models.Record, source string, reset bool) error {
	if i.catalog != nil {
		if _, err := i.catalog.Insert(ctx, records, source); err != nil {
			return fmt.Errorf("update catalog: %w", err)
		}
	}
	if i.keywords == nil {
		return nil
	}
	if reset {
		return i.keywords.Reset(ctx, records)
	}
	return i.keywords.Index(ctx, records)
}
