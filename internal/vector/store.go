package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/pkg/utils"
	"go.uber.org/zap"
)

// MetaFileName is the human-readable metadata artifact holding records and embeddings.
const MetaFileName = "meta.json"

// Filter restricts a search to one canonical component and, optionally, one model.
// Empty fields do not restrict.
type Filter struct {
	Component string
	Model     string
}

func (f Filter) empty() bool {
	return f.Component == "" && f.Model == ""
}

func (f Filter) matches(r models.Record) bool {
	if f.Component != "" && models.CanonicalLabel(r.Component) != models.CanonicalLabel(f.Component) {
		return false
	}
	if f.Model != "" && models.CanonicalLabel(r.Model) != models.CanonicalLabel(f.Model) {
		return false
	}
	return true
}

// Match is one search hit: the stored record at Position and its cosine similarity.
type Match struct {
	Position int
	Record   models.Record
	Score    float64
}

// metaEntry is one element of meta.json.
type metaEntry struct {
	models.Record
	Embedding []float32 `json:"embedding"`
}

// Store is the persisted fault-record vector store. Entries are append-only and addressed
// by insertion position. Mutations hold the write lock through persistence, so no search
// observes a partially applied build or add.
type Store struct {
	mu        sync.RWMutex
	dir       string
	indexType IndexType
	logger    *zap.Logger

	dim     int
	records []models.Record
	vectors [][]float32
	known   map[string]struct{}
	index   VectorIndex // nil means linear scan
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for store events.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithIndexType selects the native index that mirrors the metadata.
func WithIndexType(t IndexType) StoreOption {
	return func(s *Store) {
		s.indexType = t
	}
}

// NewStore creates an empty store persisting under dir. Call Load to restore prior state.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	s := &Store{
		dir:       dir,
		indexType: IndexTypeMemory,
		known:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := ParseIndexType(string(s.indexType)); err != nil {
		return nil, err
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

// Build replaces the entire store with the given entries, assigning positions 0..n-1
// in input order, and persists before returning.
func (s *Store) Build(ctx context.Context, embeddings [][]float32, records []models.Record) error {
	if len(embeddings) != len(records) {
		return fmt.Errorf("%w: %d embeddings for %d records", ErrShapeMismatch, len(embeddings), len(records))
	}
	dim := 0
	if len(embeddings) > 0 {
		dim = len(embeddings[0])
	}
	if err := checkDimensions(embeddings, dim); err != nil {
		return err
	}

	vectors := normalizeAll(embeddings)
	index, err := s.newIndex(ctx, dim, vectors)
	if err != nil {
		s.logger.Warn("native index unavailable, using linear scan", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		_ = s.index.Close()
	}
	s.dim = dim
	s.records = append([]models.Record(nil), records...)
	s.vectors = vectors
	s.index = index
	s.known = make(map[string]struct{}, len(records))
	for _, r := range records {
		s.known[r.FaultDescription] = struct{}{}
	}
	s.logger.Info("vector store built", zap.Int("entries", len(records)), zap.Int("dimensions", dim))
	return s.saveLocked()
}

// Add appends entries after the existing ones and persists. Entries whose fault
// description is already stored, or repeated earlier in the batch, are skipped under the
// write lock. The first vector added to an empty store fixes its dimension. A dimension
// mismatch leaves the store untouched.
func (s *Store) Add(ctx context.Context, embeddings [][]float32, records []models.Record) error {
	if len(embeddings) != len(records) {
		return fmt.Errorf("%w: %d embeddings for %d records", ErrShapeMismatch, len(embeddings), len(records))
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	embeddings, records = s.unknownLocked(embeddings, records)
	if len(records) == 0 {
		return nil
	}

	dim := s.dim
	if len(s.records) == 0 && dim == 0 {
		dim = len(embeddings[0])
	}
	if err := checkDimensions(embeddings, dim); err != nil {
		return err
	}
	vectors := normalizeAll(embeddings)

	if s.index == nil && s.indexType != IndexTypeNone && len(s.records) == 0 {
		idx, err := s.newIndex(ctx, dim, nil)
		if err != nil {
			s.logger.Warn("native index unavailable, using linear scan", zap.Error(err))
		}
		s.index = idx
	}
	if s.index != nil {
		if err := s.index.Add(ctx, vectors); err != nil {
			s.logger.Warn("native index add failed, falling back to linear scan", zap.Error(err))
			_ = s.index.Close()
			s.index = nil
		}
	}

	s.dim = dim
	s.records = append(s.records, records...)
	s.vectors = append(s.vectors, vectors...)
	for _, r := range records {
		s.known[r.FaultDescription] = struct{}{}
	}
	s.logger.Debug("vector store appended", zap.Int("added", len(records)), zap.Int("entries", len(s.records)))
	return s.saveLocked()
}

// unknownLocked drops entries whose fault description is stored or repeated in the batch.
func (s *Store) unknownLocked(embeddings [][]float32, records []models.Record) ([][]float32, []models.Record) {
	seen := make(map[string]struct{}, len(records))
	keptEmb := embeddings[:0:0]
	keptRec := records[:0:0]
	for j, r := range records {
		if _, ok := s.known[r.FaultDescription]; ok {
			continue
		}
		if _, ok := seen[r.FaultDescription]; ok {
			continue
		}
		seen[r.FaultDescription] = struct{}{}
		keptEmb = append(keptEmb, embeddings[j])
		keptRec = append(keptRec, records[j])
	}
	if skipped := len(records) - len(keptRec); skipped > 0 {
		s.logger.Debug("skipped known fault descriptions", zap.Int("skipped", skipped))
	}
	return keptEmb, keptRec
}

// Search returns up to topK entries matching filter, by cosine similarity descending with
// ties broken by ascending position. An empty store or empty filtered subset yields an
// empty slice and no error.
func (s *Store) Search(ctx context.Context, query []float32, topK int, filter Filter) ([]Match, error) {
	q := utils.Normalized(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 || len(s.records) == 0 {
		return []Match{}, nil
	}
	if len(q) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(q), s.dim)
	}

	if filter.empty() && s.index != nil && s.index.Size() == len(s.records) {
		hits, err := s.index.Search(ctx, q, topK)
		if err == nil {
			out := make([]Match, 0, len(hits))
			for _, h := range hits {
				out = append(out, Match{Position: h.Position, Record: s.records[h.Position], Score: h.Score})
			}
			return out, nil
		}
		s.logger.Warn("native index search failed, using linear scan", zap.Error(err))
	}
	return s.scanLocked(q, topK, filter), nil
}

// scanLocked scores every entry passing filter. Positions are visited in ascending order
// and the sort is stable, which yields the tie order.
func (s *Store) scanLocked(q []float32, topK int, filter Filter) []Match {
	out := make([]Match, 0)
	for i, r := range s.records {
		if !filter.matches(r) {
			continue
		}
		out = append(out, Match{Position: i, Record: r, Score: InnerProduct(q, s.vectors[i])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Load restores state from disk and reports whether prior state existed. A missing,
// unreadable or inconsistent native artifact is rebuilt from the metadata vectors.
func (s *Store) Load(ctx context.Context) (bool, error) {
	data, err := os.ReadFile(s.metaPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read metadata: %w", err)
	}
	var entries []metaEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return false, fmt.Errorf("parse metadata %s: %w", s.metaPath(), err)
	}

	dim := 0
	records := make([]models.Record, len(entries))
	vectors := make([][]float32, len(entries))
	for i, e := range entries {
		records[i] = e.Record
		vectors[i] = e.Embedding
	}
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	if err := checkDimensions(vectors, dim); err != nil {
		return false, fmt.Errorf("metadata %s: %w", s.metaPath(), err)
	}

	index := s.loadIndex(ctx, dim, vectors)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		_ = s.index.Close()
	}
	s.dim = dim
	s.records = records
	s.vectors = vectors
	s.index = index
	s.known = make(map[string]struct{}, len(records))
	for _, r := range records {
		s.known[r.FaultDescription] = struct{}{}
	}
	s.logger.Info("vector store loaded",
		zap.Int("entries", len(records)),
		zap.Int("dimensions", dim),
		zap.Bool("native_index", index != nil),
	)
	return true, nil
}

// loadIndex reads the native artifact, rebuilding it from vectors when it is absent or
// disagrees with the metadata.
func (s *Store) loadIndex(ctx context.Context, dim int, vectors [][]float32) VectorIndex {
	if s.indexType == IndexTypeNone || dim == 0 {
		return nil
	}
	idx, err := NewVectorIndex(s.indexType, dim)
	if err != nil {
		s.logger.Warn("native index unavailable, using linear scan", zap.Error(err))
		return nil
	}
	if err := idx.Load(s.indexPath()); err == nil && idx.Size() == len(vectors) {
		return idx
	} else if err != nil {
		s.logger.Warn("native index unreadable, rebuilding from metadata", zap.String("path", s.indexPath()), zap.Error(err))
	} else {
		s.logger.Warn("native index out of date, rebuilding from metadata",
			zap.Int("index_size", idx.Size()), zap.Int("entries", len(vectors)))
	}
	_ = idx.Close()

	rebuilt, err := s.newIndex(ctx, dim, vectors)
	if err != nil {
		s.logger.Warn("native index rebuild failed, using linear scan", zap.Error(err))
		return nil
	}
	return rebuilt
}

// Save atomically rewrites the metadata and native artifacts.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	entries := make([]metaEntry, len(s.records))
	for i, r := range s.records {
		entries[i] = metaEntry{Record: r, Embedding: s.vectors[i]}
	}
	err := writeFileAtomic(s.metaPath(), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(entries)
	})
	if err != nil {
		s.logger.Error("failed to persist metadata", zap.String("path", s.metaPath()), zap.Error(err))
		return fmt.Errorf("%w: write metadata: %w", ErrPersistenceFailure, err)
	}
	if s.index != nil {
		if err := s.index.Save(s.indexPath()); err != nil {
			s.logger.Error("failed to persist native index", zap.String("path", s.indexPath()), zap.Error(err))
			return fmt.Errorf("%w: write native index: %w", ErrPersistenceFailure, err)
		}
	}
	return nil
}

func (s *Store) newIndex(ctx context.Context, dim int, vectors [][]float32) (VectorIndex, error) {
	if s.indexType == IndexTypeNone || dim == 0 {
		return nil, nil
	}
	idx, err := NewVectorIndex(s.indexType, dim)
	if err != nil {
		return nil, err
	}
	if len(vectors) > 0 {
		if err := idx.Add(ctx, vectors); err != nil {
			_ = idx.Close()
			return nil, err
		}
	}
	return idx, nil
}

func (s *Store) metaPath() string {
	return filepath.Join(s.dir, MetaFileName)
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, artifactName(s.indexType))
}

// Dir returns the directory holding the persisted artifacts.
func (s *Store) Dir() string {
	return s.dir
}

// ArtifactPaths returns the metadata path and, when a native index is configured, its path.
func (s *Store) ArtifactPaths() []string {
	paths := []string{s.metaPath()}
	if s.indexType != IndexTypeNone {
		paths = append(paths, s.indexPath())
	}
	return paths
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Dimensions returns the fixed embedding dimension, or 0 while the store is empty.
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// NativeIndex reports the type of the active native index, or "none" when searches scan.
func (s *Store) NativeIndex() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return string(IndexTypeNone)
	}
	return s.index.Type()
}

// Records returns a copy of the stored records in position order.
func (s *Store) Records() []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Record(nil), s.records...)
}

// Record returns the record at position.
func (s *Store) Record(position int) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if position < 0 || position >= len(s.records) {
		return models.Record{}, false
	}
	return s.records[position], true
}

// HasFaultDescription reports whether a record with exactly this description is stored.
func (s *Store) HasFaultDescription(description string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[description]
	return ok
}

// Components returns the sorted distinct canonical components that pass the label guardrail.
func (s *Store) Components() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range s.records {
		c := models.CanonicalLabel(r.Component)
		if models.IsReasonableComponent(c) {
			seen[c] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Models returns the sorted distinct non-empty models recorded for component.
func (s *Store) Models(component string) []string {
	component = models.CanonicalLabel(component)
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, r := range s.records {
		if component != "" && models.CanonicalLabel(r.Component) != component {
			continue
		}
		if m := models.CanonicalLabel(r.Model); m != "" {
			seen[m] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Close releases the native index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		err := s.index.Close()
		s.index = nil
		return err
	}
	return nil
}

func checkDimensions(vectors [][]float32, dim int) error {
	if len(vectors) > 0 && dim <= 0 {
		return fmt.Errorf("%w: embeddings must have a positive dimension", ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: embedding %d has %d, expected %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

func normalizeAll(embeddings [][]float32) [][]float32 {
	out := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		out[i] = utils.Normalized(e)
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

