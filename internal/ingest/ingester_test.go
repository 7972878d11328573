package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/rootcause/internal/embedding"
	"github.com/hyperjump/rootcause/internal/keyword"
	"github.com/hyperjump/rootcause/internal/models"
	"github.com/hyperjump/rootcause/internal/search"
	"github.com/hyperjump/rootcause/internal/storage"
	"github.com/hyperjump/rootcause/internal/vector"
)

type fixture struct {
	dir      string
	store    *vector.Store
	catalog  *storage.SQLiteCatalog
	keywords *keyword.BleveIndex
	ingester *Ingester
}

func newFixture(t *testing.T, emb embedding.Embedder) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := vector.NewStore(filepath.Join(dir, "index"))
	require.NoError(t, err)
	cat, err := storage.NewSQLiteCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
		_ = cat.Close()
		_ = kw.Close()
	})
	if emb == nil {
		emb = embedding.NewHashingEmbedder(64)
	}
	return &fixture{
		dir:      dir,
		store:    store,
		catalog:  cat,
		keywords: kw,
		ingester: NewIngester(emb, store, WithCatalog(cat), WithKeywordIndex(kw)),
	}
}

func recs(descs ...string) []models.Record {
	out := make([]models.Record, len(descs))
	for i, d := range descs {
		out[i] = models.Record{Component: "motor", FaultDescription: d, RootCause: "cause " + d, CorrectiveAction: "fix " + d}
	}
	return out
}

func TestIngester_IngestDeduplicates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.ingester.Ingest(ctx, recs("burnt smell", "vibration", "burnt smell"), "a.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"motor"}, res.Components)

	res, err = f.ingester.Ingest(ctx, recs("burnt smell"), "b.csv")
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, f.store.Len())

	n, err := f.catalog.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	docs, err := f.keywords.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 2, docs)
}

func TestIngester_IngestCountsInvalid(t *testing.T) {
	f := newFixture(t, nil)
	in := append(recs("ok"), models.Record{Component: "a, b, c", FaultDescription: "bad"})
	res, err := f.ingester.Ingest(context.Background(), in, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Invalid)
}

type brokenEmbedder struct {
	*embedding.HashingEmbedder
}

func (brokenEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("quota exceeded")
}

func TestIngester_EmbeddingFailureLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t, brokenEmbedder{embedding.NewHashingEmbedder(64)})
	_, err := f.ingester.Ingest(context.Background(), recs("a"), "")
	assert.ErrorIs(t, err, search.ErrEmbeddingUnavailable)
	assert.Zero(t, f.store.Len())
	n, _ := f.catalog.Count(context.Background())
	assert.Zero(t, n)
}

type slowEmbedder struct {
	*embedding.HashingEmbedder
}

func (s slowEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	time.Sleep(100 * time.Millisecond)
	return s.HashingEmbedder.EmbedBatch(ctx, texts)
}

func TestIngester_ConcurrentIngestStoresOnce(t *testing.T) {
	f := newFixture(t, slowEmbedder{embedding.NewHashingEmbedder(64)})

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for n := range results {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = f.ingester.Ingest(context.Background(), recs("burnt smell"), "")
		}(n)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, 1, results[0].Added+results[1].Added)
	assert.Equal(t, 1, results[0].Skipped+results[1].Skipped)
	n, err := f.catalog.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIngester_Rebuild(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.ingester.Ingest(ctx, recs("a", "b", "c"), "")
	require.NoError(t, err)

	res, err := f.ingester.Rebuild(ctx, recs("x", "y"), "rebuild")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 2, f.store.Len())
	assert.False(t, f.store.HasFaultDescription("a"))

	docs, _ := f.keywords.DocCount()
	assert.EqualValues(t, 2, docs)
}

func writeSeed(t *testing.T, path string, descs ...string) {
	t.Helper()
	body := "component,fault_description,root_cause,corrective_action\n"
	for _, d := range descs {
		body += "motor," + d + ",cause,fix\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestIngester_Bootstrap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	seed := filepath.Join(f.dir, "faults.csv")
	writeSeed(t, seed, "a", "b")

	res, err := f.ingester.Bootstrap(ctx, seed, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)

	// A restarted process loads the saved store and appends only the new seed rows.
	writeSeed(t, seed, "a", "b", "c")
	store2, err := vector.NewStore(f.store.Dir())
	require.NoError(t, err)
	defer store2.Close()
	ing2 := NewIngester(embedding.NewHashingEmbedder(64), store2, WithCatalog(f.catalog))
	res, err = ing2.Bootstrap(ctx, seed, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 3, store2.Len())

	res, err = ing2.Bootstrap(ctx, seed, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, 3, store2.Len())
}

func TestIngester_BootstrapFromCatalog(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.catalog.Insert(ctx, recs("from catalog"), "earlier")
	require.NoError(t, err)

	res, err := f.ingester.Bootstrap(ctx, filepath.Join(f.dir, "absent.csv"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.True(t, f.store.HasFaultDescription("from catalog"))
}

func TestIngester_BootstrapReconcilesKeywordIndex(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.ingester.Ingest(ctx, recs("a", "b"), "")
	require.NoError(t, err)
	require.NoError(t, f.keywords.Reset(ctx, nil))

	_, err = f.ingester.Bootstrap(ctx, "", false)
	require.NoError(t, err)
	docs, _ := f.keywords.DocCount()
	assert.EqualValues(t, 2, docs)
}
