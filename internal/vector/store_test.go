package vector

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/rootcause/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(component, model, description string) models.Record {
	return models.Record{
		Component:        component,
		Model:            model,
		FaultDescription: description,
		RootCause:        "cause of " + description,
		CorrectiveAction: "fix " + description,
	}
}

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_BuildNormalizes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	err := s.Build(ctx,
		[][]float32{{3, 4, 0}, {0, 0, 10}, {1, 1, 1}},
		[]models.Record{rec("pump", "", "a"), rec("motor", "", "b"), rec("fan", "", "c")},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 3, s.Dimensions())
	for i, v := range s.vectors {
		assert.InDelta(t, 1.0, L2Norm(v), 1e-5, "entry %d not unit length", i)
	}
}

func TestStore_BuildShapeMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.Build(context.Background(), [][]float32{{1, 0}}, []models.Record{rec("pump", "", "a"), rec("pump", "", "b")})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, 0, s.Len())
}

func TestStore_BuildInconsistentDimension(t *testing.T) {
	s := newTestStore(t)
	err := s.Build(context.Background(), [][]float32{{1, 0}, {1, 0, 0}}, []models.Record{rec("pump", "", "a"), rec("pump", "", "b")})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStore_SearchEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Search(context.Background(), []float32{1, 0}, 5, Filter{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_SearchOrderAndTies(t *testing.T) {
	for _, indexType := range []IndexType{IndexTypeMemory, IndexTypeNone} {
		t.Run(string(indexType), func(t *testing.T) {
			s := newTestStore(t, WithIndexType(indexType))
			ctx := context.Background()
			require.NoError(t, s.Build(ctx,
				[][]float32{{0, 1}, {1, 0}, {1, 1}, {2, 0}, {0, 3}},
				[]models.Record{rec("a", "", "0"), rec("a", "", "1"), rec("a", "", "2"), rec("a", "", "3"), rec("a", "", "4")},
			))

			got, err := s.Search(ctx, []float32{5, 0}, 3, Filter{})
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, 1, got[0].Position)
			assert.Equal(t, 3, got[1].Position)
			assert.Equal(t, 2, got[2].Position)
			for i := 1; i < len(got); i++ {
				assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
			}
			assert.InDelta(t, 1.0, got[0].Score, 1e-6)

			all, err := s.Search(ctx, []float32{1, 0}, 50, Filter{})
			require.NoError(t, err)
			assert.Len(t, all, 5)
		})
	}
}

func TestStore_SearchFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Build(ctx,
		[][]float32{{1, 0}, {1, 0.1}, {0.9, 0.2}, {1, 0}},
		[]models.Record{
			rec("pump", "p100", "pump seal leak"),
			rec("motor", "", "burnt smell"),
			rec("Pump", "p200", "pump cavitation"),
			rec("compressor", "", "surge"),
		},
	))

	got, err := s.Search(ctx, []float32{1, 0}, 10, Filter{Component: "pump"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, m := range got {
		assert.Equal(t, "pump", models.CanonicalLabel(m.Record.Component))
	}

	got, err = s.Search(ctx, []float32{1, 0}, 10, Filter{Component: "PUMPS", Model: "P200"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pump cavitation", got[0].Record.FaultDescription)

	got, err = s.Search(ctx, []float32{1, 0}, 10, Filter{Component: "turbine"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SearchDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Build(ctx, [][]float32{{1, 0}}, []models.Record{rec("pump", "", "a")}))
	_, err := s.Search(ctx, []float32{1, 0, 0}, 1, Filter{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestStore_AddFixesDimension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, [][]float32{{0, 2, 0}}, []models.Record{rec("pump", "", "a")}))
	assert.Equal(t, 3, s.Dimensions())

	err := s.Add(ctx, [][]float32{{1, 0}}, []models.Record{rec("pump", "", "b")})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, s.Len(), "rejected add must not mutate the store")

	err = s.Add(ctx, [][]float32{{1, 0, 0}}, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	require.NoError(t, s.Add(ctx, [][]float32{{1, 0, 0}, {0, 0, 1}}, []models.Record{rec("motor", "", "b"), rec("fan", "", "c")}))
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.HasFaultDescription("b"))
	assert.False(t, s.HasFaultDescription("B"))
}

func TestStore_AddSkipsKnownDescriptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, [][]float32{{1, 0, 0}}, []models.Record{rec("motor", "", "burnt smell")}))

	require.NoError(t, s.Add(ctx,
		[][]float32{{0, 1, 0}, {0, 0, 1}, {0, 1, 1}},
		[]models.Record{rec("motor", "", "burnt smell"), rec("pump", "", "leak"), rec("fan", "", "leak")},
	))
	assert.Equal(t, 2, s.Len())
	assert.ElementsMatch(t, []string{"motor", "pump"}, s.Components())

	// a batch made only of known descriptions is a no-op, even with a mismatched dimension
	require.NoError(t, s.Add(ctx, [][]float32{{1, 0}}, []models.Record{rec("pump", "", "leak")}))
	assert.Equal(t, 2, s.Len())
}

func TestStore_ConcurrentAddKeepsDescriptionsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Add(ctx, [][]float32{{0.7, 0.2, 0.1}}, []models.Record{rec("motor", "", "burnt smell")}))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, s.Len())
}

func TestStore_RestartReproducesSearch(t *testing.T) {
	for _, indexType := range []IndexType{IndexTypeMemory, IndexTypeNone} {
		t.Run(string(indexType), func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()
			s, err := NewStore(dir, WithIndexType(indexType))
			require.NoError(t, err)
			require.NoError(t, s.Build(ctx,
				[][]float32{{0.1, 0.9, 0.3}, {0.7, 0.2, 0.1}},
				[]models.Record{rec("pump", "", "loud vibration"), rec("motor", "m1", "burnt smell")},
			))
			require.NoError(t, s.Add(ctx,
				[][]float32{{0.5, 0.5, 0.5}, {0.7, 0.2, 0.1}},
				[]models.Record{rec("fan", "", "rattle"), rec("motor", "", "burning odour")},
			))
			query := []float32{0.6, 0.3, 0.2}
			before, err := s.Search(ctx, query, 4, Filter{})
			require.NoError(t, err)

			restarted, err := NewStore(dir, WithIndexType(indexType))
			require.NoError(t, err)
			existed, err := restarted.Load(ctx)
			require.NoError(t, err)
			assert.True(t, existed)
			after, err := restarted.Search(ctx, query, 4, Filter{})
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, []string{"fan", "motor", "pump"}, restarted.Components())
			assert.Equal(t, []string{"m1"}, restarted.Models("motors"))
		})
	}
}

func TestStore_LoadWithoutPriorState(t *testing.T) {
	s := newTestStore(t)
	existed, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestStore_LoadFallsBackWhenNativeArtifactBad(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Build(ctx,
		[][]float32{{1, 0}, {0, 1}},
		[]models.Record{rec("pump", "", "a"), rec("motor", "", "b")},
	))

	cases := []struct {
		name   string
		damage func(t *testing.T)
	}{
		{"missing", func(t *testing.T) { require.NoError(t, os.Remove(filepath.Join(dir, "index.bin"))) }},
		{"corrupt", func(t *testing.T) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "index.bin"), []byte("junk"), 0644))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.damage(t)
			restarted, err := NewStore(dir)
			require.NoError(t, err)
			existed, err := restarted.Load(ctx)
			require.NoError(t, err)
			assert.True(t, existed)
			got, err := restarted.Search(ctx, []float32{0, 1}, 1, Filter{})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "b", got[0].Record.FaultDescription)
			require.NoError(t, restarted.Save())
		})
	}
}

func TestStore_MetadataIsReadableJSON(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Build(context.Background(), [][]float32{{2, 0}}, []models.Record{rec("pump", "x1", "seal leak")}))

	data, err := os.ReadFile(filepath.Join(dir, MetaFileName))
	require.NoError(t, err)
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "seal leak", entries[0]["fault_description"])
	assert.Equal(t, "x1", entries[0]["model"])
	assert.Len(t, entries[0]["embedding"], 2)

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".*.tmp-*"))
	assert.Empty(t, leftovers, "temporary files must be renamed or removed")
}

func TestStore_PersistenceFailureKeepsMemoryState(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	s, err := NewStore(filepath.Join(blocker, "indices"))
	require.NoError(t, err)

	err = s.Add(context.Background(), [][]float32{{1, 0}}, []models.Record{rec("pump", "", "a")})
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.Equal(t, 1, s.Len())
	got, err := s.Search(context.Background(), []float32{1, 0}, 1, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_ConcurrentAddAndSearch(t *testing.T) {
	s := newTestStore(t, WithIndexType(IndexTypeNone))
	ctx := context.Background()
	require.NoError(t, s.Build(ctx, [][]float32{{1, 0}}, []models.Record{rec("pump", "", "seed")}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			angle := float64(i) / 8
			_ = s.Add(ctx, [][]float32{{float32(math.Cos(angle)), float32(math.Sin(angle))}},
				[]models.Record{rec("pump", "", "fault "+string(rune('a'+i)))})
		}(i)
		go func() {
			defer wg.Done()
			got, err := s.Search(ctx, []float32{1, 0}, 100, Filter{})
			assert.NoError(t, err)
			for _, m := range got {
				assert.NotEmpty(t, m.Record.FaultDescription)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 9, s.Len())
}
