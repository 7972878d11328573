//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFAISSIndex_AddSearch(t *testing.T) {
	idx, err := NewFAISSIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	if err := idx.Add(ctx, vecs); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}
	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Position != 0 {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestFAISSIndex_SearchEmpty(t *testing.T) {
	idx, _ := NewFAISSIndex(2)
	defer idx.Close()
	results, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestFAISSIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.faiss")
	ctx := context.Background()

	idx, _ := NewFAISSIndex(2)
	_ = idx.Add(ctx, [][]float32{{1, 0}, {0, 1}})
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	idx.Close()

	loaded, _ := NewFAISSIndex(2)
	defer loaded.Close()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("Size=%d", loaded.Size())
	}
	results, _ := loaded.Search(ctx, []float32{0, 1}, 1)
	if len(results) != 1 || results[0].Position != 1 {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestFAISSIndex_LoadMissingFile(t *testing.T) {
	idx, _ := NewFAISSIndex(2)
	defer idx.Close()
	if err := idx.Load(filepath.Join(t.TempDir(), "missing.faiss")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
}

func TestFAISSIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewFAISSIndex(3)
	defer idx.Close()
	if err := idx.Add(context.Background(), [][]float32{{1, 0}}); err == nil {
		t.Error("expected dimension mismatch")
	}
}

func TestFAISSIndex_Type(t *testing.T) {
	idx, _ := NewFAISSIndex(3)
	defer idx.Close()
	if idx.Type() != "faiss" {
		t.Errorf("Type=%s", idx.Type())
	}
}
