package vector

import (
	"context"
	"testing"
)

func TestNewVectorIndex_Memory(t *testing.T) {
	idx, err := NewVectorIndex(IndexTypeMemory, 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(memory): %v", err)
	}
	defer idx.Close()

	err = idx.Add(context.Background(), [][]float32{{1, 0, 0}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
	if idx.Type() != "memory" {
		t.Errorf("Type=%s", idx.Type())
	}
}

func TestNewVectorIndex_Empty(t *testing.T) {
	idx, err := NewVectorIndex("", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(''): %v", err)
	}
	defer idx.Close()

	if idx.Size() != 0 {
		t.Errorf("Size=%d, want 0", idx.Size())
	}
}

func TestNewVectorIndex_None(t *testing.T) {
	if _, err := NewVectorIndex(IndexTypeNone, 3); err == nil {
		t.Error("expected error: none has no native index")
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	idx, err := NewVectorIndex(IndexTypeMemory, 0)
	if err == nil {
		t.Error("expected error for zero dimensions")
	}
	if idx != nil {
		t.Error("expected nil index on error")
	}
}

func TestParseIndexType(t *testing.T) {
	tests := []struct {
		in      string
		want    IndexType
		wantErr bool
	}{
		{"", IndexTypeMemory, false},
		{"memory", IndexTypeMemory, false},
		{"faiss", IndexTypeFAISS, false},
		{"none", IndexTypeNone, false},
		{"hnsw", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIndexType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsFAISSAvailable(t *testing.T) {
	available := IsFAISSAvailable()
	t.Logf("FAISS available: %v", available)
}

func TestNewVectorIndex_FAISS(t *testing.T) {
	idx, err := NewVectorIndex(IndexTypeFAISS, 3)
	if !IsFAISSAvailable() {
		if err == nil {
			t.Error("expected error when FAISS is not compiled in")
		}
		if idx != nil {
			t.Error("expected nil interface when FAISS is not compiled in")
		}
		return
	}
	if err != nil {
		t.Fatalf("NewVectorIndex(faiss): %v", err)
	}
	defer idx.Close()
	if idx.Type() != "faiss" {
		t.Errorf("Type=%s", idx.Type())
	}
}
