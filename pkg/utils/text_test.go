package utils

import (
	"math"
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if got := Truncate("überhitzt", 3); got != "übe..." {
		t.Errorf("multibyte: got %s", got)
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestFold(t *testing.T) {
	if got := Fold("  Burnt SMELL "); got != "burnt smell" {
		t.Errorf("Fold = %q", got)
	}
}

func TestNormalizeL2(t *testing.T) {
	v := []float32{3, 4}
	NormalizeL2(v)
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeL2 = %v", v)
	}

	zero := []float32{0, 0}
	NormalizeL2(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed: %v", zero)
	}

	src := []float32{0, 2}
	out := Normalized(src)
	if src[1] != 2 {
		t.Error("Normalized mutated its input")
	}
	if out[1] != 1 {
		t.Errorf("Normalized = %v", out)
	}
}
