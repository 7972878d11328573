package utils

import "github.com/viant/vec/search"

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is zero, the slice is unchanged.
func NormalizeL2(x []float32) {
	mag := search.Float32s(x).Magnitude()
	if mag == 0 {
		return
	}
	inv := 1 / mag
	for i := range x {
		x[i] *= inv
	}
}

// Normalized returns a unit-length copy of x, leaving x untouched.
func Normalized(x []float32) []float32 {
	out := make([]float32, len(x))
	copy(out, x)
	NormalizeL2(out)
	return out
}
