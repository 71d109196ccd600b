// Package vecmath provides the vector arithmetic used by semantic lookups.
package vecmath

import (
	"math"

	cacheerrors "github.com/blueberrycongee/semcache/pkg/errors"
)

// Dot returns the dot product of a and b.
// It returns a dimension mismatch error if the lengths differ.
func Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, cacheerrors.NewDimensionMismatchError(len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// Norm returns the Euclidean length of v. Components are scaled by the
// largest magnitude first, so very large or very small vectors neither
// overflow nor flush to zero.
func Norm(v []float64) float64 {
	scale := maxAbs(v)
	if scale == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		x /= scale
		sum += x * x
	}
	return scale * math.Sqrt(sum)
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		if ax := math.Abs(x); ax > m {
			m = ax
		}
	}
	return m
}

// CosineSimilarity returns dot(a,b) / (|a|*|b|), clamped to [-1, 1].
//
// Vectors of different length yield ErrDimensionMismatch; a zero-norm
// vector (including an empty one) yields ErrDegenerateVector.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, cacheerrors.NewDimensionMismatchError(len(a), len(b))
	}

	// Cosine is scale invariant; dividing by the largest magnitude keeps
	// every accumulated term within [0, 1].
	sa, sb := maxAbs(a), maxAbs(b)
	if sa == 0 || sb == 0 {
		return 0, cacheerrors.NewDegenerateVectorError()
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := a[i]/sa, b[i]/sb
		dot += x * y
		normA += x * x
		normB += y * y
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case sim > 1:
		return 1, nil
	case sim < -1:
		return -1, nil
	}
	return sim, nil
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float64) ([]float64, error) {
	n := Norm(v)
	if n == 0 {
		return nil, cacheerrors.NewDegenerateVectorError()
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out, nil
}

// Clone returns a copy of v. A nil input yields nil.
func Clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
