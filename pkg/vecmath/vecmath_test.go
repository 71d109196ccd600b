package vecmath

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cacheerrors "github.com/blueberrycongee/semcache/pkg/errors"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"scaled", []float64{1, 2, 3}, []float64{2, 4, 6}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"45 degrees", []float64{1, 0}, []float64{1, 1}, 1 / math.Sqrt2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestCosineSimilarity_Errors(t *testing.T) {
	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3})
		require.Error(t, err)
		assert.True(t, errors.Is(err, cacheerrors.ErrDimensionMismatch))
	})

	t.Run("zero vector", func(t *testing.T) {
		_, err := CosineSimilarity([]float64{0, 0}, []float64{1, 2})
		require.Error(t, err)
		assert.True(t, errors.Is(err, cacheerrors.ErrDegenerateVector))
	})

	t.Run("empty vectors", func(t *testing.T) {
		_, err := CosineSimilarity(nil, []float64{})
		assert.True(t, errors.Is(err, cacheerrors.ErrDegenerateVector))
	})
}

func TestCosineSimilarity_ExtremeMagnitudes(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"huge identical", []float64{1e200, 1e200}, []float64{1e200, 1e200}, 1},
		{"tiny identical", []float64{1e-170, 1e-170}, []float64{1e-170, 1e-170}, 1},
		{"huge against unit", []float64{1e300, 0}, []float64{1, 1}, 1 / math.Sqrt2},
		{"tiny against huge", []float64{1e-300, 1e-300}, []float64{1e300, -1e300}, 0},
		{"subnormal", []float64{5e-324, 0}, []float64{1, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestNorm_ExtremeMagnitudes(t *testing.T) {
	assert.InDelta(t, 1e200*math.Sqrt2, Norm([]float64{1e200, 1e200}), 1e188)
	assert.InDelta(t, 1e-170*math.Sqrt2, Norm([]float64{1e-170, 1e-170}), 1e-182)
	assert.Zero(t, Norm(nil))

	v, err := Normalize([]float64{3e300, 4e300})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, v, 1e-12)
}

func TestNormalize(t *testing.T) {
	v, err := Normalize([]float64{3, 4})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, v, 1e-12)
	assert.InDelta(t, 1.0, Norm(v), 1e-12)

	_, err = Normalize([]float64{0, 0, 0})
	assert.True(t, errors.Is(err, cacheerrors.ErrDegenerateVector))
}

func TestDot(t *testing.T) {
	d, err := Dot([]float64{1, 2, 3}, []float64{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 32.0, d)

	_, err = Dot([]float64{1}, []float64{1, 2})
	assert.True(t, errors.Is(err, cacheerrors.ErrDimensionMismatch))
}

func TestClone(t *testing.T) {
	assert.Nil(t, Clone(nil))

	src := []float64{1, 2}
	dst := Clone(src)
	dst[0] = 99
	assert.Equal(t, 1.0, src[0])
}

func TestProperty_CosineSimilarity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	vec := gen.SliceOfN(8, gen.Float64Range(-10, 10)).SuchThat(func(v []float64) bool {
		return Norm(v) > 1e-6
	})

	properties.Property("bounded in [-1, 1]", prop.ForAll(
		func(a, b []float64) bool {
			sim, err := CosineSimilarity(a, b)
			return err == nil && sim >= -1 && sim <= 1
		},
		vec, vec,
	))

	properties.Property("symmetric", prop.ForAll(
		func(a, b []float64) bool {
			ab, err1 := CosineSimilarity(a, b)
			ba, err2 := CosineSimilarity(b, a)
			return err1 == nil && err2 == nil && math.Abs(ab-ba) < 1e-12
		},
		vec, vec,
	))

	properties.Property("self similarity is one", prop.ForAll(
		func(a []float64) bool {
			sim, err := CosineSimilarity(a, a)
			return err == nil && math.Abs(sim-1) < 1e-9
		},
		vec,
	))

	properties.Property("invariant under positive scaling", prop.ForAll(
		func(a, b []float64, k float64) bool {
			scaled := make([]float64, len(a))
			for i := range a {
				scaled[i] = a[i] * k
			}
			s1, err1 := CosineSimilarity(a, b)
			s2, err2 := CosineSimilarity(scaled, b)
			return err1 == nil && err2 == nil && math.Abs(s1-s2) < 1e-9
		},
		vec, vec, gen.Float64Range(0.1, 100),
	))

	properties.TestingRun(t)
}
