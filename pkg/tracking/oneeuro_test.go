package tracking

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneEuroFilter_FirstCallReturnsInput(t *testing.T) {
	f := NewOneEuroFilter(DefaultConfig())

	got, err := f.Filter(5.0, 123.4)
	require.NoError(t, err)
	assert.Equal(t, 123.4, got)

	v, ok := f.Value()
	assert.True(t, ok)
	assert.Equal(t, 123.4, v)
}

func TestOneEuroFilter_ZeroTimestampIsNotUnset(t *testing.T) {
	f := NewOneEuroFilter(DefaultConfig())

	_, err := f.Filter(0, 100)
	require.NoError(t, err)

	// A seed at t=0 must not be mistaken for an unseeded filter
	got, err := f.Filter(0.01, 200)
	require.NoError(t, err)
	assert.NotEqual(t, 200.0, got)
	assert.Greater(t, got, 100.0)
}

func TestOneEuroFilter_KnownValue(t *testing.T) {
	f := NewOneEuroFilter(DefaultConfig())
	_, _ = f.Filter(0, 100)

	got, err := f.Filter(0.01, 101)
	require.NoError(t, err)

	// beta=0: a = r/(r+1) with r = 2*pi*1*0.01
	r := 2 * math.Pi * 0.01
	a := r / (r + 1)
	assert.InDelta(t, 100+a, got, 1e-12)
}

func TestOneEuroFilter_OutputIsConvexCombination(t *testing.T) {
	configs := []struct {
		name string
		cfg  Config
	}{
		{"Default", DefaultConfig()},
		{"Responsive", ResponsiveConfig()},
		{"Smooth", SmoothConfig()},
	}

	for _, tc := range configs {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			f := NewOneEuroFilter(tc.cfg)

			ts := 0.0
			prev, err := f.Filter(ts, rng.Float64()*1000)
			require.NoError(t, err)

			for i := 0; i < 2000; i++ {
				ts += 0.001 + rng.Float64()*0.02
				x := rng.Float64() * 1000

				got, err := f.Filter(ts, x)
				require.NoError(t, err)

				lo, hi := math.Min(prev, x), math.Max(prev, x)
				if got < lo-1e-9 || got > hi+1e-9 {
					t.Fatalf("step %d: output %v outside [%v, %v]", i, got, lo, hi)
				}
				prev = got
			}
		})
	}
}

func TestOneEuroFilter_RejectsNonIncreasingTimestamp(t *testing.T) {
	f := NewOneEuroFilter(DefaultConfig())
	_, _ = f.Filter(1.0, 10)
	first, err := f.Filter(1.1, 20)
	require.NoError(t, err)

	for _, ts := range []float64{1.1, 1.05} {
		got, err := f.Filter(ts, 1000)
		assert.True(t, errors.Is(err, ErrNonIncreasingTimestamp))
		assert.Equal(t, first, got)
		assert.False(t, math.IsNaN(got))
		assert.False(t, math.IsInf(got, 0))
	}

	// State is untouched: compare against a filter that never saw the bad samples
	ref := NewOneEuroFilter(DefaultConfig())
	_, _ = ref.Filter(1.0, 10)
	_, _ = ref.Filter(1.1, 20)

	want, _ := ref.Filter(1.2, 30)
	got, err := f.Filter(1.2, 30)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOneEuroFilter_ConvergesOnConstantSignal(t *testing.T) {
	f := NewOneEuroFilter(DefaultConfig())
	_, _ = f.Filter(0, 0)

	var got float64
	for i := 1; i <= 1000; i++ {
		got, _ = f.Filter(float64(i)*0.01, 50)
	}
	assert.InDelta(t, 50, got, 1e-6)
}

func TestOneEuroFilter_Reset(t *testing.T) {
	f := NewOneEuroFilter(DefaultConfig())
	_, _ = f.Filter(0, 10)
	_, _ = f.Filter(0.01, 20)

	f.Reset()
	_, ok := f.Value()
	assert.False(t, ok)

	// After reset an earlier timestamp is accepted as a new seed
	got, err := f.Filter(0, 99)
	require.NoError(t, err)
	assert.Equal(t, 99.0, got)
}

func TestSmoothingFactor(t *testing.T) {
	assert.Equal(t, 0.0, smoothingFactor(0, 1))

	a := smoothingFactor(0.01, 1)
	assert.Greater(t, a, 0.0)
	assert.Less(t, a, 1.0)

	// Higher cutoff trusts new data more
	assert.Greater(t, smoothingFactor(0.01, 100), a)
}
