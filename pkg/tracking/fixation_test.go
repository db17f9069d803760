package tracking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/protocol"
)

func TestFixationDetector_FirstCall(t *testing.T) {
	d := NewFixationDetector(DefaultConfig())

	got, err := d.Detect(0, 12, 34)
	require.NoError(t, err)
	assert.Equal(t, protocol.Point2d{X: 12, Y: 34}, got)
	assert.Equal(t, 0, d.Points())
}

func TestFixationDetector_ConvergesToMean(t *testing.T) {
	d := NewFixationDetector(DefaultConfig())

	// Jitter within a tiny circle sampled at 10 Hz never reaches 3 units/s
	points := []protocol.Point2d{
		{X: 10.00, Y: 10.00},
		{X: 10.02, Y: 9.99},
		{X: 9.98, Y: 10.01},
		{X: 10.01, Y: 10.02},
		{X: 9.99, Y: 9.98},
		{X: 10.03, Y: 10.00},
	}

	var got protocol.Point2d
	for i, p := range points {
		var err error
		got, err = d.Detect(float64(i)*0.1, p.X, p.Y)
		require.NoError(t, err)
	}

	// The starting point opens the fixation; the mean covers the points after it
	var sumX, sumY float64
	for _, p := range points[1:] {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points) - 1)
	assert.InDelta(t, sumX/n, got.X, 1e-9)
	assert.InDelta(t, sumY/n, got.Y, 1e-9)
	assert.Equal(t, len(points)-1, d.Points())
}

func TestFixationDetector_SaccadeResetsExactly(t *testing.T) {
	d := NewFixationDetector(DefaultConfig())

	for i := 0; i < 20; i++ {
		_, err := d.Detect(float64(i)*0.1, 10+float64(i%2)*0.01, 10)
		require.NoError(t, err)
	}
	require.Greater(t, d.Points(), 0)

	got, err := d.Detect(2.0, 50, 60)
	require.NoError(t, err)
	assert.Equal(t, protocol.Point2d{X: 50, Y: 60}, got)
	assert.Equal(t, 0, d.Points())
}

func TestFixationDetector_ThresholdIsInclusive(t *testing.T) {
	d := NewFixationDetector(Config{FixationThreshold: 3})
	_, _ = d.Detect(0, 0, 0)

	// Exactly 3 units/s: 1.5 units in 0.5 s
	got, err := d.Detect(0.5, 1.5, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.Point2d{X: 1.5, Y: 0}, got)
	assert.Equal(t, 0, d.Points())
}

func TestFixationDetector_RejectsNonIncreasingTimestamp(t *testing.T) {
	d := NewFixationDetector(DefaultConfig())
	_, _ = d.Detect(1, 5, 5)
	_, _ = d.Detect(1.1, 5.01, 5)

	got, err := d.Detect(1.1, 100, 100)
	assert.True(t, errors.Is(err, ErrNonIncreasingTimestamp))
	assert.Equal(t, protocol.Point2d{X: 5.01, Y: 5}, got)
	assert.Equal(t, 1, d.Points())
}

func TestFixationDetector_LongFixationStaysBounded(t *testing.T) {
	d := NewFixationDetector(DefaultConfig())

	// An hour at 120 Hz without a saccade
	const n = 120 * 3600
	var got protocol.Point2d
	for i := 0; i < n; i++ {
		got, _ = d.Detect(float64(i)/120, 7, 8)
	}
	assert.InDelta(t, 7, got.X, 1e-9)
	assert.InDelta(t, 8, got.Y, 1e-9)
	assert.Equal(t, n-1, d.Points())
}

func TestFixationDetector_Reset(t *testing.T) {
	d := NewFixationDetector(DefaultConfig())
	_, _ = d.Detect(5, 1, 1)
	d.Reset()

	got, err := d.Detect(0, 9, 9)
	require.NoError(t, err)
	assert.Equal(t, protocol.Point2d{X: 9, Y: 9}, got)
}
