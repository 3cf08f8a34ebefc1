package windowing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHannEndpointsAndPeak(t *testing.T) {
	w := NewHann(1024)
	coeffs := w.Coefficients()
	require.Len(t, coeffs, 1024)

	assert.InDelta(t, 0.0, coeffs[0], 1e-12)
	assert.InDelta(t, 0.0, coeffs[1023], 1e-12)

	// Symmetric about the center with a unity peak
	for i := 0; i < 512; i++ {
		assert.InDelta(t, coeffs[i], coeffs[1023-i], 1e-12)
	}
	assert.InDelta(t, 1.0, coeffs[511], 1e-4)
}

func TestBlackmanHarrisShape(t *testing.T) {
	w := NewBlackmanHarris(1024)
	coeffs := w.Coefficients()

	// Endpoint value is a0 - a1 + a2 - a3
	assert.InDelta(t, 0.00006, coeffs[0], 1e-5)
	assert.InDelta(t, coeffs[0], coeffs[1023], 1e-9)

	peak := 0.0
	for _, c := range coeffs {
		if c > peak {
			peak = c
		}
	}
	assert.InDelta(t, 1.0, peak, 1e-4)
}

func TestApplyTruncatesToWindowSize(t *testing.T) {
	w := NewHann(4)
	out := w.Apply([]float64{1, 1, 1, 1, 1, 1})
	assert.Len(t, out, 4)
}

func TestApplyInPlace(t *testing.T) {
	w := NewHann(8)
	signal := []float64{1, 1, 1, 1, 1, 1, 1, 1}
	w.ApplyInPlace(signal)
	assert.Equal(t, w.Coefficients(), signal)
}

func TestWindowMetadata(t *testing.T) {
	assert.Equal(t, "hann", NewHann(16).Name())
	assert.Equal(t, "blackman-harris", NewBlackmanHarris(16).Name())
	assert.Equal(t, 16, NewHann(16).Size())
}
