package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParabolicPeakOffsetSymmetric(t *testing.T) {
	// Symmetric neighbors, the peak is exactly on the sample
	data := []float64{0, 1, 0}
	assert.InDelta(t, 0.0, ParabolicPeakOffset(data, 1), 1e-12)
}

func TestParabolicPeakOffsetSkewed(t *testing.T) {
	// Parabola y = 1 - (x - 0.25)^2 sampled at -1, 0, 1
	data := []float64{1 - 1.5625, 1 - 0.0625, 1 - 0.5625}
	assert.InDelta(t, 0.25, ParabolicPeakOffset(data, 1), 1e-9)
	assert.InDelta(t, 1.25, ParabolicPeakBin(data, 1), 1e-9)
}

func TestParabolicPeakOffsetEdges(t *testing.T) {
	data := []float64{3, 2, 1}
	assert.Equal(t, 0.0, ParabolicPeakOffset(data, 0))
	assert.Equal(t, 0.0, ParabolicPeakOffset(data, 2))

	// Flat data gives a degenerate fit
	flat := []float64{1, 1, 1}
	assert.Equal(t, 0.0, ParabolicPeakOffset(flat, 1))
}

func TestLinearInterpolate(t *testing.T) {
	data := []float64{0, 10, 20}
	assert.InDelta(t, 5.0, LinearInterpolate(data, 0.5), 1e-12)
	assert.InDelta(t, 10.0, LinearInterpolate(data, 1.0), 1e-12)
	assert.InDelta(t, 17.5, LinearInterpolate(data, 1.75), 1e-12)
	assert.Equal(t, 0.0, LinearInterpolate(data, -0.5))
	assert.Equal(t, 0.0, LinearInterpolate(data, 2.5))
}

func TestMixToMono(t *testing.T) {
	dst := make([]float64, 2)
	n := MixToMono(dst, []float64{1, 3, 2, 4}, 2)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{2, 3}, dst)

	// Mono input passes through
	n = MixToMono(dst, []float64{5, 6}, 1)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{5, 6}, dst)
}
