package mfcc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 44100.0

func sineBlock(freq float64, numSamples int) []float64 {
	out := make([]float64, numSamples)
	for i := range out {
		out[i] = 0.5 * math.Sin(2.0*math.Pi*freq*float64(i)/testSampleRate)
	}
	return out
}

func TestAnalyzeSine(t *testing.T) {
	a := NewAnalyzer(testSampleRate)

	result := a.Analyze(sineBlock(1000.0, 2048))
	require.True(t, result.IsValid)
	assert.Greater(t, result.TotalEnergy, 0.0)

	for _, c := range result.Coefficients {
		assert.False(t, math.IsNaN(c))
		assert.False(t, math.IsInf(c, 0))
	}
}

func TestMelEnergyConcentration(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	result := a.Analyze(sineBlock(1000.0, 2048))
	require.True(t, result.IsValid)

	maxFilter := 0
	for m, e := range result.MelEnergies {
		if e > result.MelEnergies[maxFilter] {
			maxFilter = m
		}
	}

	// A 1 kHz tone lands in the lower-middle of the 20 Hz - 8 kHz bank
	assert.GreaterOrEqual(t, maxFilter, 6)
	assert.LessOrEqual(t, maxFilter, 11)
}

func TestSilenceIsInvalid(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	result := a.Analyze(make([]float64, 2048))

	assert.False(t, result.IsValid)
	assert.Equal(t, 0.0, result.TotalEnergy)
}

func TestStreamedWindowMatchesDirect(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	block := sineBlock(500.0, 2048)

	for _, s := range block {
		a.PushSample(s)
	}
	streamed := a.Latest()

	b := NewAnalyzer(testSampleRate)
	direct := b.Analyze(block)

	require.True(t, streamed.IsValid)
	assert.InDelta(t, direct.TotalEnergy, streamed.TotalEnergy, 1e-12)
	for i := range direct.Coefficients {
		assert.InDelta(t, direct.Coefficients[i], streamed.Coefficients[i], 1e-12)
	}
}

func TestFrequencyBoundsRegenerateBank(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	base := a.Analyze(sineBlock(4000.0, 2048))
	require.True(t, base.IsValid)

	// Cutting the band below the tone moves its energy out of the bank
	a.SetMaxFrequency(2000.0)
	narrowed := a.Analyze(sineBlock(4000.0, 2048))
	require.True(t, narrowed.IsValid)

	sum := func(e [NumMelFilters]float64) float64 {
		total := 0.0
		for _, v := range e {
			total += v
		}
		return total
	}
	assert.Less(t, sum(narrowed.MelEnergies), sum(base.MelEnergies)*0.01)
}

func TestResetClearsResult(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	a.Analyze(sineBlock(1000.0, 2048))
	require.True(t, a.Latest().IsValid)

	a.Reset()
	assert.False(t, a.Latest().IsValid)
}

func TestMelScaleConversions(t *testing.T) {
	assert.InDelta(t, 0.0, HzToMel(0), 1e-9)
	assert.InDelta(t, 1000.2, HzToMel(1000.0), 0.5)
	assert.InDelta(t, 1000.0, MelToHz(HzToMel(1000.0)), 1e-6)
	assert.InDelta(t, 8000.0, MelToHz(HzToMel(8000.0)), 1e-6)

	// Mel scale is monotonic
	assert.Greater(t, HzToMel(2000.0), HzToMel(1000.0))
}

func TestPreEmphasisShiftsSpectrum(t *testing.T) {
	plain := NewAnalyzer(testSampleRate)
	emphasized := NewAnalyzer(testSampleRate)
	emphasized.SetPreEmphasis(0.97)

	block := sineBlock(200.0, 2048)
	base := plain.Analyze(block)
	boosted := emphasized.Analyze(block)
	require.True(t, base.IsValid)
	require.True(t, boosted.IsValid)

	// Pre-emphasis attenuates a low tone heavily
	assert.Less(t, boosted.TotalEnergy, base.TotalEnergy*0.1)

	// Out-of-range coefficients disable the stage again
	emphasized.SetPreEmphasis(0.0)
	restored := emphasized.Analyze(block)
	assert.InDelta(t, base.TotalEnergy, restored.TotalEnergy, base.TotalEnergy*1e-9)
}
