package thd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 44100.0

// Bin 186 of the 8192-point FFT: a tone placed there is exactly
// bin-aligned, so measured ratios carry no scalloping error
var toneFreq = 186.0 * testSampleRate / 8192.0

func pushTone(a *Analyzer, secondHarmonicRatio float64) {
	for i := 0; i < 8192; i++ {
		phase := 2.0 * math.Pi * toneFreq * float64(i) / testSampleRate
		a.PushSample(0.5*math.Sin(phase) + 0.5*secondHarmonicRatio*math.Sin(2.0*phase))
	}
}

func TestCleanSine(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	pushTone(a, 0)

	result := a.Latest()
	require.True(t, result.IsValid)

	assert.InDelta(t, toneFreq, result.FundamentalFrequency, 0.5)
	assert.Less(t, result.THD, 0.01)
	assert.Greater(t, result.SNR, 60.0)
	assert.Greater(t, result.SINAD, 60.0)
}

func TestOnePercentSecondHarmonic(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	pushTone(a, 0.01)

	result := a.Latest()
	require.True(t, result.IsValid)

	assert.InDelta(t, 1.0, result.THD, 0.1)
	assert.InDelta(t, 1.0, result.THDPlusNoise, 0.2)

	// Distortion dominates: SINAD ~= 20*log10(1/0.01) = 40 dB
	assert.InDelta(t, 40.0, result.SINAD, 1.5)
	assert.Greater(t, result.SNR, result.SINAD)

	require.Len(t, result.HarmonicLevels, 5)
	// Second harmonic sits 40 dB below the fundamental
	assert.InDelta(t, -40.0, result.HarmonicLevels[1]-result.HarmonicLevels[0], 1.0)
}

func TestExpectedFundamentalGuidesSearch(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	a.SetExpectedFundamental(toneFreq)
	assert.Equal(t, toneFreq, a.ExpectedFundamental())

	pushTone(a, 0)
	result := a.Latest()
	require.True(t, result.IsValid)
	assert.InDelta(t, toneFreq, result.FundamentalFrequency, 0.5)
}

func TestHarmonicCountClamping(t *testing.T) {
	a := NewAnalyzer(testSampleRate)

	a.SetNumHarmonics(1)
	assert.Equal(t, 2, a.NumHarmonics())

	a.SetNumHarmonics(50)
	assert.Equal(t, 10, a.NumHarmonics())

	a.SetNumHarmonics(7)
	assert.Equal(t, 7, a.NumHarmonics())
}

func TestSilenceIsInvalid(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	for it := 0; it < 8192; it++ {
		a.PushSample(0)
	}

	result := a.Latest()
	assert.False(t, result.IsValid)
}

func TestResetClearsResult(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	pushTone(a, 0)
	require.True(t, a.Latest().IsValid)

	a.Reset()
	assert.False(t, a.Latest().IsValid)
}

func TestStereoBlockMixesToMono(t *testing.T) {
	a := NewAnalyzer(testSampleRate)

	interleaved := make([]float64, 8192*2)
	for i := 0; i < 8192; i++ {
		s := 0.5 * math.Sin(2.0*math.Pi*toneFreq*float64(i)/testSampleRate)
		interleaved[i*2] = s
		interleaved[i*2+1] = s
	}
	a.ProcessBlock(interleaved, 2)

	result := a.Latest()
	require.True(t, result.IsValid)
	assert.InDelta(t, toneFreq, result.FundamentalFrequency, 0.5)
}
