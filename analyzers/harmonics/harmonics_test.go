package harmonics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-analyze/algorithms/common"
)

const testSampleRate = 44100.0

// binFreq is bin 40 of the 4096-point FFT; a tone placed there suffers
// no scalloping, so amplitudes read back exactly
var binFreq = 40.0 * testSampleRate / 4096.0

func TestAnalyzeSyntheticSpectrum(t *testing.T) {
	a := NewAnalyzer(testSampleRate)

	mags := make([]float64, 2048)
	mags[40] = 1.0   // fundamental
	mags[80] = 0.1   // 2nd harmonic, -20 dB
	mags[120] = 0.05 // 3rd harmonic, -26 dB

	result := a.Analyze(mags, 0)
	require.True(t, result.IsValid)

	assert.InDelta(t, binFreq, result.FundamentalFrequency, 0.5)
	assert.InDelta(t, 0.0, result.FundamentalAmplitudeDb, 0.01)
	assert.Equal(t, 3, result.NumHarmonicsDetected)

	// THD = sqrt(0.1^2 + 0.05^2) / 1.0 * 100
	assert.InDelta(t, 11.18, result.THD, 0.05)

	// Bin-aligned harmonics have no deviation from the ideal series
	assert.InDelta(t, 0.0, result.Inharmonicity, 1e-6)

	require.Len(t, result.Harmonics, DefaultMaxHarmonics)
	assert.True(t, result.Harmonics[0].Detected)
	assert.True(t, result.Harmonics[2].Detected)
	assert.False(t, result.Harmonics[3].Detected)
	assert.Equal(t, common.SilenceFloorDb, result.Harmonics[3].AmplitudeDb)
}

func TestAnalyzeWithFundamentalHint(t *testing.T) {
	a := NewAnalyzer(testSampleRate)

	mags := make([]float64, 2048)
	mags[40] = 0.3
	// A stronger unrelated peak outside the hint window
	mags[300] = 1.0

	result := a.Analyze(mags, binFreq)
	require.True(t, result.IsValid)
	assert.InDelta(t, binFreq, result.FundamentalFrequency, 0.5)
}

func TestStreamedSineWithSecondHarmonic(t *testing.T) {
	a := NewAnalyzer(testSampleRate)

	for i := 0; i < 4096; i++ {
		phase := 2.0 * math.Pi * binFreq * float64(i) / testSampleRate
		a.PushSample(0.5*math.Sin(phase) + 0.05*math.Sin(2.0*phase))
	}

	result := a.Latest()
	require.True(t, result.IsValid)
	assert.InDelta(t, binFreq, result.FundamentalFrequency, 1.0)
	assert.GreaterOrEqual(t, result.NumHarmonicsDetected, 2)

	// 10% second harmonic
	assert.InDelta(t, 10.0, result.THD, 1.0)
}

func TestSilenceIsInvalid(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	for it := 0; it < 4096; it++ {
		a.PushSample(0)
	}

	result := a.Latest()
	assert.False(t, result.IsValid)
	assert.Equal(t, common.SilenceFloorDb, result.FundamentalAmplitudeDb)
}

func TestMinAmplitudeCutoff(t *testing.T) {
	a := NewAnalyzer(testSampleRate)
	a.SetMinAmplitudeDb(-40.0)

	mags := make([]float64, 2048)
	mags[40] = 1.0
	mags[80] = 0.001 // -60 dB, below the cutoff

	result := a.Analyze(mags, 0)
	require.True(t, result.IsValid)
	assert.Equal(t, 1, result.NumHarmonicsDetected)
	assert.False(t, result.Harmonics[1].Detected)
	assert.Equal(t, 0.0, result.THD)
}

func TestResetClearsResult(t *testing.T) {
	a := NewAnalyzer(testSampleRate)

	mags := make([]float64, 2048)
	mags[40] = 1.0
	a.Analyze(mags, 0)
	require.True(t, a.Latest().IsValid)

	a.Reset()
	assert.False(t, a.Latest().IsValid)
}

func TestParamDefaulting(t *testing.T) {
	a := NewAnalyzerWithParams(Params{})
	params := a.Params()

	assert.Equal(t, 44100.0, params.SampleRate)
	assert.Equal(t, DefaultMaxHarmonics, params.MaxHarmonics)
	assert.Equal(t, -60.0, params.MinAmplitudeDb)
	assert.Equal(t, 50.0, params.HarmonicSearchWidthCents)
}
