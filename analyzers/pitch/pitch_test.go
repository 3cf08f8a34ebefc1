package pitch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 44100.0

func pushSine(d *Detector, freq, amplitude float64, numSamples int) {
	for i := 0; i < numSamples; i++ {
		d.PushSample(amplitude * math.Sin(2.0*math.Pi*freq*float64(i)/testSampleRate))
	}
}

func TestDetect440Hz(t *testing.T) {
	d := NewDetector(testSampleRate)
	pushSine(d, 440.0, 0.5, 8192)

	result := d.Latest()
	require.True(t, result.IsPitched)
	assert.InDelta(t, 440.0, result.Frequency, 440.0*0.01)
	assert.Equal(t, "A4", result.NoteName)
	assert.Equal(t, 69, result.MIDINote)
	assert.InDelta(t, 0.0, result.Cents, 20.0)
	assert.Greater(t, result.Confidence, 0.8)
}

func TestDetectLowPitch(t *testing.T) {
	d := NewDetector(testSampleRate)
	pushSine(d, 110.0, 0.5, 8192)

	result := d.Latest()
	require.True(t, result.IsPitched)
	assert.InDelta(t, 110.0, result.Frequency, 110.0*0.01)
	assert.Equal(t, "A2", result.NoteName)
}

func TestSilenceIsUnpitched(t *testing.T) {
	d := NewDetector(testSampleRate)
	for it := 0; it < 8192; it++ {
		d.PushSample(0)
	}

	result := d.Latest()
	assert.False(t, result.IsPitched)
	assert.Equal(t, 0.0, result.Frequency)
	assert.Equal(t, -1, result.MIDINote)
	assert.Equal(t, "---", result.NoteName)
}

func TestLevelGateBlocksQuietSignal(t *testing.T) {
	d := NewDetector(testSampleRate)
	pushSine(d, 440.0, 0.0005, 8192)

	assert.False(t, d.Latest().IsPitched)
}

func TestFrequencyRangeRejection(t *testing.T) {
	d := NewDetector(testSampleRate)
	d.SetMinFrequency(600.0)
	d.SetMaxFrequency(800.0)

	// 440 Hz and its octaves all sit outside the configured band
	pushSine(d, 440.0, 0.5, 8192)
	assert.False(t, d.Latest().IsPitched)
}

func TestResetClearsResult(t *testing.T) {
	d := NewDetector(testSampleRate)
	pushSine(d, 440.0, 0.5, 8192)
	require.True(t, d.Latest().IsPitched)

	d.Reset()
	result := d.Latest()
	assert.False(t, result.IsPitched)
	assert.Equal(t, "---", result.NoteName)
}

func TestProcessBlockStereo(t *testing.T) {
	d := NewDetector(testSampleRate)

	interleaved := make([]float64, 8192*2)
	for i := 0; i < 8192; i++ {
		s := 0.5 * math.Sin(2.0*math.Pi*440.0*float64(i)/testSampleRate)
		interleaved[i*2] = s
		interleaved[i*2+1] = s
	}
	d.ProcessBlock(interleaved, 2)

	result := d.Latest()
	require.True(t, result.IsPitched)
	assert.InDelta(t, 440.0, result.Frequency, 440.0*0.01)
}

func TestDefaultParams(t *testing.T) {
	params := DefaultParams(testSampleRate)
	assert.Equal(t, DefaultBufferSize, params.BufferSize)
	assert.Equal(t, DefaultThreshold, params.Threshold)
	assert.Equal(t, DefaultMinFreq, params.MinFrequency)
	assert.Equal(t, DefaultMaxFreq, params.MaxFrequency)
}

func TestDetectPitchDirect(t *testing.T) {
	d := NewDetector(testSampleRate)

	samples := make([]float64, 4096)
	for i := range samples {
		samples[i] = 0.8 * math.Sin(2.0*math.Pi*220.0*float64(i)/testSampleRate)
	}

	result := d.DetectPitch(samples)
	require.True(t, result.IsPitched)
	assert.InDelta(t, 220.0, result.Frequency, 220.0*0.01)

	// The direct path publishes too
	assert.Equal(t, result, d.Latest())
}

func TestDetectPitchOversizedBlock(t *testing.T) {
	d := NewDetector(testSampleRate)
	d.SetMinFrequency(20.0)

	// A block larger than the ring buffer widens the lag window past
	// the working buffer; the lag search must stay inside it
	samples := make([]float64, 8192)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2.0*math.Pi*25.0*float64(i)/testSampleRate)
	}

	result := d.DetectPitch(samples)
	require.True(t, result.IsPitched)
	assert.InDelta(t, 25.0, result.Frequency, 25.0*0.01)

	// Silence at the same size degrades, never faults
	for i := range samples {
		samples[i] = 0
	}
	assert.False(t, d.DetectPitch(samples).IsPitched)
}
