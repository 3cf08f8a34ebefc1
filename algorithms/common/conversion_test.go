package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGainToDecibels(t *testing.T) {
	assert.InDelta(t, 0.0, GainToDecibels(1.0), 1e-12)
	assert.InDelta(t, -6.02, GainToDecibels(0.5), 0.01)
	assert.Equal(t, SilenceFloorDb, GainToDecibels(0))
	assert.Equal(t, SilenceFloorDb, GainToDecibels(-1))
	assert.Equal(t, SilenceFloorDb, GainToDecibels(1e-9))
}

func TestDecibelsToGainRoundTrip(t *testing.T) {
	assert.InDelta(t, 0.25, DecibelsToGain(GainToDecibels(0.25)), 1e-12)
}

func TestFrequencyToMIDINote(t *testing.T) {
	assert.Equal(t, 69, FrequencyToMIDINote(440.0))
	assert.Equal(t, 60, FrequencyToMIDINote(261.63))
	assert.Equal(t, -1, FrequencyToMIDINote(0))
	assert.Equal(t, -1, FrequencyToMIDINote(-10))

	// 445 Hz is sharp of A4 but still nearest to it
	assert.Equal(t, 69, FrequencyToMIDINote(445.0))
}

func TestMIDINoteToFrequency(t *testing.T) {
	assert.InDelta(t, 440.0, MIDINoteToFrequency(69), 1e-9)
	assert.InDelta(t, 880.0, MIDINoteToFrequency(81), 1e-9)
	assert.InDelta(t, 261.626, MIDINoteToFrequency(60), 0.001)
}

func TestFrequencyToNoteName(t *testing.T) {
	assert.Equal(t, "A4", FrequencyToNoteName(440.0))
	assert.Equal(t, "C4", FrequencyToNoteName(261.63))
	assert.Equal(t, "---", FrequencyToNoteName(0))
	assert.Equal(t, "---", FrequencyToNoteName(30000.0))
}

func TestPitchClassName(t *testing.T) {
	assert.Equal(t, "C", PitchClassName(0))
	assert.Equal(t, "A", PitchClassName(9))
	assert.Equal(t, "B", PitchClassName(23))
	assert.Equal(t, "B", PitchClassName(-1))
}

func TestCentsDeviation(t *testing.T) {
	assert.InDelta(t, 0.0, CentsDeviation(440.0, 69), 1e-9)

	// A quarter tone sharp of A4
	sharp := 440.0 * 1.0293022366
	assert.InDelta(t, 50.0, CentsDeviation(sharp, 69), 0.1)

	assert.Equal(t, 0.0, CentsDeviation(0, 69))
	assert.Equal(t, 0.0, CentsDeviation(440.0, -1))
}
