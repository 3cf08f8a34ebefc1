package common

import (
	"fmt"
	"math"
)

// SilenceFloorDb is the sentinel level reported for undetected or silent
// components.
const SilenceFloorDb = -100.0

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// GainToDecibels converts a linear amplitude to dB, floored at
// SilenceFloorDb for non-positive or vanishing input
func GainToDecibels(gain float64) float64 {
	if gain <= 0 {
		return SilenceFloorDb
	}

	db := 20.0 * math.Log10(gain)
	if db < SilenceFloorDb {
		return SilenceFloorDb
	}
	return db
}

// DecibelsToGain converts a dB level to linear amplitude
func DecibelsToGain(db float64) float64 {
	return math.Pow(10.0, db/20.0)
}

// FrequencyToMIDINote returns the nearest MIDI note number for a
// frequency, or -1 for non-positive input. MIDI note 69 is A4 = 440 Hz.
func FrequencyToMIDINote(frequency float64) int {
	if frequency <= 0 {
		return -1
	}
	return int(math.Round(69.0 + 12.0*math.Log2(frequency/440.0)))
}

// MIDINoteToFrequency returns the equal-tempered frequency of a MIDI note
func MIDINoteToFrequency(midiNote int) float64 {
	return 440.0 * math.Pow(2.0, float64(midiNote-69)/12.0)
}

// FrequencyToNoteName formats a frequency as a note name with octave,
// e.g. "A4". Out-of-range or non-positive frequencies format as "---".
func FrequencyToNoteName(frequency float64) string {
	midiNote := FrequencyToMIDINote(frequency)
	if midiNote < 0 || midiNote > 127 {
		return "---"
	}

	return fmt.Sprintf("%s%d", noteNames[midiNote%12], midiNote/12-1)
}

// PitchClassName returns the note name of a pitch class 0-11 (0 = C)
func PitchClassName(pitchClass int) string {
	return noteNames[((pitchClass%12)+12)%12]
}

// CentsDeviation returns how many cents a frequency deviates from the
// given MIDI note
func CentsDeviation(frequency float64, midiNote int) float64 {
	if frequency <= 0 || midiNote < 0 {
		return 0
	}

	exact := 69.0 + 12.0*math.Log2(frequency/440.0)
	return (exact - float64(midiNote)) * 100.0
}
