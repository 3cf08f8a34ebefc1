// Package filters provides the small streaming filters used to condition
// audio before analysis.
package filters

import "math"

// DCBlocker removes the DC component with a one-pole high-pass:
// y[n] = x[n] - x[n-1] + R*y[n-1].
//
// Reference: Julius O. Smith III, "Introduction to Digital Filters with
// Audio Applications"
type DCBlocker struct {
	pole float64

	x1 float64
	y1 float64
}

// NewDCBlocker creates a DC blocker with the standard 0.995 pole,
// roughly an 8 Hz cutoff at 44.1 kHz
func NewDCBlocker() *DCBlocker {
	return &DCBlocker{pole: 0.995}
}

// NewDCBlockerWithCutoff creates a DC blocker with the pole placed for
// the given -3 dB cutoff. Valid for cutoffs far below Nyquist.
func NewDCBlockerWithCutoff(sampleRate, cutoffFreq float64) *DCBlocker {
	pole := 1.0 - 2.0*math.Pi*cutoffFreq/sampleRate
	pole = math.Max(0.001, math.Min(0.999, pole))
	return &DCBlocker{pole: pole}
}

// Process filters one sample
func (f *DCBlocker) Process(input float64) float64 {
	output := input - f.x1 + f.pole*f.y1
	f.x1 = input
	f.y1 = output
	return output
}

// ProcessInPlace filters a block of samples in place
func (f *DCBlocker) ProcessInPlace(samples []float64) {
	for i, s := range samples {
		samples[i] = f.Process(s)
	}
}

// Reset clears the filter state
func (f *DCBlocker) Reset() {
	f.x1 = 0
	f.y1 = 0
}

// PreEmphasis is the classic first-order high-frequency boost used
// ahead of cepstral analysis: y[n] = x[n] - a*x[n-1]
type PreEmphasis struct {
	coefficient float64
	last        float64
}

// NewPreEmphasis creates a pre-emphasis filter; non-positive
// coefficients fall back to the common speech value 0.97
func NewPreEmphasis(coefficient float64) *PreEmphasis {
	if coefficient <= 0 || coefficient >= 1 {
		coefficient = 0.97
	}
	return &PreEmphasis{coefficient: coefficient}
}

// Process filters one sample
func (f *PreEmphasis) Process(input float64) float64 {
	output := input - f.coefficient*f.last
	f.last = input
	return output
}

// ProcessInPlace filters a block of samples in place
func (f *PreEmphasis) ProcessInPlace(samples []float64) {
	for i, s := range samples {
		samples[i] = f.Process(s)
	}
}

// Coefficient returns the pre-emphasis coefficient
func (f *PreEmphasis) Coefficient() float64 {
	return f.coefficient
}

// Reset clears the filter state
func (f *PreEmphasis) Reset() {
	f.last = 0
}
