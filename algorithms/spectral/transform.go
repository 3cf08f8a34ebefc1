package spectral

import (
	"fmt"

	"github.com/RyanBlaney/sonido-analyze/algorithms/windowing"
)

// Frame holds the output of one windowed forward transform.
// Magnitude and Phase have fftSize/2+1 entries.
type Frame struct {
	Magnitude []float64 `json:"magnitude"`
	Phase     []float64 `json:"phase"`
}

// Transform performs a windowed forward FFT producing magnitude and phase.
// The window function and FFT size are fixed for the lifetime of the
// Transform; the input buffer is reused between calls so Forward does not
// allocate once constructed.
type Transform struct {
	fftSize int
	window  *windowing.Window
	fft     *FFT

	windowed []float64
	frame    Frame
}

// NewTransform creates a windowed transform for a power-of-two FFT size
func NewTransform(fftSize int, window *windowing.Window) (*Transform, error) {
	if !IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of two, got %d", fftSize)
	}
	if window != nil && window.Size() != fftSize {
		return nil, fmt.Errorf("window size (%d) doesn't match fft size (%d)", window.Size(), fftSize)
	}

	numBins := fftSize/2 + 1
	return &Transform{
		fftSize:  fftSize,
		window:   window,
		fft:      NewFFT(),
		windowed: make([]float64, fftSize),
		frame: Frame{
			Magnitude: make([]float64, numBins),
			Phase:     make([]float64, numBins),
		},
	}, nil
}

// Size returns the FFT size
func (t *Transform) Size() int {
	return t.fftSize
}

// NumBins returns the number of spectrum bins (fftSize/2+1)
func (t *Transform) NumBins() int {
	return t.fftSize/2 + 1
}

// Forward windows the input, zero-pads short input, and computes
// magnitude and phase. The returned Frame aliases internal storage and is
// only valid until the next call; callers that keep results copy them out.
func (t *Transform) Forward(samples []float64) Frame {
	n := len(samples)
	if n > t.fftSize {
		n = t.fftSize
	}

	copy(t.windowed[:n], samples[:n])
	for i := n; i < t.fftSize; i++ {
		t.windowed[i] = 0
	}

	if t.window != nil {
		t.window.ApplyInPlace(t.windowed)
	}

	spectrum := t.fft.Compute(t.windowed)
	numBins := t.NumBins()
	copy(t.frame.Magnitude, Magnitude(spectrum, numBins))
	copy(t.frame.Phase, Phase(spectrum, numBins))

	return t.frame
}
