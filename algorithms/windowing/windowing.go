package windowing

import (
	"math"
)

// Window is a precomputed window function. Coefficients are generated once
// at construction and reused for the window's lifetime.
type Window struct {
	name         string
	size         int
	coefficients []float64
}

// NewHann creates a periodic Hann window of the given size
func NewHann(size int) *Window {
	w := &Window{name: "hann", size: size}
	w.coefficients = make([]float64, size)

	for i := range w.coefficients {
		w.coefficients[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(size-1)))
	}

	return w
}

// NewBlackmanHarris creates a 4-term Blackman-Harris window of the given
// size. Its low sidelobes suit distortion and noise-floor measurement.
func NewBlackmanHarris(size int) *Window {
	w := &Window{name: "blackman-harris", size: size}
	w.coefficients = make([]float64, size)

	a0, a1, a2, a3 := 0.35875, 0.48829, 0.14128, 0.01168

	for i := range w.coefficients {
		arg := 2.0 * math.Pi * float64(i) / float64(size-1)
		w.coefficients[i] = a0 - a1*math.Cos(arg) + a2*math.Cos(2*arg) - a3*math.Cos(3*arg)
	}

	return w
}

// Apply windows a signal into a new slice
func (w *Window) Apply(signal []float64) []float64 {
	n := min(len(signal), w.size)

	windowed := make([]float64, n)
	for i := 0; i < n; i++ {
		windowed[i] = signal[i] * w.coefficients[i]
	}

	return windowed
}

// ApplyInPlace windows a signal in place. Samples beyond the window size
// are left untouched.
func (w *Window) ApplyInPlace(signal []float64) {
	n := min(len(signal), w.size)
	for i := 0; i < n; i++ {
		signal[i] *= w.coefficients[i]
	}
}

// Coefficients returns a copy of the window coefficients
func (w *Window) Coefficients() []float64 {
	coeffs := make([]float64, len(w.coefficients))
	copy(coeffs, w.coefficients)
	return coeffs
}

// Size returns the window size
func (w *Window) Size() int {
	return w.size
}

// Name returns the window type name
func (w *Window) Name() string {
	return w.name
}
