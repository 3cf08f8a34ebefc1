package spectral

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// FFT provides forward and inverse Fast Fourier Transforms for the
// analyzers. It wraps mjibson/go-dsp so every analyzer shares one
// transform implementation while owning its own instance.
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the forward FFT of a real signal
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// ComputeComplex computes the forward FFT of a complex signal
func (f *FFT) ComputeComplex(x []complex128) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFT(x)
}

// ComputeInverse computes the inverse FFT
func (f *FFT) ComputeInverse(x []complex128) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.IFFT(x)
}

// ComputeInverseReal computes the inverse FFT and returns the real part
func (f *FFT) ComputeInverseReal(x []complex128) []float64 {
	if len(x) == 0 {
		return []float64{}
	}

	result := fft.IFFT(x)
	realResult := make([]float64, len(result))
	for i, val := range result {
		realResult[i] = real(val)
	}

	return realResult
}

// Magnitude converts an FFT spectrum into bin magnitudes for the first
// numBins bins (typically fftSize/2 or fftSize/2+1)
func Magnitude(spectrum []complex128, numBins int) []float64 {
	if numBins > len(spectrum) {
		numBins = len(spectrum)
	}

	magnitudes := make([]float64, numBins)
	for i := range magnitudes {
		magnitudes[i] = cmplx.Abs(spectrum[i])
	}

	return magnitudes
}

// Phase converts an FFT spectrum into bin phases in radians
func Phase(spectrum []complex128, numBins int) []float64 {
	if numBins > len(spectrum) {
		numBins = len(spectrum)
	}

	phases := make([]float64, numBins)
	for i := range phases {
		phases[i] = cmplx.Phase(spectrum[i])
	}

	return phases
}

// Power converts bin magnitudes to a power spectrum
func Power(magnitudes []float64) []float64 {
	power := make([]float64, len(magnitudes))
	for i, m := range magnitudes {
		power[i] = m * m
	}
	return power
}

// BinToFrequency converts an FFT bin index (possibly fractional after
// interpolation) to a frequency in Hz
func BinToFrequency(bin float64, sampleRate float64, fftSize int) float64 {
	return bin * sampleRate / float64(fftSize)
}

// FrequencyToBin converts a frequency in Hz to an FFT bin position
func FrequencyToBin(freq float64, sampleRate float64, fftSize int) float64 {
	return freq * float64(fftSize) / sampleRate
}

// IsPowerOfTwo reports whether n is a positive power of two
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}
