package mfcc

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-analyze/algorithms/filters"
	"github.com/RyanBlaney/sonido-analyze/algorithms/spectral"
	"github.com/RyanBlaney/sonido-analyze/algorithms/windowing"
)

const (
	fftSize = 2048

	// NumCoefficients is the number of cepstral coefficients produced,
	// including the energy-related C0
	NumCoefficients = 13

	// NumMelFilters is the size of the triangular mel filter bank
	NumMelFilters = 26

	// Windows with less total power than this count as silence
	silenceFloor = 1e-10
)

// Result is the immutable MFCC snapshot published after each full window
type Result struct {
	Coefficients [NumCoefficients]float64 `json:"coefficients"`
	MelEnergies  [NumMelFilters]float64   `json:"mel_energies"`
	TotalEnergy  float64                  `json:"total_energy"`
	IsValid      bool                     `json:"is_valid"`
}

// Analyzer extracts Mel-Frequency Cepstral Coefficients from streamed or
// direct sample blocks.
//
// Pipeline: Hann-windowed 2048-point FFT -> power spectrum -> 26
// triangular mel filters spanning the configured frequency range -> log
// energies -> DCT-II producing 13 coefficients. The filter bank and DCT
// basis are precomputed per configuration and regenerated lazily after a
// sample-rate or frequency-bound change.
type Analyzer struct {
	sampleRate   float64
	minFrequency float64
	maxFrequency float64

	transform *spectral.Transform

	fifo      []float64
	fifoIndex int

	preEmphasis *filters.PreEmphasis
	preBuf      []float64

	powerSpectrum []float64

	filterBank      [NumMelFilters][]float64
	filterStartBins [NumMelFilters]int
	filterEndBins   [NumMelFilters]int
	dctMatrix       [NumCoefficients][NumMelFilters]float64
	bankReady       bool

	mu     sync.Mutex
	latest Result
}

// NewAnalyzer creates an MFCC analyzer for the given sample rate with the
// default 20 Hz - 8 kHz band
func NewAnalyzer(sampleRate float64) *Analyzer {
	if sampleRate <= 0 {
		sampleRate = 44100.0
	}

	transform, _ := spectral.NewTransform(fftSize, windowing.NewHann(fftSize))

	a := &Analyzer{
		sampleRate:    sampleRate,
		minFrequency:  20.0,
		maxFrequency:  8000.0,
		transform:     transform,
		fifo:          make([]float64, fftSize),
		powerSpectrum: make([]float64, fftSize/2+1),
	}

	a.initDCTMatrix()
	a.initMelFilterBank()

	return a
}

// Prepare sets the sample rate and clears accumulated state
func (a *Analyzer) Prepare(sampleRate float64, blockSize int) {
	a.SetSampleRate(sampleRate)
	a.Reset()
}

// Reset discards buffered samples and the published result
func (a *Analyzer) Reset() {
	for i := range a.fifo {
		a.fifo[i] = 0
	}
	a.fifoIndex = 0

	a.mu.Lock()
	a.latest = Result{}
	a.mu.Unlock()
}

// SetSampleRate updates the sample rate; the mel filter bank regenerates
// before the next analysis
func (a *Analyzer) SetSampleRate(rate float64) {
	if rate > 0 && math.Abs(a.sampleRate-rate) > 1.0 {
		a.sampleRate = rate
		a.bankReady = false
	}
}

// SetMinFrequency updates the lower band edge of the filter bank
func (a *Analyzer) SetMinFrequency(freq float64) {
	if freq >= 0 && math.Abs(a.minFrequency-freq) > 1.0 {
		a.minFrequency = freq
		a.bankReady = false
	}
}

// SetMaxFrequency updates the upper band edge of the filter bank
func (a *Analyzer) SetMaxFrequency(freq float64) {
	if freq > 0 && math.Abs(a.maxFrequency-freq) > 1.0 {
		a.maxFrequency = freq
		a.bankReady = false
	}
}

// SetPreEmphasis enables a pre-emphasis high-pass stage applied to each
// window before the transform. Coefficients outside (0, 1) disable it.
func (a *Analyzer) SetPreEmphasis(coefficient float64) {
	if coefficient <= 0 || coefficient >= 1 {
		a.preEmphasis = nil
		return
	}
	a.preEmphasis = filters.NewPreEmphasis(coefficient)
	if a.preBuf == nil {
		a.preBuf = make([]float64, fftSize)
	}
}

// PushSample accumulates one sample; a full window triggers analysis
func (a *Analyzer) PushSample(sample float64) {
	a.fifo[a.fifoIndex] = sample
	a.fifoIndex++

	if a.fifoIndex >= fftSize {
		a.fifoIndex = 0
		a.Analyze(a.fifo)
	}
}

// Analyze extracts MFCCs from a sample block (zero-padded or truncated to
// the FFT size) and publishes the result as the latest snapshot
func (a *Analyzer) Analyze(samples []float64) Result {
	if !a.bankReady {
		a.initMelFilterBank()
	}

	if a.preEmphasis != nil {
		n := copy(a.preBuf, samples)
		a.preEmphasis.Reset()
		a.preEmphasis.ProcessInPlace(a.preBuf[:n])
		samples = a.preBuf[:n]
	}

	frame := a.transform.Forward(samples)

	scale := 2.0 / float64(fftSize)
	for i := range a.powerSpectrum {
		mag := frame.Magnitude[i] * scale
		a.powerSpectrum[i] = mag * mag
	}

	var result Result
	result.TotalEnergy = floats.Sum(a.powerSpectrum)

	if result.TotalEnergy < silenceFloor {
		a.publish(result)
		return result
	}

	a.applyMelFilterBank(&result.MelEnergies)

	var logMelEnergies [NumMelFilters]float64
	for m := range logMelEnergies {
		logMelEnergies[m] = math.Log(result.MelEnergies[m] + 1e-10)
	}

	a.computeDCT(&logMelEnergies, &result.Coefficients)

	result.IsValid = true
	a.publish(result)
	return result
}

// Latest returns the most recently published snapshot
func (a *Analyzer) Latest() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

func (a *Analyzer) publish(result Result) {
	a.mu.Lock()
	a.latest = result
	a.mu.Unlock()
}

// initMelFilterBank builds the triangular filters over equally spaced mel
// points between the configured band edges
func (a *Analyzer) initMelFilterBank() {
	melMin := HzToMel(a.minFrequency)
	melMax := HzToMel(a.maxFrequency)

	var binPoints [NumMelFilters + 2]int
	for i := range binPoints {
		mel := melMin + (melMax-melMin)*float64(i)/float64(NumMelFilters+1)
		hz := MelToHz(mel)
		binPoints[i] = int(math.Floor(float64(fftSize+1) * hz / a.sampleRate))
	}

	numBins := fftSize/2 + 1
	for m := 0; m < NumMelFilters; m++ {
		startBin := binPoints[m]
		centerBin := binPoints[m+1]
		endBin := binPoints[m+2]

		a.filterStartBins[m] = startBin
		a.filterEndBins[m] = endBin
		a.filterBank[m] = make([]float64, numBins)

		for k := startBin; k < centerBin && k < numBins; k++ {
			if centerBin != startBin {
				a.filterBank[m][k] = float64(k-startBin) / float64(centerBin-startBin)
			}
		}
		for k := centerBin; k <= endBin && k < numBins; k++ {
			if endBin != centerBin {
				a.filterBank[m][k] = float64(endBin-k) / float64(endBin-centerBin)
			}
		}
	}

	a.bankReady = true
}

// initDCTMatrix precomputes the DCT-II basis including orthonormal
// scaling
func (a *Analyzer) initDCTMatrix() {
	for i := 0; i < NumCoefficients; i++ {
		norm := math.Sqrt(2.0 / float64(NumMelFilters))
		if i == 0 {
			norm = math.Sqrt(1.0 / float64(NumMelFilters))
		}

		for j := 0; j < NumMelFilters; j++ {
			a.dctMatrix[i][j] = norm * math.Cos(math.Pi*float64(i)*(float64(j)+0.5)/float64(NumMelFilters))
		}
	}
}

func (a *Analyzer) applyMelFilterBank(melEnergies *[NumMelFilters]float64) {
	for m := 0; m < NumMelFilters; m++ {
		energy := 0.0
		endBin := min(a.filterEndBins[m], len(a.powerSpectrum)-1)

		for k := a.filterStartBins[m]; k <= endBin; k++ {
			if k >= 0 {
				energy += a.powerSpectrum[k] * a.filterBank[m][k]
			}
		}

		melEnergies[m] = energy
	}
}

func (a *Analyzer) computeDCT(logMelEnergies *[NumMelFilters]float64, coefficients *[NumCoefficients]float64) {
	for i := 0; i < NumCoefficients; i++ {
		sum := 0.0
		for j := 0; j < NumMelFilters; j++ {
			sum += logMelEnergies[j] * a.dctMatrix[i][j]
		}
		coefficients[i] = sum
	}
}
