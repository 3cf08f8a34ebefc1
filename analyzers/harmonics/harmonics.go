package harmonics

import (
	"math"
	"sync"

	"github.com/RyanBlaney/sonido-analyze/algorithms/common"
	"github.com/RyanBlaney/sonido-analyze/algorithms/spectral"
	"github.com/RyanBlaney/sonido-analyze/algorithms/windowing"
)

const (
	fftSize = 4096

	// DefaultMaxHarmonics is the number of harmonic slots tracked,
	// fundamental included
	DefaultMaxHarmonics = 16

	// Fundamental search range when no hint is supplied
	fundamentalMinFreq = 50.0
	fundamentalMaxFreq = 2000.0
)

// Harmonic is a single entry of the fitted harmonic series. Slots beyond
// the detected series stay present with Detected=false and the amplitude
// floored at the silence sentinel.
type Harmonic struct {
	Number      int     `json:"number"`       // Harmonic number (1 = fundamental)
	Frequency   float64 `json:"frequency"`    // Measured (or ideal, if undetected) frequency in Hz
	Amplitude   float64 `json:"amplitude"`    // Linear amplitude
	AmplitudeDb float64 `json:"amplitude_db"` // Amplitude in dB
	Phase       float64 `json:"phase"`        // Phase in radians (streamed analysis only)
	Detected    bool    `json:"detected"`
}

// Result is the immutable harmonic-analysis snapshot
type Result struct {
	FundamentalFrequency   float64    `json:"fundamental_frequency"`
	FundamentalAmplitudeDb float64    `json:"fundamental_amplitude_db"`
	Harmonics              []Harmonic `json:"harmonics"`
	NumHarmonicsDetected   int        `json:"num_harmonics_detected"`
	THD                    float64    `json:"thd"`           // Total harmonic distortion in percent
	Inharmonicity          float64    `json:"inharmonicity"` // Mean relative deviation from the ideal series
	IsValid                bool       `json:"is_valid"`
}

// Params contains configuration for the harmonics analyzer
type Params struct {
	SampleRate               float64 `json:"sample_rate"`
	MaxHarmonics             int     `json:"max_harmonics"`
	MinAmplitudeDb           float64 `json:"min_amplitude_db"`            // Detection cutoff
	HarmonicSearchWidthCents float64 `json:"harmonic_search_width_cents"` // Search window around the ideal bin
}

// DefaultParams returns the default harmonic-analysis configuration
func DefaultParams(sampleRate float64) Params {
	return Params{
		SampleRate:               sampleRate,
		MaxHarmonics:             DefaultMaxHarmonics,
		MinAmplitudeDb:           -60.0,
		HarmonicSearchWidthCents: 50.0,
	}
}

// Analyzer fits a harmonic series to the magnitude spectrum and derives
// THD and inharmonicity.
//
// Streamed samples accumulate into a 4096-sample FIFO; each full window
// is Hann-windowed and transformed, and the magnitude spectrum analyzed:
// fundamental from hint or strongest musical-range peak (parabolic
// refined), then one search window of +/- the configured cents around
// each ideal integer multiple.
type Analyzer struct {
	params Params

	transform *spectral.Transform

	fifo      []float64
	fifoIndex int
	mags      []float64
	phases    []float64

	knownFundamental float64

	mu     sync.Mutex
	latest Result
}

// NewAnalyzer creates a harmonics analyzer with default parameters
func NewAnalyzer(sampleRate float64) *Analyzer {
	return NewAnalyzerWithParams(DefaultParams(sampleRate))
}

// NewAnalyzerWithParams creates a harmonics analyzer with custom parameters
func NewAnalyzerWithParams(params Params) *Analyzer {
	if params.SampleRate <= 0 {
		params.SampleRate = 44100.0
	}
	if params.MaxHarmonics <= 0 {
		params.MaxHarmonics = DefaultMaxHarmonics
	}
	if params.MinAmplitudeDb >= 0 {
		params.MinAmplitudeDb = -60.0
	}
	if params.HarmonicSearchWidthCents <= 0 {
		params.HarmonicSearchWidthCents = 50.0
	}

	transform, _ := spectral.NewTransform(fftSize, windowing.NewHann(fftSize))

	return &Analyzer{
		params:    params,
		transform: transform,
		fifo:      make([]float64, fftSize),
		mags:      make([]float64, fftSize/2),
		phases:    make([]float64, fftSize/2),
	}
}

// Prepare sets the sample rate and clears accumulated state
func (a *Analyzer) Prepare(sampleRate float64, blockSize int) {
	if sampleRate > 0 {
		a.params.SampleRate = sampleRate
	}
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

// SetFundamentalFrequency supplies a known fundamental. Zero clears the
// hint and restores automatic peak search.
func (a *Analyzer) SetFundamentalFrequency(freq float64) {
	a.knownFundamental = freq
}

// SetMinAmplitudeDb sets the harmonic detection cutoff
func (a *Analyzer) SetMinAmplitudeDb(db float64) {
	a.params.MinAmplitudeDb = db
}

// SetHarmonicSearchWidth sets the half-width of the per-harmonic search
// window in cents
func (a *Analyzer) SetHarmonicSearchWidth(cents float64) {
	if cents > 0 {
		a.params.HarmonicSearchWidthCents = cents
	}
}

// Params returns the current configuration
func (a *Analyzer) Params() Params {
	return a.params
}

// PushSample accumulates one sample; a full window triggers analysis
func (a *Analyzer) PushSample(sample float64) {
	a.fifo[a.fifoIndex] = sample
	a.fifoIndex++

	if a.fifoIndex >= fftSize {
		a.fifoIndex = 0
		a.processWindow()
	}
}

func (a *Analyzer) processWindow() {
	frame := a.transform.Forward(a.fifo)

	// Scale bin magnitudes back to signal amplitude
	scale := 2.0 / float64(fftSize)
	for i := range a.mags {
		a.mags[i] = frame.Magnitude[i] * scale
		a.phases[i] = frame.Phase[i]
	}

	result := a.analyzeMagnitudes(a.mags, a.phases, a.knownFundamental)

	a.mu.Lock()
	a.latest = result
	a.mu.Unlock()
}

// Analyze runs harmonic analysis on a precomputed magnitude spectrum.
// A positive fundamentalHint narrows the fundamental search to +/-10%
// around the hinted frequency. The result is also published as the
// latest snapshot.
func (a *Analyzer) Analyze(magnitudes []float64, fundamentalHint float64) Result {
	result := a.analyzeMagnitudes(magnitudes, nil, fundamentalHint)

	a.mu.Lock()
	a.latest = result
	a.mu.Unlock()

	return result
}

// Latest returns the most recently published snapshot
func (a *Analyzer) Latest() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

func (a *Analyzer) analyzeMagnitudes(mags, phases []float64, fundamentalHint float64) Result {
	result := Result{
		FundamentalAmplitudeDb: common.SilenceFloorDb,
		Harmonics:              make([]Harmonic, a.params.MaxHarmonics),
	}

	numBins := len(mags)
	if numBins < 4 {
		return result
	}

	var fundamentalBin int
	if fundamentalHint > 0 {
		expectedBin := spectral.FrequencyToBin(fundamentalHint, a.params.SampleRate, fftSize)
		searchStart := max(1, int(expectedBin*0.9))
		searchEnd := min(numBins-1, int(expectedBin*1.1))

		fundamentalBin = searchStart
		maxMag := mags[searchStart]
		for i := searchStart + 1; i <= searchEnd; i++ {
			if mags[i] > maxMag {
				maxMag = mags[i]
				fundamentalBin = i
			}
		}
	} else {
		fundamentalBin = a.findFundamental(mags)
	}

	if fundamentalBin <= 0 {
		return result
	}

	exactBin := common.ParabolicPeakBin(mags, fundamentalBin)
	fundamental := spectral.BinToFrequency(exactBin, a.params.SampleRate, fftSize)

	fundamentalDb := common.GainToDecibels(mags[fundamentalBin])
	if fundamentalDb < a.params.MinAmplitudeDb {
		return result
	}

	result.FundamentalFrequency = fundamental
	result.FundamentalAmplitudeDb = fundamentalDb
	result.IsValid = true

	a.findHarmonics(mags, phases, fundamental, &result)
	result.THD = computeTHD(result.Harmonics)

	return result
}

// findFundamental looks for the strongest plausible peak in the musical
// fundamental range
func (a *Analyzer) findFundamental(mags []float64) int {
	minBin := max(1, int(spectral.FrequencyToBin(fundamentalMinFreq, a.params.SampleRate, fftSize)))
	maxBin := min(len(mags)-2, int(spectral.FrequencyToBin(fundamentalMaxFreq, a.params.SampleRate, fftSize)))

	bestBin := minBin
	bestMag := mags[minBin]

	for i := minBin + 1; i <= maxBin; i++ {
		if mags[i] > mags[i-1] && mags[i] > mags[i+1] && mags[i] > bestMag {
			// A true peak stands clear of its neighborhood
			avgNeighbor := (mags[i-1] + mags[i+1]) / 2.0
			if mags[i] > avgNeighbor*1.5 {
				bestMag = mags[i]
				bestBin = i
			}
		}
	}

	return bestBin
}

func (a *Analyzer) findHarmonics(mags, phases []float64, fundamental float64, result *Result) {
	searchWidthRatio := math.Pow(2.0, a.params.HarmonicSearchWidthCents/1200.0)
	inharmonicitySum := 0.0

	for h := 1; h <= a.params.MaxHarmonics; h++ {
		expectedFreq := fundamental * float64(h)
		expectedBin := spectral.FrequencyToBin(expectedFreq, a.params.SampleRate, fftSize)

		if int(expectedBin) >= len(mags)-1 {
			break
		}

		searchStart := max(1, int(expectedBin/searchWidthRatio))
		searchEnd := min(len(mags)-2, int(expectedBin*searchWidthRatio))

		peakBin := searchStart
		peakMag := mags[searchStart]
		for i := searchStart + 1; i <= searchEnd; i++ {
			if mags[i] > peakMag {
				peakMag = mags[i]
				peakBin = i
			}
		}

		harmonic := &result.Harmonics[h-1]
		harmonic.Number = h

		peakDb := common.GainToDecibels(peakMag)
		if peakDb >= a.params.MinAmplitudeDb {
			exactBin := common.ParabolicPeakBin(mags, peakBin)
			harmonic.Frequency = spectral.BinToFrequency(exactBin, a.params.SampleRate, fftSize)
			harmonic.Amplitude = peakMag
			harmonic.AmplitudeDb = peakDb
			harmonic.Detected = true
			if phases != nil && peakBin < len(phases) {
				harmonic.Phase = phases[peakBin]
			}
			result.NumHarmonicsDetected = h

			deviation := math.Abs(harmonic.Frequency-expectedFreq) / expectedFreq
			inharmonicitySum += deviation
		} else {
			harmonic.Frequency = expectedFreq
			harmonic.Amplitude = 0
			harmonic.AmplitudeDb = common.SilenceFloorDb
			harmonic.Detected = false
		}
	}

	if result.NumHarmonicsDetected > 1 {
		result.Inharmonicity = inharmonicitySum / float64(result.NumHarmonicsDetected-1)
	}
}

// computeTHD returns the root-sum-square of overtone amplitudes relative
// to the fundamental, in percent
func computeTHD(harmonics []Harmonic) float64 {
	if len(harmonics) == 0 || !harmonics[0].Detected {
		return 0
	}

	fundamentalAmp := harmonics[0].Amplitude
	if fundamentalAmp <= 0 {
		return 0
	}

	harmonicPowerSum := 0.0
	for _, h := range harmonics[1:] {
		if h.Detected {
			harmonicPowerSum += h.Amplitude * h.Amplitude
		}
	}

	return math.Sqrt(harmonicPowerSum) / fundamentalAmp * 100.0
}
