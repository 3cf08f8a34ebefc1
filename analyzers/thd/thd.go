package thd

import (
	"math"
	"sync"

	"github.com/RyanBlaney/sonido-analyze/algorithms/common"
	"github.com/RyanBlaney/sonido-analyze/algorithms/spectral"
	"github.com/RyanBlaney/sonido-analyze/algorithms/windowing"
)

const (
	// Large FFT for high frequency resolution; Blackman-Harris keeps the
	// noise-floor estimate clear of window sidelobes
	fftSize = 8192

	// Guard bins on either side of a tone bin counted as part of the
	// tone, not the noise floor
	guardBins = 3

	// SNR/SINAD ceiling reported when no noise is measurable
	maxRatioDb = 120.0

	minHarmonics = 2
	maxHarmonics = 10
)

// Result is the immutable distortion measurement snapshot
type Result struct {
	FundamentalFrequency float64   `json:"fundamental_frequency"` // Hz
	FundamentalAmplitude float64   `json:"fundamental_amplitude"` // dBFS
	THD                  float64   `json:"thd"`                   // percent, harmonics only
	THDPlusNoise         float64   `json:"thd_plus_noise"`        // percent, harmonics plus noise floor
	SNR                  float64   `json:"snr"`                   // dB, fundamental vs noise floor
	SINAD                float64   `json:"sinad"`                 // dB, fundamental vs noise plus distortion
	HarmonicLevels       []float64 `json:"harmonic_levels"`       // dBFS per harmonic, fundamental first
	IsValid              bool      `json:"is_valid"`
}

// Analyzer measures THD, THD+N, SNR, and SINAD of a (near) single-tone
// signal.
//
// Samples accumulate into an 8192-sample ring; each full window is
// Blackman-Harris windowed and transformed. The fundamental is located
// near the expected frequency (or by peak search), refined with
// parabolic interpolation, and its energy with adjacent guard bins is
// separated from harmonic-region energy and the remaining noise floor.
type Analyzer struct {
	sampleRate float64

	transform *spectral.Transform

	input      *common.CircularBuffer
	collected  int
	processBuf []float64
	mags       []float64

	expectedFundamental float64
	numHarmonics        int

	mu     sync.Mutex
	latest Result
}

// NewAnalyzer creates a THD analyzer for the given sample rate,
// expecting a 1 kHz tone and measuring 5 harmonics by default
func NewAnalyzer(sampleRate float64) *Analyzer {
	if sampleRate <= 0 {
		sampleRate = 44100.0
	}

	transform, _ := spectral.NewTransform(fftSize, windowing.NewBlackmanHarris(fftSize))

	return &Analyzer{
		sampleRate:          sampleRate,
		transform:           transform,
		input:               common.NewCircularBuffer(fftSize),
		processBuf:          make([]float64, fftSize),
		mags:                make([]float64, fftSize/2),
		expectedFundamental: 1000.0,
		numHarmonics:        5,
	}
}

// Prepare sets the sample rate and clears accumulated state
func (a *Analyzer) Prepare(sampleRate float64, blockSize int) {
	if sampleRate > 0 {
		a.sampleRate = sampleRate
	}
	a.Reset()
}

// Reset discards buffered samples and the published result
func (a *Analyzer) Reset() {
	a.input.Clear()
	a.collected = 0

	a.mu.Lock()
	a.latest = Result{}
	a.mu.Unlock()
}

// SetExpectedFundamental sets the frequency the fundamental search
// centers on
func (a *Analyzer) SetExpectedFundamental(freq float64) {
	if freq > 0 {
		a.expectedFundamental = freq
	}
}

// SetNumHarmonics clamps and sets how many harmonics are measured (2-10)
func (a *Analyzer) SetNumHarmonics(num int) {
	a.numHarmonics = max(minHarmonics, min(maxHarmonics, num))
}

// ExpectedFundamental returns the configured search frequency
func (a *Analyzer) ExpectedFundamental() float64 { return a.expectedFundamental }

// NumHarmonics returns the number of harmonics measured
func (a *Analyzer) NumHarmonics() int { return a.numHarmonics }

// PushSample accumulates one sample; a full window triggers measurement
func (a *Analyzer) PushSample(sample float64) {
	a.input.Push(sample)
	a.collected++

	if a.collected >= fftSize {
		a.collected = 0
		a.analyze()
	}
}

// ProcessBlock pushes a block of interleaved frames, mixed to mono
func (a *Analyzer) ProcessBlock(interleaved []float64, channels int) {
	if channels <= 1 {
		for _, s := range interleaved {
			a.PushSample(s)
		}
		return
	}

	frames := len(interleaved) / channels
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		a.PushSample(sum / float64(channels))
	}
}

// Latest returns the most recently published measurement
func (a *Analyzer) Latest() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

func (a *Analyzer) analyze() {
	var result Result

	a.input.CopyOrdered(a.processBuf)
	frame := a.transform.Forward(a.processBuf)

	scale := 2.0 / float64(fftSize)
	totalPower := 0.0
	for i := range a.mags {
		a.mags[i] = frame.Magnitude[i] * scale
		totalPower += a.mags[i] * a.mags[i]
	}

	fundamentalBin := a.findFundamentalBin()
	if fundamentalBin <= 0 || fundamentalBin >= len(a.mags)-1 {
		a.publish(result)
		return
	}

	exactBin := common.ParabolicPeakBin(a.mags, fundamentalBin)
	result.FundamentalFrequency = spectral.BinToFrequency(exactBin, a.sampleRate, fftSize)

	fundamentalMag := common.LinearInterpolate(a.mags, exactBin)
	result.FundamentalAmplitude = common.GainToDecibels(fundamentalMag)

	fundamentalPower := a.regionPower(fundamentalBin)

	result.HarmonicLevels = make([]float64, a.numHarmonics)
	result.HarmonicLevels[0] = result.FundamentalAmplitude

	harmonicPower := 0.0
	for h := 2; h <= a.numHarmonics; h++ {
		centerBin := int(math.Round(exactBin * float64(h)))
		if centerBin >= len(a.mags)-guardBins {
			// Remaining harmonics fall outside the spectrum
			for i := h - 1; i < a.numHarmonics; i++ {
				result.HarmonicLevels[i] = common.SilenceFloorDb
			}
			break
		}

		peakMag := 0.0
		for b := centerBin - guardBins; b <= centerBin+guardBins; b++ {
			if b > 0 && b < len(a.mags) && a.mags[b] > peakMag {
				peakMag = a.mags[b]
			}
		}

		result.HarmonicLevels[h-1] = common.GainToDecibels(peakMag)
		harmonicPower += a.regionPower(centerBin)
	}

	noisePower := totalPower - fundamentalPower - harmonicPower
	if noisePower < 0 {
		noisePower = 0
	}

	if fundamentalPower <= 0 {
		a.publish(result)
		return
	}

	result.THD = 100.0 * math.Sqrt(harmonicPower/fundamentalPower)
	result.THDPlusNoise = 100.0 * math.Sqrt((harmonicPower+noisePower)/fundamentalPower)

	if noisePower > 0 {
		result.SNR = math.Min(maxRatioDb, 10.0*math.Log10(fundamentalPower/noisePower))
	} else {
		result.SNR = maxRatioDb
	}

	if distortionAndNoise := harmonicPower + noisePower; distortionAndNoise > 0 {
		result.SINAD = math.Min(maxRatioDb, 10.0*math.Log10(fundamentalPower/distortionAndNoise))
	} else {
		result.SINAD = maxRatioDb
	}

	result.IsValid = true
	a.publish(result)
}

// regionPower sums bin power across a tone bin and its guard bins
func (a *Analyzer) regionPower(centerBin int) float64 {
	power := 0.0
	for b := centerBin - guardBins; b <= centerBin+guardBins; b++ {
		if b > 0 && b < len(a.mags) {
			power += a.mags[b] * a.mags[b]
		}
	}
	return power
}

// findFundamentalBin searches +/-50% around the expected fundamental for
// the strongest bin and verifies it is a local peak
func (a *Analyzer) findFundamentalBin() int {
	expectedBin := int(spectral.FrequencyToBin(a.expectedFundamental, a.sampleRate, fftSize))
	searchRange := expectedBin / 2

	startBin := max(1, expectedBin-searchRange)
	endBin := min(len(a.mags)-2, expectedBin+searchRange)
	if startBin > endBin {
		return -1
	}

	maxBin := startBin
	maxMag := a.mags[startBin]
	for i := startBin + 1; i <= endBin; i++ {
		if a.mags[i] > maxMag {
			maxMag = a.mags[i]
			maxBin = i
		}
	}

	if maxBin > 0 && maxBin < len(a.mags)-1 &&
		a.mags[maxBin] > a.mags[maxBin-1] && a.mags[maxBin] > a.mags[maxBin+1] {
		return maxBin
	}

	return -1
}

func (a *Analyzer) publish(result Result) {
	a.mu.Lock()
	a.latest = result
	a.mu.Unlock()
}
