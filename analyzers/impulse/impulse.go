package impulse

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/RyanBlaney/sonido-analyze/algorithms/common"
	"github.com/RyanBlaney/sonido-analyze/algorithms/spectral"
	"github.com/RyanBlaney/sonido-analyze/algorithms/windowing"
	"github.com/RyanBlaney/sonido-analyze/logging"
)

// State is the measurement lifecycle phase
type State int32

const (
	StateIdle State = iota
	StateGeneratingSweep
	StateProcessing
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGeneratingSweep:
		return "generating_sweep"
	case StateProcessing:
		return "processing"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

const (
	// FFT size for the frequency response derived from the impulse
	frFFTSize = 16384

	defaultSweepDuration = 3.0
	defaultStartFreq     = 20.0
	defaultEndFreq       = 20000.0
	defaultAmplitude     = 0.5

	// Tail recorded after sweep playback ends, and the impulse response
	// length cap past the deconvolution peak position
	tailSamples  = frFFTSize
	maxIRSeconds = 2.0

	// Schroeder T30 evaluation range
	rt60HighDb = -5.0
	rt60LowDb  = -35.0
)

// Result is an immutable completed measurement
type Result struct {
	ImpulseResponse []float64 `json:"impulse_response"` // normalized to unity peak
	PeakLevel       float64   `json:"peak_level"`       // dB, pre-normalization peak
	RT60            float64   `json:"rt60"`             // seconds, 0 when decay never reaches -35 dB
	Frequencies     []float64 `json:"frequencies"`      // Hz per response bin
	MagnitudeDb     []float64 `json:"magnitude_db"`
	PhaseDegrees    []float64 `json:"phase_degrees"`
	IsValid         bool      `json:"is_valid"`
}

// Measurer measures a system's impulse response with an exponential
// sine sweep.
//
// StartMeasurement arms the sweep; ProcessSample then returns sweep
// samples to play while recording the system's response. When the sweep
// and decay tail have been captured, deconvolution, RT60, and frequency
// response run on a background goroutine and the state moves to
// StateComplete.
type Measurer struct {
	sampleRate    float64
	sweepDuration float64
	startFreq     float64
	endFreq       float64
	amplitude     float64

	state atomic.Int32

	fft          *spectral.FFT
	sweepSignal  []float64
	inverseSweep []float64
	recorded     []float64
	playIndex    int
	recordedLen  atomic.Int64
	captureLen   atomic.Int64

	mu     sync.Mutex
	latest Result

	logger logging.Logger
}

// NewMeasurer creates an impulse response measurer with a 3 second
// 20 Hz to 20 kHz sweep at half amplitude
func NewMeasurer(sampleRate float64) *Measurer {
	if sampleRate <= 0 {
		sampleRate = 44100.0
	}

	return &Measurer{
		sampleRate:    sampleRate,
		sweepDuration: defaultSweepDuration,
		startFreq:     defaultStartFreq,
		endFreq:       defaultEndFreq,
		amplitude:     defaultAmplitude,
		fft:           spectral.NewFFT(),
		logger:        logging.WithFields(logging.Fields{"component": "impulse"}),
	}
}

// Prepare sets the sample rate and aborts any measurement in progress
func (m *Measurer) Prepare(sampleRate float64, blockSize int) {
	if sampleRate > 0 {
		m.sampleRate = sampleRate
	}
	m.Reset()
}

// Reset aborts any measurement and discards the published result
func (m *Measurer) Reset() {
	m.state.Store(int32(StateIdle))
	m.playIndex = 0
	m.recordedLen.Store(0)
	m.captureLen.Store(0)

	m.mu.Lock()
	m.latest = Result{}
	m.mu.Unlock()
}

// State returns the current lifecycle phase
func (m *Measurer) State() State {
	return State(m.state.Load())
}

// Progress returns the capture progress in [0, 1]
func (m *Measurer) Progress() float64 {
	switch m.State() {
	case StateIdle:
		return 0
	case StateProcessing, StateComplete:
		return 1
	}
	total := m.captureLen.Load()
	if total == 0 {
		return 0
	}
	return float64(m.recordedLen.Load()) / float64(total)
}

// SetSweepDuration sets the sweep length in seconds. Ignored while a
// measurement is running
func (m *Measurer) SetSweepDuration(seconds float64) {
	if seconds > 0 && !m.running() {
		m.sweepDuration = seconds
	}
}

// SetFrequencyRange sets the sweep start and end frequencies. Ignored
// while a measurement is running
func (m *Measurer) SetFrequencyRange(startFreq, endFreq float64) {
	if startFreq > 0 && endFreq > startFreq && !m.running() {
		m.startFreq = startFreq
		m.endFreq = endFreq
	}
}

// SetAmplitude sets the sweep playback amplitude. Ignored while a
// measurement is running
func (m *Measurer) SetAmplitude(amplitude float64) {
	if amplitude > 0 && amplitude <= 1 && !m.running() {
		m.amplitude = amplitude
	}
}

func (m *Measurer) running() bool {
	s := m.State()
	return s == StateGeneratingSweep || s == StateProcessing
}

// StartMeasurement generates the sweep and begins capture. It is a
// no-op unless the measurer is idle or holds a completed measurement
func (m *Measurer) StartMeasurement() {
	if m.running() {
		return
	}

	m.sweepSignal = generateSweep(m.sampleRate, m.sweepDuration, m.startFreq, m.endFreq, m.amplitude)
	m.inverseSweep = generateInverseSweep(m.sweepSignal, m.sampleRate, m.sweepDuration, m.startFreq, m.endFreq)
	m.recorded = make([]float64, len(m.sweepSignal)+tailSamples)
	m.playIndex = 0
	m.recordedLen.Store(0)
	m.captureLen.Store(int64(len(m.recorded)))

	m.mu.Lock()
	m.latest = Result{}
	m.mu.Unlock()

	m.logger.Info("impulse measurement started", logging.Fields{
		"duration_s": m.sweepDuration,
		"start_hz":   m.startFreq,
		"end_hz":     m.endFreq,
	})

	m.state.Store(int32(StateGeneratingSweep))
}

// StopMeasurement aborts the current measurement and discards captured
// audio
func (m *Measurer) StopMeasurement() {
	m.state.Store(int32(StateIdle))
	m.playIndex = 0
	m.recordedLen.Store(0)
	m.captureLen.Store(0)
}

// ProcessSample records one input sample and returns the sweep sample
// to play, or silence outside the playback phase
func (m *Measurer) ProcessSample(input float64) float64 {
	if m.State() != StateGeneratingSweep {
		return 0
	}

	pos := int(m.recordedLen.Load())
	if pos < len(m.recorded) {
		m.recorded[pos] = input
		m.recordedLen.Store(int64(pos + 1))
	}

	output := 0.0
	if m.playIndex < len(m.sweepSignal) {
		output = m.sweepSignal[m.playIndex]
		m.playIndex++
	}

	if pos+1 >= len(m.recorded) {
		m.state.Store(int32(StateProcessing))
		captured := m.recorded
		m.recorded = nil
		go m.process(captured)
	}

	return output
}

// ProcessBlock records a block of input samples and fills output with
// the sweep playback
func (m *Measurer) ProcessBlock(input, output []float64) {
	n := min(len(input), len(output))
	for i := 0; i < n; i++ {
		output[i] = m.ProcessSample(input[i])
	}
}

// Latest returns the most recently completed measurement
func (m *Measurer) Latest() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// process deconvolves the captured response against the inverse sweep
// and derives the impulse response, RT60, and frequency response
func (m *Measurer) process(captured []float64) {
	result := m.deconvolve(captured)

	// Publish only if the measurement was not aborted meanwhile
	if m.state.CompareAndSwap(int32(StateProcessing), int32(StateComplete)) {
		m.mu.Lock()
		m.latest = result
		m.mu.Unlock()

		m.logger.Info("impulse measurement complete", logging.Fields{
			"peak_db": result.PeakLevel,
			"rt60_s":  result.RT60,
			"valid":   result.IsValid,
		})
	}
}

func (m *Measurer) deconvolve(captured []float64) Result {
	var result Result

	convLen := len(captured) + len(m.inverseSweep) - 1
	if convLen <= 0 {
		return result
	}
	fftLen := spectral.NextPowerOfTwo(convLen)

	a := make([]complex128, fftLen)
	b := make([]complex128, fftLen)
	for i, s := range captured {
		a[i] = complex(s, 0)
	}
	for i, s := range m.inverseSweep {
		b[i] = complex(s, 0)
	}

	specA := m.fft.ComputeComplex(a)
	specB := m.fft.ComputeComplex(b)
	for i := range specA {
		specA[i] *= specB[i]
	}
	conv := m.fft.ComputeInverseReal(specA)

	irLen := min(convLen, len(m.sweepSignal)+int(maxIRSeconds*m.sampleRate))
	ir := conv[:irLen]

	peak := 0.0
	peakIdx := 0
	for i, s := range ir {
		if abs := math.Abs(s); abs > peak {
			peak = abs
			peakIdx = i
		}
	}
	if peak <= 0 {
		return result
	}

	normalized := make([]float64, irLen)
	for i, s := range ir {
		normalized[i] = s / peak
	}

	result.ImpulseResponse = normalized
	result.PeakLevel = common.GainToDecibels(peak)
	result.RT60 = schroederRT60(normalized[peakIdx:], m.sampleRate)

	result.Frequencies, result.MagnitudeDb, result.PhaseDegrees =
		frequencyResponse(normalized, peakIdx, m.sampleRate, m.fft)

	result.IsValid = true
	return result
}

// schroederRT60 estimates reverberation time by backwards integration
// of the decay energy, extrapolating T30 (-5 dB to -35 dB) to 60 dB
func schroederRT60(decay []float64, sampleRate float64) float64 {
	if len(decay) == 0 {
		return 0
	}

	energy := make([]float64, len(decay))
	sum := 0.0
	for i := len(decay) - 1; i >= 0; i-- {
		sum += decay[i] * decay[i]
		energy[i] = sum
	}
	if energy[0] <= 0 {
		return 0
	}

	idxHigh, idxLow := -1, -1
	for i := range energy {
		db := 10.0 * math.Log10(energy[i]/energy[0]+1e-12)
		if idxHigh < 0 && db <= rt60HighDb {
			idxHigh = i
		}
		if db <= rt60LowDb {
			idxLow = i
			break
		}
	}
	if idxHigh < 0 || idxLow < 0 || idxLow <= idxHigh {
		return 0
	}

	t30 := float64(idxLow-idxHigh) / sampleRate
	return 2.0 * t30
}

// frequencyResponse transforms the impulse response into per-bin
// frequency, magnitude in dB, and phase in degrees. The analysis window
// is centered on the impulse peak so the Hann taper keeps the peak and
// its surrounding ring intact.
func frequencyResponse(ir []float64, peakIdx int, sampleRate float64, fft *spectral.FFT) ([]float64, []float64, []float64) {
	start := max(0, peakIdx-frFFTSize/2)

	buf := make([]float64, frFFTSize)
	copy(buf, ir[start:])

	windowing.NewHann(frFFTSize).ApplyInPlace(buf)
	spectrum := fft.Compute(buf)

	numBins := frFFTSize / 2
	freqs := make([]float64, numBins)
	magDb := make([]float64, numBins)
	phaseDeg := make([]float64, numBins)

	mags := spectral.Magnitude(spectrum, numBins)
	phases := spectral.Phase(spectrum, numBins)
	for i := 0; i < numBins; i++ {
		freqs[i] = spectral.BinToFrequency(float64(i), sampleRate, frFFTSize)
		magDb[i] = common.GainToDecibels(mags[i])
		phaseDeg[i] = phases[i] * 180.0 / math.Pi
	}

	return freqs, magDb, phaseDeg
}
