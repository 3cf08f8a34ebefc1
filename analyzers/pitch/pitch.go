package pitch

import (
	"math"
	"sync"

	"github.com/RyanBlaney/sonido-analyze/algorithms/common"
)

// Default analysis parameters. The ring buffer holds bufferSize samples
// and a detection pass runs every bufferSize/8 new samples.
const (
	DefaultBufferSize = 4096
	DefaultThreshold  = 0.4
	DefaultMinFreq    = 50.0
	DefaultMaxFreq    = 2000.0

	// Detection runs only when the buffer peak exceeds this level
	levelGate = 0.001

	// CMND fallback acceptance when nothing falls below the threshold
	fallbackCeiling = 0.6
)

// Result is the immutable pitch snapshot published after each analysis
// window. It is copied out whole on read.
type Result struct {
	Frequency  float64 `json:"frequency"`  // Detected frequency in Hz (0 when unpitched)
	Confidence float64 `json:"confidence"` // Confidence score (0-1)
	NoteName   string  `json:"note_name"`  // Musical note name, e.g. "A4"
	MIDINote   int     `json:"midi_note"`  // MIDI note number (-1 when unpitched)
	Cents      float64 `json:"cents"`      // Cents deviation from the nearest note
	IsPitched  bool    `json:"is_pitched"` // Whether a valid pitch was detected
}

func emptyResult() Result {
	return Result{MIDINote: -1, NoteName: "---"}
}

// Params contains configuration for the YIN detector
type Params struct {
	SampleRate   float64 `json:"sample_rate"`
	MinFrequency float64 `json:"min_frequency"` // Lowest detectable pitch (Hz)
	MaxFrequency float64 `json:"max_frequency"` // Highest detectable pitch (Hz)
	Threshold    float64 `json:"threshold"`     // YIN absolute threshold
	BufferSize   int     `json:"buffer_size"`   // Ring buffer length in samples
}

// DefaultParams returns the default YIN configuration
func DefaultParams(sampleRate float64) Params {
	return Params{
		SampleRate:   sampleRate,
		MinFrequency: DefaultMinFreq,
		MaxFrequency: DefaultMaxFreq,
		Threshold:    DefaultThreshold,
		BufferSize:   DefaultBufferSize,
	}
}

// Detector implements streaming YIN pitch detection.
//
// Reference: de Cheveigné, A., Kawahara, H. (2002). "YIN, a fundamental
// frequency estimator for speech and music"
//
// Samples are pushed one at a time into a fixed ring buffer; every
// bufferSize/8 new samples the buffer is unwrapped and the YIN pipeline
// runs: squared-difference function, cumulative-mean-normalized
// difference, absolute-threshold lag search, then parabolic refinement.
// All working buffers are sized at construction so the push path does not
// allocate.
type Detector struct {
	params Params

	minLag int
	maxLag int

	input         *common.CircularBuffer
	newSamples    int
	processBuf    []float64
	yinBuf        []float64
	samplesPerRun int

	mu     sync.Mutex
	latest Result
}

// NewDetector creates a YIN detector with default parameters
func NewDetector(sampleRate float64) *Detector {
	return NewDetectorWithParams(DefaultParams(sampleRate))
}

// NewDetectorWithParams creates a YIN detector with custom parameters
func NewDetectorWithParams(params Params) *Detector {
	if params.SampleRate <= 0 {
		params.SampleRate = 44100.0
	}
	if params.BufferSize <= 0 {
		params.BufferSize = DefaultBufferSize
	}
	if params.Threshold <= 0 {
		params.Threshold = DefaultThreshold
	}
	if params.MinFrequency <= 0 {
		params.MinFrequency = DefaultMinFreq
	}
	if params.MaxFrequency <= params.MinFrequency {
		params.MaxFrequency = DefaultMaxFreq
	}

	d := &Detector{
		params:        params,
		input:         common.NewCircularBuffer(params.BufferSize),
		processBuf:    make([]float64, params.BufferSize),
		yinBuf:        make([]float64, params.BufferSize/2),
		samplesPerRun: params.BufferSize / 8,
		latest:        emptyResult(),
	}
	d.updateLagRange()

	return d
}

// Prepare sets the sample rate and clears accumulated state. The block
// size is accepted for interface symmetry; the detector consumes samples
// one at a time.
func (d *Detector) Prepare(sampleRate float64, blockSize int) {
	if sampleRate > 0 {
		d.params.SampleRate = sampleRate
	}
	d.updateLagRange()
	d.Reset()
}

// Reset discards buffered samples and the published result
func (d *Detector) Reset() {
	d.input.Clear()
	d.newSamples = 0

	d.mu.Lock()
	d.latest = emptyResult()
	d.mu.Unlock()
}

// SetMinFrequency updates the lowest detectable pitch. Takes effect on
// the next analysis window.
func (d *Detector) SetMinFrequency(freq float64) {
	if freq > 0 {
		d.params.MinFrequency = freq
		d.updateLagRange()
	}
}

// SetMaxFrequency updates the highest detectable pitch
func (d *Detector) SetMaxFrequency(freq float64) {
	if freq > 0 {
		d.params.MaxFrequency = freq
		d.updateLagRange()
	}
}

// SetThreshold updates the YIN absolute threshold
func (d *Detector) SetThreshold(threshold float64) {
	if threshold > 0 {
		d.params.Threshold = threshold
	}
}

// Params returns the current configuration
func (d *Detector) Params() Params {
	return d.params
}

// updateLagRange recomputes the lag search bounds from the frequency
// range. It does not retroactively alter buffered samples.
func (d *Detector) updateLagRange() {
	d.minLag = int(d.params.SampleRate / d.params.MaxFrequency)
	d.maxLag = int(d.params.SampleRate / d.params.MinFrequency)

	if d.maxLag > d.params.BufferSize/2-1 {
		d.maxLag = d.params.BufferSize/2 - 1
	}
	if d.minLag < 2 {
		d.minLag = 2
	}
}

// PushSample accumulates one sample into the ring buffer and runs a
// detection pass every bufferSize/8 samples
func (d *Detector) PushSample(sample float64) {
	d.input.Push(sample)
	d.newSamples++

	if d.newSamples < d.samplesPerRun {
		return
	}
	d.newSamples = 0

	d.input.CopyOrdered(d.processBuf)

	maxLevel := 0.0
	for _, s := range d.processBuf {
		if a := math.Abs(s); a > maxLevel {
			maxLevel = a
		}
	}

	if maxLevel > levelGate {
		d.DetectPitch(d.processBuf)
	} else {
		// No signal, clear the published pitch
		d.mu.Lock()
		d.latest = emptyResult()
		d.mu.Unlock()
	}
}

// ProcessBlock pushes a block of interleaved samples, mixed to mono
func (d *Detector) ProcessBlock(interleaved []float64, channels int) {
	if channels <= 1 {
		for _, s := range interleaved {
			d.PushSample(s)
		}
		return
	}

	frames := len(interleaved) / channels
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		d.PushSample(sum / float64(channels))
	}
}

// Latest returns the most recently published pitch snapshot
func (d *Detector) Latest() Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest
}

// DetectPitch runs the YIN pipeline on a sample block and publishes the
// result. The block must cover at least two maximum lags, otherwise the
// previous snapshot is kept and an unpitched result is returned.
func (d *Detector) DetectPitch(samples []float64) Result {
	result := emptyResult()

	if len(samples) < d.maxLag*2 {
		return result
	}

	windowSize := len(samples) / 2
	limit := min(windowSize, d.maxLag+2, len(d.yinBuf))
	yin := d.yinBuf[:limit]

	// Squared-difference function
	yin[0] = 0
	for tau := 1; tau < limit; tau++ {
		sum := 0.0
		for i := 0; i < windowSize; i++ {
			delta := samples[i] - samples[i+tau]
			sum += delta * delta
		}
		yin[tau] = sum
	}

	// Cumulative mean normalized difference
	yin[0] = 1.0
	runningSum := 0.0
	for tau := 1; tau < limit; tau++ {
		runningSum += yin[tau]
		if runningSum == 0 {
			yin[tau] = 1.0
		} else {
			yin[tau] = yin[tau] * float64(tau) / runningSum
		}
	}

	tauEstimate := d.absoluteThreshold(yin)
	if tauEstimate < 0 {
		d.publish(result)
		return result
	}

	betterTau := common.ParabolicPeakBin(yin, tauEstimate)
	frequency := d.params.SampleRate / betterTau

	if frequency < d.params.MinFrequency || frequency > d.params.MaxFrequency {
		d.publish(result)
		return result
	}

	confidence := 1.0 - yin[tauEstimate]
	confidence = math.Max(0, math.Min(1, confidence))

	result.Frequency = frequency
	result.Confidence = confidence
	result.IsPitched = true
	result.MIDINote = common.FrequencyToMIDINote(frequency)
	result.NoteName = common.FrequencyToNoteName(frequency)
	result.Cents = common.CentsDeviation(frequency, result.MIDINote)

	d.publish(result)
	return result
}

// absoluteThreshold finds the smallest lag whose normalized difference
// drops below the threshold, descending to the local minimum. When no lag
// qualifies, the global minimum is accepted if it is still reasonably
// periodic; otherwise -1 signals "unpitched".
func (d *Detector) absoluteThreshold(yin []float64) int {
	maxLag := min(d.maxLag, len(yin)-1)

	bestTau := -1
	bestValue := d.params.Threshold

	for tau := d.minLag; tau < maxLag; tau++ {
		if yin[tau] < d.params.Threshold {
			for tau+1 < maxLag && yin[tau+1] < yin[tau] {
				tau++
			}
			return tau
		}
		if yin[tau] < bestValue {
			bestValue = yin[tau]
			bestTau = tau
		}
	}

	if bestTau > 0 && bestValue < fallbackCeiling {
		tau := bestTau
		for tau+1 < maxLag && yin[tau+1] < yin[tau] {
			tau++
		}
		return tau
	}

	return -1
}

func (d *Detector) publish(result Result) {
	d.mu.Lock()
	d.latest = result
	d.mu.Unlock()
}
