package tempo

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/RyanBlaney/sonido-analyze/algorithms/spectral"
	"github.com/RyanBlaney/sonido-analyze/algorithms/windowing"
)

// Analysis constants. The onset history covers roughly six seconds at
// 44.1 kHz with a 512-sample hop.
const (
	fftSize         = 1024
	onsetBufferSize = 512

	beatThreshold      = 1.2
	bpmSmoothingFactor = 0.3
	minPeakCorrelation = 0.1

	// Tempo/BPM clamping ranges for the setters
	minBPMFloor   = 30.0
	minBPMCeiling = 200.0
	maxBPMFloor   = 60.0
	maxBPMCeiling = 300.0
)

// Result is the immutable tempo snapshot published after each onset frame
type Result struct {
	BPM          float64 `json:"bpm"`           // Smoothed tempo estimate (0 until detected)
	Confidence   float64 `json:"confidence"`    // Autocorrelation peak strength (0-1)
	BeatDetected bool    `json:"beat_detected"` // True for the frame a beat lands on
}

// Detector estimates tempo from spectral-flux onset strength.
//
// Each 512-sample hop slides a 1024-sample window, takes its magnitude
// spectrum, and derives the half-wave rectified spectral flux against the
// previous frame. Tempo comes from the normalized autocorrelation of the
// onset history restricted to the configured BPM range, with a mild
// preference for tempos near 120 BPM, blended into a smoothed estimate.
type Detector struct {
	sampleRate float64
	blockSize  int
	hopSize    int

	transform *spectral.Transform

	window       []float64
	hopBuf       []float64
	hopFill      int
	prevSpectrum []float64

	onsetStrength []float64
	onsetWritePos int
	onsetOrdered  []float64
	autocorr      []float64

	minBPM float64
	maxBPM float64

	smoothedBPM float64
	currentBPM  float64
	confidence  float64

	beatDetected         bool
	lastOnsetValue       float64
	samplesSinceLastBeat int

	updateCounter int

	mu     sync.Mutex
	latest Result
}

// NewDetector creates a tempo detector for the given sample rate
func NewDetector(sampleRate float64) *Detector {
	transform, _ := spectral.NewTransform(fftSize, windowing.NewHann(fftSize))

	d := &Detector{
		sampleRate:    sampleRate,
		hopSize:       fftSize / 2,
		transform:     transform,
		window:        make([]float64, fftSize),
		hopBuf:        make([]float64, fftSize/2),
		prevSpectrum:  make([]float64, fftSize/2),
		onsetStrength: make([]float64, onsetBufferSize),
		onsetOrdered:  make([]float64, onsetBufferSize),
		autocorr:      make([]float64, onsetBufferSize/2),
		minBPM:        60.0,
		maxBPM:        200.0,
	}

	if d.sampleRate <= 0 {
		d.sampleRate = 44100.0
	}

	return d
}

// Prepare sets the sample rate and block size and clears all state
func (d *Detector) Prepare(sampleRate float64, blockSize int) {
	if sampleRate > 0 {
		d.sampleRate = sampleRate
	}
	d.blockSize = blockSize
	d.Reset()
}

// Reset clears accumulated onset history and the published estimate
func (d *Detector) Reset() {
	for i := range d.window {
		d.window[i] = 0
	}
	for i := range d.prevSpectrum {
		d.prevSpectrum[i] = 0
	}
	for i := range d.onsetStrength {
		d.onsetStrength[i] = 0
	}
	for i := range d.autocorr {
		d.autocorr[i] = 0
	}

	d.hopFill = 0
	d.onsetWritePos = 0
	d.smoothedBPM = 0
	d.currentBPM = 0
	d.confidence = 0
	d.beatDetected = false
	d.lastOnsetValue = 0
	d.samplesSinceLastBeat = 0
	d.updateCounter = 0

	d.mu.Lock()
	d.latest = Result{}
	d.mu.Unlock()
}

// SetMinBPM clamps and sets the lower tempo bound
func (d *Detector) SetMinBPM(bpm float64) {
	d.minBPM = math.Max(minBPMFloor, math.Min(minBPMCeiling, bpm))
}

// SetMaxBPM clamps and sets the upper tempo bound
func (d *Detector) SetMaxBPM(bpm float64) {
	d.maxBPM = math.Max(maxBPMFloor, math.Min(maxBPMCeiling, bpm))
}

// MinBPM returns the lower tempo bound
func (d *Detector) MinBPM() float64 { return d.minBPM }

// MaxBPM returns the upper tempo bound
func (d *Detector) MaxBPM() float64 { return d.maxBPM }

// ProcessBlock mixes interleaved frames to mono and accumulates them into
// hop-sized onset analysis frames
func (d *Detector) ProcessBlock(interleaved []float64, channels int) {
	if channels <= 0 {
		return
	}

	frames := len(interleaved) / channels
	for i := 0; i < frames; i++ {
		sample := interleaved[i*channels]
		for ch := 1; ch < channels; ch++ {
			sample += interleaved[i*channels+ch]
		}
		sample /= float64(channels)

		d.hopBuf[d.hopFill] = sample
		d.hopFill++
		d.samplesSinceLastBeat++

		if d.hopFill >= d.hopSize {
			d.hopFill = 0
			d.processHop()
		}
	}
}

// processHop slides the analysis window by one hop and updates onset
// strength, beat state, and (every second frame) the tempo estimate
func (d *Detector) processHop() {
	copy(d.window, d.window[d.hopSize:])
	copy(d.window[fftSize-d.hopSize:], d.hopBuf)

	frame := d.transform.Forward(d.window)

	// Half-wave rectified spectral flux
	flux := 0.0
	for i := range d.prevSpectrum {
		diff := frame.Magnitude[i] - d.prevSpectrum[i]
		if diff > 0 {
			flux += diff
		}
	}
	flux /= float64(fftSize / 2)

	copy(d.prevSpectrum, frame.Magnitude[:len(d.prevSpectrum)])

	d.onsetStrength[d.onsetWritePos] = flux
	d.onsetWritePos = (d.onsetWritePos + 1) % onsetBufferSize

	d.detectBeat(flux)

	d.updateCounter++
	if d.updateCounter >= 2 {
		d.updateCounter = 0
		d.computeAutocorrelation()

		if detected := d.bpmFromAutocorrelation(); detected > 0 {
			if d.smoothedBPM == 0 {
				d.smoothedBPM = detected
			} else {
				d.smoothedBPM = d.smoothedBPM*(1.0-bpmSmoothingFactor) + detected*bpmSmoothingFactor
			}
			d.currentBPM = math.Round(d.smoothedBPM)
		}
	}

	d.publish()
}

// detectBeat compares the current onset against an adaptive threshold
// built from the last eight frames, with a refractory period derived from
// the maximum BPM
func (d *Detector) detectBeat(currentOnset float64) {
	currentIdx := (d.onsetWritePos - 1 + onsetBufferSize) % onsetBufferSize

	localAvg := 0.0
	const avgWindow = 8
	for i := 0; i < avgWindow; i++ {
		idx := (currentIdx - i + onsetBufferSize) % onsetBufferSize
		localAvg += d.onsetStrength[idx]
	}
	localAvg /= avgWindow

	threshold := localAvg * beatThreshold
	minBeatInterval := d.sampleRate * 60.0 / d.maxBPM * 0.8

	if currentOnset > threshold && currentOnset > d.lastOnsetValue &&
		float64(d.samplesSinceLastBeat) > minBeatInterval {
		d.beatDetected = true
		d.samplesSinceLastBeat = 0
	} else {
		d.beatDetected = false
	}

	d.lastOnsetValue = currentOnset
}

// computeAutocorrelation fills the normalized, mean-removed
// autocorrelation of the onset history
func (d *Detector) computeAutocorrelation() {
	for i := range d.onsetOrdered {
		d.onsetOrdered[i] = d.onsetStrength[(d.onsetWritePos+i)%onsetBufferSize]
	}

	n := onsetBufferSize
	mean := floats.Sum(d.onsetOrdered) / float64(n)

	for lag := range d.autocorr {
		sum := 0.0
		norm1 := 0.0
		norm2 := 0.0

		for i := 0; i < n-lag; i++ {
			v1 := d.onsetOrdered[i] - mean
			v2 := d.onsetOrdered[i+lag] - mean
			sum += v1 * v2
			norm1 += v1 * v1
			norm2 += v2 * v2
		}

		if norm1 > 0 && norm2 > 0 {
			d.autocorr[lag] = sum / math.Sqrt(norm1*norm2)
		} else {
			d.autocorr[lag] = 0
		}
	}
}

// bpmFromAutocorrelation picks the strongest lag in the configured BPM
// range and converts it to BPM. Returns 0 when no usable peak exists.
func (d *Detector) bpmFromAutocorrelation() float64 {
	frameRate := d.sampleRate / float64(d.hopSize)

	minLag := int(frameRate * 60.0 / d.maxBPM)
	maxLag := int(frameRate * 60.0 / d.minBPM)

	if minLag < 1 {
		minLag = 1
	}
	if maxLag > len(d.autocorr)-1 {
		maxLag = len(d.autocorr) - 1
	}
	if minLag >= maxLag {
		return 0
	}

	maxCorr := 0.0
	bestLag := 0

	for lag := minLag; lag <= maxLag; lag++ {
		bpm := frameRate * 60.0 / float64(lag)

		// Prefer musically common tempos around 120 BPM
		weight := 1.0 / (1.0 + math.Abs(bpm-120.0)*0.01)

		if corr := d.autocorr[lag] * weight; corr > maxCorr {
			maxCorr = corr
			bestLag = lag
		}
	}

	if bestLag > 0 && maxCorr > minPeakCorrelation {
		d.confidence = math.Min(1.0, maxCorr)
		return frameRate * 60.0 / float64(bestLag)
	}

	d.confidence = 0
	return 0
}

func (d *Detector) publish() {
	d.mu.Lock()
	d.latest = Result{
		BPM:          d.currentBPM,
		Confidence:   d.confidence,
		BeatDetected: d.beatDetected,
	}
	d.mu.Unlock()
}

// Latest returns the most recently published tempo snapshot
func (d *Detector) Latest() Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest
}

// OnsetStrength returns a copy of the onset-strength history, oldest
// first. Diagnostic output for visualization.
func (d *Detector) OnsetStrength() []float64 {
	out := make([]float64, onsetBufferSize)
	for i := range out {
		out[i] = d.onsetStrength[(d.onsetWritePos+i)%onsetBufferSize]
	}
	return out
}

// Autocorrelation returns a copy of the latest onset autocorrelation.
// Diagnostic output for visualization.
func (d *Detector) Autocorrelation() []float64 {
	out := make([]float64, len(d.autocorr))
	copy(out, d.autocorr)
	return out
}
