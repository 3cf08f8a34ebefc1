package key

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/sonido-analyze/algorithms/common"
	"github.com/RyanBlaney/sonido-analyze/algorithms/spectral"
	"github.com/RyanBlaney/sonido-analyze/algorithms/windowing"
)

const (
	fftSize = 2048

	// Chroma folding considers roughly A0 through B7
	chromaMinFreq = 30.0
	chromaMaxFreq = 4000.0

	// Exponential smoothing of the 24 key correlations
	smoothingFactor = 0.15

	// Accumulated chroma decays each frame so the key can follow the music
	chromaDecay = 0.95

	// Minimum smoothed correlation before a key is reported
	detectionFloor = 0.3
)

// Key identifies one of the 24 musical keys: 0-11 are the major keys
// C..B, 12-23 the minor keys C..B. KeyUnknown means nothing detected yet.
type Key int

const KeyUnknown Key = -1

// IsMajor reports whether the key is a major key
func (k Key) IsMajor() bool {
	return k >= 0 && k < 12
}

// Root returns the pitch class of the key's root (0 = C)
func (k Key) Root() int {
	if k < 0 {
		return -1
	}
	return int(k) % 12
}

// String returns the key name, e.g. "C Major" or "A Minor"
func (k Key) String() string {
	if k < 0 || k > 23 {
		return "Unknown"
	}

	name := common.PitchClassName(k.Root())
	if k.IsMajor() {
		return name + " Major"
	}
	return name + " Minor"
}

// Result is the immutable key snapshot published after each chroma frame
type Result struct {
	Key        Key     `json:"key"`
	KeyName    string  `json:"key_name"`
	Confidence float64 `json:"confidence"`
}

// Krumhansl-Schmuckler key profiles, root at index 0
var (
	majorProfile = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minorProfile = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// Detector estimates the musical key from accumulated chroma features.
//
// Reference: Krumhansl, C.L. (1990). "Cognitive Foundations of Musical
// Pitch"
//
// Each 2048-sample window is folded into a 12-bin chroma vector
// (magnitude-squared weighting, per-frame max normalization), accumulated
// with decay across frames, and correlated against the 24 rotations of
// the Krumhansl-Schmuckler major/minor profiles. Correlations are
// exponentially smoothed; the detected key is their argmax, with ties
// resolving to the lowest key ordinal.
type Detector struct {
	sampleRate float64
	blockSize  int

	transform *spectral.Transform

	inputBuffer []float64
	inputPos    int

	chromaFeatures    [12]float64
	accumulatedChroma [12]float64

	keyCorrelations      [24]float64
	smoothedCorrelations [24]float64

	rotated [12]float64
	profile [12]float64

	detectedKey Key
	confidence  float64

	mu     sync.Mutex
	latest Result
}

// NewDetector creates a key detector for the given sample rate
func NewDetector(sampleRate float64) *Detector {
	transform, _ := spectral.NewTransform(fftSize, windowing.NewHann(fftSize))

	d := &Detector{
		sampleRate:  sampleRate,
		transform:   transform,
		inputBuffer: make([]float64, fftSize),
		detectedKey: KeyUnknown,
	}

	if d.sampleRate <= 0 {
		d.sampleRate = 44100.0
	}
	d.latest = Result{Key: KeyUnknown, KeyName: KeyUnknown.String()}

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

// Reset clears accumulated chroma and the published key
func (d *Detector) Reset() {
	for i := range d.inputBuffer {
		d.inputBuffer[i] = 0
	}
	d.chromaFeatures = [12]float64{}
	d.accumulatedChroma = [12]float64{}
	d.keyCorrelations = [24]float64{}
	d.smoothedCorrelations = [24]float64{}
	d.inputPos = 0
	d.detectedKey = KeyUnknown
	d.confidence = 0

	d.mu.Lock()
	d.latest = Result{Key: KeyUnknown, KeyName: KeyUnknown.String()}
	d.mu.Unlock()
}

// ProcessBlock mixes interleaved frames to mono and accumulates them into
// chroma analysis windows
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

		d.inputBuffer[d.inputPos] = sample
		d.inputPos++

		if d.inputPos >= fftSize {
			d.inputPos = 0
			d.processFrame()
		}
	}
}

// processFrame folds one window into chroma and re-runs key detection
func (d *Detector) processFrame() {
	frame := d.transform.Forward(d.inputBuffer)

	var frameChroma [12]float64

	minBin := int(chromaMinFreq * fftSize / d.sampleRate)
	maxBin := int(chromaMaxFreq * fftSize / d.sampleRate)
	if maxBin > fftSize/2-1 {
		maxBin = fftSize/2 - 1
	}

	for bin := minBin; bin <= maxBin; bin++ {
		magnitude := frame.Magnitude[bin]
		freq := float64(bin) * d.sampleRate / fftSize
		if freq <= 0 {
			continue
		}

		// Map bin frequency to a pitch class, A4 = 440 Hz reference
		noteNum := 12.0*math.Log2(freq/440.0) + 69.0
		pitchClass := ((int(math.Round(noteNum)) % 12) + 12) % 12

		// Magnitude squared emphasizes prominent tones
		frameChroma[pitchClass] += magnitude * magnitude
	}

	maxChroma := 0.0
	for _, c := range frameChroma {
		if c > maxChroma {
			maxChroma = c
		}
	}
	if maxChroma > 0 {
		for i := range frameChroma {
			frameChroma[i] /= maxChroma
		}
	}

	for i := range frameChroma {
		d.accumulatedChroma[i] += frameChroma[i]

		// Display chroma follows the input faster than the key estimate
		d.chromaFeatures[i] = d.chromaFeatures[i]*0.7 + frameChroma[i]*0.3
	}

	sum := 0.0
	for _, c := range d.accumulatedChroma {
		sum += c
	}

	if sum > 0 {
		var normalized [12]float64
		for i := range normalized {
			normalized[i] = d.accumulatedChroma[i] / sum
		}
		d.detectKey(normalized)
	}

	for i := range d.accumulatedChroma {
		d.accumulatedChroma[i] *= chromaDecay
	}

	d.publish()
}

// detectKey correlates the normalized chroma against all 24 key profiles
// and updates the smoothed detection state
func (d *Detector) detectKey(chroma [12]float64) {
	maxCorrelation := -1.0
	bestKey := -1

	for k := 0; k < 24; k++ {
		isMajor := k < 12
		root := k % 12

		for i := 0; i < 12; i++ {
			d.rotated[i] = chroma[(i+root)%12]
			if isMajor {
				d.profile[i] = majorProfile[i]
			} else {
				d.profile[i] = minorProfile[i]
			}
		}

		correlation := stat.Correlation(d.rotated[:], d.profile[:], nil)
		if math.IsNaN(correlation) {
			correlation = 0
		}

		d.smoothedCorrelations[k] = d.smoothedCorrelations[k]*(1.0-smoothingFactor) +
			correlation*smoothingFactor
		d.keyCorrelations[k] = d.smoothedCorrelations[k]

		// Strict comparison: ties resolve to the lowest key ordinal
		if d.smoothedCorrelations[k] > maxCorrelation {
			maxCorrelation = d.smoothedCorrelations[k]
			bestKey = k
		}
	}

	if maxCorrelation > detectionFloor {
		d.detectedKey = Key(bestKey)
		d.confidence = math.Max(0, math.Min(1, (maxCorrelation+1.0)/2.0))
	} else {
		d.confidence = 0
	}
}

func (d *Detector) publish() {
	d.mu.Lock()
	d.latest = Result{
		Key:        d.detectedKey,
		KeyName:    d.detectedKey.String(),
		Confidence: d.confidence,
	}
	d.mu.Unlock()
}

// Latest returns the most recently published key snapshot
func (d *Detector) Latest() Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest
}

// Chroma returns a copy of the 12-bin display chroma (C through B).
// Diagnostic output for visualization.
func (d *Detector) Chroma() [12]float64 {
	return d.chromaFeatures
}

// KeyCorrelations returns a copy of the 24 smoothed key correlations.
// Diagnostic output for visualization.
func (d *Detector) KeyCorrelations() [24]float64 {
	return d.keyCorrelations
}
