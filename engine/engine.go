// Package engine bundles the individual analyzers behind a single
// streaming entry point: push audio blocks in, read an aggregate
// snapshot of every analyzer's latest result out.
package engine

import (
	"fmt"
	"sync"

	"github.com/RyanBlaney/sonido-analyze/algorithms/common"
	"github.com/RyanBlaney/sonido-analyze/algorithms/filters"
	"github.com/RyanBlaney/sonido-analyze/analyzers/harmonics"
	"github.com/RyanBlaney/sonido-analyze/analyzers/impulse"
	"github.com/RyanBlaney/sonido-analyze/analyzers/key"
	"github.com/RyanBlaney/sonido-analyze/analyzers/mfcc"
	"github.com/RyanBlaney/sonido-analyze/analyzers/pitch"
	"github.com/RyanBlaney/sonido-analyze/analyzers/tempo"
	"github.com/RyanBlaney/sonido-analyze/analyzers/thd"
	"github.com/RyanBlaney/sonido-analyze/logging"
)

// Config selects which analyzers an Engine runs
type Config struct {
	SampleRate float64 `json:"sample_rate" mapstructure:"sample_rate"`
	Channels   int     `json:"channels" mapstructure:"channels"`

	// DCBlock runs the input through a DC blocking filter before analysis
	DCBlock bool `json:"dc_block" mapstructure:"dc_block"`

	EnablePitch     bool `json:"enable_pitch" mapstructure:"enable_pitch"`
	EnableTempo     bool `json:"enable_tempo" mapstructure:"enable_tempo"`
	EnableKey       bool `json:"enable_key" mapstructure:"enable_key"`
	EnableHarmonics bool `json:"enable_harmonics" mapstructure:"enable_harmonics"`
	EnableMFCC      bool `json:"enable_mfcc" mapstructure:"enable_mfcc"`
	EnableTHD       bool `json:"enable_thd" mapstructure:"enable_thd"`
}

// DefaultConfig returns a config with every analyzer enabled at CD
// sample rate, mono
func DefaultConfig() Config {
	return Config{
		SampleRate:      44100.0,
		Channels:        1,
		DCBlock:         true,
		EnablePitch:     true,
		EnableTempo:     true,
		EnableKey:       true,
		EnableHarmonics: true,
		EnableMFCC:      true,
		EnableTHD:       true,
	}
}

// Snapshot aggregates the latest result of every enabled analyzer
type Snapshot struct {
	Pitch        pitch.Result     `json:"pitch"`
	Tempo        tempo.Result     `json:"tempo"`
	Key          key.Result       `json:"key"`
	Harmonics    harmonics.Result `json:"harmonics"`
	MFCC         mfcc.Result      `json:"mfcc"`
	THD          thd.Result       `json:"thd"`
	Impulse      impulse.Result   `json:"impulse"`
	ImpulseState string           `json:"impulse_state"`
}

// Engine fans incoming audio out to the enabled analyzers.
//
// The analyzers are exported so callers can tune them directly
// (frequency ranges, BPM limits, expected THD fundamental) between
// Prepare and the first ProcessBlock. The impulse measurer is driven
// separately through ProcessImpulseBlock since it produces output.
type Engine struct {
	config Config

	Pitch     *pitch.Detector
	Tempo     *tempo.Detector
	Key       *key.Detector
	Harmonics *harmonics.Analyzer
	MFCC      *mfcc.Analyzer
	THD       *thd.Analyzer
	Impulse   *impulse.Measurer

	monoBuf   []float64
	dcBlocker *filters.DCBlocker

	mu          sync.Mutex
	subscribers []chan Snapshot

	logger logging.Logger
}

// New creates an engine with the given config
func New(config Config) (*Engine, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %f", config.SampleRate)
	}
	if config.Channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", config.Channels)
	}

	e := &Engine{
		config:  config,
		Impulse: impulse.NewMeasurer(config.SampleRate),
		logger:  logging.WithFields(logging.Fields{"component": "engine"}),
	}

	if config.DCBlock {
		e.dcBlocker = filters.NewDCBlocker()
	}

	if config.EnablePitch {
		e.Pitch = pitch.NewDetector(config.SampleRate)
	}
	if config.EnableTempo {
		e.Tempo = tempo.NewDetector(config.SampleRate)
	}
	if config.EnableKey {
		e.Key = key.NewDetector(config.SampleRate)
	}
	if config.EnableHarmonics {
		e.Harmonics = harmonics.NewAnalyzer(config.SampleRate)
	}
	if config.EnableMFCC {
		e.MFCC = mfcc.NewAnalyzer(config.SampleRate)
	}
	if config.EnableTHD {
		e.THD = thd.NewAnalyzer(config.SampleRate)
	}

	return e, nil
}

// Prepare propagates a new sample rate and block size to every
// analyzer and resets their state
func (e *Engine) Prepare(sampleRate float64, blockSize int) {
	if sampleRate > 0 {
		e.config.SampleRate = sampleRate
	}

	e.logger.Debug("preparing analyzers", logging.Fields{
		"sample_rate": e.config.SampleRate,
		"block_size":  blockSize,
	})

	if e.dcBlocker != nil {
		e.dcBlocker.Reset()
	}
	if e.Pitch != nil {
		e.Pitch.Prepare(sampleRate, blockSize)
	}
	if e.Tempo != nil {
		e.Tempo.Prepare(sampleRate, blockSize)
	}
	if e.Key != nil {
		e.Key.Prepare(sampleRate, blockSize)
	}
	if e.Harmonics != nil {
		e.Harmonics.Prepare(sampleRate, blockSize)
	}
	if e.MFCC != nil {
		e.MFCC.Prepare(sampleRate, blockSize)
	}
	if e.THD != nil {
		e.THD.Prepare(sampleRate, blockSize)
	}
	e.Impulse.Prepare(sampleRate, blockSize)
}

// Reset clears all analyzer state without changing configuration
func (e *Engine) Reset() {
	if e.dcBlocker != nil {
		e.dcBlocker.Reset()
	}
	if e.Pitch != nil {
		e.Pitch.Reset()
	}
	if e.Tempo != nil {
		e.Tempo.Reset()
	}
	if e.Key != nil {
		e.Key.Reset()
	}
	if e.Harmonics != nil {
		e.Harmonics.Reset()
	}
	if e.MFCC != nil {
		e.MFCC.Reset()
	}
	if e.THD != nil {
		e.THD.Reset()
	}
	e.Impulse.Reset()
}

// SampleRate returns the rate the engine was prepared with
func (e *Engine) SampleRate() float64 { return e.config.SampleRate }

// ProcessBlock feeds one block of interleaved samples to every enabled
// analyzer, then publishes a snapshot to subscribers
func (e *Engine) ProcessBlock(interleaved []float64) {
	channels := e.config.Channels
	frames := len(interleaved) / channels
	if frames == 0 {
		return
	}

	if cap(e.monoBuf) < frames {
		e.monoBuf = make([]float64, frames)
	}
	mono := e.monoBuf[:frames]
	common.MixToMono(mono, interleaved, channels)

	if e.dcBlocker != nil {
		e.dcBlocker.ProcessInPlace(mono)
	}

	if e.Pitch != nil {
		e.Pitch.ProcessBlock(mono, 1)
	}
	if e.Tempo != nil {
		e.Tempo.ProcessBlock(mono, 1)
	}
	if e.Key != nil {
		e.Key.ProcessBlock(mono, 1)
	}
	if e.THD != nil {
		e.THD.ProcessBlock(mono, 1)
	}
	if e.Harmonics != nil {
		for _, s := range mono {
			e.Harmonics.PushSample(s)
		}
	}
	if e.MFCC != nil {
		for _, s := range mono {
			e.MFCC.PushSample(s)
		}
	}

	e.publish()
}

// ProcessImpulseBlock drives the impulse measurer: input is the
// captured loop-back audio, output receives the sweep to play
func (e *Engine) ProcessImpulseBlock(input, output []float64) {
	e.Impulse.ProcessBlock(input, output)
}

// Snapshot assembles the latest result from every enabled analyzer
func (e *Engine) Snapshot() Snapshot {
	var s Snapshot
	if e.Pitch != nil {
		s.Pitch = e.Pitch.Latest()
	}
	if e.Tempo != nil {
		s.Tempo = e.Tempo.Latest()
	}
	if e.Key != nil {
		s.Key = e.Key.Latest()
	}
	if e.Harmonics != nil {
		s.Harmonics = e.Harmonics.Latest()
	}
	if e.MFCC != nil {
		s.MFCC = e.MFCC.Latest()
	}
	if e.THD != nil {
		s.THD = e.THD.Latest()
	}
	s.Impulse = e.Impulse.Latest()
	s.ImpulseState = e.Impulse.State().String()
	return s
}

// Subscribe returns a channel receiving a snapshot after each processed
// block. Slow receivers miss snapshots rather than stalling processing
func (e *Engine) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	e.mu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.mu.Unlock()
	return ch
}

func (e *Engine) publish() {
	e.mu.Lock()
	subs := e.subscribers
	e.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	snapshot := e.Snapshot()
	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
