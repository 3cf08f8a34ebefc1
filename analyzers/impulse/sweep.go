package impulse

import "math"

// Fade applied to both ends of the sweep to avoid clicks
const sweepFadeSeconds = 0.01

// generateSweep renders an exponential sine sweep (Farina sweep) from
// startFreq to endFreq.
//
// The instantaneous phase is K*(e^(t/L) - 1) with L = T/ln(f2/f1) and
// K = 2*pi*f1*L, so the instantaneous frequency rises exponentially
// from f1 to f2 over the sweep duration. Short raised-cosine fades are
// applied at both ends.
func generateSweep(sampleRate, duration, startFreq, endFreq, amplitude float64) []float64 {
	numSamples := int(duration * sampleRate)
	if numSamples <= 0 {
		return nil
	}

	w1 := 2.0 * math.Pi * startFreq
	ratio := math.Log(endFreq / startFreq)
	l := duration / ratio
	k := w1 * l

	sweep := make([]float64, numSamples)
	for i := range sweep {
		t := float64(i) / sampleRate
		phase := k * (math.Exp(t/l) - 1.0)
		sweep[i] = amplitude * math.Sin(phase)
	}

	fadeSamples := int(sweepFadeSeconds * sampleRate)
	if fadeSamples > numSamples/2 {
		fadeSamples = numSamples / 2
	}
	for i := 0; i < fadeSamples; i++ {
		gain := 0.5 * (1.0 - math.Cos(math.Pi*float64(i)/float64(fadeSamples)))
		sweep[i] *= gain
		sweep[numSamples-1-i] *= gain
	}

	return sweep
}

// generateInverseSweep builds the deconvolution filter for a sweep: the
// time-reversed sweep with an exponential amplitude envelope that
// compensates the sweep's pink energy distribution, so that
// sweep (x) inverse approximates a band-limited impulse
func generateInverseSweep(sweep []float64, sampleRate, duration, startFreq, endFreq float64) []float64 {
	numSamples := len(sweep)
	if numSamples == 0 {
		return nil
	}

	l := duration / math.Log(endFreq/startFreq)

	inverse := make([]float64, numSamples)
	for i := range inverse {
		// Reversed signal starts at the high-frequency end; the decaying
		// envelope attenuates lower frequencies by f1/f2 overall
		envelope := math.Exp(-float64(i) / (l * sampleRate))
		inverse[i] = sweep[numSamples-1-i] * envelope
	}

	return inverse
}
