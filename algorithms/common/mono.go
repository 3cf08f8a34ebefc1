package common

// MixToMono averages interleaved multichannel frames into dst and returns
// the number of frames written. dst must hold frames samples; channels <= 0
// yields 0. A mono input copies straight through.
func MixToMono(dst []float64, interleaved []float64, channels int) int {
	if channels <= 0 {
		return 0
	}

	frames := len(interleaved) / channels
	if frames > len(dst) {
		frames = len(dst)
	}

	if channels == 1 {
		copy(dst[:frames], interleaved[:frames])
		return frames
	}

	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		dst[i] = sum / float64(channels)
	}

	return frames
}
