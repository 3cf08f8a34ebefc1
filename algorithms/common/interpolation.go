package common

// ParabolicPeakOffset refines a peak location by fitting a parabola
// through the peak sample and its two neighbors. It returns the fractional
// offset from peakIdx in [-1, 1]; offsets outside that range (degenerate
// fits) collapse to 0.
func ParabolicPeakOffset(data []float64, peakIdx int) float64 {
	if peakIdx <= 0 || peakIdx >= len(data)-1 {
		return 0
	}

	s0 := data[peakIdx-1]
	s1 := data[peakIdx]
	s2 := data[peakIdx+1]

	denom := 2.0 * (2.0*s1 - s2 - s0)
	if denom == 0 {
		return 0
	}

	offset := (s2 - s0) / denom
	if offset > 1 || offset < -1 {
		return 0
	}

	return offset
}

// ParabolicPeakBin returns the interpolated (fractional) peak position
func ParabolicPeakBin(data []float64, peakIdx int) float64 {
	return float64(peakIdx) + ParabolicPeakOffset(data, peakIdx)
}

// LinearInterpolate reads data at a fractional index with linear
// interpolation, returning 0 outside the valid range
func LinearInterpolate(data []float64, pos float64) float64 {
	idx := int(pos)
	if idx < 0 || idx >= len(data)-1 {
		return 0
	}

	frac := pos - float64(idx)
	return data[idx]*(1.0-frac) + data[idx+1]*frac
}
