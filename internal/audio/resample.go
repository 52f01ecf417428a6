package audio

import "math"

// Resample converts samples from one rate to another by linear interpolation.
//
// The output keeps the clip duration: n/from seconds become round(n/from*to)
// samples placed at evenly spaced times over [0, duration), endpoint
// excluded. Times past the last source sample take its value. Equal rates
// return a copy of the input.
func Resample(samples []float64, from, to int) []float64 {
	if from == to || from <= 0 || to <= 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	n := len(samples)
	if n == 0 {
		return []float64{}
	}

	duration := float64(n) / float64(from)
	outLen := int(math.Round(duration * float64(to)))
	out := make([]float64, outLen)

	srcStep := 1 / float64(from)
	dstStep := duration / float64(outLen)
	for i := range out {
		t := float64(i) * dstStep
		pos := t / srcStep
		lo := int(pos)
		if lo >= n-1 {
			out[i] = samples[n-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = samples[lo] + (samples[lo+1]-samples[lo])*frac
	}
	return out
}
