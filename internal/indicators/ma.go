package indicators

import "math"

// EMA returns the exponential moving average of values with smoothing
// alpha = 2/(span+1), seeded with the first value and without bias
// adjustment. Outputs before index span-1 are NaN. NaN inputs carry the
// previous average forward.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if span <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	alpha := 2.0 / float64(span+1)
	avg := math.NaN()
	seen := 0
	for i, v := range values {
		if !math.IsNaN(v) {
			if math.IsNaN(avg) {
				avg = v
			} else {
				avg = alpha*v + (1-alpha)*avg
			}
			seen++
		}
		if seen >= span {
			out[i] = avg
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Last returns the last element of s, or NaN when s is empty.
func Last(s []float64) float64 {
	return At(s, -1)
}

// At indexes s like a python sequence: negative i counts from the end.
// Out of range yields NaN.
func At(s []float64, i int) float64 {
	if i < 0 {
		i = len(s) + i
	}
	if i < 0 || i >= len(s) {
		return math.NaN()
	}
	return s[i]
}
