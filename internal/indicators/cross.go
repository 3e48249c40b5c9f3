package indicators

// Crossovers marks where fast crosses slow: 1 when fast moves to or above
// slow, -1 when it moves to or below. A bar satisfying both (touching lines)
// reads -1. Bars with NaN inputs read 0.
func Crossovers(fast, slow []float64) []int {
	n := min(len(fast), len(slow))
	out := make([]int, n)
	for i := 1; i < n; i++ {
		f, s, pf, ps := fast[i], slow[i], fast[i-1], slow[i-1]
		down := 0
		if f <= s && pf >= ps {
			down = -1
		}
		up := 0
		if f >= s && pf <= ps {
			up = 1
		}
		out[i] = down | up
	}
	return out
}

// Trend is 1 while fast >= slow, -1 while fast < slow and 0 when undefined.
func Trend(fast, slow []float64) []int {
	n := min(len(fast), len(slow))
	out := make([]int, n)
	for i := 0; i < n; i++ {
		switch {
		case fast[i] >= slow[i]:
			out[i] = 1
		case fast[i] < slow[i]:
			out[i] = -1
		}
	}
	return out
}

// LastInt returns the last element, or 0 for an empty slice.
func LastInt(s []int) int {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}
