package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per bar.
// The first bar has no previous close and uses high-low.
func TrueRange(high, low, close []float64) []float64 {
	n := len(close)
	if n == 0 || len(high) != n || len(low) != n {
		return nil
	}
	tr := talib.TRange(high, low, close)
	tr[0] = math.Abs(high[0] - low[0])
	return tr
}

// ATR is the EMA of the true range over n bars.
func ATR(high, low, close []float64, n int) []float64 {
	return EMA(TrueRange(high, low, close), n)
}

// ATRPct expresses atr relative to close.
func ATRPct(atr, close []float64) []float64 {
	out := make([]float64, len(atr))
	for i := range atr {
		if i >= len(close) || close[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = atr[i] / close[i]
	}
	return out
}

// InverseVolWeights allocates weights proportional to 1/atrPct. Symbols
// with a non-finite or non-positive value get no weight. The weights of the
// remaining symbols sum to 1.
func InverseVolWeights(atrPct map[string]float64) map[string]float64 {
	inv := make(map[string]float64, len(atrPct))
	total := 0.0
	for sym, v := range atrPct {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		inv[sym] = 1 / v
		total += 1 / v
	}
	out := make(map[string]float64, len(inv))
	if total == 0 {
		return out
	}
	for sym, v := range inv {
		out[sym] = v / total
	}
	return out
}
