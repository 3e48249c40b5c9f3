package indicators

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds v to places decimals, halves away from zero. Rounding goes
// through the shortest decimal form of v so 0.285 rounds to 0.29.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(int32(places)).Float64()
	return f
}
