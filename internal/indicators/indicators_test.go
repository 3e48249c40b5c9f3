package indicators

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEMA(t *testing.T) {
	got := EMA([]float64{1, 2, 3, 4, 5}, 3)
	// alpha = 0.5: 1, 1.5, 2.25, 3.125, 4.0625
	want := []float64{math.NaN(), math.NaN(), 2.25, 3.125, 4.0625}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Fatalf("EMA[%d]=%v, expected NaN", i, got[i])
			}
			continue
		}
		if !approx(got[i], want[i]) {
			t.Fatalf("EMA[%d]=%v, expected %v", i, got[i], want[i])
		}
	}
}

func TestTrueRangeAndATR(t *testing.T) {
	high := []float64{10, 12, 11}
	low := []float64{8, 9, 7}
	close := []float64{9, 11, 8}

	tr := TrueRange(high, low, close)
	want := []float64{2, 3, 4}
	for i := range want {
		if !approx(tr[i], want[i]) {
			t.Fatalf("TR[%d]=%v, expected %v", i, tr[i], want[i])
		}
	}

	atr := ATR(high, low, close, 3)
	// alpha = 0.5: 2, 2.5, 3.25
	if !approx(Last(atr), 3.25) {
		t.Fatalf("ATR=%v, expected 3.25", Last(atr))
	}
	pct := ATRPct(atr, close)
	if !approx(Last(pct), 3.25/8) {
		t.Fatalf("ATRPct=%v, expected %v", Last(pct), 3.25/8)
	}
}

func TestTrueRangeGapUsesPreviousClose(t *testing.T) {
	tr := TrueRange([]float64{10, 15}, []float64{9, 14}, []float64{9.5, 14.5})
	if !approx(tr[1], 5.5) {
		t.Fatalf("TR[1]=%v, expected 5.5 (high - prev close)", tr[1])
	}
}

func TestCrossovers(t *testing.T) {
	tests := []struct {
		name string
		fast []float64
		slow []float64
		want int
	}{
		{"cross up", []float64{1, 3}, []float64{2, 2}, 1},
		{"cross down", []float64{3, 1}, []float64{2, 2}, -1},
		{"stay above", []float64{3, 4}, []float64{2, 2}, 0},
		{"touching resolves to -1", []float64{2, 2}, []float64{2, 2}, -1},
		{"nan", []float64{math.NaN(), 3}, []float64{math.NaN(), 2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LastInt(Crossovers(tt.fast, tt.slow))
			if got != tt.want {
				t.Fatalf("cross=%d, expected %d", got, tt.want)
			}
		})
	}
}

func TestTrend(t *testing.T) {
	got := Trend([]float64{1, 2, math.NaN()}, []float64{2, 2, 1})
	want := []int{-1, 1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Trend[%d]=%d, expected %d", i, got[i], want[i])
		}
	}
}

func TestInverseVolWeights(t *testing.T) {
	w := InverseVolWeights(map[string]float64{
		"BTCUSDT": 0.02,
		"ETHUSDT": 0.04,
		"NEWUSDT": math.NaN(),
	})
	if _, ok := w["NEWUSDT"]; ok {
		t.Fatalf("NaN symbol got a weight")
	}
	// 1/0.02=50, 1/0.04=25 -> 2/3, 1/3
	if !approx(w["BTCUSDT"], 2.0/3) || !approx(w["ETHUSDT"], 1.0/3) {
		t.Fatalf("weights=%v, expected 2/3 and 1/3", w)
	}
	if !approx(w["BTCUSDT"]+w["ETHUSDT"], 1) {
		t.Fatalf("weights do not sum to 1: %v", w)
	}
}

func TestInterpolate(t *testing.T) {
	nan := math.NaN()
	got := Interpolate([]float64{nan, 1, nan, nan, 4, nan})
	if !math.IsNaN(got[0]) {
		t.Fatalf("leading gap filled: %v", got[0])
	}
	want := []float64{1, 2, 3, 4, 4}
	for i, w := range want {
		if !approx(got[i+1], w) {
			t.Fatalf("Interpolate[%d]=%v, expected %v", i+1, got[i+1], w)
		}
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v      float64
		places int
		want   float64
	}{
		{10.0004, 3, 10.0},
		{0.285, 2, 0.29},
		{-1.2345, 3, -1.235},
		{1234.5, 0, 1235},
	}
	for _, tt := range tests {
		if got := Round(tt.v, tt.places); got != tt.want {
			t.Fatalf("Round(%v,%d)=%v, expected %v", tt.v, tt.places, got, tt.want)
		}
	}
}

func TestAt(t *testing.T) {
	s := []float64{1, 2, 3}
	if At(s, -2) != 2 || At(s, 0) != 1 {
		t.Fatalf("At returned wrong elements")
	}
	if !math.IsNaN(At(s, 5)) || !math.IsNaN(At(nil, -1)) {
		t.Fatalf("At out of range should be NaN")
	}
}

func TestEngineSignals(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	// sharp reversal at the end pushes the fast EMA back above the slow one
	closes = append(closes, 140)
	e := NewEngine(2, 4, 3, 6, 3)
	s := e.Signals(Bars{Close: closes})
	if LastInt(s.Cross1) != 1 {
		t.Fatalf("Cross1=%d, expected 1", LastInt(s.Cross1))
	}
	if len(s.Trend) != len(closes) {
		t.Fatalf("len(Trend)=%d, expected %d", len(s.Trend), len(closes))
	}
}
