package indicators

import "time"

// Bars is a column view of candles, oldest first.
type Bars struct {
	Time   []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Len is the number of bars.
func (b Bars) Len() int { return len(b.Close) }

// TrendSignals are the EMA-derived columns of the trading timeframe.
type TrendSignals struct {
	EMAShort1, EMALong1 []float64
	EMAShort2, EMALong2 []float64
	Cross1, Cross2      []int
	Trend               []int
}

// Volatility is the ATR-derived columns of the indicator timeframe.
type Volatility struct {
	ATR    []float64
	ATRPct []float64
}

// Engine computes the strategy indicators for a pair of EMA spans and an
// ATR length.
type Engine struct {
	short1, long1 int
	short2, long2 int
	atr           int
}

// NewEngine builds an indicator engine.
func NewEngine(short1, long1, short2, long2, atr int) *Engine {
	return &Engine{short1: short1, long1: long1, short2: short2, long2: long2, atr: atr}
}

// Signals computes both EMA pairs, their crossovers and the slow-pair trend.
func (e *Engine) Signals(b Bars) TrendSignals {
	s := TrendSignals{
		EMAShort1: EMA(b.Close, e.short1),
		EMALong1:  EMA(b.Close, e.long1),
		EMAShort2: EMA(b.Close, e.short2),
		EMALong2:  EMA(b.Close, e.long2),
	}
	s.Cross1 = Crossovers(s.EMAShort1, s.EMALong1)
	s.Cross2 = Crossovers(s.EMAShort2, s.EMALong2)
	s.Trend = Trend(s.EMAShort2, s.EMALong2)
	return s
}

// Volatility computes ATR and ATR as a fraction of close.
func (e *Engine) Volatility(b Bars) Volatility {
	atr := ATR(b.High, b.Low, b.Close, e.atr)
	return Volatility{ATR: atr, ATRPct: ATRPct(atr, b.Close)}
}
