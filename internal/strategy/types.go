package strategy

import (
	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
)

// Signal is the crossover state of one symbol on the last closed candle.
// Cross values are 1 (fast crossed above), -1 (fast crossed below or
// touched) and 0 (no cross). Trend is the slow pair's bias, 0 when unknown.
type Signal struct {
	Cross1 int
	Cross2 int
	Trend  int
}

// HasCross reports whether either pair crossed.
func (s Signal) HasCross() bool { return s.Cross1 != 0 || s.Cross2 != 0 }

// PositionState is derived from a signed position size.
type PositionState int

const (
	Flat PositionState = iota
	Long
	Short
)

// StateOf maps a signed size to a position state. Zero is flat.
func StateOf(size float64) PositionState {
	switch {
	case size > 0:
		return Long
	case size < 0:
		return Short
	default:
		return Flat
	}
}

func (s PositionState) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Rule identifies a row of the decision table, in priority order.
type Rule int

const (
	RuleNone         Rule = iota
	RuleCloseShort        // cross_1 up while short
	RuleIncreaseLong      // cross_1 up while long
	RuleOpenLong          // cross_1 up while flat
	RuleTopUpLong         // cross_2 up while long
	RuleReduceShort       // cross_2 up while short
	RuleCloseLong         // cross_1 down while long
	RuleTopUpShort        // cross_2 down while short
	RuleReduceLong        // cross_2 down while long
	RuleOpenShort         // cross_2 down while flat
)

var ruleNames = map[Rule]string{
	RuleNone:         "none",
	RuleCloseShort:   "close_short",
	RuleIncreaseLong: "increase_long",
	RuleOpenLong:     "open_long",
	RuleTopUpLong:    "top_up_long",
	RuleReduceShort:  "reduce_short",
	RuleCloseLong:    "close_long",
	RuleTopUpShort:   "top_up_short",
	RuleReduceLong:   "reduce_long",
	RuleOpenShort:    "open_short",
}

func (r Rule) String() string { return ruleNames[r] }

// Action is what a decision does to the position.
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionIncrease
	ActionReduce
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionIncrease:
		return "increase"
	case ActionReduce:
		return "reduce"
	case ActionClose:
		return "close"
	default:
		return "none"
	}
}

// Input is everything Decide needs for one symbol.
type Input struct {
	Symbol          string
	Signal          Signal
	Position        float64 // signed live size
	Balance         float64 // wallet balance
	Mult            float64 // exposure multiplier
	TargetFraction  float64 // inverse-volatility weight
	Price           float64 // last traded price
	AmountPrecision int
	PricePrecision  int
}

// Decision is the outcome of Decide. Action is ActionNone when the matching
// row requires nothing, or when no row matched (Rule is RuleNone).
type Decision struct {
	Rule       Rule
	Action     Action
	Side       common.Side
	Qty        float64 // positive order quantity
	Price      float64 // price rounded to the symbol precision
	Target     float64 // target size the row sized against
	ReduceOnly bool
	Tag        string // client order id suffix
	Reason     string
}
