package strategy

import (
	"fmt"
	"math"

	"github.com/webclinic017/GDA-v2/internal/indicators"
	"github.com/webclinic017/GDA-v2/internal/order"
	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
)

type rule struct {
	id    Rule
	match func(in Input, st PositionState) bool
	build func(in Input, s sizing) Decision
}

// table is evaluated top to bottom; the first matching row decides, even
// when it decides to do nothing.
var table = []rule{
	{RuleCloseShort, func(in Input, st PositionState) bool { return in.Signal.Cross1 == 1 && st == Short }, closeShort},
	{RuleIncreaseLong, func(in Input, st PositionState) bool { return in.Signal.Cross1 == 1 && st == Long }, increaseLong},
	{RuleOpenLong, func(in Input, st PositionState) bool { return in.Signal.Cross1 == 1 && st == Flat }, openLong},
	{RuleTopUpLong, func(in Input, st PositionState) bool { return in.Signal.Cross2 == 1 && st == Long }, topUpLong},
	{RuleReduceShort, func(in Input, st PositionState) bool { return in.Signal.Cross2 == 1 && st == Short }, reduceShort},
	{RuleCloseLong, func(in Input, st PositionState) bool { return in.Signal.Cross1 == -1 && st == Long }, closeLong},
	{RuleTopUpShort, func(in Input, st PositionState) bool { return in.Signal.Cross2 == -1 && st == Short }, topUpShort},
	{RuleReduceLong, func(in Input, st PositionState) bool { return in.Signal.Cross2 == -1 && st == Long }, reduceLong},
	{RuleOpenShort, func(in Input, st PositionState) bool { return in.Signal.Cross2 == -1 && st == Flat }, openShort},
}

// sizing holds the rounded quantities every row works with.
type sizing struct {
	price   float64
	current float64 // |position|
	full    float64 // full target size
	half    float64
}

func newSizing(in Input) sizing {
	s := sizing{
		price:   indicators.Round(in.Price, in.PricePrecision),
		current: math.Abs(in.Position),
	}
	if s.price > 0 && in.TargetFraction > 0 && !math.IsNaN(in.TargetFraction) {
		s.full = indicators.Round(in.Balance*in.Mult*in.TargetFraction/s.price, in.AmountPrecision)
		s.half = indicators.Round(s.full*0.5, in.AmountPrecision)
	}
	return s
}

func (s sizing) round(v float64, in Input) float64 {
	return indicators.Round(v, in.AmountPrecision)
}

// Decide maps a signal and the live position to at most one order.
func Decide(in Input) Decision {
	st := StateOf(in.Position)
	s := newSizing(in)
	for _, r := range table {
		if !r.match(in, st) {
			continue
		}
		d := r.build(in, s)
		d.Rule = r.id
		d.Price = s.price
		if d.Action != ActionNone && d.Qty <= 0 {
			d.Action = ActionNone
			d.Reason += " | computed size is zero"
		}
		if d.Action == ActionNone {
			d.Qty, d.Side, d.Tag, d.ReduceOnly = 0, "", "", false
		}
		return d
	}
	return Decision{Rule: RuleNone, Price: s.price}
}

func closeShort(in Input, s sizing) Decision {
	return Decision{
		Action:     ActionClose,
		Side:       common.SideBuy,
		Qty:        s.current,
		ReduceOnly: true,
		Tag:        order.TagCloseCross,
		Reason:     fmt.Sprintf("long #%s @ %v | current size: %v | close short", in.Symbol, s.price, in.Position),
	}
}

func closeLong(in Input, s sizing) Decision {
	return Decision{
		Action:     ActionClose,
		Side:       common.SideSell,
		Qty:        s.current,
		ReduceOnly: true,
		Tag:        order.TagCloseCross,
		Reason:     fmt.Sprintf("short #%s @ %v | current size: %v | close long", in.Symbol, s.price, in.Position),
	}
}

func increaseLong(in Input, s sizing) Decision {
	target := s.half
	if in.Signal.Trend == 1 {
		target = s.full
	}
	d := Decision{Target: target}
	if s.current >= target {
		d.Reason = fmt.Sprintf("long: #%s @ %v | current size: %v and required: %v | nothing to do", in.Symbol, s.price, in.Position, target)
		return d
	}
	d.Action = ActionIncrease
	d.Side = common.SideBuy
	d.Qty = s.round(target-s.current, in)
	d.Tag = order.TagOpenCrossIncreasing
	d.Reason = fmt.Sprintf("long #%s @ %v | current size: %v and required: %v | add to pos", in.Symbol, s.price, in.Position, target)
	return d
}

func openLong(in Input, s sizing) Decision {
	switch in.Signal.Trend {
	case 1:
		return Decision{
			Action: ActionOpen, Side: common.SideBuy, Qty: s.full, Target: s.full, Tag: order.TagOpenCross,
			Reason: fmt.Sprintf("long #%s @ %v | no open position | Full position required of size: %v", in.Symbol, s.price, s.full),
		}
	case -1:
		return Decision{
			Action: ActionOpen, Side: common.SideBuy, Qty: s.half, Target: s.half, Tag: order.TagOpenCross,
			Reason: fmt.Sprintf("long #%s @ %v | no open position | 50%% position required of size: %v", in.Symbol, s.price, s.half),
		}
	default:
		return Decision{Reason: fmt.Sprintf("long #%s @ %v | no open position | trend unknown, nothing to do", in.Symbol, s.price)}
	}
}

// topUp brings a position back to the full target when it sits below 90% of it.
func topUp(in Input, s sizing, side common.Side, label string) Decision {
	threshold := s.round(s.full*0.9, in)
	d := Decision{Target: s.full}
	if s.current >= threshold {
		d.Reason = fmt.Sprintf("%s: #%s @ %v | current size: %v and required: %v | nothing to do", label, in.Symbol, s.price, in.Position, s.full)
		return d
	}
	d.Action = ActionIncrease
	d.Side = side
	d.Qty = s.round(s.full-s.current, in)
	d.Tag = order.TagOpenCrossIncreasing
	d.Reason = fmt.Sprintf("%s #%s @ %v | current size: %v and required: %v | adding to %s second entry", label, in.Symbol, s.price, in.Position, s.full, label)
	return d
}

func topUpLong(in Input, s sizing) Decision  { return topUp(in, s, common.SideBuy, "long") }
func topUpShort(in Input, s sizing) Decision { return topUp(in, s, common.SideSell, "short") }

// reduce halves a position with a reduce-only order.
func reduce(in Input, s sizing, side common.Side, label, held string) Decision {
	qty := s.round(s.current*0.5, in)
	return Decision{
		Action:     ActionReduce,
		Side:       side,
		Qty:        qty,
		ReduceOnly: true,
		Tag:        order.TagOpenCrossDecreasing,
		Reason:     fmt.Sprintf("%s #%s @ %v | current size: %v | reducing %s by 50%% | required size: %v", label, in.Symbol, s.price, in.Position, held, qty),
	}
}

func reduceShort(in Input, s sizing) Decision { return reduce(in, s, common.SideBuy, "long", "short") }
func reduceLong(in Input, s sizing) Decision  { return reduce(in, s, common.SideSell, "short", "long") }

func openShort(in Input, s sizing) Decision {
	return Decision{
		Action: ActionOpen, Side: common.SideSell, Qty: s.full, Target: s.full, Tag: order.TagOpenCross,
		Reason: fmt.Sprintf("short #%s @ %v | no open position | Open Full Position | required size: %v", in.Symbol, s.price, s.full),
	}
}
