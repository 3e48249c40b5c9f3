package risk

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/internal/indicators"
	"github.com/webclinic017/GDA-v2/internal/ledger"
	"github.com/webclinic017/GDA-v2/internal/monitor"
	"github.com/webclinic017/GDA-v2/internal/order"
)

// StopLossManager trails an ATR stop behind every recorded position and
// closes positions whose mark price breaches it.
type StopLossManager struct {
	gw       gateway.Gateway
	exec     *order.Executor
	notifier monitor.Notifier
	bus      *events.Bus
	nATR     float64
	now      func() time.Time
}

// StopMove describes one advance of a trailing reference.
type StopMove struct {
	Symbol      string
	OldStop     float64
	NewStop     float64
	OldStopLoss float64
	NewStopLoss float64
}

// StopTrigger describes one stop-loss close.
type StopTrigger struct {
	Symbol string
	Size   float64
	Mark   float64
	Level  float64
	PnL    float64
	Err    error // exchange rejection, the record is kept
}

// NewStopLossManager creates a stop manager using nATR multiples of ATR.
func NewStopLossManager(gw gateway.Gateway, exec *order.Executor, notifier monitor.Notifier, bus *events.Bus, nATR float64) *StopLossManager {
	if notifier == nil {
		notifier = monitor.Nop{}
	}
	return &StopLossManager{
		gw:       gw,
		exec:     exec,
		notifier: notifier,
		bus:      bus,
		nATR:     nATR,
		now:      time.Now,
	}
}

// TriggerLevel is the absolute stop for a trailing reference.
func TriggerLevel(dir ledger.Direction, stop, atr, n float64) float64 {
	if dir == ledger.Short {
		return stop + atr*n
	}
	return stop - atr*n
}

// IsTriggered reports whether mark has breached level for the direction.
func IsTriggered(dir ledger.Direction, mark, level float64) bool {
	if dir == ledger.Short {
		return mark >= level
	}
	return mark <= level
}

// AdvanceStop returns the extreme daily close after the entry day that lies
// beyond stop in the favourable direction. ok is false when there is none.
func AdvanceStop(dir ledger.Direction, stop float64, entryDay time.Time, daily indicators.Bars) (float64, bool) {
	best, ok := stop, false
	for i, c := range daily.Close {
		if math.IsNaN(c) || i >= len(daily.Time) || !daily.Time[i].After(entryDay) {
			continue
		}
		if dir == ledger.Short {
			if c < best {
				best, ok = c, true
			}
		} else if c > best {
			best, ok = c, true
		}
	}
	return best, ok
}

// Ratchet moves stop references forward. It never moves one back.
func (m *StopLossManager) Ratchet(ctx context.Context, l *ledger.Ledger, daily map[string]indicators.Bars, atr map[string]float64) []StopMove {
	var moves []StopMove
	for _, sym := range l.Symbols() {
		bars, ok := daily[sym]
		if !ok {
			continue
		}
		a, ok := atr[sym]
		if !ok || math.IsNaN(a) {
			continue
		}
		rec := l.Get(sym)
		next, moved := AdvanceStop(rec.Direction, rec.StopPrice, rec.EntryTime.Day(), bars)
		if !moved {
			continue
		}

		mv := StopMove{
			Symbol:      sym,
			OldStop:     rec.StopPrice,
			NewStop:     next,
			OldStopLoss: TriggerLevel(rec.Direction, rec.StopPrice, a, m.nATR),
			NewStopLoss: TriggerLevel(rec.Direction, next, a, m.nATR),
		}
		rec.StopPrice = next
		sl := mv.NewStopLoss
		rec.StopLossPrice = &sl
		moves = append(moves, mv)

		msg := fmt.Sprintf("%s #%s reset ATR stop price from %v to %v\nSTOP LOSS was updated from %.6f$ to %.6f$\n entry price: %v$",
			rec.Direction, sym, mv.OldStop, mv.NewStop, mv.OldStopLoss, mv.NewStopLoss, rec.EntryPrice)
		log.Printf("🔄 %s", msg)
		m.notifier.Notify(ctx, msg)
		m.bus.Publish(events.EventStopMoved, events.PositionEvent{Symbol: sym, Size: rec.PositionSize, Price: next, Reason: "trailing stop"})
	}
	return moves
}

// Execute closes every recorded position whose mark price is beyond its
// stop. Gateway failures abort; a rejected close is reported and skipped.
func (m *StopLossManager) Execute(ctx context.Context, l *ledger.Ledger, atr map[string]float64) ([]StopTrigger, error) {
	var (
		triggers []StopTrigger
		wallet   float64
		loaded   bool
	)
	for _, sym := range l.Symbols() {
		a, ok := atr[sym]
		if !ok || math.IsNaN(a) {
			continue
		}
		if !loaded {
			bal, err := m.gw.FetchBalance(ctx)
			if err != nil {
				return triggers, fmt.Errorf("fetch balance: %w", err)
			}
			wallet, loaded = bal.Wallet, true
		}

		rec := l.Get(sym)
		level := TriggerLevel(rec.Direction, rec.StopPrice, a, m.nATR)

		pos, err := m.gw.FetchPosition(ctx, sym)
		if err != nil {
			return triggers, fmt.Errorf("fetch position %s: %w", sym, err)
		}
		if pos.Flat() || !IsTriggered(rec.Direction, pos.MarkPrice, level) {
			continue
		}

		cmp := "<="
		if rec.Direction == ledger.Short {
			cmp = ">="
		}
		msg := fmt.Sprintf("#%s - current market price: (%v) %s stop price (%v) |\nATR trailing stop loss triggered | closing %s %v @ %v\nbalance: %.3f | u-PnL %.5f | portfolio pnl %v %%",
			sym, pos.MarkPrice, cmp, level, rec.Direction, pos.Size, pos.MarkPrice,
			wallet, pos.UnrealizedPnL, ledger.PortfolioPnLPct(pos.UnrealizedPnL, wallet))
		log.Printf("⚠️ %s", msg)
		m.notifier.Notify(ctx, msg)

		trig := StopTrigger{Symbol: sym, Size: pos.Size, Mark: pos.MarkPrice, Level: level, PnL: pos.UnrealizedPnL}
		if _, err := m.exec.ClosePosition(ctx, sym, pos.Size, pos.MarkPrice, order.TagStopLoss, "stop_loss"); err != nil {
			if !order.IsRejection(err) {
				return triggers, fmt.Errorf("%s: %w", sym, err)
			}
			m.notifier.Alert(ctx, fmt.Sprintf("#%s stop loss close rejected: %v", sym, err))
			trig.Err = err
			triggers = append(triggers, trig)
			continue
		}
		triggers = append(triggers, trig)
		m.bus.Publish(events.EventStopTriggered, events.PositionEvent{Symbol: sym, Size: pos.Size, Price: pos.MarkPrice, Reason: "stop_loss", PnL: pos.UnrealizedPnL})
		if m.exec.DryRun {
			continue
		}

		hasTP := false
		for _, tp := range rec.TakeProfits {
			hasTP = hasTP || tp.HasOrder()
		}
		m.exec.RecordClose(ctx, rec, sym, pos.Size, pos.MarkPrice, wallet, pos.UnrealizedPnL, "stop_loss", m.now())
		l.Delete(sym)
		if hasTP {
			if err := m.gw.CancelAllOrders(ctx, sym); err != nil {
				return triggers, fmt.Errorf("cancel orders %s: %w", sym, err)
			}
		}
	}
	return triggers, nil
}
