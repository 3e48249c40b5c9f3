package strategy

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/internal/ledger"
	"github.com/webclinic017/GDA-v2/internal/monitor"
	"github.com/webclinic017/GDA-v2/internal/order"
	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
	market "github.com/webclinic017/GDA-v2/pkg/market/binance"
)

// SymbolInput is the per-symbol data the engine trades on.
type SymbolInput struct {
	Symbol         string
	Signal         Signal
	TargetFraction float64
	Rules          market.SymbolRules
}

// Outcome records what the engine did for one symbol.
type Outcome struct {
	Symbol   string
	Decision Decision
	Err      error // non-fatal exchange rejection
}

// Engine turns signals into orders and keeps the ledger in step with them.
type Engine struct {
	gw       gateway.Gateway
	exec     *order.Executor
	notifier monitor.Notifier
	bus      *events.Bus

	mult   float64
	settle time.Duration
	now    func() time.Time
}

// NewEngine builds the decision engine. settle is the wait between an order
// and reading the resulting position back.
func NewEngine(gw gateway.Gateway, exec *order.Executor, notifier monitor.Notifier, bus *events.Bus, mult float64, settle time.Duration) *Engine {
	if notifier == nil {
		notifier = monitor.Nop{}
	}
	return &Engine{
		gw:       gw,
		exec:     exec,
		notifier: notifier,
		bus:      bus,
		mult:     mult,
		settle:   settle,
		now:      time.Now,
	}
}

// Run evaluates every input in order. Gateway failures abort the run;
// an order the exchange rejects outright is reported and the symbol skipped.
func (e *Engine) Run(ctx context.Context, l *ledger.Ledger, inputs []SymbolInput) ([]Outcome, error) {
	var outcomes []Outcome
	for _, in := range inputs {
		if !in.Signal.HasCross() {
			continue
		}
		out, err := e.runSymbol(ctx, l, in)
		if err != nil {
			if !order.IsRejection(err) {
				return outcomes, fmt.Errorf("%s: %w", in.Symbol, err)
			}
			log.Printf("❌ %s order rejected: %v", in.Symbol, err)
			e.notifier.Alert(ctx, fmt.Sprintf("#%s order rejected: %v", in.Symbol, err))
			out.Err = err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (e *Engine) runSymbol(ctx context.Context, l *ledger.Ledger, in SymbolInput) (Outcome, error) {
	out := Outcome{Symbol: in.Symbol}

	pos, err := e.gw.FetchPosition(ctx, in.Symbol)
	if err != nil {
		return out, fmt.Errorf("fetch position: %w", err)
	}
	bal, err := e.gw.FetchBalance(ctx)
	if err != nil {
		return out, fmt.Errorf("fetch balance: %w", err)
	}
	price, err := e.gw.FetchPrice(ctx, in.Symbol)
	if err != nil {
		return out, fmt.Errorf("fetch price: %w", err)
	}

	d := Decide(Input{
		Symbol:          in.Symbol,
		Signal:          in.Signal,
		Position:        pos.Size,
		Balance:         bal.Wallet,
		Mult:            e.mult,
		TargetFraction:  in.TargetFraction,
		Price:           price,
		AmountPrecision: in.Rules.QuantityPrecision,
		PricePrecision:  in.Rules.PricePrecision,
	})
	out.Decision = d
	if d.Rule == RuleNone {
		return out, nil
	}

	msg := d.Reason + fmt.Sprintf(" | balance: %v", bal.Wallet)
	if !pos.Flat() {
		msg += fmt.Sprintf(" | u-pnl %v | portfolio pnl %v %%", pos.UnrealizedPnL, ledger.PortfolioPnLPct(pos.UnrealizedPnL, bal.Wallet))
	}
	log.Printf("📊 [%s] %s", d.Rule, msg)
	e.notifier.Notify(ctx, msg)
	if d.Action == ActionNone {
		return out, nil
	}

	res, err := e.exec.Submit(ctx, order.Order{
		Symbol:     in.Symbol,
		Side:       d.Side,
		Type:       common.OrderTypeMarket,
		Qty:        d.Qty,
		Price:      d.Price,
		ReduceOnly: d.ReduceOnly,
		ClientID:   order.ClientID(in.Symbol, d.Tag),
		Reason:     d.Rule.String(),
	})
	if err != nil {
		return out, err
	}
	if e.exec.DryRun {
		return out, nil
	}

	now := e.now()
	switch d.Action {
	case ActionClose:
		e.exec.RecordClose(ctx, l.Get(in.Symbol), in.Symbol, pos.Size, d.Price, bal.Wallet, pos.UnrealizedPnL, d.Rule.String(), now)
		l.Delete(in.Symbol)
		if err := e.gw.CancelAllOrders(ctx, in.Symbol); err != nil {
			return out, fmt.Errorf("cancel orders: %w", err)
		}
		e.notifier.Notify(ctx, fmt.Sprintf("open limit orders for %s were canceled", in.Symbol))
		return out, nil
	case ActionOpen, ActionIncrease, ActionReduce:
		if err := sleepCtx(ctx, e.settle); err != nil {
			return out, err
		}
		live, err := e.gw.FetchPosition(ctx, in.Symbol)
		if err != nil {
			return out, fmt.Errorf("fetch position after order: %w", err)
		}
		e.applyFill(l, in.Symbol, d, res, live, bal.Wallet, now)
	}
	return out, nil
}

// applyFill updates the ledger from the position read back after an order.
func (e *Engine) applyFill(l *ledger.Ledger, symbol string, d Decision, res common.OrderResult, live gateway.Position, wallet float64, now time.Time) {
	if live.Flat() {
		if d.Action == ActionOpen {
			log.Printf("⚠️ %s: no position after %s order, reconciliation will pick it up", symbol, d.Rule)
			return
		}
		l.Delete(symbol)
		return
	}

	rec := l.Get(symbol)
	if d.Action == ActionOpen || rec == nil || ledger.DirectionOf(live.Size) != rec.Direction {
		rec = ledger.NewRecord(ledger.OpenParams{
			Symbol:        symbol,
			EntryPrice:    live.EntryPrice,
			Size:          live.Size,
			EntryTime:     now,
			BalanceAtOpen: wallet,
			OpenReason:    d.Rule.String(),
		})
		l.Put(rec)
		e.bus.Publish(events.EventPositionOpened, events.PositionEvent{Symbol: symbol, Size: live.Size, Price: live.EntryPrice, Reason: d.Rule.String()})
		return
	}

	rec.PositionSize = live.Size
	rec.EntryPrice = live.EntryPrice
	rec.ExtendMaxSize(live.Size)
	if d.Action == ActionIncrease {
		fill := res.AvgPrice
		if fill <= 0 {
			fill = d.Price
		}
		qty := d.Qty
		ts := ledger.NewTimestamp(now)
		rec.SecondEntryPrice = &fill
		rec.SecondTradeSize = &qty
		rec.SecondEntryTime = &ts
	}
	e.bus.Publish(events.EventPositionChanged, events.PositionEvent{Symbol: symbol, Size: live.Size, Price: live.EntryPrice, Reason: d.Rule.String()})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
