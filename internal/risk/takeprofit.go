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
	"github.com/webclinic017/GDA-v2/pkg/config"
	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
	market "github.com/webclinic017/GDA-v2/pkg/market/binance"
)

// maxOpenOrders is the most resting orders a symbol may carry before its
// take-profits are rebuilt from scratch.
const maxOpenOrders = 2

// TakeProfitManager runs the market or limit take-profit lifecycle.
type TakeProfitManager struct {
	gw       gateway.Gateway
	exec     *order.Executor
	notifier monitor.Notifier
	bus      *events.Bus
	params   config.TakeProfitParams
	now      func() time.Time
}

// TakeProfitFill describes a take-profit that reduced a position.
type TakeProfitFill struct {
	Symbol  string
	Level   int
	Size    float64
	Price   float64
	Partial bool
}

// NewTakeProfitManager creates a take-profit manager for params.Mode.
func NewTakeProfitManager(gw gateway.Gateway, exec *order.Executor, notifier monitor.Notifier, bus *events.Bus, params config.TakeProfitParams) *TakeProfitManager {
	if notifier == nil {
		notifier = monitor.Nop{}
	}
	return &TakeProfitManager{
		gw:       gw,
		exec:     exec,
		notifier: notifier,
		bus:      bus,
		params:   params,
		now:      time.Now,
	}
}

// Mode returns the configured lifecycle.
func (m *TakeProfitManager) Mode() config.TakeProfitMode { return m.params.Mode }

func (m *TakeProfitManager) levels(dir ledger.Direction) []config.TakeProfitLevel {
	lv := m.params.Long
	if dir == ledger.Short {
		lv = m.params.Short
	}
	if len(lv) > ledger.MaxTakeProfits {
		lv = lv[:ledger.MaxTakeProfits]
	}
	return lv
}

// PriceDiffPct is the move from entry to last in percent, rounded to 3 places.
func PriceDiffPct(last, entry float64) float64 {
	if entry == 0 {
		return 0
	}
	return indicators.Round((last-entry)/entry*100, 3)
}

// Armed reports whether a price move passes a take-profit threshold.
func Armed(dir ledger.Direction, diffPct, thresholdPct float64) bool {
	if dir == ledger.Short {
		return diffPct < -thresholdPct
	}
	return diffPct > thresholdPct
}

// ReductionSize is the share of the peak size a level closes.
func ReductionSize(maxSize, pct float64, precision int) float64 {
	return indicators.Round(math.Abs(maxSize)*pct/100, precision)
}

// LimitPrice is the resting price of a limit take-profit.
func LimitPrice(dir ledger.Direction, entry, pct float64, precision int) float64 {
	change := entry * pct / 100
	if dir == ledger.Short {
		return indicators.Round(entry-change, precision)
	}
	return indicators.Round(entry+change, precision)
}

// InBand reports whether price is inside the exchange percent-price band
// around the trailing reference.
func InBand(price, stop float64, rules market.SymbolRules) bool {
	return stop*rules.MultiplierDown < price && price < stop*rules.MultiplierUp
}

// ExecuteMarket closes part of each position with a market order once the
// last close has moved past a level.
func (m *TakeProfitManager) ExecuteMarket(ctx context.Context, l *ledger.Ledger, lastClose map[string]float64, rules map[string]market.SymbolRules) ([]TakeProfitFill, error) {
	var fills []TakeProfitFill
	for _, sym := range l.Symbols() {
		last, ok := lastClose[sym]
		if !ok {
			continue
		}
		r, ok := rules[sym]
		if !ok {
			continue
		}
		rec := l.Get(sym)
		diff := PriceDiffPct(last, rec.EntryPrice)

		for i, lv := range m.levels(rec.Direction) {
			n := i + 1
			if rec.TP(n).Executed || !Armed(rec.Direction, diff, lv.PriceChangePct) {
				continue
			}
			size := ReductionSize(rec.MaxSize, lv.ReductionPct, r.QuantityPrecision)
			if size <= 0 {
				continue
			}

			_, err := m.exec.Submit(ctx, order.Order{
				Symbol:     sym,
				Side:       order.CloseSide(rec.PositionSize),
				Type:       common.OrderTypeMarket,
				Qty:        size,
				Price:      last,
				ReduceOnly: true,
				ClientID:   order.ClientID(sym, order.TakeProfitTag(n)),
				Reason:     fmt.Sprintf("take_profit_%d", n),
			})
			if err != nil {
				if !order.IsRejection(err) {
					return fills, fmt.Errorf("%s: %w", sym, err)
				}
				msg := fmt.Sprintf("ERROR: #%s %s TP%d reduce size: %v @ %v\n%v", sym, rec.Direction, n, size, last, err)
				log.Printf("❌ %s", msg)
				m.notifier.Alert(ctx, msg)
				continue
			}

			fills = append(fills, TakeProfitFill{Symbol: sym, Level: n, Size: size, Price: last})
			m.bus.Publish(events.EventTakeProfit, events.PositionEvent{Symbol: sym, Size: size, Price: last, Reason: fmt.Sprintf("tp%d", n)})
			if m.exec.DryRun {
				continue
			}
			rec.MarkTPExecuted(n)
			rec.PositionSize = indicators.Round(rec.PositionSize-rec.Direction.Sign()*size, r.QuantityPrecision)

			msg := fmt.Sprintf("#%s hit %s TP%d @ %v | reducing position size by %v (%v pct) | remaining size %v, #TP%d%s",
				sym, rec.Direction, n, last, size, lv.ReductionPct, rec.PositionSize, n, sym)
			log.Printf("💰 %s", msg)
			m.notifier.Notify(ctx, msg)
		}
	}
	return fills, nil
}

// CreateLimit places the resting limit take-profits a record is missing.
func (m *TakeProfitManager) CreateLimit(ctx context.Context, l *ledger.Ledger, rules map[string]market.SymbolRules) error {
	for _, sym := range l.Symbols() {
		r, ok := rules[sym]
		if !ok {
			continue
		}
		rec := l.Get(sym)

		open, err := m.gw.FetchOpenOrders(ctx, sym)
		if err != nil {
			return fmt.Errorf("fetch open orders %s: %w", sym, err)
		}
		if len(open) > maxOpenOrders {
			if err := m.gw.CancelAllOrders(ctx, sym); err != nil {
				return fmt.Errorf("cancel orders %s: %w", sym, err)
			}
			rec.ClearTPOrders()
			msg := fmt.Sprintf("%s had more than %d limit orders, so they were deleted and will be created again", sym, maxOpenOrders)
			log.Printf("🔄 %s", msg)
			m.notifier.Notify(ctx, msg)
		}

		for i, lv := range m.levels(rec.Direction) {
			n := i + 1
			tp := rec.TP(n)
			if tp.Executed || tp.HasOrder() {
				continue
			}
			price := LimitPrice(rec.Direction, rec.EntryPrice, lv.PriceChangePct, r.PricePrecision)
			if !InBand(price, rec.StopPrice, r) {
				continue
			}
			if err := m.placeLimit(ctx, rec, n, price, lv, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *TakeProfitManager) placeLimit(ctx context.Context, rec *ledger.Record, n int, price float64, lv config.TakeProfitLevel, r market.SymbolRules) error {
	// The trailing reference already passed the target.
	if (rec.IsLong() && price < rec.StopPrice) || (!rec.IsLong() && price > rec.StopPrice) {
		if !m.exec.DryRun {
			rec.MarkTPExecuted(n)
		}
		return nil
	}

	size := ReductionSize(rec.MaxSize, lv.ReductionPct, r.QuantityPrecision)
	if size <= 0 {
		return nil
	}
	clientID := order.ClientID(rec.Symbol, order.TakeProfitTag(n))
	_, err := m.exec.Submit(ctx, order.Order{
		Symbol:      rec.Symbol,
		Side:        order.CloseSide(rec.PositionSize),
		Type:        common.OrderTypeLimit,
		Qty:         size,
		Price:       price,
		TimeInForce: common.TIFGTC,
		ReduceOnly:  true,
		ClientID:    clientID,
		Reason:      fmt.Sprintf("take_profit_%d", n),
	})
	if err != nil {
		if !order.IsRejection(err) {
			return fmt.Errorf("%s: %w", rec.Symbol, err)
		}
		msg := fmt.Sprintf("error while creating limit %s TP%d for %s| p: %v, size: %v \n%v",
			order.CloseSide(rec.PositionSize), n, rec.Symbol, price, size, err)
		log.Printf("❌ %s", msg)
		m.notifier.Alert(ctx, msg)
		return nil
	}
	if m.exec.DryRun {
		return nil
	}

	tp := rec.TP(n)
	tp.Price, tp.Size, tp.OrderID = price, size, clientID
	msg := fmt.Sprintf("#TP%d%s - created a limit order to reduce %s pos by %v @ %v", n, rec.Symbol, rec.Direction, size, price)
	log.Printf("✅ %s", msg)
	m.notifier.Notify(ctx, msg)
	return nil
}

// CheckLimit polls resting limit take-profits and records their fills.
func (m *TakeProfitManager) CheckLimit(ctx context.Context, l *ledger.Ledger) ([]TakeProfitFill, error) {
	var (
		fills []TakeProfitFill
		live  map[string]gateway.Position
	)
	for _, sym := range l.Symbols() {
		rec := l.Get(sym)
		for n := 1; n <= ledger.MaxTakeProfits; n++ {
			tp := rec.TP(n)
			if tp.Executed || !tp.HasOrder() {
				continue
			}
			info, err := m.gw.FetchOrder(ctx, sym, tp.OrderID)
			if err != nil {
				if order.IsRejection(err) {
					log.Printf("⚠️ %s TP%d order %s lookup failed: %v", sym, n, tp.OrderID, err)
					continue
				}
				return fills, fmt.Errorf("fetch order %s: %w", tp.OrderID, err)
			}
			filled := info.Filled()
			if !filled && !info.PartiallyFilled() {
				continue
			}

			if live == nil {
				positions, err := m.gw.FetchPositions(ctx)
				if err != nil {
					return fills, fmt.Errorf("fetch positions: %w", err)
				}
				live = make(map[string]gateway.Position, len(positions))
				for _, p := range positions {
					live[p.Symbol] = p
				}
			}
			pos, ok := live[sym]
			if !ok || pos.Flat() {
				continue
			}

			rec.PositionSize = pos.Size
			pnl := RealizedPnL(info.Side, info.AvgPrice, rec.EntryPrice, info.ExecutedQty)
			reduced := "LONG was reduced by"
			if info.Side == common.SideBuy {
				reduced = "SHORT was reduced by"
			}
			state := "partially filled"
			if filled {
				state = "fully filled"
				rec.MarkTPExecuted(n)
			}
			fills = append(fills, TakeProfitFill{Symbol: sym, Level: n, Size: info.ExecutedQty, Price: info.AvgPrice, Partial: !filled})

			msg := fmt.Sprintf("#TP%d%s %s \n%s %v @ %v$\nremaining size: %v | entry @ %v$ \nRealized PNL: %v$",
				n, sym, state, reduced, info.ExecutedQty, info.AvgPrice, rec.PositionSize, rec.EntryPrice, pnl)
			log.Printf("💰 %s", msg)
			m.notifier.Notify(ctx, msg)
			if filled {
				m.bus.Publish(events.EventTakeProfit, events.PositionEvent{Symbol: sym, Size: info.ExecutedQty, Price: info.AvgPrice, Reason: fmt.Sprintf("tp%d", n), PnL: pnl})
			}
		}
	}
	return fills, nil
}

// RealizedPnL is the pnl of a reduce fill, rounded to cents.
func RealizedPnL(side common.Side, fillPrice, entry, qty float64) float64 {
	if side == common.SideBuy {
		return indicators.Round((entry-fillPrice)*math.Abs(qty), 2)
	}
	return indicators.Round((fillPrice-entry)*qty, 2)
}
