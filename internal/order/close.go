package order

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/ledger"
	"github.com/webclinic017/GDA-v2/pkg/db"
	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
)

// CloseSide is the side that flattens a signed position.
func CloseSide(size float64) common.Side {
	if size < 0 {
		return common.SideBuy
	}
	return common.SideSell
}

// OpenSide is the side that grows a position in the direction of size.
func OpenSide(size float64) common.Side {
	return CloseSide(size).Opposite()
}

// ClosePosition sends a reduce-only market order for the whole of size.
func (e *Executor) ClosePosition(ctx context.Context, symbol string, size, price float64, tag, reason string) (common.OrderResult, error) {
	return e.Submit(ctx, Order{
		Symbol:     symbol,
		Side:       CloseSide(size),
		Type:       common.OrderTypeMarket,
		Qty:        math.Abs(size),
		Price:      price,
		ReduceOnly: true,
		ClientID:   ClientID(symbol, tag),
		Reason:     reason,
	})
}

// RecordClose stamps the close fields on rec, journals the closed trade and
// publishes it. rec may be nil when the position was never recorded.
func (e *Executor) RecordClose(ctx context.Context, rec *ledger.Record, symbol string, size, closePrice, balance, pnl float64, reason string, at time.Time) {
	trade := db.ClosedTrade{
		Symbol:         symbol,
		Direction:      string(ledger.DirectionOf(size)),
		Size:           math.Abs(size),
		ClosePrice:     closePrice,
		PnL:            pnl,
		BalanceAtClose: balance,
		CloseReason:    reason,
		CloseTime:      at.UTC(),
	}
	if rec != nil {
		rec.SetClose(closePrice, at, reason, balance, pnl)
		trade.EntryPrice = rec.EntryPrice
		trade.PortfolioPnLPct = rec.PortfolioPnLPct
		trade.BalanceAtOpen = rec.BalanceAtOpen
		trade.OpenReason = rec.OpenReason
		trade.EntryTime = rec.EntryTime.Time
	}

	e.Bus.Publish(events.EventPositionClosed, events.PositionEvent{
		Symbol: symbol,
		Size:   size,
		Price:  closePrice,
		Reason: reason,
		PnL:    pnl,
	})

	if e.DB == nil {
		return
	}
	if err := e.DB.CreateClosedTrade(ctx, trade); err != nil {
		log.Printf("⚠️ executor: store closed trade error: %v", err)
	}
}
