package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
	market "github.com/webclinic017/GDA-v2/pkg/market/binance"
)

// ErrUnknownSymbol is returned when a symbol has no market rules.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Position is a live exchange position. Size is signed: > 0 long, < 0 short.
type Position struct {
	Symbol        string
	Size          float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Notional      float64
	UpdateTime    time.Time
}

// Flat reports whether there is no open position.
func (p Position) Flat() bool { return p.Size == 0 }

// Balance holds the account totals the strategy sizes against.
type Balance struct {
	Wallet float64 // wallet balance, excludes unrealized pnl
	Margin float64 // wallet + unrealized pnl (NAV)
}

// OrderInfo is the state of a previously placed order.
type OrderInfo struct {
	Symbol      string
	ClientID    string
	ExchangeID  string
	Side        common.Side
	Type        common.OrderType
	Status      common.OrderStatus
	Price       float64
	AvgPrice    float64
	OrigQty     float64
	ExecutedQty float64
	ReduceOnly  bool
}

// Filled reports whether the order has been completely filled.
func (o OrderInfo) Filled() bool {
	return o.Status == common.StatusFilled || (o.OrigQty > 0 && o.ExecutedQty == o.OrigQty)
}

// PartiallyFilled reports whether part of the order has executed.
func (o OrderInfo) PartiallyFilled() bool {
	return o.ExecutedQty > 0 && o.ExecutedQty < o.OrigQty
}

// Gateway is everything the bot needs from the exchange.
type Gateway interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Kline, error)
	FetchMarketRules(ctx context.Context) (map[string]market.SymbolRules, error)
	FetchPrice(ctx context.Context, symbol string) (float64, error)
	// FetchPositions returns all positions with a non-zero size.
	FetchPositions(ctx context.Context) ([]Position, error)
	// FetchPosition returns a zero-size Position when flat.
	FetchPosition(ctx context.Context, symbol string) (Position, error)
	FetchBalance(ctx context.Context) (Balance, error)
	PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	FetchOrder(ctx context.Context, symbol, clientID string) (OrderInfo, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]OrderInfo, error)
}
