package gateway

import (
	"context"
	"time"

	"github.com/webclinic017/GDA-v2/pkg/exchanges/binance/futures_usdt"
	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
	market "github.com/webclinic017/GDA-v2/pkg/market/binance"
)

// Binance is the USDT-M futures gateway. Signed calls go through the
// futures_usdt client, public market data through go-binance.
type Binance struct {
	trader *futures_usdt.Client
	market *market.Client
}

// BinanceConfig configures the Binance gateway.
type BinanceConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// NewBinance builds a gateway for the given credentials.
func NewBinance(cfg BinanceConfig) *Binance {
	return &Binance{
		trader: futures_usdt.NewClient(futures_usdt.Config{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			Testnet:   cfg.Testnet,
		}),
		market: market.NewClient(cfg.Testnet, ""),
	}
}

// NewBinanceWithClients wires pre-built clients (tests, custom hosts).
func NewBinanceWithClients(trader *futures_usdt.Client, mkt *market.Client) *Binance {
	return &Binance{trader: trader, market: mkt}
}

// Start begins server time synchronisation for signed requests.
func (b *Binance) Start(ctx context.Context) {
	b.trader.StartTimeSync(ctx)
}

func (b *Binance) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Kline, error) {
	return b.market.Klines(ctx, symbol, timeframe, limit)
}

func (b *Binance) FetchMarketRules(ctx context.Context) (map[string]market.SymbolRules, error) {
	return b.market.ExchangeRules(ctx)
}

func (b *Binance) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	return b.market.LastPrice(ctx, symbol)
}

func (b *Binance) FetchPositions(ctx context.Context) ([]Position, error) {
	raw, err := b.trader.GetPositions(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		if p.Amount() == 0 {
			continue
		}
		out = append(out, toPosition(p))
	}
	return out, nil
}

func (b *Binance) FetchPosition(ctx context.Context, symbol string) (Position, error) {
	raw, err := b.trader.GetPositions(ctx, symbol)
	if err != nil {
		return Position{}, err
	}
	for _, p := range raw {
		if p.Symbol == symbol && p.Amount() != 0 {
			return toPosition(p), nil
		}
	}
	return Position{Symbol: symbol}, nil
}

func (b *Binance) FetchBalance(ctx context.Context) (Balance, error) {
	info, err := b.trader.GetAccountInfo(ctx)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Wallet: info.WalletBalance(), Margin: info.MarginBalance()}, nil
}

func (b *Binance) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	return b.trader.SubmitOrder(ctx, req)
}

func (b *Binance) CancelAllOrders(ctx context.Context, symbol string) error {
	return b.trader.CancelAllOpenOrders(ctx, symbol)
}

func (b *Binance) FetchOrder(ctx context.Context, symbol, clientID string) (OrderInfo, error) {
	o, err := b.trader.GetOrder(ctx, symbol, clientID)
	if err != nil {
		return OrderInfo{}, err
	}
	return toOrderInfo(*o), nil
}

func (b *Binance) FetchOpenOrders(ctx context.Context, symbol string) ([]OrderInfo, error) {
	raw, err := b.trader.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]OrderInfo, 0, len(raw))
	for _, o := range raw {
		out = append(out, toOrderInfo(o))
	}
	return out, nil
}

func toPosition(p futures_usdt.PositionRisk) Position {
	// Binance reports 0 when it has no update time.
	var updated time.Time
	if p.UpdateTime > 0 {
		updated = time.UnixMilli(p.UpdateTime).UTC()
	}
	return Position{
		Symbol:        p.Symbol,
		Size:          p.Amount(),
		EntryPrice:    p.Entry(),
		MarkPrice:     p.Mark(),
		UnrealizedPnL: p.Unrealized(),
		Notional:      p.NotionalValue(),
		UpdateTime:    updated,
	}
}

func toOrderInfo(o futures_usdt.Order) OrderInfo {
	return OrderInfo{
		Symbol:      o.Symbol,
		ClientID:    o.ClientOrderID,
		ExchangeID:  formatID(o.OrderID),
		Side:        common.Side(o.Side),
		Type:        common.OrderType(o.Type),
		Status:      o.NormalizedStatus(),
		Price:       o.LimitPrice(),
		AvgPrice:    o.Avg(),
		OrigQty:     o.Orig(),
		ExecutedQty: o.Executed(),
		ReduceOnly:  o.ReduceOnly,
	}
}
