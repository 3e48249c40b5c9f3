// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
	market "github.com/webclinic017/GDA-v2/pkg/market/binance"
)

// Fake is an in-memory exchange. Market orders fill immediately at the
// symbol price and move the position; limit orders rest until Fill is
// called. Errors can be injected per method name.
type Fake struct {
	mu sync.Mutex

	Positions  map[string]gateway.Position
	Prices     map[string]float64
	Rules      map[string]market.SymbolRules
	Candles    map[string][]market.Kline // key: symbol + "|" + timeframe
	Balance    gateway.Balance
	Orders     []common.OrderRequest
	Cancels    []string
	OrderBook  map[string]gateway.OrderInfo // by client id
	Errors     map[string]error             // method name -> error
	Calls      map[string]int
	ignoreFill bool
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Positions: make(map[string]gateway.Position),
		Prices:    make(map[string]float64),
		Rules:     make(map[string]market.SymbolRules),
		Candles:   make(map[string][]market.Kline),
		OrderBook: make(map[string]gateway.OrderInfo),
		Errors:    make(map[string]error),
		Calls:     make(map[string]int),
	}
}

// FreezePositions keeps positions unchanged when market orders fill.
func (f *Fake) FreezePositions() {
	f.mu.Lock()
	f.ignoreFill = true
	f.mu.Unlock()
}

// SetPosition sets a live position.
func (f *Fake) SetPosition(symbol string, size, entry, mark float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size == 0 {
		delete(f.Positions, symbol)
		return
	}
	f.Positions[symbol] = gateway.Position{Symbol: symbol, Size: size, EntryPrice: entry, MarkPrice: mark}
}

// SetCandles stores candles for symbol/timeframe.
func (f *Fake) SetCandles(symbol, timeframe string, ks []market.Kline) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Candles[symbol+"|"+timeframe] = ks
}

// Fill marks a resting order as executed by qty at price and applies it.
func (f *Fake) Fill(clientID string, qty, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.OrderBook[clientID]
	if !ok {
		return
	}
	o.ExecutedQty += qty
	o.AvgPrice = price
	if o.ExecutedQty >= o.OrigQty {
		o.Status = common.StatusFilled
	} else {
		o.Status = common.StatusPartial
	}
	f.OrderBook[clientID] = o
	f.apply(o.Symbol, o.Side, qty, price)
}

// OrderCount is the number of orders placed so far.
func (f *Fake) OrderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Orders)
}

// LastOrder returns the most recent order request.
func (f *Fake) LastOrder() (common.OrderRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Orders) == 0 {
		return common.OrderRequest{}, false
	}
	return f.Orders[len(f.Orders)-1], true
}

func (f *Fake) call(name string) error {
	f.Calls[name]++
	return f.Errors[name]
}

func (f *Fake) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Kline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FetchCandles"); err != nil {
		return nil, err
	}
	ks := f.Candles[symbol+"|"+timeframe]
	if limit > 0 && len(ks) > limit {
		ks = ks[len(ks)-limit:]
	}
	out := make([]market.Kline, len(ks))
	copy(out, ks)
	return out, nil
}

func (f *Fake) FetchMarketRules(ctx context.Context) (map[string]market.SymbolRules, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FetchMarketRules"); err != nil {
		return nil, err
	}
	out := make(map[string]market.SymbolRules, len(f.Rules))
	for k, v := range f.Rules {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FetchPrice"); err != nil {
		return 0, err
	}
	p, ok := f.Prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return p, nil
}

func (f *Fake) FetchPositions(ctx context.Context) ([]gateway.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FetchPositions"); err != nil {
		return nil, err
	}
	out := make([]gateway.Position, 0, len(f.Positions))
	for _, p := range f.Positions {
		out = append(out, p)
	}
	return out, nil
}

func (f *Fake) FetchPosition(ctx context.Context, symbol string) (gateway.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FetchPosition"); err != nil {
		return gateway.Position{}, err
	}
	if p, ok := f.Positions[symbol]; ok {
		return p, nil
	}
	return gateway.Position{Symbol: symbol}, nil
}

func (f *Fake) FetchBalance(ctx context.Context) (gateway.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FetchBalance"); err != nil {
		return gateway.Balance{}, err
	}
	return f.Balance, nil
}

func (f *Fake) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("PlaceOrder"); err != nil {
		return common.OrderResult{}, err
	}
	f.Orders = append(f.Orders, req)
	id := fmt.Sprintf("%d", len(f.Orders))
	info := gateway.OrderInfo{
		Symbol:     req.Symbol,
		ClientID:   req.ClientID,
		ExchangeID: id,
		Side:       req.Side,
		Type:       req.Type,
		Status:     common.StatusNew,
		Price:      req.Price,
		OrigQty:    req.Qty,
		ReduceOnly: req.ReduceOnly,
	}
	if req.Type == common.OrderTypeMarket {
		price := f.Prices[req.Symbol]
		info.Status = common.StatusFilled
		info.ExecutedQty = req.Qty
		info.AvgPrice = price
		f.apply(req.Symbol, req.Side, req.Qty, price)
	}
	f.OrderBook[req.ClientID] = info
	return common.OrderResult{
		ExchangeOrderID: id,
		Status:          info.Status,
		ClientID:        req.ClientID,
		AvgPrice:        info.AvgPrice,
		ExecutedQty:     info.ExecutedQty,
	}, nil
}

// apply moves the position by a fill. Caller holds f.mu.
func (f *Fake) apply(symbol string, side common.Side, qty, price float64) {
	if f.ignoreFill {
		return
	}
	delta := qty
	if side == common.SideSell {
		delta = -qty
	}
	p := f.Positions[symbol]
	p.Symbol = symbol
	newSize := math.Round((p.Size+delta)*1e8) / 1e8
	switch {
	case newSize == 0:
		delete(f.Positions, symbol)
		return
	case p.Size == 0 || (p.Size > 0) != (newSize > 0):
		p.EntryPrice = price
	case math.Abs(newSize) > math.Abs(p.Size):
		p.EntryPrice = (p.EntryPrice*math.Abs(p.Size) + price*qty) / math.Abs(newSize)
	}
	p.Size = newSize
	if p.MarkPrice == 0 {
		p.MarkPrice = price
	}
	f.Positions[symbol] = p
}

func (f *Fake) CancelAllOrders(ctx context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CancelAllOrders"); err != nil {
		return err
	}
	f.Cancels = append(f.Cancels, symbol)
	for id, o := range f.OrderBook {
		if o.Symbol == symbol && (o.Status == common.StatusNew || o.Status == common.StatusPartial) {
			o.Status = common.StatusCanceled
			f.OrderBook[id] = o
		}
	}
	return nil
}

func (f *Fake) FetchOrder(ctx context.Context, symbol, clientID string) (gateway.OrderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FetchOrder"); err != nil {
		return gateway.OrderInfo{}, err
	}
	o, ok := f.OrderBook[clientID]
	if !ok {
		return gateway.OrderInfo{}, fmt.Errorf("order %s not found", clientID)
	}
	return o, nil
}

func (f *Fake) FetchOpenOrders(ctx context.Context, symbol string) ([]gateway.OrderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("FetchOpenOrders"); err != nil {
		return nil, err
	}
	var out []gateway.OrderInfo
	for _, o := range f.OrderBook {
		if o.Symbol == symbol && (o.Status == common.StatusNew || o.Status == common.StatusPartial) {
			out = append(out, o)
		}
	}
	return out, nil
}

var _ gateway.Gateway = (*Fake)(nil)
