package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	bncommon "github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
)

// Client reads public USDT-M futures market data through go-binance.
type Client struct {
	client *futures.Client
}

// NewClient builds a market data client. An empty baseURL keeps the
// library's mainnet/testnet endpoint.
func NewClient(testnet bool, baseURL string) *Client {
	if testnet {
		futures.UseTestnet = true
	}
	c := binance.NewFuturesClient("", "")
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	return &Client{client: c}
}

// Klines returns up to limit candles of the given interval, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	raw, err := c.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, wrapErr("klines", err)
	}
	out := make([]Kline, 0, len(raw))
	for _, k := range raw {
		out = append(out, Kline{
			Symbol:    symbol,
			OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
			Open:      toFloat(k.Open),
			High:      toFloat(k.High),
			Low:       toFloat(k.Low),
			Close:     toFloat(k.Close),
			Volume:    toFloat(k.Volume),
			CloseTime: time.UnixMilli(k.CloseTime).UTC(),
		})
	}
	return out, nil
}

// ExchangeRules loads exchange info and returns the rules per symbol.
func (c *Client) ExchangeRules(ctx context.Context) (map[string]SymbolRules, error) {
	info, err := c.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, wrapErr("exchange info", err)
	}
	out := make(map[string]SymbolRules, len(info.Symbols))
	for _, s := range info.Symbols {
		r := SymbolRules{
			Symbol:            s.Symbol,
			Status:            s.Status,
			ContractType:      string(s.ContractType),
			PricePrecision:    s.PricePrecision,
			QuantityPrecision: s.QuantityPrecision,
		}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "PERCENT_PRICE":
				r.MultiplierUp = anyFloat(f["multiplierUp"])
				r.MultiplierDown = anyFloat(f["multiplierDown"])
			case "PRICE_FILTER":
				r.TickSize = anyFloat(f["tickSize"])
			case "LOT_SIZE":
				r.StepSize = anyFloat(f["stepSize"])
			}
		}
		out[s.Symbol] = r
	}
	return out, nil
}

// LastPrice returns the last traded price for a symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, wrapErr("price", err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return toFloat(p.Price), nil
		}
	}
	return 0, fmt.Errorf("price: no ticker for %s", symbol)
}

// wrapErr converts library API errors into common.APIError so retry
// classification works the same for both clients.
func wrapErr(op string, err error) error {
	var apiErr *bncommon.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &common.APIError{
			Method:   "GET",
			Endpoint: op,
			Code:     int(apiErr.Code),
			Message:  apiErr.Message,
		})
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func anyFloat(v interface{}) float64 {
	switch t := v.(type) {
	case string:
		return toFloat(t)
	case float64:
		return t
	}
	return 0
}
