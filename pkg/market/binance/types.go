package market

import "time"

// Kline represents a single futures candlestick.
type Kline struct {
	Symbol    string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// SymbolRules are the per-market trading rules the bot needs: rounding
// precisions and the PERCENT_PRICE band used for limit orders.
type SymbolRules struct {
	Symbol            string  `json:"symbol"`
	Status            string  `json:"status"`
	ContractType      string  `json:"contract_type"`
	PricePrecision    int     `json:"price_precision"`
	QuantityPrecision int     `json:"quantity_precision"`
	MultiplierUp      float64 `json:"multiplier_up"`
	MultiplierDown    float64 `json:"multiplier_down"`
	TickSize          float64 `json:"tick_size"`
	StepSize          float64 `json:"step_size"`
}

// Tradable reports whether the market currently accepts orders.
func (r SymbolRules) Tradable() bool {
	return r.Status == "" || r.Status == "TRADING"
}
