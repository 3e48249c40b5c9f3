package futures_usdt

import "github.com/webclinic017/GDA-v2/pkg/exchanges/common"

type orderResp struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
}

// FuturesAccountInfo is the /fapi/v2/account payload.
type FuturesAccountInfo struct {
	CanTrade              bool   `json:"canTrade"`
	UpdateTime            int64  `json:"updateTime"`
	TotalWalletBalance    string `json:"totalWalletBalance"`
	TotalMarginBalance    string `json:"totalMarginBalance"`
	TotalUnrealizedProfit string `json:"totalUnrealizedProfit"`
	AvailableBalance      string `json:"availableBalance"`
	Assets                []struct {
		Asset            string `json:"asset"`
		WalletBalance    string `json:"walletBalance"`
		UnrealizedProfit string `json:"unrealizedProfit"`
	} `json:"assets"`
}

// WalletBalance returns totalWalletBalance as a float.
func (a *FuturesAccountInfo) WalletBalance() float64 { return parseFloat(a.TotalWalletBalance) }

// MarginBalance returns totalMarginBalance (wallet + unrealized pnl).
func (a *FuturesAccountInfo) MarginBalance() float64 { return parseFloat(a.TotalMarginBalance) }

// PositionRisk is one entry of /fapi/v2/positionRisk.
type PositionRisk struct {
	Symbol           string `json:"symbol"`
	PositionSide     string `json:"positionSide"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Notional         string `json:"notional"`
	Leverage         string `json:"leverage"`
	UpdateTime       int64  `json:"updateTime"`
}

func (p PositionRisk) Amount() float64     { return parseFloat(p.PositionAmt) }
func (p PositionRisk) Entry() float64      { return parseFloat(p.EntryPrice) }
func (p PositionRisk) Mark() float64       { return parseFloat(p.MarkPrice) }
func (p PositionRisk) Unrealized() float64 { return parseFloat(p.UnRealizedProfit) }
func (p PositionRisk) NotionalValue() float64 {
	return parseFloat(p.Notional)
}

// Order is a queried or open order.
type Order struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	AvgPrice      string `json:"avgPrice"`
	OrigQty       string `json:"origQty"`
	ExecQty       string `json:"executedQty"`
	Status        string `json:"status"`
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTime    int64  `json:"updateTime"`
}

func (o Order) Orig() float64     { return parseFloat(o.OrigQty) }
func (o Order) Executed() float64 { return parseFloat(o.ExecQty) }
func (o Order) Avg() float64      { return parseFloat(o.AvgPrice) }
func (o Order) LimitPrice() float64 {
	return parseFloat(o.Price)
}
func (o Order) NormalizedStatus() common.OrderStatus { return common.MapStatus(o.Status) }

type errorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func toBinanceTIF(tif common.TimeInForce) common.TimeInForce {
	if tif == "" {
		return common.TIFGTC
	}
	return tif
}
