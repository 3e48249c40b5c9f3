package order

import (
	"strconv"

	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
)

// Client order id suffixes used by the strategy.
const (
	TagOpenCross           = "open_cross"
	TagOpenCrossIncreasing = "open_cross_increasing"
	TagOpenCrossDecreasing = "open_cross_decreasing"
	TagCloseCross          = "close_cross"
	TagStopLoss            = "stop_loss"
)

// ClientID builds the exchange client order id for a symbol and tag.
func ClientID(symbol, tag string) string {
	return symbol + "_" + tag
}

// TakeProfitTag is the tag of take-profit level n.
func TakeProfitTag(n int) string {
	return "tp_" + strconv.Itoa(n)
}

// Order represents an order intent from the strategy or the risk engines.
type Order struct {
	Symbol      string
	Side        common.Side
	Type        common.OrderType
	Qty         float64 // always positive
	Price       float64 // limit price, or the reference price of a market order
	TimeInForce common.TimeInForce
	ReduceOnly  bool
	ClientID    string
	Reason      string
}

// Request converts the intent into a gateway request.
func (o Order) Request() common.OrderRequest {
	req := common.OrderRequest{
		Symbol:     o.Symbol,
		Side:       o.Side,
		Type:       o.Type,
		Qty:        o.Qty,
		ClientID:   o.ClientID,
		ReduceOnly: o.ReduceOnly,
	}
	if o.Type == common.OrderTypeLimit {
		req.Price = o.Price
		req.TimeInForce = o.TimeInForce
		if req.TimeInForce == "" {
			req.TimeInForce = common.TIFGTC
		}
	}
	return req
}
