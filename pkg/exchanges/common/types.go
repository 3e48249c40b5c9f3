package common

import (
	"errors"
	"fmt"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes the order types the bot sends.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
	TIFFOK TimeInForce = "FOK" // Fill Or Kill
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// MapStatus converts a Binance order status string.
func MapStatus(s string) OrderStatus {
	switch s {
	case "NEW":
		return StatusNew
	case "PARTIALLY_FILLED":
		return StatusPartial
	case "FILLED":
		return StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return StatusCanceled
	case "REJECTED":
		return StatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return StatusExpired
	default:
		return StatusUnknown
	}
}

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Qty         float64
	Price       float64 // required for LIMIT
	TimeInForce TimeInForce
	ClientID    string
	ReduceOnly  bool
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	ExchangeOrderID string
	Status          OrderStatus
	ClientID        string
	AvgPrice        float64
	ExecutedQty     float64
}

// APIError is a non-2xx answer from an exchange REST endpoint.
type APIError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Code       int // exchange error code, 0 when the body carried none
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %s status %d code %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed when retried:
// throttling, server side failures and timestamp drift.
func (e *APIError) Temporary() bool {
	switch {
	case e.StatusCode == 429 || e.StatusCode == 418:
		return true
	case e.StatusCode >= 500:
		return true
	}
	switch e.Code {
	case -1001, -1003, -1007, -1021:
		return true
	}
	return false
}

// IsTemporary reports whether err wraps a temporary APIError.
func IsTemporary(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}
