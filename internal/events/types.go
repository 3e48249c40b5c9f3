package events

import "time"

// Event enumerates high-level topics inside the bot.
type Event string

const (
	EventOrderSubmitted  Event = "order.submitted"
	EventOrderAccepted   Event = "order.accepted"
	EventOrderRejected   Event = "order.rejected"
	EventPositionOpened  Event = "position.opened"
	EventPositionChanged Event = "position.changed"
	EventPositionClosed  Event = "position.closed"
	EventStopMoved       Event = "stop.moved"
	EventStopTriggered   Event = "stop.triggered"
	EventTakeProfit      Event = "take_profit"
	EventReconciliation  Event = "reconciliation"
	EventCycleCompleted  Event = "cycle.completed"
	EventCycleFailed     Event = "cycle.failed"
	EventSignalGenerated Event = "signal.generated"
	EventStatusReport    Event = "status.report"
)

// AllEvents lists every topic, used by stream subscribers.
var AllEvents = []Event{
	EventOrderSubmitted,
	EventOrderAccepted,
	EventOrderRejected,
	EventPositionOpened,
	EventPositionChanged,
	EventPositionClosed,
	EventStopMoved,
	EventStopTriggered,
	EventTakeProfit,
	EventReconciliation,
	EventCycleCompleted,
	EventCycleFailed,
	EventSignalGenerated,
	EventStatusReport,
}

// Envelope wraps a payload with its topic for fan-in consumers.
type Envelope struct {
	Event   Event     `json:"event"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// OrderEvent is published by the order executor.
type OrderEvent struct {
	Symbol     string  `json:"symbol"`
	ClientID   string  `json:"client_id"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Qty        float64 `json:"qty"`
	Price      float64 `json:"price"`
	ReduceOnly bool    `json:"reduce_only"`
	Status     string  `json:"status,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// PositionEvent describes a ledger change for one symbol.
type PositionEvent struct {
	Symbol string  `json:"symbol"`
	Size   float64 `json:"size"`
	Price  float64 `json:"price"`
	Reason string  `json:"reason"`
	PnL    float64 `json:"pnl,omitempty"`
}

// CycleEvent summarises a finished cycle.
type CycleEvent struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Orders   int           `json:"orders"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// ReconcileEvent is one ledger correction.
type ReconcileEvent struct {
	Symbol      string  `json:"symbol"`
	Kind        string  `json:"kind"`
	LocalQty    float64 `json:"local_qty"`
	ExchangeQty float64 `json:"exchange_qty"`
}

// StatusEvent carries the account figures of a status report or cycle end.
type StatusEvent struct {
	OpenPositions int     `json:"open_positions"`
	Wallet        float64 `json:"wallet"`
	NAV           float64 `json:"nav"`
}

// SignalEvent reports an EMA crossover seen in the last two candles.
type SignalEvent struct {
	Symbol    string `json:"symbol"`
	Pair      string `json:"pair"` // "shorter" or "longer"
	Direction string `json:"direction"`
}
