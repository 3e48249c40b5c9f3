package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeLayout is the on-disk format of every ledger timestamp (UTC).
const TimeLayout = "2006-01-02 15:04:05"

// MaxTakeProfits is the number of take-profit levels a record tracks.
const MaxTakeProfits = 2

// Direction of a position as stored in the ledger.
type Direction string

const (
	Long  Direction = "buy"
	Short Direction = "sell"
)

// DirectionOf returns the direction implied by a signed size.
func DirectionOf(size float64) Direction {
	if size < 0 {
		return Short
	}
	return Long
}

// Sign is +1 for longs and -1 for shorts.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

// Timestamp marshals as "YYYY-MM-DD HH:MM:SS" in UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to whole seconds in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Second)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(TimeLayout))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// Day returns the UTC calendar day the timestamp falls on.
func (t Timestamp) Day() time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TakeProfit is the state of one take-profit level.
type TakeProfit struct {
	Executed bool
	Price    float64 // resting limit price, 0 when no order is placed
	Size     float64 // resting limit size
	OrderID  string  // client order id of the resting limit order
}

// HasOrder reports whether a limit order is resting for this level.
func (tp TakeProfit) HasOrder() bool { return tp.OrderID != "" }

// Record is the bot's view of one open position.
type Record struct {
	Symbol string

	EntryPrice       float64
	SecondEntryPrice *float64
	ClosePrice       *float64
	SecondTradeSize  *float64
	PositionSize     float64 // signed: > 0 long, < 0 short
	MaxSize          float64 // signed, largest magnitude reached

	StopPrice     float64  // trailing reference level
	StopLossPrice *float64 // last computed absolute stop level

	Direction       Direction
	EntryTime       Timestamp
	SecondEntryTime *Timestamp
	CloseTime       *Timestamp

	OpenReason      string
	CloseReason     string
	BalanceAtOpen   float64
	BalanceAtClose  *float64
	TradePnL        *float64
	PortfolioPnLPct float64

	TakeProfits [MaxTakeProfits]TakeProfit
}

// OpenParams describes a freshly observed position.
type OpenParams struct {
	Symbol        string
	EntryPrice    float64
	Size          float64
	EntryTime     time.Time
	BalanceAtOpen float64
	OpenReason    string
}

// NewRecord builds a record for a newly opened or newly observed position.
// The trailing reference starts at the entry price.
func NewRecord(p OpenParams) *Record {
	return &Record{
		Symbol:        p.Symbol,
		EntryPrice:    p.EntryPrice,
		PositionSize:  p.Size,
		MaxSize:       p.Size,
		StopPrice:     p.EntryPrice,
		Direction:     DirectionOf(p.Size),
		EntryTime:     NewTimestamp(p.EntryTime),
		OpenReason:    p.OpenReason,
		BalanceAtOpen: p.BalanceAtOpen,
	}
}

// IsLong reports whether the record tracks a long position.
func (r *Record) IsLong() bool { return r.Direction == Long }

// ExtendMaxSize grows MaxSize when the live size exceeds it in magnitude.
func (r *Record) ExtendMaxSize(size float64) {
	if math.Abs(size) > math.Abs(r.MaxSize) {
		r.MaxSize = size
	}
}

// TP returns a pointer to take-profit level n (1-based).
func (r *Record) TP(n int) *TakeProfit {
	if n < 1 || n > MaxTakeProfits {
		return nil
	}
	return &r.TakeProfits[n-1]
}

// MarkTPExecuted flags level n as done. Executed flags are never cleared.
func (r *Record) MarkTPExecuted(n int) {
	if tp := r.TP(n); tp != nil {
		tp.Executed = true
	}
}

// ClearTPOrders forgets resting limit orders while keeping executed flags.
func (r *Record) ClearTPOrders() {
	for i := range r.TakeProfits {
		r.TakeProfits[i].Price = 0
		r.TakeProfits[i].Size = 0
		r.TakeProfits[i].OrderID = ""
	}
}

// SetClose stamps the close fields and the realized portfolio pnl.
func (r *Record) SetClose(price float64, at time.Time, reason string, balance, pnl float64) {
	ts := NewTimestamp(at)
	r.ClosePrice = &price
	r.CloseTime = &ts
	r.CloseReason = reason
	r.BalanceAtClose = &balance
	r.TradePnL = &pnl
	r.PortfolioPnLPct = PortfolioPnLPct(pnl, r.BalanceAtOpen)
}

// PortfolioPnLPct is pnl as a percentage of the balance, rounded to 3 places.
func PortfolioPnLPct(pnl, balance float64) float64 {
	if balance == 0 {
		return 0
	}
	return math.Round(pnl/balance*100*1000) / 1000
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.SecondEntryPrice = clonePtr(r.SecondEntryPrice)
	c.ClosePrice = clonePtr(r.ClosePrice)
	c.SecondTradeSize = clonePtr(r.SecondTradeSize)
	c.StopLossPrice = clonePtr(r.StopLossPrice)
	c.SecondEntryTime = clonePtr(r.SecondEntryTime)
	c.CloseTime = clonePtr(r.CloseTime)
	c.BalanceAtClose = clonePtr(r.BalanceAtClose)
	c.TradePnL = clonePtr(r.TradePnL)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Validate checks the record invariants.
func (r *Record) Validate() error {
	var errs []error
	switch r.Direction {
	case Long, Short:
	default:
		errs = append(errs, fmt.Errorf("unknown direction %q", r.Direction))
	}
	if r.PositionSize == 0 {
		errs = append(errs, errors.New("position_size is zero"))
	}
	if r.PositionSize != 0 && DirectionOf(r.PositionSize) != r.Direction {
		errs = append(errs, fmt.Errorf("position_size %v does not match direction %s", r.PositionSize, r.Direction))
	}
	if r.MaxSize != 0 && DirectionOf(r.MaxSize) != r.Direction {
		errs = append(errs, fmt.Errorf("max_size %v does not match direction %s", r.MaxSize, r.Direction))
	}
	if r.EntryPrice <= 0 {
		errs = append(errs, fmt.Errorf("entry_price %v must be positive", r.EntryPrice))
	}
	if r.StopPrice <= 0 {
		errs = append(errs, fmt.Errorf("stop_price %v must be positive", r.StopPrice))
	}
	if r.EntryTime.IsZero() {
		errs = append(errs, errors.New("entry_time missing"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("record %s: %w", r.Symbol, errors.Join(errs...))
}

// recordJSON is the persisted layout of a record.
type recordJSON struct {
	EntryPrice       float64    `json:"entry_price"`
	SecondEntryPrice *float64   `json:"second_entry_price"`
	ClosePrice       *float64   `json:"close_price"`
	SecondTradeSize  *float64   `json:"second_trade_size"`
	PositionSize     float64    `json:"position_size"`
	MaxSize          float64    `json:"max_size"`
	TP1Executed      bool       `json:"tp1_executed"`
	TP2Executed      bool       `json:"tp2_executed"`
	StopPrice        float64    `json:"stop_price"`
	StopLossPrice    *float64   `json:"stop_loss_price"`
	Direction        Direction  `json:"direction"`
	EntryTime        Timestamp  `json:"entry_time"`
	SecondEntryTime  *Timestamp `json:"second_entry_time"`
	CloseTime        *Timestamp `json:"close_time"`
	OpenReason       *string    `json:"open_reason"`
	CloseReason      *string    `json:"close_reason"`
	BalanceAtOpen    float64    `json:"balance_at_open"`
	BalanceAtClose   *float64   `json:"balance_at_close"`
	TradePnL         *float64   `json:"trade_pnl"`
	PortfolioPnLPct  float64    `json:"portfolio_pnl_pct"`
	TP1Price         *float64   `json:"tp1_price"`
	TP1Size          *float64   `json:"tp1_size"`
	TP1ID            *string    `json:"tp1_id"`
	TP2Price         *float64   `json:"tp2_price"`
	TP2Size          *float64   `json:"tp2_size"`
	TP2ID            *string    `json:"tp2_id"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	tp1, tp2 := r.TakeProfits[0], r.TakeProfits[1]
	return json.Marshal(recordJSON{
		EntryPrice:       r.EntryPrice,
		SecondEntryPrice: r.SecondEntryPrice,
		ClosePrice:       r.ClosePrice,
		SecondTradeSize:  r.SecondTradeSize,
		PositionSize:     r.PositionSize,
		MaxSize:          r.MaxSize,
		TP1Executed:      tp1.Executed,
		TP2Executed:      tp2.Executed,
		StopPrice:        r.StopPrice,
		StopLossPrice:    r.StopLossPrice,
		Direction:        r.Direction,
		EntryTime:        r.EntryTime,
		SecondEntryTime:  r.SecondEntryTime,
		CloseTime:        r.CloseTime,
		OpenReason:       nonEmpty(r.OpenReason),
		CloseReason:      nonEmpty(r.CloseReason),
		BalanceAtOpen:    r.BalanceAtOpen,
		BalanceAtClose:   r.BalanceAtClose,
		TradePnL:         r.TradePnL,
		PortfolioPnLPct:  r.PortfolioPnLPct,
		TP1Price:         nonZero(tp1.Price),
		TP1Size:          nonZero(tp1.Size),
		TP1ID:            nonEmpty(tp1.OrderID),
		TP2Price:         nonZero(tp2.Price),
		TP2Size:          nonZero(tp2.Size),
		TP2ID:            nonEmpty(tp2.OrderID),
	})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var w recordJSON
	if err := dec.Decode(&w); err != nil {
		return err
	}
	*r = Record{
		Symbol:           r.Symbol,
		EntryPrice:       w.EntryPrice,
		SecondEntryPrice: w.SecondEntryPrice,
		ClosePrice:       w.ClosePrice,
		SecondTradeSize:  w.SecondTradeSize,
		PositionSize:     w.PositionSize,
		MaxSize:          w.MaxSize,
		StopPrice:        w.StopPrice,
		StopLossPrice:    w.StopLossPrice,
		Direction:        Direction(strings.ToLower(string(w.Direction))),
		EntryTime:        w.EntryTime,
		SecondEntryTime:  w.SecondEntryTime,
		CloseTime:        w.CloseTime,
		OpenReason:       deref(w.OpenReason),
		CloseReason:      deref(w.CloseReason),
		BalanceAtOpen:    w.BalanceAtOpen,
		BalanceAtClose:   w.BalanceAtClose,
		TradePnL:         w.TradePnL,
		PortfolioPnLPct:  w.PortfolioPnLPct,
	}
	r.TakeProfits[0] = TakeProfit{Executed: w.TP1Executed, Price: deref(w.TP1Price), Size: deref(w.TP1Size), OrderID: deref(w.TP1ID)}
	r.TakeProfits[1] = TakeProfit{Executed: w.TP2Executed, Price: deref(w.TP2Price), Size: deref(w.TP2Size), OrderID: deref(w.TP2ID)}
	return nil
}

func nonZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
