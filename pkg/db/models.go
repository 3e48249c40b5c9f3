package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Cycle statuses.
const (
	CycleRunning = "running"
	CycleOK      = "ok"
	CycleFailed  = "failed"
)

// Cycle is one scheduled run of the bot.
type Cycle struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Orders     int        `json:"orders"`
	Symbols    int        `json:"symbols"`
	Error      string     `json:"error,omitempty"`
}

// Order is a journaled order submission.
type Order struct {
	ID              string    `json:"id"`
	CycleID         string    `json:"cycle_id"`
	Symbol          string    `json:"symbol"`
	ClientOrderID   string    `json:"client_order_id"`
	ExchangeOrderID string    `json:"exchange_order_id"`
	Side            string    `json:"side"`
	Type            string    `json:"type"`
	Qty             float64   `json:"qty"`
	Price           float64   `json:"price"`
	AvgPrice        float64   `json:"avg_price"`
	ReduceOnly      bool      `json:"reduce_only"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason"`
	DryRun          bool      `json:"dry_run"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ClosedTrade is a position closed by a signal or a stop.
type ClosedTrade struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Direction       string    `json:"direction"`
	Size            float64   `json:"size"`
	EntryPrice      float64   `json:"entry_price"`
	ClosePrice      float64   `json:"close_price"`
	PnL             float64   `json:"pnl"`
	PortfolioPnLPct float64   `json:"portfolio_pnl_pct"`
	BalanceAtOpen   float64   `json:"balance_at_open"`
	BalanceAtClose  float64   `json:"balance_at_close"`
	OpenReason      string    `json:"open_reason"`
	CloseReason     string    `json:"close_reason"`
	EntryTime       time.Time `json:"entry_time"`
	CloseTime       time.Time `json:"close_time"`
}

// ReconciliationEvent is one correction applied to the ledger.
type ReconciliationEvent struct {
	ID          string    `json:"id"`
	CycleID     string    `json:"cycle_id"`
	Symbol      string    `json:"symbol"`
	Kind        string    `json:"kind"`
	LocalQty    float64   `json:"local_qty"`
	ExchangeQty float64   `json:"exchange_qty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StartCycle inserts a running cycle and returns its id.
func (d *Database) StartCycle(ctx context.Context, kind string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO cycles (id, kind, status, started_at) VALUES (?, ?, ?, ?)
	`, id, kind, CycleRunning, startedAt.UTC())
	return id, err
}

// FinishCycle stores the outcome of a cycle.
func (d *Database) FinishCycle(ctx context.Context, id, status string, orders, symbols int, errText string, finishedAt time.Time) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE cycles SET status = ?, orders = ?, symbols = ?, error = ?, finished_at = ? WHERE id = ?
	`, status, orders, symbols, nullString(errText), finishedAt.UTC(), id)
	return err
}

// CreateOrder journals an order submission.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (id, cycle_id, symbol, client_order_id, exchange_order_id, side, type, qty, price,
			avg_price, reduce_only, status, reason, dry_run, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.CycleID, o.Symbol, o.ClientOrderID, o.ExchangeOrderID, o.Side, o.Type, o.Qty, o.Price,
		o.AvgPrice, boolInt(o.ReduceOnly), o.Status, o.Reason, boolInt(o.DryRun), nullString(o.Error), o.CreatedAt.UTC())
	return err
}

// CreateClosedTrade journals a closed position.
func (d *Database) CreateClosedTrade(ctx context.Context, t ClosedTrade) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO closed_trades (id, symbol, direction, size, entry_price, close_price, pnl, portfolio_pnl_pct,
			balance_at_open, balance_at_close, open_reason, close_reason, entry_time, close_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Symbol, t.Direction, t.Size, t.EntryPrice, t.ClosePrice, t.PnL, t.PortfolioPnLPct,
		t.BalanceAtOpen, t.BalanceAtClose, t.OpenReason, t.CloseReason, t.EntryTime.UTC(), t.CloseTime.UTC())
	return err
}

// CreateReconciliationEvent journals a ledger correction.
func (d *Database) CreateReconciliationEvent(ctx context.Context, e ReconciliationEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO reconciliation_events (id, cycle_id, symbol, kind, local_qty, exchange_qty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.CycleID, e.Symbol, e.Kind, e.LocalQty, e.ExchangeQty, e.CreatedAt.UTC())
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
