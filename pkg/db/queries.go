package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("record not found")

// Queries provides the read side of the journal.
type Queries struct {
	db *sql.DB
}

// Queries returns the read helper for this database.
func (d *Database) Queries() *Queries {
	return &Queries{db: d.DB}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

// ListCycles returns the most recent cycles first.
func (q *Queries) ListCycles(ctx context.Context, limit int) ([]Cycle, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, kind, status, started_at, finished_at, COALESCE(orders, 0), COALESCE(symbols, 0), COALESCE(error, '')
		FROM cycles
		ORDER BY started_at DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		var (
			c        Cycle
			finished sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Kind, &c.Status, &c.StartedAt, &finished, &c.Orders, &c.Symbols, &c.Error); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			c.FinishedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCycle returns one cycle by id.
func (q *Queries) GetCycle(ctx context.Context, id string) (*Cycle, error) {
	var (
		c        Cycle
		finished sql.NullTime
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, kind, status, started_at, finished_at, COALESCE(orders, 0), COALESCE(symbols, 0), COALESCE(error, '')
		FROM cycles WHERE id = ?
	`, id).Scan(&c.ID, &c.Kind, &c.Status, &c.StartedAt, &finished, &c.Orders, &c.Symbols, &c.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cycle: %w", err)
	}
	if finished.Valid {
		t := finished.Time
		c.FinishedAt = &t
	}
	return &c, nil
}

// ListOrders returns journaled orders, newest first. An empty symbol
// matches every symbol.
func (q *Queries) ListOrders(ctx context.Context, symbol string, limit int) ([]Order, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, COALESCE(cycle_id, ''), symbol, client_order_id, COALESCE(exchange_order_id, ''), side, type,
			qty, COALESCE(price, 0), COALESCE(avg_price, 0), reduce_only, status, COALESCE(reason, ''),
			COALESCE(dry_run, 0), COALESCE(error, ''), created_at
		FROM orders
		WHERE (? = '' OR symbol = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`, symbol, symbol, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var (
			o                  Order
			reduceOnly, dryRun int
		)
		if err := rows.Scan(&o.ID, &o.CycleID, &o.Symbol, &o.ClientOrderID, &o.ExchangeOrderID, &o.Side, &o.Type,
			&o.Qty, &o.Price, &o.AvgPrice, &reduceOnly, &o.Status, &o.Reason, &dryRun, &o.Error, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.ReduceOnly = reduceOnly == 1
		o.DryRun = dryRun == 1
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListClosedTrades returns closed trades, newest first.
func (q *Queries) ListClosedTrades(ctx context.Context, symbol string, limit int) ([]ClosedTrade, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, symbol, direction, size, entry_price, close_price, COALESCE(pnl, 0), COALESCE(portfolio_pnl_pct, 0),
			COALESCE(balance_at_open, 0), COALESCE(balance_at_close, 0), COALESCE(open_reason, ''),
			COALESCE(close_reason, ''), entry_time, close_time
		FROM closed_trades
		WHERE (? = '' OR symbol = ?)
		ORDER BY close_time DESC
		LIMIT ?
	`, symbol, symbol, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query closed trades: %w", err)
	}
	defer rows.Close()

	var out []ClosedTrade
	for rows.Next() {
		var (
			t     ClosedTrade
			entry sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Direction, &t.Size, &t.EntryPrice, &t.ClosePrice, &t.PnL,
			&t.PortfolioPnLPct, &t.BalanceAtOpen, &t.BalanceAtClose, &t.OpenReason, &t.CloseReason,
			&entry, &t.CloseTime); err != nil {
			return nil, fmt.Errorf("scan closed trade: %w", err)
		}
		if entry.Valid {
			t.EntryTime = entry.Time
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListReconciliationEvents returns ledger corrections, newest first.
func (q *Queries) ListReconciliationEvents(ctx context.Context, limit int) ([]ReconciliationEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, COALESCE(cycle_id, ''), symbol, kind, COALESCE(local_qty, 0), COALESCE(exchange_qty, 0), created_at
		FROM reconciliation_events
		ORDER BY created_at DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query reconciliation events: %w", err)
	}
	defer rows.Close()

	var out []ReconciliationEvent
	for rows.Next() {
		var e ReconciliationEvent
		if err := rows.Scan(&e.ID, &e.CycleID, &e.Symbol, &e.Kind, &e.LocalQty, &e.ExchangeQty, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reconciliation event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
