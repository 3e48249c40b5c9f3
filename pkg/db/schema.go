package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS cycles (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    orders INTEGER DEFAULT 0,
    error TEXT
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    cycle_id TEXT,
    symbol TEXT NOT NULL,
    client_order_id TEXT NOT NULL,
    exchange_order_id TEXT,
    side TEXT NOT NULL,
    type TEXT NOT NULL,
    qty REAL NOT NULL,
    price REAL DEFAULT 0,
    avg_price REAL DEFAULT 0,
    reduce_only INTEGER DEFAULT 0,
    status TEXT NOT NULL,
    reason TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS closed_trades (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    direction TEXT NOT NULL,
    size REAL NOT NULL,
    entry_price REAL NOT NULL,
    close_price REAL NOT NULL,
    pnl REAL DEFAULT 0,
    portfolio_pnl_pct REAL DEFAULT 0,
    balance_at_open REAL DEFAULT 0,
    balance_at_close REAL DEFAULT 0,
    open_reason TEXT,
    close_reason TEXT,
    entry_time DATETIME,
    close_time DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reconciliation_events (
    id TEXT PRIMARY KEY,
    cycle_id TEXT,
    symbol TEXT NOT NULL,
    kind TEXT NOT NULL,
    local_qty REAL DEFAULT 0,
    exchange_qty REAL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol, created_at);
CREATE INDEX IF NOT EXISTS idx_closed_trades_symbol ON closed_trades(symbol, close_time);
`

// ApplyMigrations creates the journal tables and adds columns introduced
// after the first release.
func ApplyMigrations(d *Database) error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if err := ensureColumn(d.DB, "orders", "dry_run", "INTEGER DEFAULT 0"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "orders", "error", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "cycles", "symbols", "INTEGER DEFAULT 0"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
