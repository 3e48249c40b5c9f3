package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestMigrationsIdempotent(t *testing.T) {
	database := newTestDB(t)
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("second ApplyMigrations failed: %v", err)
	}
	ok, err := columnExists(database.DB, "orders", "dry_run")
	if err != nil || !ok {
		t.Fatalf("orders.dry_run exists=%v err=%v, expected true", ok, err)
	}
}

func TestCycleLifecycle(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 10, 1, 0, 0, time.UTC)

	id, err := database.StartCycle(ctx, "trade", start)
	if err != nil {
		t.Fatalf("StartCycle error: %v", err)
	}
	if err := database.FinishCycle(ctx, id, CycleFailed, 2, 8, "fetch positions: timeout", start.Add(time.Minute)); err != nil {
		t.Fatalf("FinishCycle error: %v", err)
	}

	q := database.Queries()
	c, err := q.GetCycle(ctx, id)
	if err != nil {
		t.Fatalf("GetCycle error: %v", err)
	}
	if c.Status != CycleFailed || c.Orders != 2 || c.Symbols != 8 || c.Error == "" || c.FinishedAt == nil {
		t.Fatalf("cycle=%+v, expected failed with 2 orders", c)
	}

	if _, err := q.GetCycle(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, expected ErrNotFound", err)
	}
}

func TestOrdersAndTrades(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	q := database.Queries()

	orders := []Order{
		{Symbol: "BTCUSDT", ClientOrderID: "BTCUSDT_open_cross", Side: "BUY", Type: "MARKET", Qty: 0.1, Status: "FILLED", CreatedAt: time.Now().Add(-time.Minute)},
		{Symbol: "ETHUSDT", ClientOrderID: "ETHUSDT_close_cross", Side: "SELL", Type: "MARKET", Qty: 1, ReduceOnly: true, DryRun: true, Status: "FILLED"},
	}
	for _, o := range orders {
		if err := database.CreateOrder(ctx, o); err != nil {
			t.Fatalf("CreateOrder error: %v", err)
		}
	}

	t.Run("filter by symbol", func(t *testing.T) {
		got, err := q.ListOrders(ctx, "ETHUSDT", 10)
		if err != nil {
			t.Fatalf("ListOrders error: %v", err)
		}
		if len(got) != 1 || !got[0].ReduceOnly || !got[0].DryRun {
			t.Fatalf("orders=%+v, expected one reduce-only dry-run order", got)
		}
	})

	t.Run("all symbols newest first", func(t *testing.T) {
		got, err := q.ListOrders(ctx, "", 10)
		if err != nil {
			t.Fatalf("ListOrders error: %v", err)
		}
		if len(got) != 2 || got[0].Symbol != "ETHUSDT" {
			t.Fatalf("orders=%+v, expected ETHUSDT first", got)
		}
	})

	trade := ClosedTrade{
		Symbol: "BTCUSDT", Direction: "buy", Size: 0.1, EntryPrice: 100, ClosePrice: 93,
		PnL: -0.7, CloseReason: "stop loss", EntryTime: time.Now().Add(-48 * time.Hour), CloseTime: time.Now(),
	}
	if err := database.CreateClosedTrade(ctx, trade); err != nil {
		t.Fatalf("CreateClosedTrade error: %v", err)
	}
	trades, err := q.ListClosedTrades(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListClosedTrades error: %v", err)
	}
	if len(trades) != 1 || trades[0].ClosePrice != 93 || trades[0].CloseReason != "stop loss" {
		t.Fatalf("trades=%+v, expected the stop loss close", trades)
	}
}

func TestReconciliationEvents(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	if err := database.CreateReconciliationEvent(ctx, ReconciliationEvent{Symbol: "SOLUSDT", Kind: "untracked", ExchangeQty: 3}); err != nil {
		t.Fatalf("CreateReconciliationEvent error: %v", err)
	}
	events, err := database.Queries().ListReconciliationEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListReconciliationEvents error: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "untracked" || events[0].ExchangeQty != 3 {
		t.Fatalf("events=%+v, expected one untracked event", events)
	}
}
