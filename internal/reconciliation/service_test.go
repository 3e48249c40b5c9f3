package reconciliation

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/webclinic017/GDA-v2/internal/gateway/gatewaytest"
	"github.com/webclinic017/GDA-v2/internal/ledger"
	"github.com/webclinic017/GDA-v2/pkg/db"
)

var entry = time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *gatewaytest.Fake, *db.Database) {
	t.Helper()
	fake := gatewaytest.New()
	fake.Balance.Wallet = 10000
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New error: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations error: %v", err)
	}
	svc := NewService(fake, database, nil, nil)
	svc.now = func() time.Time { return entry }
	return svc, fake, database
}

func longRecord(symbol string, size, maxSize float64) *ledger.Record {
	r := ledger.NewRecord(ledger.OpenParams{Symbol: symbol, EntryPrice: 100, Size: size, EntryTime: entry, BalanceAtOpen: 10000})
	r.MaxSize = maxSize
	r.StopPrice = 120
	sl := 114.0
	r.StopLossPrice = &sl
	r.MarkTPExecuted(1)
	r.TP(2).OrderID = symbol + "_tp_2"
	r.TP(2).Price = 130
	return r
}

func TestReconcileUntracked(t *testing.T) {
	svc, fake, database := newService(t)
	fake.SetPosition("SOLUSDT", -3, 25, 24)
	l := ledger.New()

	report, err := svc.Reconcile(context.Background(), l)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	rec := l.Get("SOLUSDT")
	if rec == nil {
		t.Fatal("expected a record for SOLUSDT")
	}
	if rec.Direction != ledger.Short || rec.StopPrice != 25 || rec.MaxSize != -3 || rec.BalanceAtOpen != 10000 {
		t.Fatalf("record=%+v, expected short with stop at entry", rec)
	}
	if len(fake.Cancels) != 1 || fake.Cancels[0] != "SOLUSDT" {
		t.Fatalf("cancels=%v, expected [SOLUSDT]", fake.Cancels)
	}
	if len(report.PositionDiffs) != 1 || report.PositionDiffs[0].Kind != KindUntracked {
		t.Fatalf("diffs=%+v, expected one untracked", report.PositionDiffs)
	}

	events, _ := database.Queries().ListReconciliationEvents(context.Background(), 10)
	if len(events) != 1 {
		t.Fatalf("journal events=%d, expected 1", len(events))
	}
}

func TestReconcileStale(t *testing.T) {
	svc, fake, _ := newService(t)
	l := ledger.New()
	l.Put(longRecord("BTCUSDT", 1, 1))

	if _, err := svc.Reconcile(context.Background(), l); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if l.Has("BTCUSDT") {
		t.Fatal("stale record still present")
	}
	if len(fake.Cancels) != 1 {
		t.Fatalf("cancels=%v, expected one", fake.Cancels)
	}
}

func TestReconcileDriftSameDirection(t *testing.T) {
	svc, fake, _ := newService(t)
	fake.SetPosition("ETHUSDT", 15, 105, 110)
	l := ledger.New()
	l.Put(longRecord("ETHUSDT", 10, 10))

	if _, err := svc.Reconcile(context.Background(), l); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	rec := l.Get("ETHUSDT")
	if rec.PositionSize != 15 || rec.MaxSize != 15 {
		t.Fatalf("size=%v max=%v, expected 15/15", rec.PositionSize, rec.MaxSize)
	}
	if rec.EntryPrice != 105 {
		t.Fatalf("entry=%v, expected 105", rec.EntryPrice)
	}
	if rec.StopPrice != 120 || rec.StopLossPrice == nil || *rec.StopLossPrice != 114 {
		t.Fatalf("stop=%v, expected preserved 120/114", rec.StopPrice)
	}
	if !rec.TP(1).Executed || rec.TP(2).OrderID != "ETHUSDT_tp_2" {
		t.Fatalf("tp state=%+v, expected preserved", rec.TakeProfits)
	}
	if !rec.EntryTime.Equal(entry) || rec.BalanceAtOpen != 10000 {
		t.Fatalf("entry time/balance not preserved: %+v", rec)
	}
	if len(fake.Cancels) != 0 {
		t.Fatalf("cancels=%v, expected none", fake.Cancels)
	}
}

func TestReconcileDriftKeepsLargerMax(t *testing.T) {
	svc, fake, _ := newService(t)
	fake.SetPosition("ETHUSDT", 6, 100, 100)
	l := ledger.New()
	l.Put(longRecord("ETHUSDT", 10, 12))

	if _, err := svc.Reconcile(context.Background(), l); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if got := l.Get("ETHUSDT").MaxSize; got != 12 {
		t.Fatalf("max_size=%v, expected 12", got)
	}
}

func TestReconcileFlip(t *testing.T) {
	svc, fake, _ := newService(t)
	fake.SetPosition("ETHUSDT", -4, 90, 90)
	l := ledger.New()
	l.Put(longRecord("ETHUSDT", 10, 10))

	report, err := svc.Reconcile(context.Background(), l)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	rec := l.Get("ETHUSDT")
	if rec.Direction != ledger.Short || rec.MaxSize != -4 || rec.StopPrice != 90 {
		t.Fatalf("record=%+v, expected fresh short", rec)
	}
	if rec.TP(1).Executed || rec.StopLossPrice != nil {
		t.Fatal("flip kept old stop/tp state")
	}
	if report.PositionDiffs[0].Kind != KindFlipped {
		t.Fatalf("kind=%s, expected flipped", report.PositionDiffs[0].Kind)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	svc, fake, _ := newService(t)
	fake.SetPosition("SOLUSDT", -3, 25, 24)
	fake.SetPosition("ETHUSDT", 15, 105, 110)
	l := ledger.New()
	l.Put(longRecord("ETHUSDT", 10, 10))
	l.Put(longRecord("BTCUSDT", 1, 1))

	if _, err := svc.Reconcile(context.Background(), l); err != nil {
		t.Fatalf("first Reconcile error: %v", err)
	}
	first := l.Clone()
	cancels := len(fake.Cancels)
	balanceCalls := fake.Calls["FetchBalance"]

	report, err := svc.Reconcile(context.Background(), l)
	if err != nil {
		t.Fatalf("second Reconcile error: %v", err)
	}
	if report.HasDiffs() {
		t.Fatalf("second run diffs=%+v, expected none", report.PositionDiffs)
	}
	if !reflect.DeepEqual(first.Records, l.Records) {
		t.Fatal("ledger changed on second run")
	}
	if len(fake.Cancels) != cancels || fake.Calls["FetchBalance"] != balanceCalls {
		t.Fatal("second run made extra gateway calls")
	}
}

func TestReconcileSignInvariant(t *testing.T) {
	svc, fake, _ := newService(t)
	fake.SetPosition("A", 2, 10, 10)
	fake.SetPosition("B", -2, 10, 10)
	fake.SetPosition("C", -7, 10, 10)
	l := ledger.New()
	l.Put(longRecord("C", 5, 5))

	if _, err := svc.Reconcile(context.Background(), l); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	for sym, rec := range l.Records {
		if math.Copysign(1, rec.PositionSize) != rec.Direction.Sign() {
			t.Fatalf("%s size=%v direction=%s", sym, rec.PositionSize, rec.Direction)
		}
		if err := rec.Validate(); err != nil {
			t.Fatalf("%s invalid: %v", sym, err)
		}
	}
}

func TestReconcileFetchError(t *testing.T) {
	svc, fake, _ := newService(t)
	fake.Errors["FetchPositions"] = context.DeadlineExceeded
	if _, err := svc.Reconcile(context.Background(), ledger.New()); err == nil {
		t.Fatal("expected error")
	}
}
