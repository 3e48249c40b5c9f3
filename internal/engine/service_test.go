package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/internal/gateway/gatewaytest"
	"github.com/webclinic017/GDA-v2/internal/ledger"
	"github.com/webclinic017/GDA-v2/internal/market"
	"github.com/webclinic017/GDA-v2/internal/order"
	"github.com/webclinic017/GDA-v2/internal/reconciliation"
	"github.com/webclinic017/GDA-v2/internal/risk"
	"github.com/webclinic017/GDA-v2/internal/strategy"
	"github.com/webclinic017/GDA-v2/pkg/cache"
	"github.com/webclinic017/GDA-v2/pkg/config"
	"github.com/webclinic017/GDA-v2/pkg/db"
	marketpkg "github.com/webclinic017/GDA-v2/pkg/market/binance"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type captureNotifier struct {
	mu     sync.Mutex
	notes  []string
	alerts []string
}

func (c *captureNotifier) Notify(_ context.Context, text string) {
	c.mu.Lock()
	c.notes = append(c.notes, text)
	c.mu.Unlock()
}

func (c *captureNotifier) Alert(_ context.Context, text string) {
	c.mu.Lock()
	c.alerts = append(c.alerts, text)
	c.mu.Unlock()
}

func klines(symbol string, step time.Duration, n int, price func(i int) float64) []marketpkg.Kline {
	out := make([]marketpkg.Kline, n)
	for i := range out {
		c := price(i)
		out[i] = marketpkg.Kline{
			Symbol:   symbol,
			OpenTime: t0.Add(time.Duration(i) * step),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   1,
		}
	}
	return out
}

type harness struct {
	fake     *gatewaytest.Fake
	svc      *Service
	db       *db.Database
	notifier *captureNotifier
	quotes   *cache.QuoteCache
	dir      string
}

func newHarness(t *testing.T, symbols ...string) *harness {
	t.Helper()
	params, err := config.ParseParams([]byte("included_symbols: [BTCUSDT]\n"))
	if err != nil {
		t.Fatalf("ParseParams error: %v", err)
	}
	params.IncludedSymbols = symbols

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New error: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations error: %v", err)
	}

	fake := gatewaytest.New()
	fake.Balance.Wallet = 10000
	fake.Balance.Margin = 10000
	for _, sym := range symbols {
		fake.Rules[sym] = marketpkg.SymbolRules{Symbol: sym, Status: "TRADING", PricePrecision: 2, QuantityPrecision: 3}
		fake.Prices[sym] = 298
		fake.SetCandles(sym, "1d", klines(sym, 24*time.Hour, 120, func(int) float64 { return 100 }))
		fake.SetCandles(sym, "1h", klines(sym, time.Hour, 200, func(i int) float64 { return 100 + float64(i) }))
	}

	dir := t.TempDir()
	notifier := &captureNotifier{}
	bus := events.NewBus()
	exec := order.NewExecutor(fake, database, bus, notifier, false, 0)
	quotes := cache.NewQuoteCache()

	svc := New(Config{
		Params:      params,
		Store:       ledger.NewStore(filepath.Join(dir, "positions.json")),
		Gateway:     fake,
		Reconciler:  reconciliation.NewService(fake, database, bus, notifier),
		Pipeline:    market.NewPipeline(fake, params, market.NewHistory(dir, "binance"), notifier, bus),
		Strategy:    strategy.NewEngine(fake, exec, notifier, bus, params.BalanceMult, 0),
		Stops:       risk.NewStopLossManager(fake, exec, notifier, bus, params.NATRStop),
		TakeProfits: risk.NewTakeProfitManager(fake, exec, notifier, bus, params.TakeProfit),
		Executor:    exec,
		DB:          database,
		Bus:         bus,
		Notifier:    notifier,
		Quotes:      quotes,
		RulesPath:   filepath.Join(dir, "exchange_trading_rules.json"),
	})
	return &harness{fake: fake, svc: svc, db: database, notifier: notifier, quotes: quotes, dir: dir}
}

func TestRunCycleRecordsUntrackedPosition(t *testing.T) {
	h := newHarness(t, "BTCUSDT")
	h.fake.SetPosition("BTCUSDT", 2, 250, 298)

	report, err := h.svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle error: %v", err)
	}
	if len(report.Corrections) != 1 || report.Corrections[0].Kind != reconciliation.KindUntracked {
		t.Fatalf("corrections=%+v, expected one untracked", report.Corrections)
	}
	if report.Orders != 0 || len(report.Actions()) != 0 {
		t.Fatalf("orders=%d actions=%v, expected none", report.Orders, report.Actions())
	}

	l, err := ledger.NewStore(filepath.Join(h.dir, "positions.json")).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	rec := l.Get("BTCUSDT")
	if rec == nil || rec.PositionSize != 2 || rec.StopPrice != 250 {
		t.Fatalf("saved record=%+v, expected size 2 stop 250", rec)
	}
	if _, ok := h.svc.State().Record("BTCUSDT"); !ok {
		t.Fatal("state snapshot not updated")
	}
	if q, ok := h.quotes.Get("BTCUSDT"); !ok || q.Close != 298 {
		t.Fatalf("quote=%+v,%v, expected 298", q, ok)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "exchange_trading_rules.json")); err != nil {
		t.Fatalf("rules file missing: %v", err)
	}

	c, err := h.db.Queries().GetCycle(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("GetCycle error: %v", err)
	}
	if c.Status != db.CycleOK || c.Kind != KindCycle || c.Symbols != 1 {
		t.Fatalf("cycle=%+v, expected ok cycle over 1 symbol", c)
	}
}

func TestRunCycleFailureKeepsLedger(t *testing.T) {
	h := newHarness(t, "BTCUSDT")
	h.fake.SetPosition("BTCUSDT", 2, 250, 298)
	h.fake.Errors["FetchMarketRules"] = errors.New("exchange down")

	report, err := h.svc.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, statErr := os.Stat(filepath.Join(h.dir, "positions.json")); !os.IsNotExist(statErr) {
		t.Fatalf("ledger written on failure: %v", statErr)
	}
	if len(h.notifier.alerts) != 1 || !strings.Contains(h.notifier.alerts[0], "exchange down") {
		t.Fatalf("alerts=%v, expected the failure", h.notifier.alerts)
	}
	c, err := h.db.Queries().GetCycle(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("GetCycle error: %v", err)
	}
	if c.Status != db.CycleFailed || !strings.Contains(c.Error, "exchange down") {
		t.Fatalf("cycle=%+v, expected failed", c)
	}
}

func TestRunCycleBusy(t *testing.T) {
	h := newHarness(t, "BTCUSDT")
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()

	if _, err := h.svc.RunCycle(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v, expected ErrBusy", err)
	}
	if _, err := h.svc.RunStatus(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v, expected ErrBusy", err)
	}
}

func TestRunStatus(t *testing.T) {
	h := newHarness(t, "BTCUSDT", "ETHUSDT", "ADAUSDT", "XRPUSDT")
	h.fake.Balance.Wallet = 1000
	h.fake.Balance.Margin = 1010
	h.fake.SetPosition("BTCUSDT", 2, 100, 100)
	h.fake.SetPosition("ETHUSDT", -1, 100, 100)

	r, err := h.svc.RunStatus(context.Background())
	if err != nil {
		t.Fatalf("RunStatus error: %v", err)
	}
	if r.Open != 2 || r.PctOpen != 50 || r.NAVDiffPct != 1 {
		t.Fatalf("report=%+v, expected 2 open, 50%%, 1%% diff", r)
	}
	for _, want := range []string{
		"2 (50%) markets currently open out of 4",
		"Total Short positions: 1, currently:\n\n[ETHUSDT]",
		"Total Long positions: 1, currently:\n\n[BTCUSDT]",
		"Balance: 1000\n NAV: 1010",
		"Difference between NAV and Balance is: 1%",
	} {
		if !strings.Contains(r.Message, want) {
			t.Fatalf("message %q missing %q", r.Message, want)
		}
	}
	if len(h.notifier.notes) == 0 || h.notifier.notes[len(h.notifier.notes)-1] != r.Message {
		t.Fatal("status message not sent")
	}
	if got := h.svc.Balance().Get(); got.NAV != 1010 {
		t.Fatalf("cached NAV=%v, expected 1010", got.NAV)
	}
}

func TestFormatStatusEmpty(t *testing.T) {
	msg := FormatStatus(&StatusReport{TotalMarkets: 3})
	if !strings.Contains(msg, "Total Long positions: 0, currently:\n\nNone") {
		t.Fatalf("message=%q, expected None for empty lists", msg)
	}
}

func TestPositionSizes(t *testing.T) {
	h := newHarness(t, "BTCUSDT")

	sizes, err := h.svc.PositionSizes(context.Background())
	if err != nil {
		t.Fatalf("PositionSizes error: %v", err)
	}
	if len(sizes) != 1 {
		t.Fatalf("sizes=%+v, expected 1", sizes)
	}
	ps := sizes[0]
	if ps.PctSize != 1 || ps.Price != 298 || ps.Units != 33.557 || ps.Value != 9999.986 {
		t.Fatalf("size=%+v, expected full weight of 33.557 units", ps)
	}
	if h.fake.OrderCount() != 0 {
		t.Fatalf("orders=%d, expected none", h.fake.OrderCount())
	}

	path := filepath.Join(h.dir, "current_pos_sizes.csv")
	if err := WriteSizesCSV(path, sizes, t0); err != nil {
		t.Fatalf("WriteSizesCSV error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	lines := strings.Split(string(data), "\n")
	if lines[0] != "asset,balance_$,mult,pct_size,price_$,units,value_$" {
		t.Fatalf("header=%q", lines[0])
	}
	if lines[1] != "BTCUSDT,10000,1,1,298,33.557,9999.986" {
		t.Fatalf("row=%q", lines[1])
	}
	if !strings.Contains(string(data), "Last Update Time:,2024-01-01T00:00") {
		t.Fatalf("missing update time in %q", data)
	}
}

type panickingGateway struct {
	*gatewaytest.Fake
}

func (panickingGateway) FetchPositions(context.Context) ([]gateway.Position, error) {
	panic("positions endpoint exploded")
}

func TestRunCyclePanicIsReported(t *testing.T) {
	h := newHarness(t, "BTCUSDT")
	gw := panickingGateway{h.fake}
	h.svc.reconciler = reconciliation.NewService(gw, h.db, nil, h.notifier)

	report, err := h.svc.RunCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panic: positions endpoint exploded") {
		t.Fatalf("err=%v, expected the recovered panic", err)
	}
	if len(h.notifier.alerts) != 1 || !strings.Contains(h.notifier.alerts[0], "positions endpoint exploded") {
		t.Fatalf("alerts=%v, expected the panic", h.notifier.alerts)
	}
	c, err := h.db.Queries().GetCycle(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("GetCycle error: %v", err)
	}
	if c.Status != db.CycleFailed || c.FinishedAt == nil {
		t.Fatalf("cycle=%+v, expected failed and finished", c)
	}

	// The lock is released, so the next cycle runs.
	h.svc.reconciler = reconciliation.NewService(h.fake, h.db, nil, h.notifier)
	if _, err := h.svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("next RunCycle error: %v", err)
	}
}

func TestRunStatusPanicIsReported(t *testing.T) {
	h := newHarness(t, "BTCUSDT")
	h.svc.gw = panickingGateway{h.fake}

	r, err := h.svc.RunStatus(context.Background())
	if err == nil || r != nil {
		t.Fatalf("report=%+v err=%v, expected the recovered panic", r, err)
	}
	if len(h.notifier.alerts) != 1 {
		t.Fatalf("alerts=%v, expected one", h.notifier.alerts)
	}
}
