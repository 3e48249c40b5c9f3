package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/webclinic017/GDA-v2/internal/balance"
	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/gateway/gatewaytest"
	"github.com/webclinic017/GDA-v2/internal/ledger"
	"github.com/webclinic017/GDA-v2/internal/monitor"
	"github.com/webclinic017/GDA-v2/internal/state"
	"github.com/webclinic017/GDA-v2/pkg/cache"
	"github.com/webclinic017/GDA-v2/pkg/db"
)

const testPassword = "StrongPass123!"

type testServer struct {
	*httptest.Server
	db    *db.Database
	bus   *events.Bus
	state *state.Manager
}

func newTestAPIServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	fake := gatewaytest.New()
	fake.Balance.Wallet = 1000
	fake.Balance.Margin = 1010
	bal := balance.NewManager(fake)
	if _, err := bal.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	l := ledger.New()
	l.Put(ledger.NewRecord(ledger.OpenParams{Symbol: "BTCUSDT", EntryPrice: 100, Size: 2, EntryTime: time.Now(), BalanceAtOpen: 1000, OpenReason: "open_cross"}))
	l.Put(ledger.NewRecord(ledger.OpenParams{Symbol: "ETHUSDT", EntryPrice: 10, Size: -3, EntryTime: time.Now(), BalanceAtOpen: 1000, OpenReason: "open_cross"}))
	st := state.NewManager()
	st.Set(l, time.Now())

	quotes := cache.NewQuoteCache()
	quotes.Set("BTCUSDT", 101)

	bus := events.NewBus()
	server := NewServer(Options{
		Bus:     bus,
		DB:      database,
		State:   st,
		Balance: bal,
		Quotes:  quotes,
		Metrics: monitor.NewMetrics(),
		Auth:    AuthConfig{JWTSecret: "test-secret", PasswordHash: string(hash)},
		Meta:    SystemMeta{Strategy: "gda", Exchange: "binance", DryRun: true, Symbols: []string{"BTCUSDT", "ETHUSDT"}},
	})

	ts := &testServer{Server: httptest.NewServer(server.Router), db: database, bus: bus, state: st}
	t.Cleanup(func() {
		ts.Close()
		_ = database.Close()
	})
	return ts
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func login(t *testing.T, ts *testServer) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"password": testPassword,
	}, &resp)
	if status != http.StatusOK || resp.Token == "" {
		t.Fatalf("login failed status=%d resp=%+v", status, resp)
	}
	return resp.Token
}

func TestHealth(t *testing.T) {
	ts := newTestAPIServer(t)
	var resp map[string]string
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/health", "", nil, &resp); status != http.StatusOK {
		t.Fatalf("status=%d, expected 200", status)
	}
	if resp["status"] != "ok" {
		t.Fatalf("resp=%v", resp)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ts := newTestAPIServer(t)
	var resp struct {
		Code string `json:"code"`
	}
	status := doJSONRequest(t, ts.Client(), http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"password": "wrong",
	}, &resp)
	if status != http.StatusUnauthorized || resp.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("status=%d code=%s, expected 401 INVALID_CREDENTIALS", status, resp.Code)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	ts := newTestAPIServer(t)
	tests := []struct {
		token string
		code  string
	}{
		{"", "MISSING_TOKEN"},
		{"garbage", "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		var resp struct {
			Code string `json:"code"`
		}
		status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/ledger", tt.token, nil, &resp)
		if status != http.StatusUnauthorized || resp.Code != tt.code {
			t.Fatalf("token %q: status=%d code=%s, expected 401 %s", tt.token, status, resp.Code, tt.code)
		}
	}
}

func TestLedgerEndpoints(t *testing.T) {
	ts := newTestAPIServer(t)
	token := login(t, ts)

	var all struct {
		Positions map[string]map[string]any `json:"positions"`
	}
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/ledger", token, nil, &all); status != http.StatusOK {
		t.Fatalf("ledger status=%d", status)
	}
	if len(all.Positions) != 2 {
		t.Fatalf("positions=%v, expected 2", all.Positions)
	}
	if all.Positions["ETHUSDT"]["direction"] != "sell" {
		t.Fatalf("ETHUSDT=%v, expected direction sell", all.Positions["ETHUSDT"])
	}

	var one struct {
		Symbol string         `json:"symbol"`
		Record map[string]any `json:"record"`
	}
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/ledger/btcusdt", token, nil, &one); status != http.StatusOK {
		t.Fatalf("record status=%d", status)
	}
	if one.Symbol != "BTCUSDT" || one.Record["position_size"] != float64(2) {
		t.Fatalf("record=%+v", one)
	}

	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/ledger/XRPUSDT", token, nil, nil); status != http.StatusNotFound {
		t.Fatalf("missing record status=%d, expected 404", status)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestAPIServer(t)
	token := login(t, ts)

	var resp struct {
		Balance balance.Balance `json:"balance"`
		Longs   []string        `json:"longs"`
		Shorts  []string        `json:"shorts"`
		Meta    SystemMeta      `json:"meta"`
	}
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/status", token, nil, &resp); status != http.StatusOK {
		t.Fatalf("status=%d", status)
	}
	if resp.Balance.NAV != 1010 || len(resp.Longs) != 1 || len(resp.Shorts) != 1 || !resp.Meta.DryRun {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestJournalEndpoints(t *testing.T) {
	ts := newTestAPIServer(t)
	token := login(t, ts)
	ctx := context.Background()

	id, err := ts.db.StartCycle(ctx, "cycle", time.Now())
	if err != nil {
		t.Fatalf("StartCycle: %v", err)
	}
	if err := ts.db.FinishCycle(ctx, id, db.CycleOK, 1, 2, "", time.Now()); err != nil {
		t.Fatalf("FinishCycle: %v", err)
	}
	if err := ts.db.CreateOrder(ctx, db.Order{CycleID: id, Symbol: "BTCUSDT", ClientOrderID: "BTCUSDT_open_cross", Side: "BUY", Type: "MARKET", Qty: 2, Status: "FILLED", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	var cycles []db.Cycle
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/cycles", token, nil, &cycles); status != http.StatusOK {
		t.Fatalf("cycles status=%d", status)
	}
	if len(cycles) != 1 || cycles[0].ID != id || cycles[0].Status != db.CycleOK {
		t.Fatalf("cycles=%+v", cycles)
	}

	var cycle db.Cycle
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/cycles/"+id, token, nil, &cycle); status != http.StatusOK || cycle.Orders != 1 {
		t.Fatalf("cycle status=%d body=%+v", status, cycle)
	}
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/cycles/nope", token, nil, nil); status != http.StatusNotFound {
		t.Fatalf("missing cycle status=%d, expected 404", status)
	}

	var orders []db.Order
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/orders?symbol=btcusdt", token, nil, &orders); status != http.StatusOK {
		t.Fatalf("orders status=%d", status)
	}
	if len(orders) != 1 || orders[0].ClientOrderID != "BTCUSDT_open_cross" {
		t.Fatalf("orders=%+v", orders)
	}

	var trades []db.ClosedTrade
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/trades", token, nil, &trades); status != http.StatusOK {
		t.Fatalf("trades status=%d", status)
	}
}

func TestQuotesAndMetrics(t *testing.T) {
	ts := newTestAPIServer(t)
	token := login(t, ts)

	var quotes []cache.Quote
	if status := doJSONRequest(t, ts.Client(), http.MethodGet, ts.URL+"/api/quotes", token, nil, &quotes); status != http.StatusOK {
		t.Fatalf("quotes status=%d", status)
	}
	if len(quotes) != 1 || quotes[0].Close != 101 {
		t.Fatalf("quotes=%+v", quotes)
	}

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	if !strings.Contains(body.String(), "bot_api_requests_total") {
		t.Fatalf("metrics output missing api counter")
	}
}

func TestWebsocketStreamsEvents(t *testing.T) {
	ts := newTestAPIServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered once the handler runs; publish until
	// the first envelope arrives.
	got := make(chan events.Envelope, 1)
	go func() {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err == nil {
			got <- env
		}
	}()
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case env := <-got:
			if env.Event != events.EventStopMoved {
				t.Fatalf("event=%s, expected %s", env.Event, events.EventStopMoved)
			}
			return
		case <-tick.C:
			ts.bus.Publish(events.EventStopMoved, events.PositionEvent{Symbol: "BTCUSDT", Price: 105})
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}
