package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/webclinic017/GDA-v2/internal/events"
)

type captureSender struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureSender) Send(_ context.Context, chatID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, chatID+":"+text)
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func TestEscapeMarkdown(t *testing.T) {
	got := EscapeMarkdown("BTC_USDT *bold* `code` [link]")
	want := "BTC\\_USDT \\*bold\\* \\`code\\` \\[link]"
	if got != want {
		t.Fatalf("EscapeMarkdown=%q, expected %q", got, want)
	}
}

func TestDispatcherFormatsAndFansOut(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher("ema_cross", []string{"1", "2"}, []string{"9"}, sender)
	d.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 5, 0, time.UTC) }

	d.Notify(context.Background(), "hello")
	d.Alert(context.Background(), "boom")

	if len(sender.sent) != 3 {
		t.Fatalf("sent=%d, expected 3", len(sender.sent))
	}
	want := "1:2024-03-01 10:00:05 utc | ema_cross | \nhello"
	if sender.sent[0] != want {
		t.Fatalf("sent[0]=%q, expected %q", sender.sent[0], want)
	}
	if !strings.HasPrefix(sender.sent[2], "9:") {
		t.Fatalf("alert went to %q, expected operator chat 9", sender.sent[2])
	}
}

func TestTelegramSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path=%s, expected /botTOKEN/sendMessage", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN").WithBaseURL(srv.URL)
	if err := tg.Send(context.Background(), "42", "#BTC_USDT"); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if got["chat_id"] != "42" || got["parse_mode"] != "Markdown" || got["text"] != "#BTC\\_USDT" {
		t.Fatalf("payload=%v, unexpected", got)
	}
}

func TestTelegramSendStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegram("TOKEN").WithBaseURL(srv.URL).Send(context.Background(), "42", "x")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err=%v, expected status 400 error", err)
	}
}

func TestMonitorUpdatesMetrics(t *testing.T) {
	bus := events.NewBus()
	metrics := NewMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	done := (&Monitor{Bus: bus, Metrics: metrics}).Start(ctx)

	bus.Publish(events.EventStopTriggered, events.PositionEvent{Symbol: "BTCUSDT"})
	bus.Publish(events.EventReconciliation, events.ReconcileEvent{Symbol: "ETHUSDT", Kind: "stale"})
	bus.Publish(events.EventStatusReport, events.StatusEvent{OpenPositions: 3, Wallet: 1000, NAV: 1010})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(metrics.stopTriggers) == 1 &&
			testutil.ToFloat64(metrics.corrections.WithLabelValues("stale")) == 1 &&
			testutil.ToFloat64(metrics.openPositions) == 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if got := testutil.ToFloat64(metrics.stopTriggers); got != 1 {
		t.Fatalf("stop triggers=%v, expected 1", got)
	}
	if got := testutil.ToFloat64(metrics.corrections.WithLabelValues("stale")); got != 1 {
		t.Fatalf("stale corrections=%v, expected 1", got)
	}
	if got := testutil.ToFloat64(metrics.nav); got != 1010 {
		t.Fatalf("nav=%v, expected 1010", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveCycle("trade", time.Second, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `bot_cycles_total{kind="trade",result="ok"} 1`) {
		t.Fatalf("metrics output missing cycle counter")
	}
}
