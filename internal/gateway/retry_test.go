package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/internal/gateway/gatewaytest"
	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
)

func TestRetryPolicyDo(t *testing.T) {
	temporary := &common.APIError{StatusCode: 503}
	permanent := &common.APIError{StatusCode: 400, Code: -2019}

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{"success first try", nil, 1, nil},
		{"recovers after two failures", []error{temporary, temporary}, 3, nil},
		{"non retryable stops immediately", []error{permanent}, 1, permanent},
		{"exhausted", []error{temporary, temporary, temporary}, 3, gateway.ErrRetriesExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := gateway.RetryPolicy{MaxAttempts: 3, Retryable: gateway.IsRetryable}
			calls := 0
			err := policy.Do(context.Background(), "op", func(ctx context.Context) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Fatalf("calls=%d, expected %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("err=%v, expected nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, expected %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	policy := gateway.RetryPolicy{MaxAttempts: 5, Backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := policy.Do(ctx, "op", func(ctx context.Context) error {
		calls++
		cancel()
		return &common.APIError{StatusCode: 429}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, expected context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d, expected 1", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"throttled", &common.APIError{StatusCode: 429}, true},
		{"wrapped timestamp", errors.Join(errors.New("x"), &common.APIError{StatusCode: 400, Code: -1021}), true},
		{"rejected", &common.APIError{StatusCode: 400, Code: -4164}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gateway.IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable=%v, expected %v", got, tt.want)
			}
		})
	}
}

func TestRetryingGateway(t *testing.T) {
	fake := gatewaytest.New()
	fake.Balance = gateway.Balance{Wallet: 1000}
	fake.Errors["FetchBalance"] = &common.APIError{StatusCode: 502}

	g := gateway.NewRetrying(fake, gateway.RetryPolicy{MaxAttempts: 4})
	_, err := g.FetchBalance(context.Background())
	if !errors.Is(err, gateway.ErrRetriesExhausted) {
		t.Fatalf("err=%v, expected ErrRetriesExhausted", err)
	}
	if fake.Calls["FetchBalance"] != 4 {
		t.Fatalf("calls=%d, expected 4", fake.Calls["FetchBalance"])
	}

	delete(fake.Errors, "FetchBalance")
	bal, err := g.FetchBalance(context.Background())
	if err != nil || bal.Wallet != 1000 {
		t.Fatalf("balance=%v err=%v, expected 1000", bal, err)
	}
}

func TestDryRunNeverTrades(t *testing.T) {
	fake := gatewaytest.New()
	fake.SetPosition("BTCUSDT", 1, 100, 100)
	d := gateway.NewDryRun(fake)

	res, err := d.PlaceOrder(context.Background(), common.OrderRequest{
		Symbol: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeMarket, Qty: 1, ClientID: "BTCUSDT_close_cross", ReduceOnly: true,
	})
	if err != nil || res.Status != common.StatusFilled {
		t.Fatalf("res=%+v err=%v, expected synthetic fill", res, err)
	}
	if err := d.CancelAllOrders(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("CancelAllOrders error: %v", err)
	}
	if fake.OrderCount() != 0 || len(fake.Cancels) != 0 {
		t.Fatalf("dry run reached the exchange: orders=%d cancels=%d", fake.OrderCount(), len(fake.Cancels))
	}
	pos, _ := d.FetchPosition(context.Background(), "BTCUSDT")
	if pos.Size != 1 {
		t.Fatalf("position=%v, expected untouched 1", pos.Size)
	}
	o, err := d.FetchOrder(context.Background(), "BTCUSDT", "BTCUSDT_close_cross")
	if err != nil || !o.Filled() {
		t.Fatalf("FetchOrder=%+v err=%v, expected filled", o, err)
	}
}
