package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/webclinic017/GDA-v2/pkg/exchanges/common"
	market "github.com/webclinic017/GDA-v2/pkg/market/binance"
)

// ErrRetriesExhausted wraps the last error once every attempt has failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy decides how often and when a failed gateway call is retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries transient failures 5 times, 2s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: 2 * time.Second, Retryable: IsRetryable}
}

// IsRetryable classifies network failures and temporary exchange errors
// as retryable. Context cancellation never is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if common.IsTemporary(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempts are used up.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		log.Printf("🔄 %s failed (attempt %d/%d): %v", op, attempt, attempts, err)
		if p.Backoff > 0 {
			t := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, attempts, err)
}

// Retrying wraps a Gateway so every call follows the policy.
type Retrying struct {
	next   Gateway
	policy RetryPolicy
}

// NewRetrying wraps next with policy.
func NewRetrying(next Gateway, policy RetryPolicy) *Retrying {
	return &Retrying{next: next, policy: policy}
}

func retryValue[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (r *Retrying) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Kline, error) {
	return retryValue(ctx, r.policy, "fetch candles "+symbol, func(ctx context.Context) ([]market.Kline, error) {
		return r.next.FetchCandles(ctx, symbol, timeframe, limit)
	})
}

func (r *Retrying) FetchMarketRules(ctx context.Context) (map[string]market.SymbolRules, error) {
	return retryValue(ctx, r.policy, "fetch market rules", r.next.FetchMarketRules)
}

func (r *Retrying) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	return retryValue(ctx, r.policy, "fetch price "+symbol, func(ctx context.Context) (float64, error) {
		return r.next.FetchPrice(ctx, symbol)
	})
}

func (r *Retrying) FetchPositions(ctx context.Context) ([]Position, error) {
	return retryValue(ctx, r.policy, "fetch positions", r.next.FetchPositions)
}

func (r *Retrying) FetchPosition(ctx context.Context, symbol string) (Position, error) {
	return retryValue(ctx, r.policy, "fetch position "+symbol, func(ctx context.Context) (Position, error) {
		return r.next.FetchPosition(ctx, symbol)
	})
}

func (r *Retrying) FetchBalance(ctx context.Context) (Balance, error) {
	return retryValue(ctx, r.policy, "fetch balance", r.next.FetchBalance)
}

func (r *Retrying) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	return retryValue(ctx, r.policy, "place order "+req.ClientID, func(ctx context.Context) (common.OrderResult, error) {
		return r.next.PlaceOrder(ctx, req)
	})
}

func (r *Retrying) CancelAllOrders(ctx context.Context, symbol string) error {
	return r.policy.Do(ctx, "cancel orders "+symbol, func(ctx context.Context) error {
		return r.next.CancelAllOrders(ctx, symbol)
	})
}

func (r *Retrying) FetchOrder(ctx context.Context, symbol, clientID string) (OrderInfo, error) {
	return retryValue(ctx, r.policy, "fetch order "+clientID, func(ctx context.Context) (OrderInfo, error) {
		return r.next.FetchOrder(ctx, symbol, clientID)
	})
}

func (r *Retrying) FetchOpenOrders(ctx context.Context, symbol string) ([]OrderInfo, error) {
	return retryValue(ctx, r.policy, "fetch open orders "+symbol, func(ctx context.Context) ([]OrderInfo, error) {
		return r.next.FetchOpenOrders(ctx, symbol)
	})
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
