package common

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterUsage(t *testing.T) {
	rl := NewRateLimiter(2400, time.Minute, 100, 10)

	rl.UpdateFromHeader("1200")
	used, limit, pct := rl.GetUsage()
	if used != 1200 || limit != 2400 || pct != 50 {
		t.Fatalf("usage=%d/%d %.1f, expected 1200/2400 50", used, limit, pct)
	}
	if rl.ShouldDelay() {
		t.Fatalf("ShouldDelay=true at 50%%, expected false")
	}

	rl.UpdateFromHeader("2200")
	if !rl.ShouldDelay() {
		t.Fatalf("ShouldDelay=false at 91%%, expected true")
	}

	rl.UpdateFromHeader("not-a-number")
	if used, _, _ := rl.GetUsage(); used != 2200 {
		t.Fatalf("used=%d after bad header, expected 2200", used)
	}
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter(100, time.Hour, 100, 10)
	rl.UpdateFromHeader("99")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Fatalf("Wait with cancelled context returned nil, expected error")
	}
}

func TestAPIErrorTemporary(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want bool
	}{
		{"throttled", &APIError{StatusCode: 429}, true},
		{"banned", &APIError{StatusCode: 418}, true},
		{"server", &APIError{StatusCode: 503}, true},
		{"timestamp", &APIError{StatusCode: 400, Code: -1021}, true},
		{"insufficient margin", &APIError{StatusCode: 400, Code: -2019}, false},
		{"bad symbol", &APIError{StatusCode: 400, Code: -1121}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Temporary(); got != tt.want {
				t.Fatalf("Temporary()=%v, expected %v", got, tt.want)
			}
		})
	}
}

func TestMapStatus(t *testing.T) {
	if MapStatus("PARTIALLY_FILLED") != StatusPartial {
		t.Fatalf("PARTIALLY_FILLED not mapped to partial")
	}
	if MapStatus("FILLED") != StatusFilled {
		t.Fatalf("FILLED not mapped to filled")
	}
	if MapStatus("???") != StatusUnknown {
		t.Fatalf("unknown status not mapped to unknown")
	}
}
