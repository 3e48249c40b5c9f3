package common

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimeSyncOffset(t *testing.T) {
	local := time.UnixMilli(1_000_000)
	ts := NewTimeSync(func(context.Context) (int64, error) { return 1_000_750, nil })
	ts.local = func() time.Time { return local }

	if err := ts.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if ts.Offset() != 750 {
		t.Fatalf("Offset=%d, expected 750", ts.Offset())
	}
	if ts.Now() != 1_000_750 {
		t.Fatalf("Now=%d, expected 1000750", ts.Now())
	}
	if !ts.LastSync().Equal(local) {
		t.Fatalf("LastSync=%v, expected %v", ts.LastSync(), local)
	}
}

func TestTimeSyncKeepsOffsetOnError(t *testing.T) {
	fail := false
	ts := NewTimeSync(func(context.Context) (int64, error) {
		if fail {
			return 0, errors.New("down")
		}
		return 500, nil
	})
	ts.local = func() time.Time { return time.UnixMilli(0) }
	ts.Sync(context.Background())

	fail = true
	if err := ts.Sync(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	if ts.Offset() != 500 {
		t.Fatalf("Offset=%d, expected 500 kept", ts.Offset())
	}
}
