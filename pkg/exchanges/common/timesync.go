package common

import (
	"context"
	"log"
	"sync"
	"time"
)

// ServerClock returns the exchange time in unix milliseconds.
type ServerClock func(ctx context.Context) (int64, error)

// TimeSync tracks how far the exchange clock is ahead of ours so signed
// requests stay inside the recv window.
type TimeSync struct {
	clock    ServerClock
	interval time.Duration
	local    func() time.Time

	mu       sync.RWMutex
	offsetMs int64
	synced   time.Time
}

// NewTimeSync resyncs every 30 minutes once started.
func NewTimeSync(clock ServerClock) *TimeSync {
	return &TimeSync{clock: clock, interval: 30 * time.Minute, local: time.Now}
}

// Start syncs now and then on every interval until ctx is done. A failed
// sync keeps the previous offset.
func (ts *TimeSync) Start(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		log.Printf("⚠️ initial time sync failed: %v", err)
	}
	go func() {
		ticker := time.NewTicker(ts.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ts.Sync(ctx); err != nil {
					log.Printf("⚠️ time sync failed: %v", err)
				}
			}
		}
	}()
}

// Sync measures the offset, taking the midpoint of the round trip as the
// local reference.
func (ts *TimeSync) Sync(ctx context.Context) error {
	before := ts.local().UnixMilli()
	server, err := ts.clock(ctx)
	if err != nil {
		return err
	}
	after := ts.local().UnixMilli()
	offset := server - (before+after)/2

	ts.mu.Lock()
	ts.offsetMs = offset
	ts.synced = ts.local()
	ts.mu.Unlock()

	log.Printf("🕒 time sync: offset=%dms", offset)
	return nil
}

// Now is the estimated exchange time in unix milliseconds.
func (ts *TimeSync) Now() int64 {
	return ts.local().UnixMilli() + ts.Offset()
}

func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offsetMs
}

// LastSync is the zero time until a sync has succeeded.
func (ts *TimeSync) LastSync() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.synced
}
