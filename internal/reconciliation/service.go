package reconciliation

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/internal/ledger"
	"github.com/webclinic017/GDA-v2/internal/monitor"
	"github.com/webclinic017/GDA-v2/pkg/db"
)

// Kinds of ledger correction.
const (
	KindUntracked = "untracked" // live position without a record
	KindStale     = "stale"     // record without a live position
	KindResized   = "resized"   // same direction, different size
	KindFlipped   = "flipped"   // direction changed
)

// Service keeps the ledger consistent with the exchange positions.
type Service struct {
	gateway  gateway.Gateway
	database *db.Database
	bus      *events.Bus
	notifier monitor.Notifier
	now      func() time.Time

	mu      sync.Mutex
	cycleID string
}

// Report contains reconciliation results.
type Report struct {
	Timestamp     time.Time
	PositionDiffs []PositionDiff
}

// HasDiffs reports whether any correction was applied.
func (r *Report) HasDiffs() bool { return len(r.PositionDiffs) > 0 }

// PositionDiff represents one applied correction.
type PositionDiff struct {
	Symbol      string
	Kind        string
	LocalQty    float64
	ExchangeQty float64
	Difference  float64
}

// NewService creates a reconciliation service.
func NewService(gw gateway.Gateway, database *db.Database, bus *events.Bus, notifier monitor.Notifier) *Service {
	if notifier == nil {
		notifier = monitor.Nop{}
	}
	return &Service{
		gateway:  gw,
		database: database,
		bus:      bus,
		notifier: notifier,
		now:      time.Now,
	}
}

// BeginCycle tags journal rows with the running cycle.
func (s *Service) BeginCycle(id string) {
	s.mu.Lock()
	s.cycleID = id
	s.mu.Unlock()
}

// Reconcile fetches live positions and corrects l in place. Running it twice
// against the same exchange state changes nothing the second time.
func (s *Service) Reconcile(ctx context.Context, l *ledger.Ledger) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &Report{Timestamp: s.now().UTC()}

	positions, err := s.gateway.FetchPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	live := make(map[string]gateway.Position, len(positions))
	for _, p := range positions {
		if !p.Flat() {
			live[p.Symbol] = p
		}
	}

	bal := &lazyBalance{gw: s.gateway}

	if err := s.recordUntracked(ctx, l, live, bal, report); err != nil {
		return nil, err
	}
	if err := s.deleteStale(ctx, l, live, report); err != nil {
		return nil, err
	}
	if err := s.correctSizes(ctx, l, live, bal, report); err != nil {
		return nil, err
	}

	if report.HasDiffs() {
		log.Printf("⚠️ Reconciliation - %d ledger corrections applied", len(report.PositionDiffs))
		for _, d := range report.PositionDiffs {
			log.Printf("  %s [%s]: Local=%.4f, Exchange=%.4f, Diff=%.4f", d.Symbol, d.Kind, d.LocalQty, d.ExchangeQty, d.Difference)
		}
		s.saveReport(ctx, report)
	} else {
		log.Printf("✅ Reconciliation OK - All positions match")
	}
	return report, nil
}

func (s *Service) recordUntracked(ctx context.Context, l *ledger.Ledger, live map[string]gateway.Position, bal *lazyBalance, report *Report) error {
	var symbols []string
	for sym := range live {
		if !l.Has(sym) {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return nil
	}
	sort.Strings(symbols)
	s.notifier.Notify(ctx, fmt.Sprintf("no record was found for positions in these symbols - they will be recorded:\n[%s]", strings.Join(symbols, ", ")))

	for _, sym := range symbols {
		p := live[sym]
		rec, err := s.recordFromLive(ctx, p, bal)
		if err != nil {
			return err
		}
		l.Put(rec)
		if err := s.gateway.CancelAllOrders(ctx, sym); err != nil {
			return fmt.Errorf("cancel orders on %s: %w", sym, err)
		}
		log.Printf("🔄 limit orders on %s were deleted", sym)
		report.add(PositionDiff{Symbol: sym, Kind: KindUntracked, ExchangeQty: p.Size, Difference: -p.Size})
	}
	return nil
}

func (s *Service) deleteStale(ctx context.Context, l *ledger.Ledger, live map[string]gateway.Position, report *Report) error {
	var symbols []string
	for _, sym := range l.Symbols() {
		if _, ok := live[sym]; !ok {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return nil
	}
	s.notifier.Notify(ctx, fmt.Sprintf("no open positions were found for the following symbols - they will be deleted from the records:\n[%s]", strings.Join(symbols, ", ")))

	for _, sym := range symbols {
		local := l.Get(sym).PositionSize
		l.Delete(sym)
		if err := s.gateway.CancelAllOrders(ctx, sym); err != nil {
			return fmt.Errorf("cancel orders on %s: %w", sym, err)
		}
		log.Printf("🔄 limit orders on %s were deleted", sym)
		report.add(PositionDiff{Symbol: sym, Kind: KindStale, LocalQty: local, Difference: local})
	}
	return nil
}

func (s *Service) correctSizes(ctx context.Context, l *ledger.Ledger, live map[string]gateway.Position, bal *lazyBalance, report *Report) error {
	symbols := make([]string, 0, len(live))
	for sym := range live {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		p := live[sym]
		rec := l.Get(sym)
		if rec == nil || rec.PositionSize == p.Size {
			continue
		}
		before := rec.PositionSize

		kind := KindFlipped
		if before*p.Size > 0 {
			kind = KindResized
			rec.PositionSize = p.Size
			rec.EntryPrice = p.EntryPrice
			rec.ExtendMaxSize(p.Size)
			rec.PortfolioPnLPct = ledger.PortfolioPnLPct(p.UnrealizedPnL, rec.BalanceAtOpen)
		} else {
			fresh, err := s.recordFromLive(ctx, p, bal)
			if err != nil {
				return err
			}
			l.Put(fresh)
		}

		s.notifier.Notify(ctx, fmt.Sprintf("#%s - current position size is different to the recorded size - record was updated\nsize now: %v and was: %v", sym, p.Size, before))
		report.add(PositionDiff{Symbol: sym, Kind: kind, LocalQty: before, ExchangeQty: p.Size, Difference: before - p.Size})
	}
	return nil
}

func (s *Service) recordFromLive(ctx context.Context, p gateway.Position, bal *lazyBalance) (*ledger.Record, error) {
	wallet, err := bal.get(ctx)
	if err != nil {
		return nil, err
	}
	entryTime := p.UpdateTime
	if entryTime.IsZero() {
		entryTime = s.now()
	}
	rec := ledger.NewRecord(ledger.OpenParams{
		Symbol:        p.Symbol,
		EntryPrice:    p.EntryPrice,
		Size:          p.Size,
		EntryTime:     entryTime,
		BalanceAtOpen: wallet,
		OpenReason:    "found on exchange",
	})
	rec.PortfolioPnLPct = ledger.PortfolioPnLPct(p.UnrealizedPnL, wallet)
	return rec, nil
}

func (r *Report) add(d PositionDiff) {
	r.PositionDiffs = append(r.PositionDiffs, d)
}

// saveReport journals every correction and publishes it on the bus.
func (s *Service) saveReport(ctx context.Context, report *Report) {
	for _, d := range report.PositionDiffs {
		s.bus.Publish(events.EventReconciliation, events.ReconcileEvent{
			Symbol:      d.Symbol,
			Kind:        d.Kind,
			LocalQty:    d.LocalQty,
			ExchangeQty: d.ExchangeQty,
		})
		if s.database == nil {
			continue
		}
		err := s.database.CreateReconciliationEvent(ctx, db.ReconciliationEvent{
			CycleID:     s.cycleID,
			Symbol:      d.Symbol,
			Kind:        d.Kind,
			LocalQty:    d.LocalQty,
			ExchangeQty: d.ExchangeQty,
			CreatedAt:   report.Timestamp,
		})
		if err != nil {
			log.Printf("⚠️ reconciliation: store event error: %v", err)
		}
	}
}

// lazyBalance fetches the wallet balance at most once, and only when a new
// record needs it.
type lazyBalance struct {
	gw     gateway.Gateway
	loaded bool
	wallet float64
}

func (b *lazyBalance) get(ctx context.Context) (float64, error) {
	if b.loaded {
		return b.wallet, nil
	}
	bal, err := b.gw.FetchBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch balance: %w", err)
	}
	b.wallet, b.loaded = bal.Wallet, true
	return b.wallet, nil
}
