// Package engine runs the trading cycle and the daily status report on top
// of the ledger, market, strategy and risk packages.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/webclinic017/GDA-v2/internal/balance"
	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/internal/indicators"
	"github.com/webclinic017/GDA-v2/internal/ledger"
	"github.com/webclinic017/GDA-v2/internal/market"
	"github.com/webclinic017/GDA-v2/internal/monitor"
	"github.com/webclinic017/GDA-v2/internal/order"
	"github.com/webclinic017/GDA-v2/internal/reconciliation"
	"github.com/webclinic017/GDA-v2/internal/risk"
	"github.com/webclinic017/GDA-v2/internal/state"
	"github.com/webclinic017/GDA-v2/internal/strategy"
	"github.com/webclinic017/GDA-v2/pkg/cache"
	"github.com/webclinic017/GDA-v2/pkg/config"
	"github.com/webclinic017/GDA-v2/pkg/db"
)

// ErrBusy is returned when a job is requested while another one runs.
var ErrBusy = errors.New("engine: another job is running")

// Service owns one ledger file and runs jobs against it one at a time.
type Service struct {
	params      *config.Params
	store       *ledger.Store
	gw          gateway.Gateway
	reconciler  *reconciliation.Service
	pipeline    *market.Pipeline
	strategy    *strategy.Engine
	stops       *risk.StopLossManager
	takeProfits *risk.TakeProfitManager
	exec        *order.Executor
	db          *db.Database
	bus         *events.Bus
	notifier    monitor.Notifier
	state       *state.Manager
	balance     *balance.Manager
	quotes      *cache.QuoteCache
	rulesPath   string
	now         func() time.Time

	mu sync.Mutex
}

// Config holds the configuration for creating an engine service.
// DB, Bus, State, Balance, Quotes and RulesPath are optional.
type Config struct {
	Params      *config.Params
	Store       *ledger.Store
	Gateway     gateway.Gateway
	Reconciler  *reconciliation.Service
	Pipeline    *market.Pipeline
	Strategy    *strategy.Engine
	Stops       *risk.StopLossManager
	TakeProfits *risk.TakeProfitManager
	Executor    *order.Executor
	DB          *db.Database
	Bus         *events.Bus
	Notifier    monitor.Notifier
	State       *state.Manager
	Balance     *balance.Manager
	Quotes      *cache.QuoteCache
	RulesPath   string
}

// New creates a service from cfg.
func New(cfg Config) *Service {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = monitor.Nop{}
	}
	st := cfg.State
	if st == nil {
		st = state.NewManager()
	}
	bal := cfg.Balance
	if bal == nil {
		bal = balance.NewManager(cfg.Gateway)
	}
	return &Service{
		params:      cfg.Params,
		store:       cfg.Store,
		gw:          cfg.Gateway,
		reconciler:  cfg.Reconciler,
		pipeline:    cfg.Pipeline,
		strategy:    cfg.Strategy,
		stops:       cfg.Stops,
		takeProfits: cfg.TakeProfits,
		exec:        cfg.Executor,
		db:          cfg.DB,
		bus:         cfg.Bus,
		notifier:    notifier,
		state:       st,
		balance:     bal,
		quotes:      cfg.Quotes,
		rulesPath:   cfg.RulesPath,
		now:         time.Now,
	}
}

// State returns the ledger snapshot updated after every saved cycle.
func (s *Service) State() *state.Manager { return s.state }

// Balance returns the cached account balance.
func (s *Service) Balance() *balance.Manager { return s.balance }

// Prime loads the ledger file into the snapshot without touching the
// exchange.
func (s *Service) Prime() error {
	l, err := s.store.Load()
	if err != nil {
		return err
	}
	s.state.Set(l, l.LastUpdate)
	return nil
}

// RunCycle runs one full trading cycle. Any error aborts the cycle before
// the ledger is saved.
func (s *Service) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	report := &CycleReport{StartedAt: s.now().UTC()}
	report.ID = s.startJob(ctx, KindCycle, report.StartedAt)
	s.exec.BeginCycle(report.ID)
	s.reconciler.BeginCycle(report.ID)

	log.Printf("🚀 Cycle %s started", report.ID)
	err := recoverJob(KindCycle, func() error { return s.runCycle(ctx, report) })
	report.Orders = s.exec.Count()
	report.FinishedAt = s.now().UTC()

	s.finishJob(ctx, KindCycle, report.ID, report.StartedAt, report.FinishedAt, report.Orders, len(report.Symbols), err)
	if err != nil {
		return report, err
	}
	log.Printf("✅ Cycle %s finished: %d symbols, %d orders, %d positions (%s)",
		report.ID, len(report.Symbols), report.Orders, report.Positions, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	return report, nil
}

func (s *Service) runCycle(ctx context.Context, report *CycleReport) error {
	l, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	if s.takeProfits != nil && s.takeProfits.Mode() == config.TakeProfitLimit {
		fills, err := s.takeProfits.CheckLimit(ctx, l)
		if err != nil {
			return fmt.Errorf("check take profits: %w", err)
		}
		report.TakeProfits = append(report.TakeProfits, fills...)
	}

	recon, err := s.reconciler.Reconcile(ctx, l)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	report.Corrections = recon.PositionDiffs

	markets, err := s.pipeline.LoadMarkets(ctx)
	if err != nil {
		return err
	}
	report.Missing = markets.Missing

	snaps, err := s.pipeline.Load(ctx, markets.Symbols)
	if err != nil {
		return fmt.Errorf("load market data: %w", err)
	}

	inputs := make([]strategy.SymbolInput, 0, len(snaps))
	daily := make(map[string]indicators.Bars, len(snaps))
	atr := make(map[string]float64, len(snaps))
	lastClose := make(map[string]float64, len(snaps))
	for _, sym := range markets.Symbols {
		snap, ok := snaps[sym]
		if !ok {
			continue
		}
		report.Symbols = append(report.Symbols, sym)
		inputs = append(inputs, strategy.SymbolInput{
			Symbol:         sym,
			Signal:         strategy.Signal{Cross1: snap.Cross1, Cross2: snap.Cross2, Trend: snap.Trend},
			TargetFraction: snap.TargetFraction,
			Rules:          markets.Rules[sym],
		})
		daily[sym] = snap.Daily
		atr[sym] = snap.ATR
		lastClose[sym] = snap.LastClose
	}

	outcomes, err := s.strategy.Run(ctx, l, inputs)
	report.Outcomes = outcomes
	if err != nil {
		return fmt.Errorf("trade: %w", err)
	}

	report.StopMoves = s.stops.Ratchet(ctx, l, daily, atr)
	stops, err := s.stops.Execute(ctx, l, atr)
	report.Stops = stops
	if err != nil {
		return fmt.Errorf("stop loss: %w", err)
	}

	if s.takeProfits != nil {
		switch s.takeProfits.Mode() {
		case config.TakeProfitMarket:
			fills, err := s.takeProfits.ExecuteMarket(ctx, l, lastClose, markets.Rules)
			report.TakeProfits = append(report.TakeProfits, fills...)
			if err != nil {
				return fmt.Errorf("take profit: %w", err)
			}
		case config.TakeProfitLimit:
			if err := s.takeProfits.CreateLimit(ctx, l, markets.Rules); err != nil {
				return fmt.Errorf("take profit orders: %w", err)
			}
		}
	}

	if err := s.store.Save(l, s.now()); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	report.Positions = l.Len()
	s.state.Set(l, l.LastUpdate)

	if s.quotes != nil {
		for sym, c := range lastClose {
			s.quotes.Set(sym, c)
		}
		s.quotes.Retain(report.Symbols)
	}
	if s.rulesPath != "" {
		if err := market.WriteRules(s.rulesPath, markets.Rules); err != nil {
			log.Printf("⚠️ write trading rules: %v", err)
		}
	}
	return nil
}

// RunStatus reports open positions and the account balance to every user.
func (s *Service) RunStatus(ctx context.Context) (*StatusReport, error) {
	if !s.mu.TryLock() {
		return nil, ErrBusy
	}
	defer s.mu.Unlock()

	started := s.now().UTC()
	id := s.startJob(ctx, KindStatus, started)
	var report *StatusReport
	err := recoverJob(KindStatus, func() error {
		var err error
		report, err = s.runStatus(ctx, started)
		return err
	})
	finished := s.now().UTC()

	open := 0
	if report != nil {
		open = report.Open
	}
	s.finishJob(ctx, KindStatus, id, started, finished, 0, open, err)
	return report, err
}

func (s *Service) runStatus(ctx context.Context, at time.Time) (*StatusReport, error) {
	positions, err := s.gw.FetchPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	bal, err := s.balance.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}

	r := &StatusReport{
		Time:         at,
		TotalMarkets: len(s.params.IncludedSymbols),
		Wallet:       bal.Wallet,
		NAV:          bal.NAV,
	}
	for _, p := range positions {
		switch {
		case p.Size > 0:
			r.Longs = append(r.Longs, p.Symbol)
		case p.Size < 0:
			r.Shorts = append(r.Shorts, p.Symbol)
		}
	}
	sort.Strings(r.Longs)
	sort.Strings(r.Shorts)
	r.Open = len(r.Longs) + len(r.Shorts)
	if r.TotalMarkets > 0 {
		r.PctOpen = int(math.Round(float64(r.Open) / float64(r.TotalMarkets) * 100))
	}
	if r.Wallet != 0 {
		r.NAVDiffPct = indicators.Round((r.NAV-r.Wallet)/r.Wallet*100, 2)
	}
	r.Message = FormatStatus(r)

	log.Printf("📊 Status: %d open (%d long, %d short), wallet %.2f, NAV %.2f", r.Open, len(r.Longs), len(r.Shorts), r.Wallet, r.NAV)
	s.notifier.Notify(ctx, r.Message)
	s.bus.Publish(events.EventStatusReport, events.StatusEvent{OpenPositions: r.Open, Wallet: r.Wallet, NAV: r.NAV})
	return r, nil
}

// FormatStatus renders the daily status message.
func FormatStatus(r *StatusReport) string {
	var b strings.Builder
	b.WriteString("MARKETS\n\n")
	fmt.Fprintf(&b, "%d (%d%%) markets currently open out of %d\n\n", r.Open, r.PctOpen, r.TotalMarkets)
	fmt.Fprintf(&b, "Total Short positions: %d, currently:\n\n%s\n\n", len(r.Shorts), symbolList(r.Shorts))
	fmt.Fprintf(&b, "Total Long positions: %d, currently:\n\n%s\n\n\n", len(r.Longs), symbolList(r.Longs))
	b.WriteString("NAV\n\n")
	fmt.Fprintf(&b, "Balance: %v\n NAV: %v\n\n", indicators.Round(r.Wallet, 2), indicators.Round(r.NAV, 2))
	fmt.Fprintf(&b, "Difference between NAV and Balance is: %v%%", r.NAVDiffPct)
	return b.String()
}

func symbolList(symbols []string) string {
	if len(symbols) == 0 {
		return "None"
	}
	return "[" + strings.Join(symbols, ", ") + "]"
}

// recoverJob turns a panic inside fn into an error so it is journaled and
// alerted like any other failure.
func recoverJob(kind string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			log.Printf("🔥 panic in %s: %v\n%s", kind, r, stack)
			err = fmt.Errorf("panic: %v\n%s", r, stack)
		}
	}()
	return fn()
}

// startJob journals a running job. Without a database the id is local.
func (s *Service) startJob(ctx context.Context, kind string, at time.Time) string {
	if s.db == nil {
		return fmt.Sprintf("%s-%d", kind, at.UnixMilli())
	}
	id, err := s.db.StartCycle(ctx, kind, at)
	if err != nil {
		log.Printf("⚠️ journal: start %s error: %v", kind, err)
		return fmt.Sprintf("%s-%d", kind, at.UnixMilli())
	}
	return id
}

// finishJob records the outcome, publishes it and alerts operators on error.
func (s *Service) finishJob(ctx context.Context, kind, id string, started, finished time.Time, orders, symbols int, jobErr error) {
	status, errText := db.CycleOK, ""
	if jobErr != nil {
		status, errText = db.CycleFailed, jobErr.Error()
	}

	// The outcome is journaled even when ctx was cancelled mid-job.
	bg := context.WithoutCancel(ctx)
	if s.db != nil {
		if err := s.db.FinishCycle(bg, id, status, orders, symbols, errText, finished); err != nil {
			log.Printf("⚠️ journal: finish %s error: %v", kind, err)
		}
	}

	ev := events.CycleEvent{ID: id, Kind: kind, Orders: orders, Duration: finished.Sub(started), Error: errText}
	if jobErr != nil {
		log.Printf("❌ %s %s failed: %v", kind, id, jobErr)
		s.notifier.Alert(bg, fmt.Sprintf("error in *%s* run\n%v", kind, jobErr))
		s.bus.Publish(events.EventCycleFailed, ev)
		return
	}
	s.bus.Publish(events.EventCycleCompleted, ev)
}
