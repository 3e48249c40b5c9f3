package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/internal/indicators"
	"github.com/webclinic017/GDA-v2/internal/monitor"
	"github.com/webclinic017/GDA-v2/pkg/config"
	marketpkg "github.com/webclinic017/GDA-v2/pkg/market/binance"
)

// Snapshot is everything the strategy needs to know about one symbol for
// the current cycle.
type Snapshot struct {
	Symbol string

	Cross1, Cross2         int // last closed trading candle
	PrevCross1, PrevCross2 int // the candle before it
	Trend                  int

	TargetFraction float64 // inverse-volatility weight of the previous daily bar
	ATR            float64 // ATR of the previous daily bar
	LastClose      float64

	Trading indicators.Bars
	Daily   indicators.Bars
}

// Markets are the tradable symbols selected for a cycle.
type Markets struct {
	Rules   map[string]marketpkg.SymbolRules
	Symbols []string
	Missing []string
}

// Pipeline fetches candles and turns them into per-symbol snapshots.
type Pipeline struct {
	gw       gateway.Gateway
	params   *config.Params
	history  *History
	notifier monitor.Notifier
	bus      *events.Bus
	engine   *indicators.Engine
}

// NewPipeline builds a pipeline. history may be nil to skip CSV storage.
func NewPipeline(gw gateway.Gateway, params *config.Params, history *History, notifier monitor.Notifier, bus *events.Bus) *Pipeline {
	if notifier == nil {
		notifier = monitor.Nop{}
	}
	return &Pipeline{
		gw:       gw,
		params:   params,
		history:  history,
		notifier: notifier,
		bus:      bus,
		engine:   indicators.NewEngine(params.EMAs1.Short, params.EMAs1.Long, params.EMAs2.Short, params.EMAs2.Long, params.ATR),
	}
}

// LoadMarkets selects the included, non-excluded symbols the exchange lists
// as tradable. Absent symbols are reported, not fatal.
func (p *Pipeline) LoadMarkets(ctx context.Context) (*Markets, error) {
	all, err := p.gw.FetchMarketRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch market rules: %w", err)
	}
	excluded := make(map[string]bool, len(p.params.ExcludedSymbols))
	for _, s := range p.params.ExcludedSymbols {
		excluded[s] = true
	}

	m := &Markets{Rules: make(map[string]marketpkg.SymbolRules)}
	for _, sym := range p.params.IncludedSymbols {
		if excluded[sym] {
			continue
		}
		r, ok := all[sym]
		if !ok || !r.Tradable() {
			m.Missing = append(m.Missing, sym)
			continue
		}
		m.Rules[sym] = r
		m.Symbols = append(m.Symbols, sym)
	}

	if len(m.Missing) > 0 {
		msg := fmt.Sprintf("There are %d missing markets: %v.\nThese markets should be substituted.", len(m.Missing), m.Missing)
		log.Printf("⚠️ %s", msg)
		p.notifier.Notify(ctx, msg)
	}
	return m, nil
}

type series struct {
	symbol  string
	trading indicators.Bars
	daily   indicators.Bars
	dropped string
}

// Load fetches both timeframes for every symbol concurrently and computes
// the snapshots. Symbols without enough history are left out.
func (p *Pipeline) Load(ctx context.Context, symbols []string) (map[string]*Snapshot, error) {
	results := make([]*series, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.params.FetchWorkers, 1))
	for i, sym := range symbols {
		g.Go(func() error {
			s, err := p.loadSymbol(gctx, sym)
			if err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var loaded []*series
	for _, s := range results {
		if s.dropped != "" {
			log.Printf("⚠️ %s", s.dropped)
			p.notifier.Notify(ctx, s.dropped)
			continue
		}
		loaded = append(loaded, s)
	}
	snaps := p.compute(loaded)
	p.notifyCrossovers(ctx, symbols, snaps)
	return snaps, nil
}

func (p *Pipeline) loadSymbol(ctx context.Context, symbol string) (*series, error) {
	s := &series{symbol: symbol}
	minCandles := p.params.MinimumDaysTraded

	dailyStep, err := ParseTimeframe(p.params.IndicatorTF)
	if err != nil {
		return nil, err
	}
	daily, err := p.gw.FetchCandles(ctx, symbol, p.params.IndicatorTF, p.params.CandlesLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s candles: %w", p.params.IndicatorTF, err)
	}
	daily = Dedupe(daily)
	if gaps := Gaps(daily, dailyStep); gaps > 0 {
		log.Printf("🔄 %s had %d missing periods on %s timeframe", symbol, gaps, p.params.IndicatorTF)
	}
	s.daily = ToBars(daily, dailyStep)
	if s.daily.Len() <= minCandles {
		s.dropped = fmt.Sprintf("#%s has less than %d %s candles of data - %d", symbol, minCandles, p.params.IndicatorTF, s.daily.Len())
		return s, nil
	}
	if p.history != nil {
		if err := p.history.Save(symbol, p.params.IndicatorTF, daily); err != nil {
			log.Printf("⚠️ %s: save %s history: %v", symbol, p.params.IndicatorTF, err)
		}
	}

	tradingStep, err := ParseTimeframe(p.params.TradingTF)
	if err != nil {
		return nil, err
	}
	fresh, err := p.gw.FetchCandles(ctx, symbol, p.params.TradingTF, p.params.CandlesLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s candles: %w", p.params.TradingTF, err)
	}
	fresh = Dedupe(fresh)
	if len(fresh) <= minCandles {
		s.dropped = fmt.Sprintf("#%s has less than %d %s candles of data - %d", symbol, minCandles, p.params.TradingTF, len(fresh))
		return s, nil
	}
	// The newest candle is still open.
	fresh = fresh[:len(fresh)-1]

	merged := fresh
	if p.history != nil {
		stored, err := p.history.Load(symbol, p.params.TradingTF)
		if err != nil {
			log.Printf("⚠️ %s: load %s history: %v", symbol, p.params.TradingTF, err)
		}
		merged = Merge(stored, fresh)
		if err := p.history.Save(symbol, p.params.TradingTF, merged); err != nil {
			log.Printf("⚠️ %s: save %s history: %v", symbol, p.params.TradingTF, err)
		}
	}
	s.trading = ToBars(merged, tradingStep)
	return s, nil
}

// compute derives signals, ATR and the inverse-volatility target fractions.
func (p *Pipeline) compute(loaded []*series) map[string]*Snapshot {
	snaps := make(map[string]*Snapshot, len(loaded))

	// Weights are taken on the previous daily bar shared by the basket.
	var ref time.Time
	for _, s := range loaded {
		if n := s.daily.Len(); n >= 2 && s.daily.Time[n-2].After(ref) {
			ref = s.daily.Time[n-2]
		}
	}

	atrPct := make(map[string]float64, len(loaded))
	for _, s := range loaded {
		sig := p.engine.Signals(s.trading)
		vol := p.engine.Volatility(s.daily)
		snap := &Snapshot{
			Symbol:     s.symbol,
			Cross1:     indicators.LastInt(sig.Cross1),
			Cross2:     indicators.LastInt(sig.Cross2),
			PrevCross1: intAt(sig.Cross1, -2),
			PrevCross2: intAt(sig.Cross2, -2),
			Trend:      indicators.LastInt(sig.Trend),
			ATR:        indicators.At(vol.ATR, -2),
			LastClose:  indicators.Last(s.trading.Close),
			Trading:    s.trading,
			Daily:      s.daily,
		}
		snaps[s.symbol] = snap
		atrPct[s.symbol] = valueAt(s.daily.Time, vol.ATRPct, ref)
	}

	weights := indicators.InverseVolWeights(atrPct)
	for sym, snap := range snaps {
		snap.TargetFraction = weights[sym]
	}
	return snaps
}

func (p *Pipeline) notifyCrossovers(ctx context.Context, order []string, snaps map[string]*Snapshot) {
	for _, sym := range order {
		snap, ok := snaps[sym]
		if !ok {
			continue
		}
		pairs := []struct {
			name       string
			last, prev int
		}{
			{"shorter", snap.Cross1, snap.PrevCross1},
			{"longer", snap.Cross2, snap.PrevCross2},
		}
		for _, pr := range pairs {
			dir := ""
			switch {
			case pr.last == 1 || pr.prev == 1:
				dir = "LONG"
			case pr.last == -1 || pr.prev == -1:
				dir = "SHORT"
			default:
				continue
			}
			msg := fmt.Sprintf("#%s %s %s emas crossover signal was generated in the last 2 trading candles", sym, dir, pr.name)
			log.Printf("📊 %s", msg)
			p.notifier.Notify(ctx, msg)
			p.bus.Publish(events.EventSignalGenerated, events.SignalEvent{Symbol: sym, Pair: pr.name, Direction: dir})
		}
	}
}

// valueAt returns the value on the bar opening at t, or NaN.
func valueAt(times []time.Time, values []float64, t time.Time) float64 {
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(t) })
	if i >= len(times) || !times[i].Equal(t) || i >= len(values) {
		return math.NaN()
	}
	return values[i]
}

func intAt(s []int, i int) int {
	if i < 0 {
		i = len(s) + i
	}
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

// WriteRules stores the trading rules of the selected markets as JSON.
func WriteRules(path string, rules map[string]marketpkg.SymbolRules) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create rules dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	return os.Rename(tmp, path)
}
