package engine

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/webclinic017/GDA-v2/internal/indicators"
)

// PositionSizes computes the size every included asset would be opened at
// right now. It reads the exchange only and never trades.
func (s *Service) PositionSizes(ctx context.Context) ([]PositionSize, error) {
	markets, err := s.pipeline.LoadMarkets(ctx)
	if err != nil {
		return nil, err
	}
	snaps, err := s.pipeline.Load(ctx, markets.Symbols)
	if err != nil {
		return nil, fmt.Errorf("load market data: %w", err)
	}
	bal, err := s.balance.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}

	mult := s.params.BalanceMult
	var sizes []PositionSize
	for _, sym := range markets.Symbols {
		snap, ok := snaps[sym]
		if !ok || snap.LastClose == 0 {
			continue
		}
		ps := PositionSize{
			Asset:   sym,
			Balance: bal.Wallet,
			Mult:    mult,
			PctSize: snap.TargetFraction,
			Price:   snap.LastClose,
		}
		if !math.IsNaN(ps.PctSize) {
			ps.Units = indicators.Round(bal.Wallet*mult*ps.PctSize/ps.Price, markets.Rules[sym].QuantityPrecision)
			ps.Value = indicators.Round(ps.Price*ps.Units, 4)
		}
		sizes = append(sizes, ps)
	}
	return sizes, nil
}

// WriteSizesCSV writes sizes to path followed by an update-time row.
func WriteSizesCSV(path string, sizes []PositionSize, at time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{{"asset", "balance_$", "mult", "pct_size", "price_$", "units", "value_$"}}
	for _, p := range sizes {
		rows = append(rows, []string{p.Asset, num(p.Balance), num(p.Mult), num(p.PctSize), num(p.Price), num(p.Units), num(p.Value)})
	}
	rows = append(rows, []string{}, []string{"Last Update Time:", at.Format("2006-01-02T15:04")})
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
