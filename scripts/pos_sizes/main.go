package main

// pos_sizes prints the position each included market would get right now,
// without placing orders, and writes them to current_pos_sizes.csv.
//
//   go run ./scripts/pos_sizes

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/webclinic017/GDA-v2/internal/engine"
	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/internal/ledger"
	"github.com/webclinic017/GDA-v2/internal/market"
	"github.com/webclinic017/GDA-v2/pkg/config"
	"github.com/webclinic017/GDA-v2/pkg/i18n"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if err := cfg.Unseal(); err != nil {
		log.Fatalf("config unseal error: %v", err)
	}
	i18n.SetLanguage(i18n.Language(cfg.Language))

	params, err := config.LoadParams(cfg.ParamsPath)
	if err != nil {
		log.Fatalf(i18n.Get("ParamsLoadFailed"), err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bn := gateway.NewBinance(gateway.BinanceConfig{
		APIKey:    cfg.BinanceUSDTKey,
		APISecret: cfg.BinanceUSDTSecret,
		Testnet:   cfg.BinanceTestnet,
	})
	bn.Start(ctx)
	// Sizing never trades; the dry-run layer makes that explicit.
	gw := gateway.NewDryRun(gateway.NewRetrying(bn, gateway.DefaultRetryPolicy()))

	svc := engine.New(engine.Config{
		Params:   params,
		Store:    ledger.NewStore(cfg.LedgerPath),
		Gateway:  gw,
		Pipeline: market.NewPipeline(gw, params, market.NewHistory(cfg.DataDir, params.Exchange), nil, nil),
	})

	sizes, err := svc.PositionSizes(ctx)
	if err != nil {
		log.Fatalf("position sizes: %v", err)
	}

	fmt.Printf("%-14s %12s %6s %8s %14s %14s %12s\n", "asset", "balance_$", "mult", "pct", "price_$", "units", "value_$")
	for _, s := range sizes {
		fmt.Printf("%-14s %12.2f %6.2f %8.4f %14.6f %14.6f %12.4f\n", s.Asset, s.Balance, s.Mult, s.PctSize, s.Price, s.Units, s.Value)
	}

	path := filepath.Join(cfg.DataDir, "current_pos_sizes.csv")
	if err := engine.WriteSizesCSV(path, sizes, time.Now().UTC()); err != nil {
		log.Fatalf("write sizes: %v", err)
	}
	log.Printf(i18n.Get("SizesWritten"), path)
}
