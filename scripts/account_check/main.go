package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/webclinic017/GDA-v2/internal/gateway"
	"github.com/webclinic017/GDA-v2/pkg/config"
)

// account_check/main.go
//
// Read-only probe of the USDT-M futures account the bot trades with.
// Nothing here places or cancels orders.
//
//   go run ./scripts/account_check
//
// Environment (same as the bot):
//   BINANCE_USDT_KEY / BINANCE_USDT_SECRET (may be sealed)
//   BINANCE_TESTNET
//   CHECK_SYMBOL (default "BTCUSDT")

func main() {
	log.Println("=== Account check starting ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if err := cfg.Unseal(); err != nil {
		log.Fatalf("config unseal error: %v", err)
	}
	if cfg.BinanceUSDTKey == "" || cfg.BinanceUSDTSecret == "" {
		log.Fatal("BINANCE_USDT_KEY/SECRET empty")
	}
	symbol := getenv("CHECK_SYMBOL", "BTCUSDT")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bn := gateway.NewBinance(gateway.BinanceConfig{
		APIKey:    cfg.BinanceUSDTKey,
		APISecret: cfg.BinanceUSDTSecret,
		Testnet:   cfg.BinanceTestnet,
	})
	bn.Start(ctx)

	step(ctx, "FetchMarketRules", func(ctx context.Context) error {
		rules, err := bn.FetchMarketRules(ctx)
		if err != nil {
			return err
		}
		r, ok := rules[symbol]
		log.Printf("[USDT] markets=%d %s known=%v status=%s qty precision=%d", len(rules), symbol, ok, r.Status, r.QuantityPrecision)
		return nil
	})
	step(ctx, "FetchPrice", func(ctx context.Context) error {
		p, err := bn.FetchPrice(ctx, symbol)
		if err == nil {
			log.Printf("[USDT] %s last price=%v", symbol, p)
		}
		return err
	})
	step(ctx, "FetchBalance", func(ctx context.Context) error {
		b, err := bn.FetchBalance(ctx)
		if err == nil {
			log.Printf("[USDT] wallet=%.4f nav=%.4f", b.Wallet, b.Margin)
		}
		return err
	})
	step(ctx, "FetchPositions", func(ctx context.Context) error {
		pos, err := bn.FetchPositions(ctx)
		if err != nil {
			return err
		}
		log.Printf("[USDT] open positions=%d", len(pos))
		for _, p := range pos {
			log.Printf("[USDT]   %s size=%v entry=%v mark=%v upnl=%.4f", p.Symbol, p.Size, p.EntryPrice, p.MarkPrice, p.UnrealizedPnL)
		}
		return nil
	})
	step(ctx, "FetchOpenOrders", func(ctx context.Context) error {
		ords, err := bn.FetchOpenOrders(ctx, symbol)
		if err == nil {
			log.Printf("[USDT] open orders for %s: %d", symbol, len(ords))
		}
		return err
	})

	log.Println("=== Account check finished ===")
}

func step(parent context.Context, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Printf("[USDT] %s error: %v", name, err)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
