package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/webclinic017/GDA-v2/internal/api"
	"github.com/webclinic017/GDA-v2/internal/balance"
	"github.com/webclinic017/GDA-v2/internal/engine"
	"github.com/webclinic017/GDA-v2/internal/events"
	"github.com/webclinic017/GDA-v2/internal/gateway"
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
	"github.com/webclinic017/GDA-v2/pkg/i18n"
)

var buildVersion = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}
	if err := cfg.Unseal(); err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}

	i18n.SetLanguage(i18n.Language(cfg.Language))
	log.Println(i18n.Get("Starting"))
	log.Printf(i18n.Get("ConfigLoaded"), cfg.Port, cfg.RunMode)

	params, err := config.LoadParams(cfg.ParamsPath)
	if err != nil {
		log.Fatalf(i18n.Get("ParamsLoadFailed"), err)
	}
	log.Printf(i18n.Get("ParamsLoaded"), params.StrategyName, len(params.IncludedSymbols), params.TakeProfit.Mode)
	if cfg.DryRun {
		log.Println(i18n.Get("DryRunMode"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf(i18n.Get("UsingDBPath"), cfg.DBPath)
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.Get("DBMigrationsFailed"), err)
	}

	bus := events.NewBus()
	metrics := monitor.NewMetrics()
	log.Println(i18n.Get("MetricsInit"))
	monitorDone := (&monitor.Monitor{Bus: bus, Metrics: metrics}).Start(ctx)

	senders := []monitor.Sender{monitor.LogSender{}}
	if cfg.TelegramToken != "" {
		senders = append(senders, monitor.NewTelegram(cfg.TelegramToken))
	}
	notifier := monitor.NewDispatcher(params.StrategyName, cfg.TelegramChatIDs, cfg.OperatorChats(), senders...)

	gw := buildGateway(ctx, cfg, params)
	exec := order.NewExecutor(gw, database, bus, notifier, cfg.DryRun, params.OrderDelay)
	balanceMgr := balance.NewManager(gw)
	stateMgr := state.NewManager()
	quotes := cache.NewQuoteCache()

	svc := engine.New(engine.Config{
		Params:      params,
		Store:       ledger.NewStore(cfg.LedgerPath),
		Gateway:     gw,
		Reconciler:  reconciliation.NewService(gw, database, bus, notifier),
		Pipeline:    market.NewPipeline(gw, params, market.NewHistory(cfg.DataDir, params.Exchange), notifier, bus),
		Strategy:    strategy.NewEngine(gw, exec, notifier, bus, params.BalanceMult, params.SettleDelay),
		Stops:       risk.NewStopLossManager(gw, exec, notifier, bus, params.NATRStop),
		TakeProfits: risk.NewTakeProfitManager(gw, exec, notifier, bus, params.TakeProfit),
		Executor:    exec,
		DB:          database,
		Bus:         bus,
		Notifier:    notifier,
		State:       stateMgr,
		Balance:     balanceMgr,
		Quotes:      quotes,
		RulesPath:   filepath.Join(cfg.DataDir, params.Exchange+"_trading_rules.json"),
	})
	if err := svc.Prime(); err != nil {
		log.Fatalf(i18n.Get("LedgerLoadFailed"), err)
	}

	switch cfg.RunMode {
	case "once":
		if _, err := svc.RunCycle(ctx); err != nil {
			log.Fatalf(i18n.Get("CycleFailed"), err)
		}
		return
	case "status":
		if _, err := svc.RunStatus(ctx); err != nil {
			log.Fatalf(i18n.Get("StatusFailed"), err)
		}
		return
	case "schedule":
	default:
		log.Fatalf(i18n.Get("UnknownRunMode"), cfg.RunMode)
	}

	sched, err := engine.NewScheduler(svc, params.CycleMinute, params.StatusTime)
	if err != nil {
		log.Fatalf(i18n.Get("ParamsLoadFailed"), err)
	}

	var server *api.Server
	if cfg.EnableAPI {
		server = api.NewServer(api.Options{
			Bus:     bus,
			DB:      database,
			State:   stateMgr,
			Balance: balanceMgr,
			Quotes:  quotes,
			Metrics: metrics,
			Auth: api.AuthConfig{
				JWTSecret:    cfg.JWTSecret,
				PasswordHash: cfg.APIPasswordHash,
				TokenTTL:     24 * time.Hour,
			},
			Limits: api.RateLimit{PerSecond: cfg.APIRequestsPerS, Burst: cfg.APIRequestsBurst},
			Meta: api.SystemMeta{
				Strategy:  params.StrategyName,
				Exchange:  params.Exchange,
				DryRun:    cfg.DryRun,
				Symbols:   params.IncludedSymbols,
				TPMode:    string(params.TakeProfit.Mode),
				Version:   buildVersion,
				StartedAt: time.Now().UTC(),
			},
		})
		go func() {
			log.Printf(i18n.Get("ServerListening"), cfg.Port)
			if err := server.Start(":" + cfg.Port); err != nil {
				log.Printf(i18n.Get("APIServerError"), err)
			}
		}()
	}

	notifier.Notify(ctx, fmt.Sprintf(i18n.Get("StrategyStarted"), params.StrategyName))
	log.Printf(i18n.Get("SchedulerStarted"), params.CycleMinute, params.StatusTime)
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("❌ scheduler stopped: %v", err)
	}

	log.Println(i18n.Get("ShuttingDown"))
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	notifier.Notify(shutdownCtx, i18n.Get("BotShutDown"))
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf(i18n.Get("APIServerError"), err)
		}
	}
	<-monitorDone
}

// buildGateway wraps the Binance gateway with retries and, in dry-run,
// with the order-suppressing layer.
func buildGateway(ctx context.Context, cfg *config.Config, params *config.Params) gateway.Gateway {
	bn := gateway.NewBinance(gateway.BinanceConfig{
		APIKey:    cfg.BinanceUSDTKey,
		APISecret: cfg.BinanceUSDTSecret,
		Testnet:   cfg.BinanceTestnet,
	})
	bn.Start(ctx)

	policy := gateway.DefaultRetryPolicy()
	if params.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = params.Retry.MaxAttempts
	}
	if params.Retry.Backoff > 0 {
		policy.Backoff = params.Retry.Backoff
	}

	var gw gateway.Gateway = gateway.NewRetrying(bn, policy)
	if cfg.DryRun {
		gw = gateway.NewDryRun(gw)
	}
	return gw
}
