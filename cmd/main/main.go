package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"stock-charter/src/config"
	"stock-charter/src/interfaces"
	"stock-charter/src/logger"
	"stock-charter/src/models"
	"stock-charter/src/network"
	"stock-charter/src/providers"
	"stock-charter/src/quota"
	"stock-charter/src/scheduler"
	"stock-charter/src/server"
	"stock-charter/src/storage"
	"stock-charter/src/tracking"
	"stock-charter/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file (provider keys come from the environment)
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	// 1. Storage
	var store interfaces.IStockStore

	switch cfg.Storage.DBType {
	case "postgres":
		store, err = storage.NewPostgresStore(cfg.MConfig, appLogger.Named("storage"))
	default:
		// Default to SQLite
		store, err = storage.NewSQLiteStore(cfg.MConfig, appLogger.Named("storage"))
	}
	if err != nil {
		appLogger.Critical("Failed to create store: %v", err)
	}

	if err := store.Initialize(); err != nil {
		appLogger.Critical("Failed to init store: %v", err)
	}
	defer store.Close()

	// 2. Network + quota accounting
	var netMgr interfaces.INetworkManager = network.NewHTTPManager(cfg.MConfig, appLogger.Named("network"))
	quotaTracker := quota.NewTracker(cfg.EnabledProviders(), store, appLogger.Named("quota"))

	// 3. Provider adapters, in configured fallback order
	var adapters []interfaces.IProvider
	for _, p := range cfg.EnabledProviders() {
		switch p.Name {
		case providers.ProviderAlphaVantage:
			adapters = append(adapters, providers.NewAlphaVantage(p.APIKey, netMgr, appLogger.Named("alphavantage")))
		case providers.ProviderFinnhub:
			adapters = append(adapters, providers.NewFinnhub(p.APIKey, netMgr, appLogger.Named("finnhub")))
		default:
			appLogger.Warning("Unknown provider '%s' in config, skipping", p.Name)
		}
	}
	if len(adapters) == 0 {
		appLogger.Critical("No usable providers: check API key environment variables")
	}

	fetch := providers.NewFallback(adapters, quotaTracker, appLogger.Named("fallback"))

	// 4. Symbol tracking + market calendars
	tracker := tracking.NewTracker(store, appLogger.Named("tracking"))
	markets := utils.NewMarkets(cfg.Symbols.Seed, appLogger.Named("markets"))

	for _, symbol := range cfg.Symbols.Seed {
		if err := tracker.RegisterSymbol(symbol, models.PriorityLowest); err != nil {
			appLogger.Warning("Failed to register seed symbol %s: %v", symbol, err)
		}
	}

	// 5. Scheduler and API server reference each other (server enqueues,
	// scheduler notifies), so the scheduler is built first with a nil
	// notifier slot filled after.
	sched := scheduler.NewScheduler(cfg.MConfig, store, quotaTracker, tracker, fetch, nil, markets, appLogger.Named("scheduler"))
	srv := server.NewAPIServer(cfg.MConfig, store, quotaTracker, tracker, sched, markets, appLogger.Named("server"))
	sched.Notifier = srv

	// 6. Start everything
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := &sync.WaitGroup{}
	if err := sched.Start(ctx, wg); err != nil {
		appLogger.Critical("Failed to start scheduler: %v", err)
	}

	// Seed the queue so a fresh database fills without waiting for cron
	sched.ScanStale()

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
			cancel()
		}
	}()

	// 7. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		appLogger.Info("Received signal %v, shutting down", sig)
	case <-ctx.Done():
	}

	cancel()
	sched.Stop()
	wg.Wait()
	appLogger.Info("Shutdown complete")
}
