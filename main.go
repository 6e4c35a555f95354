package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"traderiser/config"
	"traderiser/internal/adapters/logger"
	"traderiser/internal/adapters/sqlite"
	"traderiser/internal/copytrade"
	"traderiser/internal/engine"
	"traderiser/internal/ports"
	"traderiser/internal/pricing"
	"traderiser/internal/refdata"
	"traderiser/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	switch cfg.LogFormat {
	case "zap":
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize zap logger: %v", err)
		}
		defer zl.Sync()
		appLogger = zl
	default:
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Store (Database Adapter)
	store, err := sqlite.NewStore(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database store")
		log.Fatalf("FATAL: Failed to initialize database store: %v", err) // Also log to stderr
	}
	defer func() {
		if err := store.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database store")
		}
	}()

	// 4. Seed Pair Reference Data
	pairs, err := refdata.Load(cfg.PairsFile)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to load pairs file")
		log.Fatalf("FATAL: Failed to load pairs file: %v", err)
	}
	if err := refdata.Seed(context.Background(), store, pairs); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to seed pair reference data")
		log.Fatalf("FATAL: Failed to seed pair reference data: %v", err)
	}
	appLogger.Info(context.Background(), "Pair reference data seeded", map[string]interface{}{"pairs": len(pairs)})

	// 5. Initialize Simulation and Risk Components
	simCfg := pricing.Config{}
	if cfg.PriceSeed != 0 {
		simCfg.Rand = rand.New(rand.NewSource(cfg.PriceSeed))
	}
	sim := pricing.New(simCfg)
	eval := risk.NewEvaluator()

	// Shared per-account wallet locks: every settlement in the process, from
	// the position engine or the copy-trade path, serializes through these.
	wallets := ports.NewKeyedMutex()

	// 6. Initialize Position Engine
	eng, err := engine.New(engine.Config{DefaultLeverage: cfg.DefaultLeverage},
		appLogger, sim, eval, store, store, store, store, wallets)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize position engine")
		log.Fatalf("FATAL: Failed to initialize position engine: %v", err)
	}

	// 7. Initialize Copy-Trade Propagation
	fees, err := copytrade.NewFeeEngine(appLogger, store, store, wallets, "")
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize fee engine")
		log.Fatalf("FATAL: Failed to initialize fee engine: %v", err)
	}
	propagator, err := copytrade.NewPropagator(copytrade.Config{ClampFactor: cfg.BalanceClampFactor},
		appLogger, store, store, store, store, wallets, fees)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize copy-trade propagator")
		log.Fatalf("FATAL: Failed to initialize copy-trade propagator: %v", err)
	}
	eng.SetTradeClosedHandler(propagator.OnTradeClosed)
	appLogger.Info(context.Background(), "Engines initialized", map[string]interface{}{
		"defaultLeverage": cfg.DefaultLeverage,
		"evalInterval":    cfg.EvalInterval / time.Second,
	})

	// 8. Run the Evaluation Loop Until Interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.RunEvaluationLoop(ctx, cfg.EvalInterval); err != nil {
		appLogger.Error(context.Background(), err, "Evaluation loop exited with error")
		log.Fatalf("FATAL: Evaluation loop exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
