package cmd

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

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

var rootCmd = &cobra.Command{
	Use:   "tradectl",
	Short: "Manage simulated leveraged forex positions and copy trading",
	Long: `Tradectl drives the position engine from the command line.

It provides tools for:
  - Opening and closing simulated leveraged positions
  - Inspecting open positions and tradable pairs
  - Creating trading accounts and funding wallets
  - Running the periodic evaluation loop

Configuration comes from the environment (or a .env file), the same keys
the long-running service uses.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// app bundles the wired components the subcommands operate on.
type app struct {
	cfg        *config.Config
	logger     ports.Logger
	store      *sqlite.Store
	engine     *engine.Engine
	propagator *copytrade.Propagator
}

func (a *app) close() {
	a.store.Close()
}

// newApp wires the full stack the way the service does, including pair
// seeding, so every subcommand sees the same state.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)

	store, err := sqlite.NewStore(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	pairs, err := refdata.Load(cfg.PairsFile)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load pairs: %w", err)
	}
	if err := refdata.Seed(ctx, store, pairs); err != nil {
		store.Close()
		return nil, fmt.Errorf("seed pairs: %w", err)
	}

	simCfg := pricing.Config{}
	if cfg.PriceSeed != 0 {
		simCfg.Rand = rand.New(rand.NewSource(cfg.PriceSeed))
	}
	sim := pricing.New(simCfg)
	wallets := ports.NewKeyedMutex()

	eng, err := engine.New(engine.Config{DefaultLeverage: cfg.DefaultLeverage},
		appLogger, sim, risk.NewEvaluator(), store, store, store, store, wallets)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	fees, err := copytrade.NewFeeEngine(appLogger, store, store, wallets, "")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create fee engine: %w", err)
	}
	propagator, err := copytrade.NewPropagator(copytrade.Config{ClampFactor: cfg.BalanceClampFactor},
		appLogger, store, store, store, store, wallets, fees)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create propagator: %w", err)
	}
	eng.SetTradeClosedHandler(propagator.OnTradeClosed)

	return &app{
		cfg:        cfg,
		logger:     appLogger,
		store:      store,
		engine:     eng,
		propagator: propagator,
	}, nil
}
