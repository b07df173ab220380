package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/reelroom/reelroom/internal/api"
	"github.com/reelroom/reelroom/internal/auth"
	"github.com/reelroom/reelroom/internal/config"
	"github.com/reelroom/reelroom/internal/engine"
	"github.com/reelroom/reelroom/internal/hub"
	"github.com/reelroom/reelroom/internal/randutil"
	"github.com/reelroom/reelroom/internal/slot"
	"github.com/reelroom/reelroom/internal/store"
)

var CLI struct {
	Config   string `short:"c" default:"reelroom.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" help:"Server address to bind to (overrides config)"`
	LogLevel string `short:"l" help:"Log level (overrides config)"`
	DBUrl    string `name:"db-url" help:"Postgres connection string (overrides config)"`
	Seed     *int64 `help:"Deterministic RNG seed (overrides config)"`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("slotserver"),
		kong.Description("Multiplayer slot machine server"),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		ctx.Exit(1)
	}

	if CLI.Addr != "" {
		cfg.Server.Addr = CLI.Addr
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.DBUrl != "" {
		cfg.Database.URL = CLI.DBUrl
	}
	if CLI.Seed != nil {
		cfg.Game.Seed = *CLI.Seed
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		ctx.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		ctx.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if level, err := log.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("Database ready")

	trManager, err := manager.New(trmpgx.NewDefaultFactory(pool))
	if err != nil {
		return fmt.Errorf("transaction manager: %w", err)
	}

	users := store.NewUsers(pool)
	rounds := store.NewRounds(pool)
	bets := store.NewBets(pool)
	ledger := store.NewLedger(pool)
	items := store.NewItems(pool)

	seed := cfg.Game.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Info("Seeding outcome generator", "seed", seed)

	catalog := cfg.SymbolCatalog()
	gen, err := slot.NewGenerator(catalog, cfg.Game.AssistProbability, randutil.New(seed))
	if err != nil {
		return fmt.Errorf("outcome generator: %w", err)
	}

	tokens := auth.NewTokens(cfg.Auth.TokenSecret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)

	h := hub.New(logger, tokens, users, catalog)

	mgr := engine.New(engine.Deps{
		Logger:    logger,
		Clock:     quartz.NewReal(),
		Generator: gen,
		Tx:        trManager,
		Users:     users,
		Rounds:    rounds,
		Bets:      bets,
		Ledger:    ledger,
		Presence:  h,
		Broadcast: h,
		Timings: engine.Timings{
			Betting:  cfg.BettingWindow(),
			Spinning: cfg.SpinDuration(),
			Result:   cfg.ResultHold(),
			Tick:     cfg.Tick(),
		},
	})
	h.SetEngine(mgr)

	apiServer := api.New(api.Deps{
		Logger:          logger,
		Users:           users,
		Items:           items,
		Ledger:          ledger,
		Tx:              trManager,
		Tokens:          tokens,
		Notifier:        h,
		Paytable:        catalog,
		StartingBalance: cfg.Game.StartingBalance,
		WS:              h.HandleWS,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: apiServer.Router(),
	}

	h.Start()
	mgr.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		mgr.Stop()
		h.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
