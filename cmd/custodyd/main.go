package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"custodyledger/config"
	"custodyledger/core/state"
	"custodyledger/crypto"
	"custodyledger/native/lottery"
	"custodyledger/native/sweeper"
	"custodyledger/native/token"
	"custodyledger/observability"
	"custodyledger/observability/logging"
	"custodyledger/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("CUSTODY_ENV"))
	logger := logging.SetupWithFile("custodyd", env, logging.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})

	if err := run(cfg, *genesisFlag, logger); err != nil {
		logger.Error("custodyd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, genesisOverride string, logger *slog.Logger) error {
	authority, err := cfg.Authority()
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	manager := state.NewManager(db)
	manager.SetRent(cfg.RentSchedule())
	manager.SetEmitter(observability.CountingEmitter{Next: logging.EventLogger{Logger: logger}})

	ledger := token.NewLedger()
	ledger.SetLogger(logger)
	engine := lottery.NewEngine(lottery.DefaultProgram)
	engine.SetLogger(logger)
	engine.SetIssuer(ledger)

	genesisPath := strings.TrimSpace(genesisOverride)
	if genesisPath == "" {
		genesisPath = cfg.GenesisFile
	}
	if genesisPath != "" {
		g, err := config.LoadGenesis(genesisPath)
		if err != nil {
			return err
		}
		mint, err := g.Mint()
		if err != nil {
			return err
		}
		applied, err := g.ApplyOnce(manager, ledger, engine.Program())
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		engine.SetRewardMint(mint)
		logger.Info("genesis loaded",
			slog.String("path", genesisPath),
			slog.Bool("applied", applied),
			slog.String("rewardMint", mint.String()))
	}

	sw := sweeper.New(authority, logger)
	sw.SetRateLimit(cfg.SweepRatePerSecond, 1)
	status := &sweepStatus{disabled: authority.IsZero()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           newRouter(manager, engine, status),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("custodyd listening",
			slog.String("address", cfg.MetricsAddress),
			slog.String("network", cfg.NetworkName))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sweepCtx, stopSweeps := context.WithCancel(ctx)
	var sweeps sync.WaitGroup
	defer func() {
		stopSweeps()
		sweeps.Wait()
	}()
	if authority.IsZero() {
		logger.Warn("periodic sweeps disabled: no maintenance authority to receive reclaimed balances")
	} else {
		sweeps.Add(1)
		go func() {
			defer sweeps.Done()
			sweepLoop(sweepCtx, sw, manager, engine.Program(), authority, time.Duration(cfg.SweepIntervalSeconds)*time.Second, status, logger)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sweepLoop reclaims every closed record owned by program into authority on
// each tick until ctx is cancelled.
func sweepLoop(ctx context.Context, sw *sweeper.Sweeper, manager *state.Manager, program, authority crypto.Address, interval time.Duration, status *sweepStatus, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := sw.SweepClosed(ctx, manager, program, authority, authority)
			status.record(report, err)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("sweep failed", slog.Any("error", err))
				continue
			}
			if report != nil && len(report.Reclaimed) > 0 {
				logger.Info("sweep completed",
					slog.Int("scanned", report.Scanned),
					slog.Int("reclaimed", len(report.Reclaimed)),
					slog.Int("failed", len(report.Failed)))
			}
		}
	}
}
