package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"launchpad/config"
	"launchpad/core/events"
	"launchpad/core/state"
	"launchpad/native/launch"
	"launchpad/observability/logging"
	"launchpad/observability/metrics"
	"launchpad/rpc"
	"launchpad/services/history"
	"launchpad/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "launchpadd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.Setup("launchpadd", cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chaindata"))
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	manager, err := state.NewManager(db)
	if err != nil {
		return fmt.Errorf("load world state: %w", err)
	}
	engine := launch.NewEngine(manager, manager, manager, manager)

	emitters := events.Fanout{metrics.NewEmitter()}
	if cfg.History.Enabled {
		histDB, err := history.Open(cfg.History.Driver, cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		emitters = append(emitters, history.NewRecorder(histDB, logger))
		logger.Info("history indexer enabled", "driver", cfg.History.Driver)
	}
	// Events flow through the manager so subscribers only see them once the
	// unit of work that raised them has committed.
	manager.SetEventSink(emitters)
	engine.SetEmitter(manager)

	if err := seed(cfg, manager, engine); err != nil {
		return fmt.Errorf("seed state: %w", err)
	}

	server := rpc.NewServer(manager, engine, logger, rpc.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("JSON-RPC listening", "address", cfg.RPCAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("rpc server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// seed installs the configured platform and genesis balances on first boot.
// Both are idempotent: an existing platform wins over the config and genesis
// runs only against an empty account set.
func seed(cfg *config.Config, manager *state.Manager, engine *launch.Engine) error {
	admin, feeVault, ok, err := cfg.PlatformSeed()
	if err != nil {
		return err
	}
	if _, exists := manager.GetPlatform(); !exists {
		if len(cfg.Genesis.Accounts) > 0 {
			if err := manager.WithinUnit(func() error {
				for _, acct := range cfg.Genesis.Accounts {
					addr, err := config.ParseAddress(acct.Address)
					if err != nil {
						return err
					}
					if err := manager.Credit(addr, acct.Balance); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				return err
			}
		}
		if ok {
			if err := manager.WithinUnit(func() error {
				_, err := engine.InitializePlatform(admin, feeVault, cfg.Platform.ListingFee, cfg.Platform.TradingFeeBps, cfg.Platform.MigrationFee)
				return err
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
