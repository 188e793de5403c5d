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
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"payflow/config"
	"payflow/core/state"
	"payflow/native/registry"
	"payflow/observability/logging"
	"payflow/observability/metrics"
	"payflow/rpc"
	"payflow/storage"
)

var instanceIDKey = []byte("!meta/instance_id")

func main() {
	configPath := flag.String("config", "payflow.toml", "path to the node configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "payflowd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.Setup("payflowd", cfg.Env, logging.Options{
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	genesis, err := config.LoadGenesis(cfg.GenesisFile)
	if err != nil {
		return err
	}
	// Refuse to start when the declared capacity cannot hold the record
	// set; a late capacity failure mid-operation is much harder to diagnose.
	if err := config.PreflightSchema(cfg, genesis); err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	manager, err := state.NewManager(db, state.Schema{MaxUints: cfg.MaxUints, MaxByteSlices: cfg.MaxByteSlices})
	if err != nil {
		return err
	}
	engine, err := registry.NewEngine(manager, registry.Config{ExpiryEpoch: cfg.ExpiryEpoch, Strategy: cfg.Strategy()})
	if err != nil {
		return err
	}

	instanceID, err := ensureInstance(db, engine, genesis, logger)
	if err != nil {
		return err
	}
	logger = logger.With("instance", instanceID)

	server := rpc.NewServer(engine, logger, metrics.Registry(), rpc.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst))
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rpc listening", "address", cfg.RPCAddress, "backend", cfg.Backend, "strategy", cfg.RankingStrategy)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb":
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	case "bolt":
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.db"))
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// ensureInstance initialises the record set on first start and returns the
// opaque identifier assigned to this deployment.
func ensureInstance(db storage.Database, engine *registry.Engine, genesis config.Genesis, logger *slog.Logger) (string, error) {
	if raw, err := db.Get(instanceIDKey); err == nil {
		return string(raw), nil
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return "", err
	}

	if _, err := engine.Create(genesis.Processors); err != nil && !errors.Is(err, registry.ErrAlreadyInitialized) {
		return "", err
	}
	instanceID := uuid.NewString()
	if err := db.Put(instanceIDKey, []byte(instanceID)); err != nil {
		return "", err
	}
	logger.Info("record set initialised", "processors", len(genesis.Processors), "instance", instanceID)
	return instanceID, nil
}
