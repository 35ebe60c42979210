package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/loandesk/pkg/accounts"
	"github.com/mcclellann/loandesk/pkg/cache"
	"github.com/mcclellann/loandesk/pkg/config"
	"github.com/mcclellann/loandesk/pkg/logging"
	"github.com/mcclellann/loandesk/pkg/scheduler"
	"github.com/mcclellann/loandesk/pkg/store"
	"github.com/sirupsen/logrus"
)

func openStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (store.Storage, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.SQLitePath, store.WithLogger(log))
	case "postgres":
		return store.OpenPostgresStore(ctx, cfg.GetDatabaseConnectionString(), store.WithLogger(log))
	case "memory":
		log.Warn("using in-memory store; data is lost on exit")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// openCache connects to Redis when configured. An unreachable Redis falls
// back to the in-process cache.
func openCache(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (cache.Cache, func()) {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryCache(), func() {}
	}

	rc := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		log.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("redis unavailable, using in-memory history cache")
		rc.Close()
		return cache.NewMemoryCache(), func() {}
	}
	return rc, func() { rc.Close() }
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	storage, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize store: %v", err)
	}

	historyCache, closeCache := openCache(ctx, cfg, logger)
	defer closeCache()

	server := NewServer(storage, historyCache, cfg.HistoryTTL(), logger)
	defer server.Close()

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.NewScheduler(cfg.Scheduler.SlotAudit, accounts.NewSlotManager(storage, logger), logger)
		if err != nil {
			logger.Fatalf("Failed to initialize scheduler: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	httpServer := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      server.routes(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.WithError(err).Error("server failed")
		return
	case <-quit:
		logger.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("error during server shutdown")
	}
	logger.Info("Server exited")
}
