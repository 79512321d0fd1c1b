package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/api"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/config"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/events"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/events/kafka"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/interfaces"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/ledger"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/lock"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/storage/memory"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/storage/postgres"
	"github.com/DmitryOnishchenko/accounting-notebook/pkg/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewMetricsCollector(logger)

	locks, err := lock.NewClient(buildLockStores(cfg, logger), lock.Config{
		DriftFactor: cfg.Lock.DriftFactor,
		RetryCount:  cfg.Lock.RetryCount,
		RetryDelay:  cfg.Lock.RetryDelay.Std(),
		RetryJitter: cfg.Lock.RetryJitter.Std(),
	}, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := buildLedgerStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher, closePublisher := buildPublisher(cfg, logger)
	defer closePublisher()

	svc := ledger.NewLedger(store, locks, publisher, collector, logger)
	svc.SetLockTTL(cfg.Lock.TTL.Std())

	mux := http.NewServeMux()
	api.NewHandler(svc, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	metricsServer := collector.StartMetricsServer(cfg.Metrics.Addr)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("shutdown complete")
	return nil
}

// buildLockStores returns one store per configured Redis node. Without any
// Redis nodes the lock degrades to a single in-process store, which still
// serializes mutations within this instance.
func buildLockStores(cfg config.Config, logger *slog.Logger) []lock.Store {
	if len(cfg.Redis.Addrs) == 0 {
		logger.Warn("no redis nodes configured, using in-process lock store")
		return []lock.Store{lock.NewMemoryStore("local")}
	}

	stores := make([]lock.Store, 0, len(cfg.Redis.Addrs))
	for _, addr := range cfg.Redis.Addrs {
		client := redis.NewClient(&redis.Options{Addr: addr})
		stores = append(stores, lock.NewRedisStore(client))
	}
	logger.Info("distributed lock configured", slog.Int("redis_nodes", len(stores)))
	return stores
}

func buildLedgerStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (interfaces.LedgerStore, func(), error) {
	switch cfg.Storage.Backend {
	case "postgres":
		store, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres ledger store")
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("closing postgres store failed", slog.String("error", err.Error()))
			}
		}, nil

	case "memory", "":
		store := memory.NewMemoryLedgerStore()
		if cfg.Storage.SeedDemoData {
			store.SeedDemoData()
			logger.Info("seeded demo ledger data")
		}
		logger.Info("using in-memory ledger store")
		return store, func() {}, nil

	default:
		return nil, nil, errors.New("unknown storage backend: " + cfg.Storage.Backend)
	}
}

func buildPublisher(cfg config.Config, logger *slog.Logger) (interfaces.EventPublisher, func()) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NopPublisher{}, func() {}
	}

	p := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	logger.Info("kafka publisher configured",
		slog.Int("brokers", len(cfg.Kafka.Brokers)),
		slog.String("topic", cfg.Kafka.Topic))
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Error("closing kafka writer failed", slog.String("error", err.Error()))
		}
	}
}
