package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transaction outcomes recorded against the transactions counter.
const (
	OutcomeCommitted           = "committed"
	OutcomeInsufficientBalance = "insufficient_balance"
	OutcomeValidationError     = "validation_error"
	OutcomeLockUnavailable     = "lock_unavailable"
	OutcomeError               = "error"
)

type MetricsCollector struct {
	registry            *prometheus.Registry
	transactionsTotal   *prometheus.CounterVec
	lockWaitDuration    prometheus.Histogram
	transactionDuration prometheus.Histogram
	logger              *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &MetricsCollector{
		registry: registry,
		transactionsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Ledger transactions by type and outcome",
		}, []string{"type", "outcome"}),
		lockWaitDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_lock_wait_seconds",
			Help:    "Time spent acquiring the per-account mutation lock",
			Buckets: prometheus.DefBuckets,
		}),
		transactionDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_transaction_duration_seconds",
			Help:    "End-to-end duration of a transaction mutation",
			Buckets: prometheus.DefBuckets,
		}),
		logger: logger,
	}
}

func (m *MetricsCollector) RecordTransaction(txType, outcome string, duration time.Duration) {
	m.transactionsTotal.WithLabelValues(txType, outcome).Inc()
	m.transactionDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordLockWait(duration time.Duration) {
	m.lockWaitDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
