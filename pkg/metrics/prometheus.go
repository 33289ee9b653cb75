package metrics

import (
	"context"
	"ledger_guard/internal/domain"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry              *prometheus.Registry
	validationsAccepted   prometheus.Counter
	validationsRejected   prometheus.Counter
	validationDuration    prometheus.Histogram
	riskScoreDistribution prometheus.Histogram
	securityScores        prometheus.Histogram
	integrityScore        prometheus.Gauge
	ledgerLocked          prometheus.Gauge
	auditDuration         prometheus.Histogram
	logger                *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		validationsAccepted: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_validations_accepted_total",
			Help: "Total number of accepted transaction validations",
		}),
		validationsRejected: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_validations_rejected_total",
			Help: "Total number of rejected transaction validations",
		}),
		validationDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_validation_duration_seconds",
			Help:    "Time taken to validate one candidate transaction",
			Buckets: prometheus.DefBuckets,
		}),
		riskScoreDistribution: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_risk_score_distribution",
			Help:    "Distribution of fraud risk scores",
			Buckets: []float64{0, 20, 40, 60, 80, 100},
		}),
		securityScores: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_security_score_distribution",
			Help:    "Distribution of combined security scores",
			Buckets: []float64{0, 20, 40, 60, 80, 100},
		}),
		integrityScore: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "ledger_integrity_score",
			Help: "Integrity score from the most recent audit",
		}),
		ledgerLocked: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "ledger_locked",
			Help: "Whether the ledger is locked (1) or unlocked (0)",
		}),
		auditDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_audit_duration_seconds",
			Help:    "Time taken by a full integrity audit",
			Buckets: prometheus.DefBuckets,
		}),
		logger: logger,
	}
}

// RegisterAlertDropCounter exposes the alert sink's drop count as a counter
// sourced from the given reader.
func (c *Collector) RegisterAlertDropCounter(read func() float64) {
	c.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "ledger_alerts_dropped_total",
		Help: "Total number of alert events dropped because the queue was full",
	}, read))
}

func (c *Collector) RecordValidation(result *domain.ValidationResult, duration time.Duration) {
	if result.Valid {
		c.validationsAccepted.Inc()
	} else {
		c.validationsRejected.Inc()
	}
	c.validationDuration.Observe(duration.Seconds())
	c.riskScoreDistribution.Observe(float64(result.RiskScore))
	c.securityScores.Observe(float64(result.SecurityScore))
}

func (c *Collector) RecordAudit(report *domain.LedgerIntegrityReport, duration time.Duration) {
	c.integrityScore.Set(float64(report.IntegrityScore))
	c.auditDuration.Observe(duration.Seconds())
}

func (c *Collector) SetLedgerLocked(locked bool) {
	if locked {
		c.ledgerLocked.Set(1)
	} else {
		c.ledgerLocked.Set(0)
	}
}

func (c *Collector) GetHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.GetHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		c.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (c *Collector) Shutdown(ctx context.Context) error {
	c.logger.Info("Metrics collector shutdown complete")
	return nil
}
