package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"ledger_guard/internal/api"
	"ledger_guard/internal/config"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/engine"
	"ledger_guard/internal/ledger"
	"ledger_guard/internal/repository/memory"
	"ledger_guard/internal/repository/sqlite"
	"ledger_guard/internal/service"
	"ledger_guard/pkg/metrics"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("Starting ledger guard",
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.String("metrics_addr", cfg.HTTP.MetricsAddr),
		slog.String("db_path", cfg.Ledger.DBPath),
		slog.Duration("audit_interval", cfg.Ledger.AuditInterval))

	if err := run(cfg, logger); err != nil {
		logger.Error("Fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	repo, err := sqlite.Open(cfg.Ledger.DBPath)
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}
	defer repo.Close()

	keys := memory.NewKeyStore(cfg.Ledger.RequireHardwareBacked)
	if err := seedKeys(keys, cfg.Ledger.RequireHardwareBacked); err != nil {
		return fmt.Errorf("seed key store: %w", err)
	}

	// External collaborators. In-memory stand-ins until the account,
	// risk and backup services expose their own clients.
	balances := memory.NewBalanceOracle(1_000_000)
	pending := memory.NewPendingIndex()
	risk := memory.NewRiskProvider()
	backup := memory.NewBackupSystem()

	store := ledger.NewStore(repo, logger)
	index := ledger.NewRecentIndex(repo, pending)

	alerts := service.NewAlertService(&service.LogNotifier{Logger: logger}, cfg.Ledger.AlertWorkers, logger)

	validator := engine.NewACIDValidator(balances, index, keys, backup, cfg.Ledger.RequireHardwareBacked, logger)
	scorer := engine.NewFraudScorer(index, risk, keys, logger)
	linker := engine.NewChainLinker(store, keys, logger)
	eng := engine.NewEngine(store, validator, scorer, linker, keys, alerts, cfg.Ledger.HighValueThreshold, logger)

	auditor := engine.NewAuditor(store, keys, alerts, cfg.Ledger.RequireHardwareBacked, logger)

	collector := metrics.NewCollector(logger)
	collector.RegisterAlertDropCounter(func() float64 { return float64(alerts.Dropped()) })
	metricsServer := collector.StartMetricsServer(cfg.HTTP.MetricsAddr)

	monitor := engine.NewMonitor(auditor, store, cfg.Ledger.AuditInterval, logger)
	monitor.OnReport(func(report *domain.LedgerIntegrityReport, elapsed time.Duration) {
		collector.RecordAudit(report, elapsed)
		collector.SetLedgerLocked(store.IsLocked())
	})
	monitor.Start()

	handler := api.NewAPIHandler(eng, auditor, store, alerts, collector, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API server listening", slog.String("addr", cfg.HTTP.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	monitor.Stop()

	if err := server.Shutdown(ctx); err != nil {
		server.Close()
		logger.Warn("API server shutdown forced", slog.String("error", err.Error()))
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		metricsServer.Close()
		logger.Warn("Metrics server shutdown forced", slog.String("error", err.Error()))
	}
	if err := alerts.Shutdown(ctx); err != nil {
		logger.Warn("Alert service drain incomplete", slog.String("error", err.Error()))
	}

	logger.Info("Shutdown complete")
	return nil
}

func seedKeys(keys *memory.KeyStore, requireStrong bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	names := []string{
		engine.MasterKeyName,
		engine.SessionKeyName,
		engine.SigningKeyName,
	}
	for _, name := range names {
		if _, err := keys.Get(ctx, name); err == nil {
			continue
		}
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		if err := keys.Set(ctx, name, secret, requireStrong); err != nil {
			return err
		}
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
