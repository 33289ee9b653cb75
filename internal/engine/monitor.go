package engine

import (
	"context"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/ledger"
	"log/slog"
	"sync"
	"time"
)

// Monitor periodically re-runs the integrity auditor and locks the ledger
// when a report is not intact. Unlocking is an administrative action outside
// the monitor.
type Monitor struct {
	auditor  *Auditor
	store    *ledger.Store
	interval time.Duration
	onReport func(*domain.LedgerIntegrityReport, time.Duration)
	shutdown chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func NewMonitor(auditor *Auditor, store *ledger.Store, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Monitor{
		auditor:  auditor,
		store:    store,
		interval: interval,
		shutdown: make(chan struct{}),
		logger:   logger,
	}
}

// OnReport registers a callback invoked for every scheduled report, used by
// the metrics layer.
func (m *Monitor) OnReport(fn func(*domain.LedgerIntegrityReport, time.Duration)) {
	m.onReport = fn
}

func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.logger.Info("Integrity monitor started",
			slog.Duration("interval", m.interval))

		for {
			select {
			case <-ticker.C:
				m.runAudit(context.Background())
			case <-m.shutdown:
				m.logger.Info("Integrity monitor stopped")
				return
			}
		}
	}()
}

func (m *Monitor) Stop() {
	close(m.shutdown)
	m.wg.Wait()
}

func (m *Monitor) runAudit(ctx context.Context) {
	started := time.Now()
	report := m.auditor.Audit(ctx)
	elapsed := time.Since(started)

	if m.onReport != nil {
		m.onReport(report, elapsed)
	}

	if report.IsIntact {
		m.logger.Info("Scheduled integrity audit passed",
			slog.Int("integrity_score", report.IntegrityScore),
			slog.Int("records_checked", report.RecordsChecked))
		return
	}

	reason := fmt.Sprintf("integrity audit failed: score=%d broken_chain=%t corrupted=%d action=%s",
		report.IntegrityScore, report.BrokenChain,
		len(report.CorruptedTransactions), report.RecommendedAction)
	m.store.Lock(reason)
}
