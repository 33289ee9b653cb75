package engine

import (
	"context"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/ledger"
	"ledger_guard/internal/repository"
	"ledger_guard/pkg/crypto"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	intactThreshold      = 80
	investigateThreshold = 70
	haltThreshold        = 50
	restoreThreshold     = 20
)

// Auditor walks the full chain, recomputing hashes, verifying signatures and
// links, and produces an integrity score with a recommended action. Only one
// audit runs at a time; scheduled and manual audits share the same guard.
type Auditor struct {
	store                 *ledger.Store
	keys                  repository.KeyStore
	alerts                repository.AlertSink
	requireHardwareBacked bool
	probeTimeout          time.Duration
	mu                    sync.Mutex
	clock                 func() time.Time
	logger                *slog.Logger
}

func NewAuditor(
	store *ledger.Store,
	keys repository.KeyStore,
	alerts repository.AlertSink,
	requireHardwareBacked bool,
	logger *slog.Logger,
) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		store:                 store,
		keys:                  keys,
		alerts:                alerts,
		requireHardwareBacked: requireHardwareBacked,
		probeTimeout:          5 * time.Second,
		clock:                 time.Now,
		logger:                logger,
	}
}

// Audit never returns an error: any internal failure yields the fail-closed
// report (score 0, halt_operations) instead of silently passing.
func (a *Auditor) Audit(ctx context.Context) *domain.LedgerIntegrityReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := a.run(ctx)
	a.publish(report)
	return report
}

func (a *Auditor) run(ctx context.Context) *domain.LedgerIntegrityReport {
	records, err := a.store.Records(ctx)
	if err != nil {
		return a.failClosed(fmt.Sprintf("ledger scan failed: %v", err), 0)
	}

	key, err := a.keys.Get(ctx, SigningKeyName)
	if err != nil {
		return a.failClosed(fmt.Sprintf("signing key unavailable: %v", err), len(records))
	}
	signer := crypto.NewSigner([]byte(key), a.logger)

	report := &domain.LedgerIntegrityReport{
		IntegrityScore: 100,
		RecordsChecked: len(records),
		CheckedAt:      a.clock(),
	}

	for i, record := range records {
		if ctx.Err() != nil {
			return a.failClosed(fmt.Sprintf("audit cancelled mid-scan: %v", ctx.Err()), len(records))
		}

		expected, err := ComputeRecordHash(record.ID, record.SenderID, record.ReceiverID,
			record.Amount, record.Currency, record.Timestamp.UnixMilli(),
			record.Type, record.Note, record.PreviousTransactionHash, []byte(key))
		if err != nil {
			return a.failClosed(fmt.Sprintf("hash recompute failed: %v", err), len(records))
		}
		if expected != record.Hash {
			report.CorruptedTransactions = append(report.CorruptedTransactions, record.ID)
			report.IntegrityScore -= 10
			a.logger.Warn("Corrupted ledger record",
				slog.String("transaction_id", record.ID),
				slog.Uint64("sequence", record.SequenceNumber))
		}

		if record.Signature != "" {
			if ok, _ := signer.Verify([]byte(record.Hash), record.Signature); !ok {
				report.InvalidSignatures = append(report.InvalidSignatures, record.ID)
				report.IntegrityScore -= 15
			}
		}

		if i > 0 && record.PreviousTransactionHash != records[i-1].Hash {
			// A broken link invalidates everything downstream; stop the walk.
			report.BrokenChain = true
			report.IntegrityScore -= 25
			a.logger.Error("Hash chain broken",
				slog.String("transaction_id", record.ID),
				slog.Uint64("sequence", record.SequenceNumber))
			break
		}

		if report.IntegrityScore >= haltThreshold {
			report.LastValidTransaction = record.ID
		}
	}

	if a.requireHardwareBacked {
		report.IntegrityScore -= a.hardwareProbeDeductions(ctx)
	}

	report.IntegrityScore = max(0, min(100, report.IntegrityScore))
	report.IsIntact = report.IntegrityScore >= intactThreshold && !report.BrokenChain
	report.RecommendedAction = recommendedActionFor(report.IntegrityScore)

	return report
}

// hardwareProbeDeductions runs the hardware-backed storage round trip and
// the named-key presence probe, 20 points each on failure.
func (a *Auditor) hardwareProbeDeductions(ctx context.Context) int {
	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	deduction := 0

	if err := probeKeyStore(probeCtx, a.keys, "ledger_integrity_probe", true); err != nil {
		a.logger.Error("Hardware storage probe failed", slog.String("error", err.Error()))
		deduction += 20
	}

	for _, name := range []string{MasterKeyName, SessionKeyName, SigningKeyName} {
		if _, err := a.keys.Get(probeCtx, name); err != nil {
			a.logger.Error("Required key missing", slog.String("key", name))
			deduction += 20
			break
		}
	}

	return deduction
}

func (a *Auditor) failClosed(reason string, checked int) *domain.LedgerIntegrityReport {
	a.logger.Error("Integrity audit failed closed", slog.String("reason", reason))

	return &domain.LedgerIntegrityReport{
		IsIntact:          false,
		BrokenChain:       false,
		IntegrityScore:    0,
		RecommendedAction: domain.ActionHaltOperations,
		RecordsChecked:    checked,
		CheckedAt:         a.clock(),
	}
}

func (a *Auditor) publish(report *domain.LedgerIntegrityReport) {
	if a.alerts == nil {
		return
	}

	severity := "info"
	if !report.IsIntact {
		severity = "critical"
	}

	a.alerts.Publish(domain.AlertEvent{
		ID:       uuid.New().String(),
		Type:     "ledger_integrity_report",
		Severity: severity,
		Details: map[string]any{
			"is_intact":          report.IsIntact,
			"integrity_score":    report.IntegrityScore,
			"broken_chain":       report.BrokenChain,
			"corrupted":          len(report.CorruptedTransactions),
			"invalid_signatures": len(report.InvalidSignatures),
			"recommended_action": string(report.RecommendedAction),
			"records_checked":    report.RecordsChecked,
		},
		Timestamp: report.CheckedAt,
	})
}

func recommendedActionFor(score int) domain.RecommendedAction {
	switch {
	case score < restoreThreshold:
		return domain.ActionRestoreBackup
	case score < haltThreshold:
		return domain.ActionHaltOperations
	case score < investigateThreshold:
		return domain.ActionInvestigate
	default:
		return domain.ActionContinue
	}
}
