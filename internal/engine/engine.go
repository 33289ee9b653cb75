// Package engine implements transaction validation, fraud scoring, hash
// chaining, and the continuous ledger integrity audit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/ledger"
	"ledger_guard/internal/repository"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	validityThreshold        = 50
	acidViolationPenalty     = 25
	highValuePenalty         = 30
	defaultHighValueAmount   = 10000.0
	highValueProtectionError = "High-value transactions require hardware-backed key protection"
)

// Engine ties the ACID validator, fraud scorer, and chain linker together.
// All dependencies are injected at construction; there is no shared global
// state anywhere in the pipeline.
type Engine struct {
	store              *ledger.Store
	validator          *ACIDValidator
	scorer             *FraudScorer
	linker             *ChainLinker
	keys               repository.KeyStore
	alerts             repository.AlertSink
	highValueThreshold float64
	clock              func() time.Time
	logger             *slog.Logger
}

func NewEngine(
	store *ledger.Store,
	validator *ACIDValidator,
	scorer *FraudScorer,
	linker *ChainLinker,
	keys repository.KeyStore,
	alerts repository.AlertSink,
	highValueThreshold float64,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if highValueThreshold <= 0 {
		highValueThreshold = defaultHighValueAmount
	}
	return &Engine{
		store:              store,
		validator:          validator,
		scorer:             scorer,
		linker:             linker,
		keys:               keys,
		alerts:             alerts,
		highValueThreshold: highValueThreshold,
		clock:              time.Now,
		logger:             logger,
	}
}

// ValidateAndAppend runs the full pipeline for one candidate. Validation
// failures are reported in the result, not as errors; an error return means
// infrastructure failed (key store, storage).
//
// The pending-count and duplicate snapshots race against concurrent
// submissions; appends are expected to be serialized by a single writer.
func (e *Engine) ValidateAndAppend(ctx context.Context, c *domain.TransactionCandidate) (*domain.ValidationResult, error) {
	if state := e.store.State(); state.Locked {
		return e.lockedResult(c, state), nil
	}

	acid := e.validator.Validate(ctx, c)
	assessment := e.scorer.Score(ctx, c)

	result := &domain.ValidationResult{
		Errors:     append([]string{}, acid.Errors...),
		RiskScore:  assessment.RiskScore,
		RiskLevel:  assessment.RiskLevel,
		FraudFlags: assessment.Flags,
	}
	// An incomplete risk assessment rejects the candidate; a provider
	// outage must not read as a clean score.
	result.Errors = append(result.Errors, assessment.Errors...)

	score := 100 - acidViolationPenalty*acid.Violations - assessment.RiskScore

	if c.Amount > e.highValueThreshold && !e.keys.StrongProtectionAvailable() {
		score -= highValuePenalty
		result.Errors = append(result.Errors, highValueProtectionError)
		result.RequiresAdditionalAuth = true
	}

	result.SecurityScore = max(0, score)
	result.Valid = len(result.Errors) == 0 && result.SecurityScore >= validityThreshold

	if result.Valid {
		record, err := e.appendRecord(ctx, c, result)
		if err != nil {
			if errors.Is(err, repository.ErrLedgerLocked) {
				// The monitor locked the ledger between the state read and
				// the append; fail closed.
				return e.lockedResult(c, e.store.State()), nil
			}
			e.publishOutcome(c, result, fmt.Sprintf("append failed: %v", err))
			return nil, err
		}
		result.Record = record
	}

	e.publishOutcome(c, result, "")
	e.log(ctx, c, result)

	return result, nil
}

func (e *Engine) GetTransaction(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	return e.store.GetByID(ctx, id)
}

func (e *Engine) appendRecord(ctx context.Context, c *domain.TransactionCandidate, result *domain.ValidationResult) (*domain.TransactionRecord, error) {
	record, err := e.linker.Link(ctx, c)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	record.FraudRiskLevel = result.RiskLevel
	record.FraudFlags = result.FraudFlags
	record.AuditTrail = domain.AuditTrail{
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.Timestamp,
		ValidatedAt:    now,
		FinalizedAt:    now,
		IntegrityScore: result.SecurityScore,
	}

	if err := e.store.Append(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (e *Engine) lockedResult(c *domain.TransactionCandidate, state domain.LockState) *domain.ValidationResult {
	result := &domain.ValidationResult{
		Valid:         false,
		Errors:        []string{fmt.Sprintf("ledger is locked: %s", state.Reason)},
		SecurityScore: 0,
		RiskLevel:     domain.RiskCritical,
		FraudFlags:    []string{"ledger_locked"},
	}
	e.publishOutcome(c, result, "")
	return result
}

func (e *Engine) publishOutcome(c *domain.TransactionCandidate, result *domain.ValidationResult, detail string) {
	if e.alerts == nil {
		return
	}

	eventType := "transaction_accepted"
	severity := "info"
	if !result.Valid {
		eventType = "transaction_rejected"
		severity = "warning"
	}
	if result.RiskLevel == domain.RiskCritical {
		severity = "critical"
	}

	details := map[string]any{
		"transaction_id": c.ID,
		"sender_id":      c.SenderID,
		"amount":         c.Amount,
		"currency":       c.Currency,
		"security_score": result.SecurityScore,
		"risk_score":     result.RiskScore,
		"risk_level":     string(result.RiskLevel),
		"fraud_flags":    result.FraudFlags,
		"errors":         result.Errors,
	}
	if detail != "" {
		details["detail"] = detail
	}

	e.alerts.Publish(domain.AlertEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Severity:  severity,
		Details:   details,
		Timestamp: e.clock(),
	})
}

func (e *Engine) log(ctx context.Context, c *domain.TransactionCandidate, result *domain.ValidationResult) {
	if result.Valid {
		e.logger.InfoContext(ctx, "Transaction accepted",
			slog.String("transaction_id", c.ID),
			slog.Uint64("sequence", result.Record.SequenceNumber),
			slog.Int("security_score", result.SecurityScore),
			slog.String("risk_level", string(result.RiskLevel)))
		return
	}

	e.logger.WarnContext(ctx, "Transaction rejected",
		slog.String("transaction_id", c.ID),
		slog.Int("security_score", result.SecurityScore),
		slog.Int("risk_score", result.RiskScore),
		slog.Any("errors", result.Errors))
}
