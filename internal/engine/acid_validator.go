package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/repository"
	"log/slog"
	"time"
)

const (
	// SigningKeyName identifies the transaction signing key in the key store.
	SigningKeyName = "transaction_signing_key"

	// Keys expected to be present by the integrity auditor's key probe.
	MasterKeyName  = "master_encryption_key"
	SessionKeyName = "session_signing_key"

	durabilityProbeKey = "ledger_durability_probe"

	maxCandidateBytes   = 10 * 1024
	maxPendingPerSender = 5
	duplicateWindow     = 60 * time.Second
	maxFutureSkew       = 60 * time.Second
	maxStaleness        = 24 * time.Hour
)

type CheckResult struct {
	Name   string   `json:"name"`
	Passed bool     `json:"passed"`
	Errors []string `json:"errors,omitempty"`
}

// ACIDResult carries the four independent check outcomes. Violations counts
// failed checks, each worth 25 points of the combined security score.
type ACIDResult struct {
	Atomicity   CheckResult `json:"atomicity"`
	Consistency CheckResult `json:"consistency"`
	Isolation   CheckResult `json:"isolation"`
	Durability  CheckResult `json:"durability"`
	Errors      []string    `json:"errors,omitempty"`
	Violations  int         `json:"violations"`
	Compliant   bool        `json:"compliant"`
}

type ACIDValidator struct {
	balances              repository.BalanceOracle
	index                 repository.PendingIndex
	keys                  repository.KeyStore
	backup                repository.BackupProbe
	requireHardwareBacked bool
	probeTimeout          time.Duration
	clock                 func() time.Time
	logger                *slog.Logger
}

func NewACIDValidator(
	balances repository.BalanceOracle,
	index repository.PendingIndex,
	keys repository.KeyStore,
	backup repository.BackupProbe,
	requireHardwareBacked bool,
	logger *slog.Logger,
) *ACIDValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ACIDValidator{
		balances:              balances,
		index:                 index,
		keys:                  keys,
		backup:                backup,
		requireHardwareBacked: requireHardwareBacked,
		probeTimeout:          5 * time.Second,
		clock:                 time.Now,
		logger:                logger,
	}
}

// Validate runs all four checks independently and accumulates every error;
// a failing check never short-circuits the rest.
func (v *ACIDValidator) Validate(ctx context.Context, c *domain.TransactionCandidate) ACIDResult {
	result := ACIDResult{
		Atomicity:   v.checkAtomicity(ctx, c),
		Consistency: v.checkConsistency(c),
		Isolation:   v.checkIsolation(ctx, c),
		Durability:  v.checkDurability(ctx, c),
	}

	for _, check := range []CheckResult{result.Atomicity, result.Consistency, result.Isolation, result.Durability} {
		if !check.Passed {
			result.Violations++
			result.Errors = append(result.Errors, check.Errors...)
		}
	}
	result.Compliant = result.Violations == 0

	return result
}

func (v *ACIDValidator) checkAtomicity(ctx context.Context, c *domain.TransactionCandidate) CheckResult {
	check := CheckResult{Name: "atomicity"}

	if c.ID == "" {
		check.Errors = append(check.Errors, "transaction id is required")
	}
	if c.SenderID == "" {
		check.Errors = append(check.Errors, "sender id is required")
	}
	if c.ReceiverID == "" {
		check.Errors = append(check.Errors, "receiver id is required")
	}
	if c.Currency == "" {
		check.Errors = append(check.Errors, "currency is required")
	}
	if c.Amount <= 0 {
		check.Errors = append(check.Errors, "amount must be positive")
	}

	if c.SenderID != "" && c.SenderID != "system" && c.Type != domain.TypeReceive {
		balance, err := v.balances.BalanceOf(ctx, c.SenderID)
		if err != nil {
			check.Errors = append(check.Errors, fmt.Sprintf("balance lookup failed: %v", err))
		} else if balance < c.Amount {
			check.Errors = append(check.Errors, "insufficient balance for transaction")
		}
	}

	check.Passed = len(check.Errors) == 0
	return check
}

func (v *ACIDValidator) checkConsistency(c *domain.TransactionCandidate) CheckResult {
	check := CheckResult{Name: "consistency"}

	if c.SenderID == c.ReceiverID {
		check.Errors = append(check.Errors, "sender and receiver must differ")
	}
	if !domain.IsSupportedCurrency(c.Currency) {
		check.Errors = append(check.Errors, fmt.Sprintf("unsupported currency: %s", c.Currency))
	}
	if !domain.IsValidType(c.Type) {
		check.Errors = append(check.Errors, fmt.Sprintf("invalid transaction type: %s", c.Type))
	}

	now := v.clock()
	if c.Timestamp.After(now.Add(maxFutureSkew)) {
		check.Errors = append(check.Errors, "timestamp is too far in the future")
	}
	if c.Timestamp.Before(now.Add(-maxStaleness)) {
		check.Errors = append(check.Errors, "transaction is older than 24 hours")
	}

	check.Passed = len(check.Errors) == 0
	return check
}

func (v *ACIDValidator) checkIsolation(ctx context.Context, c *domain.TransactionCandidate) CheckResult {
	check := CheckResult{Name: "isolation"}

	pending, err := v.index.PendingCount(ctx, c.SenderID)
	if err != nil {
		check.Errors = append(check.Errors, fmt.Sprintf("pending queue lookup failed: %v", err))
	} else if pending > maxPendingPerSender {
		check.Errors = append(check.Errors, fmt.Sprintf("sender has %d pending transactions (max %d)", pending, maxPendingPerSender))
	}

	duplicates, err := v.index.RecentMatching(ctx, c.SenderID, duplicateWindow, func(r *domain.TransactionRecord) bool {
		return r.Amount == c.Amount && r.ReceiverID == c.ReceiverID && r.Currency == c.Currency
	})
	if err != nil {
		check.Errors = append(check.Errors, fmt.Sprintf("duplicate lookup failed: %v", err))
	} else if len(duplicates) > 0 {
		check.Errors = append(check.Errors, "possible double-spend: identical transaction within the last 60 seconds")
	}

	check.Passed = len(check.Errors) == 0
	return check
}

func (v *ACIDValidator) checkDurability(ctx context.Context, c *domain.TransactionCandidate) CheckResult {
	check := CheckResult{Name: "durability"}

	probeCtx, cancel := context.WithTimeout(ctx, v.probeTimeout)
	defer cancel()

	if err := probeKeyStore(probeCtx, v.keys, durabilityProbeKey, false); err != nil {
		check.Errors = append(check.Errors, fmt.Sprintf("storage probe failed: %v", err))
	}

	if err := v.backup.Operational(probeCtx); err != nil {
		check.Errors = append(check.Errors, fmt.Sprintf("backup system probe failed: %v", err))
	}

	serialized, err := json.Marshal(c)
	if err != nil {
		check.Errors = append(check.Errors, fmt.Sprintf("candidate serialization failed: %v", err))
	} else if len(serialized) > maxCandidateBytes {
		check.Errors = append(check.Errors, fmt.Sprintf("transaction payload exceeds %d bytes", maxCandidateBytes))
	}

	if v.requireHardwareBacked && !v.keys.StrongProtectionAvailable() {
		check.Errors = append(check.Errors, "hardware-backed key storage is required but unavailable")
	}

	check.Passed = len(check.Errors) == 0
	return check
}

// probeKeyStore performs a write/read/delete round trip against the key
// store and fails when the value does not survive the trip. The auditor
// probes with strong protection required so enclave loss fails the probe;
// the durability check accepts any working storage.
func probeKeyStore(ctx context.Context, keys repository.KeyStore, name string, requireStrongProtection bool) error {
	probeValue := fmt.Sprintf("probe-%d", time.Now().UnixNano())

	if err := keys.Set(ctx, name, probeValue, requireStrongProtection); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	got, err := keys.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if got != probeValue {
		return fmt.Errorf("round trip mismatch")
	}
	if err := keys.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
