package domain

import "time"

type RecommendedAction string

const (
	ActionContinue       RecommendedAction = "continue"
	ActionInvestigate    RecommendedAction = "investigate"
	ActionHaltOperations RecommendedAction = "halt_operations"
	ActionRestoreBackup  RecommendedAction = "restore_backup"
)

// LedgerIntegrityReport is recomputed on every audit; it is never persisted.
type LedgerIntegrityReport struct {
	IsIntact              bool              `json:"is_intact"`
	CorruptedTransactions []string          `json:"corrupted_transactions,omitempty"`
	InvalidSignatures     []string          `json:"invalid_signatures,omitempty"`
	BrokenChain           bool              `json:"broken_chain"`
	LastValidTransaction  string            `json:"last_valid_transaction,omitempty"`
	IntegrityScore        int               `json:"integrity_score"`
	RecommendedAction     RecommendedAction `json:"recommended_action"`
	RecordsChecked        int               `json:"records_checked"`
	CheckedAt             time.Time         `json:"checked_at"`
}

// LockState is the explicit ledger lifecycle state. Once locked, every
// validation fails closed until an administrative unlock.
type LockState struct {
	Locked bool      `json:"locked"`
	Reason string    `json:"reason,omitempty"`
	Since  time.Time `json:"since,omitempty"`
}

// AlertEvent is delivered to the audit/alert sink for every validation
// outcome and every integrity report.
type AlertEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
