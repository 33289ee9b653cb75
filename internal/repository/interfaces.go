package repository

import (
	"context"
	"errors"
	"ledger_guard/internal/domain"
	"time"
)

// LedgerRepository is the append-only record store. Append assigns the next
// sequence number and persists it atomically with the record, so restarts
// resume without gaps or duplicates.
type LedgerRepository interface {
	Append(ctx context.Context, record *domain.TransactionRecord) error
	GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error)
	List(ctx context.Context) ([]*domain.TransactionRecord, error)
	Last(ctx context.Context) (*domain.TransactionRecord, error)
	Count(ctx context.Context) (int, error)
	LastSequence(ctx context.Context) (uint64, error)
}

// KeyStore is the secure key storage collaborator. The transaction signing
// key and the integrity probe keys live here.
type KeyStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, secret string, requireStrongProtection bool) error
	Delete(ctx context.Context, name string) error
	StrongProtectionAvailable() bool
}

// BalanceOracle answers balance lookups for the atomicity check. The
// in-memory implementation is for tests and demos only.
type BalanceOracle interface {
	BalanceOf(ctx context.Context, userID string) (float64, error)
}

// PendingIndex exposes the sender's pending queue depth and a recent-history
// window used by the isolation check and the frequency pattern.
type PendingIndex interface {
	PendingCount(ctx context.Context, userID string) (int, error)
	RecentMatching(ctx context.Context, userID string, window time.Duration, match func(*domain.TransactionRecord) bool) ([]*domain.TransactionRecord, error)
}

// RiskProvider reports user and device risk from the device/session trust
// collaborator.
type RiskProvider interface {
	UserRiskLevel(ctx context.Context, userID string) (domain.RiskLevel, error)
	DeviceRiskLevel(ctx context.Context, deviceID string) (domain.RiskLevel, error)
}

// BackupProbe reports whether the backup system is operational.
type BackupProbe interface {
	Operational(ctx context.Context) error
}

// AlertSink receives validation outcomes and integrity reports. Publishing
// is fire-and-forget; sink failures never override the primary result.
type AlertSink interface {
	Publish(event domain.AlertEvent)
}

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrEmptyLedger  = errors.New("ledger is empty")
	ErrKeyNotFound  = errors.New("key not found")
	ErrLedgerLocked = errors.New("ledger is locked")
)
