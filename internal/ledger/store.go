// Package ledger owns the append path and the ledger lifecycle state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/repository"
	"log/slog"
	"sync"
	"time"
)

// Store wraps the record repository with the explicit Unlocked/Locked state.
// Every validation call reads the state; once locked, appends fail closed
// until an administrative unlock.
type Store struct {
	repo   repository.LedgerRepository
	mu     sync.RWMutex
	state  domain.LockState
	clock  func() time.Time
	logger *slog.Logger
}

func NewStore(repo repository.LedgerRepository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:   repo,
		clock:  time.Now,
		logger: logger,
	}
}

func (s *Store) Append(ctx context.Context, record *domain.TransactionRecord) error {
	s.mu.RLock()
	locked := s.state.Locked
	reason := s.state.Reason
	s.mu.RUnlock()

	if locked {
		return fmt.Errorf("%w: %s", repository.ErrLedgerLocked, reason)
	}
	return s.repo.Append(ctx, record)
}

// LastHash returns the hash of the most recently appended record, or the
// genesis sentinel for an empty ledger.
func (s *Store) LastHash(ctx context.Context) (string, error) {
	last, err := s.repo.Last(ctx)
	if errors.Is(err, repository.ErrEmptyLedger) {
		return domain.GenesisHash, nil
	}
	if err != nil {
		return "", err
	}
	return last.Hash, nil
}

func (s *Store) Records(ctx context.Context) ([]*domain.TransactionRecord, error) {
	return s.repo.List(ctx)
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Store) LastSequence(ctx context.Context) (uint64, error) {
	return s.repo.LastSequence(ctx)
}

// Lock transitions the ledger to locked. Locking is idempotent; the first
// reason wins.
func (s *Store) Lock(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Locked {
		return
	}
	s.state = domain.LockState{Locked: true, Reason: reason, Since: s.clock()}
	s.logger.Error("Ledger locked", slog.String("reason", reason))
}

// Unlock clears the lock. This is an administrative action and is never
// called by the engine itself.
func (s *Store) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = domain.LockState{}
	s.logger.Warn("Ledger unlocked by administrative action")
}

func (s *Store) State() domain.LockState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) IsLocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Locked
}
