package memory

import (
	"context"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/repository"
	"sync"
)

type LedgerRepository struct {
	mu       sync.RWMutex
	records  []*domain.TransactionRecord
	byID     map[string]*domain.TransactionRecord
	sequence uint64
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		byID: make(map[string]*domain.TransactionRecord),
	}
}

func (r *LedgerRepository) Append(ctx context.Context, record *domain.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[record.ID]; exists {
		return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, record.ID)
	}

	r.sequence++
	record.SequenceNumber = r.sequence
	r.records = append(r.records, record)
	r.byID[record.ID] = record

	return nil
}

func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.byID[id]
	if !exists {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	return record, nil
}

func (r *LedgerRepository) List(ctx context.Context) ([]*domain.TransactionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.TransactionRecord, len(r.records))
	copy(result, r.records)
	return result, nil
}

func (r *LedgerRepository) Last(ctx context.Context) (*domain.TransactionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.records) == 0 {
		return nil, repository.ErrEmptyLedger
	}
	return r.records[len(r.records)-1], nil
}

func (r *LedgerRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

func (r *LedgerRepository) LastSequence(ctx context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sequence, nil
}
