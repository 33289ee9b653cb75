package ledger

import (
	"context"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/repository"
	"time"
)

// RecentIndex serves the pending/recent transaction index contract from the
// ledger itself: recent-history matching scans appended records, while
// pending queue counts are delegated to the external pending collaborator.
type RecentIndex struct {
	repo    repository.LedgerRepository
	pending repository.PendingIndex
	clock   func() time.Time
}

var _ repository.PendingIndex = (*RecentIndex)(nil)

func NewRecentIndex(repo repository.LedgerRepository, pending repository.PendingIndex) *RecentIndex {
	return &RecentIndex{
		repo:    repo,
		pending: pending,
		clock:   time.Now,
	}
}

// WithClock replaces the time source, used by tests to pin the window.
func (ix *RecentIndex) WithClock(clock func() time.Time) *RecentIndex {
	ix.clock = clock
	return ix
}

func (ix *RecentIndex) PendingCount(ctx context.Context, userID string) (int, error) {
	if ix.pending == nil {
		return 0, nil
	}
	return ix.pending.PendingCount(ctx, userID)
}

func (ix *RecentIndex) RecentMatching(ctx context.Context, userID string, window time.Duration, match func(*domain.TransactionRecord) bool) ([]*domain.TransactionRecord, error) {
	records, err := ix.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := ix.clock().Add(-window)
	var result []*domain.TransactionRecord
	for _, record := range records {
		if record.SenderID == userID && record.Timestamp.After(cutoff) && match(record) {
			result = append(result, record)
		}
	}
	return result, nil
}
