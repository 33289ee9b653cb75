package memory

import (
	"context"
	"errors"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/repository"
	"testing"
	"time"
)

func newRecord(id string) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:         id,
		SenderID:   "alice",
		ReceiverID: "bob",
		Amount:     100,
		Currency:   "SAR",
		Type:       domain.TypeSend,
		Timestamp:  time.Now(),
		Hash:       "hash-" + id,
	}
}

func TestLedgerRepository_AppendAssignsGaplessSequence(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository()

	for i := 1; i <= 5; i++ {
		record := newRecord(fmt.Sprintf("tx-%d", i))
		if err := repo.Append(ctx, record); err != nil {
			t.Fatalf("append %d: unexpected error: %v", i, err)
		}
		if record.SequenceNumber != uint64(i) {
			t.Errorf("append %d: expected sequence %d, got %d", i, i, record.SequenceNumber)
		}
	}

	last, err := repo.LastSequence(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last != 5 {
		t.Errorf("expected last sequence 5, got %d", last)
	}
}

func TestLedgerRepository_AppendRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository()

	if err := repo.Append(ctx, newRecord("tx-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := repo.Append(ctx, newRecord("tx-1"))

	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if count, _ := repo.Count(ctx); count != 1 {
		t.Errorf("expected 1 record after duplicate rejection, got %d", count)
	}
}

func TestLedgerRepository_GetByIDNotFound(t *testing.T) {
	repo := NewLedgerRepository()

	_, err := repo.GetByID(context.Background(), "missing")

	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerRepository_LastOnEmptyLedger(t *testing.T) {
	repo := NewLedgerRepository()

	_, err := repo.Last(context.Background())

	if !errors.Is(err, repository.ErrEmptyLedger) {
		t.Errorf("expected ErrEmptyLedger, got %v", err)
	}
}

func TestLedgerRepository_ListPreservesAppendOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository()

	ids := []string{"tx-a", "tx-b", "tx-c"}
	for _, id := range ids {
		if err := repo.Append(ctx, newRecord(id)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	records, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != len(ids) {
		t.Fatalf("expected %d records, got %d", len(ids), len(records))
	}
	for i, id := range ids {
		if records[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, records[i].ID)
		}
	}
}

func TestKeyStore_RoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	keys := NewKeyStore(false)

	if err := keys.Set(ctx, "k1", "secret-value", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := keys.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secret-value" {
		t.Errorf("expected secret-value, got %s", got)
	}

	if err := keys.Delete(ctx, "k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := keys.Get(ctx, "k1"); !errors.Is(err, repository.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestKeyStore_StrongProtectionRequired(t *testing.T) {
	ctx := context.Background()
	keys := NewKeyStore(false)

	err := keys.Set(ctx, "k1", "secret", true)
	if err == nil {
		t.Fatal("expected error when strong protection is unavailable")
	}

	keys.SetStrongProtection(true)
	if err := keys.Set(ctx, "k1", "secret", true); err != nil {
		t.Errorf("unexpected error once strong protection is available: %v", err)
	}
}

func TestPendingIndex_RecentMatchingFiltersByWindowAndPredicate(t *testing.T) {
	ctx := context.Background()
	index := NewPendingIndex()

	fresh := newRecord("tx-fresh")
	fresh.Timestamp = time.Now().Add(-10 * time.Second)
	stale := newRecord("tx-stale")
	stale.Timestamp = time.Now().Add(-5 * time.Minute)
	other := newRecord("tx-other")
	other.SenderID = "carol"
	other.Timestamp = time.Now().Add(-10 * time.Second)

	index.Track(fresh)
	index.Track(stale)
	index.Track(other)

	matches, err := index.RecentMatching(ctx, "alice", time.Minute, func(r *domain.TransactionRecord) bool {
		return r.Amount == 100
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "tx-fresh" {
		t.Errorf("expected only tx-fresh, got %v", matches)
	}
}
