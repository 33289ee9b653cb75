package engine

import (
	"context"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/ledger"
	"ledger_guard/internal/repository/memory"
	"strings"
	"sync"
	"testing"
	"time"
)

type capturingSink struct {
	mu     sync.Mutex
	events []domain.AlertEvent
}

func (s *capturingSink) Publish(event domain.AlertEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *capturingSink) Events() []domain.AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AlertEvent, len(s.events))
	copy(out, s.events)
	return out
}

type engineFixture struct {
	engine   *Engine
	store    *ledger.Store
	repo     *memory.LedgerRepository
	keys     *memory.KeyStore
	balances *memory.BalanceOracle
	pending  *memory.PendingIndex
	risk     *memory.RiskProvider
	backup   *memory.BackupSystem
	sink     *capturingSink
	now      time.Time
}

// newEngineFixture pins every clock to a fixed noon so risk patterns that
// read the wall clock behave identically regardless of when tests run.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	today := time.Now()
	now := time.Date(today.Year(), today.Month(), today.Day(), 12, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }

	repo := memory.NewLedgerRepository()
	store := ledger.NewStore(repo, nil)
	keys := memory.NewKeyStore(true)
	mustSeedKeys(t, keys)

	balances := memory.NewBalanceOracle(100000)
	pending := memory.NewPendingIndex()
	risk := memory.NewRiskProvider()
	backup := memory.NewBackupSystem()
	sink := &capturingSink{}

	index := ledger.NewRecentIndex(repo, pending).WithClock(clock)
	validator := NewACIDValidator(balances, index, keys, backup, false, nil)
	validator.clock = clock
	scorer := NewFraudScorer(index, risk, keys, nil)
	linker := NewChainLinker(store, keys, nil)
	eng := NewEngine(store, validator, scorer, linker, keys, sink, 10000, nil)
	eng.clock = clock

	return &engineFixture{
		engine:   eng,
		store:    store,
		repo:     repo,
		keys:     keys,
		balances: balances,
		pending:  pending,
		risk:     risk,
		backup:   backup,
		sink:     sink,
		now:      now,
	}
}

func (f *engineFixture) send(sender, receiver string, amount float64) *domain.TransactionCandidate {
	c := domain.NewCandidate(domain.TypeSend, sender, receiver, amount, "SAR")
	c.Timestamp = f.now
	return c
}

func TestEngine_AcceptsValidTransactionAndChainsIt(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	first, err := f.engine.ValidateAndAppend(ctx, f.send("alice", "bob", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Valid {
		t.Fatalf("expected valid result, got errors %v", first.Errors)
	}
	if first.Record.PreviousTransactionHash != domain.GenesisHash {
		t.Errorf("expected genesis previous hash, got %s", first.Record.PreviousTransactionHash)
	}
	if first.Record.SequenceNumber != 1 {
		t.Errorf("expected sequence 1, got %d", first.Record.SequenceNumber)
	}
	if first.SecurityScore != 100 {
		t.Errorf("expected score 100, got %d", first.SecurityScore)
	}

	second, err := f.engine.ValidateAndAppend(ctx, f.send("carol", "dave", 200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Valid {
		t.Fatalf("expected valid result, got errors %v", second.Errors)
	}
	if second.Record.PreviousTransactionHash != first.Record.Hash {
		t.Errorf("expected second record to link to the first, got %s", second.Record.PreviousTransactionHash)
	}
	if second.Record.SequenceNumber != 2 {
		t.Errorf("expected sequence 2, got %d", second.Record.SequenceNumber)
	}
	if second.Record.MerkleProof.Root == "" || len(second.Record.MerkleProof.Path) == 0 {
		t.Errorf("expected a merkle proof on the record, got %+v", second.Record.MerkleProof)
	}
}

func TestEngine_RejectedTransactionIsNotAppended(t *testing.T) {
	f := newEngineFixture(t)
	f.balances.SetBalance("alice", 10)

	result, err := f.engine.ValidateAndAppend(context.Background(), f.send("alice", "bob", 100))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected rejection for insufficient balance")
	}
	if result.Record != nil {
		t.Error("expected no record on a rejected transaction")
	}
	if count, _ := f.store.Count(context.Background()); count != 0 {
		t.Errorf("expected empty ledger, got %d records", count)
	}
	if result.SecurityScore != 75 {
		t.Errorf("expected one violation to cost 25 points, got score %d", result.SecurityScore)
	}
}

func TestEngine_LockedLedgerShortCircuits(t *testing.T) {
	f := newEngineFixture(t)
	f.store.Lock("integrity audit failed: score=0")

	result, err := f.engine.ValidateAndAppend(context.Background(), f.send("alice", "bob", 100))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected rejection on a locked ledger")
	}
	if result.SecurityScore != 0 {
		t.Errorf("expected score 0, got %d", result.SecurityScore)
	}
	if len(result.FraudFlags) != 1 || result.FraudFlags[0] != "ledger_locked" {
		t.Errorf("expected ledger_locked flag, got %v", result.FraudFlags)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "ledger is locked") {
		t.Errorf("expected lock error, got %v", result.Errors)
	}
}

func TestEngine_DetectsDoubleSpendAgainstAppendedRecords(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	first, err := f.engine.ValidateAndAppend(ctx, f.send("alice", "bob", 100))
	if err != nil || !first.Valid {
		t.Fatalf("expected first transaction accepted, got err=%v errors=%v", err, first.Errors)
	}

	duplicate := f.send("alice", "bob", 100)
	second, err := f.engine.ValidateAndAppend(ctx, duplicate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.Valid {
		t.Fatal("expected duplicate to be rejected")
	}
	found := false
	for _, e := range second.Errors {
		if strings.Contains(e, "double-spend") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected double-spend error, got %v", second.Errors)
	}
}

func TestEngine_HighValueRequiresHardwareProtection(t *testing.T) {
	f := newEngineFixture(t)
	f.keys.SetStrongProtection(false)

	result, err := f.engine.ValidateAndAppend(context.Background(), f.send("alice", "bob", 12000))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatal("expected rejection")
	}
	if !result.RequiresAdditionalAuth {
		t.Error("expected additional auth requirement")
	}
	found := false
	for _, e := range result.Errors {
		if e == "High-value transactions require hardware-backed key protection" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected hardware protection error, got %v", result.Errors)
	}
}

func TestEngine_HighValueAcceptedWithHardwareProtection(t *testing.T) {
	f := newEngineFixture(t)

	result, err := f.engine.ValidateAndAppend(context.Background(), f.send("alice", "bob", 10001))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Amount patterns still add risk, but the combined score clears the bar.
	if !result.Valid {
		t.Fatalf("expected acceptance, got errors %v score %d", result.Errors, result.SecurityScore)
	}
	if result.SecurityScore != 50 {
		t.Errorf("expected score 50, got %d", result.SecurityScore)
	}
	if result.RiskScore != 50 {
		t.Errorf("expected risk 50, got %d", result.RiskScore)
	}
}

func TestEngine_PublishesOutcomeAlerts(t *testing.T) {
	f := newEngineFixture(t)

	if _, err := f.engine.ValidateAndAppend(context.Background(), f.send("alice", "bob", 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := f.sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != "transaction_accepted" {
		t.Errorf("expected transaction_accepted, got %s", events[0].Type)
	}
}

func TestMonitor_LocksLedgerOnFailedAudit(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		result, err := f.engine.ValidateAndAppend(ctx, f.send("alice", "bob", float64(100+i)))
		if err != nil || !result.Valid {
			t.Fatalf("seed transaction %d: err=%v errors=%v", i, err, result.Errors)
		}
	}

	records, _ := f.repo.List(ctx)
	for i := 0; i < 6; i++ {
		records[i].Amount += 1
	}

	auditor := NewAuditor(f.store, f.keys, nil, false, nil)
	monitor := NewMonitor(auditor, f.store, time.Hour, nil)

	var reported *domain.LedgerIntegrityReport
	monitor.OnReport(func(report *domain.LedgerIntegrityReport, _ time.Duration) {
		reported = report
	})

	monitor.runAudit(ctx)

	if reported == nil {
		t.Fatal("expected report callback to fire")
	}
	if reported.IsIntact {
		t.Fatal("expected failed audit")
	}
	if !f.store.IsLocked() {
		t.Fatal("expected ledger to be locked")
	}
	if !strings.Contains(f.store.State().Reason, "integrity audit failed") {
		t.Errorf("expected lock reason to carry the audit summary, got %s", f.store.State().Reason)
	}

	// Subsequent submissions fail closed until an administrative unlock.
	result, err := f.engine.ValidateAndAppend(ctx, f.send("carol", "dave", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Error("expected rejection on the locked ledger")
	}
}

func TestMonitor_LeavesHealthyLedgerUnlocked(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if _, err := f.engine.ValidateAndAppend(ctx, f.send("alice", "bob", 100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	auditor := NewAuditor(f.store, f.keys, nil, false, nil)
	monitor := NewMonitor(auditor, f.store, time.Hour, nil)
	monitor.runAudit(ctx)

	if f.store.IsLocked() {
		t.Errorf("expected ledger to stay unlocked, reason: %s", f.store.State().Reason)
	}
}

func TestEngine_RejectsWhenRiskProviderUnavailable(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	index := ledger.NewRecentIndex(f.repo, f.pending).WithClock(func() time.Time { return f.now })
	scorer := NewFraudScorer(index, unreachableRiskProvider{}, f.keys, nil)
	eng := NewEngine(f.store, f.engine.validator, scorer, f.engine.linker, f.keys, f.sink, 10000, nil)
	eng.clock = f.engine.clock

	result, err := eng.ValidateAndAppend(ctx, f.send("alice", "bob", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Valid {
		t.Fatal("expected rejection when the risk provider is down")
	}
	if !hasError(result.Errors, "high_risk_user check unavailable") {
		t.Errorf("expected surfaced lookup failure, got %v", result.Errors)
	}
	if result.Record != nil {
		t.Error("expected no record appended")
	}
}
