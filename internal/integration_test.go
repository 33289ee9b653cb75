package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ledger_guard/internal/api"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/engine"
	"ledger_guard/internal/ledger"
	"ledger_guard/internal/repository/memory"
	"ledger_guard/internal/service"
	"ledger_guard/pkg/metrics"
)

type testEnv struct {
	repo    *memory.LedgerRepository
	store   *ledger.Store
	keys    *memory.KeyStore
	engine  *engine.Engine
	auditor *engine.Auditor
	alerts  *service.AlertService
	mux     *http.ServeMux
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	repo := memory.NewLedgerRepository()
	store := ledger.NewStore(repo, nil)

	keys := memory.NewKeyStore(true)
	for _, name := range []string{engine.MasterKeyName, engine.SessionKeyName, engine.SigningKeyName} {
		if err := keys.Set(ctx, name, "integration-"+name, false); err != nil {
			t.Fatalf("seed key %s: %v", name, err)
		}
	}

	balances := memory.NewBalanceOracle(100000)
	pending := memory.NewPendingIndex()
	risk := memory.NewRiskProvider()
	backup := memory.NewBackupSystem()
	alerts := service.NewAlertService(nil, 1, nil)
	t.Cleanup(func() { alerts.Shutdown(context.Background()) })

	index := ledger.NewRecentIndex(repo, pending)
	validator := engine.NewACIDValidator(balances, index, keys, backup, false, nil)
	scorer := engine.NewFraudScorer(index, risk, keys, nil)
	linker := engine.NewChainLinker(store, keys, nil)
	eng := engine.NewEngine(store, validator, scorer, linker, keys, alerts, 10000, nil)
	auditor := engine.NewAuditor(store, keys, alerts, false, nil)

	collector := metrics.NewCollector(nil)
	handler := api.NewAPIHandler(eng, auditor, store, alerts, collector, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &testEnv{
		repo:    repo,
		store:   store,
		keys:    keys,
		engine:  eng,
		auditor: auditor,
		alerts:  alerts,
		mux:     mux,
	}
}

func (env *testEnv) submit(t *testing.T, sender, receiver string, amount float64) api.SubmitTransactionResponse {
	t.Helper()

	body, _ := json.Marshal(api.SubmitTransactionRequest{
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     amount,
		Currency:   "SAR",
		Type:       domain.TypeSend,
		CreatedBy:  "integration-test",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var response api.SubmitTransactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return response
}

func TestLedgerLifecycle_SubmitAuditTamperReaudit(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	env.submit(t, "alice", "bob", 100)
	second := env.submit(t, "bob", "carol", 250)
	env.submit(t, "carol", "dave", 500)

	// The three records must form an unbroken chain from the genesis
	// sentinel.
	records, err := env.repo.List(ctx)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].PreviousTransactionHash != domain.GenesisHash {
		t.Errorf("expected genesis link, got %s", records[0].PreviousTransactionHash)
	}
	for i := 1; i < len(records); i++ {
		if records[i].PreviousTransactionHash != records[i-1].Hash {
			t.Errorf("record %d not linked to its predecessor", i)
		}
		if records[i].SequenceNumber != records[i-1].SequenceNumber+1 {
			t.Errorf("record %d has a sequence gap", i)
		}
	}

	clean := env.auditor.Audit(ctx)
	if !clean.IsIntact {
		t.Fatalf("expected intact ledger, got %+v", clean)
	}
	if clean.IntegrityScore < 80 {
		t.Errorf("expected score >= 80, got %d", clean.IntegrityScore)
	}
	if clean.RecommendedAction != domain.ActionContinue {
		t.Errorf("expected continue, got %s", clean.RecommendedAction)
	}

	// Tamper with the second record the way a direct storage edit would.
	tampered, err := env.repo.GetByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	tampered.Amount += 10000

	dirty := env.auditor.Audit(ctx)
	if len(dirty.CorruptedTransactions) != 1 || dirty.CorruptedTransactions[0] != second.ID {
		t.Errorf("expected corrupted [%s], got %v", second.ID, dirty.CorruptedTransactions)
	}
	if dirty.IntegrityScore > clean.IntegrityScore-10 {
		t.Errorf("expected score to drop by at least 10, got %d -> %d",
			clean.IntegrityScore, dirty.IntegrityScore)
	}
}

func TestAPI_IntegrityAndStatusEndpoints(t *testing.T) {
	env := setup(t)

	env.submit(t, "alice", "bob", 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/integrity", nil)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var report domain.LedgerIntegrityReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.IsIntact || report.RecordsChecked != 1 {
		t.Errorf("expected intact report over 1 record, got %+v", report)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ledger/status", nil)
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status api.LedgerStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Locked {
		t.Error("expected unlocked ledger")
	}
	if status.RecordCount != 1 || status.LastSequence != 1 {
		t.Errorf("expected 1 record at sequence 1, got %+v", status)
	}
}

func TestAPI_RejectsMalformedSubmissions(t *testing.T) {
	env := setup(t)

	cases := []struct {
		name string
		body api.SubmitTransactionRequest
	}{
		{"zero amount", api.SubmitTransactionRequest{SenderID: "a", ReceiverID: "b", Currency: "SAR", Type: domain.TypeSend}},
		{"missing sender", api.SubmitTransactionRequest{ReceiverID: "b", Amount: 10, Currency: "SAR", Type: domain.TypeSend}},
		{"bad currency", api.SubmitTransactionRequest{SenderID: "a", ReceiverID: "b", Amount: 10, Currency: "RIYAL", Type: domain.TypeSend}},
		{"bad type", api.SubmitTransactionRequest{SenderID: "a", ReceiverID: "b", Amount: 10, Currency: "SAR", Type: "gift"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, _ := json.Marshal(tc.body)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(body))
			rec := httptest.NewRecorder()
			env.mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestAPI_GetTransactionRoundTrip(t *testing.T) {
	env := setup(t)

	submitted := env.submit(t, "alice", "bob", 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?id="+submitted.ID, nil)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var record domain.TransactionRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.ID != submitted.ID || record.Hash != submitted.Hash {
		t.Errorf("expected submitted record back, got %+v", record)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transactions?id=unknown", nil)
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAPI_LockedLedgerRejectsSubmissions(t *testing.T) {
	env := setup(t)
	env.store.Lock("manual incident response")

	body, _ := json.Marshal(api.SubmitTransactionRequest{
		SenderID:   "alice",
		ReceiverID: "bob",
		Amount:     100,
		Currency:   "SAR",
		Type:       domain.TypeSend,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var response api.SubmitTransactionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Valid {
		t.Error("expected invalid result")
	}
	if len(response.FraudFlags) != 1 || response.FraudFlags[0] != "ledger_locked" {
		t.Errorf("expected ledger_locked flag, got %v", response.FraudFlags)
	}
}
