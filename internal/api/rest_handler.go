package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/engine"
	"ledger_guard/internal/ledger"
	"ledger_guard/internal/repository"
	"ledger_guard/internal/service"
	"ledger_guard/pkg/metrics"
	"log/slog"
	"net/http"
	"time"
)

type APIHandler struct {
	engine         *engine.Engine
	auditor        *engine.Auditor
	store          *ledger.Store
	alerts         *service.AlertService
	metrics        *metrics.Collector
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	eng *engine.Engine,
	auditor *engine.Auditor,
	store *ledger.Store,
	alerts *service.AlertService,
	collector *metrics.Collector,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		engine:         eng,
		auditor:        auditor,
		store:          store,
		alerts:         alerts,
		metrics:        collector,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type SubmitTransactionRequest struct {
	SenderID   string                  `json:"sender_id"`
	ReceiverID string                  `json:"receiver_id"`
	Amount     float64                 `json:"amount"`
	Currency   string                  `json:"currency"`
	Type       domain.TransactionType  `json:"type"`
	Note       string                  `json:"note,omitempty"`
	CreatedBy  string                  `json:"created_by,omitempty"`
	Security   domain.SecurityMetadata `json:"security_metadata"`
}

type SubmitTransactionResponse struct {
	ID                     string           `json:"id"`
	Valid                  bool             `json:"valid"`
	Errors                 []string         `json:"errors,omitempty"`
	SecurityScore          int              `json:"security_score"`
	RiskScore              int              `json:"risk_score"`
	RiskLevel              domain.RiskLevel `json:"risk_level"`
	FraudFlags             []string         `json:"fraud_flags,omitempty"`
	RequiresAdditionalAuth bool             `json:"requires_additional_auth"`
	SequenceNumber         uint64           `json:"sequence_number,omitempty"`
	Hash                   string           `json:"hash,omitempty"`
}

type LedgerStatusResponse struct {
	Locked       bool      `json:"locked"`
	LockReason   string    `json:"lock_reason,omitempty"`
	LockedSince  time.Time `json:"locked_since,omitempty"`
	RecordCount  int       `json:"record_count"`
	LastSequence uint64    `json:"last_sequence"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *APIHandler) SubmitTransactionHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req SubmitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if err := h.validateSubmitRequest(req); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	candidate := domain.NewCandidate(req.Type, req.SenderID, req.ReceiverID, req.Amount, req.Currency).
		WithNote(req.Note).
		WithSecurity(req.Security)
	candidate.CreatedBy = req.CreatedBy

	result, err := h.engine.ValidateAndAppend(ctx, candidate)
	duration := time.Since(startTime)

	if err != nil {
		h.logger.Error("Transaction processing failed",
			slog.String("error", err.Error()),
			slog.String("transaction_id", candidate.ID))
		h.sendError(w, fmt.Sprintf("Transaction failed: %v", err), http.StatusInternalServerError, "PROCESSING_ERROR")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordValidation(result, duration)
	}

	response := SubmitTransactionResponse{
		ID:                     candidate.ID,
		Valid:                  result.Valid,
		Errors:                 result.Errors,
		SecurityScore:          result.SecurityScore,
		RiskScore:              result.RiskScore,
		RiskLevel:              result.RiskLevel,
		FraudFlags:             result.FraudFlags,
		RequiresAdditionalAuth: result.RequiresAdditionalAuth,
	}

	status := http.StatusCreated
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	} else {
		response.SequenceNumber = result.Record.SequenceNumber
		response.Hash = result.Record.Hash
	}

	h.sendJSON(w, response, status)
}

func (h *APIHandler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	transactionID := r.URL.Query().Get("id")
	if transactionID == "" {
		h.sendError(w, "Transaction ID is required", http.StatusBadRequest, "MISSING_ID")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	record, err := h.engine.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.sendError(w, "Transaction not found", http.StatusNotFound, "NOT_FOUND")
		} else {
			h.sendError(w, "Failed to get transaction", http.StatusInternalServerError, "SERVER_ERROR")
		}
		return
	}

	h.sendJSON(w, record, http.StatusOK)
}

func (h *APIHandler) ListLedgerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	records, err := h.store.Records(ctx)
	if err != nil {
		h.sendError(w, "Failed to list ledger", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	h.sendJSON(w, records, http.StatusOK)
}

func (h *APIHandler) IntegrityHandler(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	report := h.auditor.Audit(ctx)
	if h.metrics != nil {
		h.metrics.RecordAudit(report, time.Since(startTime))
	}

	h.sendJSON(w, report, http.StatusOK)
}

func (h *APIHandler) LedgerStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	count, err := h.store.Count(ctx)
	if err != nil {
		h.sendError(w, "Failed to read ledger", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}
	sequence, err := h.store.LastSequence(ctx)
	if err != nil {
		h.sendError(w, "Failed to read ledger", http.StatusInternalServerError, "SERVER_ERROR")
		return
	}

	state := h.store.State()
	h.sendJSON(w, LedgerStatusResponse{
		Locked:       state.Locked,
		LockReason:   state.Reason,
		LockedSince:  state.Since,
		RecordCount:  count,
		LastSequence: sequence,
	}, http.StatusOK)
}

func (h *APIHandler) RecentAlertsHandler(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.alerts.Recent(), http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) validateSubmitRequest(req SubmitTransactionRequest) error {
	if req.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if req.SenderID == "" || req.ReceiverID == "" {
		return fmt.Errorf("sender_id and receiver_id are required")
	}
	if req.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if len(req.Currency) != 3 {
		return fmt.Errorf("currency must be 3 letters")
	}
	if !domain.IsValidType(req.Type) {
		return fmt.Errorf("unknown transaction type: %s", req.Type)
	}
	return nil
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	errorResponse := ErrorResponse{
		Error: message,
		Code:  code,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/transactions", h.SubmitTransactionHandler)
	mux.HandleFunc("GET /api/v1/transactions", h.GetTransactionHandler)
	mux.HandleFunc("GET /api/v1/ledger", h.ListLedgerHandler)
	mux.HandleFunc("GET /api/v1/ledger/integrity", h.IntegrityHandler)
	mux.HandleFunc("GET /api/v1/ledger/status", h.LedgerStatusHandler)
	mux.HandleFunc("GET /api/v1/alerts", h.RecentAlertsHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}
