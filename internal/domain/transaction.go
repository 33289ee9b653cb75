package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type TransactionType string
type RiskLevel string

const (
	TypeSend                  TransactionType = "send"
	TypeReceive               TransactionType = "receive"
	TypeTopup                 TransactionType = "topup"
	TypeBillPayment           TransactionType = "bill_payment"
	TypeBankTransfer          TransactionType = "bank_transfer"
	TypeInternationalTransfer TransactionType = "international_transfer"
	TypeLoanDisbursement      TransactionType = "loan_disbursement"
	TypeLoanPayment           TransactionType = "loan_payment"
	TypeDonate                TransactionType = "donate"

	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// GenesisHash is the previous-hash sentinel carried by the first ledger record.
var GenesisHash = strings.Repeat("0", 64)

var supportedCurrencies = map[string]struct{}{
	"SAR": {}, "USD": {}, "EUR": {}, "GBP": {}, "AED": {},
}

var validTypes = map[TransactionType]struct{}{
	TypeSend: {}, TypeReceive: {}, TypeTopup: {}, TypeBillPayment: {},
	TypeBankTransfer: {}, TypeInternationalTransfer: {},
	TypeLoanDisbursement: {}, TypeLoanPayment: {}, TypeDonate: {},
}

func IsSupportedCurrency(currency string) bool {
	_, ok := supportedCurrencies[currency]
	return ok
}

func IsValidType(t TransactionType) bool {
	_, ok := validTypes[t]
	return ok
}

// SecurityMetadata is supplied by upstream authentication and device-trust
// collaborators and carried opaquely on the record.
type SecurityMetadata struct {
	DeviceFingerprint string   `json:"device_fingerprint,omitempty"`
	NetworkOrigin     string   `json:"network_origin,omitempty"`
	BiometricVerified bool     `json:"biometric_verified"`
	MFAVerified       bool     `json:"mfa_verified"`
	RiskScore         int      `json:"risk_score"`
	AnomalyTags       []string `json:"anomaly_tags,omitempty"`
}

type AuditTrail struct {
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	ValidatedAt    time.Time `json:"validated_at"`
	ApprovedAt     time.Time `json:"approved_at,omitempty"`
	FinalizedAt    time.Time `json:"finalized_at"`
	IntegrityScore int       `json:"integrity_score"`
}

type MerkleStep struct {
	Side string `json:"side"`
	Hash string `json:"hash"`
}

type MerkleProof struct {
	Root     string       `json:"root"`
	LeafHash string       `json:"leaf_hash"`
	Path     []MerkleStep `json:"path"`
}

// TransactionCandidate is a proposed transaction before validation. Only a
// successful validation turns it into a TransactionRecord.
type TransactionCandidate struct {
	ID         string           `json:"id"`
	SenderID   string           `json:"sender_id"`
	ReceiverID string           `json:"receiver_id"`
	Amount     float64          `json:"amount"`
	Currency   string           `json:"currency"`
	Type       TransactionType  `json:"type"`
	Note       string           `json:"note,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	CreatedBy  string           `json:"created_by,omitempty"`
	Security   SecurityMetadata `json:"security_metadata"`
}

// TransactionRecord is immutable once appended to the ledger.
type TransactionRecord struct {
	ID                      string           `json:"id"`
	SenderID                string           `json:"sender_id"`
	ReceiverID              string           `json:"receiver_id"`
	Amount                  float64          `json:"amount"`
	Currency                string           `json:"currency"`
	Type                    TransactionType  `json:"type"`
	Note                    string           `json:"note,omitempty"`
	Timestamp               time.Time        `json:"timestamp"`
	Hash                    string           `json:"hash"`
	PreviousTransactionHash string           `json:"previous_transaction_hash"`
	SequenceNumber          uint64           `json:"sequence_number"`
	Signature               string           `json:"signature,omitempty"`
	FraudRiskLevel          RiskLevel        `json:"fraud_risk_level"`
	FraudFlags              []string         `json:"fraud_flags,omitempty"`
	MerkleProof             MerkleProof      `json:"merkle_proof"`
	AuditTrail              AuditTrail       `json:"audit_trail"`
	Security                SecurityMetadata `json:"security_metadata"`
}

// ValidationResult is the combined outcome of the ACID checks and the fraud
// scorer for one candidate. Record is set only when the candidate was
// accepted and appended.
type ValidationResult struct {
	Valid                  bool               `json:"valid"`
	Errors                 []string           `json:"errors,omitempty"`
	SecurityScore          int                `json:"security_score"`
	RiskScore              int                `json:"risk_score"`
	RiskLevel              RiskLevel          `json:"risk_level"`
	FraudFlags             []string           `json:"fraud_flags,omitempty"`
	RequiresAdditionalAuth bool               `json:"requires_additional_auth"`
	Record                 *TransactionRecord `json:"record,omitempty"`
}

func NewCandidate(t TransactionType, senderID, receiverID string, amount float64, currency string) *TransactionCandidate {
	return &TransactionCandidate{
		ID:         uuid.New().String(),
		Type:       t,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		Currency:   currency,
		Timestamp:  time.Now(),
	}
}

func (c *TransactionCandidate) WithNote(note string) *TransactionCandidate {
	c.Note = note
	return c
}

func (c *TransactionCandidate) WithSecurity(meta SecurityMetadata) *TransactionCandidate {
	c.Security = meta
	return c
}
