package engine

import (
	"context"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/repository"
	"log/slog"
	"time"
)

const (
	largeAmountThreshold     = 5000.0
	veryLargeAmountThreshold = 10000.0
	enclaveAmountThreshold   = 1000.0
	frequencyWindow          = time.Hour
	frequencyLimit           = 10
)

// RiskAssessment is the scorer's output: an additive 0-100 score, the
// triggered flags, and the mapped discrete level. Errors lists patterns
// whose collaborator lookup failed; a non-empty list means the score is
// incomplete and the candidate must not pass on it.
type RiskAssessment struct {
	RiskScore int              `json:"risk_score"`
	RiskLevel domain.RiskLevel `json:"risk_level"`
	Flags     []string         `json:"flags,omitempty"`
	Errors    []string         `json:"errors,omitempty"`
}

type riskPattern struct {
	flag   string
	weight int
	detect func(ctx context.Context, c *domain.TransactionCandidate) (bool, error)
}

type FraudScorer struct {
	index    repository.PendingIndex
	risk     repository.RiskProvider
	keys     repository.KeyStore
	patterns []riskPattern
	logger   *slog.Logger
}

func NewFraudScorer(
	index repository.PendingIndex,
	risk repository.RiskProvider,
	keys repository.KeyStore,
	logger *slog.Logger,
) *FraudScorer {
	if logger == nil {
		logger = slog.Default()
	}

	fs := &FraudScorer{
		index:  index,
		risk:   risk,
		keys:   keys,
		logger: logger,
	}
	fs.patterns = []riskPattern{
		{
			flag:   "large_amount",
			weight: 20,
			detect: func(ctx context.Context, c *domain.TransactionCandidate) (bool, error) {
				return c.Amount > largeAmountThreshold, nil
			},
		},
		{
			flag:   "very_large_amount",
			weight: 30,
			detect: func(ctx context.Context, c *domain.TransactionCandidate) (bool, error) {
				return c.Amount > veryLargeAmountThreshold, nil
			},
		},
		{
			flag:   "high_frequency",
			weight: 25,
			detect: fs.detectHighFrequency,
		},
		{
			flag:   "international_transfer",
			weight: 15,
			detect: func(ctx context.Context, c *domain.TransactionCandidate) (bool, error) {
				return c.Type == domain.TypeInternationalTransfer, nil
			},
		},
		{
			flag:   "unusual_time",
			weight: 10,
			detect: func(ctx context.Context, c *domain.TransactionCandidate) (bool, error) {
				hour := c.Timestamp.Hour()
				return hour < 6 || hour > 22, nil
			},
		},
		{
			flag:   "high_risk_user",
			weight: 40,
			detect: fs.detectHighRiskUser,
		},
		{
			flag:   "compromised_device",
			weight: 50,
			detect: fs.detectCompromisedDevice,
		},
		{
			flag:   "no_secure_enclave_protection",
			weight: 25,
			detect: func(ctx context.Context, c *domain.TransactionCandidate) (bool, error) {
				return !fs.keys.StrongProtectionAvailable() && c.Amount > enclaveAmountThreshold, nil
			},
		},
	}

	return fs
}

// Score sums the independent pattern weights and caps the total at 100.
// A pattern whose lookup fails is recorded in Errors instead of quietly
// contributing zero, so an outage cannot make a candidate look safe.
func (fs *FraudScorer) Score(ctx context.Context, c *domain.TransactionCandidate) RiskAssessment {
	var assessment RiskAssessment

	for _, pattern := range fs.patterns {
		detected, err := pattern.detect(ctx, c)
		if err != nil {
			fs.logger.WarnContext(ctx, "Risk pattern check unavailable",
				slog.String("pattern", pattern.flag),
				slog.String("error", err.Error()))
			assessment.Errors = append(assessment.Errors,
				fmt.Sprintf("%s check unavailable: %v", pattern.flag, err))
			continue
		}
		if detected {
			assessment.RiskScore += pattern.weight
			assessment.Flags = append(assessment.Flags, pattern.flag)
		}
	}

	assessment.RiskScore = min(assessment.RiskScore, 100)
	assessment.RiskLevel = RiskLevelFor(assessment.RiskScore)

	return assessment
}

// RiskLevelFor maps a 0-100 risk score to the discrete risk level.
func RiskLevelFor(score int) domain.RiskLevel {
	switch {
	case score >= 80:
		return domain.RiskCritical
	case score >= 50:
		return domain.RiskHigh
	case score >= 25:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

func (fs *FraudScorer) detectHighFrequency(ctx context.Context, c *domain.TransactionCandidate) (bool, error) {
	recent, err := fs.index.RecentMatching(ctx, c.SenderID, frequencyWindow, func(*domain.TransactionRecord) bool {
		return true
	})
	if err != nil {
		return false, fmt.Errorf("frequency lookup for %s: %w", c.SenderID, err)
	}
	return len(recent) > frequencyLimit, nil
}

func (fs *FraudScorer) detectHighRiskUser(ctx context.Context, c *domain.TransactionCandidate) (bool, error) {
	level, err := fs.risk.UserRiskLevel(ctx, c.SenderID)
	if err != nil {
		return false, fmt.Errorf("user risk lookup for %s: %w", c.SenderID, err)
	}
	return level == domain.RiskHigh || level == domain.RiskCritical, nil
}

func (fs *FraudScorer) detectCompromisedDevice(ctx context.Context, c *domain.TransactionCandidate) (bool, error) {
	if c.Security.DeviceFingerprint == "" {
		return false, nil
	}
	level, err := fs.risk.DeviceRiskLevel(ctx, c.Security.DeviceFingerprint)
	if err != nil {
		return false, fmt.Errorf("device risk lookup for %s: %w", c.Security.DeviceFingerprint, err)
	}
	return level == domain.RiskHigh || level == domain.RiskCritical, nil
}
