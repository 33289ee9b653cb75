package memory

import (
	"context"
	"fmt"
	"ledger_guard/internal/domain"
	"sync"
	"time"
)

// BalanceOracle answers balance lookups from a fixed table. The real oracle
// is an external collaborator; this stands in for tests and demos.
type BalanceOracle struct {
	mu             sync.RWMutex
	balances       map[string]float64
	defaultBalance float64
}

func NewBalanceOracle(defaultBalance float64) *BalanceOracle {
	return &BalanceOracle{
		balances:       make(map[string]float64),
		defaultBalance: defaultBalance,
	}
}

func (o *BalanceOracle) SetBalance(userID string, balance float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balances[userID] = balance
}

func (o *BalanceOracle) BalanceOf(ctx context.Context, userID string) (float64, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if balance, exists := o.balances[userID]; exists {
		return balance, nil
	}
	return o.defaultBalance, nil
}

// PendingIndex tracks pending queue depths per user. Recent-history matching
// over appended records is served by ledger.RecentIndex; this fake only
// covers the pending side and an explicitly tracked history for unit tests.
type PendingIndex struct {
	mu      sync.RWMutex
	pending map[string]int
	history []*domain.TransactionRecord
}

func NewPendingIndex() *PendingIndex {
	return &PendingIndex{
		pending: make(map[string]int),
	}
}

func (p *PendingIndex) SetPendingCount(userID string, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[userID] = count
}

func (p *PendingIndex) Track(record *domain.TransactionRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, record)
}

func (p *PendingIndex) PendingCount(ctx context.Context, userID string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pending[userID], nil
}

func (p *PendingIndex) RecentMatching(ctx context.Context, userID string, window time.Duration, match func(*domain.TransactionRecord) bool) ([]*domain.TransactionRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	var result []*domain.TransactionRecord
	for _, record := range p.history {
		if record.SenderID == userID && record.Timestamp.After(cutoff) && match(record) {
			result = append(result, record)
		}
	}
	return result, nil
}

// RiskProvider serves static user and device risk levels.
type RiskProvider struct {
	mu      sync.RWMutex
	users   map[string]domain.RiskLevel
	devices map[string]domain.RiskLevel
}

func NewRiskProvider() *RiskProvider {
	return &RiskProvider{
		users:   make(map[string]domain.RiskLevel),
		devices: make(map[string]domain.RiskLevel),
	}
}

func (r *RiskProvider) SetUserRisk(userID string, level domain.RiskLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = level
}

func (r *RiskProvider) SetDeviceRisk(deviceID string, level domain.RiskLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[deviceID] = level
}

func (r *RiskProvider) UserRiskLevel(ctx context.Context, userID string) (domain.RiskLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if level, exists := r.users[userID]; exists {
		return level, nil
	}
	return domain.RiskLow, nil
}

func (r *RiskProvider) DeviceRiskLevel(ctx context.Context, deviceID string) (domain.RiskLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if level, exists := r.devices[deviceID]; exists {
		return level, nil
	}
	return domain.RiskLow, nil
}

// BackupSystem models the backup health probe.
type BackupSystem struct {
	mu      sync.RWMutex
	healthy bool
}

func NewBackupSystem() *BackupSystem {
	return &BackupSystem{healthy: true}
}

func (b *BackupSystem) SetHealthy(healthy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy = healthy
}

func (b *BackupSystem) Operational(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.healthy {
		return fmt.Errorf("backup system is not operational")
	}
	return nil
}
