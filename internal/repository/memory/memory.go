package memory

import (
	"ledger_guard/internal/repository"
)

var (
	_ repository.LedgerRepository = (*LedgerRepository)(nil)
	_ repository.KeyStore         = (*KeyStore)(nil)
	_ repository.BalanceOracle    = (*BalanceOracle)(nil)
	_ repository.PendingIndex     = (*PendingIndex)(nil)
	_ repository.RiskProvider     = (*RiskProvider)(nil)
	_ repository.BackupProbe      = (*BackupSystem)(nil)
)
