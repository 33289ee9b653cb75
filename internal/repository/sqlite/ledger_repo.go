package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/repository"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// LedgerRepository is the durable backend. Records are append-only; the
// sequence counter lives in its own row and is advanced inside the same
// transaction as the insert, so a restart resumes the sequence without gaps.
type LedgerRepository struct {
	db *sql.DB
}

var _ repository.LedgerRepository = (*LedgerRepository)(nil)

func Open(path string) (*LedgerRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	r := &LedgerRepository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *LedgerRepository) Close() error {
	return r.db.Close()
}

func (r *LedgerRepository) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS ledger_records (
		sequence_number INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		amount REAL NOT NULL,
		currency TEXT NOT NULL,
		type TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		timestamp_ms INTEGER NOT NULL,
		hash TEXT NOT NULL,
		previous_hash TEXT NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		fraud_risk_level TEXT NOT NULL DEFAULT 'low',
		fraud_flags JSON,
		merkle_proof JSON,
		audit_trail JSON,
		security_metadata JSON
	);
	CREATE TABLE IF NOT EXISTS ledger_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);`
	_, err := r.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

func (r *LedgerRepository) Append(ctx context.Context, record *domain.TransactionRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_sequence (id, value) VALUES (1, 0)`); err != nil {
		return fmt.Errorf("init sequence: %w", err)
	}

	var sequence uint64
	if err := tx.QueryRowContext(ctx,
		`UPDATE ledger_sequence SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&sequence); err != nil {
		return fmt.Errorf("advance sequence: %w", err)
	}

	flags, _ := json.Marshal(record.FraudFlags)
	proof, _ := json.Marshal(record.MerkleProof)
	trail, _ := json.Marshal(record.AuditTrail)
	security, _ := json.Marshal(record.Security)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_records (
			sequence_number, id, sender_id, receiver_id, amount, currency, type,
			note, timestamp_ms, hash, previous_hash, signature,
			fraud_risk_level, fraud_flags, merkle_proof, audit_trail, security_metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sequence, record.ID, record.SenderID, record.ReceiverID, record.Amount,
		record.Currency, string(record.Type), record.Note,
		record.Timestamp.UnixMilli(), record.Hash, record.PreviousTransactionHash,
		record.Signature, string(record.FraudRiskLevel),
		string(flags), string(proof), string(trail), string(security))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, record.ID)
		}
		return fmt.Errorf("insert %s: %w", record.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	record.SequenceNumber = sequence
	return nil
}

const recordColumns = `sequence_number, id, sender_id, receiver_id, amount, currency, type,
	note, timestamp_ms, hash, previous_hash, signature,
	fraud_risk_level, fraud_flags, merkle_proof, audit_trail, security_metadata`

func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM ledger_records WHERE id = ?`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	return record, err
}

func (r *LedgerRepository) List(ctx context.Context) ([]*domain.TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM ledger_records ORDER BY sequence_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *LedgerRepository) Last(ctx context.Context) (*domain.TransactionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM ledger_records ORDER BY sequence_number DESC LIMIT 1`)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrEmptyLedger
	}
	return record, err
}

func (r *LedgerRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_records`).Scan(&count)
	return count, err
}

func (r *LedgerRepository) LastSequence(ctx context.Context) (uint64, error) {
	var sequence uint64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(value), 0) FROM ledger_sequence`).Scan(&sequence)
	return sequence, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.TransactionRecord, error) {
	var (
		record      domain.TransactionRecord
		txType      string
		riskLevel   string
		timestampMs int64
		flags       sql.NullString
		proof       sql.NullString
		trail       sql.NullString
		security    sql.NullString
	)

	err := row.Scan(
		&record.SequenceNumber, &record.ID, &record.SenderID, &record.ReceiverID,
		&record.Amount, &record.Currency, &txType, &record.Note, &timestampMs,
		&record.Hash, &record.PreviousTransactionHash, &record.Signature,
		&riskLevel, &flags, &proof, &trail, &security)
	if err != nil {
		return nil, err
	}

	record.Type = domain.TransactionType(txType)
	record.FraudRiskLevel = domain.RiskLevel(riskLevel)
	record.Timestamp = time.UnixMilli(timestampMs)

	if flags.Valid && flags.String != "" {
		_ = json.Unmarshal([]byte(flags.String), &record.FraudFlags)
	}
	if proof.Valid && proof.String != "" {
		_ = json.Unmarshal([]byte(proof.String), &record.MerkleProof)
	}
	if trail.Valid && trail.String != "" {
		_ = json.Unmarshal([]byte(trail.String), &record.AuditTrail)
	}
	if security.Valid && security.String != "" {
		_ = json.Unmarshal([]byte(security.String), &record.Security)
	}

	return &record, nil
}
