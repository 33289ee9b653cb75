package engine

import (
	"context"
	"fmt"
	"ledger_guard/internal/domain"
	"ledger_guard/internal/ledger"
	"ledger_guard/internal/repository"
	"ledger_guard/pkg/crypto"
	"ledger_guard/pkg/merkle"
	"log/slog"
)

const defaultMerkleWindow = 16

// hashEnvelope is the canonical subset of fields bound by the record hash.
// Timestamps hash as unix milliseconds so the digest survives any storage
// serialization.
type hashEnvelope struct {
	ID                      string  `json:"id"`
	SenderID                string  `json:"senderId"`
	ReceiverID              string  `json:"receiverId"`
	Amount                  float64 `json:"amount"`
	Currency                string  `json:"currency"`
	Timestamp               int64   `json:"timestamp"`
	Type                    string  `json:"type"`
	Note                    string  `json:"note"`
	PreviousTransactionHash string  `json:"previousTransactionHash"`
}

// ChainLinker computes a candidate's hash, links it to the previous record,
// signs the hash, and builds a Merkle inclusion proof over the trailing
// batch window.
type ChainLinker struct {
	store        *ledger.Store
	keys         repository.KeyStore
	merkleWindow int
	logger       *slog.Logger
}

func NewChainLinker(store *ledger.Store, keys repository.KeyStore, logger *slog.Logger) *ChainLinker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainLinker{
		store:        store,
		keys:         keys,
		merkleWindow: defaultMerkleWindow,
		logger:       logger,
	}
}

// Link builds the chained record for an accepted candidate. The signing key
// must exist; its absence is a hard failure, not a validation error.
func (l *ChainLinker) Link(ctx context.Context, c *domain.TransactionCandidate) (*domain.TransactionRecord, error) {
	key, err := l.keys.Get(ctx, SigningKeyName)
	if err != nil {
		return nil, fmt.Errorf("signing key unavailable: %w", err)
	}

	previousHash, err := l.store.LastHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("previous hash lookup failed: %w", err)
	}

	hash, err := ComputeRecordHash(c.ID, c.SenderID, c.ReceiverID, c.Amount, c.Currency,
		c.Timestamp.UnixMilli(), c.Type, c.Note, previousHash, []byte(key))
	if err != nil {
		return nil, err
	}

	signer := crypto.NewSigner([]byte(key), l.logger)
	signature := signer.Sign([]byte(hash))

	proof, err := l.buildProof(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("merkle proof failed: %w", err)
	}

	return &domain.TransactionRecord{
		ID:                      c.ID,
		SenderID:                c.SenderID,
		ReceiverID:              c.ReceiverID,
		Amount:                  c.Amount,
		Currency:                c.Currency,
		Type:                    c.Type,
		Note:                    c.Note,
		Timestamp:               c.Timestamp,
		Hash:                    hash,
		PreviousTransactionHash: previousHash,
		Signature:               signature,
		MerkleProof:             proof,
		Security:                c.Security,
	}, nil
}

// buildProof constructs a Merkle tree over the trailing window of record
// hashes plus the candidate hash, and proves the candidate's inclusion.
func (l *ChainLinker) buildProof(ctx context.Context, candidateHash string) (domain.MerkleProof, error) {
	records, err := l.store.Records(ctx)
	if err != nil {
		return domain.MerkleProof{}, err
	}

	start := 0
	if len(records) > l.merkleWindow-1 {
		start = len(records) - (l.merkleWindow - 1)
	}

	var hashes []string
	for _, record := range records[start:] {
		hashes = append(hashes, record.Hash)
	}
	hashes = append(hashes, candidateHash)

	tree, err := merkle.NewTree(hashes)
	if err != nil {
		return domain.MerkleProof{}, err
	}
	proof, err := tree.Prove(candidateHash)
	if err != nil {
		return domain.MerkleProof{}, err
	}

	out := domain.MerkleProof{
		Root:     proof.Root,
		LeafHash: proof.LeafHash,
	}
	for _, step := range proof.Path {
		out.Path = append(out.Path, domain.MerkleStep{Side: step.Side, Hash: step.Hash})
	}
	return out, nil
}

// ComputeRecordHash is shared by the linker at creation time and the auditor
// at verification time; both sides must canonicalize identically.
func ComputeRecordHash(id, senderID, receiverID string, amount float64, currency string,
	timestampMilli int64, txType domain.TransactionType, note, previousHash string, key []byte) (string, error) {
	return crypto.HashKeyed(hashEnvelope{
		ID:                      id,
		SenderID:                senderID,
		ReceiverID:              receiverID,
		Amount:                  amount,
		Currency:                currency,
		Timestamp:               timestampMilli,
		Type:                    string(txType),
		Note:                    note,
		PreviousTransactionHash: previousHash,
	}, key)
}
