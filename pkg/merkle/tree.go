// Package merkle builds Merkle trees over transaction record hashes and
// produces inclusion proofs for individual records.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	leafPrefix = "ledger:leaf:v1"
	nodePrefix = "ledger:node:v1"
)

type Tree struct {
	recordHashes []string
	levels       [][]string
	root         string
}

// NewTree constructs a tree over the given record hashes (hex strings). The
// leaf layer re-hashes every record hash under a domain prefix so interior
// nodes can never be confused with leaves.
func NewTree(recordHashes []string) (*Tree, error) {
	if len(recordHashes) == 0 {
		return nil, fmt.Errorf("merkle: no leaves")
	}

	leaves := make([]string, len(recordHashes))
	for i, h := range recordHashes {
		leaves[i] = leafHash(h)
	}

	t := &Tree{recordHashes: recordHashes}
	level := leaves
	for len(level) > 1 {
		t.levels = append(t.levels, level)
		level = nextLevel(level)
	}
	t.levels = append(t.levels, level)
	t.root = level[0]

	return t, nil
}

func (t *Tree) Root() string {
	return t.root
}

func nextLevel(hashes []string) []string {
	count := len(hashes)
	if count%2 != 0 {
		// Duplicate the last hash to pair an odd leaf.
		hashes = append(hashes, hashes[count-1])
		count++
	}

	level := make([]string, count/2)
	for i := 0; i < count; i += 2 {
		level[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return level
}

func leafHash(recordHash string) string {
	data := append([]byte(leafPrefix+"\x00"), hexToBytes(recordHash)...)
	return sha256Hex(data)
}

func nodeHash(left, right string) string {
	data := append([]byte(nodePrefix+"\x00"), hexToBytes(left)...)
	data = append(data, hexToBytes(right)...)
	return sha256Hex(data)
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		// Non-hex input still participates in the tree deterministically.
		return []byte(s)
	}
	return b
}
