package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// HashKeyed returns the SHA-256 hex digest of the RFC 8785 canonical JSON
// form of v concatenated with the signing key. The canonical form makes the
// digest independent of field order and serialization quirks, so the same
// record hashes identically at creation time and at audit time.
func HashKeyed(v any, key []byte) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash marshal failed: %w", err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalization failed: %w", err)
	}

	h := sha256.New()
	h.Write(canonical)
	h.Write(key)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the SHA-256 hash of raw bytes and returns a hex string.
func HashBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
