package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// CanonicalVersion tags every structural hash. Bump it whenever the
// canonicalization rules change.
const CanonicalVersion = "windi-canon/v1"

// Sum returns the hex SHA-256 of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SumString returns the hex SHA-256 of s.
func SumString(s string) string {
	return Sum([]byte(s))
}

// Digest returns the hex SHA-256 of the canonical JSON of v.
func Digest(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	return Sum(data), nil
}

// StructuralHash fingerprints payload as
// SHA-256(canonical({"canonical_version": CanonicalVersion, "payload": payload})).
func StructuralHash(payload any) (string, error) {
	p, err := Canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("structural hash: %w", err)
	}
	return Digest(Object{
		"canonical_version": String(CanonicalVersion),
		"payload":           p,
	})
}

// MustStructuralHash is like StructuralHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStructuralHash(payload any) string {
	h, err := StructuralHash(payload)
	if err != nil {
		panic(err)
	}
	return h
}

// FieldOrderHash hashes the pipe-joined expected field sequence for level.
// Unknown levels hash the empty sequence.
func FieldOrderHash(level string) string {
	return SumString(strings.Join(ExpectedFields(level), "|"))
}

// Prefix shortens a hash for diagnostics.
func Prefix(hash string, n int) string {
	if len(hash) <= n {
		return hash
	}
	return hash[:n]
}
