// Package resulthash produces the deterministic verification token for a job
// result payload. Two logically-equal payloads hash identically regardless of
// field insertion order; tokens are compared byte-for-byte, never fuzzily.
package resulthash

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Token canonicalizes the value and digests it with SHA-256, returning a
// 0x-prefixed hex string. Canonical form is the JSON encoding after a
// round-trip through generic containers: encoding/json emits map keys in
// lexicographic order, which keeps the encoding stable across processes.
func Token(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hexutil.Encode(sum[:]), nil
}

// Canonicalize returns the canonical JSON encoding of v.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result payload: %w", err)
	}

	// Round-trip through generic containers so struct field order and raw
	// message key order cannot leak into the digest.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to canonicalize result payload: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode result payload: %w", err)
	}
	return canonical, nil
}

// Matches reports whether a claimed token equals the expected one. Exact
// equality only.
func Matches(expected, claimed string) bool {
	return expected == claimed
}
