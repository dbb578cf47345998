package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEmission separates emission identities from any other hash.
// The version suffix allows the algorithm to change later.
const DomainEmission = "derive/emission/v1"

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EmissionID computes the content address of a recorded emission.
// The same run, source, sequence number and canonical value always yield the
// same ID, which makes store writes idempotent across replays.
//
// value must already be canonical JSON (see Canonical).
func EmissionID(runID, source string, seq int64, value []byte) (string, error) {
	obj := map[string]any{
		"run_id": runID,
		"source": source,
		"seq":    seq,
		"value":  string(value),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EmissionID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainEmission, canonical), nil
}

// MustEmissionID is like EmissionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEmissionID(runID, source string, seq int64, value []byte) string {
	id, err := EmissionID(runID, source, seq, value)
	if err != nil {
		panic(err)
	}
	return id
}
