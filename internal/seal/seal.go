// Package seal adds and checks tamper evidence on audit records.
//
// Seal is a one-way pure transform: it returns a new sealed record and never
// touches its input. Verify recomputes the integrity hash over every field
// except the hash itself; it never mutates the record and never reports an
// unsealed record as valid.
package seal

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/clock"
)

// DomainIntegrity separates integrity hashes from other hashes over the
// same canonical bytes.
const DomainIntegrity = "windi/integrity/v1"

// ErrAlreadySealed is returned when sealing a record that carries an
// integrity hash.
var ErrAlreadySealed = errors.New("record is already sealed")

// VerifiedMessage is the message of a successful verification.
const VerifiedMessage = "Integrity verified."

// diagPrefix is how much of each hash a tamper report carries.
const diagPrefix = 16

// IntegrityHash computes the integrity hash of r, ignoring r.IntegrityHash.
func IntegrityHash(r AuditRecord) (string, error) {
	data, err := canon.Marshal(r.Value())
	if err != nil {
		return "", fmt.Errorf("integrity hash: %w", err)
	}
	buf := make([]byte, 0, len(DomainIntegrity)+1+len(data))
	buf = append(buf, DomainIntegrity...)
	buf = append(buf, 0x00)
	buf = append(buf, data...)
	return canon.Sum(buf), nil
}

// Seal stamps sealed_at and the integrity hash onto a copy of r.
func Seal(r AuditRecord, at time.Time) (AuditRecord, error) {
	if r.Sealed() {
		return AuditRecord{}, ErrAlreadySealed
	}
	out := r.Clone()
	out.SealedAt = clock.Format(at)
	h, err := IntegrityHash(out)
	if err != nil {
		return AuditRecord{}, err
	}
	out.IntegrityHash = h
	return out, nil
}

// Verify checks r's integrity hash. It returns an *IntegrityViolation of kind
// not_sealed or tamper_detected on failure.
func Verify(r AuditRecord) error {
	if !r.Sealed() {
		return &IntegrityViolation{
			Kind:     KindNotSealed,
			RecordID: r.RecordID,
			Message:  "record has no integrity hash",
		}
	}
	computed, err := IntegrityHash(r)
	if err != nil {
		return err
	}
	if computed != r.IntegrityHash {
		return &IntegrityViolation{
			Kind:           KindTamperDetected,
			RecordID:       r.RecordID,
			StoredPrefix:   canon.Prefix(r.IntegrityHash, diagPrefix),
			ComputedPrefix: canon.Prefix(computed, diagPrefix),
			Message:        "integrity hash does not match record contents",
		}
	}
	return nil
}

// Result is the caller-facing verification outcome.
type Result struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// Check wraps Verify into a Result.
func Check(r AuditRecord) Result {
	if err := Verify(r); err != nil {
		var iv *IntegrityViolation
		if errors.As(err, &iv) {
			return Result{Valid: false, Message: iv.Summary()}
		}
		return Result{Valid: false, Message: err.Error()}
	}
	return Result{Valid: true, Message: VerifiedMessage}
}
