package seal

import (
	"errors"
	"fmt"
)

// IntegrityKind categorizes integrity failures. Both are fatal to the
// record's trustworthiness and must reach an operator.
type IntegrityKind string

const (
	KindNotSealed      IntegrityKind = "not_sealed"
	KindTamperDetected IntegrityKind = "tamper_detected"
)

// IntegrityViolation reports a failed verification.
type IntegrityViolation struct {
	Kind     IntegrityKind
	RecordID string

	// StoredPrefix and ComputedPrefix are hash prefixes for diagnostics.
	StoredPrefix   string
	ComputedPrefix string

	Message string
}

// Error implements the error interface.
func (v *IntegrityViolation) Error() string {
	return fmt.Sprintf("integrity violation (%s): %s", v.Kind, v.Summary())
}

// Summary is the human-readable verdict.
func (v *IntegrityViolation) Summary() string {
	switch v.Kind {
	case KindTamperDetected:
		return fmt.Sprintf("TAMPER DETECTED: stored %s... != computed %s...", v.StoredPrefix, v.ComputedPrefix)
	case KindNotSealed:
		return "Record is not sealed; integrity cannot be verified."
	default:
		return v.Message
	}
}

// IsIntegrityViolation reports whether err is an IntegrityViolation of kind.
// An empty kind matches any IntegrityViolation.
func IsIntegrityViolation(err error, kind IntegrityKind) bool {
	var v *IntegrityViolation
	if errors.As(err, &v) {
		return kind == "" || v.Kind == kind
	}
	return false
}
