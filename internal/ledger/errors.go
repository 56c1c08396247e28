package ledger

import (
	"errors"
	"fmt"
)

// ErrChainConflict is returned by a Store when an insert does not extend the
// current tip.
var ErrChainConflict = errors.New("ledger: prev_hash does not match current tip")

// ErrInvalidEvent is returned for events missing an actor or action.
var ErrInvalidEvent = errors.New("ledger: invalid event")

// InvariantKind names the gate that rejected an event.
type InvariantKind string

const (
	KindNonHumanActor InvariantKind = "non_human_decision_actor"
	KindPersonalData  InvariantKind = "personal_data_detected"
	KindRemoteWrite   InvariantKind = "remote_write_rejected"
)

// InvariantViolation is returned when a gate rejects an event. The event is
// never persisted.
type InvariantViolation struct {
	Kind   InvariantKind
	Detail string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("ledger invariant violation (%s): %s", v.Kind, v.Detail)
}

// IsInvariantViolation reports whether err is an InvariantViolation of kind.
// An empty kind matches any InvariantViolation.
func IsInvariantViolation(err error, kind InvariantKind) bool {
	var v *InvariantViolation
	if errors.As(err, &v) {
		return kind == "" || v.Kind == kind
	}
	return false
}
