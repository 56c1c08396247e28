package registry

import (
	"errors"
	"fmt"
)

// Infrastructure failures. Callers should retry after confirming storage
// health, not resubmit a modified request.
var (
	ErrNotFound    = errors.New("submission not found")
	ErrDuplicate   = errors.New("submission already registered")
	ErrUnavailable = errors.New("registry storage unavailable")
	ErrCorrupt     = errors.New("registry storage is malformed")
	ErrInvalid     = errors.New("invalid registry request")
)

// Error wraps a registry failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, Err: err}
}
