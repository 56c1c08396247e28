package policy

import (
	"errors"
	"fmt"
	"strings"
)

// ViolationKind categorizes policy violations. All of them are
// caller-correctable: fix the request and resubmit.
type ViolationKind string

const (
	KindLevelNotAllowed      ViolationKind = "level_not_allowed"
	KindNoDowngrade          ViolationKind = "no_downgrade"
	KindUpgradeNotAllowed    ViolationKind = "upgrade_not_allowed"
	KindMissingRequiredField ViolationKind = "missing_required_field"
	KindInvalidEnumValue     ViolationKind = "invalid_enum_value"
	KindUnknownProfile       ViolationKind = "unknown_profile"
)

// Violation is a policy failure with structured context.
type Violation struct {
	Kind ViolationKind

	// Profile is the profile the request was resolved against.
	Profile string

	// Level is the level involved (requested or resolved).
	Level Level

	// Baseline is the level the request was compared against, if any.
	Baseline Level

	// Field names the offending metadata field.
	Field string

	// Value is the rejected enum value.
	Value string

	// Allowed lists permitted values (levels or enum members).
	Allowed []string

	Message string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "policy violation (%s): %s", v.Kind, v.Message)
	if v.Field != "" {
		fmt.Fprintf(&b, " [field=%s]", v.Field)
	}
	if len(v.Allowed) > 0 {
		fmt.Fprintf(&b, " [allowed=%s]", strings.Join(v.Allowed, ","))
	}
	return b.String()
}

// IsViolation reports whether err is a Violation of the given kind.
// An empty kind matches any Violation.
func IsViolation(err error, kind ViolationKind) bool {
	var v *Violation
	if errors.As(err, &v) {
		return kind == "" || v.Kind == kind
	}
	return false
}

// AsViolation extracts a Violation from err.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	ok := errors.As(err, &v)
	return v, ok
}

func levelStrings(levels []Level) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}
