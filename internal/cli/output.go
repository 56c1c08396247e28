package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/windi/internal/governance"
	"github.com/roach88/windi/internal/ledger"
	"github.com/roach88/windi/internal/policy"
	"github.com/roach88/windi/internal/registry"
	"github.com/roach88/windi/internal/seal"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected request, failed verification or failed scenario
	ExitCommandError = 2 // Command error (invalid flags, unreadable files, storage failures)
)

// Stable error codes in JSON output.
const (
	ErrCodeGeneric            = "E001" // Generic/unknown error
	ErrCodePolicyViolation    = "E002" // Request rejected by the policy engine
	ErrCodeIntegrityViolation = "E003" // Seal verification failed
	ErrCodeInvariantViolation = "E004" // Ledger gate rejected the event
	ErrCodeNotFound           = "E005" // Submission or file not found
	ErrCodeInvalidInput       = "E006" // Malformed flags, profiles or record
	ErrCodeStorage            = "E007" // Database or registry storage failure
	ErrCodeNotConfigured      = "E008" // Control required but not wired
	ErrCodeChainBroken        = "E009" // Ledger or registry chain check failed
	ErrCodeScenarioFailed     = "E010" // One or more conformance scenarios failed
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Kind    string `json:"kind,omitempty"`    // violation kind, when typed
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Render outputs data as JSON, or calls text for the human-readable form.
func (f *OutputFormatter) Render(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	return f.emit(&CLIError{Code: code, Message: message, Details: details})
}

func (f *OutputFormatter) emit(e *CLIError) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "error", Error: e})
	}

	// Human-readable error
	if e.Kind != "" {
		fmt.Fprintf(f.Writer, "Error [%s] %s: %s\n", e.Code, e.Kind, e.Message)
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	}
	if f.Verbose && e.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", e.Details)
	}
	return nil
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}

// Fail reports err in the configured format and returns the ExitError the
// command should return. Typed pipeline failures exit 1 with their kind;
// everything else is a command error.
func (f *OutputFormatter) Fail(message string, err error) error {
	e, code := describe(err)
	e.Message = fmt.Sprintf("%s: %s", message, e.Message)
	_ = f.emit(e)
	return WrapExitError(code, message, err)
}

// describe maps err to its JSON error and exit code.
func describe(err error) (*CLIError, int) {
	if v, ok := policy.AsViolation(err); ok {
		return &CLIError{
			Code:    ErrCodePolicyViolation,
			Kind:    string(v.Kind),
			Message: v.Message,
			Details: violationDetails(v),
		}, ExitFailure
	}
	var iv *seal.IntegrityViolation
	if errors.As(err, &iv) {
		return &CLIError{Code: ErrCodeIntegrityViolation, Kind: string(iv.Kind), Message: iv.Summary()}, ExitFailure
	}
	var lv *ledger.InvariantViolation
	if errors.As(err, &lv) {
		return &CLIError{Code: ErrCodeInvariantViolation, Kind: string(lv.Kind), Message: lv.Detail}, ExitFailure
	}

	msg := err.Error()
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return &CLIError{Code: ErrCodeNotFound, Message: msg}, ExitFailure
	case errors.Is(err, governance.ErrNotConfigured):
		return &CLIError{Code: ErrCodeNotConfigured, Message: msg}, ExitCommandError
	case errors.Is(err, ledger.ErrInvalidEvent), errors.Is(err, registry.ErrInvalid):
		return &CLIError{Code: ErrCodeInvalidInput, Message: msg}, ExitCommandError
	case errors.Is(err, registry.ErrUnavailable), errors.Is(err, registry.ErrCorrupt),
		errors.Is(err, registry.ErrDuplicate), errors.Is(err, ledger.ErrChainConflict):
		return &CLIError{Code: ErrCodeStorage, Message: msg}, ExitCommandError
	}
	var le *policy.LoadError
	if errors.As(err, &le) {
		return &CLIError{Code: ErrCodeInvalidInput, Message: msg}, ExitCommandError
	}
	return &CLIError{Code: ErrCodeGeneric, Message: msg}, ExitCommandError
}

func violationDetails(v *policy.Violation) map[string]any {
	d := map[string]any{}
	if v.Profile != "" {
		d["profile"] = v.Profile
	}
	if v.Level != "" {
		d["level"] = string(v.Level)
	}
	if v.Baseline != "" {
		d["baseline"] = string(v.Baseline)
	}
	if v.Field != "" {
		d["field"] = v.Field
	}
	if v.Value != "" {
		d["value"] = v.Value
	}
	if len(v.Allowed) > 0 {
		d["allowed"] = v.Allowed
	}
	if len(d) == 0 {
		return nil
	}
	return d
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
