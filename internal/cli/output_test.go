package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/windi/internal/ledger"
	"github.com/roach88/windi/internal/policy"
	"github.com/roach88/windi/internal/registry"
	"github.com/roach88/windi/internal/seal"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"submission_id": "REG-20261019-0001"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeNotFound, "submission not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E005", resp.Error.Code)
	assert.Equal(t, "submission not found", resp.Error.Message)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("Ledger intact")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Ledger intact")
}

func TestOutputFormatter_Render(t *testing.T) {
	text := func(w io.Writer) { fmt.Fprintln(w, "human form") }

	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, formatter.Render(map[string]int{"score": 85}, text))
	assert.Equal(t, "human form\n", buf.String())

	buf.Reset()
	formatter.Format = "json"
	require.NoError(t, formatter.Render(map[string]int{"score": 85}, text))
	assert.JSONEq(t, `{"status":"ok","data":{"score":85}}`, buf.String())
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "profiles.yaml"}
	err := formatter.Error(ErrCodeInvalidInput, "invalid profiles", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E006]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			errBuf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    buf,
				ErrWriter: errBuf,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Loading %s", "profiles.yaml")

			assert.Empty(t, buf.String(), "verbose logs must not corrupt JSON output")
			if tt.wantLog {
				assert.Contains(t, errBuf.String(), "Loading profiles.yaml")
			} else {
				assert.Empty(t, errBuf.String())
			}
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantKind string
		wantExit int
	}{
		{
			name: "policy violation",
			err: &policy.Violation{
				Kind:    policy.KindMissingRequiredField,
				Field:   "reference_period",
				Message: "required field is missing",
			},
			wantCode: ErrCodePolicyViolation,
			wantKind: "missing_required_field",
			wantExit: ExitFailure,
		},
		{
			name:     "integrity violation",
			err:      &seal.IntegrityViolation{Kind: seal.KindTamperDetected, StoredPrefix: "aa", ComputedPrefix: "bb"},
			wantCode: ErrCodeIntegrityViolation,
			wantKind: "tamper_detected",
			wantExit: ExitFailure,
		},
		{
			name:     "ledger gate",
			err:      &ledger.InvariantViolation{Kind: ledger.KindNonHumanActor, Detail: "actor looks automated"},
			wantCode: ErrCodeInvariantViolation,
			wantKind: "non_human_decision_actor",
			wantExit: ExitFailure,
		},
		{
			name:     "not found",
			err:      &registry.Error{Op: "get", Err: registry.ErrNotFound},
			wantCode: ErrCodeNotFound,
			wantExit: ExitFailure,
		},
		{
			name:     "storage",
			err:      fmt.Errorf("insert: %w", ledger.ErrChainConflict),
			wantCode: ErrCodeStorage,
			wantExit: ExitCommandError,
		},
		{
			name:     "unknown",
			err:      errors.New("disk on fire"),
			wantCode: ErrCodeGeneric,
			wantExit: ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.Fail("request rejected", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantKind, resp.Error.Kind)
			assert.Contains(t, resp.Error.Message, "request rejected: ")
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "failed"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
