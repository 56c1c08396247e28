package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/metrics"
	"github.com/roach88/windi/internal/seal"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Submission string
}

// VerifyResult is the verify command output.
type VerifyResult struct {
	RecordID      string `json:"record_id"`
	Valid         bool   `json:"valid"`
	Message       string `json:"message"`
	SubmissionID  string `json:"submission_id,omitempty"`
	VerifiedCount int    `json:"verified_count,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <record.json>",
		Short: "Verify the seal of an audit record",
		Long: `Recompute the integrity hash of a sealed audit record.

With --submission the record is also matched against its registry entry,
which counts as a verification of that submission.

Exit codes:
  0 - Record verified
  1 - Tampered, unsealed or not matching the registry
  2 - Command error

Examples:
  windi verify record.json
  windi verify record.json --submission REG-20261019-0001 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Submission, "submission", "", "submission ID to match in the registry")

	return cmd
}

func runVerify(opts *VerifyOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rec, err := readRecord(path)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read audit record", err)
	}

	// The record-only path needs no database, so it keeps its own metrics.
	m := metrics.New()
	var rt *runtime
	if opts.Submission != "" {
		rt, err = openRuntime(opts.RootOptions, cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		m = rt.metrics
	} else if opts.Metrics {
		defer func() {
			if err := writeMetrics(cmd.ErrOrStderr(), m); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error writing metrics: %v\n", err)
			}
		}()
	}

	if err := seal.Verify(rec); err != nil {
		m.Verified(verifyOutcome(err))
		return formatter.Fail("verification failed", err)
	}
	out := VerifyResult{RecordID: rec.RecordID, Valid: true, Message: seal.VerifiedMessage}

	if rt == nil {
		m.Verified("valid")
	} else {
		entry, err := rt.registry.Lookup(commandContext(cmd), opts.Submission)
		if err != nil {
			return formatter.Fail("registry lookup failed", err)
		}
		if entry.IntegrityHash != rec.IntegrityHash || entry.RecordID != rec.RecordID {
			m.Verified(string(seal.KindTamperDetected))
			return formatter.Fail("verification failed", &seal.IntegrityViolation{
				Kind:           seal.KindTamperDetected,
				RecordID:       rec.RecordID,
				StoredPrefix:   canon.Prefix(entry.IntegrityHash, 16),
				ComputedPrefix: canon.Prefix(rec.IntegrityHash, 16),
				Message:        fmt.Sprintf("record does not match submission %s", opts.Submission),
			})
		}
		m.Verified("valid")
		out.SubmissionID = entry.SubmissionID
		out.VerifiedCount = entry.VerifiedCount
	}

	return formatter.Render(out, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s\n", out.Message)
		fmt.Fprintf(w, "  Record:      %s\n", out.RecordID)
		if out.SubmissionID != "" {
			fmt.Fprintf(w, "  Submission:  %s (verified %d times)\n", out.SubmissionID, out.VerifiedCount)
		}
	})
}

// verifyOutcome is the metrics label for a failed verification.
func verifyOutcome(err error) string {
	var iv *seal.IntegrityViolation
	if errors.As(err, &iv) {
		return string(iv.Kind)
	}
	return "error"
}

func readRecord(path string) (seal.AuditRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return seal.AuditRecord{}, err
	}
	var rec seal.AuditRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return seal.AuditRecord{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return rec, nil
}
