package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/ledger"
)

// LedgerOptions holds flags for the ledger commands.
type LedgerOptions struct {
	*RootOptions

	// append
	Actor   string
	Action  string
	Payload string // JSON object
	Origin  string

	// read
	Limit int
}

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Append to, read and verify the forensic ledger",
	}

	cmd.AddCommand(newLedgerAppendCommand(opts))
	cmd.AddCommand(newLedgerReadCommand(opts))
	cmd.AddCommand(newLedgerVerifyCommand(opts))
	return cmd
}

func newLedgerAppendCommand(opts *LedgerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append a governance event",
		Long: `Append one event to the hash-chained ledger.

The event must pass the actor, payload and locality gates. A rejected
event is never written.

Examples:
  windi ledger append --actor "Maria Santos" --action approval.granted \
    --payload '{"submission_id":"REG-20261019-0001"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerAppend(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", "", "human decision actor (required)")
	_ = cmd.MarkFlagRequired("actor")
	cmd.Flags().StringVar(&opts.Action, "action", "", "event action (required)")
	_ = cmd.MarkFlagRequired("action")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "event payload as a JSON object")
	cmd.Flags().StringVar(&opts.Origin, "origin", "", "network address the write came from")
	return cmd
}

func newLedgerReadCommand(opts *LedgerOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "List ledger entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerRead(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Action, "action", "", "filter by action")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "filter by actor")
	cmd.Flags().IntVar(&opts.Limit, "limit", ledger.DefaultReadLimit, fmt.Sprintf("maximum entries (at most %d)", ledger.MaxReadLimit))
	return cmd
}

func newLedgerVerifyCommand(opts *LedgerOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute every hash and link in the ledger",
		Long: `Walk the whole ledger from genesis.

Exit codes:
  0 - Chain intact
  1 - Chain broken
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerVerify(opts, cmd)
		},
	}
}

func runLedgerAppend(opts *LedgerOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	payload, err := parsePayload(opts.Payload)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid payload", err)
	}

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	receipt, err := rt.ledger.Append(commandContext(cmd), ledger.Event{
		Actor:   opts.Actor,
		Action:  opts.Action,
		Payload: payload,
		Origin:  opts.Origin,
	})
	if err != nil {
		return formatter.Fail("event rejected", err)
	}

	return formatter.Render(receipt, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Appended %s\n", receipt.ID)
		fmt.Fprintf(w, "  Hash:      %s\n", receipt.Hash)
		fmt.Fprintf(w, "  Previous:  %s\n", receipt.PrevHash)
	})
}

func runLedgerRead(opts *LedgerOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	entries, err := rt.ledger.Read(commandContext(cmd), ledger.Filter{
		Action: opts.Action,
		Actor:  opts.Actor,
		Limit:  opts.Limit,
	})
	if err != nil {
		return formatter.Fail("failed to read ledger", err)
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}

	return formatter.Render(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No ledger entries.")
			return
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%4d  %s  %-24s %-28s %s...\n",
				e.Seq, e.Timestamp, e.Actor, e.Action, canon.Prefix(e.Hash, 12))
		}
	})
}

func runLedgerVerify(opts *LedgerOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.ledger.VerifyChain(commandContext(cmd))
	if err != nil {
		return formatter.Fail("failed to verify ledger", err)
	}
	if !report.Valid {
		_ = formatter.emit(&CLIError{
			Code:    ErrCodeChainBroken,
			Message: fmt.Sprintf("ledger broken at seq %d: %s", report.BrokenSeq, report.Reason),
			Details: report,
		})
		return NewExitError(ExitFailure, "ledger chain broken")
	}

	return formatter.Render(report, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Ledger intact: %d entries\n", report.Length)
		if report.TipHash != "" {
			fmt.Fprintf(w, "  Tip:  %s\n", report.TipHash)
		}
	})
}

func parsePayload(s string) (canon.Object, error) {
	if s == "" {
		return canon.Object{}, nil
	}
	v, err := canon.Parse([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	obj, ok := v.(canon.Object)
	if !ok {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	return obj, nil
}

// commandContext returns the command's context, or Background when run
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
