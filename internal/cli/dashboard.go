package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/windi/internal/dashboard"
	"github.com/roach88/windi/internal/registry"
)

// DashboardOptions holds flags for the dashboard commands.
type DashboardOptions struct {
	*RootOptions
	Level  string
	Entity string
	Limit  int
}

// NewDashboardCommand creates the dashboard command group. Every
// subcommand is read-only.
func NewDashboardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DashboardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Read-only audit views over the registry and ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "overview",
		Short: "Statistics, recent submissions and chain status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboardOverview(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "lookup <submission-id>",
		Short: "Show one submission without counting a verification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboardLookup(opts, args[0], cmd)
		},
	})

	search := &cobra.Command{
		Use:   "search",
		Short: "Filter submissions by level and entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboardSearch(opts, cmd)
		},
	}
	search.Flags().StringVar(&opts.Level, "level", "", "governance level")
	search.Flags().StringVar(&opts.Entity, "entity", "", "reporting entity substring, case-insensitive")
	search.Flags().IntVar(&opts.Limit, "limit", registry.DefaultQueryLimit, "maximum entries")
	cmd.AddCommand(search)

	cmd.AddCommand(&cobra.Command{
		Use:   "entity <name>",
		Short: "Summarize every submission of one reporting entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboardEntity(opts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "integrity",
		Short: "Check seal completeness and the ledger chain",
		Long: `Check that every registered submission is sealed and that the
ledger chain is intact.

Exit codes:
  0 - Healthy
  1 - Unsealed submissions or a broken ledger
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboardIntegrity(opts, cmd)
		},
	})

	return cmd
}

func runDashboardOverview(opts *DashboardOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ov, err := rt.dashboard.Overview(commandContext(cmd))
	if err != nil {
		return formatter.Fail("failed to build overview", err)
	}
	return formatter.Render(ov, func(w io.Writer) {
		fmt.Fprintf(w, "Submissions: %d (%d sealed)\n", ov.Stats.Total, ov.Chain.Sealed)
		for _, level := range sortedCounts(ov.Stats.ByLevel) {
			fmt.Fprintf(w, "  %-8s %d\n", level, ov.Stats.ByLevel[level])
		}
		if ov.Ledger != nil {
			fmt.Fprintf(w, "Ledger: %d entries, %s\n", ov.Ledger.Length, chainWord(ov.Ledger.Valid))
		}
		if len(ov.Recent) > 0 {
			fmt.Fprintln(w, "\nRecent:")
			for _, e := range ov.Recent {
				fmt.Fprintf(w, "  %-20s %-6s %s\n", e.SubmissionID, e.GovernanceLevel, e.ReportingEntity)
			}
		}
	})
}

func runDashboardLookup(opts *DashboardOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	entry, err := rt.dashboard.Lookup(commandContext(cmd), id)
	if err != nil {
		return formatter.Fail("lookup failed", err)
	}
	return formatter.Render(entry, func(w io.Writer) {
		printEntry(w, entry)
	})
}

func runDashboardSearch(opts *DashboardOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	entries, err := rt.dashboard.Search(commandContext(cmd), opts.Level, opts.Entity, opts.Limit)
	if err != nil {
		return formatter.Fail("search failed", err)
	}
	return renderEntries(formatter, entries)
}

func runDashboardEntity(opts *DashboardOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.dashboard.EntityReport(commandContext(cmd), name)
	if err != nil {
		return formatter.Fail("entity report failed", err)
	}
	return formatter.Render(report, func(w io.Writer) {
		printEntityReport(w, report)
	})
}

func printEntityReport(w io.Writer, r dashboard.EntityReport) {
	fmt.Fprintf(w, "Entity: %s\n", r.Entity)
	fmt.Fprintf(w, "  Submissions:  %d\n", r.Total)
	for _, level := range sortedCounts(r.ByLevel) {
		fmt.Fprintf(w, "    %-8s %d\n", level, r.ByLevel[level])
	}
	if len(r.Periods) > 0 {
		fmt.Fprintf(w, "  Periods:      %s\n", strings.Join(r.Periods, ", "))
	}
	if r.FirstSeen != "" {
		fmt.Fprintf(w, "  First:        %s\n", r.FirstSeen)
		fmt.Fprintf(w, "  Latest:       %s\n", r.LatestSeen)
	}
}

func runDashboardIntegrity(opts *DashboardOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.dashboard.IntegrityCheck(commandContext(cmd))
	if err != nil {
		return formatter.Fail("integrity check failed", err)
	}
	if !report.Healthy {
		_ = formatter.emit(&CLIError{
			Code:    ErrCodeChainBroken,
			Message: integrityMessage(report),
			Details: report,
		})
		return NewExitError(ExitFailure, "integrity check failed")
	}
	return formatter.Render(report, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s\n", integrityMessage(report))
	})
}

func integrityMessage(r dashboard.Integrity) string {
	msg := fmt.Sprintf("%d of %d submissions sealed", r.Registry.Sealed, r.Registry.Total)
	if r.Ledger != nil {
		msg += fmt.Sprintf("; ledger %s (%d entries)", chainWord(r.Ledger.Valid), r.Ledger.Length)
		if !r.Ledger.Valid {
			msg += fmt.Sprintf(", broken at seq %d", r.Ledger.BrokenSeq)
		}
	}
	return msg
}

func chainWord(valid bool) string {
	if valid {
		return "intact"
	}
	return "BROKEN"
}

func sortedCounts(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
