package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/windi/internal/registry"
)

// RegistryOptions holds flags for the registry commands.
type RegistryOptions struct {
	*RootOptions

	// query
	Level  string
	Entity string
	After  string
	Before string
	Limit  int

	// next-id
	Prefix    string
	Namespace string
}

// NewRegistryCommand creates the registry command group.
func NewRegistryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegistryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Query the submission registry and allocate submission IDs",
	}

	cmd.AddCommand(newRegistryQueryCommand(opts))
	cmd.AddCommand(newRegistryLookupCommand(opts))
	cmd.AddCommand(newRegistryNextIDCommand(opts))
	return cmd
}

func newRegistryQueryCommand(opts *RegistryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List submissions, newest first",
		Long: `List registered submissions matching every given filter.

Examples:
  windi registry query --level HIGH
  windi registry query --entity "banco central" --after 2026-10-01T00:00:00.000000Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistryQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Level, "level", "", "governance level")
	cmd.Flags().StringVar(&opts.Entity, "entity", "", "reporting entity substring, case-insensitive")
	cmd.Flags().StringVar(&opts.After, "after", "", "registered at or after this timestamp")
	cmd.Flags().StringVar(&opts.Before, "before", "", "registered at or before this timestamp")
	cmd.Flags().IntVar(&opts.Limit, "limit", registry.DefaultQueryLimit, fmt.Sprintf("maximum entries (at most %d)", registry.MaxQueryLimit))
	return cmd
}

func newRegistryLookupCommand(opts *RegistryOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <submission-id>",
		Short: "Look up a submission and count the verification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistryLookup(opts, args[0], cmd)
		},
	}
}

func newRegistryNextIDCommand(opts *RegistryOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next-id",
		Short: "Allocate the next submission ID for a prefix",
		Long: `Allocate PREFIX-YYYYMMDD-NNNN for today (UTC).

The counter is consumed: the same ID is never handed out twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistryNextID(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "submission prefix, e.g. REG (required)")
	_ = cmd.MarkFlagRequired("prefix")
	cmd.Flags().StringVar(&opts.Namespace, "namespace", registry.DefaultNamespace, "counter namespace")
	return cmd
}

func runRegistryQuery(opts *RegistryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	entries, err := rt.registry.Query(commandContext(cmd), registry.Query{
		Level:  opts.Level,
		Entity: opts.Entity,
		After:  opts.After,
		Before: opts.Before,
		Limit:  opts.Limit,
	})
	if err != nil {
		return formatter.Fail("failed to query registry", err)
	}
	return renderEntries(formatter, entries)
}

func runRegistryLookup(opts *RegistryOptions, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	entry, err := rt.registry.Lookup(commandContext(cmd), id)
	if err != nil {
		return formatter.Fail("lookup failed", err)
	}
	return formatter.Render(entry, func(w io.Writer) {
		printEntry(w, entry)
	})
}

func runRegistryNextID(opts *RegistryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := rt.registry.GenerateSubmissionID(commandContext(cmd), opts.Namespace, opts.Prefix)
	if err != nil {
		return formatter.Fail("failed to allocate submission ID", err)
	}
	return formatter.Render(map[string]string{"submission_id": id}, func(w io.Writer) {
		fmt.Fprintln(w, id)
	})
}

func renderEntries(formatter *OutputFormatter, entries []registry.Entry) error {
	if entries == nil {
		entries = []registry.Entry{}
	}
	return formatter.Render(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "No submissions.")
			return
		}
		for _, e := range entries {
			fmt.Fprintf(w, "%-20s %-6s %-28s %-10s %s\n",
				e.SubmissionID, e.GovernanceLevel, e.ReportingEntity, e.ReferencePeriod, e.RegisteredAt)
		}
	})
}

func printEntry(w io.Writer, e registry.Entry) {
	fmt.Fprintf(w, "Submission:       %s\n", e.SubmissionID)
	fmt.Fprintf(w, "  Level:          %s\n", e.GovernanceLevel)
	fmt.Fprintf(w, "  Profile:        %s\n", e.ProfileID)
	fmt.Fprintf(w, "  Document:       %s (%s)\n", e.DocumentID, e.DocumentType)
	fmt.Fprintf(w, "  Record:         %s\n", e.RecordID)
	if e.ReportingEntity != "" {
		fmt.Fprintf(w, "  Entity:         %s\n", e.ReportingEntity)
	}
	if e.ReferencePeriod != "" {
		fmt.Fprintf(w, "  Period:         %s\n", e.ReferencePeriod)
	}
	fmt.Fprintf(w, "  Policy:         %s\n", e.PolicyVersion)
	fmt.Fprintf(w, "  Integrity:      %s\n", e.IntegrityHash)
	fmt.Fprintf(w, "  Registered:     %s\n", e.RegisteredAt)
	fmt.Fprintf(w, "  Verified:       %d\n", e.VerifiedCount)
}
