package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/windi/internal/resilience"
)

// ScoreOptions holds flags for the score command.
type ScoreOptions struct {
	*RootOptions
	Level string

	ForensicLedger     bool
	FourEyes           bool
	TamperEvidence     bool
	Jurisdiction       bool
	IdentityGovernance bool
	StructuralHash     string
	ProvenanceRecord   bool
	EmbeddedMetadata   bool
}

// NewScoreCommand creates the score command.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute a provenance resilience score",
		Long: `Score how forgery-resistant a document's provenance trail is.

Controls left unset take their level default: forensic ledger, four-eyes
and tamper evidence are on for HIGH, jurisdiction binding is on for every
level.

Examples:
  windi score --level HIGH
  windi score --level LOW --forensic-ledger --structural-hash strict
  windi score --level HIGH --four-eyes=false --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Level, "level", "", "governance level (required)")
	_ = cmd.MarkFlagRequired("level")
	cmd.Flags().BoolVar(&opts.ForensicLedger, "forensic-ledger", false, "forensic ledger control")
	cmd.Flags().BoolVar(&opts.FourEyes, "four-eyes", false, "four-eyes dual control")
	cmd.Flags().BoolVar(&opts.TamperEvidence, "tamper-evidence", false, "tamper evidence seal")
	cmd.Flags().BoolVar(&opts.Jurisdiction, "jurisdiction", false, "jurisdiction binding")
	cmd.Flags().BoolVar(&opts.IdentityGovernance, "identity-governance", false, "identity governance")
	cmd.Flags().StringVar(&opts.StructuralHash, "structural-hash", "", "structural hash mode (strict|partial)")
	cmd.Flags().BoolVar(&opts.ProvenanceRecord, "provenance-record", false, "provenance record present")
	cmd.Flags().BoolVar(&opts.EmbeddedMetadata, "embedded-metadata", false, "embedded document metadata")

	return cmd
}

func runScore(opts *ScoreOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	f := resilience.Features{
		IdentityGovernance: opts.IdentityGovernance,
		StructuralHash:     opts.StructuralHash,
		ProvenanceRecord:   opts.ProvenanceRecord,
		EmbeddedMetadata:   opts.EmbeddedMetadata,
	}
	// Defaulted controls are only overridden when the flag was given.
	flags := cmd.Flags()
	if flags.Changed("forensic-ledger") {
		f.ForensicLedger = resilience.Bool(opts.ForensicLedger)
	}
	if flags.Changed("four-eyes") {
		f.FourEyes = resilience.Bool(opts.FourEyes)
	}
	if flags.Changed("tamper-evidence") {
		f.TamperEvidence = resilience.Bool(opts.TamperEvidence)
	}
	if flags.Changed("jurisdiction") {
		f.Jurisdiction = resilience.Bool(opts.Jurisdiction)
	}

	a := resilience.Assess(opts.Level, f)
	return formatter.Render(a, func(w io.Writer) {
		fmt.Fprintf(w, "Resilience score: %d/%d (%s)\n\n", a.Score, resilience.MaxScore, a.Rating)
		for _, factor := range a.Factors {
			mark := "·"
			if factor.Active {
				mark = "✓"
			}
			fmt.Fprintf(w, "  %s %-22s %+3d  %s\n", mark, factor.Name, factor.Points, factor.Description)
		}
	})
}
