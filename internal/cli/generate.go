package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/governance"
	"github.com/roach88/windi/internal/policy"
	"github.com/roach88/windi/internal/resilience"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Profile       string
	DocumentType  string
	Level         string
	DocumentID    string
	PolicyVersion string
	Actor         string
	Meta          []string // key=value pairs
	MetadataFile  string
	Output        string // audit record output path

	IdentityGovernance bool
	EmbeddedMetadata   bool
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Decide, seal and register one document",
		Long: `Run one document request through the governance pipeline.

The profile decides the governance level and validates the metadata. The
level's controls then seal the audit record, register a submission ID and
append a decision event to the forensic ledger.

Exit codes:
  0 - Approved
  1 - Rejected by policy or by a ledger gate
  2 - Command error

Examples:
  windi generate --profiles profiles.yaml --profile open-office --type memo
  windi generate --profile central-bank --level HIGH \
    --meta reporting_entity="Banco Central" --meta reference_period=2026-Q3 \
    --meta data_frequency=quarterly --out record.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Profile, "profile", "", "governance profile ID (required)")
	_ = cmd.MarkFlagRequired("profile")
	cmd.Flags().StringVar(&opts.DocumentType, "type", "", "document type")
	cmd.Flags().StringVar(&opts.Level, "level", "", "requested governance level (LOW|MEDIUM|HIGH)")
	cmd.Flags().StringVar(&opts.DocumentID, "document-id", "", "document ID (defaults to the record ID)")
	cmd.Flags().StringVar(&opts.PolicyVersion, "policy-version", "", "policy version (defaults to the profile file's)")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "decision actor recorded in the ledger")
	cmd.Flags().StringArrayVar(&opts.Meta, "meta", nil, "metadata field as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.MetadataFile, "metadata-file", "", "metadata object as a JSON or YAML file")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "write the audit record to this file")
	cmd.Flags().BoolVar(&opts.IdentityGovernance, "identity-governance", false, "identity governance control is active")
	cmd.Flags().BoolVar(&opts.EmbeddedMetadata, "embedded-metadata", false, "document embeds its governance metadata")

	return cmd
}

func runGenerate(opts *GenerateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	level, err := policy.ParseLevel(opts.Level)
	if err != nil {
		return formatter.Fail("invalid --level", err)
	}
	metadata, err := buildMetadata(opts.MetadataFile, opts.Meta)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid metadata", err)
	}

	rt, err := openRuntime(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc, err := rt.service()
	if err != nil {
		return formatter.Fail("failed to load profiles", err)
	}

	res, err := svc.GenerateDocument(commandContext(cmd), governance.Request{
		ProfileID:     opts.Profile,
		DocumentType:  opts.DocumentType,
		Level:         level,
		DocumentID:    opts.DocumentID,
		PolicyVersion: opts.PolicyVersion,
		Actor:         opts.Actor,
		Metadata:      metadata,
		Features: resilience.Features{
			IdentityGovernance: opts.IdentityGovernance,
			EmbeddedMetadata:   opts.EmbeddedMetadata,
		},
	})
	if err != nil {
		return formatter.Fail("request rejected", err)
	}

	if opts.Output != "" {
		if err := writeRecord(opts.Output, res); err != nil {
			return formatter.Fail("failed to write audit record", err)
		}
		formatter.VerboseLog("Wrote audit record to %s", opts.Output)
	}

	return formatter.Render(res, func(w io.Writer) {
		printResult(w, res)
	})
}

// buildMetadata merges the metadata file with --meta pairs; pairs win.
func buildMetadata(file string, pairs []string) (canon.Object, error) {
	raw := map[string]any{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read metadata file: %w", err)
		}
		// YAML is a superset of JSON, so one decoder covers both.
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse metadata file %s: %w", file, err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --meta %q: want key=value", pair)
		}
		raw[strings.TrimSpace(key)] = value
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return canon.ObjectFrom(raw)
}

func writeRecord(path string, res governance.Result) error {
	data, err := json.MarshalIndent(res.Record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func printResult(w io.Writer, res governance.Result) {
	rec := res.Record
	fmt.Fprintf(w, "✓ %s (%s)\n\n", res.Status, res.Level)
	fmt.Fprintf(w, "  Record:      %s\n", rec.RecordID)
	fmt.Fprintf(w, "  Profile:     %s\n", rec.ProfileID)
	if rec.DocumentType != "" {
		fmt.Fprintf(w, "  Type:        %s\n", rec.DocumentType)
	}
	if rec.Sealed() {
		fmt.Fprintf(w, "  Sealed:      %s (%s...)\n", rec.SealedAt, canon.Prefix(rec.IntegrityHash, 16))
	} else {
		fmt.Fprintln(w, "  Sealed:      no")
	}
	if len(rec.MissingFields) > 0 {
		fmt.Fprintf(w, "  Missing:     %s\n", strings.Join(rec.MissingFields, ", "))
	}
	if res.Ledger != nil {
		fmt.Fprintf(w, "  Ledger:      %s\n", res.Ledger.ID)
	}
	fmt.Fprintf(w, "  Resilience:  %d (%s)\n", res.Resilience.Score, res.Resilience.Rating)
	if res.Header != nil {
		fmt.Fprintln(w)
		fmt.Fprint(w, res.Header.String())
	}
}
