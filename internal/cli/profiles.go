package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/windi/internal/policy"
)

// ProfileSummary describes one loaded profile.
type ProfileSummary struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	DefaultLevel  string   `json:"default_level"`
	AllowedLevels []string `json:"allowed_levels"`
	NoDowngrade   bool     `json:"no_downgrade"`
	Prefix        string   `json:"submission_prefix"`
}

// ProfilesResult is the profiles check output.
type ProfilesResult struct {
	File          string           `json:"file"`
	PolicyVersion string           `json:"policy_version"`
	ConfigHash    string           `json:"config_hash"`
	Profiles      []ProfileSummary `json:"profiles"`
}

// NewProfilesCommand creates the profiles command group.
func NewProfilesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Inspect governance profile files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check [file]",
		Short: "Validate a profile file and print its configuration hash",
		Long: `Load a YAML or CUE profile file, validate it against the profile
schema and print the configuration hash records will carry.

The file defaults to --profiles.

Exit codes:
  0 - Valid
  1 - Invalid profile file
  2 - Command error`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Profiles
			if len(args) == 1 {
				path = args[0]
			}
			return runProfilesCheck(rootOpts, path, cmd)
		},
	})

	return cmd
}

func runProfilesCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	if path == "" {
		_ = formatter.Error(ErrCodeInvalidInput, "no profiles file: pass a file or set --profiles", nil)
		return NewExitError(ExitCommandError, "no profiles file")
	}

	formatter.VerboseLog("Loading profiles from %s", path)
	cfg, err := policy.LoadFile(path)
	if err != nil {
		var le *policy.LoadError
		if errors.As(err, &le) {
			_ = formatter.Error(ErrCodeInvalidInput, err.Error(), nil)
			return WrapExitError(ExitFailure, "invalid profiles", err)
		}
		return formatter.Fail("failed to load profiles", err)
	}

	out := ProfilesResult{
		File:          path,
		PolicyVersion: cfg.PolicyVersion,
		ConfigHash:    cfg.Hash(),
		Profiles:      make([]ProfileSummary, 0, len(cfg.Profiles)),
	}
	for _, id := range cfg.ProfileIDs() {
		p := cfg.Profiles[id]
		allowed := make([]string, len(p.AllowedLevels))
		for i, l := range p.AllowedLevels {
			allowed[i] = string(l)
		}
		out.Profiles = append(out.Profiles, ProfileSummary{
			ID:            p.ID,
			Name:          p.Name,
			DefaultLevel:  string(p.DefaultLevel),
			AllowedLevels: allowed,
			NoDowngrade:   p.NoDowngrade,
			Prefix:        p.Prefix(),
		})
	}

	return formatter.Render(out, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s is valid\n\n", path)
		fmt.Fprintf(w, "  Policy version:  %s\n", out.PolicyVersion)
		fmt.Fprintf(w, "  Config hash:     %s\n\n", out.ConfigHash)
		for _, p := range out.Profiles {
			fmt.Fprintf(w, "  %-20s default %-6s allowed %-18s prefix %s",
				p.ID, p.DefaultLevel, strings.Join(p.AllowedLevels, ","), p.Prefix)
			if p.NoDowngrade {
				fmt.Fprint(w, "  no-downgrade")
			}
			fmt.Fprintln(w)
		}
	})
}
