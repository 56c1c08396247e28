package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/windi/internal/clock"
	"github.com/roach88/windi/internal/ident"
)

// Environment variables consulted when the matching flag is not set.
const (
	EnvDatabase = "WINDI_DB"
	EnvProfiles = "WINDI_PROFILES"
	EnvDataDir  = "WINDI_DATA_DIR"
)

// Registry backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Database        string
	Profiles        string
	RegistryBackend string
	DataDir         string
	Metrics         bool

	// Clock and IDs override the wall clock and UUIDv7 record IDs (for
	// testing). Nil means the production defaults.
	Clock clock.Clock
	IDs   ident.Generator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidBackends defines the allowed registry backends.
var ValidBackends = []string{BackendSQLite, BackendFile}

// NewRootCommand creates the root command for the windi CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "windi",
		Short: "windi - governance audit and provenance pipeline",
		Long: `Decide governance levels for documents, seal audit records, keep a
hash-chained forensic ledger and a submission registry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !contains(ValidBackends, opts.RegistryBackend) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid registry backend %q: must be one of %v", opts.RegistryBackend, ValidBackends))
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Database, "db", envOr(EnvDatabase, "windi.db"), "path to SQLite database (env "+EnvDatabase+")")
	flags.StringVar(&opts.Profiles, "profiles", os.Getenv(EnvProfiles), "governance profile file, YAML or CUE (env "+EnvProfiles+")")
	flags.StringVar(&opts.RegistryBackend, "registry-backend", BackendSQLite, "registry storage (sqlite|file)")
	flags.StringVar(&opts.DataDir, "data-dir", envOr(EnvDataDir, "data"), "directory of the file registry backend (env "+EnvDataDir+")")
	flags.BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics to stderr on exit")

	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewScoreCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewRegistryCommand(opts))
	cmd.AddCommand(NewDashboardCommand(opts))
	cmd.AddCommand(NewProfilesCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
