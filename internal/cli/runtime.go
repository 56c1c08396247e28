package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/windi/internal/clock"
	"github.com/roach88/windi/internal/dashboard"
	"github.com/roach88/windi/internal/governance"
	"github.com/roach88/windi/internal/ident"
	"github.com/roach88/windi/internal/ledger"
	"github.com/roach88/windi/internal/metrics"
	"github.com/roach88/windi/internal/policy"
	"github.com/roach88/windi/internal/registry"
	"github.com/roach88/windi/internal/store"
)

// runtime is the pipeline wired from the global flags. The ledger always
// lives in the SQLite database; the registry lives there too unless the
// file backend is selected.
type runtime struct {
	opts      *RootOptions
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     clock.Clock
	ids       ident.Generator
	store     *store.Store
	registry  *registry.Registry
	ledger    *ledger.Ledger
	dashboard *dashboard.Dashboard
	stderr    io.Writer
}

// newLogger configures logging based on the verbose flag.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openRuntime opens the database and the selected registry backend.
func openRuntime(opts *RootOptions, cmd *cobra.Command) (*runtime, error) {
	rt := &runtime{
		opts:    opts,
		logger:  newLogger(opts, cmd.ErrOrStderr()),
		metrics: metrics.New(),
		clock:   opts.Clock,
		ids:     opts.IDs,
		stderr:  cmd.ErrOrStderr(),
	}
	if rt.clock == nil {
		rt.clock = clock.System{}
	}
	if rt.ids == nil {
		rt.ids = ident.UUIDv7Generator{}
	}

	rt.logger.Debug("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	rt.store = st

	var regStore registry.Store = st.Registry()
	if opts.RegistryBackend == BackendFile {
		fs, err := registry.NewFileStore(opts.DataDir)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open file registry", err)
		}
		rt.logger.Debug("using file registry", "dir", fs.Dir())
		regStore = fs
	}

	rt.registry = registry.New(regStore,
		registry.WithClock(rt.clock),
		registry.WithLogger(rt.logger),
		registry.WithMetrics(rt.metrics))
	rt.ledger = ledger.New(st.Ledger(),
		ledger.WithClock(rt.clock),
		ledger.WithIDGenerator(rt.ids),
		ledger.WithLogger(rt.logger),
		ledger.WithMetrics(rt.metrics))
	rt.dashboard = dashboard.New(rt.registry, dashboard.WithLedger(rt.ledger))
	return rt, nil
}

// service loads the governance profiles and builds the pipeline service.
func (rt *runtime) service() (*governance.Service, error) {
	if rt.opts.Profiles == "" {
		return nil, NewExitError(ExitCommandError, "no profiles file: set --profiles or "+EnvProfiles)
	}
	engine, err := policy.Open(rt.opts.Profiles, policy.WithLogger(rt.logger))
	if err != nil {
		return nil, err
	}
	rt.logger.Debug("profiles loaded", "path", rt.opts.Profiles, "config_hash", engine.ConfigHash())

	return governance.New(engine,
		governance.WithRegistry(rt.registry),
		governance.WithLedger(rt.ledger),
		governance.WithClock(rt.clock),
		governance.WithIDGenerator(rt.ids),
		governance.WithLogger(rt.logger),
		governance.WithMetrics(rt.metrics)), nil
}

// Close writes metrics when requested and closes the database.
func (rt *runtime) Close() {
	if rt.opts.Metrics {
		if err := writeMetrics(rt.stderr, rt.metrics); err != nil {
			rt.logger.Error("error writing metrics", "error", err)
		}
	}
	if err := rt.store.Close(); err != nil {
		rt.logger.Error("error closing database", "error", err)
	}
}

// writeMetrics renders every gathered family in the Prometheus text format.
func writeMetrics(w io.Writer, m *metrics.Metrics) error {
	families, err := m.Registry().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
