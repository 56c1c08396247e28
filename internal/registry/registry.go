package registry

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/roach88/windi/internal/clock"
	"github.com/roach88/windi/internal/metrics"
	"github.com/roach88/windi/internal/seal"
)

// Store persists registry state.
//
// Increment must be atomic per (namespace, key) and return the new value.
// Insert must persist the entry and its Stats.Add in one durable update,
// failing with ErrDuplicate for a known submission ID. Query returns
// matching entries newest first. Get returns ErrNotFound for unknown IDs.
type Store interface {
	Increment(ctx context.Context, namespace, key string) (int, error)
	Insert(ctx context.Context, e Entry) error
	Get(ctx context.Context, submissionID string) (Entry, error)
	MarkVerified(ctx context.Context, submissionID string) (Entry, error)
	Query(ctx context.Context, q Query) ([]Entry, error)
	Stats(ctx context.Context) (Stats, error)
	SealCounts(ctx context.Context) (total, sealed int, err error)
}

var prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

// Registry is the submission registry service.
//
// Thread-safety: safe for concurrent use; atomicity is delegated to the
// Store.
type Registry struct {
	store   Store
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for ID dates and registration timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics records registrations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates a registry over store.
func New(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GenerateSubmissionID allocates the next PREFIX-YYYYMMDD-NNNN for today
// (UTC) in namespace.
func (r *Registry) GenerateSubmissionID(ctx context.Context, namespace, prefix string) (string, error) {
	if !prefixPattern.MatchString(prefix) {
		return "", wrap("generate id", fmt.Errorf("%w: prefix %q", ErrInvalid, prefix))
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	day := r.clock.Now().UTC().Format(clock.DateLayout)
	n, err := r.store.Increment(ctx, namespace, CounterKey(prefix, day))
	if err != nil {
		return "", wrap("generate id", err)
	}
	return FormatSubmissionID(prefix, day, n), nil
}

// CounterKey is the counter store key for prefix on day (YYYYMMDD).
func CounterKey(prefix, day string) string {
	return prefix + "-" + day
}

// FormatSubmissionID renders a submission ID.
func FormatSubmissionID(prefix, day string, n int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day, n)
}

// Register persists the projection of rec under submissionID.
func (r *Registry) Register(ctx context.Context, submissionID string, rec seal.AuditRecord, documentID string) (Entry, error) {
	if submissionID == "" {
		return Entry{}, wrap("register", fmt.Errorf("%w: empty submission id", ErrInvalid))
	}
	if documentID == "" {
		documentID = rec.DocumentID
	}
	entity, _ := rec.Metadata.Text("reporting_entity")
	period, _ := rec.Metadata.Text("reference_period")

	e := Entry{
		SubmissionID:    submissionID,
		DocumentID:      documentID,
		RecordID:        rec.RecordID,
		ProfileID:       rec.ProfileID,
		DocumentType:    rec.DocumentType,
		GovernanceLevel: rec.GovernanceLevel,
		PolicyVersion:   rec.PolicyVersion,
		ConfigHash:      rec.ConfigHash,
		IntegrityHash:   rec.IntegrityHash,
		StructuralHash:  rec.StructuralHash,
		ReportingEntity: entity,
		ReferencePeriod: period,
		RegisteredAt:    clock.Stamp(r.clock),
	}
	if err := r.store.Insert(ctx, e); err != nil {
		return Entry{}, wrap("register", err)
	}

	r.metrics.Registered(e.GovernanceLevel)
	r.logger.Debug("submission registered",
		"submission_id", e.SubmissionID,
		"level", e.GovernanceLevel,
		"sealed", e.IntegrityHash != "")
	return e, nil
}

// Query returns entries matching q, newest first.
func (r *Registry) Query(ctx context.Context, q Query) ([]Entry, error) {
	entries, err := r.store.Query(ctx, q.normalized())
	if err != nil {
		return nil, wrap("query", err)
	}
	return entries, nil
}

// Get returns a submission without touching its verified count.
func (r *Registry) Get(ctx context.Context, submissionID string) (Entry, error) {
	e, err := r.store.Get(ctx, submissionID)
	if err != nil {
		return Entry{}, wrap("get", err)
	}
	return e, nil
}

// Lookup returns a submission and increments its verified count. It is the
// path used when a third party checks a submission ID.
func (r *Registry) Lookup(ctx context.Context, submissionID string) (Entry, error) {
	e, err := r.store.MarkVerified(ctx, submissionID)
	if err != nil {
		return Entry{}, wrap("lookup", err)
	}
	return e, nil
}

// Stats returns the aggregate counts.
func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	s, err := r.store.Stats(ctx)
	if err != nil {
		return Stats{}, wrap("stats", err)
	}
	return s, nil
}

// VerifyChain reports whether every persisted entry carries an integrity
// hash. It does not recompute hashes.
func (r *Registry) VerifyChain(ctx context.Context) (ChainStatus, error) {
	total, sealed, err := r.store.SealCounts(ctx)
	if err != nil {
		return ChainStatus{}, wrap("verify chain", err)
	}
	return ChainStatus{Total: total, Sealed: sealed, Complete: sealed == total}, nil
}
