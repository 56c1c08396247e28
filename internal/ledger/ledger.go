package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/windi/internal/canon"
	"github.com/roach88/windi/internal/clock"
	"github.com/roach88/windi/internal/ident"
	"github.com/roach88/windi/internal/metrics"
)

// Store persists ledger entries.
//
// Implementations must reject an Insert whose PrevHash is not the hash of
// the last inserted entry (or Genesis for an empty chain) with
// ErrChainConflict. Append reads the tip, calls build with it and inserts
// the result as one step, serialized against every other writer of the same
// storage, including other processes. Read returns newest first; All returns
// insertion order.
type Store interface {
	Tip(ctx context.Context) (hash string, seq int64, err error)
	Insert(ctx context.Context, e Entry) error
	Append(ctx context.Context, build BuildFunc) (Entry, error)
	Read(ctx context.Context, f Filter) ([]Entry, error)
	All(ctx context.Context) ([]Entry, error)
}

// BuildFunc builds the entry that extends tip. tip is Genesis and seq is 0
// for an empty chain.
type BuildFunc func(tip string, seq int64) (Entry, error)

// Ledger is the append-only governance event log.
//
// Thread-safety: Append is serialized by the store; Read and VerifyChain go
// straight to the store and never wait on Append.
type Ledger struct {
	store   Store
	clock   clock.Clock
	ids     ident.Generator
	binding Binding
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the timestamp source.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithIDGenerator sets the event ID source.
func WithIDGenerator(g ident.Generator) Option {
	return func(l *Ledger) { l.ids = g }
}

// WithBinding sets the write binding checked by the locality gate.
func WithBinding(b Binding) Option {
	return func(l *Ledger) { l.binding = b }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics records appends and rejections.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New creates a ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		clock:   clock.System{},
		ids:     ident.UUIDv7Generator{},
		binding: InProcess,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Binding returns the write binding.
func (l *Ledger) Binding() Binding {
	return l.binding
}

// Check runs the append gates without writing anything.
func (l *Ledger) Check(ev Event) error {
	return Check(l.binding, ev)
}

// Append gates ev, links it to the current tip and persists it.
func (l *Ledger) Append(ctx context.Context, ev Event) (Receipt, error) {
	if err := l.Check(ev); err != nil {
		var iv *InvariantViolation
		if errors.As(err, &iv) {
			l.metrics.LedgerRejected(string(iv.Kind))
		}
		return Receipt{}, err
	}

	e, err := l.store.Append(ctx, func(tip string, seq int64) (Entry, error) {
		e := Entry{
			ID:        l.ids.Generate(),
			Seq:       seq + 1,
			Timestamp: clock.Stamp(l.clock),
			Actor:     ev.Actor,
			Action:    ev.Action,
			Payload:   ev.Payload.Clone(),
			PrevHash:  tip,
		}
		if e.Payload == nil {
			e.Payload = canon.Object{}
		}
		var err error
		e.Hash, err = ComputeHash(e)
		return e, err
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("append: %w", err)
	}

	l.metrics.LedgerAppended()
	l.logger.Debug("ledger append",
		"id", e.ID,
		"seq", e.Seq,
		"action", e.Action,
		"hash", e.Hash[:16])

	return Receipt{ID: e.ID, Hash: e.Hash, PrevHash: e.PrevHash}, nil
}

// Read returns entries matching f, newest first. The limit defaults to
// DefaultReadLimit and is capped at MaxReadLimit.
func (l *Ledger) Read(ctx context.Context, f Filter) ([]Entry, error) {
	entries, err := l.store.Read(ctx, f.normalized())
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return entries, nil
}

// ChainReport is the result of a full chain walk.
type ChainReport struct {
	Valid   bool   `json:"valid"`
	Length  int    `json:"length"`
	TipHash string `json:"tip_hash,omitempty"`

	// BrokenSeq is the first entry that fails verification.
	BrokenSeq int64  `json:"broken_seq,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// VerifyChain recomputes every entry hash and checks every prev_hash link.
// A broken chain is reported in the ChainReport; the error is reserved for
// storage failures.
func (l *Ledger) VerifyChain(ctx context.Context) (ChainReport, error) {
	entries, err := l.store.All(ctx)
	if err != nil {
		return ChainReport{}, fmt.Errorf("verify chain: %w", err)
	}
	return Walk(entries)
}

// Walk verifies entries given in insertion order.
func Walk(entries []Entry) (ChainReport, error) {
	report := ChainReport{Valid: true, Length: len(entries)}
	expected := Genesis
	for _, e := range entries {
		if e.PrevHash != expected {
			report.Valid = false
			report.BrokenSeq = e.Seq
			report.Reason = fmt.Sprintf("prev_hash %s does not link to %s", canon.Prefix(e.PrevHash, 16), canon.Prefix(expected, 16))
			return report, nil
		}
		computed, err := ComputeHash(e)
		if err != nil {
			return ChainReport{}, err
		}
		if computed != e.Hash {
			report.Valid = false
			report.BrokenSeq = e.Seq
			report.Reason = fmt.Sprintf("stored hash %s != computed %s", canon.Prefix(e.Hash, 16), canon.Prefix(computed, 16))
			return report, nil
		}
		expected = e.Hash
	}
	if len(entries) > 0 {
		report.TipHash = expected
	}
	return report, nil
}
