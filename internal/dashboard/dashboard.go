// Package dashboard is the read-only audit view over the registry and the
// ledger. Nothing here mutates state; in particular Lookup does not count
// as a verification.
package dashboard

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/windi/internal/ledger"
	"github.com/roach88/windi/internal/registry"
)

// RecentCount is how many entries Overview returns.
const RecentCount = 5

// Dashboard composes registry and ledger queries.
type Dashboard struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithLedger includes ledger chain verification in Overview and
// IntegrityCheck.
func WithLedger(l *ledger.Ledger) Option {
	return func(d *Dashboard) { d.ledger = l }
}

// New creates a dashboard over reg.
func New(reg *registry.Registry, opts ...Option) *Dashboard {
	d := &Dashboard{registry: reg}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Overview is the landing summary.
type Overview struct {
	Stats  registry.Stats       `json:"stats"`
	Recent []registry.Entry     `json:"recent"`
	Chain  registry.ChainStatus `json:"chain"`
	Ledger *ledger.ChainReport  `json:"ledger,omitempty"`
}

// Overview gathers stats, the most recent entries and chain status in
// parallel.
func (d *Dashboard) Overview(ctx context.Context) (Overview, error) {
	g, ctx := errgroup.WithContext(ctx)
	var ov Overview

	g.Go(func() error {
		stats, err := d.registry.Stats(ctx)
		if err != nil {
			return err
		}
		ov.Stats = stats
		return nil
	})

	g.Go(func() error {
		recent, err := d.registry.Query(ctx, registry.Query{Limit: RecentCount})
		if err != nil {
			return err
		}
		ov.Recent = recent
		return nil
	})

	g.Go(func() error {
		chain, err := d.registry.VerifyChain(ctx)
		if err != nil {
			return err
		}
		ov.Chain = chain
		return nil
	})

	if d.ledger != nil {
		g.Go(func() error {
			report, err := d.ledger.VerifyChain(ctx)
			if err != nil {
				return err
			}
			ov.Ledger = &report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return ov, nil
}

// Lookup returns one submission without incrementing its verified count.
func (d *Dashboard) Lookup(ctx context.Context, submissionID string) (registry.Entry, error) {
	return d.registry.Get(ctx, submissionID)
}

// Search filters by level and entity substring, newest first.
func (d *Dashboard) Search(ctx context.Context, level, entity string, limit int) ([]registry.Entry, error) {
	return d.registry.Query(ctx, registry.Query{Level: level, Entity: entity, Limit: limit})
}

// EntityReport summarizes every submission of one reporting entity.
type EntityReport struct {
	Entity      string         `json:"entity"`
	Total       int            `json:"total"`
	ByLevel     map[string]int `json:"by_level"`
	Periods     []string       `json:"reporting_periods"`
	FirstSeen   string         `json:"first_submission,omitempty"`
	LatestSeen  string         `json:"latest_submission,omitempty"`
	Submissions []string       `json:"submissions"`
}

// EntityReport matches the entity name case-insensitively and exactly.
func (d *Dashboard) EntityReport(ctx context.Context, name string) (EntityReport, error) {
	report := EntityReport{
		Entity:      name,
		ByLevel:     map[string]int{},
		Periods:     []string{},
		Submissions: []string{},
	}
	if name == "" {
		return report, nil
	}

	// Pages newest first; an entry registered between pages shifts the
	// window, so IDs already counted are skipped.
	seen := map[string]bool{}
	q := registry.Query{Entity: name, ExactEntity: true, Limit: registry.MaxQueryLimit}
	for {
		page, err := d.registry.Query(ctx, q)
		if err != nil {
			return EntityReport{}, err
		}
		for _, e := range page {
			if seen[e.SubmissionID] {
				continue
			}
			seen[e.SubmissionID] = true
			report.add(e)
		}
		if len(page) < q.Limit {
			break
		}
		q.Offset += len(page)
	}
	slices.Sort(report.Periods)
	return report, nil
}

func (r *EntityReport) add(e registry.Entry) {
	r.Total++
	r.ByLevel[e.GovernanceLevel]++
	r.Submissions = append(r.Submissions, e.SubmissionID)
	if e.ReferencePeriod != "" && !slices.Contains(r.Periods, e.ReferencePeriod) {
		r.Periods = append(r.Periods, e.ReferencePeriod)
	}
	if r.FirstSeen == "" || e.RegisteredAt < r.FirstSeen {
		r.FirstSeen = e.RegisteredAt
	}
	if e.RegisteredAt > r.LatestSeen {
		r.LatestSeen = e.RegisteredAt
	}
}

// Integrity is the combined completeness and chain verdict.
type Integrity struct {
	Registry registry.ChainStatus `json:"registry"`
	Ledger   *ledger.ChainReport  `json:"ledger,omitempty"`
	Healthy  bool                 `json:"healthy"`
}

// IntegrityCheck wraps registry.VerifyChain and, when a ledger is attached,
// the full ledger walk.
func (d *Dashboard) IntegrityCheck(ctx context.Context) (Integrity, error) {
	status, err := d.registry.VerifyChain(ctx)
	if err != nil {
		return Integrity{}, err
	}
	out := Integrity{Registry: status, Healthy: status.Complete}
	if d.ledger != nil {
		report, err := d.ledger.VerifyChain(ctx)
		if err != nil {
			return Integrity{}, err
		}
		out.Ledger = &report
		out.Healthy = out.Healthy && report.Valid
	}
	return out, nil
}
