package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/windi/internal/registry"
)

// RegistryStore implements registry.Store on SQLite.
type RegistryStore struct {
	db *sql.DB
}

var _ registry.Store = (*RegistryStore)(nil)

const submissionColumns = `submission_id, document_id, record_id, profile_id, document_type,
	governance_level, policy_version, config_hash, integrity_hash, structural_hash,
	reporting_entity, reference_period, registered_at, verified_count`

// Increment atomically bumps the counter for (namespace, key) and returns
// the new value.
func (s *RegistryStore) Increment(ctx context.Context, namespace, key string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (namespace, key, count) VALUES (?, ?, 1)
		ON CONFLICT(namespace, key) DO UPDATE SET count = count + 1
		RETURNING count
	`, namespace, key).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: increment counter: %v", registry.ErrUnavailable, err)
	}
	return n, nil
}

// Insert persists e and updates the statistics in one transaction.
func (s *RegistryStore) Insert(ctx context.Context, e registry.Entry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO submissions
			(submission_id, document_id, record_id, profile_id, document_type,
			 governance_level, policy_version, config_hash, integrity_hash, structural_hash,
			 reporting_entity, entity_folded, reference_period, registered_at, verified_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		`,
			e.SubmissionID,
			e.DocumentID,
			e.RecordID,
			e.ProfileID,
			e.DocumentType,
			e.GovernanceLevel,
			e.PolicyVersion,
			e.ConfigHash,
			e.IntegrityHash,
			e.StructuralHash,
			e.ReportingEntity,
			registry.Fold(e.ReportingEntity),
			e.ReferencePeriod,
			e.RegisteredAt,
		)
		if isConstraint(err) {
			return fmt.Errorf("%w: %s", registry.ErrDuplicate, e.SubmissionID)
		}
		if err != nil {
			return fmt.Errorf("%w: insert submission: %v", registry.ErrUnavailable, err)
		}

		buckets := [][2]string{
			{"total", ""},
			{"level", e.GovernanceLevel},
			{"entity", e.StatsKey()},
		}
		for _, b := range buckets {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO submission_stats (dimension, bucket, count) VALUES (?, ?, 1)
				ON CONFLICT(dimension, bucket) DO UPDATE SET count = count + 1
			`, b[0], b[1]); err != nil {
				return fmt.Errorf("%w: update stats: %v", registry.ErrUnavailable, err)
			}
		}
		return nil
	})
}

// Get returns the submission with the given ID.
func (s *RegistryStore) Get(ctx context.Context, submissionID string) (registry.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions WHERE submission_id = ?
	`, submissionID)
	e, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Entry{}, fmt.Errorf("%w: %s", registry.ErrNotFound, submissionID)
	}
	if err != nil {
		return registry.Entry{}, err
	}
	return e, nil
}

// MarkVerified increments verified_count and returns the updated entry.
func (s *RegistryStore) MarkVerified(ctx context.Context, submissionID string) (registry.Entry, error) {
	var e registry.Entry
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE submissions SET verified_count = verified_count + 1
			WHERE submission_id = ?
		`, submissionID)
		if err != nil {
			return fmt.Errorf("%w: mark verified: %v", registry.ErrUnavailable, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: mark verified: %v", registry.ErrUnavailable, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", registry.ErrNotFound, submissionID)
		}

		e, err = scanSubmission(tx.QueryRowContext(ctx, `
			SELECT `+submissionColumns+`
			FROM submissions WHERE submission_id = ?
		`, submissionID))
		return err
	})
	if err != nil {
		return registry.Entry{}, err
	}
	return e, nil
}

// Query returns entries matching q, newest first. Ties on registered_at
// fall back to insertion order.
func (s *RegistryStore) Query(ctx context.Context, q registry.Query) ([]registry.Entry, error) {
	var (
		conds []string
		args  []any
	)
	if q.Level != "" {
		conds = append(conds, "governance_level = ?")
		args = append(args, q.Level)
	}
	switch {
	case q.Entity != "" && q.ExactEntity:
		conds = append(conds, "entity_folded = ?")
		args = append(args, registry.Fold(q.Entity))
	case q.Entity != "":
		conds = append(conds, "instr(entity_folded, ?) > 0")
		args = append(args, registry.Fold(q.Entity))
	}
	if q.After != "" {
		conds = append(conds, "registered_at >= ?")
		args = append(args, q.After)
	}
	if q.Before != "" {
		conds = append(conds, "registered_at <= ?")
		args = append(args, q.Before)
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY registered_at DESC, rowid DESC"
	if q.Limit > 0 || q.Offset > 0 {
		// SQLite reads a negative LIMIT as unbounded.
		query += " LIMIT ? OFFSET ?"
		args = append(args, cmp.Or(q.Limit, -1), q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query submissions: %v", registry.ErrUnavailable, err)
	}
	defer rows.Close()

	entries := []registry.Entry{}
	for rows.Next() {
		e, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate submissions: %v", registry.ErrUnavailable, err)
	}
	return entries, nil
}

// Stats returns the aggregate counts.
func (s *RegistryStore) Stats(ctx context.Context) (registry.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dimension, bucket, count FROM submission_stats
	`)
	if err != nil {
		return registry.Stats{}, fmt.Errorf("%w: query stats: %v", registry.ErrUnavailable, err)
	}
	defer rows.Close()

	st := registry.NewStats()
	for rows.Next() {
		var dimension, bucket string
		var count int
		if err := rows.Scan(&dimension, &bucket, &count); err != nil {
			return registry.Stats{}, fmt.Errorf("%w: scan stats: %v", registry.ErrCorrupt, err)
		}
		switch dimension {
		case "total":
			st.Total = count
		case "level":
			st.ByLevel[bucket] = count
		case "entity":
			st.ByEntity[bucket] = count
		default:
			return registry.Stats{}, fmt.Errorf("%w: unknown stats dimension %q", registry.ErrCorrupt, dimension)
		}
	}
	if err := rows.Err(); err != nil {
		return registry.Stats{}, fmt.Errorf("%w: iterate stats: %v", registry.ErrUnavailable, err)
	}
	return st, nil
}

// SealCounts returns the number of submissions and how many carry an
// integrity hash.
func (s *RegistryStore) SealCounts(ctx context.Context) (int, int, error) {
	var total, sealed int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN integrity_hash != '' THEN 1 ELSE 0 END), 0)
		FROM submissions
	`).Scan(&total, &sealed)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: count sealed: %v", registry.ErrUnavailable, err)
	}
	return total, sealed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (registry.Entry, error) {
	var e registry.Entry
	err := row.Scan(
		&e.SubmissionID, &e.DocumentID, &e.RecordID, &e.ProfileID, &e.DocumentType,
		&e.GovernanceLevel, &e.PolicyVersion, &e.ConfigHash, &e.IntegrityHash, &e.StructuralHash,
		&e.ReportingEntity, &e.ReferencePeriod, &e.RegisteredAt, &e.VerifiedCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Entry{}, err
	}
	if err != nil {
		return registry.Entry{}, fmt.Errorf("%w: scan submission: %v", registry.ErrCorrupt, err)
	}
	return e, nil
}
