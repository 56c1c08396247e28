package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/windi/internal/ledger"
)

// LedgerStore implements ledger.Store on SQLite.
type LedgerStore struct {
	db *sql.DB
}

var _ ledger.Store = (*LedgerStore)(nil)

// Tip returns the hash and seq of the newest entry, or "" and 0 for an
// empty chain.
func (s *LedgerStore) Tip(ctx context.Context) (string, int64, error) {
	return tip(ctx, s.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tip(ctx context.Context, q queryRower) (string, int64, error) {
	var hash string
	var seq int64
	err := q.QueryRowContext(ctx, `
		SELECT hash, seq FROM ledger_entries ORDER BY seq DESC LIMIT 1
	`).Scan(&hash, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("read tip: %w", err)
	}
	return hash, seq, nil
}

// Insert appends e. The tip check and the insert run in one transaction;
// an entry that does not extend the tip fails with ledger.ErrChainConflict.
func (s *LedgerStore) Insert(ctx context.Context, e ledger.Entry) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return insertEntry(ctx, tx, e)
	})
}

// Append reads the tip, builds the entry and inserts it in one IMMEDIATE
// transaction. The write lock is taken before the tip is read, so writers
// on other connections or processes wait for it instead of racing.
func (s *LedgerStore) Append(ctx context.Context, build ledger.BuildFunc) (ledger.Entry, error) {
	var e ledger.Entry
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		current, seq, err := tip(ctx, tx)
		if err != nil {
			return err
		}
		if current == "" {
			current = ledger.Genesis
		}
		if e, err = build(current, seq); err != nil {
			return err
		}
		return insertEntry(ctx, tx, e)
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e ledger.Entry) error {
	payloadJSON, err := marshalPayload(e.Payload)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}

	current, _, err := tip(ctx, tx)
	if err != nil {
		return err
	}
	if current == "" {
		current = ledger.Genesis
	}
	if e.PrevHash != current {
		return ledger.ErrChainConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(seq, id, timestamp, actor, action, payload, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.Seq,
		e.ID,
		e.Timestamp,
		e.Actor,
		e.Action,
		payloadJSON,
		e.PrevHash,
		e.Hash,
	)
	if isConstraint(err) {
		return fmt.Errorf("insert ledger entry: %w: %v", ledger.ErrChainConflict, err)
	}
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// Read returns entries matching f, newest first.
func (s *LedgerStore) Read(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error) {
	var (
		conds []string
		args  []any
	)
	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, f.Action)
	}
	if f.Actor != "" {
		conds = append(conds, "actor = ?")
		args = append(args, f.Actor)
	}

	query := `SELECT seq, id, timestamp, actor, action, payload, prev_hash, hash FROM ledger_entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return s.queryEntries(ctx, query, args...)
}

// All returns every entry in insertion order.
func (s *LedgerStore) All(ctx context.Context) ([]ledger.Entry, error) {
	return s.queryEntries(ctx, `
		SELECT seq, id, timestamp, actor, action, payload, prev_hash, hash
		FROM ledger_entries
		ORDER BY seq ASC
	`)
}

func (s *LedgerStore) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []ledger.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var e ledger.Entry
	var payloadJSON string
	if err := rows.Scan(
		&e.Seq, &e.ID, &e.Timestamp, &e.Actor, &e.Action,
		&payloadJSON, &e.PrevHash, &e.Hash,
	); err != nil {
		return ledger.Entry{}, fmt.Errorf("scan ledger entry: %w", err)
	}
	payload, err := unmarshalPayload(payloadJSON)
	if err != nil {
		return ledger.Entry{}, err
	}
	e.Payload = payload
	return e, nil
}
