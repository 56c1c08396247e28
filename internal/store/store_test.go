package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"ledger_entries", "submissions", "submission_stats", "counters"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

// Pragma tests

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		if err := s.verifyPragma(tt.name, tt.expected); err != nil {
			t.Error(err)
		}
	}
}

// Schema tests

func TestSchema_LedgerEntriesTable(t *testing.T) {
	s := createTestStore(t)

	want := []string{"seq", "id", "timestamp", "actor", "action", "payload", "prev_hash", "hash"}
	got := getTableColumns(t, s.db, "ledger_entries")
	for _, col := range want {
		if !contains(got, col) {
			t.Errorf("ledger_entries missing column %q, got %v", col, got)
		}
	}
}

func TestSchema_SubmissionsTable(t *testing.T) {
	s := createTestStore(t)

	want := []string{
		"submission_id", "document_id", "governance_level", "policy_version",
		"config_hash", "integrity_hash", "reporting_entity", "entity_folded",
		"registered_at", "verified_count",
	}
	got := getTableColumns(t, s.db, "submissions")
	for _, col := range want {
		if !contains(got, col) {
			t.Errorf("submissions missing column %q, got %v", col, got)
		}
	}
}

func TestSchema_Indexes(t *testing.T) {
	s := createTestStore(t)

	ledgerIdx := getTableIndexes(t, s.db, "ledger_entries")
	for _, idx := range []string{"idx_ledger_action", "idx_ledger_actor"} {
		if !contains(ledgerIdx, idx) {
			t.Errorf("ledger_entries missing index %q, got %v", idx, ledgerIdx)
		}
	}

	subIdx := getTableIndexes(t, s.db, "submissions")
	for _, idx := range []string{"idx_submissions_registered", "idx_submissions_level", "idx_submissions_entity"} {
		if !contains(subIdx, idx) {
			t.Errorf("submissions missing index %q, got %v", idx, subIdx)
		}
	}
}

// Schema version tests

func TestSchemaVersion_Stamped(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestSchemaVersion_RejectsNewerDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion+1)); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	db.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected Open to refuse a newer schema version")
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"windi.db", "windi.db?_txlock=immediate&_busy_timeout=5000"},
		{":memory:", ":memory:?_txlock=immediate&_busy_timeout=5000"},
		{"file:windi.db?mode=rwc", "file:windi.db?mode=rwc&_txlock=immediate&_busy_timeout=5000"},
	}
	for _, tt := range tests {
		if got := dsn(tt.path); got != tt.want {
			t.Errorf("dsn(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

// Constraint tests

func TestConstraint_PrevHashUnique(t *testing.T) {
	s := createTestStore(t)

	insert := `INSERT INTO ledger_entries (seq, id, timestamp, actor, action, payload, prev_hash, hash)
		VALUES (?, ?, 't', 'a', 'x', '{}', ?, ?)`
	if _, err := s.db.Exec(insert, 1, "e1", "GENESIS", "h1"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	_, err := s.db.Exec(insert, 2, "e2", "GENESIS", "h2")
	if err == nil {
		t.Fatal("expected UNIQUE violation for second GENESIS entry")
	}
	if !isConstraint(err) {
		t.Errorf("expected constraint error, got %v", err)
	}
}
