// Package store provides SQLite-backed durable storage for the governance
// ledger and the submission registry.
//
// # Tables
//
//   - ledger_entries: hash-chained governance events (seq is insertion order)
//   - submissions: registered decisions, one row per submission ID
//   - submission_stats: aggregate counts by level and entity
//   - counters: daily submission ID counters per namespace
//
// # Guarantees
//
// Single writer:
//   - One open connection per Store, so its transactions are serialized
//   - Transactions begin IMMEDIATE, so Stores in other processes wait on
//     the write lock instead of failing
//   - The ledger tip read, entry build and insert share a transaction
//   - UNIQUE(prev_hash) rejects a second entry on the same predecessor
//
// Atomic increments:
//   - Counters use INSERT ... ON CONFLICT DO UPDATE ... RETURNING
//   - A submission row and its three stats updates commit together
//
// Deterministic reads:
//   - Ledger reads ORDER BY seq
//   - Registry reads ORDER BY registered_at DESC, rowid DESC
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Ledger payloads are stored as RFC 8785 canonical JSON (internal/canon), the
// same bytes the entry hash covers.
package store
