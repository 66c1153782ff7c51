// Package store provides SQLite-backed durable storage for the authority.
//
// The store holds two tables:
//   - inventories: one row per user with the current snapshot and its synced_at
//   - commands: append-only log of every command the authority accepted
//
// # Critical Patterns
//
// Optimistic commits:
//   - CommitCommand updates WHERE synced_at = base and fails with ErrStale
//     when another writer got there first
//   - the snapshot update and the log append happen in one transaction
//
// Idempotent command ids:
//   - commands.id is UNIQUE; a replayed id fails with ErrDuplicate and
//     nothing is written
//
// Deterministic reads:
//   - log queries use ORDER BY seq ASC, id ASC COLLATE BINARY
//
// Snapshot blobs are zstd-compressed. The store never decodes them; callers
// own the encoding.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
