package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Snapshot is a stored inventory encoding at a version.
type Snapshot struct {
	UserID   string
	SyncedAt int64
	Data     []byte
}

// CommandRecord is one entry of the command log.
type CommandRecord struct {
	Seq      int64
	ID       string
	UserID   string
	Action   string
	Args     string
	SyncedAt int64 // version produced by the command
}

// ReadInventory returns the stored snapshot for userID, or ErrNotFound.
func (s *Store) ReadInventory(ctx context.Context, userID string) (Snapshot, error) {
	var (
		syncedAt int64
		blob     []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT synced_at, data FROM inventories WHERE user_id = ?
	`, userID).Scan(&syncedAt, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("read inventory %q: %w", userID, ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read inventory %q: %w", userID, err)
	}

	data, err := decompress(blob)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read inventory %q: %w", userID, err)
	}
	return Snapshot{UserID: userID, SyncedAt: syncedAt, Data: data}, nil
}

// CommitCommand stores data as the user's inventory at base+1 and appends cmd
// to the log, atomically. base must equal the stored synced_at, or 0 for a
// user with no row yet. cmd.SyncedAt is ignored and set to base+1.
func (s *Store) CommitCommand(ctx context.Context, base int64, data []byte, cmd CommandRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("commit command: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM commands WHERE id = ?`, cmd.ID).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("commit command: %w", err)
	}
	if exists > 0 {
		return 0, fmt.Errorf("commit command %q: %w", cmd.ID, ErrDuplicate)
	}

	next := base + 1
	blob := compress(data)

	res, err := tx.ExecContext(ctx, `
		UPDATE inventories SET data = ?, synced_at = ?
		WHERE user_id = ? AND synced_at = ?
	`, blob, next, cmd.UserID, base)
	if err != nil {
		return 0, fmt.Errorf("commit command: update inventory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("commit command: %w", err)
	}
	if n == 0 {
		if base != 0 {
			return 0, fmt.Errorf("commit command at %d: %w", base, ErrStale)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventories (user_id, synced_at, data) VALUES (?, ?, ?)
		`, cmd.UserID, next, blob)
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("commit command at %d: %w", base, ErrStale)
		}
		if err != nil {
			return 0, fmt.Errorf("commit command: insert inventory: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO commands (id, user_id, action, args, synced_at)
		VALUES (?, ?, ?, ?, ?)
	`, cmd.ID, cmd.UserID, cmd.Action, cmd.Args, next)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("commit command %q: %w", cmd.ID, ErrDuplicate)
	}
	if err != nil {
		return 0, fmt.Errorf("commit command: append log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit command: %w", err)
	}
	return next, nil
}

// ResetInventory replaces the user's inventory outside the command log. The
// version still advances so replicas built on the old one become stale; a
// new user starts at 1.
func (s *Store) ResetInventory(ctx context.Context, userID string, data []byte) (int64, error) {
	var syncedAt int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO inventories (user_id, synced_at, data) VALUES (?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			data = excluded.data,
			synced_at = inventories.synced_at + 1
		RETURNING synced_at
	`, userID, compress(data)).Scan(&syncedAt)
	if err != nil {
		return 0, fmt.Errorf("reset inventory %q: %w", userID, err)
	}
	return syncedAt, nil
}

// ReadCommands returns the user's command log in commit order.
func (s *Store) ReadCommands(ctx context.Context, userID string) ([]CommandRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, user_id, action, args, synced_at
		FROM commands
		WHERE user_id = ?
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var r CommandRecord
		if err := rows.Scan(&r.Seq, &r.ID, &r.UserID, &r.Action, &r.Args, &r.SyncedAt); err != nil {
			return nil, fmt.Errorf("read commands: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	return out, nil
}
