// Package authority is the reference server that holds ground-truth
// inventories. It accepts SyncRequests only when they build on the current
// version and serves full snapshots for resync.
package authority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/ir"
	"github.com/roach88/invsync/internal/store"
	"github.com/roach88/invsync/internal/wire"
)

var (
	// ErrStale means the request was built on an outdated synced_at.
	ErrStale = errors.New("authority: stale synced_at")

	// ErrInvalid means the request could not be decoded into a command.
	ErrInvalid = errors.New("authority: invalid request")

	// ErrRejected means the command violates an inventory rule, or its id was
	// already used.
	ErrRejected = errors.New("authority: command rejected")
)

// Service applies commands against stored inventories.
type Service struct {
	store *store.Store
	rules inventory.Rules
}

// NewService creates a service over st. Stored and seeded inventories are
// decoded under rules.
func NewService(st *store.Store, rules inventory.Rules) *Service {
	return &Service{store: st, rules: rules}
}

// Rules returns the rules the service enforces.
func (s *Service) Rules() inventory.Rules { return s.rules }

// Snapshot returns the user's inventory and its version. A user with nothing
// stored has an empty inventory at 0.
func (s *Service) Snapshot(ctx context.Context, userID string) (*inventory.Inventory, int64, error) {
	snap, err := s.store.ReadInventory(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return inventory.Empty(s.rules), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: %w", err)
	}
	inv, err := inventory.Decode(snap.Data, s.rules)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot %q: %w", userID, err)
	}
	return inv, snap.SyncedAt, nil
}

// Apply validates and commits one command, returning the new synced_at.
func (s *Service) Apply(ctx context.Context, userID string, req wire.SyncRequest) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: missing user", ErrInvalid)
	}

	inv, current, err := s.Snapshot(ctx, userID)
	if err != nil {
		return 0, err
	}
	if req.SyncedAt != current {
		return 0, fmt.Errorf("%w: request at %d, authority at %d", ErrStale, req.SyncedAt, current)
	}

	cmd, err := req.Command()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	next, err := cmd.Apply(inv)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRejected, err)
	}

	data, err := next.Encode()
	if err != nil {
		return 0, fmt.Errorf("apply: %w", err)
	}
	args, err := ir.MarshalCanonical(cmd.Args())
	if err != nil {
		return 0, fmt.Errorf("apply: %w", err)
	}

	syncedAt, err := s.store.CommitCommand(ctx, current, data, store.CommandRecord{
		ID:     req.ID,
		UserID: userID,
		Action: string(cmd.Action()),
		Args:   string(args),
	})
	switch {
	case errors.Is(err, store.ErrStale):
		return 0, fmt.Errorf("%w: %w", ErrStale, err)
	case errors.Is(err, store.ErrDuplicate):
		return 0, fmt.Errorf("%w: %w", ErrRejected, err)
	case err != nil:
		return 0, fmt.Errorf("apply: %w", err)
	}

	slog.Debug("command committed",
		"user_id", userID,
		"command_id", req.ID,
		"action", cmd.Action(),
		"synced_at", syncedAt,
	)
	return syncedAt, nil
}

// Seed replaces the user's inventory and advances its version.
func (s *Service) Seed(ctx context.Context, userID string, inv *inventory.Inventory) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: missing user", ErrInvalid)
	}
	data, err := inv.Encode()
	if err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	syncedAt, err := s.store.ResetInventory(ctx, userID, data)
	if err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	slog.Info("inventory seeded", "user_id", userID, "items", inv.Len(), "synced_at", syncedAt)
	return syncedAt, nil
}

// Log returns the user's accepted commands in commit order.
func (s *Service) Log(ctx context.Context, userID string) ([]store.CommandRecord, error) {
	return s.store.ReadCommands(ctx, userID)
}
