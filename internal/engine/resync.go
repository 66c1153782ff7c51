package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/invsync/internal/inventory"
)

var errEmptySnapshot = errors.New("snapshot has no inventory")

// Resync fetches a fresh snapshot and replaces the replica with it.
//
// It is the observer-triggered retry after a failed recovery, and may also be
// called from Idle to refresh the replica. From Idle no events are emitted
// unless commands were dispatched during the fetch: those are replayed onto
// the snapshot and transmitted against it. Returns ErrBusy while
// Transmitting or while another fetch is in flight.
// Calling Resync twice with no intervening dispatch yields equal replicas as
// long as the authority has not changed.
func (e *Engine) Resync(ctx context.Context) error {
	e.mu.Lock()
	if e.isStopped() {
		e.mu.Unlock()
		return ErrStopped
	}
	if e.state == StateTransmitting || e.resyncing {
		e.mu.Unlock()
		return ErrBusy
	}
	replay := e.state == StateIdle
	e.setStateLocked(StateRecovering)
	e.resyncing = true
	e.notifyLocked()
	e.mu.Unlock()

	return e.recover(ctx, replay)
}

// recover runs one recovery. The caller has already set Recovering and
// resyncing under e.mu.
//
// With replay, commands dispatched during the fetch are reapplied to the
// snapshot and drained. Otherwise recovery follows a failed send, whose
// sync-error already told observers the optimistic state is void, and they
// are discarded.
func (e *Engine) recover(ctx context.Context, replay bool) error {
	slog.Info("fetching snapshot", "attempts", e.resyncAttempts)

	snap, err := e.fetch(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.resyncing = false
	if err != nil {
		se := &SyncError{
			Code:    ErrCodeResyncFailed,
			Message: "snapshot fetch failed",
			Err:     err,
		}
		e.lastErr = se
		e.notifyLocked()
		slog.Error("resync failed, waiting for explicit resync", "error", err)
		return se
	}

	e.replica.Store(snap.Inventory)
	e.syncedAt.Store(snap.SyncedAt)
	e.cursor = snap.SyncedAt
	e.lastErr = nil
	e.setStateLocked(StateIdle)
	slog.Info("resync complete", "synced_at", snap.SyncedAt, "items", snap.Inventory.Len())

	if replay {
		e.replayLocked(snap.Inventory)
		e.notifyLocked()
		return nil
	}

	// Commands dispatched while recovering were applied to a replica that is
	// now discarded.
	if dropped := e.queue.Clear(); len(dropped) > 0 {
		slog.Warn("discarding commands dispatched during recovery",
			"count", len(dropped),
			"first_command_id", dropped[0].ID,
		)
	}
	e.notifyLocked()
	return nil
}

// replayLocked reapplies the queued commands to base and starts draining
// them. If one no longer applies, the whole queue is dropped and reported
// as a PRECONDITION sync-error; the replica stays at base.
// CRITICAL: Caller must hold e.mu.
func (e *Engine) replayLocked(base *inventory.Inventory) {
	queued := e.queue.Snapshot()
	if len(queued) == 0 {
		return
	}

	inv := base
	for _, entry := range queued {
		next, err := entry.Command.Apply(inv)
		if err != nil {
			dropped := e.queue.Clear()
			se := &SyncError{
				Code:      ErrCodePrecondition,
				Message:   "queued command does not apply to the fetched snapshot",
				CommandID: entry.ID,
				Action:    string(entry.Command.Action()),
				Dropped:   len(dropped),
				Err:       err,
			}
			slog.Warn("discarding commands after resync",
				"command_id", entry.ID,
				"action", se.Action,
				"dropped", se.Dropped,
				"error", err,
			)
			e.emitLocked(EventSyncError, se)
			return
		}
		inv = next
	}

	e.replica.Store(inv)
	e.setStateLocked(StateTransmitting)
	e.emitLocked(EventSyncStart, nil)
	e.queue.Signal()
	slog.Debug("replaying commands dispatched during resync", "count", len(queued))
}

// fetch retries FetchSnapshot with backoff, up to resyncAttempts times.
func (e *Engine) fetch(ctx context.Context) (Snapshot, error) {
	op := func() (Snapshot, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, e.resyncTimeout)
		defer cancel()

		snap, err := e.resyncer.FetchSnapshot(fetchCtx)
		if err != nil {
			return Snapshot{}, err
		}
		if snap.Inventory == nil {
			return Snapshot{}, backoff.Permanent(errEmptySnapshot)
		}
		return snap, nil
	}

	e.backOff.Reset()
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(e.backOff),
		backoff.WithMaxTries(e.resyncAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("snapshot fetch failed, retrying", "error", err, "retry_in", next)
		}),
	)
}
