package engine

import (
	"context"
	"time"

	"github.com/roach88/invsync/internal/command"
	"github.com/roach88/invsync/internal/inventory"
)

// SendRequest is one command handed to the Transport.
type SendRequest struct {
	ID      string
	Command command.Command
	// SyncedAt is the authority version the command was built on: the
	// checkpoint, or the version returned by the previous acknowledgment.
	SyncedAt int64
}

// SendResult acknowledges a command.
type SendResult struct {
	SyncedAt int64
}

// Transport sends one command to the authority. The engine never calls Send
// concurrently. Any returned error is a failed send.
type Transport interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// Snapshot is a complete authoritative state.
type Snapshot struct {
	Inventory *inventory.Inventory
	SyncedAt  int64
}

// Resyncer fetches authoritative snapshots.
type Resyncer interface {
	FetchSnapshot(ctx context.Context) (Snapshot, error)
}

// Entry is one queued command.
type Entry struct {
	ID         string
	Seq        int64
	Command    command.Command
	EnqueuedAt time.Time
}
