// Package engine implements the inventory sync engine.
//
// The engine keeps a client-held inventory replica consistent with the
// authority while the user issues rapid optimistic mutations.
//
// ARCHITECTURE:
//
// Two-Phase Dispatch:
// Dispatch applies the command to the replica synchronously and appends it
// to the command queue. Transmission happens later, on the Run goroutine.
// The replica reflects the command before Dispatch returns.
//
// Single Transmission Worker:
// Run is the only caller of Transport.Send and, during automatic recovery,
// of Resyncer.FetchSnapshot. At most one of those calls is outstanding at any
// time. Commands are sent strictly in dispatch order, one at a time.
//
// State Machine:
//
//	Idle         --Dispatch-->          Transmitting   (emit sync-start)
//	Transmitting --queue drained-->     Idle           (emit sync-end)
//	Transmitting --send failed-->       Recovering     (emit sync-error)
//	Recovering   --snapshot fetched-->  Idle
//	Recovering   --fetch failed-->      Recovering     (wait for Resync)
//	Idle         --Resync-->            Recovering
//	Recovering   --replay queued-->     Transmitting   (emit sync-start)
//
// A Resync started from Idle keeps commands dispatched during its fetch and
// replays them onto the snapshot. After a failed send they are dropped.
// A send interrupted by Run's context stays at the queue head for the next
// Run; only a send that fails on its own enters Recovering.
//
// A failed send is never retried. Commands are not idempotent, so the only
// safe remedy is to drop every unacknowledged command and replace the replica
// with an authoritative snapshot.
//
// CRITICAL PATTERNS:
//
// Atomic Replica:
// The replica is an immutable *inventory.Inventory behind atomic.Pointer.
// Readers never block and never observe a partially updated replica.
//
// Non-Blocking Events:
// Lifecycle events are fanned out through per-subscriber mailboxes. A slow
// or panicking observer cannot stall the state machine.
package engine
