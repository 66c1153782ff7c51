package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/invsync/internal/command"
	"github.com/roach88/invsync/internal/engine"
	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/ir"
)

// ErrInjected is the default error returned by injected failures.
var ErrInjected = errors.New("injected failure")

// RejectedError is returned when the fake authority refuses a command.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return "rejected: " + e.Reason }

// Rejected marks the error as a server verdict.
func (e *RejectedError) Rejected() bool { return true }

// SentCommand records one Send call.
type SentCommand struct {
	ID       string
	Action   command.Action
	Args     ir.IRObject
	SyncedAt int64
	OK       bool
}

type sendFailure struct {
	err error
	// applied simulates a lost acknowledgment: the authority commits the
	// command and the response never reaches the client.
	applied bool
}

// FakeRemote is an in-memory authority implementing engine.Transport and
// engine.Resyncer.
//
// It applies commands to its own inventory exactly as a real authority
// would, so tests can compare replica and authority after a run. Failures
// are injected by 1-based call index. A concurrency probe records the peak
// number of overlapping Send and FetchSnapshot calls.
type FakeRemote struct {
	mu            sync.Mutex
	inv           *inventory.Inventory
	syncedAt      int64
	sendCalls     int
	fetchCalls    int
	sendFailures  map[int]sendFailure
	fetchFailures int
	sent          []SentCommand
	gate          chan struct{}

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

var (
	_ engine.Transport = (*FakeRemote)(nil)
	_ engine.Resyncer  = (*FakeRemote)(nil)
)

// NewFakeRemote creates an authority holding inv at synced_at 0.
func NewFakeRemote(inv *inventory.Inventory) *FakeRemote {
	return &FakeRemote{inv: inv, sendFailures: map[int]sendFailure{}}
}

// Snapshot returns the current authoritative state.
func (f *FakeRemote) Snapshot() engine.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Snapshot{Inventory: f.inv, SyncedAt: f.syncedAt}
}

// SetState replaces the authoritative state, as another session would.
func (f *FakeRemote) SetState(inv *inventory.Inventory, syncedAt int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inv = inv
	f.syncedAt = syncedAt
}

// FailSend makes the call-th Send return err (ErrInjected when nil) without
// applying the command.
func (f *FakeRemote) FailSend(call int, err error) {
	f.failSend(call, err, false)
}

// FailSendAfterApply makes the call-th Send apply the command and then
// return err, as when the response is lost in transit.
func (f *FakeRemote) FailSendAfterApply(call int, err error) {
	f.failSend(call, err, true)
}

func (f *FakeRemote) failSend(call int, err error, applied bool) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendFailures[call] = sendFailure{err: err, applied: applied}
}

// FailFetches makes the next n FetchSnapshot calls fail.
func (f *FakeRemote) FailFetches(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchFailures = n
}

// Hold makes every Send block until Release provides a token.
func (f *FakeRemote) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release lets one held Send proceed. It blocks until a Send takes it.
func (f *FakeRemote) Release() {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
	}
}

// Send implements engine.Transport.
func (f *FakeRemote) Send(ctx context.Context, req engine.SendRequest) (engine.SendResult, error) {
	defer f.enter()()

	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return engine.SendResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sendCalls++
	record := SentCommand{
		ID:       req.ID,
		Action:   req.Command.Action(),
		Args:     req.Command.Args(),
		SyncedAt: req.SyncedAt,
	}

	failure, inject := f.sendFailures[f.sendCalls]
	if inject && !failure.applied {
		f.sent = append(f.sent, record)
		return engine.SendResult{}, failure.err
	}

	if req.SyncedAt != f.syncedAt {
		f.sent = append(f.sent, record)
		return engine.SendResult{}, &RejectedError{
			Reason: fmt.Sprintf("stale synced_at %d, authority at %d", req.SyncedAt, f.syncedAt),
		}
	}
	next, err := req.Command.Apply(f.inv)
	if err != nil {
		f.sent = append(f.sent, record)
		return engine.SendResult{}, &RejectedError{Reason: err.Error()}
	}
	f.inv = next
	f.syncedAt++

	if inject {
		f.sent = append(f.sent, record)
		return engine.SendResult{}, failure.err
	}
	record.OK = true
	f.sent = append(f.sent, record)
	return engine.SendResult{SyncedAt: f.syncedAt}, nil
}

// FetchSnapshot implements engine.Resyncer.
func (f *FakeRemote) FetchSnapshot(ctx context.Context) (engine.Snapshot, error) {
	defer f.enter()()

	if err := ctx.Err(); err != nil {
		return engine.Snapshot{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	if f.fetchFailures > 0 {
		f.fetchFailures--
		return engine.Snapshot{}, ErrInjected
	}
	return engine.Snapshot{Inventory: f.inv, SyncedAt: f.syncedAt}, nil
}

// enter records one outstanding call and returns the matching exit.
func (f *FakeRemote) enter() func() {
	n := f.inflight.Add(1)
	for {
		peak := f.maxInflight.Load()
		if n <= peak || f.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}
	return func() { f.inflight.Add(-1) }
}

// Sent returns every Send call in order.
func (f *FakeRemote) Sent() []SentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentCommand, len(f.sent))
	copy(out, f.sent)
	return out
}

// SendCalls returns the number of Send calls that passed the gate.
func (f *FakeRemote) SendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

// FetchCalls returns the number of FetchSnapshot calls.
func (f *FakeRemote) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// MaxInflight returns the peak number of overlapping calls observed.
func (f *FakeRemote) MaxInflight() int {
	return int(f.maxInflight.Load())
}

// Inflight returns the number of calls outstanding right now, including
// Sends waiting at the gate.
func (f *FakeRemote) Inflight() int {
	return int(f.inflight.Load())
}
