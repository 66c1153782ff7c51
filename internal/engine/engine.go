package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/invsync/internal/command"
	"github.com/roach88/invsync/internal/inventory"
)

// Defaults for engine tuning.
const (
	// DefaultSendTimeout bounds one Transport.Send so the engine cannot stay
	// Transmitting forever.
	DefaultSendTimeout = 15 * time.Second

	// DefaultResyncTimeout bounds one FetchSnapshot attempt.
	DefaultResyncTimeout = 15 * time.Second

	// DefaultResyncAttempts is how many fetches one recovery makes before
	// waiting for an explicit Resync.
	DefaultResyncAttempts = 3
)

// Engine is the inventory sync engine.
//
// Thread-safety model:
//   - Dispatch, Resync, Replica, Status, On, Off: safe from any goroutine
//   - Run: exactly one goroutine at a time (ErrAlreadyRunning otherwise)
//
// INVARIANTS:
//   - The queue is FIFO and never reordered
//   - At most one Send or FetchSnapshot is outstanding
//   - The replica is only ever replaced whole
//   - syncedAt moves only on a full drain or a successful resync
type Engine struct {
	transport Transport
	resyncer  Resyncer
	ids       IDGenerator
	clock     *Clock
	bus       *bus
	now       func() time.Time

	sendTimeout    time.Duration
	resyncTimeout  time.Duration
	resyncAttempts uint
	backOff        backoff.BackOff

	replica  atomic.Pointer[inventory.Inventory]
	syncedAt atomic.Int64

	mu    sync.Mutex
	state State
	queue *fifo[Entry]
	// cursor is the authority version the next send builds on.
	cursor    int64
	inflight  bool
	resyncing bool
	lastErr   error
	running   bool
	// changed is closed and replaced on every observable change.
	changed chan struct{}

	stopped  chan struct{}
	stopOnce sync.Once
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSendTimeout sets the per-command transmission timeout.
func WithSendTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.sendTimeout = d }
}

// WithResyncTimeout sets the per-attempt snapshot fetch timeout.
func WithResyncTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.resyncTimeout = d }
}

// WithResyncAttempts sets how many fetch attempts one recovery makes.
// Values below 1 are treated as 1.
func WithResyncAttempts(n int) EngineOption {
	return func(e *Engine) { e.resyncAttempts = uint(max(n, 1)) }
}

// WithBackOff sets the delay policy between fetch attempts.
// Use &backoff.ZeroBackOff{} in tests.
func WithBackOff(b backoff.BackOff) EngineOption {
	return func(e *Engine) { e.backOff = b }
}

// WithIDGenerator sets the command id source.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// WithNow sets the wall clock used for EnqueuedAt and event timestamps.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine whose replica starts at initial.
// A nil initial inventory is treated as empty under the default rules.
func New(initial Snapshot, transport Transport, resyncer Resyncer, opts ...EngineOption) *Engine {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.MaxInterval = 5 * time.Second

	e := &Engine{
		transport:      transport,
		resyncer:       resyncer,
		ids:            UUIDv7Generator{},
		clock:          NewClock(),
		bus:            newBus(),
		now:            time.Now,
		sendTimeout:    DefaultSendTimeout,
		resyncTimeout:  DefaultResyncTimeout,
		resyncAttempts: DefaultResyncAttempts,
		backOff:        exp,
		queue:          newFIFO[Entry](),
		cursor:         initial.SyncedAt,
		changed:        make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	inv := initial.Inventory
	if inv == nil {
		inv = inventory.Empty(inventory.DefaultRules())
	}
	e.replica.Store(inv)
	e.syncedAt.Store(initial.SyncedAt)
	return e
}

// Dispatch applies cmd to the replica and queues it for transmission.
//
// The replica reflects cmd before Dispatch returns. If cmd does not apply,
// a PRECONDITION *SyncError is returned and neither the replica nor the
// queue changes. While Recovering, cmd still applies and queues. After a
// failed send it is discarded with the replica when the snapshot arrives;
// during a Resync started from Idle it is replayed onto the snapshot.
func (e *Engine) Dispatch(cmd command.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isStopped() {
		return ErrStopped
	}

	next, err := cmd.Apply(e.replica.Load())
	if err != nil {
		return &SyncError{
			Code:    ErrCodePrecondition,
			Message: "command does not apply to replica",
			Action:  string(cmd.Action()),
			Err:     err,
		}
	}

	entry := Entry{
		ID:         e.ids.Generate(),
		Seq:        e.clock.Next(),
		Command:    cmd,
		EnqueuedAt: e.now(),
	}
	e.replica.Store(next)
	e.queue.Push(entry)

	slog.Debug("command dispatched",
		"command_id", entry.ID,
		"action", string(cmd.Action()),
		"seq", entry.Seq,
		"state", e.state.String(),
		"pending", e.pendingLocked(),
	)

	if e.state == StateIdle {
		e.setStateLocked(StateTransmitting)
		e.emitLocked(EventSyncStart, nil)
	}
	e.notifyLocked()
	return nil
}

// Run is the transmission worker. It blocks until ctx is cancelled or Stop
// is called. If the engine is Recovering without a fetch in flight when Run
// starts, recovery is attempted first.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.isStopped() {
		e.mu.Unlock()
		return ErrStopped
	}
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	pendingRecovery := e.state == StateRecovering && !e.resyncing
	if pendingRecovery {
		e.resyncing = true
		e.notifyLocked()
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	slog.Info("sync engine starting", "synced_at", e.syncedAt.Load())

	if pendingRecovery {
		_ = e.recover(ctx, false)
	}

	for {
		if err := e.drain(ctx); err != nil {
			slog.Info("sync engine stopping: context cancelled")
			return err
		}

		select {
		case <-ctx.Done():
			slog.Info("sync engine stopping: context cancelled")
			return ctx.Err()
		case <-e.stopped:
			slog.Info("sync engine stopping: stopped")
			return nil
		case <-e.queue.Wait():
		}
	}
}

// drain sends queued commands while the engine is Transmitting.
// Returns a non-nil error only when ctx ends mid-send.
func (e *Engine) drain(ctx context.Context) error {
	for {
		e.mu.Lock()
		if e.state != StateTransmitting || e.isStopped() {
			e.mu.Unlock()
			return nil
		}

		entry, ok := e.queue.TryPop()
		if !ok {
			e.syncedAt.Store(e.cursor)
			e.setStateLocked(StateIdle)
			e.emitLocked(EventSyncEnd, nil)
			e.notifyLocked()
			e.mu.Unlock()
			return nil
		}
		base := e.cursor
		e.inflight = true
		e.notifyLocked()
		e.mu.Unlock()

		res, err := e.send(ctx, entry, base)

		e.mu.Lock()
		e.inflight = false
		if err == nil {
			e.cursor = res.SyncedAt
			e.notifyLocked()
			e.mu.Unlock()
			slog.Debug("command acknowledged",
				"command_id", entry.ID,
				"action", string(entry.Command.Action()),
				"synced_at", res.SyncedAt,
			)
			continue
		}

		if ctx.Err() != nil {
			// Run is shutting down, not failing. The entry goes back to the
			// head with its id and base so the next Run resends it.
			e.queue.PushFront(entry)
			e.notifyLocked()
			e.mu.Unlock()
			slog.Info("send interrupted, command kept at queue head",
				"command_id", entry.ID,
				"action", string(entry.Command.Action()),
			)
			return ctx.Err()
		}
		e.failLocked(entry, err)
		e.mu.Unlock()

		_ = e.recover(ctx, false)
		return nil
	}
}

func (e *Engine) send(ctx context.Context, entry Entry, base int64) (SendResult, error) {
	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	slog.Debug("sending command",
		"command_id", entry.ID,
		"action", string(entry.Command.Action()),
		"synced_at", base,
	)
	return e.transport.Send(sendCtx, SendRequest{ID: entry.ID, Command: entry.Command, SyncedAt: base})
}

// failLocked drops every unacknowledged command and enters Recovering.
// CRITICAL: Caller must hold e.mu.
func (e *Engine) failLocked(entry Entry, err error) {
	dropped := e.queue.Clear()
	se := &SyncError{
		Code:      classify(err),
		Message:   "send failed",
		CommandID: entry.ID,
		Action:    string(entry.Command.Action()),
		Dropped:   len(dropped) + 1,
		Err:       err,
	}
	e.lastErr = se
	e.resyncing = true

	slog.Warn("send failed, entering recovery",
		"command_id", entry.ID,
		"action", se.Action,
		"code", string(se.Code),
		"dropped", se.Dropped,
		"error", err,
	)

	e.setStateLocked(StateRecovering)
	e.emitLocked(EventSyncError, se)
	e.notifyLocked()
}

// Stop ends Run and rejects further dispatches. Commands still queued are
// abandoned. Already emitted events are delivered before Stop returns.
// Must not be called from an event handler.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		close(e.stopped)
		e.notifyLocked()
		e.mu.Unlock()

		e.bus.close()
		slog.Info("sync engine stopped")
	})
}

// Replica returns the current replica. It never blocks.
func (e *Engine) Replica() *inventory.Inventory {
	return e.replica.Load()
}

// SyncedAt returns the last checkpoint at which replica and authority were
// known to agree. It never blocks.
func (e *Engine) SyncedAt() int64 {
	return e.syncedAt.Load()
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pending returns the number of unacknowledged commands, including the one
// in flight.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingLocked()
}

// Status returns a consistent snapshot of the engine's bookkeeping.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// WaitFor blocks until pred holds for the engine status, ctx ends or the
// engine stops. It returns the status pred accepted.
func (e *Engine) WaitFor(ctx context.Context, pred func(Status) bool) (Status, error) {
	for {
		e.mu.Lock()
		st := e.statusLocked()
		ch := e.changed
		e.mu.Unlock()

		if pred(st) {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-e.stopped:
			return st, ErrStopped
		case <-ch:
		}
	}
}

// WaitIdle blocks until the engine is Idle with an empty queue.
func (e *Engine) WaitIdle(ctx context.Context) error {
	_, err := e.WaitFor(ctx, func(s Status) bool {
		return s.State == StateIdle && s.Pending == 0
	})
	return err
}

// WaitSettled blocks until the engine has nothing left to do on its own.
// See Status.Settled.
func (e *Engine) WaitSettled(ctx context.Context) (Status, error) {
	return e.WaitFor(ctx, Status.Settled)
}

// On subscribes h to events of kind, or to all kinds with EventAll.
// Handlers run on a goroutine owned by the subscription.
func (e *Engine) On(kind EventKind, h Handler) (SubscriptionID, error) {
	switch kind {
	case EventSyncStart, EventSyncEnd, EventSyncError, EventAll:
	default:
		return 0, fmt.Errorf("unknown event kind %q", kind)
	}
	id := e.bus.subscribe(kind, h)
	if id == 0 {
		return 0, ErrStopped
	}
	return id, nil
}

// Off cancels a subscription. Events not yet delivered to it are dropped.
func (e *Engine) Off(id SubscriptionID) bool {
	return e.bus.unsubscribe(id)
}

func (e *Engine) isStopped() bool {
	select {
	case <-e.stopped:
		return true
	default:
		return false
	}
}

func (e *Engine) pendingLocked() int {
	n := e.queue.Len()
	if e.inflight {
		n++
	}
	return n
}

func (e *Engine) statusLocked() Status {
	return Status{
		State:     e.state,
		Pending:   e.pendingLocked(),
		Resyncing: e.resyncing,
		LastErr:   e.lastErr,
		SyncedAt:  e.syncedAt.Load(),
	}
}

// CRITICAL: Caller must hold e.mu.
func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	slog.Info("sync state changed",
		"from", e.state.String(),
		"state", s.String(),
		"pending", e.pendingLocked(),
		"synced_at", e.syncedAt.Load(),
	)
	e.state = s
}

// CRITICAL: Caller must hold e.mu.
func (e *Engine) emitLocked(kind EventKind, err error) {
	e.bus.publish(Event{
		Kind:    kind,
		Seq:     e.clock.Next(),
		At:      e.now(),
		Pending: e.pendingLocked(),
		Err:     err,
	})
}

// CRITICAL: Caller must hold e.mu.
func (e *Engine) notifyLocked() {
	close(e.changed)
	e.changed = make(chan struct{})
}
