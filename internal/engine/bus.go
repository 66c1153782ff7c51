package engine

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// EventKind names a lifecycle event.
type EventKind string

const (
	// EventSyncStart fires when the engine leaves Idle to transmit.
	EventSyncStart EventKind = "sync-start"
	// EventSyncEnd fires when the queue has drained and the engine is Idle.
	EventSyncEnd EventKind = "sync-end"
	// EventSyncError fires when a send fails and the engine enters Recovering.
	EventSyncError EventKind = "sync-error"

	// EventAll subscribes to every kind through one ordered mailbox.
	EventAll EventKind = "*"
)

// Event is one lifecycle notification.
type Event struct {
	Kind EventKind
	// Seq orders events across kinds.
	Seq int64
	At  time.Time
	// Pending is the queue length when the event was emitted.
	Pending int
	// Err is the *SyncError behind a sync-error event.
	Err error
}

// Handler receives events on the subscriber's own goroutine.
type Handler func(Event)

// SubscriptionID identifies a subscription for Off.
type SubscriptionID uint64

type subscriber struct {
	id      SubscriptionID
	kind    EventKind
	handler Handler
	mailbox *fifo[Event]
}

// bus fans events out to subscribers.
//
// Each subscriber owns an unbounded mailbox drained by a dedicated
// goroutine, so publish never waits on a handler. Events reach one
// subscriber in publish order.
type bus struct {
	mu     sync.Mutex
	nextID SubscriptionID
	subs   []*subscriber
	closed bool
	wg     sync.WaitGroup
}

func newBus() *bus {
	return &bus{}
}

// subscribe registers h for kind. Returns 0 if the bus is closed.
func (b *bus) subscribe(kind EventKind, h Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}
	b.nextID++
	s := &subscriber{id: b.nextID, kind: kind, handler: h, mailbox: newFIFO[Event]()}
	b.subs = append(b.subs, s)

	b.wg.Add(1)
	go b.deliver(s)
	return s.id
}

// unsubscribe drops pending events for id and stops its goroutine.
// It does not wait, so it is safe to call from inside a handler.
func (b *bus) unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := slices.IndexFunc(b.subs, func(s *subscriber) bool { return s.id == id })
	if idx < 0 {
		return false
	}
	s := b.subs[idx]
	b.subs = slices.Delete(b.subs, idx, idx+1)
	s.mailbox.Clear()
	s.mailbox.Close()
	return true
}

// publish queues ev for every matching subscriber.
func (b *bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.kind == EventAll || s.kind == ev.Kind {
			s.mailbox.Push(ev)
		}
	}
}

// close delivers what is already queued, then stops every subscriber
// goroutine and waits for them. Must not be called from a handler.
func (b *bus) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.wg.Wait()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		s.mailbox.Close()
	}
	b.subs = nil
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *bus) deliver(s *subscriber) {
	defer b.wg.Done()

	for {
		for {
			ev, ok := s.mailbox.TryPop()
			if !ok {
				break
			}
			s.call(ev)
		}
		if s.mailbox.Closed() && s.mailbox.Len() == 0 {
			return
		}
		<-s.mailbox.Wait()
	}
}

func (s *subscriber) call(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"subscription", uint64(s.id),
				"event", string(ev.Kind),
				"seq", ev.Seq,
				"panic", r,
			)
		}
	}()
	s.handler(ev)
}
