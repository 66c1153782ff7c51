package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/invsync/internal/authority"
	"github.com/roach88/invsync/internal/engine"
	"github.com/roach88/invsync/internal/wire"
)

var (
	errInjectedTransport = errors.New("injected transport failure")
	errInjectedFetch     = errors.New("injected snapshot failure")
)

// rejection is an authority verdict as the engine sees it.
type rejection struct {
	err error
}

func (r *rejection) Error() string  { return "rejected: " + r.err.Error() }
func (r *rejection) Unwrap() error  { return r.err }
func (r *rejection) Rejected() bool { return true }

// localRemote connects an engine to an in-process authority. Every request
// goes through the wire encoding and schema check the HTTP handler uses.
//
// Sends block on a gate until the harness releases them, so the set of
// commands queued before a wait step is independent of scheduling.
type localRemote struct {
	svc    *authority.Service
	userID string

	mu            sync.Mutex
	gate          chan struct{}
	gateOpen      bool
	sendCalls     int
	sendFailures  map[int]SendFailure
	fetchFailures int
	sent          []SentRecord
}

func newLocalRemote(svc *authority.Service, userID string, s *Scenario) *localRemote {
	failures := make(map[int]SendFailure, len(s.SendFailures))
	for _, f := range s.SendFailures {
		failures[f.Call] = f
	}
	return &localRemote{
		svc:           svc,
		userID:        userID,
		gate:          make(chan struct{}),
		sendFailures:  failures,
		fetchFailures: s.ResyncFailures,
	}
}

// release lets held and future sends through.
func (r *localRemote) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.gateOpen {
		close(r.gate)
		r.gateOpen = true
	}
}

// hold makes future sends wait for the next release.
func (r *localRemote) hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gateOpen {
		r.gate = make(chan struct{})
		r.gateOpen = false
	}
}

func (r *localRemote) Send(ctx context.Context, req engine.SendRequest) (engine.SendResult, error) {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()

	select {
	case <-gate:
	case <-ctx.Done():
		return engine.SendResult{}, ctx.Err()
	}

	r.mu.Lock()
	r.sendCalls++
	failure, injected := r.sendFailures[r.sendCalls]
	r.mu.Unlock()

	raw, err := json.Marshal(wire.NewSyncRequest(req.ID, req.Command, req.SyncedAt))
	if err != nil {
		return engine.SendResult{}, fmt.Errorf("encode sync request: %w", err)
	}
	decoded, err := wire.DecodeSyncRequest(raw)
	if err != nil {
		return engine.SendResult{}, &rejection{err: err}
	}

	record := SentRecord{
		ID:       decoded.ID,
		Action:   string(decoded.Action),
		Args:     decoded.Args,
		SyncedAt: decoded.SyncedAt,
	}

	if injected && !failure.Applied {
		record.Outcome = SentTransportFailed
		err := error(errInjectedTransport)
		if failure.Error == FailRejected {
			record.Outcome = SentRejected
			err = &rejection{err: errors.New("injected rejection")}
		}
		r.record(record)
		return engine.SendResult{}, err
	}

	syncedAt, err := r.svc.Apply(ctx, r.userID, decoded)
	if err != nil {
		record.Outcome = SentRejected
		r.record(record)
		return engine.SendResult{}, &rejection{err: err}
	}

	if injected {
		record.Outcome = SentLostAck
		r.record(record)
		if failure.Error == FailRejected {
			return engine.SendResult{}, &rejection{err: errors.New("injected rejection")}
		}
		return engine.SendResult{}, errInjectedTransport
	}

	record.Outcome = SentOK
	r.record(record)
	return engine.SendResult{SyncedAt: syncedAt}, nil
}

func (r *localRemote) FetchSnapshot(ctx context.Context) (engine.Snapshot, error) {
	r.mu.Lock()
	if r.fetchFailures > 0 {
		r.fetchFailures--
		r.mu.Unlock()
		return engine.Snapshot{}, errInjectedFetch
	}
	r.mu.Unlock()

	inv, syncedAt, err := r.svc.Snapshot(ctx, r.userID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return engine.Snapshot{Inventory: inv, SyncedAt: syncedAt}, nil
}

func (r *localRemote) record(rec SentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, rec)
}

func (r *localRemote) records() []SentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentRecord(nil), r.sent...)
}
