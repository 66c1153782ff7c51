package harness

import (
	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/ir"
)

// StepRecord is the outcome of one scenario step.
type StepRecord struct {
	Index   int    `json:"index"`
	Op      string `json:"op"` // "dispatch", "wait" or "retry"
	Action  string `json:"action,omitempty"`
	Outcome string `json:"outcome"`
}

// SentRecord is one send as the authority saw it.
type SentRecord struct {
	ID       string      `json:"id"`
	Action   string      `json:"action"`
	Args     ir.IRObject `json:"args"`
	SyncedAt int64       `json:"synced_at"`
	Outcome  string      `json:"outcome"`
}

// Send outcomes.
const (
	SentOK              = "ok"
	SentRejected        = "rejected"
	SentTransportFailed = "transport_failed"
	SentLostAck         = "lost_ack"
)

// EventRecord is one lifecycle event. Code is set for sync-error.
type EventRecord struct {
	Kind    string `json:"kind"`
	Seq     int64  `json:"seq"`
	Pending int    `json:"pending"`
	Code    string `json:"code,omitempty"`
}

// FinalState is the engine and authority state once the scenario settles.
type FinalState struct {
	State             string     `json:"state"`
	SyncedAt          int64      `json:"synced_at"`
	Pending           int        `json:"pending"`
	Inventory         ir.IRValue `json:"inventory"`
	AuthoritySyncedAt int64      `json:"authority_synced_at"`
	MatchesAuthority  bool       `json:"matches_authority"`
}

// Trace is everything a scenario run observed, in order.
type Trace struct {
	Steps  []StepRecord  `json:"steps"`
	Sent   []SentRecord  `json:"sent"`
	Events []EventRecord `json:"events"`
	Final  FinalState    `json:"final"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every assertion and step expectation held.
	Pass bool `json:"pass"`

	Trace Trace `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Replica is the engine's final replica, for item assertions.
	Replica *inventory.Inventory `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass: true,
		Trace: Trace{
			Steps:  []StepRecord{},
			Sent:   []SentRecord{},
			Events: []EventRecord{},
		},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// canonical converts the trace to plain values for ir.MarshalCanonical.
func (t Trace) canonical(name string) map[string]any {
	steps := make([]any, len(t.Steps))
	for i, s := range t.Steps {
		m := map[string]any{"index": s.Index, "op": s.Op, "outcome": s.Outcome}
		if s.Action != "" {
			m["action"] = s.Action
		}
		steps[i] = m
	}

	sent := make([]any, len(t.Sent))
	for i, s := range t.Sent {
		sent[i] = map[string]any{
			"id":        s.ID,
			"action":    s.Action,
			"args":      s.Args,
			"synced_at": s.SyncedAt,
			"outcome":   s.Outcome,
		}
	}

	events := make([]any, len(t.Events))
	for i, e := range t.Events {
		m := map[string]any{"kind": e.Kind, "seq": e.Seq, "pending": e.Pending}
		if e.Code != "" {
			m["code"] = e.Code
		}
		events[i] = m
	}

	final := map[string]any{
		"state":               t.Final.State,
		"synced_at":           t.Final.SyncedAt,
		"pending":             t.Final.Pending,
		"authority_synced_at": t.Final.AuthoritySyncedAt,
		"matches_authority":   t.Final.MatchesAuthority,
	}
	if t.Final.Inventory != nil {
		final["inventory"] = t.Final.Inventory
	}

	return map[string]any{
		"scenario": name,
		"steps":    steps,
		"sent":     sent,
		"events":   events,
		"final":    final,
	}
}
