package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/invsync/internal/authority"
	"github.com/roach88/invsync/internal/command"
	"github.com/roach88/invsync/internal/engine"
	"github.com/roach88/invsync/internal/inventory"
	"github.com/roach88/invsync/internal/ir"
	"github.com/roach88/invsync/internal/rules"
	"github.com/roach88/invsync/internal/store"
	"github.com/roach88/invsync/internal/testutil"
)

const (
	scenarioUser = "scenario"

	// stepTimeout bounds every wait and retry step.
	stepTimeout = 30 * time.Second
)

// Harness runs one scenario against a live engine.
type Harness struct {
	scenario *Scenario
	svc      *authority.Service
	remote   *localRemote
	engine   *engine.Engine
	logger   *slog.Logger

	mu     sync.Mutex
	events []EventRecord
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory authority. Command ids,
// sequence numbers and timestamps come from deterministic sources, and sends
// are held between wait steps, so two runs of the same scenario produce the
// same trace.
//
// Execution flow:
// 1. Open an in-memory store and seed the authority
// 2. Boot an engine from the authority snapshot
// 3. Execute steps, recording outcomes
// 4. Release sends, wait for the engine to settle, stop it
// 5. Record the final state and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	rules, err := scenarioRules(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	svc := authority.NewService(st, rules)
	seed, err := seedInventory(scenario, rules)
	if err != nil {
		return nil, err
	}
	if _, err := svc.Seed(ctx, scenarioUser, seed); err != nil {
		return nil, fmt.Errorf("failed to seed authority: %w", err)
	}

	inv, syncedAt, err := svc.Snapshot(ctx, scenarioUser)
	if err != nil {
		return nil, fmt.Errorf("failed to read initial snapshot: %w", err)
	}

	attempts := scenario.ResyncAttempts
	if attempts == 0 {
		attempts = engine.DefaultResyncAttempts
	}

	remote := newLocalRemote(svc, scenarioUser, scenario)
	eng := engine.New(engine.Snapshot{Inventory: inv, SyncedAt: syncedAt}, remote, remote,
		engine.WithBackOff(&backoff.ZeroBackOff{}),
		engine.WithResyncAttempts(attempts),
		engine.WithIDGenerator(&engine.SequenceGenerator{Prefix: "cmd"}),
		engine.WithNow(testutil.NewStepClock(time.Unix(0, 0).UTC(), time.Millisecond).Now),
	)

	h := &Harness{
		scenario: scenario,
		svc:      svc,
		remote:   remote,
		engine:   eng,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	if _, err := eng.On(engine.EventAll, h.recordEvent); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- eng.Run(runCtx) }()

	result := NewResult()
	stepErr := h.executeSteps(ctx, result)
	if stepErr == nil {
		_, stepErr = h.settle(ctx)
	}

	remote.release()
	cancel()
	<-done
	eng.Stop()

	if stepErr != nil {
		return nil, stepErr
	}

	if err := h.finalize(ctx, result); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) executeSteps(ctx context.Context, result *Result) error {
	for i, step := range h.scenario.Steps {
		var (
			rec StepRecord
			err error
		)
		switch {
		case step.Dispatch != "":
			rec, err = h.dispatch(i, step)
		case step.Wait:
			var status engine.Status
			status, err = h.settle(ctx)
			rec = StepRecord{Index: i, Op: "wait", Outcome: status.State.String()}
		case step.Retry:
			rec, err = h.retry(ctx, i)
		}
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		result.Trace.Steps = append(result.Trace.Steps, rec)
		if step.Expect != "" && step.Expect != rec.Outcome {
			result.AddError(fmt.Sprintf("step %d: expected outcome %s, got %s", i, step.Expect, rec.Outcome))
		}

		h.logger.Info("step completed",
			"step", i,
			"op", rec.Op,
			"action", rec.Action,
			"outcome", rec.Outcome,
		)
	}
	return nil
}

func (h *Harness) dispatch(index int, step Step) (StepRecord, error) {
	rec := StepRecord{Index: index, Op: "dispatch", Action: step.Dispatch}

	args, err := convertArgsToIRObject(step.Args)
	if err != nil {
		return rec, fmt.Errorf("failed to convert args: %w", err)
	}
	cmd, err := command.Decode(command.Action(step.Dispatch), args)
	if err != nil {
		return rec, err
	}

	err = h.engine.Dispatch(cmd)
	switch {
	case err == nil:
		rec.Outcome = OutcomeQueued
	case engine.IsPreconditionError(err):
		rec.Outcome = OutcomePrecondition
	default:
		return rec, err
	}
	return rec, nil
}

func (h *Harness) retry(ctx context.Context, index int) (StepRecord, error) {
	rec := StepRecord{Index: index, Op: "retry"}

	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	err := h.engine.Resync(ctx)
	var se *engine.SyncError
	switch {
	case err == nil:
		rec.Outcome = "ok"
	case errors.Is(err, engine.ErrBusy):
		rec.Outcome = "busy"
	case errors.As(err, &se):
		rec.Outcome = string(se.Code)
	default:
		return rec, err
	}
	return rec, nil
}

// settle releases held sends and waits until nothing more will happen on
// its own. Sends are held again afterwards.
func (h *Harness) settle(ctx context.Context) (engine.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	h.remote.release()
	status, err := h.engine.WaitSettled(ctx)
	h.remote.hold()
	if err != nil {
		return status, fmt.Errorf("engine did not settle: %w", err)
	}
	return status, nil
}

func (h *Harness) recordEvent(ev engine.Event) {
	rec := EventRecord{Kind: string(ev.Kind), Seq: ev.Seq, Pending: ev.Pending}
	var se *engine.SyncError
	if errors.As(ev.Err, &se) {
		rec.Code = string(se.Code)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, rec)
}

// finalize records the settled state. The engine must be stopped so that
// every event has been delivered.
func (h *Harness) finalize(ctx context.Context, result *Result) error {
	status := h.engine.Status()
	replica := h.engine.Replica()

	data, err := replica.Encode()
	if err != nil {
		return err
	}
	invValue, err := ir.UnmarshalValue(data)
	if err != nil {
		return err
	}

	authInv, authSyncedAt, err := h.svc.Snapshot(ctx, scenarioUser)
	if err != nil {
		return err
	}

	h.mu.Lock()
	result.Trace.Events = append(result.Trace.Events, h.events...)
	h.mu.Unlock()

	result.Trace.Sent = append(result.Trace.Sent, h.remote.records()...)
	result.Trace.Final = FinalState{
		State:             status.State.String(),
		SyncedAt:          status.SyncedAt,
		Pending:           status.Pending,
		Inventory:         invValue,
		AuthoritySyncedAt: authSyncedAt,
		MatchesAuthority:  replica.Equal(authInv),
	}
	result.Replica = replica
	return nil
}

func scenarioRules(s *Scenario) (inventory.Rules, error) {
	if len(s.Rules) == 0 {
		return inventory.DefaultRules(), nil
	}
	src, err := json.Marshal(s.Rules)
	if err != nil {
		return inventory.Rules{}, fmt.Errorf("scenario rules: %w", err)
	}
	r, err := rules.Parse(src, s.Name+".rules")
	if err != nil {
		return inventory.Rules{}, fmt.Errorf("scenario rules: %w", err)
	}
	return r, nil
}

// seedInventory builds the authority's starting inventory. Items are
// decoded with the inventory's JSON field names.
func seedInventory(s *Scenario, rules inventory.Rules) (*inventory.Inventory, error) {
	plain, err := normalizeYAML(s.Inventory)
	if err != nil {
		return nil, fmt.Errorf("scenario inventory: %w", err)
	}
	data, err := json.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("scenario inventory: %w", err)
	}
	var items []inventory.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("scenario inventory: %w", err)
	}
	inv, err := inventory.New(rules, items...)
	if err != nil {
		return nil, fmt.Errorf("scenario inventory: %w", err)
	}
	return inv, nil
}

// normalizeYAML rewrites maps with non-string keys, such as sticker slots
// written as bare integers, into string-keyed maps.
func normalizeYAML(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			n, err := normalizeYAML(elem)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			n, err := normalizeYAML(elem)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(val))
		for i, elem := range val {
			n, err := normalizeYAML(elem)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			n, err := normalizeYAML(elem)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case float64:
		return nil, fmt.Errorf("floats are forbidden: %v", val)
	default:
		return val, nil
	}
}

// convertArgsToIRObject converts YAML-parsed args to ir.IRObject.
func convertArgsToIRObject(args map[string]any) (ir.IRObject, error) {
	if args == nil {
		return ir.IRObject{}, nil
	}

	result := make(ir.IRObject, len(args))
	for key, val := range args {
		irVal, err := convertToIRValue(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		result[key] = irVal
	}
	return result, nil
}

// convertToIRValue converts a YAML-parsed value to an IRValue.
// Nulls and floats are rejected: canonical JSON cannot carry them.
func convertToIRValue(val any) (ir.IRValue, error) {
	if val == nil {
		return nil, fmt.Errorf("null values are forbidden in IR")
	}

	switch v := val.(type) {
	case float64:
		if v == float64(int64(v)) {
			return ir.IRInt(int64(v)), nil
		}
		return nil, fmt.Errorf("floats are forbidden in IR: %v", v)
	case map[any]any, []any:
		n, err := normalizeYAML(v)
		if err != nil {
			return nil, err
		}
		return ir.FromGo(n)
	default:
		return ir.FromGo(val)
	}
}
