package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/invsync/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    Trace
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nSent:\n")
	for i, s := range e.Trace.Sent {
		fmt.Fprintf(&buf, "  [%d] %s %s synced_at=%d %s\n", i+1, s.ID, s.Action, s.SyncedAt, s.Outcome)
	}
	fmt.Fprintf(&buf, "Events:\n")
	for _, ev := range e.Trace.Events {
		fmt.Fprintf(&buf, "  [%d] %s pending=%d %s\n", ev.Seq, ev.Kind, ev.Pending, ev.Code)
	}

	return buf.String()
}

func sentActions(t Trace) []string {
	out := make([]string, len(t.Sent))
	for i, s := range t.Sent {
		out[i] = s.Action
	}
	return out
}

func eventKinds(t Trace) []string {
	out := make([]string, len(t.Events))
	for i, ev := range t.Events {
		out[i] = ev.Kind
	}
	return out
}

// inOrder reports whether want is a subsequence of got. Intervening entries
// are allowed.
func inOrder(got, want []string) (bool, string) {
	pos := 0
	for _, g := range got {
		if pos < len(want) && g == want[pos] {
			pos++
		}
	}
	if pos == len(want) {
		return true, ""
	}
	return false, fmt.Sprintf("%s not found after %v in %v", want[pos], want[:pos], got)
}

// assertSentOrder checks that commands reached the authority in the given
// order.
func assertSentOrder(trace Trace, a Assertion) error {
	if ok, why := inOrder(sentActions(trace), a.Actions); !ok {
		return &AssertionError{
			Type:     AssertSentOrder,
			Expected: fmt.Sprintf("sends in order: %v", a.Actions),
			Actual:   why,
			Trace:    trace,
		}
	}
	return nil
}

func assertSentCount(trace Trace, a Assertion) error {
	count := 0
	for _, action := range sentActions(trace) {
		if action == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertSentCount,
			Expected: fmt.Sprintf("%d sends of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d sends", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertEventOrder(trace Trace, a Assertion) error {
	if ok, why := inOrder(eventKinds(trace), a.Kinds); !ok {
		return &AssertionError{
			Type:     AssertEventOrder,
			Expected: fmt.Sprintf("events in order: %v", a.Kinds),
			Actual:   why,
			Trace:    trace,
		}
	}
	return nil
}

func assertEventCount(trace Trace, a Assertion) error {
	count := 0
	for _, kind := range eventKinds(trace) {
		if kind == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertSyncedAt(trace Trace, a Assertion) error {
	if trace.Final.SyncedAt != *a.Value {
		return &AssertionError{
			Type:     AssertSyncedAt,
			Expected: fmt.Sprintf("synced_at %d", *a.Value),
			Actual:   fmt.Sprintf("synced_at %d", trace.Final.SyncedAt),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalItem checks fields of one item in the final replica.
// Subset match: only the expected fields are compared.
func assertFinalItem(result *Result, a Assertion) error {
	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertFinalItem,
			Expected: fmt.Sprintf("item %d with %v", a.UID, a.Expect),
			Actual:   actual,
			Trace:    result.Trace,
		}
	}

	if result.Replica == nil {
		return fail("no replica")
	}
	item, ok := result.Replica.Get(a.UID)
	if !ok {
		return fail("item not in replica")
	}
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	value, err := ir.UnmarshalValue(data)
	if err != nil {
		return err
	}
	actual := value.(ir.IRObject)

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want, err := convertToIRValue(a.Expect[key])
		if err != nil {
			return fmt.Errorf("final_item expect %q: %w", key, err)
		}
		got, ok := actual[key]
		if !ok {
			return fail(fmt.Sprintf("field %s absent", key))
		}
		if !valuesEqual(got, want) {
			gotJSON, _ := ir.MarshalCanonical(got)
			return fail(fmt.Sprintf("field %s = %s", key, gotJSON))
		}
	}
	return nil
}

func assertItemAbsent(result *Result, a Assertion) error {
	if result.Replica == nil {
		return fmt.Errorf("item_absent: no replica")
	}
	if _, ok := result.Replica.Get(a.UID); ok {
		return &AssertionError{
			Type:     AssertItemAbsent,
			Expected: fmt.Sprintf("no item %d", a.UID),
			Actual:   "item present",
			Trace:    result.Trace,
		}
	}
	return nil
}

// valuesEqual compares two IR values by canonical encoding.
func valuesEqual(a, b ir.IRValue) bool {
	aj, errA := ir.MarshalCanonical(a)
	bj, errB := ir.MarshalCanonical(b)
	return errA == nil && errB == nil && bytes.Equal(aj, bj)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertSentOrder:
			err = assertSentOrder(result.Trace, assertion)
		case AssertSentCount:
			err = assertSentCount(result.Trace, assertion)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Trace, assertion)
		case AssertSyncedAt:
			if assertion.Value == nil {
				err = fmt.Errorf("assertion[%d]: synced_at requires value", i)
			} else {
				err = assertSyncedAt(result.Trace, assertion)
			}
		case AssertFinalItem:
			err = assertFinalItem(result, assertion)
		case AssertItemAbsent:
			err = assertItemAbsent(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// knownAssertionTypes lists every assertion type, for diagnostics.
func knownAssertionTypes() []string {
	types := []string{
		AssertSentOrder, AssertSentCount, AssertEventOrder, AssertEventCount,
		AssertFinalItem, AssertSyncedAt, AssertItemAbsent,
	}
	slices.Sort(types)
	return types
}
