package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/invsync/internal/inventory"
)

func sampleResult(t *testing.T) *Result {
	t.Helper()
	replica, err := inventory.New(inventory.DefaultRules(),
		inventory.Item{
			DefID:    7,
			Kind:     inventory.KindWeapon,
			NameTag:  "Dragon",
			StatTrak: inventory.StatTrak(12),
			Stickers: map[int]inventory.Sticker{1: {DefID: 4001, Wear: 100}},
		},
	)
	require.NoError(t, err)

	r := NewResult()
	r.Trace.Sent = []SentRecord{
		{ID: "cmd-1", Action: "ApplyItemSticker", Outcome: SentOK},
		{ID: "cmd-2", Action: "RenameItem", Outcome: SentOK},
		{ID: "cmd-3", Action: "ApplyItemSticker", Outcome: SentRejected},
	}
	r.Trace.Events = []EventRecord{
		{Kind: "sync-start", Seq: 2, Pending: 1},
		{Kind: "sync-error", Seq: 7, Code: "REJECTED"},
	}
	r.Trace.Final.SyncedAt = 3
	r.Replica = replica
	return r
}

func evaluate(t *testing.T, a Assertion) []string {
	t.Helper()
	return EvaluateAssertions(sampleResult(t), []Assertion{a})
}

func TestAssertSentOrder(t *testing.T) {
	assert.Empty(t, evaluate(t, Assertion{Type: AssertSentOrder, Actions: []string{"ApplyItemSticker", "RenameItem"}}))
	assert.Empty(t, evaluate(t, Assertion{Type: AssertSentOrder, Actions: []string{"RenameItem", "ApplyItemSticker"}}),
		"intervening and repeated sends are allowed")

	errs := evaluate(t, Assertion{Type: AssertSentOrder, Actions: []string{"RenameItem", "RenameItem"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Assertion failed: sent_order")
	assert.Contains(t, errs[0], "cmd-3 ApplyItemSticker")
}

func TestAssertSentCount(t *testing.T) {
	assert.Empty(t, evaluate(t, Assertion{Type: AssertSentCount, Action: "ApplyItemSticker", Count: 2}))
	assert.Empty(t, evaluate(t, Assertion{Type: AssertSentCount, Action: "UnlockCase", Count: 0}))

	errs := evaluate(t, Assertion{Type: AssertSentCount, Action: "RenameItem", Count: 2})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "1 sends")
}

func TestAssertEvents(t *testing.T) {
	assert.Empty(t, evaluate(t, Assertion{Type: AssertEventOrder, Kinds: []string{"sync-start", "sync-error"}}))
	assert.NotEmpty(t, evaluate(t, Assertion{Type: AssertEventOrder, Kinds: []string{"sync-error", "sync-start"}}))

	assert.Empty(t, evaluate(t, Assertion{Type: AssertEventCount, Kind: "sync-end", Count: 0}))
	assert.NotEmpty(t, evaluate(t, Assertion{Type: AssertEventCount, Kind: "sync-error", Count: 2}))
}

func TestAssertSyncedAt(t *testing.T) {
	three, four := int64(3), int64(4)
	assert.Empty(t, evaluate(t, Assertion{Type: AssertSyncedAt, Value: &three}))
	assert.NotEmpty(t, evaluate(t, Assertion{Type: AssertSyncedAt, Value: &four}))
	assert.NotEmpty(t, evaluate(t, Assertion{Type: AssertSyncedAt}))
}

func TestAssertFinalItem(t *testing.T) {
	tests := []struct {
		name   string
		expect map[string]any
		pass   bool
	}{
		{"scalar fields", map[string]any{"def_id": 7, "kind": "weapon", "name_tag": "Dragon"}, true},
		{"stattrak", map[string]any{"stattrak": 12}, true},
		{"nested sticker", map[string]any{"stickers": map[string]any{"1": map[string]any{"def_id": 4001, "wear": 100}}}, true},
		{"nested sticker with int keys", map[string]any{"stickers": map[any]any{1: map[string]any{"def_id": 4001, "wear": 100}}}, true},
		{"wrong value", map[string]any{"name_tag": "Wyrm"}, false},
		{"absent field", map[string]any{"patches": map[string]any{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := evaluate(t, Assertion{Type: AssertFinalItem, UID: 1, Expect: tt.expect})
			if tt.pass {
				assert.Empty(t, errs)
			} else {
				assert.NotEmpty(t, errs)
			}
		})
	}

	errs := evaluate(t, Assertion{Type: AssertFinalItem, UID: 9, Expect: map[string]any{"kind": "weapon"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "item not in replica")
}

func TestAssertItemAbsent(t *testing.T) {
	assert.Empty(t, evaluate(t, Assertion{Type: AssertItemAbsent, UID: 2}))
	assert.NotEmpty(t, evaluate(t, Assertion{Type: AssertItemAbsent, UID: 1}))
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := evaluate(t, Assertion{Type: "final_state"})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "final_state"`)
}
