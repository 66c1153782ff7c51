package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func requirePass(t *testing.T, result *Result) {
	t.Helper()
	require.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_LostAckConvergesOnAuthority(t *testing.T) {
	s := mustParse(t, `
name: lost_ack
description: "the authority commits but the response is lost"
inventory:
  - { def_id: 7, kind: weapon }
  - { def_id: 900, kind: nametag }
send_failures:
  - { call: 1, error: transport, applied: true }
steps:
  - dispatch: RenameItem
    args: { tool_uid: 2, target_uid: 1, name_tag: Dragon }
  - wait: true
assertions:
  - type: event_order
    kinds: [sync-start, sync-error]
  - type: final_item
    uid: 1
    expect: { name_tag: Dragon }
  - type: item_absent
    uid: 2
  - type: synced_at
    value: 2
`)

	result, err := Run(s)
	require.NoError(t, err)
	requirePass(t, result)

	require.Len(t, result.Trace.Sent, 1)
	assert.Equal(t, SentLostAck, result.Trace.Sent[0].Outcome)
	require.Len(t, result.Trace.Events, 2)
	assert.Equal(t, "TRANSPORT_FAILED", result.Trace.Events[1].Code)
	assert.Equal(t, "idle", result.Trace.Final.State)
	assert.True(t, result.Trace.Final.MatchesAuthority)
}

func TestRun_FailureDropsLaterCommands(t *testing.T) {
	s := mustParse(t, `
name: kth_failure
description: "the second of three sends fails"
inventory:
  - { def_id: 1, kind: other }
  - { def_id: 2, kind: other }
  - { def_id: 3, kind: other }
send_failures:
  - { call: 2, error: transport }
steps:
  - dispatch: RemoveItem
    args: { uid: 1 }
  - dispatch: RemoveItem
    args: { uid: 2 }
  - dispatch: RemoveItem
    args: { uid: 3 }
  - wait: true
assertions:
  - type: sent_count
    action: RemoveItem
    count: 2
  - type: item_absent
    uid: 1
  - type: final_item
    uid: 2
    expect: { def_id: 2 }
  - type: final_item
    uid: 3
    expect: { def_id: 3 }
  - type: synced_at
    value: 2
`)

	result, err := Run(s)
	require.NoError(t, err)
	requirePass(t, result)

	outcomes := []string{result.Trace.Sent[0].Outcome, result.Trace.Sent[1].Outcome}
	assert.Equal(t, []string{SentOK, SentTransportFailed}, outcomes)
	assert.Equal(t, int64(1), result.Trace.Sent[0].SyncedAt)
	assert.Equal(t, int64(2), result.Trace.Sent[1].SyncedAt)
}

func TestRun_RetryWhileTransmittingIsBusy(t *testing.T) {
	s := mustParse(t, `
name: busy
description: "an explicit resync is refused while a send is outstanding"
inventory:
  - { def_id: 7, kind: weapon }
steps:
  - dispatch: RemoveItem
    args: { uid: 1 }
  - retry: true
  - wait: true
  - retry: true
assertions:
  - type: sent_count
    action: RemoveItem
    count: 1
  - type: synced_at
    value: 2
`)

	result, err := Run(s)
	require.NoError(t, err)
	requirePass(t, result)

	require.Len(t, result.Trace.Steps, 4)
	assert.Equal(t, "busy", result.Trace.Steps[1].Outcome)
	assert.Equal(t, "idle", result.Trace.Steps[2].Outcome)
	assert.Equal(t, "ok", result.Trace.Steps[3].Outcome, "resync from idle is allowed")
}

func TestRun_FailedRetryReportsCode(t *testing.T) {
	s := mustParse(t, `
name: failed_retry
description: "every fetch of the first two recoveries fails"
resync_attempts: 2
resync_failures: 4
inventory:
  - { def_id: 7, kind: weapon }
send_failures:
  - { call: 1, error: transport }
steps:
  - dispatch: RemoveItem
    args: { uid: 1 }
  - wait: true
  - retry: true
  - retry: true
assertions:
  - type: event_count
    kind: sync-error
    count: 1
  - type: final_item
    uid: 1
    expect: { kind: weapon }
`)

	result, err := Run(s)
	require.NoError(t, err)
	requirePass(t, result)

	assert.Equal(t, "recovering", result.Trace.Steps[1].Outcome)
	assert.Equal(t, "RESYNC_FAILED", result.Trace.Steps[2].Outcome)
	assert.Equal(t, "ok", result.Trace.Steps[3].Outcome)
	assert.Equal(t, "idle", result.Trace.Final.State)
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	s := mustParse(t, `
name: expect_mismatch
description: "a dispatch expected to be refused is queued"
inventory:
  - { def_id: 7, kind: weapon }
steps:
  - dispatch: RemoveItem
    args: { uid: 1 }
    expect: precondition
assertions:
  - type: item_absent
    uid: 1
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected outcome precondition, got queued")
}

func TestRun_AssertionFailureIsReported(t *testing.T) {
	s := mustParse(t, `
name: wrong_synced_at
description: "assertions see the real trace"
inventory:
  - { def_id: 7, kind: weapon }
steps:
  - dispatch: RemoveItem
    args: { uid: 1 }
assertions:
  - type: synced_at
    value: 7
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "synced_at 2")
}

func TestRun_BadArgsIsAnError(t *testing.T) {
	s := mustParse(t, `
name: bad_args
description: "args that do not decode"
inventory: []
steps:
  - dispatch: RemoveItem
    args: { uid: one }
assertions:
  - type: synced_at
    value: 0
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0")
}

func TestRun_InvalidRules(t *testing.T) {
	s := mustParse(t, `
name: bad_rules
description: "rules are validated"
rules: { max_itemz: 3 }
inventory: []
steps:
  - wait: true
assertions:
  - type: synced_at
    value: 1
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario rules")
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/rejected_then_retry.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := CanonicalTrace(s.Name, first)
	require.NoError(t, err)
	b, err := CanonicalTrace(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
