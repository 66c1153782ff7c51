// Package harness provides conformance testing for the sync engine.
//
// A scenario seeds an in-process authority, boots a real engine from its
// snapshot and drives the engine through dispatch, wait and retry steps.
// Sends and snapshot fetches go through the same wire encoding and schema
// validation as the HTTP client. Failures are injected per send call and
// per fetch.
//
// # Scenario Format
//
//	name: sticker_then_scrape
//	description: "What this scenario validates"
//	rules:
//	  sticker_wear_step: 1000
//	inventory:
//	  - { def_id: 7, kind: weapon }
//	  - { def_id: 4001, kind: sticker }
//	steps:
//	  - dispatch: ApplyItemSticker
//	    args: { target_uid: 1, sticker_uid: 2, slot: 0 }
//	  - wait: true
//	  - retry: true
//	send_failures:
//	  - { call: 1, error: rejected }
//	resync_failures: 3
//	assertions:
//	  - type: sent_order
//	    actions: [ApplyItemSticker]
//	  - type: final_item
//	    uid: 1
//	    expect: { def_id: 7 }
//
// # Assertion Types
//
//   - sent_order: commands reached the authority in this order
//   - sent_count: an action was sent exactly N times
//   - event_order: lifecycle events occurred in this order
//   - event_count: an event kind occurred exactly N times
//   - final_item: fields of an item in the final replica (subset match)
//   - item_absent: an item is not in the final replica
//   - synced_at: the engine's final synced_at
//
// # Deterministic Testing
//
// Sends are held from the start of the run and released only by wait steps
// (and once more at the end), so every command dispatched between two waits
// is queued before any of them is sent. Together with sequential command
// ids, the engine's logical clock and a stepping wall clock, two runs of a
// scenario produce byte-identical canonical traces for golden comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/sticker_then_scrape.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
