// Package harness runs YAML scenarios against the sync core.
//
// A scenario drives one entity store, one operation queue and one
// coordinator over a fresh in-memory SQLite medium. Time is a manual clock
// and operation IDs come from a fixed sequence, so the same scenario always
// produces the same trace.
//
// # Scenario Format
//
//	name: offline_edit_then_sync
//	description: "Edits made offline are delivered once back online"
//	online: false
//	steps:
//	  - action: save
//	    kind: encounters
//	    id: enc-1
//	    data: { userId: u1, name: "Goblin Ambush" }
//	  - action: enqueue
//	    verb: create
//	    resource: encounters
//	    payload: { id: enc-1 }
//	  - action: online
//	  - action: sync
//	    expect: { processed: 1 }
//	assertions:
//	  - type: queue_length
//	    count: 0
//	  - type: delivered
//	    resources: [encounters]
//
// # Step Actions
//
//   - save, delete: entity store writes
//   - enqueue: append an operation
//   - sync: one coordinator pass
//   - fail: make the next N deliveries fail
//   - advance: move the clock forward by ms
//   - online, offline: connectivity edges
//   - restart: reopen store and queue over the same medium
//   - corrupt: overwrite an entity record with raw bytes
//   - legacy, migrate: seed and migrate the pre-namespaced blob
//
// # Assertion Types
//
//   - entity: a record exists with the expected fields (subset match)
//   - entity_absent: no record is readable for the id
//   - entity_count: LoadAll returns exactly count records
//   - queue_length: the queue holds exactly count operations
//   - queue_order: pending resources in queue order
//   - delivered: resources the transport accepted, in order
//   - quarantined: exactly count records were set aside
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/restart.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
