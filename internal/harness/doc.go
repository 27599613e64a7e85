// Package harness runs conformance scenarios against the ingestion pipeline.
//
// A scenario submits batches through the real schema gate, ingestor and
// projector, checks each response against an expect clause, then exports
// the final store to an in-memory snapshot database and evaluates
// assertions against its tables.
//
// # Scenario Format
//
//	name: checkout_return
//	description: "What this scenario validates"
//	clock:
//	  start: "2025-03-01T09:00:00Z"
//	  step: 1s
//	batches:
//	  - request:
//	      seqStart: 10
//	      events:
//	        - eventId: e-1
//	          eventKey: k-1
//	          kind: CHECKOUT
//	          payload: { objectType: TOOL, objectId: t-1 }
//	    expect:
//	      statuses: [ACCEPTED]
//	      next_seq_expected: 11
//	  - raw: "{not json"
//	    expect:
//	      error: SCHEMA_INVALID
//	assertions:
//	  - type: final_state
//	    table: transactions
//	    where: { tx_id: e-1 }
//	    expect: { status: OPEN }
//	  - type: row_count
//	    table: open_transactions
//	    count: 1
//	  - type: verdict_count
//	    status: DUPLICATE
//	    count: 0
//
// # Assertion Types
//
//   - final_state: exactly one exported row matches where and carries the
//     expected column values
//   - row_count: number of exported rows matching where
//   - verdict_count: number of verdicts with a status across all batches
//
// Table and column names are those of the snapshot schema. A null in where
// matches SQL NULL.
//
// # Deterministic Testing
//
// Scenarios run on a testutil.SteppingClock (frozen at testutil.Epoch
// unless clock is given), so serverTime and fallback event times are
// reproducible and responses can be compared against golden files.
package harness
