// Package store holds the materialized read model for ingested events.
//
// Five structures live behind one lock:
//   - Bindings: tag UID -> object or zone target (last write wins)
//   - Placements: object -> current zone or container path
//   - Transactions: transaction ID -> checkout/return record
//   - Open index: object -> ID of its OPEN transaction
//   - Seen keys: every accepted event key for the process lifetime
//
// The store knows nothing about event semantics. Callers mutate it only
// through the Writer passed to Update, which runs with the exclusive lock
// held for its whole duration. Readers either call the single-key getters
// or use View; both take the shared lock, so a reader never observes a
// partially applied Update.
//
// # Index Invariant
//
// An object appears in the open index iff the transaction it points to
// exists, belongs to that object, and is OPEN. Verify checks this.
package store
