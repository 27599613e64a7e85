// Package schema implements the structural gate for batch envelopes.
//
// The contracts live in contracts.cue and are compiled once per Gate with
// the CUE Go API. Validation is a pure predicate: it never mutates state
// and reports every violation it finds (does not fail-fast).
//
// The gate runs twice per batch:
//   - on the raw request, before any event is applied
//   - on the assembled response, as a self-check; a failure there is a
//     contract breach, not a client error
package schema
