// Package snapshot exports the materialized store to a SQLite file.
//
// An export is a full replacement written in one transaction, stamped with
// the contract version and a content digest of the exported state. The file
// is read back only for inspection and verification; the live store always
// starts empty.
package snapshot
