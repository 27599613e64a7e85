// Package ir provides the closed domain types for asset-movement events.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - EventKind is a closed enumeration (Kinds lists every member)
//   - Binding targets, placement locations and return references are sealed
//     sum types; only types in this package implement them
//   - All JSON tags use lowerCamelCase to match the wire contract
//   - Canonical JSON (RFC 8785) is the only encoding used for digests
package ir
