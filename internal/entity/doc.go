// Package entity implements the local entity store: durable, versioned,
// soft-deleting persistence for typed domain records.
//
// # Records
//
// A record is addressed by (kind, id). It carries a version that starts at
// 1 and increases by exactly one on every save against a live record, a
// last-modified stamp in epoch milliseconds, a tombstone flag, and an open
// set of payload fields. The owner identifier travels in the payload under
// "userId"; it is required but is not part of the storage key, so callers
// scope access by owner themselves.
//
// # Storage layout
//
// Each record is one key in the medium:
//
//	<namespace>entity:<kind>:<id>
//
// holding the record as canonical JSON, flattened:
//
//	{"deleted":false,"id":"enc-1","lastModified":1700000000000,"name":"Goblin Ambush","userId":"u1","version":2}
//
// # Lifecycle
//
//   - Save on an absent or tombstoned id creates version 1.
//   - Save on a live record merges top-level fields over it, version+1.
//   - Delete sets the tombstone; Load still returns the record, LoadAll skips it.
//   - Nothing is ever physically purged except by Clear.
//
// # Corruption
//
// A stored value that fails to decode reads as absent. Before a save
// overwrites it the raw bytes are copied to
//
//	<namespace>quarantine:entity:<kind>:<id>:<epoch-ms>
//
// and can be listed with Store.Quarantined.
package entity
