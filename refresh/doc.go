// Package refresh persists refresh-token records and enforces one-shot
// rotation with family-wide revocation.
//
// # Data model
//
// Every issued refresh token has one [Record] keyed by its token ID. Records
// sharing a family ID form one login lineage; a secondary Redis set indexes
// the family for bulk revocation. At any instant at most one record per
// family is unrevoked (the current leaf).
//
// # Atomicity
//
// [Store.Rotate] runs a single Lua script that validates the presented
// record and, in the same step, revokes it and writes its successor. Two
// concurrent rotations of the same token therefore cannot both succeed: the
// loser observes the record already revoked, which callers must treat as
// replay. This compare-and-swap is the load-bearing correctness property of
// the whole subsystem.
//
// # Retention
//
// Revoked records are deliberately kept until the family's absolute deadline
// so that replaying any historical token in the family window is detectable.
// Redis TTLs age everything out afterwards; no manual cleanup is needed.
package refresh
