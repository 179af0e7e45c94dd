// Package queue persists offline operation entries in SQLite and exposes the
// writer and status transitions the sync engine drives.
//
// Every mutation a user performs while the remote store is unreachable is
// captured as an immutable Entry scoped to a tenant. Only the lifecycle
// columns (status, error message, retry count, synced/updated timestamps)
// change after insert; a trigger in the schema rejects anything else. Entries
// replay in (created_at, seq) order, where seq is a store-assigned insertion
// counter that breaks timestamp ties.
//
// The store also keeps two small side tables: remote identifiers assigned to
// records created offline, and optional mirror copies of remote records for
// offline reads.
//
// Storage failures are returned as *StorageError and match ErrStorage with
// errors.Is, so callers can tell "the local disk is unhappy" apart from bad
// input or a missing entry.
package queue
