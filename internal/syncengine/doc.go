// Package syncengine replays a tenant's pending queue entries against the
// remote store through the applier registry.
//
// A pass snapshots the tenant's pending entries in insertion order and
// replays them one at a time. Each entry ends the pass synced, failed, or
// back in pending (no applier registered, or deferred behind a failed
// entry for the same record). One entry's failure never aborts the rest of
// the pass. Passes for one tenant are serialized through TenantLocks;
// different tenants may run in parallel.
package syncengine
