// Package remote provides HTTP appliers that replay queue entries against a
// JSON REST endpoint, plus a mirror refresher for offline reads.
//
// Records live under {base_url}/tenants/{tenant}/{entity}. Creates POST the
// payload and expect {"id": ...} back; updates PUT and deletes DELETE the
// record by its remote id. Every request carries the entry id as
// Idempotency-Key so a replay after a crash can be recognised server-side.
package remote
