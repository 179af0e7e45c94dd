// Package api defines wire-format types, converters, and the HTTP client for
// the daemon API. It translates internal queue models into transport-friendly
// DTOs so the CLI and other consumers can render them without coupling to
// internal types.
//
// # Key Types
//
// QueueEntry: transport representation of a queue entry.
//
// DaemonStatus: running state, connectivity, per-tenant counts and the last
// sync pass of each tenant.
//
// LogEvent/LogStreamResponse: structured log payloads for live tailing.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (queue.Status,
// queue.Operation) are exposed as lowercase strings. Timestamps use RFC3339
// with milliseconds. Payloads pass through as json.RawMessage to avoid
// double-encoding.
package api
