// Package logging assembles structured slog loggers and formatting helpers used
// across offsync services.
//
// It owns the configurable console/JSON handlers, routes file output through a
// rotating writer, and exposes context-aware helpers so sync code can tag log
// lines with tenant, entry, and pass identifiers. A bounded in-memory stream
// hub keeps recent events for the daemon API. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
