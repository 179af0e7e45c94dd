// Package main hosts the offsync CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into calls
// against the daemon HTTP API when it is reachable and falls back to direct
// queue database access otherwise. It centralizes configuration resolution
// and tenant selection so subcommands can focus on output.
//
// Keep this package lean: add behavior to the internal packages first, then
// surface it through dedicated commands or flags here.
package main
