// Package config loads, normalizes, and validates offsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OFFSYNC_REMOTE_TOKEN. The Config type centralizes every knob the daemon and
// CLI need: where the local queue lives, which tenants are active, how
// connectivity is probed, and how the sync engine replays entries.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
