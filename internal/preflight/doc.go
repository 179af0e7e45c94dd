// Package preflight provides readiness checks for the filesystem paths and
// remote endpoint offsync depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll on startup and logs every failed check.
//   - The CLI "offsync health" command prints the results.
//
// Checks for unconfigured features are skipped.
package preflight
