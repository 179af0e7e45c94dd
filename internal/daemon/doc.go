// Package daemon coordinates the long-running offsync process.
//
// It wires configuration, the queue store, the connectivity monitor, the sync
// engine, the pending-count monitor and the retention purger into a single
// lifecycle with flock-based locking to prevent multiple instances. When the
// monitor reports regained connectivity the daemon replays every active
// tenant's queue. The optional HTTP API exposes enqueue, listing, manual sync,
// requeue, purge and manual connectivity reports to local clients.
//
// Keep orchestration here: replay rules live in syncengine and storage rules
// in queue.
package daemon
