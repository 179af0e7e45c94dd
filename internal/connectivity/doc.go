// Package connectivity tracks whether the remote store is reachable and
// notifies subscribers when connectivity is regained.
//
// A Monitor combines periodic probes, manual reports from the host
// application, and optional netlink interface events. Losing connectivity
// takes effect immediately; regaining it is only published once the
// connected state has held for the debounce window, so a flapping link
// triggers at most one regained notification per stable transition.
package connectivity
