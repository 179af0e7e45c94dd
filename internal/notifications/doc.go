// Package notifications pushes sync outcomes that need a person's attention.
//
// The default implementation publishes to ntfy using the topic configured in
// the [notifications] section and degrades to a no-op when no topic is set.
// The daemon only depends on the Service interface.
package notifications
