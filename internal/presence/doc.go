// Package presence reduces the store's online-user-id stream into a count
// snapshot for display. The observing user is always excluded, and the
// aggregator keeps at most one live subscription per (context, user) pair.
package presence
