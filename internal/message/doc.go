// Package message owns the message stream for one conversation.
//
// # Controller
//
// The Controller subscribes to the store's message snapshot stream and
// reduces every emission into an immutable State: the ascending message
// list, a loading flag, the last operation error, and resolved sender
// profiles. Re-initializing for another conversation cancels the previous
// subscription first; a late snapshot from a replaced subscription is
// discarded.
//
// # Operations
//
//   - Send: validates non-blank content for text messages, stamps id and
//     timestamp, persists
//   - Edit, Delete: sender-only, checked against the latest snapshot
//   - MarkRead, MarkAllRead: idempotent read receipts; failures are logged
//     and swallowed because receipts are best-effort
//
// Operations never mutate local state directly. The store's next snapshot
// emission is the single source of truth, so a failed operation leaves the
// state exactly as the store has it.
package message
