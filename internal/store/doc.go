// Package store provides persistent storage for threadline using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with one interface
// per concern:
//
//   - MessageStore: Message lifecycle and read receipts
//   - PollStore: Poll lifecycle, voting, and creator management
//   - ProfileStore: User display metadata lookup
//   - PresenceStore: Online-user tracking per context
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries. Controllers
// depend only on the interface they consume.
//
// # Snapshot Streams
//
// Observation is snapshot-based, not delta-based. ObserveMessages,
// ObservePolls and ObserveOnlineIDs each return a channel that carries the
// current full snapshot immediately, then a full replacement snapshot after
// every mutation. Consumers replace their state wholesale on every receive;
// there is no diffing protocol and a missed intermediate snapshot is
// harmless.
//
// # Data Models
//
//   - Message: One conversation message with type, sender, read set, and
//     optional location payload
//   - Poll: A question with indexed options; each option carries its voter
//     id set
//   - Profile: User display metadata (username, photo)
//
// A poll renders in a conversation through a companion message of type
// MessageTypePoll whose Content is the poll id.
//
// # Invariants
//
// Single-answer vote exclusivity is enforced inside the store's Vote
// operation: for a poll without AllowMultipleAnswers, recording a vote
// removes the user's memberships from every other option in the same
// transaction. Callers toggle memberships; they never re-derive exclusivity
// from a possibly stale snapshot.
//
// Poll close, reopen and delete are creator-only and return ErrNotCreator
// for anyone else.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The schema is created automatically on open.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrNotCreator: Poll management attempted by a non-creator
//   - ErrClosed: Operation against a closed store
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests:
//
//	store := store.NewMockStore()
//	// store implements all four interfaces
//
// The mock honors the same snapshot-stream and exclusivity contracts as the
// SQLite backend, counts calls per method, and supports failure injection
// via FailWith.
package store
