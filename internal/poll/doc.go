// Package poll owns poll creation, voting, and management for one
// conversation.
//
// # Controller
//
// The Controller subscribes to the store's poll snapshot stream and reduces
// every emission into an immutable State holding the ascending poll list,
// the creation draft, and resolved voter profiles.
//
// # Draft and Creation
//
// A Draft accumulates question, options and flags without touching the
// store. Limits bound option count and text lengths; validation rejects
// blank questions, too few options, over-long input, and options that are
// duplicates after trimming and case folding. CreatePoll persists the poll
// and a companion message of type poll whose content is the poll id and
// whose timestamp equals the poll's creation time.
//
// # Voting
//
// Vote is a pure membership toggle: whether the user currently appears in
// the option's voter set decides add versus remove. Single-answer
// exclusivity is the store's transactional invariant and is never re-derived
// locally, so concurrent voters converge on the store's next emission.
// Closed polls reject votes before any store call.
//
// Close, reopen and delete are creator-only; the controller checks the
// snapshot and the store enforces the same rule authoritatively.
package poll
