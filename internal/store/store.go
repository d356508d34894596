// ABOUTME: Store interfaces and data types for threadline persistence
// ABOUTME: Defines Message, Poll, Profile structs and the four collaborator interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a store that has been shut down
var ErrClosed = errors.New("store closed")

// ErrNotCreator is returned when a poll management operation is attempted by
// a user other than the poll's creator
var ErrNotCreator = errors.New("not the poll creator")

// MessageType constants for message content kinds
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeLocation MessageType = "location"
	MessageTypePoll     MessageType = "poll"
	MessageTypeSystem   MessageType = "system"
)

// Location is the structured payload carried by location messages.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// Message is a single conversation message. Timestamp and Type are immutable
// after creation; ReadBy only ever grows; Content/Edited mutate only through
// the sender's own edit.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string // text, or an opaque payload reference (poll id, image ref)
	Type           MessageType
	Timestamp      time.Time
	Edited         bool
	ReadBy         []string
	Location       *Location
}

// ReadByUser reports whether userID is in the message's read set.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// PollOption is one answer choice. Option ids are dense and stable from
// creation, starting at 0.
type PollOption struct {
	ID     int
	Text   string
	Voters []string
}

// HasVoter reports whether userID has voted for this option.
func (o *PollOption) HasVoter(userID string) bool {
	for _, id := range o.Voters {
		if id == userID {
			return true
		}
	}
	return false
}

// Poll is a conversation poll. For single-answer polls (AllowMultipleAnswers
// false) a user appears in at most one option's voter set; the store's Vote
// operation is the single enforcement point for that invariant.
type Poll struct {
	ID                   string
	ConversationID       string
	CreatorID            string
	CreatorName          string
	Question             string
	Options              []PollOption
	Anonymous            bool
	AllowMultipleAnswers bool
	Closed               bool
	CreatedAt            time.Time
	ClosedAt             *time.Time
}

// Option returns the option with the given id, or nil.
func (p *Poll) Option(optionID int) *PollOption {
	for i := range p.Options {
		if p.Options[i].ID == optionID {
			return &p.Options[i]
		}
	}
	return nil
}

// Profile is user display metadata. Cached for the life of a session and
// never actively invalidated.
type Profile struct {
	ID       string
	Username string
	PhotoURL string
}

// MessageStore is the external message collaborator. ObserveMessages emits
// the current full snapshot immediately, then a replacement snapshot after
// every mutation, until ctx is cancelled or the returned cancel func is
// called.
type MessageStore interface {
	NewID() string
	ObserveMessages(ctx context.Context, conversationID string) (<-chan []*Message, func(), error)
	Add(ctx context.Context, msg *Message) error
	Edit(ctx context.Context, msg *Message) error
	Delete(ctx context.Context, conversationID, messageID string) error
	MarkRead(ctx context.Context, conversationID, messageID, userID string) error
}

// PollStore is the external poll collaborator. Vote and RemoveVote toggle a
// single (option, user) membership; for single-answer polls Vote atomically
// clears the user's prior memberships in the same operation.
type PollStore interface {
	NewID() string
	ObservePolls(ctx context.Context, conversationID string) (<-chan []*Poll, func(), error)
	Create(ctx context.Context, poll *Poll) error
	Vote(ctx context.Context, conversationID, pollID string, optionID int, userID string) error
	RemoveVote(ctx context.Context, conversationID, pollID string, optionID int, userID string) error
	ClosePoll(ctx context.Context, conversationID, pollID, userID string) error
	ReopenPoll(ctx context.Context, conversationID, pollID, userID string) error
	DeletePoll(ctx context.Context, conversationID, pollID, userID string) error
}

// ProfileStore resolves user display metadata one id at a time; each fetch
// may fail independently.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*Profile, error)
}

// PresenceStore streams the set of online user ids for a context, already
// excluding the given user.
type PresenceStore interface {
	ObserveOnlineIDs(ctx context.Context, contextID, excludingUserID string) (<-chan []string, func(), error)
}
