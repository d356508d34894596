// ABOUTME: Mock implementation of all four store interfaces for testing
// ABOUTME: In-memory state with call counters, failure injection, and live snapshots

package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/threadline/internal/stream"
)

// MockStore is an in-memory implementation of MessageStore, PollStore,
// ProfileStore and PresenceStore. Every mutation re-emits a full snapshot to
// observers, matching the contract of the real store. Tests can count calls
// per method and inject failures.
type MockStore struct {
	mu       sync.RWMutex
	messages map[string][]*Message // keyed by conversation id
	polls    map[string][]*Poll    // keyed by conversation id
	profiles map[string]*Profile   // keyed by user id
	online   map[string][]string   // keyed by context id
	calls    map[string]int
	errs     map[string]error

	msgCast      *stream.Broadcaster[[]*Message]
	pollCast     *stream.Broadcaster[[]*Poll]
	presenceCast *stream.Broadcaster[[]string]
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		messages:     make(map[string][]*Message),
		polls:        make(map[string][]*Poll),
		profiles:     make(map[string]*Profile),
		online:       make(map[string][]string),
		calls:        make(map[string]int),
		errs:         make(map[string]error),
		msgCast:      stream.NewBroadcaster[[]*Message](nil),
		pollCast:     stream.NewBroadcaster[[]*Poll](nil),
		presenceCast: stream.NewBroadcaster[[]string](nil),
	}
}

// FailWith makes the named method (e.g. "Add", "Vote") return err until
// cleared with a nil err.
func (m *MockStore) FailWith(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, method)
		return
	}
	m.errs[method] = err
}

// Calls returns how many times the named method was invoked.
func (m *MockStore) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// record counts a call and returns any injected failure. Must be called
// without mu held.
func (m *MockStore) record(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
	return m.errs[method]
}

// NewID returns a fresh unique id.
func (m *MockStore) NewID() string {
	return uuid.New().String()
}

// --- MessageStore ---

// ObserveMessages streams message snapshots for a conversation: the current
// snapshot immediately, then one per mutation.
func (m *MockStore) ObserveMessages(ctx context.Context, conversationID string) (<-chan []*Message, func(), error) {
	if err := m.record("ObserveMessages"); err != nil {
		return nil, nil, err
	}

	sub, subID := m.msgCast.Subscribe(ctx, conversationID)
	out := make(chan []*Message, 1)
	out <- m.messageSnapshot(conversationID)

	go func() {
		defer close(out)
		for snap := range sub {
			out <- snap
		}
	}()

	cancel := func() { m.msgCast.Unsubscribe(conversationID, subID) }
	return out, cancel, nil
}

// Add stores a new message and re-emits the snapshot.
func (m *MockStore) Add(ctx context.Context, msg *Message) error {
	if err := m.record("Add"); err != nil {
		return err
	}

	m.mu.Lock()
	c := copyMessage(msg)
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], c)
	m.mu.Unlock()

	m.emitMessages(msg.ConversationID)
	return nil
}

// Edit updates a message's content and edited flag. Type and timestamp are
// immutable and ignored from the argument.
func (m *MockStore) Edit(ctx context.Context, msg *Message) error {
	if err := m.record("Edit"); err != nil {
		return err
	}

	m.mu.Lock()
	found := false
	for _, existing := range m.messages[msg.ConversationID] {
		if existing.ID == msg.ID {
			existing.Content = msg.Content
			existing.Edited = msg.Edited
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return ErrNotFound
	}
	m.emitMessages(msg.ConversationID)
	return nil
}

// Delete removes a message and re-emits the snapshot.
func (m *MockStore) Delete(ctx context.Context, conversationID, messageID string) error {
	if err := m.record("Delete"); err != nil {
		return err
	}

	m.mu.Lock()
	msgs := m.messages[conversationID]
	found := false
	for i, existing := range msgs {
		if existing.ID == messageID {
			m.messages[conversationID] = append(msgs[:i:i], msgs[i+1:]...)
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return ErrNotFound
	}
	m.emitMessages(conversationID)
	return nil
}

// MarkRead appends userID to the message's read set if absent. Idempotent.
func (m *MockStore) MarkRead(ctx context.Context, conversationID, messageID, userID string) error {
	if err := m.record("MarkRead"); err != nil {
		return err
	}

	m.mu.Lock()
	var target *Message
	for _, existing := range m.messages[conversationID] {
		if existing.ID == messageID {
			target = existing
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	changed := false
	if !target.ReadByUser(userID) {
		target.ReadBy = append(target.ReadBy, userID)
		changed = true
	}
	m.mu.Unlock()

	if changed {
		m.emitMessages(conversationID)
	}
	return nil
}

// --- PollStore ---

// ObservePolls streams poll snapshots for a conversation with the same
// contract as ObserveMessages.
func (m *MockStore) ObservePolls(ctx context.Context, conversationID string) (<-chan []*Poll, func(), error) {
	if err := m.record("ObservePolls"); err != nil {
		return nil, nil, err
	}

	sub, subID := m.pollCast.Subscribe(ctx, conversationID)
	out := make(chan []*Poll, 1)
	out <- m.pollSnapshot(conversationID)

	go func() {
		defer close(out)
		for snap := range sub {
			out <- snap
		}
	}()

	cancel := func() { m.pollCast.Unsubscribe(conversationID, subID) }
	return out, cancel, nil
}

// Create stores a new poll and re-emits the snapshot.
func (m *MockStore) Create(ctx context.Context, poll *Poll) error {
	if err := m.record("Create"); err != nil {
		return err
	}

	m.mu.Lock()
	c := copyPoll(poll)
	m.polls[poll.ConversationID] = append(m.polls[poll.ConversationID], c)
	m.mu.Unlock()

	m.emitPolls(poll.ConversationID)
	return nil
}

// Vote records a vote. For single-answer polls the user's prior memberships
// are cleared in the same operation; this store is the single enforcement
// point for that invariant.
func (m *MockStore) Vote(ctx context.Context, conversationID, pollID string, optionID int, userID string) error {
	if err := m.record("Vote"); err != nil {
		return err
	}

	m.mu.Lock()
	poll := m.findPoll(conversationID, pollID)
	if poll == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	option := poll.Option(optionID)
	if option == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	if !poll.AllowMultipleAnswers {
		for i := range poll.Options {
			poll.Options[i].Voters = removeVoter(poll.Options[i].Voters, userID)
		}
	}
	if !option.HasVoter(userID) {
		option.Voters = append(option.Voters, userID)
	}
	m.mu.Unlock()

	m.emitPolls(conversationID)
	return nil
}

// RemoveVote removes a single (option, user) membership.
func (m *MockStore) RemoveVote(ctx context.Context, conversationID, pollID string, optionID int, userID string) error {
	if err := m.record("RemoveVote"); err != nil {
		return err
	}

	m.mu.Lock()
	poll := m.findPoll(conversationID, pollID)
	if poll == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	option := poll.Option(optionID)
	if option == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	option.Voters = removeVoter(option.Voters, userID)
	m.mu.Unlock()

	m.emitPolls(conversationID)
	return nil
}

// ClosePoll closes a poll. Creator only.
func (m *MockStore) ClosePoll(ctx context.Context, conversationID, pollID, userID string) error {
	if err := m.record("ClosePoll"); err != nil {
		return err
	}

	m.mu.Lock()
	poll := m.findPoll(conversationID, pollID)
	if poll == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	if poll.CreatorID != userID {
		m.mu.Unlock()
		return ErrNotCreator
	}
	now := time.Now()
	poll.Closed = true
	poll.ClosedAt = &now
	m.mu.Unlock()

	m.emitPolls(conversationID)
	return nil
}

// ReopenPoll reopens a closed poll. Creator only.
func (m *MockStore) ReopenPoll(ctx context.Context, conversationID, pollID, userID string) error {
	if err := m.record("ReopenPoll"); err != nil {
		return err
	}

	m.mu.Lock()
	poll := m.findPoll(conversationID, pollID)
	if poll == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	if poll.CreatorID != userID {
		m.mu.Unlock()
		return ErrNotCreator
	}
	poll.Closed = false
	poll.ClosedAt = nil
	m.mu.Unlock()

	m.emitPolls(conversationID)
	return nil
}

// DeletePoll removes a poll. Creator only.
func (m *MockStore) DeletePoll(ctx context.Context, conversationID, pollID, userID string) error {
	if err := m.record("DeletePoll"); err != nil {
		return err
	}

	m.mu.Lock()
	polls := m.polls[conversationID]
	idx := -1
	for i, p := range polls {
		if p.ID == pollID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return ErrNotFound
	}
	if polls[idx].CreatorID != userID {
		m.mu.Unlock()
		return ErrNotCreator
	}
	m.polls[conversationID] = append(polls[:idx:idx], polls[idx+1:]...)
	m.mu.Unlock()

	m.emitPolls(conversationID)
	return nil
}

// --- ProfileStore ---

// Get returns the profile for userID or ErrNotFound.
func (m *MockStore) Get(ctx context.Context, userID string) (*Profile, error) {
	if err := m.record("Get"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

// PutProfile seeds a profile for tests.
func (m *MockStore) PutProfile(p *Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *p
	m.profiles[p.ID] = &c
}

// --- PresenceStore ---

// ObserveOnlineIDs streams the online id list for a context, excluding the
// given user.
func (m *MockStore) ObserveOnlineIDs(ctx context.Context, contextID, excludingUserID string) (<-chan []string, func(), error) {
	if err := m.record("ObserveOnlineIDs"); err != nil {
		return nil, nil, err
	}

	sub, subID := m.presenceCast.Subscribe(ctx, contextID)
	out := make(chan []string, 1)
	out <- m.onlineSnapshot(contextID, excludingUserID)

	go func() {
		defer close(out)
		for raw := range sub {
			out <- removeVoter(append([]string(nil), raw...), excludingUserID)
		}
	}()

	cancel := func() { m.presenceCast.Unsubscribe(contextID, subID) }
	return out, cancel, nil
}

// SetOnline marks userID online in a context and re-emits to all observers.
func (m *MockStore) SetOnline(contextID, userID string) {
	m.mu.Lock()
	ids := m.online[contextID]
	present := false
	for _, id := range ids {
		if id == userID {
			present = true
			break
		}
	}
	if !present {
		m.online[contextID] = append(ids, userID)
	}
	m.mu.Unlock()
	m.emitPresence(contextID)
}

// SetOffline marks userID offline in a context and re-emits to all observers.
func (m *MockStore) SetOffline(contextID, userID string) {
	m.mu.Lock()
	m.online[contextID] = removeVoter(m.online[contextID], userID)
	m.mu.Unlock()
	m.emitPresence(contextID)
}

// --- snapshots and helpers ---

func (m *MockStore) messageSnapshot(conversationID string) []*Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	out := make([]*Message, len(msgs))
	for i, msg := range msgs {
		out[i] = copyMessage(msg)
	}
	return out
}

func (m *MockStore) pollSnapshot(conversationID string) []*Poll {
	m.mu.RLock()
	defer m.mu.RUnlock()
	polls := m.polls[conversationID]
	out := make([]*Poll, len(polls))
	for i, p := range polls {
		out[i] = copyPoll(p)
	}
	return out
}

func (m *MockStore) onlineSnapshot(contextID, excludingUserID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.online[contextID]))
	for _, id := range m.online[contextID] {
		if id == excludingUserID {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (m *MockStore) emitMessages(conversationID string) {
	m.msgCast.Publish(conversationID, m.messageSnapshot(conversationID))
}

func (m *MockStore) emitPolls(conversationID string) {
	m.pollCast.Publish(conversationID, m.pollSnapshot(conversationID))
}

func (m *MockStore) emitPresence(contextID string) {
	m.mu.RLock()
	raw := append([]string(nil), m.online[contextID]...)
	m.mu.RUnlock()
	m.presenceCast.Publish(contextID, raw)
}

func (m *MockStore) findPoll(conversationID, pollID string) *Poll {
	for _, p := range m.polls[conversationID] {
		if p.ID == pollID {
			return p
		}
	}
	return nil
}

func copyMessage(msg *Message) *Message {
	c := *msg
	c.ReadBy = append([]string(nil), msg.ReadBy...)
	if msg.Location != nil {
		loc := *msg.Location
		c.Location = &loc
	}
	return &c
}

func copyPoll(p *Poll) *Poll {
	c := *p
	c.Options = make([]PollOption, len(p.Options))
	for i, opt := range p.Options {
		c.Options[i] = PollOption{
			ID:     opt.ID,
			Text:   opt.Text,
			Voters: append([]string(nil), opt.Voters...),
		}
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func removeVoter(voters []string, userID string) []string {
	out := voters[:0]
	for _, id := range voters {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
