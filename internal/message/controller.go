// ABOUTME: Message lifecycle controller reducing the message stream to state
// ABOUTME: Owns send/edit/delete/mark-read with ownership and validation checks

package message

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/2389/threadline/internal/fault"
	"github.com/2389/threadline/internal/profile"
	"github.com/2389/threadline/internal/store"
	"github.com/2389/threadline/internal/stream"
)

// watchKey is the broadcaster key for controller state updates.
const watchKey = "state"

// State is an immutable snapshot of the controller. Messages are ascending
// by timestamp; Profiles holds every sender profile resolved so far.
type State struct {
	ConversationID string
	UserID         string
	Messages       []*store.Message
	Loading        bool
	Err            error
	Profiles       map[string]*store.Profile
}

// Message returns the message with the given id from the snapshot, or nil.
func (s State) Message(messageID string) *store.Message {
	for _, m := range s.Messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

// UnreadCount counts snapshot messages the current user has not read. A
// user's own messages never count as unread for themself.
func (s State) UnreadCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.SenderID != s.UserID && !m.ReadByUser(s.UserID) {
			n++
		}
	}
	return n
}

// Controller owns the message stream for one conversation: it reduces each
// snapshot emission into State, resolves sender profiles, and performs
// send/edit/delete/mark-read against the store. State updates apply in the
// order their triggering emissions or operations complete.
type Controller struct {
	mu       sync.RWMutex
	messages store.MessageStore
	resolver *profile.Resolver
	logger   *slog.Logger

	state    State
	watchers *stream.Broadcaster[State]

	cancelObserve func()
	observeCtx    context.Context
}

// NewController creates a controller. Pass nil logger for default.
func NewController(messages store.MessageStore, resolver *profile.Resolver, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "messages")
	return &Controller{
		messages: messages,
		resolver: resolver,
		logger:   logger,
		watchers: stream.NewBroadcaster[State](logger),
	}
}

// Init subscribes to the message stream for conversationID as userID. Any
// previous subscription is cancelled first so state never bleeds across
// conversations. Blocks only for subscription setup, not for the first
// emission.
func (c *Controller) Init(ctx context.Context, conversationID, userID string) error {
	c.mu.Lock()
	if c.cancelObserve != nil {
		c.cancelObserve()
		c.cancelObserve = nil
	}
	c.state = State{
		ConversationID: conversationID,
		UserID:         userID,
		Loading:        true,
		Profiles:       map[string]*store.Profile{},
	}
	c.mu.Unlock()
	c.publish()

	obsCtx, cancel := context.WithCancel(ctx)
	ch, stop, err := c.messages.ObserveMessages(obsCtx, conversationID)
	if err != nil {
		cancel()
		serr := fault.Storef("message.observe", err, "subscribing to messages failed")
		c.setErr(serr)
		return serr
	}

	c.mu.Lock()
	c.cancelObserve = func() {
		cancel()
		stop()
	}
	c.observeCtx = obsCtx
	c.mu.Unlock()

	go func() {
		for snapshot := range ch {
			c.applySnapshot(obsCtx, conversationID, snapshot)
		}
	}()

	c.logger.Debug("subscribed", "conversation_id", conversationID, "user_id", userID)
	return nil
}

// Close cancels the active subscription and stops state broadcasting.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.cancelObserve != nil {
		c.cancelObserve()
		c.cancelObserve = nil
	}
	c.mu.Unlock()
	c.watchers.Close()
}

// State returns the current immutable snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Watch returns a channel receiving every state snapshot published after the
// call, until ctx is cancelled.
func (c *Controller) Watch(ctx context.Context) <-chan State {
	ch, _ := c.watchers.Subscribe(ctx, watchKey)
	return ch
}

// Send validates and submits a new message. TEXT messages reject blank
// content; other types carry opaque payloads and bypass the check. The
// message is stamped with a fresh store id and the current wall clock. A
// store failure surfaces as the send error without rolling anything back:
// the authoritative snapshot is the store's next emission.
func (c *Controller) Send(ctx context.Context, content, senderName string, msgType store.MessageType) error {
	const op = "message.send"

	if msgType == "" {
		msgType = store.MessageTypeText
	}
	if msgType == store.MessageTypeText && strings.TrimSpace(content) == "" {
		return fault.Validationf(op, "message is empty")
	}

	st := c.State()
	if st.ConversationID == "" {
		return fault.Validationf(op, "controller not initialized")
	}

	msg := &store.Message{
		ID:             c.messages.NewID(),
		ConversationID: st.ConversationID,
		SenderID:       st.UserID,
		SenderName:     senderName,
		Content:        content,
		Type:           msgType,
		Timestamp:      time.Now(),
	}
	if err := c.messages.Add(ctx, msg); err != nil {
		serr := fault.Storef(op, err, "sending message failed")
		c.setErr(serr)
		return serr
	}
	return nil
}

// Edit updates a message's content. Only the sender may edit, and only
// against the latest snapshot: a concurrently deleted target is a normal
// not-found, not a crash.
func (c *Controller) Edit(ctx context.Context, messageID, newContent string) error {
	const op = "message.edit"

	if strings.TrimSpace(newContent) == "" {
		return fault.Validationf(op, "message is empty")
	}

	st := c.State()
	msg := st.Message(messageID)
	if msg == nil {
		return fault.NotFoundf(op, "message %s not found", messageID)
	}
	if msg.SenderID != st.UserID {
		return fault.Unauthorizedf(op, "only the sender may edit a message")
	}

	updated := *msg
	updated.Content = newContent
	updated.Edited = true
	if err := c.messages.Edit(ctx, &updated); err != nil {
		serr := fault.Storef(op, err, "editing message failed")
		c.setErr(serr)
		return serr
	}
	return nil
}

// Delete removes a message. Same lookup and ownership rules as Edit.
func (c *Controller) Delete(ctx context.Context, messageID string) error {
	const op = "message.delete"

	st := c.State()
	msg := st.Message(messageID)
	if msg == nil {
		return fault.NotFoundf(op, "message %s not found", messageID)
	}
	if msg.SenderID != st.UserID {
		return fault.Unauthorizedf(op, "only the sender may delete a message")
	}

	if err := c.messages.Delete(ctx, st.ConversationID, messageID); err != nil {
		serr := fault.Storef(op, err, "deleting message failed")
		c.setErr(serr)
		return serr
	}
	return nil
}

// MarkRead records a read receipt for one message. Idempotent: a message
// already read by the user produces no store call. Read receipts are
// best-effort, so failures are logged and swallowed rather than interrupting
// the reading flow.
func (c *Controller) MarkRead(ctx context.Context, messageID string) {
	st := c.State()
	msg := st.Message(messageID)
	if msg == nil || msg.ReadByUser(st.UserID) {
		return
	}
	if err := c.messages.MarkRead(ctx, st.ConversationID, messageID, st.UserID); err != nil {
		c.logger.Warn("mark read failed", "message_id", messageID, "error", err)
	}
}

// MarkAllRead records read receipts for every unread snapshot message, with
// the same idempotence and best-effort semantics as MarkRead.
func (c *Controller) MarkAllRead(ctx context.Context) {
	st := c.State()
	for _, msg := range st.Messages {
		if msg.ReadByUser(st.UserID) {
			continue
		}
		if err := c.messages.MarkRead(ctx, st.ConversationID, msg.ID, st.UserID); err != nil {
			c.logger.Warn("mark read failed", "message_id", msg.ID, "error", err)
		}
	}
}

// UnreadCount counts unread messages in the latest snapshot.
func (c *Controller) UnreadCount() int {
	return c.State().UnreadCount()
}

// applySnapshot replaces the message snapshot and kicks off profile
// resolution for any sender ids not yet cached. A snapshot from a cancelled
// or replaced subscription is discarded so state never bleeds across
// conversations.
func (c *Controller) applySnapshot(ctx context.Context, conversationID string, snapshot []*store.Message) {
	if ctx.Err() != nil {
		return
	}

	msgs := make([]*store.Message, len(snapshot))
	copy(msgs, snapshot)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	c.mu.Lock()
	if c.state.ConversationID != conversationID {
		c.mu.Unlock()
		return
	}
	c.state.Messages = msgs
	c.state.Loading = false
	c.mu.Unlock()
	c.publish()

	senderIDs := make([]string, 0, len(msgs))
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if _, dup := seen[m.SenderID]; dup {
			continue
		}
		seen[m.SenderID] = struct{}{}
		senderIDs = append(senderIDs, m.SenderID)
	}

	go func() {
		resolved := c.resolver.Resolve(ctx, senderIDs)
		if len(resolved) == 0 || ctx.Err() != nil {
			return
		}
		c.mergeProfiles(resolved)
	}()
}

// mergeProfiles unions newly resolved profiles into the state. Additive
// only: previously resolved entries are never discarded.
func (c *Controller) mergeProfiles(resolved map[string]*store.Profile) {
	c.mu.Lock()
	merged := make(map[string]*store.Profile, len(c.state.Profiles)+len(resolved))
	for id, p := range c.state.Profiles {
		merged[id] = p
	}
	for id, p := range resolved {
		merged[id] = p
	}
	c.state.Profiles = merged
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) setErr(err error) {
	c.mu.Lock()
	c.state.Err = err
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) publish() {
	c.watchers.Publish(watchKey, c.State())
}
