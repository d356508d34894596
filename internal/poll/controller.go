// ABOUTME: Poll voting state machine reducing the poll stream to state
// ABOUTME: Owns creation, vote toggling, and close/reopen/delete permission checks

package poll

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/threadline/internal/fault"
	"github.com/2389/threadline/internal/profile"
	"github.com/2389/threadline/internal/store"
	"github.com/2389/threadline/internal/stream"
)

const watchKey = "state"

// State is an immutable snapshot of the controller: the current poll
// snapshot (ascending by creation time), the creation draft, and every voter
// profile resolved so far.
type State struct {
	ConversationID string
	UserID         string
	Polls          []*store.Poll
	Loading        bool
	Err            error
	Draft          Draft
	Profiles       map[string]*store.Profile
}

// Poll returns the poll with the given id from the snapshot, or nil.
func (s State) Poll(pollID string) *store.Poll {
	for _, p := range s.Polls {
		if p.ID == pollID {
			return p
		}
	}
	return nil
}

// Controller owns the poll stream for one conversation. Voting is a pure
// membership toggle: whether the user is currently in the option's voter set
// decides add vs remove, and single-answer exclusivity is the store's
// transactional invariant, never re-derived locally from a possibly stale
// snapshot.
type Controller struct {
	mu       sync.RWMutex
	polls    store.PollStore
	messages store.MessageStore
	resolver *profile.Resolver
	limits   Limits
	logger   *slog.Logger

	state    State
	watchers *stream.Broadcaster[State]

	cancelObserve func()
}

// NewController creates a controller. The message store persists the
// companion POLL message on creation. Pass nil logger for default.
func NewController(polls store.PollStore, messages store.MessageStore, resolver *profile.Resolver, limits Limits, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "polls")
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Controller{
		polls:    polls,
		messages: messages,
		resolver: resolver,
		limits:   limits,
		logger:   logger,
		watchers: stream.NewBroadcaster[State](logger),
	}
}

// Init subscribes to the poll stream for conversationID as userID,
// cancelling any previous subscription first.
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
		Draft:          newDraft(c.limits),
		Profiles:       map[string]*store.Profile{},
	}
	c.mu.Unlock()
	c.publish()

	obsCtx, cancel := context.WithCancel(ctx)
	ch, stop, err := c.polls.ObservePolls(obsCtx, conversationID)
	if err != nil {
		cancel()
		serr := fault.Storef("poll.observe", err, "subscribing to polls failed")
		c.setErr(serr)
		return serr
	}

	c.mu.Lock()
	c.cancelObserve = func() {
		cancel()
		stop()
	}
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

// SetQuestion updates the draft question.
func (c *Controller) SetQuestion(question string) {
	c.updateDraft(func(d *Draft) {
		d.Question = question
		d.Err = nil
	})
}

// SetOption updates one draft option slot. Out-of-range indexes are ignored.
func (c *Controller) SetOption(index int, text string) {
	c.updateDraft(func(d *Draft) {
		if index < 0 || index >= len(d.Options) {
			return
		}
		d.Options[index] = text
		d.Err = nil
	})
}

// SetAnonymous updates the draft anonymity flag.
func (c *Controller) SetAnonymous(anonymous bool) {
	c.updateDraft(func(d *Draft) { d.Anonymous = anonymous })
}

// SetAllowMultipleAnswers updates the draft multiple-answer flag.
func (c *Controller) SetAllowMultipleAnswers(allow bool) {
	c.updateDraft(func(d *Draft) { d.AllowMultipleAnswers = allow })
}

// AddOption appends a blank option slot. No-op at the maximum.
func (c *Controller) AddOption() {
	c.updateDraft(func(d *Draft) {
		if len(d.Options) >= c.limits.MaxOptions {
			return
		}
		d.Options = append(d.Options, "")
	})
}

// RemoveOption deletes an option slot. No-op at the minimum or for an
// out-of-range index.
func (c *Controller) RemoveOption(index int) {
	c.updateDraft(func(d *Draft) {
		if len(d.Options) <= c.limits.MinOptions || index < 0 || index >= len(d.Options) {
			return
		}
		d.Options = append(d.Options[:index:index], d.Options[index+1:]...)
	})
}

// ResetDraft discards the current draft and starts a fresh one.
func (c *Controller) ResetDraft() {
	c.mu.Lock()
	c.state.Draft = newDraft(c.limits)
	c.mu.Unlock()
	c.publish()
}

// CreatePoll validates the draft and persists the poll plus its companion
// POLL message. The companion's content is the poll id and its timestamp
// equals the poll's creation timestamp, so the merge engine resolves it the
// moment both snapshots arrive. On any failure the creating flag resets and
// the error lands in the draft; nothing is rolled back.
func (c *Controller) CreatePoll(ctx context.Context, creatorName string) error {
	const op = "poll.create"

	st := c.State()
	if err := st.Draft.validate(c.limits); err != nil {
		c.updateDraft(func(d *Draft) { d.Err = err })
		return err
	}
	if st.ConversationID == "" {
		err := fault.Validationf(op, "controller not initialized")
		c.updateDraft(func(d *Draft) { d.Err = err })
		return err
	}

	c.updateDraft(func(d *Draft) {
		d.Creating = true
		d.Err = nil
	})

	texts := st.Draft.optionTexts()
	options := make([]store.PollOption, len(texts))
	for i, text := range texts {
		options[i] = store.PollOption{ID: i, Text: text}
	}

	now := time.Now()
	poll := &store.Poll{
		ID:                   c.polls.NewID(),
		ConversationID:       st.ConversationID,
		CreatorID:            st.UserID,
		CreatorName:          creatorName,
		Question:             st.Draft.Question,
		Options:              options,
		Anonymous:            st.Draft.Anonymous,
		AllowMultipleAnswers: st.Draft.AllowMultipleAnswers,
		CreatedAt:            now,
	}
	if err := c.polls.Create(ctx, poll); err != nil {
		serr := fault.Storef(op, err, "creating poll failed")
		c.updateDraft(func(d *Draft) {
			d.Creating = false
			d.Err = serr
		})
		return serr
	}

	companion := &store.Message{
		ID:             c.messages.NewID(),
		ConversationID: st.ConversationID,
		SenderID:       st.UserID,
		SenderName:     creatorName,
		Content:        poll.ID,
		Type:           store.MessageTypePoll,
		Timestamp:      now,
	}
	if err := c.messages.Add(ctx, companion); err != nil {
		serr := fault.Storef(op, err, "creating poll message failed")
		c.updateDraft(func(d *Draft) {
			d.Creating = false
			d.Err = serr
		})
		return serr
	}

	c.mu.Lock()
	c.state.Draft = newDraft(c.limits)
	c.mu.Unlock()
	c.publish()
	return nil
}

// Vote toggles the user's vote on one option. A closed poll rejects without
// a store call. Membership in the option's voter set decides the direction;
// exclusivity for single-answer polls is enforced by the store's vote
// operation, so a temporarily stale snapshot is tolerated and corrected by
// the next emission.
func (c *Controller) Vote(ctx context.Context, pollID string, optionID int) error {
	const op = "poll.vote"

	st := c.State()
	poll := st.Poll(pollID)
	if poll == nil {
		return fault.NotFoundf(op, "poll %s not found", pollID)
	}
	if poll.Closed {
		return fault.Validationf(op, "poll is closed")
	}
	option := poll.Option(optionID)
	if option == nil {
		return fault.NotFoundf(op, "option %d not found", optionID)
	}

	var err error
	if option.HasVoter(st.UserID) {
		err = c.polls.RemoveVote(ctx, st.ConversationID, pollID, optionID, st.UserID)
	} else {
		err = c.polls.Vote(ctx, st.ConversationID, pollID, optionID, st.UserID)
	}
	if err != nil {
		serr := fault.Storef(op, err, "voting failed")
		c.setErr(serr)
		return serr
	}
	return nil
}

// ClosePoll closes a poll. Creator only.
func (c *Controller) ClosePoll(ctx context.Context, pollID string) error {
	return c.manage(ctx, "poll.close", pollID, c.polls.ClosePoll)
}

// ReopenPoll reopens a closed poll. Creator only.
func (c *Controller) ReopenPoll(ctx context.Context, pollID string) error {
	return c.manage(ctx, "poll.reopen", pollID, c.polls.ReopenPoll)
}

// DeletePoll deletes a poll. Creator only. The companion POLL message
// becomes a dangling reference the merge engine drops.
func (c *Controller) DeletePoll(ctx context.Context, pollID string) error {
	return c.manage(ctx, "poll.delete", pollID, c.polls.DeletePoll)
}

// manage runs one creator-gated store operation against the latest snapshot.
func (c *Controller) manage(ctx context.Context, op, pollID string, call func(ctx context.Context, conversationID, pollID, userID string) error) error {
	st := c.State()
	poll := st.Poll(pollID)
	if poll == nil {
		return fault.NotFoundf(op, "poll %s not found", pollID)
	}
	if poll.CreatorID != st.UserID {
		return fault.Unauthorizedf(op, "only the poll creator may do this")
	}

	if err := call(ctx, st.ConversationID, pollID, st.UserID); err != nil {
		serr := fault.Storef(op, err, "poll operation failed")
		c.setErr(serr)
		return serr
	}
	return nil
}

// applySnapshot replaces the poll snapshot and resolves profiles for the
// union of all voter ids across all options. Snapshots from a cancelled or
// replaced subscription are discarded.
func (c *Controller) applySnapshot(ctx context.Context, conversationID string, snapshot []*store.Poll) {
	if ctx.Err() != nil {
		return
	}

	polls := make([]*store.Poll, len(snapshot))
	copy(polls, snapshot)
	sort.SliceStable(polls, func(i, j int) bool {
		return polls[i].CreatedAt.Before(polls[j].CreatedAt)
	})

	c.mu.Lock()
	if c.state.ConversationID != conversationID {
		c.mu.Unlock()
		return
	}
	c.state.Polls = polls
	c.state.Loading = false
	c.mu.Unlock()
	c.publish()

	var voterIDs []string
	seen := make(map[string]struct{})
	for _, p := range polls {
		for _, opt := range p.Options {
			for _, id := range opt.Voters {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				voterIDs = append(voterIDs, id)
			}
		}
	}
	if len(voterIDs) == 0 {
		return
	}

	go func() {
		resolved := c.resolver.Resolve(ctx, voterIDs)
		if len(resolved) == 0 || ctx.Err() != nil {
			return
		}
		c.mergeProfiles(resolved)
	}()
}

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

// updateDraft applies fn to a copy of the draft and publishes the change.
func (c *Controller) updateDraft(fn func(d *Draft)) {
	c.mu.Lock()
	draft := c.state.Draft
	draft.Options = append([]string(nil), draft.Options...)
	fn(&draft)
	c.state.Draft = draft
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
