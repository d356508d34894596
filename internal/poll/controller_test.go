// ABOUTME: Tests for the poll voting state machine
// ABOUTME: Covers draft validation, creation, vote toggling, creator checks

package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/threadline/internal/fault"
	"github.com/2389/threadline/internal/profile"
	"github.com/2389/threadline/internal/store"
)

const (
	testConv  = "conv-1"
	testUser  = "alice"
	otherUser = "bob"
)

func newTestController(t *testing.T, mock *store.MockStore) *Controller {
	t.Helper()
	resolver := profile.NewResolver(mock, nil)
	c := NewController(mock, mock, resolver, DefaultLimits(), nil)
	t.Cleanup(c.Close)

	require.NoError(t, c.Init(context.Background(), testConv, testUser))
	require.Eventually(t, func() bool { return !c.State().Loading },
		2*time.Second, 10*time.Millisecond)
	return c
}

func waitPolls(t *testing.T, c *Controller, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.State().Polls) == n },
		2*time.Second, 10*time.Millisecond, "snapshot never reached %d polls", n)
}

func seedPoll(t *testing.T, mock *store.MockStore, creator string, multiple bool, options ...string) *store.Poll {
	t.Helper()
	opts := make([]store.PollOption, len(options))
	for i, text := range options {
		opts[i] = store.PollOption{ID: i, Text: text}
	}
	p := &store.Poll{
		ID:                   mock.NewID(),
		ConversationID:       testConv,
		CreatorID:            creator,
		CreatorName:          creator,
		Question:             "where to?",
		Options:              opts,
		AllowMultipleAnswers: multiple,
		CreatedAt:            time.Now(),
	}
	require.NoError(t, mock.Create(context.Background(), p))
	return p
}

func fillDraft(c *Controller, question string, options ...string) {
	c.SetQuestion(question)
	for len(c.State().Draft.Options) < len(options) {
		c.AddOption()
	}
	for i, text := range options {
		c.SetOption(i, text)
	}
}

func TestCreatePoll_EmptyQuestionRejected(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	fillDraft(c, "", "Yes", "No")

	err := c.CreatePoll(context.Background(), "Alice")

	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Validation))
	assert.Contains(t, err.Error(), "question is empty")
	assert.Zero(t, mock.Calls("Create"))
	assert.Equal(t, err, c.State().Draft.Err)
}

func TestCreatePoll_DuplicateOptionsRejected(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	// Equal after trim + case fold
	fillDraft(c, "snacks?", "Yes", " yes ")

	err := c.CreatePoll(context.Background(), "Alice")

	assert.True(t, fault.IsKind(err, fault.Validation))
	assert.Contains(t, err.Error(), "duplicate option")
	assert.Zero(t, mock.Calls("Create"))
}

func TestCreatePoll_TooFewOptionsRejected(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	fillDraft(c, "snacks?", "Only one", "   ")

	err := c.CreatePoll(context.Background(), "Alice")
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestCreatePoll_OverLongQuestionRejected(t *testing.T) {
	mock := store.NewMockStore()
	limits := DefaultLimits()
	resolver := profile.NewResolver(mock, nil)
	c := NewController(mock, mock, resolver, limits, nil)
	t.Cleanup(c.Close)
	require.NoError(t, c.Init(context.Background(), testConv, testUser))

	long := make([]byte, limits.MaxQuestionLen+1)
	for i := range long {
		long[i] = 'q'
	}
	fillDraft(c, string(long), "A", "B")

	err := c.CreatePoll(context.Background(), "Alice")
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestCreatePoll_WithoutInitFailsFast(t *testing.T) {
	mock := store.NewMockStore()
	resolver := profile.NewResolver(mock, nil)
	c := NewController(mock, mock, resolver, DefaultLimits(), nil)
	t.Cleanup(c.Close)

	c.SetQuestion("snacks?")
	c.AddOption()
	c.AddOption()
	c.SetOption(0, "Yes")
	c.SetOption(1, "No")

	err := c.CreatePoll(context.Background(), "Alice")

	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Validation))
	assert.Contains(t, err.Error(), "not initialized")
	assert.Zero(t, mock.Calls("Create"))
}

func TestCreatePoll_PersistsPollAndCompanionMessage(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	c.SetAnonymous(true)
	c.SetAllowMultipleAnswers(true)
	fillDraft(c, "where to?", "The park", "The cafe", "Stay home")

	require.NoError(t, c.CreatePoll(context.Background(), "Alice"))

	waitPolls(t, c, 1)
	poll := c.State().Polls[0]
	assert.Equal(t, "where to?", poll.Question)
	assert.True(t, poll.Anonymous)
	assert.True(t, poll.AllowMultipleAnswers)
	require.Len(t, poll.Options, 3)
	for i, want := range []string{"The park", "The cafe", "Stay home"} {
		assert.Equal(t, i, poll.Options[i].ID)
		assert.Equal(t, want, poll.Options[i].Text)
	}

	// Companion message carries the poll id and the poll's timestamp, so the
	// merge layer can resolve it as soon as both snapshots arrive.
	msgCh, cancel, err := mock.ObserveMessages(context.Background(), testConv)
	require.NoError(t, err)
	defer cancel()
	msgs := <-msgCh
	require.Len(t, msgs, 1)
	assert.Equal(t, store.MessageTypePoll, msgs[0].Type)
	assert.Equal(t, poll.ID, msgs[0].Content)
	assert.True(t, msgs[0].Timestamp.Equal(poll.CreatedAt))

	// Draft resets after a successful create
	draft := c.State().Draft
	assert.Empty(t, draft.Question)
	assert.Len(t, draft.Options, DefaultLimits().MinOptions)
	assert.False(t, draft.Creating)
}

func TestCreatePoll_StoreFailureResetsCreatingFlag(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	fillDraft(c, "snacks?", "Yes", "No")
	mock.FailWith("Create", errors.New("backend down"))

	err := c.CreatePoll(context.Background(), "Alice")

	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Store))
	draft := c.State().Draft
	assert.False(t, draft.Creating)
	assert.Error(t, draft.Err)
	// Draft input is preserved for retry
	assert.Equal(t, "snacks?", draft.Question)
}

func TestAddRemoveOption_BoundedByLimits(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	limits := DefaultLimits()

	for i := 0; i < limits.MaxOptions+3; i++ {
		c.AddOption()
	}
	assert.Len(t, c.State().Draft.Options, limits.MaxOptions)

	for i := 0; i < limits.MaxOptions+3; i++ {
		c.RemoveOption(0)
	}
	assert.Len(t, c.State().Draft.Options, limits.MinOptions)

	// Out-of-range index is a no-op
	c.RemoveOption(99)
	assert.Len(t, c.State().Draft.Options, limits.MinOptions)
}

func TestVote_TogglesMembership(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	p := seedPoll(t, mock, otherUser, false, "A", "B")
	waitPolls(t, c, 1)

	// First call adds the vote
	require.NoError(t, c.Vote(context.Background(), p.ID, 0))
	assert.Equal(t, 1, mock.Calls("Vote"))
	require.Eventually(t, func() bool {
		return c.State().Poll(p.ID).Option(0).HasVoter(testUser)
	}, 2*time.Second, 10*time.Millisecond)

	// Second call removes it, returning the voter set to its original state
	require.NoError(t, c.Vote(context.Background(), p.ID, 0))
	assert.Equal(t, 1, mock.Calls("RemoveVote"))
	require.Eventually(t, func() bool {
		return !c.State().Poll(p.ID).Option(0).HasVoter(testUser)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestVote_SingleAnswerExclusivityIsStoreEnforced(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	p := seedPoll(t, mock, otherUser, false, "A", "B")
	waitPolls(t, c, 1)

	require.NoError(t, c.Vote(context.Background(), p.ID, 0))
	require.Eventually(t, func() bool {
		return c.State().Poll(p.ID).Option(0).HasVoter(testUser)
	}, 2*time.Second, 10*time.Millisecond)

	// Voting a different option issues only the add; the store moves the
	// membership in the same operation.
	require.NoError(t, c.Vote(context.Background(), p.ID, 1))
	assert.Equal(t, 2, mock.Calls("Vote"))
	assert.Zero(t, mock.Calls("RemoveVote"))
	require.Eventually(t, func() bool {
		poll := c.State().Poll(p.ID)
		return poll.Option(1).HasVoter(testUser) && !poll.Option(0).HasVoter(testUser)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestVote_ClosedPollRejectedWithoutStoreCall(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	p := seedPoll(t, mock, otherUser, false, "A", "B")
	require.NoError(t, mock.ClosePoll(context.Background(), testConv, p.ID, otherUser))
	require.Eventually(t, func() bool {
		poll := c.State().Poll(p.ID)
		return poll != nil && poll.Closed
	}, 2*time.Second, 10*time.Millisecond)

	err := c.Vote(context.Background(), p.ID, 0)

	assert.True(t, fault.IsKind(err, fault.Validation))
	assert.Zero(t, mock.Calls("Vote"))
}

func TestVote_UnknownPollOrOption(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	p := seedPoll(t, mock, otherUser, false, "A", "B")
	waitPolls(t, c, 1)

	assert.True(t, fault.IsKind(c.Vote(context.Background(), "missing", 0), fault.NotFound))
	assert.True(t, fault.IsKind(c.Vote(context.Background(), p.ID, 99), fault.NotFound))
	assert.Zero(t, mock.Calls("Vote"))
}

func TestClosePoll_NonCreatorIsUnauthorized(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	p := seedPoll(t, mock, otherUser, false, "A", "B")
	waitPolls(t, c, 1)

	err := c.ClosePoll(context.Background(), p.ID)

	assert.True(t, fault.IsKind(err, fault.Unauthorized))
	assert.Zero(t, mock.Calls("ClosePoll"))
}

func TestCloseReopenPoll_ByCreator(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	p := seedPoll(t, mock, testUser, false, "A", "B")
	waitPolls(t, c, 1)

	require.NoError(t, c.ClosePoll(context.Background(), p.ID))
	require.Eventually(t, func() bool {
		poll := c.State().Poll(p.ID)
		return poll.Closed && poll.ClosedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.ReopenPoll(context.Background(), p.ID))
	require.Eventually(t, func() bool {
		poll := c.State().Poll(p.ID)
		return !poll.Closed && poll.ClosedAt == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeletePoll_ByCreatorRemovesPoll(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	p := seedPoll(t, mock, testUser, false, "A", "B")
	waitPolls(t, c, 1)

	require.NoError(t, c.DeletePoll(context.Background(), p.ID))
	waitPolls(t, c, 0)
}

func TestSnapshot_ResolvesVoterProfiles(t *testing.T) {
	mock := store.NewMockStore()
	mock.PutProfile(&store.Profile{ID: otherUser, Username: "Bob"})
	c := newTestController(t, mock)
	p := seedPoll(t, mock, otherUser, false, "A", "B")
	require.NoError(t, mock.Vote(context.Background(), testConv, p.ID, 0, otherUser))

	require.Eventually(t, func() bool {
		prof, ok := c.State().Profiles[otherUser]
		return ok && prof.Username == "Bob"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStaleSnapshotVote_TreatedAsNotFound(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	p := seedPoll(t, mock, testUser, false, "A", "B")
	waitPolls(t, c, 1)

	// Deleted concurrently; the next emission empties the snapshot and a
	// late vote is a normal not-found race.
	require.NoError(t, mock.DeletePoll(context.Background(), testConv, p.ID, testUser))
	waitPolls(t, c, 0)

	err := c.Vote(context.Background(), p.ID, 0)
	assert.True(t, fault.IsKind(err, fault.NotFound))
}
