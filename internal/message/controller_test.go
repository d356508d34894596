// ABOUTME: Tests for the message lifecycle controller
// ABOUTME: Covers send/edit/delete validation, ownership, read receipts, profiles

package message

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
	c := NewController(mock, resolver, nil)
	t.Cleanup(c.Close)

	require.NoError(t, c.Init(context.Background(), testConv, testUser))
	waitLoaded(t, c)
	return c
}

func waitLoaded(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool { return !c.State().Loading },
		2*time.Second, 10*time.Millisecond, "controller never received initial snapshot")
}

func waitMessages(t *testing.T, c *Controller, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.State().Messages) == n },
		2*time.Second, 10*time.Millisecond, "snapshot never reached %d messages", n)
}

func seedMessage(t *testing.T, mock *store.MockStore, sender, content string, readBy ...string) *store.Message {
	t.Helper()
	msg := &store.Message{
		ID:             mock.NewID(),
		ConversationID: testConv,
		SenderID:       sender,
		SenderName:     sender,
		Content:        content,
		Type:           store.MessageTypeText,
		Timestamp:      time.Now(),
		ReadBy:         readBy,
	}
	require.NoError(t, mock.Add(context.Background(), msg))
	return msg
}

func TestSend_RejectsBlankText(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)

	err := c.Send(context.Background(), "   ", "Alice", store.MessageTypeText)

	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Validation))
	assert.Zero(t, mock.Calls("Add"))
}

func TestSend_SystemTypeBypassesBlankCheck(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)

	require.NoError(t, c.Send(context.Background(), "", "system", store.MessageTypeSystem))
	assert.Equal(t, 1, mock.Calls("Add"))
}

func TestSend_PersistedMessageArrivesInSnapshot(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)

	require.NoError(t, c.Send(context.Background(), "hello", "Alice", store.MessageTypeText))

	waitMessages(t, c, 1)
	msg := c.State().Messages[0]
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, testUser, msg.SenderID)
	assert.Equal(t, store.MessageTypeText, msg.Type)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Edited)
}

func TestSend_StoreFailureSurfacesWithoutRollback(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	mock.FailWith("Add", errors.New("network down"))

	err := c.Send(context.Background(), "hello", "Alice", store.MessageTypeText)

	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Store))
	require.Eventually(t, func() bool { return c.State().Err != nil },
		2*time.Second, 10*time.Millisecond)
}

func TestEdit_RejectsBlankContent(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)

	err := c.Edit(context.Background(), "whatever", "  ")
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestEdit_NotFound(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)

	err := c.Edit(context.Background(), "missing", "new text")

	assert.True(t, fault.IsKind(err, fault.NotFound))
	assert.Zero(t, mock.Calls("Edit"))
}

func TestEdit_NonSenderIsUnauthorized(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	msg := seedMessage(t, mock, otherUser, "bob's message")
	waitMessages(t, c, 1)

	err := c.Edit(context.Background(), msg.ID, "hijacked")

	assert.True(t, fault.IsKind(err, fault.Unauthorized))
	assert.Zero(t, mock.Calls("Edit"))
	assert.Equal(t, "bob's message", c.State().Messages[0].Content)
}

func TestEdit_BySenderSetsEditedFlag(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	msg := seedMessage(t, mock, testUser, "original")
	waitMessages(t, c, 1)

	require.NoError(t, c.Edit(context.Background(), msg.ID, "updated"))

	require.Eventually(t, func() bool {
		m := c.State().Message(msg.ID)
		return m != nil && m.Content == "updated" && m.Edited
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDelete_NonSenderIsUnauthorized(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	msg := seedMessage(t, mock, otherUser, "bob's message")
	waitMessages(t, c, 1)

	err := c.Delete(context.Background(), msg.ID)

	assert.True(t, fault.IsKind(err, fault.Unauthorized))
	assert.Zero(t, mock.Calls("Delete"))
}

func TestDelete_BySenderRemovesMessage(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	msg := seedMessage(t, mock, testUser, "doomed")
	waitMessages(t, c, 1)

	require.NoError(t, c.Delete(context.Background(), msg.ID))
	waitMessages(t, c, 0)
}

func TestMarkRead_AlreadyReadMakesNoStoreCall(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	msg := seedMessage(t, mock, otherUser, "seen already", testUser)
	waitMessages(t, c, 1)

	c.MarkRead(context.Background(), msg.ID)

	assert.Zero(t, mock.Calls("MarkRead"))
}

func TestMarkRead_UnreadMessageGetsReceipt(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	msg := seedMessage(t, mock, otherUser, "unread")
	waitMessages(t, c, 1)

	c.MarkRead(context.Background(), msg.ID)

	assert.Equal(t, 1, mock.Calls("MarkRead"))
	require.Eventually(t, func() bool {
		m := c.State().Message(msg.ID)
		return m != nil && m.ReadByUser(testUser)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMarkRead_FailureIsSwallowed(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	msg := seedMessage(t, mock, otherUser, "unread")
	waitMessages(t, c, 1)
	mock.FailWith("MarkRead", errors.New("flaky backend"))

	c.MarkRead(context.Background(), msg.ID)

	// Best-effort: the error never reaches the state's error slot
	assert.NoError(t, c.State().Err)
}

func TestMarkAllRead_SkipsAlreadyRead(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	seedMessage(t, mock, otherUser, "read", testUser)
	seedMessage(t, mock, otherUser, "unread one")
	seedMessage(t, mock, otherUser, "unread two")
	waitMessages(t, c, 3)

	c.MarkAllRead(context.Background())

	assert.Equal(t, 2, mock.Calls("MarkRead"))
}

func TestUnreadCount_ExcludesOwnMessages(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	seedMessage(t, mock, testUser, "mine, unread by me")
	seedMessage(t, mock, otherUser, "theirs, unread")
	seedMessage(t, mock, otherUser, "theirs, read", testUser)
	waitMessages(t, c, 3)

	assert.Equal(t, 1, c.UnreadCount())
}

func TestInit_ReplacesPreviousSubscription(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)
	seedMessage(t, mock, otherUser, "in conv-1")
	waitMessages(t, c, 1)

	require.NoError(t, c.Init(context.Background(), "conv-2", testUser))
	waitLoaded(t, c)

	assert.Equal(t, "conv-2", c.State().ConversationID)
	assert.Empty(t, c.State().Messages)

	// Mutations in the old conversation no longer reach this controller
	seedMessage(t, mock, otherUser, "still conv-1")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c.State().Messages)
}

func TestSnapshot_ResolvesSenderProfiles(t *testing.T) {
	mock := store.NewMockStore()
	mock.PutProfile(&store.Profile{ID: otherUser, Username: "Bob"})
	c := newTestController(t, mock)
	seedMessage(t, mock, otherUser, "hi")
	waitMessages(t, c, 1)

	require.Eventually(t, func() bool {
		p, ok := c.State().Profiles[otherUser]
		return ok && p.Username == "Bob"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSnapshot_ProfileFetchFailureIsIgnored(t *testing.T) {
	mock := store.NewMockStore()
	mock.PutProfile(&store.Profile{ID: otherUser, Username: "Bob"})
	c := newTestController(t, mock)

	// alice has no profile row; bob's still resolves
	seedMessage(t, mock, testUser, "from alice")
	seedMessage(t, mock, otherUser, "from bob")
	waitMessages(t, c, 2)

	require.Eventually(t, func() bool {
		_, ok := c.State().Profiles[otherUser]
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := c.State().Profiles[testUser]
	assert.False(t, ok)
	assert.NoError(t, c.State().Err)
}

func TestSnapshot_KeepsAscendingOrder(t *testing.T) {
	mock := store.NewMockStore()
	c := newTestController(t, mock)

	now := time.Now()
	for i, offset := range []time.Duration{2 * time.Hour, time.Hour, 3 * time.Hour} {
		msg := &store.Message{
			ID:             mock.NewID(),
			ConversationID: testConv,
			SenderID:       otherUser,
			Content:        string(rune('a' + i)),
			Type:           store.MessageTypeText,
			Timestamp:      now.Add(offset),
		}
		require.NoError(t, mock.Add(context.Background(), msg))
	}
	waitMessages(t, c, 3)

	msgs := c.State().Messages
	for i := 1; i < len(msgs); i++ {
		assert.True(t, !msgs[i].Timestamp.Before(msgs[i-1].Timestamp))
	}
}
