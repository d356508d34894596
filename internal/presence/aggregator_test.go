// ABOUTME: Tests for the presence aggregator
// ABOUTME: Covers self-exclusion, idempotent init, context switching, live updates

package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/threadline/internal/fault"
	"github.com/2389/threadline/internal/store"
)

const (
	testCtx  = "group-1"
	testUser = "alice"
)

func newTestAggregator(t *testing.T, mock *store.MockStore) *Aggregator {
	t.Helper()
	a := NewAggregator(mock, nil)
	t.Cleanup(a.Close)
	require.NoError(t, a.Init(context.Background(), testCtx, testUser))
	return a
}

func waitCount(t *testing.T, a *Aggregator, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return a.Snapshot().Count == n },
		2*time.Second, 10*time.Millisecond, "snapshot never reached count %d", n)
}

func TestAggregator_ExcludesObservingUser(t *testing.T) {
	mock := store.NewMockStore()
	mock.SetOnline(testCtx, testUser)
	mock.SetOnline(testCtx, "bob")
	a := newTestAggregator(t, mock)

	waitCount(t, a, 1)
	assert.Equal(t, []string{"bob"}, a.Snapshot().IDs)
}

func TestAggregator_TracksOnlineAndOffline(t *testing.T) {
	mock := store.NewMockStore()
	a := newTestAggregator(t, mock)
	waitCount(t, a, 0)

	mock.SetOnline(testCtx, "bob")
	mock.SetOnline(testCtx, "carol")
	waitCount(t, a, 2)

	mock.SetOffline(testCtx, "bob")
	waitCount(t, a, 1)
	assert.Equal(t, []string{"carol"}, a.Snapshot().IDs)
}

func TestAggregator_InitIsIdempotentForSamePair(t *testing.T) {
	mock := store.NewMockStore()
	a := newTestAggregator(t, mock)

	require.NoError(t, a.Init(context.Background(), testCtx, testUser))
	require.NoError(t, a.Init(context.Background(), testCtx, testUser))

	assert.Equal(t, 1, mock.Calls("ObserveOnlineIDs"))
}

func TestAggregator_ContextChangeResubscribes(t *testing.T) {
	mock := store.NewMockStore()
	mock.SetOnline(testCtx, "bob")
	a := newTestAggregator(t, mock)
	waitCount(t, a, 1)

	require.NoError(t, a.Init(context.Background(), "group-2", testUser))
	assert.Equal(t, 2, mock.Calls("ObserveOnlineIDs"))
	waitCount(t, a, 0)

	// Updates in the old context no longer arrive
	mock.SetOnline(testCtx, "carol")
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, a.Snapshot().Count)

	mock.SetOnline("group-2", "dave")
	waitCount(t, a, 1)
}

func TestAggregator_SubscribeFailureSurfaces(t *testing.T) {
	mock := store.NewMockStore()
	mock.FailWith("ObserveOnlineIDs", errors.New("backend down"))
	a := NewAggregator(mock, nil)
	t.Cleanup(a.Close)

	err := a.Init(context.Background(), testCtx, testUser)

	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Store))

	// A failed init does not pin the pair; a retry subscribes again
	mock.FailWith("ObserveOnlineIDs", nil)
	require.NoError(t, a.Init(context.Background(), testCtx, testUser))
	assert.Equal(t, 2, mock.Calls("ObserveOnlineIDs"))
}

func TestAggregator_WatchReceivesSnapshots(t *testing.T) {
	mock := store.NewMockStore()
	a := newTestAggregator(t, mock)
	ch := a.Watch(context.Background())

	mock.SetOnline(testCtx, "bob")

	// The initial empty snapshot may land on the channel first
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Count == 1 {
				assert.Equal(t, []string{"bob"}, snap.IDs)
				return
			}
		case <-deadline:
			t.Fatal("no snapshot with bob online received")
		}
	}
}
