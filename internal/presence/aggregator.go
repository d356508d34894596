// ABOUTME: Presence aggregator reducing the online-id stream to a count snapshot
// ABOUTME: Excludes the local observer and keeps one subscription per context

package presence

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2389/threadline/internal/fault"
	"github.com/2389/threadline/internal/store"
	"github.com/2389/threadline/internal/stream"
)

const watchKey = "state"

// Snapshot is the reduced presence state: how many peers are online and who.
// The observing user never appears. Replaced wholesale on every upstream
// emission.
type Snapshot struct {
	Count int
	IDs   []string
}

// Aggregator reduces a raw online-user-id stream into Snapshots. Init with
// the same (context, user) pair is a no-op so an active subscription is
// never restarted; a different context cancels and resubscribes.
type Aggregator struct {
	mu       sync.RWMutex
	presence store.PresenceStore
	logger   *slog.Logger

	contextID string
	userID    string
	snapshot  Snapshot
	watchers  *stream.Broadcaster[Snapshot]

	cancelObserve func()
}

// NewAggregator creates an aggregator. Pass nil logger for default.
func NewAggregator(presence store.PresenceStore, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "presence")
	return &Aggregator{
		presence: presence,
		logger:   logger,
		watchers: stream.NewBroadcaster[Snapshot](logger),
	}
}

// Init subscribes to the online-id stream for contextID as userID.
// Idempotent for an identical (context, user) pair.
func (a *Aggregator) Init(ctx context.Context, contextID, userID string) error {
	a.mu.Lock()
	if a.contextID == contextID && a.userID == userID && a.cancelObserve != nil {
		a.mu.Unlock()
		return nil
	}
	if a.cancelObserve != nil {
		a.cancelObserve()
		a.cancelObserve = nil
	}
	a.contextID = contextID
	a.userID = userID
	a.snapshot = Snapshot{}
	a.mu.Unlock()

	obsCtx, cancel := context.WithCancel(ctx)
	ch, stop, err := a.presence.ObserveOnlineIDs(obsCtx, contextID, userID)
	if err != nil {
		cancel()
		a.mu.Lock()
		a.contextID = ""
		a.userID = ""
		a.mu.Unlock()
		return fault.Storef("presence.observe", err, "subscribing to presence failed")
	}

	a.mu.Lock()
	a.cancelObserve = func() {
		cancel()
		stop()
	}
	a.mu.Unlock()

	go func() {
		for ids := range ch {
			a.apply(ids)
		}
	}()

	a.logger.Debug("subscribed", "context_id", contextID, "user_id", userID)
	return nil
}

// Close cancels the active subscription.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.cancelObserve != nil {
		a.cancelObserve()
		a.cancelObserve = nil
	}
	a.mu.Unlock()
	a.watchers.Close()
}

// Snapshot returns the current presence state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

// Watch returns a channel receiving every snapshot published after the
// call, until ctx is cancelled.
func (a *Aggregator) Watch(ctx context.Context) <-chan Snapshot {
	ch, _ := a.watchers.Subscribe(ctx, watchKey)
	return ch
}

// apply replaces the snapshot with the raw id list minus the local user.
// The observer id is filtered here as well as upstream; it never appears in
// Count or IDs.
func (a *Aggregator) apply(raw []string) {
	a.mu.Lock()
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		if id == a.userID || id == "" {
			continue
		}
		ids = append(ids, id)
	}
	a.snapshot = Snapshot{Count: len(ids), IDs: ids}
	snap := a.snapshot
	a.mu.Unlock()

	a.watchers.Publish(watchKey, snap)
}
