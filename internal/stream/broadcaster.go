// ABOUTME: In-memory fan-out broadcaster for per-conversation snapshot streams
// ABOUTME: Publishes replacement snapshots to all subscribers of a key

package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 16
)

// Broadcaster provides in-memory pub/sub for snapshot values. Subscribers
// register for a key (typically a conversation id) and receive every value
// published for that key until they unsubscribe.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan T // key -> subID -> ch
	logger      *slog.Logger
	closed      bool
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster[T any](logger *slog.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster[T]{
		subscribers: make(map[string]map[string]chan T),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for values published under key. Returns
// the receive channel and a subscription ID for later unsubscription. The
// subscription is automatically cleaned up when ctx is cancelled.
func (b *Broadcaster[T]) Subscribe(ctx context.Context, key string) (<-chan T, string) {
	subID := uuid.New().String()
	ch := make(chan T, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]chan T)
	}
	b.subscribers[key][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "key", key, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(key, subID)
	}()

	return ch, subID
}

// Publish sends a value to all subscribers of key. Non-blocking: the value
// is dropped for subscribers whose channels are full. Because every publish
// carries a full replacement snapshot, a dropped intermediate value is
// superseded by the next one.
func (b *Broadcaster[T]) Publish(key string, value T) {
	b.mu.RLock()
	subs, ok := b.subscribers[key]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding it during sends
	targets := make([]chan T, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- value:
			// Sent
		default:
			b.logger.Debug("dropped snapshot for slow subscriber", "key", key)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster[T]) Unsubscribe(key, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[key]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, key)
	}

	b.logger.Debug("subscriber removed", "key", key, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for key, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}

	b.logger.Debug("broadcaster closed")
}
