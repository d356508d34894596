// ABOUTME: Timeline merge engine combining message and poll snapshots
// ABOUTME: Produces one ascending, stably-keyed entry sequence per conversation

package timeline

import (
	"sort"
	"time"

	"github.com/2389/threadline/internal/store"
)

// EntryKind tags the variant carried by an Entry.
type EntryKind string

const (
	EntryMessage   EntryKind = "message"
	EntryPoll      EntryKind = "poll"
	EntryDayMarker EntryKind = "day_marker"
)

// Entry is one rendered timeline row: a message, a poll, or an inserted
// day-boundary marker. Entries are derived from the current snapshots on
// every merge and never persisted. Key is stable across re-renders while the
// underlying entity is unchanged.
type Entry struct {
	Kind      EntryKind
	Key       string
	Timestamp time.Time
	Message   *store.Message // set when Kind == EntryMessage
	Poll      *store.Poll    // set when Kind == EntryPoll
}

// Merge combines the current message and poll snapshots into one ascending
// timeline. POLL-typed messages are resolved through a poll index keyed by
// id; a message whose referenced poll is absent (deleted, or not yet arrived
// on the poll stream) is dropped entirely rather than rendered as an orphan
// row. Poll entries order by the poll's own creation timestamp, message
// entries by the message timestamp. The sort is stable, so equal timestamps
// keep their arrival order.
func Merge(messages []*store.Message, polls []*store.Poll) []Entry {
	pollsByID := make(map[string]*store.Poll, len(polls))
	for _, p := range polls {
		pollsByID[p.ID] = p
	}

	entries := make([]Entry, 0, len(messages))
	for _, m := range messages {
		if m.Type == store.MessageTypePoll {
			p, ok := pollsByID[m.Content]
			if !ok {
				// Dangling poll reference; omitted until the poll stream
				// catches up or forever if the poll was deleted.
				continue
			}
			entries = append(entries, Entry{
				Kind:      EntryPoll,
				Key:       "poll_" + p.ID,
				Timestamp: p.CreatedAt,
				Poll:      p,
			})
			continue
		}
		entries = append(entries, Entry{
			Kind:      EntryMessage,
			Key:       "msg_" + m.ID,
			Timestamp: m.Timestamp,
			Message:   m,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}
