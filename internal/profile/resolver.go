// ABOUTME: Profile cache resolver deduplicating user metadata lookups
// ABOUTME: Fans out fetches for unknown ids and merges results additively

package profile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2389/threadline/internal/store"
)

// Resolver resolves user display metadata through a ProfileStore, caching
// every result for the life of the session. The cache is append-only: a
// resolved profile is never evicted or re-fetched, and concurrent resolution
// from multiple controllers merges as a commutative union.
type Resolver struct {
	mu     sync.RWMutex
	store  store.ProfileStore
	cache  map[string]*store.Profile
	logger *slog.Logger
}

// NewResolver creates a resolver. Pass nil logger for default.
func NewResolver(profiles store.ProfileStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  profiles,
		cache:  make(map[string]*store.Profile),
		logger: logger.With("component", "profiles"),
	}
}

// Resolve returns profiles for ids, fetching only the ids not already
// cached. Unknown ids are fetched concurrently; an id whose fetch fails is
// logged and omitted without aborting the rest (profile display is
// best-effort). The returned map is a snapshot copy restricted to ids and is
// safe for the caller to keep.
func (r *Resolver) Resolve(ctx context.Context, ids []string) map[string]*store.Profile {
	missing := r.unresolved(ids)

	if len(missing) > 0 {
		fetched := make([]*store.Profile, len(missing))
		var wg sync.WaitGroup
		for i, id := range missing {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				p, err := r.store.Get(ctx, id)
				if err != nil {
					r.logger.Warn("profile fetch failed", "user_id", id, "error", err)
					return
				}
				fetched[i] = p
			}(i, id)
		}
		wg.Wait()

		r.mu.Lock()
		for _, p := range fetched {
			if p == nil {
				continue
			}
			// First write wins; a concurrent resolver may have beaten us here
			// with the same id, and both fetched the same store row.
			if _, ok := r.cache[p.ID]; !ok {
				r.cache[p.ID] = p
			}
		}
		r.mu.Unlock()
	}

	result := make(map[string]*store.Profile, len(ids))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if p, ok := r.cache[id]; ok {
			result[id] = p
		}
	}
	return result
}

// Cached returns a copy of the full cache.
func (r *Resolver) Cached() map[string]*store.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*store.Profile, len(r.cache))
	for id, p := range r.cache {
		out[id] = p
	}
	return out
}

// unresolved filters ids down to those not yet cached, deduplicated,
// preserving first-seen order.
func (r *Resolver) unresolved(ids []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	var missing []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := r.cache[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
