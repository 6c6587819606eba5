package pending

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Durable is the persistence backend mirrored behind the cache.
// Implementations live in internal/store/pg and internal/store/sqlite.
type Durable interface {
	// Put inserts or replaces the durable row for item.
	Put(ctx context.Context, item *Item) error
	// Get returns the live (non-expired) row for id, or nil when absent.
	Get(ctx context.Context, id string) (*Item, error)
	// UpdateMessage replaces the message body of the row for id.
	UpdateMessage(ctx context.Context, id, message string) error
	// Delete removes the row for id, reporting whether a row was affected.
	Delete(ctx context.Context, id string) (bool, error)
	// ListActive returns all live rows.
	ListActive(ctx context.Context) ([]*Item, error)
	// DeleteExpired removes rows past their TTL, returning the count.
	DeleteExpired(ctx context.Context) (int64, error)
}

// cacheEntry wraps an item with its approval claim flag.
type cacheEntry struct {
	item    *Item
	claimed bool // an approve is in flight for this item
}

// Store is the pending-content store: a process-local cache backed by a
// durable mirror. The cache is authoritative for the process's lifetime;
// durable writes are best-effort and their failure is a durability
// warning, not an operation failure.
type Store struct {
	mu      sync.RWMutex
	cache   map[string]*cacheEntry
	durable Durable
	now     func() time.Time
}

// NewStore creates a Store over the given durable backend.
func NewStore(durable Durable) *Store {
	return &Store{
		cache:   make(map[string]*cacheEntry),
		durable: durable,
		now:     time.Now,
	}
}

// SetClock overrides the store's time source. Test hook.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Create builds a new item, writes it to the cache synchronously, and
// mirrors it to the durable store in the background. A read immediately
// after Create sees the item even if the durable write is still in
// flight or fails. The returned channel reports the durability outcome;
// callers may ignore it.
func (s *Store) Create(ctx context.Context, in Input) (string, <-chan error) {
	item := newItem(in, s.now())

	s.mu.Lock()
	s.cache[item.ID] = &cacheEntry{item: item}
	s.mu.Unlock()

	durableDone := make(chan error, 1)
	go func() {
		err := s.durable.Put(context.WithoutCancel(ctx), item)
		if err != nil {
			slog.Warn("pending: durable write failed, cache remains authoritative",
				"id", item.ID, "error", err)
		}
		durableDone <- err
		close(durableDone)
	}()

	return item.ID, durableDone
}

// Get returns the live item for id, or nil when absent or expired.
// Checks the cache first; on a miss it consults the durable store and
// repopulates the cache so restarts keep items actionable.
func (s *Store) Get(ctx context.Context, id string) *Item {
	now := s.now()

	s.mu.Lock()
	if e, ok := s.cache[id]; ok {
		if e.item.Expired(now) {
			delete(s.cache, id)
			s.mu.Unlock()
			return nil
		}
		it := e.item.clone()
		s.mu.Unlock()
		return it
	}
	s.mu.Unlock()

	item, err := s.durable.Get(ctx, id)
	if err != nil {
		slog.Warn("pending: durable read failed", "id", id, "error", err)
		return nil
	}
	if item == nil || item.Expired(now) {
		return nil
	}

	s.mu.Lock()
	// Another task may have repopulated or deleted meanwhile; only fill
	// an empty slot.
	if _, ok := s.cache[id]; !ok {
		s.cache[id] = &cacheEntry{item: item}
	}
	it := s.cache[id].item.clone()
	s.mu.Unlock()
	return it
}

// UpdateMessage replaces the message body of a live item. The cache is
// updated unconditionally; the durable mirror is best-effort. Returns
// false when the item is absent or expired.
func (s *Store) UpdateMessage(ctx context.Context, id, message string) bool {
	now := s.now()

	s.mu.Lock()
	e, ok := s.cache[id]
	if !ok || e.item.Expired(now) {
		s.mu.Unlock()
		// Not cached: the item may still live durably (e.g. after restart).
		item, err := s.durable.Get(ctx, id)
		if err != nil || item == nil || item.Expired(now) {
			return false
		}
		item.Message = message
		s.mu.Lock()
		s.cache[id] = &cacheEntry{item: item}
		s.mu.Unlock()
	} else {
		e.item.Message = message
		s.mu.Unlock()
	}

	if err := s.durable.UpdateMessage(ctx, id, message); err != nil {
		slog.Warn("pending: durable update failed", "id", id, "error", err)
	}
	return true
}

// SetMeta mutates the item's metadata in the cache and rewrites the
// durable row. ID, CreatedAt and Origin are never touched.
func (s *Store) SetMeta(ctx context.Context, id string, mutate func(*Meta)) bool {
	now := s.now()

	s.mu.Lock()
	e, ok := s.cache[id]
	if !ok || e.item.Expired(now) {
		s.mu.Unlock()
		return false
	}
	mutate(&e.item.Meta)
	snapshot := e.item.clone()
	s.mu.Unlock()

	if err := s.durable.Put(ctx, snapshot); err != nil {
		slog.Warn("pending: durable meta write failed", "id", id, "error", err)
	}
	return true
}

// Delete removes a live item, reporting whether it was present. The
// durable delete is conditional (affected-rows), so two concurrent
// deletes observe at most one true result even when only one tier holds
// the item. The durable row goes first: once the cache entry is gone a
// concurrent Claim falls back to the durable store, and the row must
// not be re-claimable there.
func (s *Store) Delete(ctx context.Context, id string) bool {
	now := s.now()

	affected, err := s.durable.Delete(ctx, id)
	if err != nil {
		slog.Warn("pending: durable delete failed", "id", id, "error", err)
	}

	s.mu.Lock()
	e, cached := s.cache[id]
	live := cached && !e.item.Expired(now)
	delete(s.cache, id)
	s.mu.Unlock()

	return live || affected
}

// Claim atomically marks a live item as having an approval in flight.
// Returns the item on success; nil when the item is absent, expired, or
// already claimed. This is the decision point that keeps concurrent
// approvals at-most-once within the process. A cache miss falls back to
// the durable store so items survive restarts.
func (s *Store) Claim(ctx context.Context, id string) *Item {
	now := s.now()

	s.mu.Lock()
	e, ok := s.cache[id]
	if ok {
		defer s.mu.Unlock()
		if e.item.Expired(now) || e.claimed {
			return nil
		}
		e.claimed = true
		return e.item.clone()
	}
	s.mu.Unlock()

	item, err := s.durable.Get(ctx, id)
	if err != nil {
		slog.Warn("pending: durable read failed", "id", id, "error", err)
		return nil
	}
	if item == nil || item.Expired(now) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another task may have raced the durable read.
	if e, ok := s.cache[id]; ok {
		if e.item.Expired(now) || e.claimed {
			return nil
		}
		e.claimed = true
		return e.item.clone()
	}
	s.cache[id] = &cacheEntry{item: item, claimed: true}
	return item.clone()
}

// Release clears a claim after a failed send so the item can be retried.
func (s *Store) Release(id string) {
	s.mu.Lock()
	if e, ok := s.cache[id]; ok {
		e.claimed = false
	}
	s.mu.Unlock()
}

// ListActive returns all live items, merging cache and durable rows.
// Cache entries win on conflict (they may carry fresher edits).
func (s *Store) ListActive(ctx context.Context) []*Item {
	now := s.now()

	merged := make(map[string]*Item)
	if rows, err := s.durable.ListActive(ctx); err != nil {
		slog.Warn("pending: durable list failed", "error", err)
	} else {
		for _, it := range rows {
			if !it.Expired(now) {
				merged[it.ID] = it
			}
		}
	}

	s.mu.RLock()
	for id, e := range s.cache {
		if !e.item.Expired(now) {
			merged[id] = e.item.clone()
		}
	}
	s.mu.RUnlock()

	items := make([]*Item, 0, len(merged))
	for _, it := range merged {
		items = append(items, it)
	}
	return items
}

// SweepExpired eagerly drops expired entries from both tiers. Lazy
// expiry on read remains the correctness mechanism; this just reclaims
// memory and rows early. Returns the number of cache entries dropped.
func (s *Store) SweepExpired(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	dropped := 0
	for id, e := range s.cache {
		if e.item.Expired(now) {
			delete(s.cache, id)
			dropped++
		}
	}
	s.mu.Unlock()

	if n, err := s.durable.DeleteExpired(ctx); err != nil {
		slog.Warn("pending: durable expiry sweep failed", "error", err)
	} else if n > 0 {
		slog.Debug("pending: swept expired durable rows", "count", n)
	}

	return dropped
}
