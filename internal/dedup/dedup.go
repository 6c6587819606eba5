// Package dedup suppresses re-announcements of recently accepted topics.
package dedup

import (
	"strings"
	"sync"
	"time"
)

// Window is the sliding window over which accepted topics suppress
// near-duplicates.
const Window = 24 * time.Hour

type record struct {
	topic string // normalized
	at    time.Time
}

// Engine matches candidate topics against recently accepted ones.
// Matching is substring containment in either direction over
// normalized text — intentionally loose, to catch re-paraphrased
// duplicates at the cost of occasional false positives on short
// generic topics.
type Engine struct {
	mu      sync.Mutex
	records map[string]record // keyed by the message timestamp that produced the topic
	now     func() time.Time
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{
		records: make(map[string]record),
		now:     time.Now,
	}
}

// SetClock overrides the engine's time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func normalize(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

// IsDuplicate reports whether candidate matches any accepted topic
// younger than Window. Records past the window are purged on the way.
func (e *Engine) IsDuplicate(candidate string) bool {
	norm := normalize(candidate)
	if norm == "" {
		return false
	}
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	for key, r := range e.records {
		if now.Sub(r.at) > Window {
			delete(e.records, key)
			continue
		}
		if strings.Contains(r.topic, norm) || strings.Contains(norm, r.topic) {
			return true
		}
	}
	return false
}

// RecordAccepted remembers an accepted topic under key (the producing
// message timestamp).
func (e *Engine) RecordAccepted(topic, key string) {
	norm := normalize(topic)
	if norm == "" {
		return
	}

	e.mu.Lock()
	e.records[key] = record{topic: norm, at: e.now()}
	e.mu.Unlock()
}

// Purge drops records older than Window, returning the count removed.
func (e *Engine) Purge() int {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	purged := 0
	for key, r := range e.records {
		if now.Sub(r.at) > Window {
			delete(e.records, key)
			purged++
		}
	}
	return purged
}
