// Package tracker correlates "what's the topic?" questions with the
// messages that answer them, across both elapsed time and threads.
package tracker

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/herald/internal/bus"
)

const (
	// AwaitingTTL is how long a topic request keeps the channel in the
	// relaxed-classification state.
	AwaitingTTL = 4 * time.Hour

	// ThreadWatchTTL is how long a threaded reply to the exact request
	// message is still recognized, even after Awaiting has lapsed.
	ThreadWatchTTL = 48 * time.Hour

	// RecentCapacity bounds the per-channel recent-message buffer passed
	// to the classifier as context.
	RecentCapacity = 12
)

var topicRequestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhat('?s| is)? the topic\b`),
	regexp.MustCompile(`(?i)\bdo (you|we) have a topic\b`),
	regexp.MustCompile(`(?i)\bany idea what\b`),
	regexp.MustCompile(`(?i)\btopic for (this week|next week|tomorrow|today)\b`),
	regexp.MustCompile(`(?i)\bwhat are we covering\b`),
	regexp.MustCompile(`(?i)\bwho('?s| is) presenting\b`),
}

// IsTopicRequest reports whether text is asking what the topic is.
func IsTopicRequest(text string) bool {
	for _, re := range topicRequestPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// TopicRequest records who asked about the topic, and when.
type TopicRequest struct {
	AskedBy string
	AskedAt time.Time
	Message string
}

type recentMessage struct {
	user string
	text string
	at   time.Time
}

// channelState holds per-channel correlation state.
type channelState struct {
	awaiting *TopicRequest
	recent   []recentMessage // ring, newest last, capped at RecentCapacity
}

// Tracker holds the correlation state for all chat channels.
// Safe for concurrent use by in-flight event handlers.
type Tracker struct {
	mu          sync.Mutex
	channels    map[string]*channelState
	threadWatch map[string]watchEntry // watchKey → entry
	now         func() time.Time
}

type watchEntry struct {
	req        TopicRequest
	registered time.Time
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		channels:    make(map[string]*channelState),
		threadWatch: make(map[string]watchEntry),
		now:         time.Now,
	}
}

// SetClock overrides the tracker's time source. Test hook.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

func watchKey(channelID, ts string) string {
	return fmt.Sprintf("%s:%s", channelID, ts)
}

func (t *Tracker) state(channelID string) *channelState {
	st, ok := t.channels[channelID]
	if !ok {
		st = &channelState{}
		t.channels[channelID] = st
	}
	return st
}

// NoteRequest transitions the channel to Awaiting and registers the
// request message's timestamp in the thread watch, so a threaded reply
// to that exact message is recognized for up to ThreadWatchTTL.
func (t *Tracker) NoteRequest(ev bus.ChatEvent) {
	now := t.now()
	req := TopicRequest{AskedBy: ev.UserID, AskedAt: now, Message: ev.Text}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.state(ev.ChannelID).awaiting = &req
	t.threadWatch[watchKey(ev.ChannelID, ev.Timestamp)] = watchEntry{req: req, registered: now}
}

// Expecting reports whether ev should be classified with the relaxed
// expectingTopic heuristics. A threaded reply to a watched request wins
// regardless of the standalone Awaiting state; otherwise an unexpired
// Awaiting applies. Expiry is checked lazily here, not by a timer.
// The returned key identifies the thread-watch entry to clear on
// acceptance ("" when expectation came from Awaiting alone).
func (t *Tracker) Expecting(ev bus.ChatEvent) (expecting bool, key string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.ThreadTS != "" {
		k := watchKey(ev.ChannelID, ev.ThreadTS)
		if e, ok := t.threadWatch[k]; ok {
			if now.Sub(e.registered) <= ThreadWatchTTL {
				return true, k
			}
			delete(t.threadWatch, k)
		}
	}

	st := t.state(ev.ChannelID)
	if st.awaiting != nil {
		if now.Sub(st.awaiting.AskedAt) <= AwaitingTTL {
			return true, ""
		}
		st.awaiting = nil
	}

	return false, ""
}

// Accepted clears the channel's Awaiting state and, when key is set,
// that specific thread-watch entry.
func (t *Tracker) Accepted(channelID, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state(channelID).awaiting = nil
	if key != "" {
		delete(t.threadWatch, key)
	}
}

// Remember pushes a non-thread message into the channel's recent buffer.
func (t *Tracker) Remember(ev bus.ChatEvent) {
	if ev.ThreadTS != "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(ev.ChannelID)
	st.recent = append(st.recent, recentMessage{user: ev.UserID, text: ev.Text, at: t.now()})
	if len(st.recent) > RecentCapacity {
		st.recent = st.recent[len(st.recent)-RecentCapacity:]
	}
}

// ContextWindow returns the channel's recent messages formatted as
// "user: text" lines, oldest first, for classifier context.
func (t *Tracker) ContextWindow(channelID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.channels[channelID]
	if !ok {
		return nil
	}
	lines := make([]string, 0, len(st.recent))
	for _, m := range st.recent {
		lines = append(lines, fmt.Sprintf("%s: %s", m.user, strings.TrimSpace(m.text)))
	}
	return lines
}

// PurgeExpired drops lapsed Awaiting and thread-watch entries eagerly.
// Lazy checks in Expecting remain the correctness mechanism.
func (t *Tracker) PurgeExpired() int {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	purged := 0
	for _, st := range t.channels {
		if st.awaiting != nil && now.Sub(st.awaiting.AskedAt) > AwaitingTTL {
			st.awaiting = nil
			purged++
		}
	}
	for k, e := range t.threadWatch {
		if now.Sub(e.registered) > ThreadWatchTTL {
			delete(t.threadWatch, k)
			purged++
		}
	}
	return purged
}
