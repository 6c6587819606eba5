package channels

import (
	"strings"
	"sync"
	"time"
)

// renderTrackerTTL matches the pending-item TTL; a tracked render older
// than this can only point at an expired draft.
const renderTrackerTTL = 24 * time.Hour

// RenderTracker maps rendered draft messages to their pending ids, so a
// threaded "set:" or "edit:" reply can be correlated back to the draft
// it answers. Chat surfaces have no free-text form on button presses;
// replying in the thread is the edit input path.
type RenderTracker struct {
	mu    sync.Mutex
	byMsg map[string]trackedRender
}

type trackedRender struct {
	pendingID string
	at        time.Time
}

// NewRenderTracker creates an empty tracker.
func NewRenderTracker() *RenderTracker {
	return &RenderTracker{byMsg: make(map[string]trackedRender)}
}

// Track associates a posted render message with its pending id.
func (t *RenderTracker) Track(messageTS, pendingID string) {
	if pendingID == "" {
		return
	}
	now := time.Now()

	t.mu.Lock()
	for ts, e := range t.byMsg {
		if now.Sub(e.at) > renderTrackerTTL {
			delete(t.byMsg, ts)
		}
	}
	t.byMsg[messageTS] = trackedRender{pendingID: pendingID, at: now}
	t.mu.Unlock()
}

// Lookup returns the pending id rendered at messageTS, if tracked.
func (t *RenderTracker) Lookup(messageTS string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byMsg[messageTS]
	if !ok || time.Since(e.at) > renderTrackerTTL {
		delete(t.byMsg, messageTS)
		return "", false
	}
	return e.pendingID, true
}

// ParseEditReply recognizes the edit-input reply forms:
//
//	set: <replacement text>   → set_message
//	edit: <feedback>          → ai_edit
//
// Returns the action id, the form field name, and the payload.
func ParseEditReply(text string) (actionID, field, payload string, ok bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "set:"):
		return "set_message", "message", strings.TrimSpace(trimmed[4:]), true
	case strings.HasPrefix(lower, "edit:"):
		return "ai_edit", "feedback", strings.TrimSpace(trimmed[5:]), true
	}
	return "", "", "", false
}
