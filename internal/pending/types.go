package pending

import (
	"time"

	"github.com/google/uuid"
)

// TTL is how long a pending item stays actionable after creation.
const TTL = 24 * time.Hour

// ContentType distinguishes what kind of draft an item holds.
type ContentType string

const (
	ContentReminder ContentType = "reminder"
	ContentRecap    ContentType = "recap"
)

// Channel identifies the outbound destination for an approved item.
type Channel string

const (
	ChannelDirectMessage  Channel = "direct_message"
	ChannelEmailList      Channel = "email_list"
	ChannelCommunityBoard Channel = "community_board"
)

// EventCategory is the recurring-event cadence the draft belongs to.
type EventCategory string

const (
	CategoryWeekly  EventCategory = "weekly"
	CategoryMonthly EventCategory = "monthly"
)

// Timing marks which reminder slot a draft covers. Empty for recaps.
type Timing string

const (
	TimingWeekBefore Timing = "week_before"
	TimingDayBefore  Timing = "day_before"
	TimingHourBefore Timing = "hour_before"
	TimingDayOf      Timing = "day_of"
)

// Meta carries the typed metadata of a draft plus a small extension map
// for the few truly dynamic fields.
type Meta struct {
	Topic     string            `json:"topic,omitempty"`
	Presenter string            `json:"presenter,omitempty"`
	Subject   string            `json:"subject,omitempty"` // email subject line
	Links     []string          `json:"links,omitempty"`
	Ext       map[string]string `json:"ext,omitempty"`
}

// Origin records where the draft was rendered so later actions can
// update or reply to that exact chat message. Immutable after creation.
type Origin struct {
	Surface   string `json:"surface"`
	ChannelID string `json:"channel_id"`
	MessageTS string `json:"message_ts"`
}

// Item is a draft awaiting human approval.
// ID, CreatedAt and Origin never change after creation; Message and Meta may.
type Item struct {
	ID            string        `json:"id"`
	ContentType   ContentType   `json:"content_type"`
	Channel       Channel       `json:"channel"`
	EventCategory EventCategory `json:"event_category"`
	Timing        Timing        `json:"timing,omitempty"`
	Message       string        `json:"message"`
	Meta          Meta          `json:"meta"`
	Origin        Origin        `json:"origin"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

// Expired reports whether the item's TTL has elapsed at now.
func (it *Item) Expired(now time.Time) bool {
	return now.After(it.ExpiresAt)
}

// Input is the caller-supplied part of a new item.
type Input struct {
	ContentType   ContentType
	Channel       Channel
	EventCategory EventCategory
	Timing        Timing
	Message       string
	Meta          Meta
	Origin        Origin
}

// newItem builds a fresh Item from in at now.
func newItem(in Input, now time.Time) *Item {
	return &Item{
		ID:            uuid.Must(uuid.NewV7()).String(),
		ContentType:   in.ContentType,
		Channel:       in.Channel,
		EventCategory: in.EventCategory,
		Timing:        in.Timing,
		Message:       in.Message,
		Meta:          in.Meta,
		Origin:        in.Origin,
		CreatedAt:     now,
		ExpiresAt:     now.Add(TTL),
	}
}

// clone returns a copy so callers never hold a pointer into the cache.
func (it *Item) clone() *Item {
	cp := *it
	if it.Meta.Links != nil {
		cp.Meta.Links = append([]string(nil), it.Meta.Links...)
	}
	if it.Meta.Ext != nil {
		cp.Meta.Ext = make(map[string]string, len(it.Meta.Ext))
		for k, v := range it.Meta.Ext {
			cp.Meta.Ext[k] = v
		}
	}
	return &cp
}
