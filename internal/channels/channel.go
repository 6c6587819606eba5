// Package channels provides the chat-surface abstraction layer.
// Adapters connect external platforms (Telegram, Discord) to the
// detection engine via the message bus: inbound messages and
// interaction callbacks flow in, rendered drafts with action
// affordances flow out.
package channels

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/herald/internal/bus"
)

// Channel defines the interface all chat-surface adapters must satisfy.
type Channel interface {
	// Name returns the surface identifier (e.g. "telegram", "discord").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the adapter.
	Stop(ctx context.Context) error

	// Render posts (or, when ReplaceTS is set, edits) a message on the
	// surface, attaching r.Actions as platform-native affordances.
	Render(ctx context.Context, r bus.Render) error

	// IsRunning returns whether the adapter is actively processing.
	IsRunning() bool
}

// BaseChannel provides shared functionality for adapter implementations.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	running   bool
	allowList []string // channel/chat ids the adapter listens on; empty = all
}

// NewBaseChannel creates a BaseChannel.
func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus, allowList: allowList}
}

// Name returns the surface name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the adapter is running.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// Allowed checks whether a chat/channel id is on the listen list.
// An empty list allows everything.
func (c *BaseChannel) Allowed(channelID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		if channelID == strings.TrimSpace(allowed) {
			return true
		}
	}
	return false
}

// HandleMessage forwards a received chat message to the engine.
func (c *BaseChannel) HandleMessage(channelID, userID, text, timestamp, threadTS string) {
	if !c.Allowed(channelID) {
		return
	}
	c.bus.PublishEvent(bus.ChatEvent{
		Surface:   c.name,
		ChannelID: channelID,
		UserID:    userID,
		Text:      text,
		Timestamp: timestamp,
		ThreadTS:  threadTS,
	})
}

// HandleInteraction forwards an acknowledged affordance callback.
func (c *BaseChannel) HandleInteraction(ic bus.Interaction) {
	ic.Surface = c.name
	c.bus.PublishInteraction(ic)
}

// EncodeActionData packs an action into the opaque string surfaces
// round-trip through their callback payloads.
func EncodeActionData(actionID, value string) string {
	return actionID + ":" + value
}

// DecodeActionData is the inverse of EncodeActionData.
func DecodeActionData(data string) (actionID, value string) {
	if idx := strings.IndexByte(data, ':'); idx >= 0 {
		return data[:idx], data[idx+1:]
	}
	return data, ""
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
