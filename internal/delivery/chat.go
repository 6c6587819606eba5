package delivery

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/herald/internal/bus"
	"github.com/nextlevelbuilder/herald/internal/pending"
)

// ChatSender delivers approved drafts back through a chat surface as a
// plain message (the direct-message channel). The destination channel
// is fixed at configuration time; falls back to the item's origin
// channel when unset.
type ChatSender struct {
	sink      bus.RenderSink
	surface   string
	channelID string
}

// NewChatSender creates a ChatSender posting to the given surface and
// channel. Both may be empty to post to each item's origin.
func NewChatSender(sink bus.RenderSink, surface, channelID string) *ChatSender {
	return &ChatSender{sink: sink, surface: surface, channelID: channelID}
}

func (s *ChatSender) Send(_ context.Context, item *pending.Item) (string, error) {
	surface := s.surface
	channelID := s.channelID
	if surface == "" {
		surface = item.Origin.Surface
	}
	if channelID == "" {
		channelID = item.Origin.ChannelID
	}

	ok := s.sink.PublishRender(bus.Render{
		Surface:   surface,
		ChannelID: channelID,
		Text:      item.Message,
	})
	if !ok {
		return "", fmt.Errorf("chat send: render queue full")
	}
	return "", nil
}
