package bus

import "context"

const defaultBufferSize = 256

// MessageBus decouples chat-surface adapters from the engine.
// Adapters publish ChatEvents and Interactions; the engine consumes them
// and publishes Renders, which the channel manager dispatches back out.
type MessageBus struct {
	events       chan ChatEvent
	interactions chan Interaction
	renders      chan Render
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		events:       make(chan ChatEvent, defaultBufferSize),
		interactions: make(chan Interaction, defaultBufferSize),
		renders:      make(chan Render, defaultBufferSize),
	}
}

// PublishEvent enqueues an inbound chat event. Drops on a full buffer
// rather than blocking the adapter's receive loop.
func (b *MessageBus) PublishEvent(ev ChatEvent) bool {
	select {
	case b.events <- ev:
		return true
	default:
		return false
	}
}

// PublishInteraction enqueues an interaction callback.
func (b *MessageBus) PublishInteraction(ic Interaction) bool {
	select {
	case b.interactions <- ic:
		return true
	default:
		return false
	}
}

// PublishRender enqueues an outbound render for dispatch.
func (b *MessageBus) PublishRender(r Render) bool {
	select {
	case b.renders <- r:
		return true
	default:
		return false
	}
}

// SubscribeEvent blocks until an event is available or ctx is done.
func (b *MessageBus) SubscribeEvent(ctx context.Context) (ChatEvent, bool) {
	select {
	case <-ctx.Done():
		return ChatEvent{}, false
	case ev := <-b.events:
		return ev, true
	}
}

// SubscribeInteraction blocks until an interaction is available or ctx is done.
func (b *MessageBus) SubscribeInteraction(ctx context.Context) (Interaction, bool) {
	select {
	case <-ctx.Done():
		return Interaction{}, false
	case ic := <-b.interactions:
		return ic, true
	}
}

// SubscribeRender blocks until a render is available or ctx is done.
func (b *MessageBus) SubscribeRender(ctx context.Context) (Render, bool) {
	select {
	case <-ctx.Done():
		return Render{}, false
	case r := <-b.renders:
		return r, true
	}
}

// RenderSink is the minimal interface components need to post messages.
// Used by the engine and approval handler to decouple from the concrete bus.
type RenderSink interface {
	PublishRender(r Render) bool
}
