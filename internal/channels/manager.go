package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/herald/internal/bus"
)

// Manager owns all registered chat-surface adapters: lifecycle, plus
// routing outbound renders to the right surface.
type Manager struct {
	channels     map[string]Channel
	bus          *bus.MessageBus
	dispatchStop context.CancelFunc
	mu           sync.RWMutex
}

// NewManager creates a channel manager.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// Register adds a channel. Must be called before StartAll.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	m.channels[ch.Name()] = ch
	m.mu.Unlock()
}

// Get returns the channel registered under name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts all registered channels and the render dispatch loop.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchStop = cancel
	go m.dispatchRenders(dispatchCtx)

	if len(m.channels) == 0 {
		slog.Warn("no chat surfaces enabled")
		return nil
	}

	for name, ch := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}
	}
	return nil
}

// StopAll gracefully stops the dispatch loop and all channels.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dispatchStop != nil {
		m.dispatchStop()
		m.dispatchStop = nil
	}

	for name, ch := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

// dispatchRenders consumes renders from the bus and routes each to the
// adapter named by its Surface field.
func (m *Manager) dispatchRenders(ctx context.Context) {
	for {
		r, ok := m.bus.SubscribeRender(ctx)
		if !ok {
			return
		}

		m.mu.RLock()
		ch, found := m.channels[r.Surface]
		m.mu.RUnlock()

		if !found {
			slog.Warn("render for unknown surface dropped", "surface", r.Surface)
			continue
		}
		if err := ch.Render(ctx, r); err != nil {
			slog.Error("render failed", "surface", r.Surface, "channel_id", r.ChannelID, "error", err)
		}
	}
}
