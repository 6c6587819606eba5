// Package delivery sends approved content to its outbound destination:
// the community email list, the community board, or back into chat as a
// direct message.
package delivery

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/herald/internal/pending"
)

// Sender delivers one approved item to its external destination.
// The returned ref identifies the sent artifact when the destination
// provides one (message id, post URL).
type Sender interface {
	Send(ctx context.Context, item *pending.Item) (ref string, err error)
}

// Registry resolves the Sender for an item's channel.
type Registry struct {
	senders map[pending.Channel]Sender
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[pending.Channel]Sender)}
}

// Register binds a sender to a channel.
func (r *Registry) Register(ch pending.Channel, s Sender) {
	r.senders[ch] = s
}

// Resolve returns the sender for ch, or an error when the channel has
// no configured route.
func (r *Registry) Resolve(ch pending.Channel) (Sender, error) {
	s, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("no sender configured for channel %q", ch)
	}
	return s, nil
}
