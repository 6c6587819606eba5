// Package discord connects Herald to Discord via the gateway websocket.
// Draft affordances are rendered as message component buttons; presses
// come back as component interactions.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/herald/internal/bus"
	"github.com/nextlevelbuilder/herald/internal/channels"
	"github.com/nextlevelbuilder/herald/internal/config"
)

// Channel is the Discord chat-surface adapter.
type Channel struct {
	*channels.BaseChannel
	session *discordgo.Session
	config  config.DiscordConfig
	renders *channels.RenderTracker
	limiter *channels.CallbackRateLimiter
	botID   string
}

// New creates a Discord channel from config.
func New(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus, cfg.AllowedChannels),
		session:     session,
		config:      cfg,
		renders:     channels.NewRenderTracker(),
		limiter:     channels.NewCallbackRateLimiter(),
	}, nil
}

// Start opens the gateway connection and registers event handlers.
func (c *Channel) Start(_ context.Context) error {
	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleInteraction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch bot user: %w", err)
	}
	c.botID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	return c.session.Close()
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == c.botID || m.Content == "" {
		return
	}

	threadTS := ""
	if m.MessageReference != nil {
		threadTS = m.MessageReference.MessageID
	}

	// A reply to one of our rendered drafts carrying "set:"/"edit:" is
	// edit input, not a chat message to classify.
	if threadTS != "" {
		if pendingID, tracked := c.renders.Lookup(threadTS); tracked {
			if actionID, field, payload, ok := channels.ParseEditReply(m.Content); ok {
				c.HandleInteraction(bus.Interaction{
					ActionID:   actionID,
					Value:      pendingID,
					UserID:     m.Author.ID,
					ChannelID:  m.ChannelID,
					MessageTS:  threadTS,
					CallbackID: "reply:" + m.ID,
					FormValues: map[string]string{field: payload},
				})
				return
			}
		}
	}

	c.HandleMessage(m.ChannelID, m.Author.ID, m.Content, m.ID, threadTS)
}

// handleInteraction acknowledges the button press with a deferred
// update so Discord does not show an error, then forwards it.
func (c *Channel) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		slog.Warn("discord interaction ack failed", "error", err)
	}

	userID := ""
	if i.Member != nil && i.Member.User != nil {
		userID = i.Member.User.ID
	} else if i.User != nil {
		userID = i.User.ID
	}
	if !c.limiter.Allow(userID) {
		slog.Debug("discord interaction rate limited", "user", userID)
		return
	}

	messageTS := ""
	if i.Message != nil {
		messageTS = i.Message.ID
	}

	actionID, value := channels.DecodeActionData(i.MessageComponentData().CustomID)
	c.HandleInteraction(bus.Interaction{
		ActionID:   actionID,
		Value:      value,
		UserID:     userID,
		ChannelID:  i.ChannelID,
		MessageTS:  messageTS,
		CallbackID: i.ID,
	})
}

// Render posts or edits a Discord message. Actions become button
// components, up to five per action row.
func (c *Channel) Render(_ context.Context, r bus.Render) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord session not running")
	}

	components := buildComponents(r.Actions)

	if r.ReplaceTS != "" {
		edit := &discordgo.MessageEdit{
			Channel:    r.ChannelID,
			ID:         r.ReplaceTS,
			Content:    &r.Text,
			Components: &components,
		}
		if _, err := c.session.ChannelMessageEditComplex(edit); err != nil {
			return fmt.Errorf("edit discord message: %w", err)
		}
		return nil
	}

	send := &discordgo.MessageSend{
		Content:    r.Text,
		Components: components,
	}
	if r.ThreadTS != "" {
		send.Reference = &discordgo.MessageReference{
			MessageID: r.ThreadTS,
			ChannelID: r.ChannelID,
		}
	}

	sent, err := c.session.ChannelMessageSendComplex(r.ChannelID, send)
	if err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}

	if len(r.Actions) > 0 {
		c.renders.Track(sent.ID, r.Actions[0].Value)
	}
	return nil
}

func buildComponents(actions []bus.Action) []discordgo.MessageComponent {
	if len(actions) == 0 {
		return nil
	}
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for _, a := range actions {
		row = append(row, discordgo.Button{
			Label:    a.Label,
			Style:    discordgo.SecondaryButton,
			CustomID: channels.EncodeActionData(a.ID, a.Value),
		})
		if len(row) == 5 {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	return rows
}
