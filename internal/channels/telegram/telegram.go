// Package telegram connects Herald to Telegram via the Bot API using
// long polling. Draft affordances are rendered as inline keyboards;
// button presses come back as callback queries.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/herald/internal/bus"
	"github.com/nextlevelbuilder/herald/internal/channels"
	"github.com/nextlevelbuilder/herald/internal/config"
)

// Channel is the Telegram chat-surface adapter.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	config     config.TelegramConfig
	renders    *channels.RenderTracker
	limiter    *channels.CallbackRateLimiter
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Telegram channel from config.
func New(cfg config.TelegramConfig, msgBus *bus.MessageBus) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus, cfg.AllowedChats),
		bot:         bot,
		config:      cfg,
		renders:     channels.NewRenderTracker(),
		limiter:     channels.NewCallbackRateLimiter(),
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				switch {
				case update.Message != nil:
					c.handleMessage(update.Message)
				case update.CallbackQuery != nil:
					c.handleCallback(pollCtx, update.CallbackQuery)
				}
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the update loop to exit so
// Telegram releases the getUpdates lock before a restart.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

func (c *Channel) handleMessage(msg *telego.Message) {
	if msg.From == nil || msg.From.IsBot || msg.Text == "" {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	msgTS := strconv.Itoa(msg.MessageID)
	threadTS := ""
	if msg.ReplyToMessage != nil {
		threadTS = strconv.Itoa(msg.ReplyToMessage.MessageID)
	}

	// A threaded "set:"/"edit:" reply to one of our rendered drafts is
	// edit input, not a chat message to classify.
	if threadTS != "" {
		if pendingID, tracked := c.renders.Lookup(threadTS); tracked {
			if actionID, field, payload, ok := channels.ParseEditReply(msg.Text); ok {
				c.HandleInteraction(bus.Interaction{
					ActionID:   actionID,
					Value:      pendingID,
					UserID:     strconv.FormatInt(msg.From.ID, 10),
					ChannelID:  chatID,
					MessageTS:  threadTS,
					CallbackID: "reply:" + msgTS,
					FormValues: map[string]string{field: payload},
				})
				return
			}
		}
	}

	c.HandleMessage(chatID, strconv.FormatInt(msg.From.ID, 10), msg.Text, msgTS, threadTS)
}

// handleCallback acknowledges the button press immediately, then
// forwards it; the heavy work happens downstream, fire-and-forget.
func (c *Channel) handleCallback(ctx context.Context, q *telego.CallbackQuery) {
	if err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: q.ID,
	}); err != nil {
		slog.Warn("telegram callback ack failed", "error", err)
	}

	userID := strconv.FormatInt(q.From.ID, 10)
	if !c.limiter.Allow(userID) {
		slog.Debug("telegram callback rate limited", "user", userID)
		return
	}

	msg, ok := q.Message.(*telego.Message)
	if !ok || msg == nil {
		slog.Debug("telegram callback on inaccessible message dropped")
		return
	}

	actionID, value := channels.DecodeActionData(q.Data)
	c.HandleInteraction(bus.Interaction{
		ActionID:   actionID,
		Value:      value,
		UserID:     userID,
		ChannelID:  strconv.FormatInt(msg.Chat.ID, 10),
		MessageTS:  strconv.Itoa(msg.MessageID),
		CallbackID: q.ID,
	})
}

// Render posts or edits a Telegram message. Actions become an inline
// keyboard, one button per row.
func (c *Channel) Render(ctx context.Context, r bus.Render) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := strconv.ParseInt(r.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram chat id %q: %w", r.ChannelID, err)
	}

	markup := buildKeyboard(r.Actions)

	if r.ReplaceTS != "" {
		msgID, err := strconv.Atoi(r.ReplaceTS)
		if err != nil {
			return fmt.Errorf("bad telegram message id %q: %w", r.ReplaceTS, err)
		}
		_, err = c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
			ChatID:      tu.ID(chatID),
			MessageID:   msgID,
			Text:        r.Text,
			ReplyMarkup: markup,
		})
		if err != nil {
			return fmt.Errorf("edit telegram message: %w", err)
		}
		return nil
	}

	params := &telego.SendMessageParams{
		ChatID:      tu.ID(chatID),
		Text:        r.Text,
		ReplyMarkup: markup,
	}
	if r.ThreadTS != "" {
		if replyID, err := strconv.Atoi(r.ThreadTS); err == nil {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: replyID}
		}
	}

	sent, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	if len(r.Actions) > 0 {
		c.renders.Track(strconv.Itoa(sent.MessageID), r.Actions[0].Value)
	}
	return nil
}

func buildKeyboard(actions []bus.Action) *telego.InlineKeyboardMarkup {
	if len(actions) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, []telego.InlineKeyboardButton{{
			Text:         a.Label,
			CallbackData: channels.EncodeActionData(a.ID, a.Value),
		}})
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}
