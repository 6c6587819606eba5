// Package approval implements the per-item lifecycle between a rendered
// draft and its terminal outcome: approved-and-sent, cancelled, or
// expired. Action callbacks arrive as bus.Interactions; every handler
// treats a missing or expired item as a graceful no-op.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/herald/internal/audit"
	"github.com/nextlevelbuilder/herald/internal/bus"
	"github.com/nextlevelbuilder/herald/internal/delivery"
	"github.com/nextlevelbuilder/herald/internal/generator"
	"github.com/nextlevelbuilder/herald/internal/pending"
)

// Action identifiers carried by rendered affordances.
const (
	ActionCopy       = "copy"
	ActionApprove    = "approve"
	ActionSetMessage = "set_message"
	ActionAIEdit     = "ai_edit"
	ActionCancel     = "cancel"
)

// auditKeyExt is the Meta.Ext key under which the engine stores the
// external event identifier for call-history rows.
const auditKeyExt = "audit_key"

// goneMessage is the uniform reply for actions on items that are
// expired, already handled, or never existed. The store cannot tell
// those apart after GC, so one phrasing covers all three.
const goneMessage = "This draft is no longer available — it may have been handled already or expired."

var channelLabels = map[pending.Channel]string{
	pending.ChannelDirectMessage:  "direct message",
	pending.ChannelEmailList:      "email list",
	pending.ChannelCommunityBoard: "community board",
}

// Handler executes approval-state transitions.
type Handler struct {
	store    *pending.Store
	senders  *delivery.Registry
	auditLog audit.Log
	mentions audit.MentionLog
	gen      *generator.Generator
	sink     bus.RenderSink
	now      func() time.Time
}

// NewHandler wires an approval handler.
func NewHandler(store *pending.Store, senders *delivery.Registry, auditLog audit.Log, mentions audit.MentionLog, gen *generator.Generator, sink bus.RenderSink) *Handler {
	return &Handler{
		store:    store,
		senders:  senders,
		auditLog: auditLog,
		mentions: mentions,
		gen:      gen,
		sink:     sink,
		now:      time.Now,
	}
}

// SetClock overrides the handler's time source. Test hook.
func (h *Handler) SetClock(now func() time.Time) { h.now = now }

// RenderPending builds the chat render for a draft awaiting approval:
// the draft body plus its action affordances, each carrying the item id.
func RenderPending(item *pending.Item, note string) bus.Render {
	var text strings.Builder
	label := channelLabels[item.Channel]
	fmt.Fprintf(&text, "Draft %s for the %s (%s):\n\n%s", item.ContentType, label, item.EventCategory, item.Message)
	if note != "" {
		fmt.Fprintf(&text, "\n\n%s", note)
	}

	return bus.Render{
		Surface:   item.Origin.Surface,
		ChannelID: item.Origin.ChannelID,
		Text:      text.String(),
		Actions: []bus.Action{
			{ID: ActionApprove, Label: "Approve & send", Value: item.ID},
			{ID: ActionSetMessage, Label: "Set message", Value: item.ID},
			{ID: ActionAIEdit, Label: "AI edit", Value: item.ID},
			{ID: ActionCopy, Label: "Copy", Value: item.ID},
			{ID: ActionCancel, Label: "Cancel", Value: item.ID},
		},
	}
}

// Handle dispatches one interaction callback. The caller has already
// acknowledged the callback toward the chat surface; this runs
// fire-and-forget.
func (h *Handler) Handle(ctx context.Context, ic bus.Interaction) {
	// Chat surfaces redeliver callbacks on slow acks; suppress repeats.
	if h.mentions != nil && ic.CallbackID != "" {
		key := ic.Surface + ":" + ic.CallbackID
		fresh, err := h.mentions.MarkProcessed(ctx, key)
		if err != nil {
			slog.Warn("approval: mention dedup failed, continuing", "key", key, "error", err)
		} else if !fresh {
			slog.Debug("approval: duplicate callback suppressed", "key", key)
			return
		}
	}

	switch ic.ActionID {
	case ActionApprove:
		h.approve(ctx, ic)
	case ActionSetMessage:
		h.setMessage(ctx, ic)
	case ActionAIEdit:
		h.aiEdit(ctx, ic)
	case ActionCopy:
		h.copyText(ctx, ic)
	case ActionCancel:
		h.cancel(ctx, ic)
	default:
		slog.Warn("approval: unknown action", "action", ic.ActionID)
	}
}

// approve runs the terminal success transition: claim, send, confirm,
// delete, audit. Claiming before the send is what keeps concurrent
// approvals at-most-once; a failed send releases the claim so the item
// stays retryable.
func (h *Handler) approve(ctx context.Context, ic bus.Interaction) {
	item := h.store.Claim(ctx, ic.Value)
	if item == nil {
		h.replace(ic, goneMessage)
		return
	}

	auditKey := item.Meta.Ext[auditKeyExt]
	if auditKey == "" {
		auditKey = "pending:" + item.ID
	}

	h.audit(ctx, auditKey, audit.Partial{
		EventCategory: audit.Ptr(item.EventCategory),
		Topic:         audit.Ptr(item.Meta.Topic),
		Status:        audit.Ptr(audit.StatusProcessing),
	})

	sender, err := h.senders.Resolve(item.Channel)
	if err == nil {
		var ref string
		ref, err = sender.Send(ctx, item)
		if err == nil && ref != "" {
			h.audit(ctx, auditKey, audit.Partial{Links: audit.Ptr([]string{ref})})
		}
	}

	if err != nil {
		h.store.Release(item.ID)
		h.audit(ctx, auditKey, audit.Partial{
			Status:       audit.Ptr(audit.StatusFailed),
			ErrorMessage: audit.Ptr(err.Error()),
		})
		render := RenderPending(item, fmt.Sprintf("⚠️ Send failed: %v — the draft is kept, approve again to retry.", err))
		render.ReplaceTS = ic.MessageTS
		h.sink.PublishRender(render)
		return
	}

	h.store.Delete(ctx, item.ID)
	h.audit(ctx, auditKey, audit.Partial{
		Status:       audit.Ptr(audit.StatusCompleted),
		ErrorMessage: audit.Ptr(""),
		ProcessedAt:  audit.Ptr(h.now()),
	})

	h.replace(ic, fmt.Sprintf("✅ Sent to the %s (approved by <%s>).", channelLabels[item.Channel], ic.UserID))
}

// setMessage replaces the draft body with user-supplied text and posts
// a fresh render in the same thread, preserving the edit history.
func (h *Handler) setMessage(ctx context.Context, ic bus.Interaction) {
	text := strings.TrimSpace(ic.FormValues["message"])
	if text == "" {
		h.reply(ic, "Reply with the replacement text in the message field.")
		return
	}

	if !h.store.UpdateMessage(ctx, ic.Value, text) {
		h.replace(ic, goneMessage)
		return
	}

	item := h.store.Get(ctx, ic.Value)
	if item == nil {
		h.replace(ic, goneMessage)
		return
	}
	render := RenderPending(item, "✏️ Message updated.")
	render.ThreadTS = ic.MessageTS
	h.sink.PublishRender(render)
}

// aiEdit regenerates the draft from the user's feedback and posts a
// fresh render in the same thread.
func (h *Handler) aiEdit(ctx context.Context, ic bus.Interaction) {
	item := h.store.Get(ctx, ic.Value)
	if item == nil {
		h.replace(ic, goneMessage)
		return
	}

	feedback := strings.TrimSpace(ic.FormValues["feedback"])
	if feedback == "" {
		h.reply(ic, "Reply with edit feedback in the message field.")
		return
	}

	revised, err := h.gen.Edit(ctx, item.Message, feedback)
	if err != nil {
		slog.Warn("approval: ai edit failed", "id", item.ID, "error", err)
		h.reply(ic, fmt.Sprintf("AI edit failed: %v — the draft is unchanged.", err))
		return
	}

	if !h.store.UpdateMessage(ctx, item.ID, revised) {
		h.replace(ic, goneMessage)
		return
	}

	item.Message = revised
	render := RenderPending(item, "🤖 Draft revised from your feedback.")
	render.ThreadTS = ic.MessageTS
	h.sink.PublishRender(render)
}

// copyText posts the raw draft body in the thread for manual copying.
func (h *Handler) copyText(ctx context.Context, ic bus.Interaction) {
	item := h.store.Get(ctx, ic.Value)
	if item == nil {
		h.replace(ic, goneMessage)
		return
	}
	h.reply(ic, item.Message)
}

// cancel is the terminal dismissal: delete the item and update the
// rendered message. No audit record.
func (h *Handler) cancel(ctx context.Context, ic bus.Interaction) {
	if !h.store.Delete(ctx, ic.Value) {
		h.replace(ic, goneMessage)
		return
	}
	h.replace(ic, fmt.Sprintf("🚫 Draft cancelled by <%s>.", ic.UserID))
}

// replace edits the message the interaction came from, dropping its
// affordances.
func (h *Handler) replace(ic bus.Interaction, text string) {
	h.sink.PublishRender(bus.Render{
		Surface:   ic.Surface,
		ChannelID: ic.ChannelID,
		ReplaceTS: ic.MessageTS,
		Text:      text,
	})
}

// reply posts into the thread under the interaction's message.
func (h *Handler) reply(ic bus.Interaction, text string) {
	h.sink.PublishRender(bus.Render{
		Surface:   ic.Surface,
		ChannelID: ic.ChannelID,
		ThreadTS:  ic.MessageTS,
		Text:      text,
	})
}

func (h *Handler) audit(ctx context.Context, key string, p audit.Partial) {
	if h.auditLog == nil {
		return
	}
	if _, err := h.auditLog.Upsert(ctx, key, p); err != nil {
		slog.Warn("approval: audit upsert failed", "key", key, "error", err)
	}
}
