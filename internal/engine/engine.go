// Package engine runs the topic-detection pipeline: chat events flow
// through the context tracker, the classifier, and the dedup engine;
// accepted topics become pending drafts rendered back to chat with
// approval affordances. Interaction callbacks are handed to the
// approval handler.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/herald/internal/approval"
	"github.com/nextlevelbuilder/herald/internal/audit"
	"github.com/nextlevelbuilder/herald/internal/bus"
	"github.com/nextlevelbuilder/herald/internal/classifier"
	"github.com/nextlevelbuilder/herald/internal/dedup"
	"github.com/nextlevelbuilder/herald/internal/generator"
	"github.com/nextlevelbuilder/herald/internal/pending"
	"github.com/nextlevelbuilder/herald/internal/tracker"
)

// eventWorkers bounds how many chat events are processed concurrently.
// Each event can suspend on the classifier, the generator, and the
// durable store, so a few in flight keep latency down without racing
// the dedup window too hard.
const eventWorkers = 4

// Target describes one outbound destination drafts are produced for.
type Target struct {
	Channel pending.Channel
	Timing  pending.Timing
}

// Config tunes the pipeline.
type Config struct {
	EventCategory pending.EventCategory // cadence this deployment watches for
	Targets       []Target              // destinations to draft for on acceptance
}

// Engine consumes the message bus and drives the core pipeline.
type Engine struct {
	cfg      Config
	bus      *bus.MessageBus
	tracker  *tracker.Tracker
	classify *classifier.Classifier
	dedup    *dedup.Engine
	store    *pending.Store
	gen      *generator.Generator
	approval *approval.Handler
	auditLog audit.Log
	topics   audit.TopicLog
	now      func() time.Time
}

// New wires an Engine.
func New(cfg Config, mb *bus.MessageBus, tr *tracker.Tracker, cl *classifier.Classifier, de *dedup.Engine, st *pending.Store, gen *generator.Generator, ap *approval.Handler, auditLog audit.Log, topics audit.TopicLog) *Engine {
	if cfg.EventCategory == "" {
		cfg.EventCategory = pending.CategoryWeekly
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = []Target{{Channel: pending.ChannelEmailList, Timing: pending.TimingDayBefore}}
	}
	return &Engine{
		cfg:      cfg,
		bus:      mb,
		tracker:  tr,
		classify: cl,
		dedup:    de,
		store:    st,
		gen:      gen,
		approval: ap,
		auditLog: auditLog,
		topics:   topics,
		now:      time.Now,
	}
}

// SetClock overrides the engine's time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Run consumes events and interactions until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < eventWorkers; i++ {
		g.Go(func() error {
			for {
				ev, ok := e.bus.SubscribeEvent(ctx)
				if !ok {
					return ctx.Err()
				}
				e.HandleEvent(ctx, ev)
			}
		})
		g.Go(func() error {
			for {
				ic, ok := e.bus.SubscribeInteraction(ctx)
				if !ok {
					return ctx.Err()
				}
				e.approval.Handle(ctx, ic)
			}
		})
	}

	return g.Wait()
}

// HandleEvent runs one chat event through the pipeline. Within one
// event the order is fixed: tracker update, classification, dedup
// check, store write. Failures are per-event and never propagate.
func (e *Engine) HandleEvent(ctx context.Context, ev bus.ChatEvent) {
	if notes, ok := parseRecapCommand(ev.Text); ok {
		e.produceRecap(ctx, ev, notes)
		return
	}

	if tracker.IsTopicRequest(ev.Text) {
		slog.Debug("engine: topic request noted", "channel", ev.ChannelID, "user", ev.UserID)
		e.tracker.NoteRequest(ev)
		e.tracker.Remember(ev)
		return
	}

	expecting, watchKey := e.tracker.Expecting(ev)
	contextWindow := e.tracker.ContextWindow(ev.ChannelID)
	// The buffer holds messages before this one; remember after reading.
	e.tracker.Remember(ev)

	res := e.classify.Classify(ctx, ev.Text, contextWindow, expecting)
	if !res.IsTopic {
		return
	}

	if e.dedup.IsDuplicate(res.Topic) {
		slog.Info("engine: duplicate topic suppressed", "topic", res.Topic, "channel", ev.ChannelID)
		return
	}

	slog.Info("engine: topic accepted", "topic", res.Topic, "channel", ev.ChannelID, "user", ev.UserID)
	e.dedup.RecordAccepted(res.Topic, ev.Timestamp)
	e.tracker.Accepted(ev.ChannelID, watchKey)

	e.acceptTopic(ctx, ev, res)
}

// acceptTopic records the accepted topic and produces one pending draft
// per configured target, rendering each back to chat with affordances.
func (e *Engine) acceptTopic(ctx context.Context, ev bus.ChatEvent, res classifier.Result) {
	eventDate := e.now().Format("2006-01-02")
	auditKey := fmt.Sprintf("%s:%s", e.cfg.EventCategory, eventDate)

	if e.topics != nil {
		if err := e.topics.RecordTopic(ctx, e.cfg.EventCategory, eventDate, res.Topic, ev.UserID); err != nil {
			slog.Warn("engine: topic log write failed", "error", err)
		}
	}
	e.audit(ctx, auditKey, audit.Partial{
		EventCategory: audit.Ptr(e.cfg.EventCategory),
		Topic:         audit.Ptr(res.Topic),
		Status:        audit.Ptr(audit.StatusPending),
	})

	origin := pending.Origin{Surface: ev.Surface, ChannelID: ev.ChannelID, MessageTS: ev.Timestamp}

	for _, target := range e.cfg.Targets {
		message, err := e.gen.Reminder(ctx, res.Topic, res.Description, e.cfg.EventCategory, target.Channel, target.Timing)
		if err != nil {
			slog.Error("engine: draft generation failed", "topic", res.Topic, "channel", target.Channel, "error", err)
			e.audit(ctx, auditKey, audit.Partial{
				Status:       audit.Ptr(audit.StatusFailed),
				ErrorMessage: audit.Ptr(err.Error()),
			})
			continue
		}

		id, _ := e.store.Create(ctx, pending.Input{
			ContentType:   pending.ContentReminder,
			Channel:       target.Channel,
			EventCategory: e.cfg.EventCategory,
			Timing:        target.Timing,
			Message:       message,
			Meta: pending.Meta{
				Topic:   res.Topic,
				Subject: e.gen.Subject(res.Topic, e.cfg.EventCategory),
				Ext:     map[string]string{"audit_key": auditKey},
			},
			Origin: origin,
		})

		item := e.store.Get(ctx, id)
		if item == nil {
			continue
		}
		render := approval.RenderPending(item, "")
		render.ThreadTS = ev.ThreadTS
		if !e.bus.PublishRender(render) {
			slog.Warn("engine: render queue full, draft not shown", "id", id)
		}
	}
}

// recapPrefix marks an explicit recap request in chat; the text after
// it is the notes the recap is drafted from.
const recapPrefix = "recap:"

func parseRecapCommand(text string) (notes string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < len(recapPrefix) || !strings.EqualFold(trimmed[:len(recapPrefix)], recapPrefix) {
		return "", false
	}
	return strings.TrimSpace(trimmed[len(recapPrefix):]), true
}

// produceRecap drafts a recap of today's event from the supplied notes,
// one pending draft per configured target. The topic comes from the
// day's call-history row; without one there is no event to recap.
func (e *Engine) produceRecap(ctx context.Context, ev bus.ChatEvent, notes string) {
	eventDate := e.now().Format("2006-01-02")
	baseKey := fmt.Sprintf("%s:%s", e.cfg.EventCategory, eventDate)

	var topic string
	if e.auditLog != nil {
		entry, err := e.auditLog.Get(ctx, baseKey)
		if err != nil {
			slog.Warn("engine: call history lookup failed", "key", baseKey, "error", err)
		} else if entry != nil {
			topic = entry.Topic
		}
	}
	if topic == "" {
		e.bus.PublishRender(bus.Render{
			Surface:   ev.Surface,
			ChannelID: ev.ChannelID,
			ThreadTS:  ev.ThreadTS,
			Text:      fmt.Sprintf("No topic on record for today's %s event, so there is nothing to recap yet.", e.cfg.EventCategory),
		})
		return
	}

	slog.Info("engine: recap requested", "topic", topic, "channel", ev.ChannelID, "user", ev.UserID)

	// Recaps get their own call-history row so they never clobber the
	// reminder pipeline's status for the same occurrence.
	auditKey := baseKey + ":recap"
	e.audit(ctx, auditKey, audit.Partial{
		EventCategory: audit.Ptr(e.cfg.EventCategory),
		Topic:         audit.Ptr(topic),
		Status:        audit.Ptr(audit.StatusPending),
	})

	origin := pending.Origin{Surface: ev.Surface, ChannelID: ev.ChannelID, MessageTS: ev.Timestamp}

	for _, target := range e.cfg.Targets {
		message, err := e.gen.Recap(ctx, topic, notes, e.cfg.EventCategory, target.Channel)
		if err != nil {
			slog.Error("engine: recap generation failed", "topic", topic, "channel", target.Channel, "error", err)
			e.audit(ctx, auditKey, audit.Partial{
				Status:       audit.Ptr(audit.StatusFailed),
				ErrorMessage: audit.Ptr(err.Error()),
			})
			continue
		}

		id, _ := e.store.Create(ctx, pending.Input{
			ContentType:   pending.ContentRecap,
			Channel:       target.Channel,
			EventCategory: e.cfg.EventCategory,
			Message:       message,
			Meta: pending.Meta{
				Topic:   topic,
				Subject: e.gen.Subject(topic, e.cfg.EventCategory),
				Ext:     map[string]string{"audit_key": auditKey},
			},
			Origin: origin,
		})

		item := e.store.Get(ctx, id)
		if item == nil {
			continue
		}
		render := approval.RenderPending(item, "")
		render.ThreadTS = ev.ThreadTS
		if !e.bus.PublishRender(render) {
			slog.Warn("engine: render queue full, draft not shown", "id", id)
		}
	}
}

func (e *Engine) audit(ctx context.Context, key string, p audit.Partial) {
	if e.auditLog == nil {
		return
	}
	if _, err := e.auditLog.Upsert(ctx, key, p); err != nil {
		slog.Warn("engine: audit upsert failed", "key", key, "error", err)
	}
}
