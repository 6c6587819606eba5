package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/herald/internal/audit"
	"github.com/nextlevelbuilder/herald/internal/bus"
	"github.com/nextlevelbuilder/herald/internal/classifier"
	"github.com/nextlevelbuilder/herald/internal/dedup"
	"github.com/nextlevelbuilder/herald/internal/generator"
	"github.com/nextlevelbuilder/herald/internal/pending"
	"github.com/nextlevelbuilder/herald/internal/providers"
	"github.com/nextlevelbuilder/herald/internal/tracker"
)

// scriptedProvider answers classification and drafting calls separately,
// keyed off the system prompt.
type scriptedProvider struct {
	judgement string
	draft     string
}

func (p *scriptedProvider) Complete(_ context.Context, req providers.CompletionRequest) (*providers.Completion, error) {
	if strings.Contains(req.System, "judge") {
		return &providers.Completion{Content: p.judgement, FinishReason: "stop"}, nil
	}
	return &providers.Completion{Content: p.draft, FinishReason: "stop"}, nil
}

func (p *scriptedProvider) DefaultModel() string { return "fake" }
func (p *scriptedProvider) Name() string         { return "fake" }

type memDurable struct {
	mu   sync.Mutex
	rows map[string]*pending.Item
}

func (m *memDurable) Put(_ context.Context, item *pending.Item) error {
	m.mu.Lock()
	cp := *item
	m.rows[item.ID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *memDurable) Get(_ context.Context, id string) (*pending.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.rows[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, nil
}

func (m *memDurable) UpdateMessage(_ context.Context, _, _ string) error { return nil }
func (m *memDurable) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	delete(m.rows, id)
	return ok, nil
}
func (m *memDurable) ListActive(_ context.Context) ([]*pending.Item, error) { return nil, nil }
func (m *memDurable) DeleteExpired(_ context.Context) (int64, error)        { return 0, nil }

type memLog struct {
	mu   sync.Mutex
	rows map[string]*audit.Entry
}

func newMemLog() *memLog { return &memLog{rows: make(map[string]*audit.Entry)} }

func (l *memLog) Upsert(_ context.Context, key string, p audit.Partial) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.rows[key]
	if !ok {
		e = &audit.Entry{ID: key, ExternalKey: key}
		l.rows[key] = e
	}
	if p.EventCategory != nil {
		e.EventCategory = *p.EventCategory
	}
	if p.Topic != nil {
		e.Topic = *p.Topic
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.ErrorMessage != nil {
		e.ErrorMessage = *p.ErrorMessage
	}
	return e.ID, nil
}

func (l *memLog) Get(_ context.Context, key string) (*audit.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.rows[key]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (l *memLog) List(_ context.Context, _ int) ([]*audit.Entry, error) { return nil, nil }

func newTestEngine(judgement string) (*Engine, *bus.MessageBus, *pending.Store) {
	provider := &scriptedProvider{
		judgement: judgement,
		draft:     "Reminder: tomorrow we cover the announced topic.",
	}
	msgBus := bus.NewMessageBus()
	store := pending.NewStore(&memDurable{rows: make(map[string]*pending.Item)})
	eng := New(
		Config{
			EventCategory: pending.CategoryWeekly,
			Targets:       []Target{{Channel: pending.ChannelEmailList, Timing: pending.TimingDayBefore}},
		},
		msgBus,
		tracker.New(),
		classifier.New(provider, ""),
		dedup.New(),
		store,
		generator.New(provider, ""),
		nil, // approval handler is exercised by the interaction path only
		nil,
		nil,
	)
	return eng, msgBus, store
}

func drainRender(t *testing.T, msgBus *bus.MessageBus) (bus.Render, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	return msgBus.SubscribeRender(ctx)
}

func chatEvent(text, ts, threadTS string) bus.ChatEvent {
	return bus.ChatEvent{
		Surface:   "telegram",
		ChannelID: "C1",
		UserID:    "alice",
		Text:      text,
		Timestamp: ts,
		ThreadTS:  threadTS,
	}
}

func TestHandleEvent_AnnouncementProducesDraft(t *testing.T) {
	eng, msgBus, store := newTestEngine(
		`{"is_topic": true, "topic": "Email Funnels", "description": "Breaking down funnels."}`)
	ctx := context.Background()

	eng.HandleEvent(ctx, chatEvent("This week we're covering Email Funnels in depth", "100", ""))

	render, ok := drainRender(t, msgBus)
	if !ok {
		t.Fatal("accepted topic must produce a render")
	}
	if !strings.Contains(render.Text, "Reminder: tomorrow") {
		t.Errorf("render text = %q, want the generated draft", render.Text)
	}
	if len(render.Actions) != 5 {
		t.Errorf("render actions = %d, want 5 affordances", len(render.Actions))
	}

	items := store.ListActive(ctx)
	if len(items) != 1 {
		t.Fatalf("pending items = %d, want 1", len(items))
	}
	if items[0].Meta.Topic != "Email Funnels" || items[0].Channel != pending.ChannelEmailList {
		t.Errorf("pending item = %+v", items[0])
	}
}

func TestHandleEvent_DuplicateSuppressed(t *testing.T) {
	eng, msgBus, store := newTestEngine(
		`{"is_topic": true, "topic": "Email Funnels", "description": ""}`)
	ctx := context.Background()

	eng.HandleEvent(ctx, chatEvent("This week we're covering Email Funnels in depth", "100", ""))
	if _, ok := drainRender(t, msgBus); !ok {
		t.Fatal("first acceptance must render")
	}

	eng.HandleEvent(ctx, chatEvent("Reminder folks, Email Funnels is the topic this week", "101", ""))
	if _, ok := drainRender(t, msgBus); ok {
		t.Error("duplicate topic must not render a second draft")
	}
	if items := store.ListActive(ctx); len(items) != 1 {
		t.Errorf("pending items = %d, want 1", len(items))
	}
}

func TestHandleEvent_TopicRequestRelaxesClassification(t *testing.T) {
	eng, msgBus, _ := newTestEngine(
		`{"is_topic": true, "topic": "Email Funnels", "description": ""}`)
	ctx := context.Background()

	// The request itself must not be classified as an announcement.
	eng.HandleEvent(ctx, chatEvent("what's the topic for this week?", "100", ""))
	if _, ok := drainRender(t, msgBus); ok {
		t.Fatal("a topic request must not produce a draft")
	}

	// A short answer passes only because the channel is expecting one.
	eng.HandleEvent(ctx, chatEvent("Email Funnels", "101", ""))
	if _, ok := drainRender(t, msgBus); !ok {
		t.Error("short answer while expecting must produce a draft")
	}
}

func newRecapEngine(log *memLog) (*Engine, *bus.MessageBus, *pending.Store) {
	provider := &scriptedProvider{
		judgement: `{"is_topic": false, "topic": "", "description": ""}`,
		draft:     "Recap: we walked through funnels end to end.",
	}
	msgBus := bus.NewMessageBus()
	store := pending.NewStore(&memDurable{rows: make(map[string]*pending.Item)})
	eng := New(
		Config{
			EventCategory: pending.CategoryWeekly,
			Targets:       []Target{{Channel: pending.ChannelEmailList, Timing: pending.TimingDayBefore}},
		},
		msgBus,
		tracker.New(),
		classifier.New(provider, ""),
		dedup.New(),
		store,
		generator.New(provider, ""),
		nil,
		log,
		nil,
	)
	return eng, msgBus, store
}

func TestParseRecapCommand(t *testing.T) {
	tests := []struct {
		text      string
		wantNotes string
		wantOK    bool
	}{
		{"recap: covered sequences and CTAs", "covered sequences and CTAs", true},
		{"  Recap:   great turnout today  ", "great turnout today", true},
		{"recap:", "", true},
		{"a recap: of sorts", "", false},
		{"what a session", "", false},
	}
	for _, tt := range tests {
		notes, ok := parseRecapCommand(tt.text)
		if ok != tt.wantOK || notes != tt.wantNotes {
			t.Errorf("parseRecapCommand(%q) = (%q, %v), want (%q, %v)", tt.text, notes, ok, tt.wantNotes, tt.wantOK)
		}
	}
}

func TestHandleEvent_RecapCommandProducesDraft(t *testing.T) {
	log := newMemLog()
	eng, msgBus, store := newRecapEngine(log)
	ctx := context.Background()

	fixed := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return fixed })
	log.rows["weekly:2026-08-30"] = &audit.Entry{
		ID:          "row-1",
		ExternalKey: "weekly:2026-08-30",
		Topic:       "Email Funnels",
		Status:      audit.StatusCompleted,
	}

	eng.HandleEvent(ctx, chatEvent("recap: covered sequences and CTAs", "200", ""))

	render, ok := drainRender(t, msgBus)
	if !ok {
		t.Fatal("recap command must produce a render")
	}
	if !strings.Contains(render.Text, "Recap: we walked") {
		t.Errorf("render text = %q, want the generated recap", render.Text)
	}
	if len(render.Actions) != 5 {
		t.Errorf("render actions = %d, want 5 affordances", len(render.Actions))
	}

	items := store.ListActive(ctx)
	if len(items) != 1 {
		t.Fatalf("pending items = %d, want 1", len(items))
	}
	if items[0].ContentType != pending.ContentRecap || items[0].Meta.Topic != "Email Funnels" {
		t.Errorf("pending item = %+v, want a recap for the recorded topic", items[0])
	}

	row, _ := log.Get(ctx, "weekly:2026-08-30:recap")
	if row == nil || row.Status != audit.StatusPending || row.Topic != "Email Funnels" {
		t.Errorf("recap audit row = %+v, want its own pending entry", row)
	}
	if base, _ := log.Get(ctx, "weekly:2026-08-30"); base.Status != audit.StatusCompleted {
		t.Errorf("base audit status = %q, recap must not clobber it", base.Status)
	}
}

func TestHandleEvent_RecapWithoutRecordedTopic(t *testing.T) {
	eng, msgBus, store := newRecapEngine(newMemLog())
	ctx := context.Background()

	eng.HandleEvent(ctx, chatEvent("recap: great session", "200", ""))

	render, ok := drainRender(t, msgBus)
	if !ok {
		t.Fatal("recap without a topic must still answer in chat")
	}
	if !strings.Contains(render.Text, "nothing to recap") {
		t.Errorf("render text = %q, want the no-topic explanation", render.Text)
	}
	if items := store.ListActive(ctx); len(items) != 0 {
		t.Errorf("pending items = %d, want 0", len(items))
	}
}

func TestHandleEvent_NonTopicIgnored(t *testing.T) {
	eng, msgBus, store := newTestEngine(
		`{"is_topic": false, "topic": "", "description": ""}`)
	ctx := context.Background()

	eng.HandleEvent(ctx, chatEvent("we had a great discussion about pets yesterday", "100", ""))
	if _, ok := drainRender(t, msgBus); ok {
		t.Error("non-topic must not render")
	}
	if items := store.ListActive(ctx); len(items) != 0 {
		t.Errorf("pending items = %d, want 0", len(items))
	}
}
