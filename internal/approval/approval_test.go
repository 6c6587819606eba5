package approval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/herald/internal/audit"
	"github.com/nextlevelbuilder/herald/internal/bus"
	"github.com/nextlevelbuilder/herald/internal/delivery"
	"github.com/nextlevelbuilder/herald/internal/generator"
	"github.com/nextlevelbuilder/herald/internal/pending"
	"github.com/nextlevelbuilder/herald/internal/providers"
)

// --- fakes ---

type memDurable struct {
	mu   sync.Mutex
	rows map[string]*pending.Item
}

func newMemDurable() *memDurable { return &memDurable{rows: make(map[string]*pending.Item)} }

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
	it, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (m *memDurable) UpdateMessage(_ context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.rows[id]; ok {
		it.Message = message
	}
	return nil
}

func (m *memDurable) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	delete(m.rows, id)
	return ok, nil
}

func (m *memDurable) ListActive(_ context.Context) ([]*pending.Item, error) { return nil, nil }
func (m *memDurable) DeleteExpired(_ context.Context) (int64, error)        { return 0, nil }

type fakeSender struct {
	mu    sync.Mutex
	sent  []string // message bodies
	err   error
	delay time.Duration
}

func (f *fakeSender) Send(_ context.Context, item *pending.Item) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, item.Message)
	f.mu.Unlock()
	return "ref-1", nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type memAudit struct {
	mu      sync.Mutex
	entries map[string]*audit.Entry
}

func newMemAudit() *memAudit { return &memAudit{entries: make(map[string]*audit.Entry)} }

func (m *memAudit) Upsert(_ context.Context, key string, p audit.Partial) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &audit.Entry{ID: key, ExternalKey: key, CreatedAt: time.Now()}
		m.entries[key] = e
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
	if p.Links != nil {
		e.Links = *p.Links
	}
	if p.ProcessedAt != nil {
		e.ProcessedAt = p.ProcessedAt
	}
	return e.ID, nil
}

func (m *memAudit) Get(_ context.Context, key string) (*audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

func (m *memAudit) List(_ context.Context, _ int) ([]*audit.Entry, error) { return nil, nil }

func (m *memAudit) status(key string) audit.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.Status
	}
	return ""
}

type memMentions struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemMentions() *memMentions { return &memMentions{seen: make(map[string]bool)} }

func (m *memMentions) MarkProcessed(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *memMentions) PurgeOlderThan(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

type captureSink struct {
	mu      sync.Mutex
	renders []bus.Render
}

func (c *captureSink) PublishRender(r bus.Render) bool {
	c.mu.Lock()
	c.renders = append(c.renders, r)
	c.mu.Unlock()
	return true
}

func (c *captureSink) last() *bus.Render {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.renders) == 0 {
		return nil
	}
	r := c.renders[len(c.renders)-1]
	return &r
}

type echoProvider struct{ content string }

func (p *echoProvider) Complete(_ context.Context, _ providers.CompletionRequest) (*providers.Completion, error) {
	return &providers.Completion{Content: p.content, FinishReason: "stop"}, nil
}
func (p *echoProvider) DefaultModel() string { return "fake" }
func (p *echoProvider) Name() string         { return "fake" }

// --- fixture ---

type fixture struct {
	store    *pending.Store
	sender   *fakeSender
	auditLog *memAudit
	sink     *captureSink
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := pending.NewStore(newMemDurable())
	sender := &fakeSender{}
	senders := delivery.NewRegistry()
	senders.Register(pending.ChannelEmailList, sender)
	auditLog := newMemAudit()
	sink := &captureSink{}
	gen := generator.New(&echoProvider{content: "Revised draft body."}, "")
	h := NewHandler(store, senders, auditLog, newMemMentions(), gen, sink)
	return &fixture{store: store, sender: sender, auditLog: auditLog, sink: sink, handler: h}
}

func (f *fixture) createItem(t *testing.T) string {
	t.Helper()
	id, done := f.store.Create(context.Background(), pending.Input{
		ContentType:   pending.ContentReminder,
		Channel:       pending.ChannelEmailList,
		EventCategory: pending.CategoryWeekly,
		Timing:        pending.TimingDayBefore,
		Message:       "Reminder: tomorrow we cover Email Funnels.",
		Meta:          pending.Meta{Topic: "Email Funnels", Ext: map[string]string{"audit_key": "weekly:2026-03-10"}},
		Origin:        pending.Origin{Surface: "telegram", ChannelID: "C1", MessageTS: "100"},
	})
	<-done
	return id
}

func interaction(action, value, callbackID string) bus.Interaction {
	return bus.Interaction{
		Surface:    "telegram",
		ActionID:   action,
		Value:      value,
		UserID:     "alice",
		ChannelID:  "C1",
		MessageTS:  "200",
		CallbackID: callbackID,
	}
}

// --- tests ---

func TestApprove_SendsAndCompletes(t *testing.T) {
	f := newFixture(t)
	id := f.createItem(t)
	ctx := context.Background()

	f.handler.Handle(ctx, interaction(ActionApprove, id, "cb-1"))

	if f.sender.sentCount() != 1 {
		t.Fatalf("sends = %d, want 1", f.sender.sentCount())
	}
	if got := f.auditLog.status("weekly:2026-03-10"); got != audit.StatusCompleted {
		t.Errorf("audit status = %q, want completed", got)
	}
	if f.store.Get(ctx, id) != nil {
		t.Error("sent item must be removed from the store")
	}
	last := f.sink.last()
	if last == nil || last.ReplaceTS != "200" || !strings.Contains(last.Text, "Sent to the email list") {
		t.Errorf("confirmation render = %+v", last)
	}
}

func TestApprove_DoubleApproveSendsOnce(t *testing.T) {
	f := newFixture(t)
	id := f.createItem(t)
	ctx := context.Background()

	f.handler.Handle(ctx, interaction(ActionApprove, id, "cb-1"))
	f.handler.Handle(ctx, interaction(ActionApprove, id, "cb-2"))

	if f.sender.sentCount() != 1 {
		t.Fatalf("sends = %d, want exactly 1", f.sender.sentCount())
	}
	last := f.sink.last()
	if last == nil || !strings.Contains(last.Text, "no longer available") {
		t.Errorf("second approve render = %+v, want gone message", last)
	}
}

func TestApprove_ConcurrentApprovesSendOnce(t *testing.T) {
	f := newFixture(t)
	f.sender.delay = 20 * time.Millisecond
	id := f.createItem(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		cb := string(rune('a' + i))
		go func() {
			defer wg.Done()
			f.handler.Handle(ctx, interaction(ActionApprove, id, "cb-"+cb))
		}()
	}
	wg.Wait()

	if f.sender.sentCount() != 1 {
		t.Fatalf("concurrent sends = %d, want exactly 1", f.sender.sentCount())
	}
}

func TestApprove_FailedSendKeepsDraftRetryable(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp: connection refused")
	id := f.createItem(t)
	ctx := context.Background()

	f.handler.Handle(ctx, interaction(ActionApprove, id, "cb-1"))

	if got := f.auditLog.status("weekly:2026-03-10"); got != audit.StatusFailed {
		t.Errorf("audit status = %q, want failed", got)
	}
	if f.store.Get(ctx, id) == nil {
		t.Fatal("failed send must keep the item in the store")
	}
	last := f.sink.last()
	if last == nil || !strings.Contains(last.Text, "Send failed") || last.ReplaceTS != "200" {
		t.Errorf("failure render = %+v", last)
	}

	// Retry succeeds once the sender recovers.
	f.sender.err = nil
	f.handler.Handle(ctx, interaction(ActionApprove, id, "cb-2"))
	if f.sender.sentCount() != 1 {
		t.Fatalf("retry sends = %d, want 1", f.sender.sentCount())
	}
	if got := f.auditLog.status("weekly:2026-03-10"); got != audit.StatusCompleted {
		t.Errorf("audit status after retry = %q, want completed", got)
	}
}

func TestApprove_MissingItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handler.Handle(ctx, interaction(ActionApprove, "does-not-exist", "cb-1"))

	if f.sender.sentCount() != 0 {
		t.Error("missing item must not be sent")
	}
	last := f.sink.last()
	if last == nil || !strings.Contains(last.Text, "no longer available") {
		t.Errorf("render = %+v, want gone message", last)
	}
}

func TestSetMessage_EditBeforeApprove(t *testing.T) {
	f := newFixture(t)
	id := f.createItem(t)
	ctx := context.Background()

	ic := interaction(ActionSetMessage, id, "cb-1")
	ic.FormValues = map[string]string{"message": "Hand-edited reminder text."}
	f.handler.Handle(ctx, ic)

	last := f.sink.last()
	if last == nil || !strings.Contains(last.Text, "Hand-edited reminder text.") || last.ThreadTS != "200" {
		t.Errorf("edit render = %+v, want threaded re-render with new body", last)
	}

	// The approved send must carry the edit, not the original.
	f.handler.Handle(ctx, interaction(ActionApprove, id, "cb-2"))
	if f.sender.sentCount() != 1 || f.sender.sent[0] != "Hand-edited reminder text." {
		t.Errorf("sent bodies = %v, want the edited text", f.sender.sent)
	}
}

func TestSetMessage_PromptsWithoutText(t *testing.T) {
	f := newFixture(t)
	id := f.createItem(t)

	f.handler.Handle(context.Background(), interaction(ActionSetMessage, id, "cb-1"))

	last := f.sink.last()
	if last == nil || !strings.Contains(last.Text, "Reply with") || last.ThreadTS != "200" {
		t.Errorf("prompt render = %+v", last)
	}
}

func TestAIEdit_RevisesDraft(t *testing.T) {
	f := newFixture(t)
	id := f.createItem(t)
	ctx := context.Background()

	ic := interaction(ActionAIEdit, id, "cb-1")
	ic.FormValues = map[string]string{"feedback": "make it shorter"}
	f.handler.Handle(ctx, ic)

	if got := f.store.Get(ctx, id); got == nil || got.Message != "Revised draft body." {
		t.Errorf("stored message after ai edit = %+v", got)
	}
	last := f.sink.last()
	if last == nil || !strings.Contains(last.Text, "Revised draft body.") {
		t.Errorf("revision render = %+v", last)
	}
}

func TestCopy_RepliesWithBody(t *testing.T) {
	f := newFixture(t)
	id := f.createItem(t)

	f.handler.Handle(context.Background(), interaction(ActionCopy, id, "cb-1"))

	last := f.sink.last()
	if last == nil || last.Text != "Reminder: tomorrow we cover Email Funnels." || last.ThreadTS != "200" {
		t.Errorf("copy render = %+v", last)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	id := f.createItem(t)
	ctx := context.Background()

	f.handler.Handle(ctx, interaction(ActionCancel, id, "cb-1"))
	if f.store.Get(ctx, id) != nil {
		t.Error("cancelled item must be removed")
	}
	last := f.sink.last()
	if last == nil || !strings.Contains(last.Text, "cancelled") || last.ReplaceTS != "200" {
		t.Errorf("cancel render = %+v", last)
	}

	f.handler.Handle(ctx, interaction(ActionCancel, id, "cb-2"))
	if last := f.sink.last(); last == nil || !strings.Contains(last.Text, "no longer available") {
		t.Errorf("second cancel render = %+v, want gone message", last)
	}
}

func TestHandle_DuplicateCallbackSuppressed(t *testing.T) {
	f := newFixture(t)
	id := f.createItem(t)
	ctx := context.Background()

	// The surface redelivers the same callback id; only the first runs.
	f.handler.Handle(ctx, interaction(ActionApprove, id, "cb-same"))
	f.handler.Handle(ctx, interaction(ActionApprove, id, "cb-same"))

	if f.sender.sentCount() != 1 {
		t.Errorf("sends = %d, want 1", f.sender.sentCount())
	}
	// Only the success render exists, no gone message from the repeat.
	for _, r := range f.sink.renders {
		if strings.Contains(r.Text, "no longer available") {
			t.Error("suppressed duplicate must not produce a gone message")
		}
	}
}
