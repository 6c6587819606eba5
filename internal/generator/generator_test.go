package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/herald/internal/pending"
	"github.com/nextlevelbuilder/herald/internal/providers"
)

type fakeProvider struct {
	content    string
	err        error
	lastPrompt string
}

func (p *fakeProvider) Complete(_ context.Context, req providers.CompletionRequest) (*providers.Completion, error) {
	if len(req.Messages) > 0 {
		p.lastPrompt = req.Messages[len(req.Messages)-1].Content
	}
	if p.err != nil {
		return nil, p.err
	}
	return &providers.Completion{Content: p.content, FinishReason: "stop"}, nil
}

func (p *fakeProvider) Name() string         { return "fake" }
func (p *fakeProvider) DefaultModel() string { return "fake-model" }

func TestReminder_PromptMentionsTimingAndChannel(t *testing.T) {
	p := &fakeProvider{content: "See you all tomorrow for Email Funnels!"}
	g := New(p, "")

	got, err := g.Reminder(context.Background(), "Email Funnels", "lead magnets", pending.CategoryWeekly, pending.ChannelEmailList, pending.TimingDayBefore)
	if err != nil {
		t.Fatalf("Reminder() error = %v", err)
	}
	if got != "See you all tomorrow for Email Funnels!" {
		t.Errorf("Reminder() = %q", got)
	}
	for _, want := range []string{"Email Funnels", "lead magnets", "the day before", "mailing list"} {
		if !strings.Contains(p.lastPrompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, p.lastPrompt)
		}
	}
}

func TestRecap_IncludesNotes(t *testing.T) {
	p := &fakeProvider{content: "Great session today."}
	g := New(p, "")

	if _, err := g.Recap(context.Background(), "Email Funnels", "covered sequences", pending.CategoryMonthly, pending.ChannelCommunityBoard); err != nil {
		t.Fatalf("Recap() error = %v", err)
	}
	for _, want := range []string{"recap", "covered sequences", "board post"} {
		if !strings.Contains(p.lastPrompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, p.lastPrompt)
		}
	}
}

func TestGenerate_ErrorPaths(t *testing.T) {
	g := New(&fakeProvider{err: errors.New("boom")}, "")
	if _, err := g.Reminder(context.Background(), "T", "", pending.CategoryWeekly, pending.ChannelDirectMessage, pending.TimingDayOf); err == nil {
		t.Error("provider error must propagate")
	}

	g = New(&fakeProvider{content: "   "}, "")
	if _, err := g.Recap(context.Background(), "T", "", pending.CategoryWeekly, pending.ChannelDirectMessage); err == nil {
		t.Error("blank response must be an error")
	}
}

func TestSubject(t *testing.T) {
	g := New(&fakeProvider{}, "")
	if got := g.Subject("Email Funnels", pending.CategoryWeekly); got != "Weekly Call: Email Funnels" {
		t.Errorf("Subject() = %q", got)
	}
	if got := g.Subject("Q3 Planning", pending.CategoryMonthly); got != "Monthly Meetup: Q3 Planning" {
		t.Errorf("Subject() = %q", got)
	}
}
