// Package generator produces reminder and recap draft text via the
// external text-generation collaborator.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/herald/internal/pending"
	"github.com/nextlevelbuilder/herald/internal/providers"
)

const draftSystemPrompt = `You write short announcement drafts for a community's recurring events (a weekly call and a monthly meetup). Write in a friendly, direct voice. No preamble, no sign-off placeholders, no markdown headings. Output only the draft body.`

var timingPhrases = map[pending.Timing]string{
	pending.TimingWeekBefore: "one week before the event",
	pending.TimingDayBefore:  "the day before the event",
	pending.TimingHourBefore: "one hour before the event",
	pending.TimingDayOf:      "on the day of the event",
}

var channelPhrases = map[pending.Channel]string{
	pending.ChannelDirectMessage:  "a direct chat message",
	pending.ChannelEmailList:      "an email to the community mailing list",
	pending.ChannelCommunityBoard: "a community board post",
}

// Generator drafts and edits content through a provider.
type Generator struct {
	provider providers.Provider
	model    string
}

// New creates a Generator. model may be empty to use the provider default.
func New(provider providers.Provider, model string) *Generator {
	return &Generator{provider: provider, model: model}
}

// Reminder drafts a reminder for topic, phrased for the target channel
// and timing slot.
func (g *Generator) Reminder(ctx context.Context, topic, description string, category pending.EventCategory, channel pending.Channel, timing pending.Timing) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Draft a reminder for the %s event.\n", category)
	fmt.Fprintf(&prompt, "Topic: %s\n", topic)
	if description != "" {
		fmt.Fprintf(&prompt, "About: %s\n", description)
	}
	if phrase, ok := timingPhrases[timing]; ok {
		fmt.Fprintf(&prompt, "This goes out %s.\n", phrase)
	}
	if phrase, ok := channelPhrases[channel]; ok {
		fmt.Fprintf(&prompt, "Format it as %s.\n", phrase)
	}

	return g.complete(ctx, prompt.String())
}

// Recap drafts a recap of a held event from the given notes.
func (g *Generator) Recap(ctx context.Context, topic, notes string, category pending.EventCategory, channel pending.Channel) (string, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Draft a recap of the %s event that just happened.\n", category)
	fmt.Fprintf(&prompt, "Topic: %s\n", topic)
	if notes != "" {
		fmt.Fprintf(&prompt, "Notes:\n%s\n", notes)
	}
	if phrase, ok := channelPhrases[channel]; ok {
		fmt.Fprintf(&prompt, "Format it as %s.\n", phrase)
	}

	return g.complete(ctx, prompt.String())
}

// Edit regenerates a draft according to the user's feedback.
func (g *Generator) Edit(ctx context.Context, current, feedback string) (string, error) {
	prompt := fmt.Sprintf("Here is the current draft:\n\n%s\n\nRevise it according to this feedback, keeping everything that wasn't mentioned:\n%s", current, feedback)
	return g.complete(ctx, prompt)
}

// Subject derives a short email subject line from a draft topic.
func (g *Generator) Subject(topic string, category pending.EventCategory) string {
	label := "Weekly Call"
	if category == pending.CategoryMonthly {
		label = "Monthly Meetup"
	}
	return fmt.Sprintf("%s: %s", label, topic)
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.provider.Complete(ctx, providers.CompletionRequest{
		System:    draftSystemPrompt,
		Messages:  providers.UserMessage(prompt),
		Model:     g.model,
		MaxTokens: 1024,
	})
	if err != nil {
		return "", fmt.Errorf("generate draft: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("generate draft: empty response")
	}
	return text, nil
}
