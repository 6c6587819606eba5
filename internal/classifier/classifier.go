// Package classifier decides whether a chat message announces a
// recurring-event topic. A local heuristic pre-filter gates a delegated
// semantic classification call; the semantic call failing in any way
// fails closed (not a topic) and never propagates to the caller.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/herald/internal/providers"
)

// Result is the classifier's judgement on one message.
type Result struct {
	IsTopic     bool   `json:"is_topic"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
}

const systemPrompt = `You judge whether a chat message announces the topic of a recurring community event (a weekly call or a monthly meetup).

A topic announcement names the subject that will be presented or discussed. Questions about the topic, acknowledgements, scheduling chatter, and promises to share the topic later are NOT announcements.

Respond with exactly one JSON object and nothing else:
{"is_topic": true|false, "topic": "<short topic title>", "description": "<one-sentence description>"}

When is_topic is false, topic and description must be empty strings.`

// Classifier runs the pre-filter and the delegated semantic call.
type Classifier struct {
	provider providers.Provider
	model    string
}

// New creates a Classifier over the given provider. model may be empty
// to use the provider default.
func New(provider providers.Provider, model string) *Classifier {
	return &Classifier{provider: provider, model: model}
}

// Classify judges text. contextWindow is the recent-message buffer,
// passed as free text; expecting relaxes the pre-filter. This method
// never returns an error: any failure in the semantic call is logged
// and treated as "not a topic".
func (c *Classifier) Classify(ctx context.Context, text string, contextWindow []string, expecting bool) Result {
	if !Prefilter(text, expecting) {
		return Result{}
	}

	var prompt strings.Builder
	if len(contextWindow) > 0 {
		prompt.WriteString("Recent channel messages:\n")
		for _, line := range contextWindow {
			prompt.WriteString(line)
			prompt.WriteByte('\n')
		}
		prompt.WriteByte('\n')
	}
	if expecting {
		prompt.WriteString("Someone recently asked what the topic is; this message may be the answer.\n\n")
	}
	fmt.Fprintf(&prompt, "Message to judge:\n%s", text)

	resp, err := c.provider.Complete(ctx, providers.CompletionRequest{
		System:    systemPrompt,
		Messages:  providers.UserMessage(prompt.String()),
		Model:     c.model,
		MaxTokens: 256,
	})
	if err != nil {
		slog.Warn("classifier: semantic call failed, treating as non-topic", "error", err)
		return Result{}
	}

	res, err := parseResult(resp.Content)
	if err != nil {
		slog.Warn("classifier: unparsable judgement, treating as non-topic",
			"error", err, "raw", truncate(resp.Content, 200))
		return Result{}
	}
	return res
}

// parseResult extracts the JSON judgement, tolerating code fences and
// surrounding prose.
func parseResult(raw string) (Result, error) {
	s := strings.TrimSpace(raw)
	if start := strings.IndexByte(s, '{'); start >= 0 {
		if end := strings.LastIndexByte(s, '}'); end > start {
			s = s[start : end+1]
		}
	}

	var res Result
	if err := json.Unmarshal([]byte(s), &res); err != nil {
		return Result{}, fmt.Errorf("decode judgement: %w", err)
	}
	if res.IsTopic && strings.TrimSpace(res.Topic) == "" {
		return Result{}, fmt.Errorf("judgement claims topic but names none")
	}
	res.Topic = strings.TrimSpace(res.Topic)
	res.Description = strings.TrimSpace(res.Description)
	return res, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
