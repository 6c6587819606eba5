package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/nextlevelbuilder/herald/internal/providers"
)

type fakeProvider struct {
	content string
	err     error
	calls   int
}

func (f *fakeProvider) Complete(_ context.Context, _ providers.CompletionRequest) (*providers.Completion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &providers.Completion{Content: f.content, FinishReason: "stop"}, nil
}

func (f *fakeProvider) DefaultModel() string { return "fake-model" }
func (f *fakeProvider) Name() string         { return "fake" }

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Result
		wantErr bool
	}{
		{
			"plain json",
			`{"is_topic": true, "topic": "Email Funnels", "description": "Breaking down funnels."}`,
			Result{IsTopic: true, Topic: "Email Funnels", Description: "Breaking down funnels."},
			false,
		},
		{
			"code fenced",
			"```json\n{\"is_topic\": false, \"topic\": \"\", \"description\": \"\"}\n```",
			Result{},
			false,
		},
		{
			"surrounding prose",
			`Sure! Here is my judgement: {"is_topic": true, "topic": "Rust", "description": "Intro."} Hope that helps.`,
			Result{IsTopic: true, Topic: "Rust", Description: "Intro."},
			false,
		},
		{"not json", "I think this is a topic announcement.", Result{}, true},
		{"topic claimed but empty", `{"is_topic": true, "topic": "  "}`, Result{}, true},
		{"whitespace trimmed", `{"is_topic": true, "topic": " Rust ", "description": " x "}`, Result{IsTopic: true, Topic: "Rust", Description: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResult(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseResult() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseResult() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassify_FailsClosed(t *testing.T) {
	msg := "This week we're covering Kubernetes operators in production"

	t.Run("provider error", func(t *testing.T) {
		p := &fakeProvider{err: errors.New("boom")}
		c := New(p, "")
		res := c.Classify(context.Background(), msg, nil, false)
		if res.IsTopic {
			t.Error("provider failure must not yield a topic")
		}
	})

	t.Run("unparsable output", func(t *testing.T) {
		p := &fakeProvider{content: "definitely a topic, trust me"}
		c := New(p, "")
		res := c.Classify(context.Background(), msg, nil, false)
		if res.IsTopic {
			t.Error("unparsable judgement must not yield a topic")
		}
	})
}

func TestClassify_PrefilterSkipsProvider(t *testing.T) {
	p := &fakeProvider{content: `{"is_topic": true, "topic": "X"}`}
	c := New(p, "")

	res := c.Classify(context.Background(), "ok thanks", nil, false)
	if res.IsTopic {
		t.Error("pre-filtered message must not yield a topic")
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times for pre-filtered message, want 0", p.calls)
	}
}

func TestClassify_AcceptsJudgement(t *testing.T) {
	p := &fakeProvider{content: `{"is_topic": true, "topic": "Kubernetes Operators", "description": "Operator patterns."}`}
	c := New(p, "")

	res := c.Classify(context.Background(), "This week we're covering Kubernetes operators", []string{"user-1: what's the topic?"}, true)
	if !res.IsTopic || res.Topic != "Kubernetes Operators" {
		t.Errorf("Classify() = %+v, want accepted topic", res)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}
}
