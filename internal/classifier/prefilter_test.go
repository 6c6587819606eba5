package classifier

import "testing"

func TestPrefilter(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		expecting bool
		want      bool
	}{
		{"short message", "short one", false, false},
		{"acknowledgement", "thanks!", false, false},
		{"acknowledgement long enough", "sounds good", false, false},
		{"greeting", "good morning !!!!!!!!!!!", false, false},
		{"question", "what's the topic for this week's call?", false, false},
		{"question mark suffix", "anyone know if we meet tomorrow?", false, false},
		{"promise to share later", "I'll share the topic later tonight", false, false},
		{"announcement passes", "This week we're covering Kubernetes operators", false, true},
		{"emoji ack", "👍", false, false},
		{"plus one", "+1", false, false},

		// Relaxed mode: short answers and question-shaped text defer to
		// the semantic classifier.
		{"short topic while expecting", "Email Funnel Breakdown", true, true},
		{"below relaxed floor", "Rust", true, false},
		{"question while expecting", "how about Kubernetes operators?", true, true},
		{"ack still rejected while expecting", "sounds good", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Prefilter(tt.text, tt.expecting); got != tt.want {
				t.Errorf("Prefilter(%q, expecting=%v) = %v, want %v", tt.text, tt.expecting, got, tt.want)
			}
		})
	}
}
