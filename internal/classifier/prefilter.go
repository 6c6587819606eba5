package classifier

import (
	"regexp"
	"strings"
)

// Length floors for the pre-filter. When the tracker says we are
// actively waiting for a topic answer, the floor drops so short but
// valid topics ("Email Funnel Breakdown") still reach the semantic
// classifier.
const (
	minLengthDefault   = 20
	minLengthExpecting = 10
)

var (
	ackPattern = regexp.MustCompile(`(?i)^\s*(ok(ay)?|k+|thanks?( you)?|thx|ty|got it|sounds good|cool|nice|great|awesome|sure|yep|yeah|yes|no(pe)?|lol|haha+|\+1|👍|🙏|🎉)[.!?]*\s*$`)

	greetingPattern = regexp.MustCompile(`(?i)^\s*(good (morning|afternoon|evening)|hi|hey|hello|morning|gm)\b[^a-z]*$`)

	questionStart = regexp.MustCompile(`(?i)^\s*(what|when|where|who|why|how|is|are|can|could|should|will|would|do|does|did)\b`)

	promisePattern = regexp.MustCompile(`(?i)\b(i'?ll|i will|gonna|going to)\b.*\b(share|send|post|announce)\b.*\b(later|soon|tomorrow|tonight|after)\b`)
)

// Prefilter rejects obvious non-announcements locally so the expensive
// semantic classifier is only invoked for plausible candidates.
// Returns true when text should go on to semantic classification.
//
// When expecting is true the filter is relaxed: the length floor drops
// and the question/promise filters are skipped — the system is actively
// waiting for an answer, so it defers to the semantic classifier.
func Prefilter(text string, expecting bool) bool {
	trimmed := strings.TrimSpace(text)

	minLen := minLengthDefault
	if expecting {
		minLen = minLengthExpecting
	}
	if len(trimmed) < minLen {
		return false
	}

	if ackPattern.MatchString(trimmed) || greetingPattern.MatchString(trimmed) {
		return false
	}

	if !expecting {
		if strings.HasSuffix(trimmed, "?") || questionStart.MatchString(trimmed) {
			return false
		}
		if promisePattern.MatchString(trimmed) {
			return false
		}
	}

	return true
}
