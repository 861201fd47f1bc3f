// Package budget estimates prompt sizes and trims conversation history so a
// chat request fits the model's input window. Backends use different
// tokenizers, so estimation is a character heuristic: 1 token ≈ 4 characters,
// counted in runes so accented and non-Latin medical terms are not
// over-counted by their UTF-8 width.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost most chat APIs charge.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// 8k-context models with room left for a 300-token answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. Any non-empty string costs at
// least one token.
func Estimate(s string) int {
	runes := utf8.RuneCountInString(s)
	n := runes / charsPerToken
	if n == 0 && runes > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token count of msgs, role and
// content included.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Fits reports whether msgs fit within maxTokens.
func Fits(msgs []*schema.Message, maxTokens int) bool {
	return EstimateMessages(msgs) <= maxTokens
}

// TrimHistory drops the oldest history turns until fixed + history fits within
// maxTokens. fixed holds the messages that are always sent (system prompt with
// reference context, current question) and is never trimmed; if fixed alone
// exceeds the budget the returned history is empty.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)
	// History is at most a handful of turns; a linear scan is enough.
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
	}
	return history
}
