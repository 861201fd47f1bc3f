// Package intent routes a user question to the coarse purpose behind it so the
// pipeline can choose between a canned reply and retrieval-augmented synthesis.
//
// Classification is rule based and fully deterministic. The rules themselves
// live in a [Vocabulary], which is plain data: the built-in one comes from
// [DefaultVocabulary] and operators can replace it with a YAML file via
// [LoadVocabulary].
package intent

import (
	"fmt"
	"slices"
	"strings"
)

// Intent is the classified purpose of a question.
type Intent string

const (
	// Medical questions go through retrieval and LLM synthesis.
	Medical Intent = "medical"
	// Greeting is an opening salutation.
	Greeting Intent = "greeting"
	// Thanks is an expression of gratitude.
	Thanks Intent = "thanks"
	// Goodbye closes the conversation.
	Goodbye Intent = "goodbye"
	// Identity asks what the assistant is.
	Identity Intent = "identity"
	// Reject is anything outside the medical domain.
	Reject Intent = "reject"
)

// All lists every intent in routing-priority order.
var All = []Intent{Greeting, Thanks, Goodbye, Identity, Medical, Reject}

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	return slices.Contains(All, i)
}

// Classifier maps question text to an [Intent]. It is immutable after
// construction and safe for concurrent use.
type Classifier struct {
	// rules are evaluated in order; the first match wins.
	rules []Rule
	// fallbackMinTokens enables the "well-formed question" fallback when > 0.
	fallbackMinTokens int
}

// NewClassifier validates v and returns a Classifier over a normalised copy of
// it. Phrases are lowercased and trimmed so matching stays case-insensitive.
func NewClassifier(v Vocabulary) (*Classifier, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(v.Rules))
	for _, r := range v.Rules {
		phrases := make([]string, 0, len(r.Phrases))
		for _, p := range r.Phrases {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				phrases = append(phrases, p)
			}
		}
		match := r.Match
		if match == "" {
			match = MatchContains
		}
		rules = append(rules, Rule{Intent: r.Intent, Match: match, Phrases: phrases})
	}

	return &Classifier{rules: rules, fallbackMinTokens: v.FallbackMinTokens}, nil
}

// Classify returns the intent of question. The first matching rule wins. A
// question that matches no rule but ends in "?" with at least the configured
// number of tokens is treated as medical; everything else is rejected.
// Empty input classifies as [Reject].
func (c *Classifier) Classify(question string) Intent {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return Reject
	}

	for _, r := range c.rules {
		if r.matches(q) {
			return r.Intent
		}
	}

	if c.fallbackMinTokens > 0 && strings.HasSuffix(q, "?") && len(strings.Fields(q)) >= c.fallbackMinTokens {
		return Medical
	}
	return Reject
}

// defaultClassifier backs the package-level [Classify].
var defaultClassifier = mustClassifier(DefaultVocabulary())

// Classify classifies question with the built-in vocabulary.
func Classify(question string) Intent {
	return defaultClassifier.Classify(question)
}

// mustClassifier panics if v is invalid. Only used for the built-in vocabulary.
func mustClassifier(v Vocabulary) *Classifier {
	c, err := NewClassifier(v)
	if err != nil {
		panic(fmt.Sprintf("intent: built-in vocabulary is invalid: %v", err))
	}
	return c
}
