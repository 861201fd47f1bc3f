package intent

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MatchMode selects how a rule's phrases are compared against the question.
type MatchMode string

const (
	// MatchPrefix matches when the question starts with a phrase.
	MatchPrefix MatchMode = "prefix"
	// MatchContains matches when the question contains a phrase anywhere.
	MatchContains MatchMode = "contains"
)

// Rule binds a list of phrases to the intent they signal.
type Rule struct {
	// Intent is returned when the rule matches. Reject is not allowed here;
	// rejection is what happens when nothing matches.
	Intent Intent `yaml:"intent"`
	// Match is the comparison mode. Defaults to contains when empty.
	Match MatchMode `yaml:"match"`
	// Phrases are lowercase substrings or prefixes.
	Phrases []string `yaml:"phrases"`
}

// matches reports whether q (already lowercased and trimmed) triggers r.
func (r Rule) matches(q string) bool {
	for _, p := range r.Phrases {
		if r.Match == MatchPrefix {
			if strings.HasPrefix(q, p) {
				return true
			}
			continue
		}
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

// Vocabulary is the ordered rule set that drives a [Classifier].
type Vocabulary struct {
	// Rules are evaluated top to bottom.
	Rules []Rule `yaml:"rules"`
	// FallbackMinTokens is the token count at which an unmatched question
	// ending in "?" defaults to Medical. Values below 1 disable the fallback.
	FallbackMinTokens int `yaml:"fallback_min_tokens"`
}

// Validate checks that every rule names a routable intent and a known match
// mode and carries at least one phrase.
func (v Vocabulary) Validate() error {
	if len(v.Rules) == 0 {
		return errors.New("intent: vocabulary has no rules")
	}
	for i, r := range v.Rules {
		if !r.Intent.Valid() || r.Intent == Reject {
			return fmt.Errorf("intent: rule %d: unsupported intent %q", i, r.Intent)
		}
		switch r.Match {
		case "", MatchPrefix, MatchContains:
		default:
			return fmt.Errorf("intent: rule %d: unknown match mode %q", i, r.Match)
		}
		if len(r.Phrases) == 0 {
			return fmt.Errorf("intent: rule %d (%s): no phrases", i, r.Intent)
		}
	}
	return nil
}

// LoadVocabulary reads a YAML vocabulary file. Top-level keys absent from the
// file keep their built-in values, so a file may override only the rules.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("intent: failed to read vocabulary %s: %w", path, err)
	}

	v := DefaultVocabulary()
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("intent: failed to parse vocabulary %s: %w", path, err)
	}
	if err := v.Validate(); err != nil {
		return Vocabulary{}, err
	}
	return v, nil
}

// DefaultVocabulary returns a fresh copy of the built-in routing rules.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		FallbackMinTokens: 3,
		Rules: []Rule{
			{Intent: Greeting, Match: MatchPrefix, Phrases: []string{
				"hi", "hello", "hey", "good morning", "good evening",
			}},
			{Intent: Thanks, Match: MatchContains, Phrases: []string{
				"thanks", "thank you", "appreciate",
			}},
			{Intent: Goodbye, Match: MatchContains, Phrases: []string{
				"bye", "goodbye", "see you", "take care",
			}},
			{Intent: Identity, Match: MatchContains, Phrases: []string{
				"who are you", "what is medchat", "are you a doctor",
				"what can you do", "your purpose",
			}},
			{Intent: Medical, Match: MatchContains, Phrases: medicalTerms()},
		},
	}
}

// medicalTerms is the curated trigger list for the medical rule.
func medicalTerms() []string {
	var terms []string
	// symptoms
	terms = append(terms,
		"pain", "symptom", "ache", "fever", "headache", "dizziness",
		"vomiting", "nausea", "fatigue", "tired", "weakness", "cough",
		"cold", "flu", "sore throat", "rash", "swelling", "bleeding",
		"numbness", "tingling", "cramp", "spasm", "itch", "burn",
	)
	// diseases and conditions
	terms = append(terms,
		"diabetes", "hypertension", "cancer", "asthma", "allergy",
		"arthritis", "migraine", "stroke", "heart attack", "covid",
		"pneumonia", "bronchitis", "anemia", "thyroid", "cholesterol",
		"obesity", "insomnia", "alzheimer", "parkinson", "epilepsy",
		"hepatitis", "kidney", "liver", "ulcer", "hernia", "tumor",
	)
	// mental health
	terms = append(terms,
		"anxiety", "depression", "stress", "mental", "psychiatric",
		"bipolar", "schizophrenia", "adhd", "autism", "panic",
	)
	// body parts
	terms = append(terms,
		"heart", "lung", "brain", "stomach", "intestine", "bone",
		"muscle", "nerve", "blood", "skin", "eye", "ear", "nose",
		"throat", "chest", "back", "neck", "arm", "leg", "joint",
	)
	// clinical vocabulary
	terms = append(terms,
		"treatment", "medicine", "drug", "pill", "tablet", "injection",
		"vaccine", "surgery", "therapy", "diagnosis", "prescription",
		"doctor", "hospital", "clinic", "emergency", "ambulance",
		"blood pressure", "blood sugar", "infection", "virus", "bacteria",
		"antibiotic", "painkiller", "dosage", "side effect", "overdose",
	)
	// inquiry patterns
	terms = append(terms,
		"what is", "what are", "how to treat", "how to cure", "cause of",
		"causes of", "prevention", "prevent", "remedy", "remedies",
		"home treatment", "first aid", "healthy", "health", "medical",
		"disease", "disorder", "condition", "syndrome", "chronic",
	)
	return terms
}
