package pipeline

import (
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/medchat-go/internal/rag"
)

// Retrieval defaults.
const (
	DefaultTopK           = 3
	DefaultScoreThreshold = 0.3
)

// Settings are the retrieval tunables.
type Settings struct {
	// UseRAG enables knowledge-base retrieval for medical questions.
	UseRAG bool `json:"use_rag"`
	// TopK is the number of chunks requested per question.
	TopK int `json:"top_k"`
	// MaxContext bounds the assembled reference context, in characters.
	MaxContext int `json:"max_context"`
	// ScoreThreshold is the minimum similarity kept (inclusive).
	ScoreThreshold float32 `json:"score_threshold"`
}

// SettingsFromEnv reads USE_RAG, RAG_TOP_K, RAG_MAX_CONTEXT and
// RAG_SCORE_THRESHOLD. Unset or unparseable values fall back to defaults;
// retrieval is on unless USE_RAG is set to something other than "true".
func SettingsFromEnv() Settings {
	return Settings{
		UseRAG:         getEnvBool("USE_RAG", true),
		TopK:           getEnvInt("RAG_TOP_K", DefaultTopK),
		MaxContext:     getEnvInt("RAG_MAX_CONTEXT", rag.DefaultMaxContext),
		ScoreThreshold: getEnvFloat32("RAG_SCORE_THRESHOLD", DefaultScoreThreshold),
	}
}

// withDefaults fills zero numeric fields. A zero ScoreThreshold is kept,
// it means "keep everything".
func (s Settings) withDefaults() Settings {
	if s.TopK <= 0 {
		s.TopK = DefaultTopK
	}
	if s.MaxContext <= 0 {
		s.MaxContext = rag.DefaultMaxContext
	}
	return s
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
