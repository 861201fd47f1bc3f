// Package audit emits structured records of operator actions: CLI command
// invocations and knowledge-base rebuilds. Records carry the effective
// environment so a log line explains which provider, index and settings were
// in play.
//
// Secrets are logged as presence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// entry is one environment variable recorded in a command record.
type entry struct {
	key    string
	secret bool
}

// section groups related variables under a single slog group.
type section struct {
	name string
	keys []entry
}

// sections is the ordered set of variables included in every command record.
var sections = []section{
	{"model", []entry{
		{"MODEL_PROVIDER", false},
		{"GROQ_API_KEY", true},
		{"GROQ_MODEL", false},
		{"OLLAMA_HOST", false},
		{"OLLAMA_MODEL", false},
		{"OPENAI_API_KEY", true},
		{"OPENAI_MODEL", false},
		{"AZURE_OPENAI_API_KEY", true},
		{"AZURE_OPENAI_ENDPOINT", false},
		{"AZURE_OPENAI_DEPLOYMENT", false},
		{"GOOGLE_API_KEY", true},
		{"GEMINI_MODEL", false},
		{"ARK_API_KEY", true},
		{"ARK_MODEL", false},
	}},
	{"embedding", []entry{
		{"EMBEDDING_PROVIDER", false},
		{"EMBEDDING_MODEL", false},
		{"EMBEDDING_API_KEY", true},
	}},
	{"rag", []entry{
		{"USE_RAG", false},
		{"RAG_TOP_K", false},
		{"RAG_MAX_CONTEXT", false},
		{"RAG_SCORE_THRESHOLD", false},
		{"RAG_DATA_DIR", false},
		{"RAG_BACKEND", false},
		{"INTENT_VOCABULARY", false},
		{"QDRANT_HOST", false},
		{"QDRANT_PORT", false},
		{"QDRANT_COLLECTION", false},
		{"QDRANT_API_KEY", true},
	}},
	{"service", []entry{
		{"MEDCHAT_API_KEY", true},
		{"MEDCHAT_HISTORY_DB", false},
		{"LOG_LEVEL", false},
		{"LOG_FORMAT", false},
		{"LOG_FILE", false},
		{"LANGFUSE_PUBLIC_KEY", true},
		{"LANGFUSE_SECRET_KEY", true},
	}},
}

// secretKeys indexes the secret entries of sections for SanitiseKey.
var secretKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, s := range sections {
		for _, e := range s.keys {
			if e.secret {
				m[e.key] = true
			}
		}
	}
	return m
}()

// LogCommandStart records the start of a CLI command with its config file
// and the sanitised environment, one slog group per section.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, s := range sections {
		group := make([]any, 0, len(s.keys))
		for _, e := range s.keys {
			group = append(group, slog.String(e.key, SanitiseKey(e.key, os.Getenv(e.key))))
		}
		attrs = append(attrs, slog.Group(s.name, group...))
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// Rebuild describes a published knowledge-base build.
type Rebuild struct {
	// Origin names the caller: "cli", "http" or "watch".
	Origin string
	// Source is the dataset path, or empty when persisted chunks were reused.
	Source    string
	Backend   string
	Chunks    int
	Dimension int
}

// LogRebuild records a knowledge-base rebuild.
func LogRebuild(log *slog.Logger, r Rebuild) {
	source := r.Source
	if source == "" {
		source = "persisted"
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: index rebuilt",
		slog.String("origin", r.Origin),
		slog.String("source", sanitiseConfigPath(source)),
		slog.String("backend", r.Backend),
		slog.Int("chunks", r.Chunks),
		slog.Int("dimension", r.Dimension),
	)
}

// SanitiseKey returns "set" or "unset" for known secret keys, and the value
// (or "unset") for everything else.
func SanitiseKey(key, value string) string {
	if secretKeys[key] {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// sanitiseConfigPath returns "none" for an empty path and abbreviates the
// home directory to "~".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
