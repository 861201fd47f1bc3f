package embedder

import (
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Preflight checks the embedding configuration before the server starts so
// operators see a clear message instead of a silent retrieval outage on the
// first request. Configuration errors are returned; suspicious but usable
// settings are logged.
//
// Retrieval is optional, so callers typically log the returned error and
// continue with retrieval degraded rather than refusing to start.
func Preflight(log *slog.Logger) error {
	backend := Backend()
	if getEnv("EMBEDDING_PROVIDER") == "" && backend != getEnv("MODEL_PROVIDER") {
		log.Info("embedder: chat provider has no embeddings API, using ollama for retrieval",
			slog.String("model_provider", getEnv("MODEL_PROVIDER")),
			slog.String("hint", "set EMBEDDING_PROVIDER to choose explicitly"),
		)
	}

	if _, err := NewFromEnv(); err != nil {
		return err
	}

	if model := getEnv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. all-minilm, nomic-embed-text, text-embedding-3-small"),
		)
	}
	return nil
}
