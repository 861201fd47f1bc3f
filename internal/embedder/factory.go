package embedder

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/medchat-go/internal/rag"
)

// Default embedding models per backend.
const (
	// defaultOllamaModel is all-MiniLM-L6-v2 as published by Ollama (384 dims).
	defaultOllamaModel = "all-minilm"
	defaultOpenAIModel = "text-embedding-3-small"
)

// Backend resolves the effective embedding backend.
//
// EMBEDDING_PROVIDER wins. Otherwise MODEL_PROVIDER is inherited when it is a
// backend that also serves embeddings (ollama, openai, azure); chat-only
// providers such as groq, gemini and ark fall back to ollama.
func Backend() string {
	if b := getEnv("EMBEDDING_PROVIDER"); b != "" {
		return b
	}
	switch b := getEnv("MODEL_PROVIDER"); b {
	case "ollama", "openai", "azure":
		return b
	default:
		return "ollama"
	}
}

// NewFromEnv constructs a rag.Embedder from environment variables.
//
// Resolution order:
//
//  1. [Backend] picks ollama, openai, azure or compatible
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY overrides the inherited API key
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS requests a specific vector length where supported
//  7. EMBEDDING_TIMEOUT_SECONDS bounds each Ollama request (default 60)
func NewFromEnv() (rag.Embedder, error) {
	switch backend := Backend(); backend {
	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:    host,
			Model:   getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
			Timeout: time.Duration(getEnvInt("EMBEDDING_TIMEOUT_SECONDS", 60)) * time.Second,
		}), nil

	case "openai":
		apiKey := firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnv("EMBEDDING_ENDPOINT"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		}), nil

	case "azure":
		apiKey := firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("AZURE_OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), getEnv("AZURE_OPENAI_ENDPOINT"))
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint,
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-10-21"),
		}), nil

	case "compatible":
		endpoint := getEnv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: compatible requires EMBEDDING_ENDPOINT")
		}
		model := getEnv("EMBEDDING_MODEL")
		if model == "" {
			return nil, fmt.Errorf("embedder: compatible requires EMBEDDING_MODEL")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint,
			APIKey:     getEnv("EMBEDDING_API_KEY"),
			Model:      model,
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: ollama, openai, azure, compatible", backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// firstNonEmpty returns the first non-empty argument.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
