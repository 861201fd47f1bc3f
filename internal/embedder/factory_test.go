package embedder

import (
	"io"
	"log/slog"
	"testing"
)

// clearEmbeddingEnv blanks every variable the factory reads.
func clearEmbeddingEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY", "EMBEDDING_ENDPOINT",
		"EMBEDDING_DIMENSIONS", "EMBEDDING_TIMEOUT_SECONDS", "MODEL_PROVIDER",
		"OPENAI_API_KEY", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "OLLAMA_HOST",
	} {
		t.Setenv(k, "")
	}
}

func TestBackend_Resolution(t *testing.T) {
	tests := []struct {
		name          string
		embedding     string
		modelProvider string
		want          string
	}{
		{"default", "", "", "ollama"},
		{"explicit wins", "openai", "ollama", "openai"},
		{"inherits openai", "", "openai", "openai"},
		{"inherits azure", "", "azure", "azure"},
		{"groq falls back", "", "groq", "ollama"},
		{"gemini falls back", "", "gemini", "ollama"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEmbeddingEnv(t)
			t.Setenv("EMBEDDING_PROVIDER", tc.embedding)
			t.Setenv("MODEL_PROVIDER", tc.modelProvider)
			if got := Backend(); got != tc.want {
				t.Errorf("Backend() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"openai without key", map[string]string{"EMBEDDING_PROVIDER": "openai"}},
		{"azure without endpoint", map[string]string{"EMBEDDING_PROVIDER": "azure", "AZURE_OPENAI_API_KEY": "k"}},
		{"compatible without endpoint", map[string]string{"EMBEDDING_PROVIDER": "compatible", "EMBEDDING_MODEL": "m"}},
		{"compatible without model", map[string]string{"EMBEDDING_PROVIDER": "compatible", "EMBEDDING_ENDPOINT": "http://x"}},
		{"unknown backend", map[string]string{"EMBEDDING_PROVIDER": "bogus"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEmbeddingEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := NewFromEnv(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewFromEnv_Backends(t *testing.T) {
	clearEmbeddingEnv(t)
	e, err := NewFromEnv()
	if err != nil {
		t.Fatalf("ollama default: %v", err)
	}
	o, ok := e.(*OllamaEmbedder)
	if !ok {
		t.Fatalf("got %T, want *OllamaEmbedder", e)
	}
	if o.model != defaultOllamaModel || o.host != "http://localhost:11434" {
		t.Errorf("ollama defaults: host=%q model=%q", o.host, o.model)
	}

	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	e, err = NewFromEnv()
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if oe, ok := e.(*OpenAIEmbedder); !ok || oe.model != defaultOpenAIModel {
		t.Errorf("got %#v, want OpenAIEmbedder with default model", e)
	}
}

func TestPreflight(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	clearEmbeddingEnv(t)
	t.Setenv("MODEL_PROVIDER", "groq")
	t.Setenv("EMBEDDING_MODEL", "llama3")
	if err := Preflight(log); err != nil {
		t.Errorf("suspicious model must only warn, got %v", err)
	}

	t.Setenv("EMBEDDING_PROVIDER", "openai")
	if err := Preflight(log); err == nil {
		t.Error("expected configuration error for openai without key")
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"all-minilm":             false,
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
		"gpt-4o":                 true,
		"llama3.2":               true,
		"mxbai-embed-large":      false,
	}
	for model, want := range tests {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}
