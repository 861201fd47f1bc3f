package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEDCHAT_CONFIG", "")
	t.Chdir(t.TempDir())

	path, err := Load("", slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ExplicitMissing(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "config.yaml"), slog.Default())
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load() err = %v, want fs.ErrNotExist", err)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"empty document", "", false},
		{"rag section", "rag:\n  top_k: 5\n  backend: qdrant\n", false},
		{"misspelt key", "rag:\n  topk: 5\n", true},
		{"unknown section", "retrieval:\n  top_k: 5\n", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Parse([]byte(tc.doc))
			if (err != nil) != tc.wantErr {
				t.Fatalf("Parse() err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && cfg == nil {
				t.Error("Parse() returned nil config")
			}
		})
	}
}

func TestApplyEnv_ReturnsAppliedKeys(t *testing.T) {
	t.Setenv("RAG_TOP_K", "")
	t.Setenv("RAG_BACKEND", "flat")

	cfg := &Config{RAG: RAGConfig{TopK: 7, Backend: "qdrant"}}
	applied := cfg.ApplyEnv()

	if len(applied) != 1 || applied[0] != "RAG_TOP_K" {
		t.Errorf("applied = %v, want [RAG_TOP_K]", applied)
	}
	if os.Getenv("RAG_TOP_K") != "7" || os.Getenv("RAG_BACKEND") != "flat" {
		t.Errorf("env = top_k %q backend %q", os.Getenv("RAG_TOP_K"), os.Getenv("RAG_BACKEND"))
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: groq
  max_tokens: 400
  temperature: 0.3
  groq:
    model: llama-3.1-8b-instant
embedding:
  provider: ollama
  model: nomic-embed-text
rag:
  enabled: false
  top_k: 5
  max_context: 2000
  score_threshold: 0.25
  data_dir: /var/lib/medchat
  backend: qdrant
qdrant:
  host: qdrant.internal
  port: 6334
  collection: medchat-kb
logging:
  level: debug
  format: text
  file: /tmp/medchat.log
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE", "GROQ_MODEL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"USE_RAG", "RAG_TOP_K", "RAG_MAX_CONTEXT", "RAG_SCORE_THRESHOLD", "RAG_DATA_DIR", "RAG_BACKEND",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_FILE",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":      "groq",
		"MODEL_MAX_TOKENS":    "400",
		"MODEL_TEMPERATURE":   "0.3",
		"GROQ_MODEL":          "llama-3.1-8b-instant",
		"EMBEDDING_PROVIDER":  "ollama",
		"EMBEDDING_MODEL":     "nomic-embed-text",
		"USE_RAG":             "false",
		"RAG_TOP_K":           "5",
		"RAG_MAX_CONTEXT":     "2000",
		"RAG_SCORE_THRESHOLD": "0.25",
		"RAG_DATA_DIR":        "/var/lib/medchat",
		"RAG_BACKEND":         "qdrant",
		"QDRANT_HOST":         "qdrant.internal",
		"QDRANT_PORT":         "6334",
		"QDRANT_COLLECTION":   "medchat-kb",
		"LOG_LEVEL":           "debug",
		"LOG_FORMAT":          "text",
		"LOG_FILE":            "/tmp/medchat.log",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading; it should NOT be overwritten.
	t.Setenv("MODEL_PROVIDER", "azure")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveConfigPath_EnvVar(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "medchat.yaml")
	if err := os.WriteFile(cfgPath, []byte("model:\n  provider: ollama\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MEDCHAT_CONFIG", cfgPath)

	if got := resolveConfigPath(""); got != cfgPath {
		t.Errorf("resolveConfigPath() = %q, want %q", got, cfgPath)
	}
	if got := resolveConfigPath(filepath.Join(dir, "missing.yaml")); got != "" {
		t.Errorf("explicit missing path should not fall back, got %q", got)
	}
}

func TestBoolPtrStr(t *testing.T) {
	t.Parallel()
	yes, no := true, false
	if boolPtrStr(nil) != "" || boolPtrStr(&yes) != "true" || boolPtrStr(&no) != "false" {
		t.Error("boolPtrStr mismatch")
	}
}
