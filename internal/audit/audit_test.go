package audit

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("GROQ_API_KEY", "gsk-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("OPENAI_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("MODEL_PROVIDER", "groq"); got != "groq" {
		t.Errorf("expected 'groq', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.medchat/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.medchat/config.yaml" {
			t.Errorf("expected '~/.medchat/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-super-secret")
	t.Setenv("MEDCHAT_API_KEY", "")
	t.Setenv("RAG_TOP_K", "5")

	var buf bytes.Buffer
	LogCommandStart(slog.New(slog.NewJSONHandler(&buf, nil)), "serve", "")

	out := buf.String()
	if strings.Contains(out, "gsk-super-secret") {
		t.Fatalf("secret leaked into audit log: %s", out)
	}
	for _, want := range []string{`"GROQ_API_KEY":"set"`, `"MEDCHAT_API_KEY":"unset"`, `"RAG_TOP_K":"5"`, `"command":"serve"`, `"config_file":"none"`} {
		if !strings.Contains(out, want) {
			t.Errorf("audit log missing %s: %s", want, out)
		}
	}
}

func TestLogCommandStart_GroupsBySection(t *testing.T) {
	t.Setenv("EMBEDDING_MODEL", "nomic-embed-text")

	var buf bytes.Buffer
	LogCommandStart(slog.New(slog.NewJSONHandler(&buf, nil)), "rebuild", "")

	if !strings.Contains(buf.String(), `"embedding":{"EMBEDDING_PROVIDER":`) {
		t.Errorf("embedding group missing: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"EMBEDDING_MODEL":"nomic-embed-text"`) {
		t.Errorf("embedding model missing: %s", buf.String())
	}
}

func TestLogRebuild(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		r    Rebuild
		want []string
	}{
		{
			name: "persisted chunks",
			r:    Rebuild{Origin: "http", Backend: "flat", Chunks: 12, Dimension: 768},
			want: []string{`"origin":"http"`, `"source":"persisted"`, `"chunks":12`, `"dimension":768`},
		},
		{
			name: "dataset",
			r:    Rebuild{Origin: "cli", Source: "/srv/data/medical.json", Backend: "qdrant", Chunks: 3, Dimension: 4},
			want: []string{`"source":"/srv/data/medical.json"`, `"backend":"qdrant"`},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			LogRebuild(slog.New(slog.NewJSONHandler(&buf, nil)), tc.r)
			for _, w := range tc.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("record missing %s: %s", w, buf.String())
				}
			}
		})
	}
}
