package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_JSONDataset(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "medical_final_dataset.json")
	writeFile(t, path, `[
		{"text": "Hypertension is high blood pressure.", "metadata": {"title": "Hypertension"}},
		"Asthma narrows the airways.",
		{"text": "   "}
	]`)

	chunks, err := Load(t.Context(), path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2 (blank record dropped)", len(chunks))
	}
	if chunks[0].Metadata["title"] != "Hypertension" {
		t.Errorf("metadata = %v", chunks[0].Metadata)
	}
	if chunks[1].Text != "Asthma narrows the airways." || chunks[1].Metadata != nil {
		t.Errorf("bare string chunk = %+v", chunks[1])
	}
}

func TestLoad_JSONLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kb.jsonl")
	writeFile(t, path, "{\"text\":\"one\"}\n\n\"two\"\n")

	chunks, err := Load(t.Context(), path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chunks) != 2 || chunks[0].Text != "one" || chunks[1].Text != "two" {
		t.Errorf("chunks = %+v", chunks)
	}
}

func TestLoad_JSONLinesBadLine(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kb.jsonl")
	writeFile(t, path, "\"ok\"\n{broken\n")

	_, err := Load(t.Context(), path, nil)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("err = %v, want line number", err)
	}
}

func TestLoad_DirectoryOrderAndExclude(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "second file")
	writeFile(t, filepath.Join(dir, "a", "flu.md"), "# Influenza\nA viral infection.")
	writeFile(t, filepath.Join(dir, ".hidden", "x.txt"), "hidden")
	writeFile(t, filepath.Join(dir, "notes.pdf"), "ignored")
	writeFile(t, filepath.Join(dir, "chunks.json"), `["persisted"]`)

	chunks, err := Load(t.Context(), dir, &Config{Exclude: []string{filepath.Join(dir, "chunks.json")}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks: %+v", len(chunks), chunks)
	}
	first := chunks[0]
	if first.Metadata["source"] != "a/flu.md" || first.Metadata["title"] != "Influenza" || first.Metadata["category"] != "a" {
		t.Errorf("first chunk metadata = %v", first.Metadata)
	}
	if chunks[1].Text != "second file" {
		t.Errorf("second chunk = %+v", chunks[1])
	}
}

func TestLoad_SplitsText(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "long.txt")
	writeFile(t, path, strings.Repeat("word ", 100))

	chunks, err := Load(t.Context(), path, &Config{Chunker: Chunker{Size: 100, Overlap: 10}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(chunks) < 5 {
		t.Fatalf("got %d chunks, want the text split", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Metadata["chunk_index"] != i {
			t.Errorf("chunk %d index = %v", i, ch.Metadata["chunk_index"])
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	pdf := filepath.Join(dir, "paper.pdf")
	writeFile(t, pdf, "x")
	obj := filepath.Join(dir, "obj.json")
	writeFile(t, obj, `{"text": "not an array"}`)

	if _, err := Load(t.Context(), pdf, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("pdf err = %v, want ErrUnsupported", err)
	}
	if _, err := Load(t.Context(), obj, nil); err == nil {
		t.Error("expected error for a top-level object")
	}
	if _, err := Load(t.Context(), filepath.Join(dir, "missing"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing err = %v", err)
	}
}

func TestLoad_Cancelled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "text")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := Load(ctx, dir, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
