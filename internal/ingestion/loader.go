// Package ingestion turns source documents on disk into the ordered chunk
// collection the knowledge base is rebuilt from.
//
// Three layouts are accepted:
//
//   - a JSON array whose items are {"text": ..., "metadata": {...}} objects
//     or bare strings (the curated dataset format)
//   - JSON Lines with one such item per line
//   - plain text and markdown files, which are split into overlapping
//     windows by a [Chunker]
//
// A directory is walked in lexical order so rebuilds from the same tree
// always produce the same chunk positions.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/54b3r/medchat-go/internal/rag"
)

// ErrUnsupported is returned when a file path names a format the loader does
// not read.
var ErrUnsupported = errors.New("ingestion: unsupported file type")

// maxLineBytes bounds one JSON Lines record.
const maxLineBytes = 4 << 20

// Config controls how sources are read.
type Config struct {
	// Chunker splits text and markdown files. A zero Size uses
	// DefaultChunkSize.
	Chunker Chunker

	// Exclude lists files that are never read, typically the knowledge
	// base's own persisted files when the source directory is also the data
	// directory.
	Exclude []string

	// Logger receives one line per file read. Defaults to slog.Default().
	Logger *slog.Logger
}

// Load reads path, a single file or a directory tree, and returns its chunks
// in a stable order. Records with empty text are dropped.
func Load(ctx context.Context, path string, cfg *Config) ([]rag.Chunk, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: stat %s: %w", path, err)
	}

	root := path
	files := []string{path}
	if info.IsDir() {
		files, err = sourceFiles(path, cfg.Exclude)
		if err != nil {
			return nil, err
		}
	} else {
		root = filepath.Dir(path)
		if !Supported(path) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
		}
	}

	var chunks []rag.Chunk
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingestion: load cancelled: %w", err)
		}
		got, err := loadFile(root, f, cfg.Chunker)
		if err != nil {
			return nil, err
		}
		log.Debug("ingestion: file loaded", "file", f, "chunks", len(got))
		chunks = append(chunks, got...)
	}

	log.Info("ingestion: sources loaded", "path", path, "files", len(files), "chunks", len(chunks))
	return chunks, nil
}

// Supported reports whether the loader reads files with path's extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson", ".txt", ".md", ".markdown":
		return true
	}
	return false
}

// sourceFiles walks dir and returns the supported, non-hidden files in
// lexical order, skipping anything listed in exclude.
func sourceFiles(dir string, exclude []string) ([]string, error) {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		if abs, err := filepath.Abs(e); err == nil {
			skip[abs] = true
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !Supported(p) {
			return nil
		}
		if abs, err := filepath.Abs(p); err == nil && skip[abs] {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: walk %s: %w", dir, err)
	}
	slices.Sort(files)
	return files, nil
}

// loadFile dispatches on the file extension.
func loadFile(root, path string, c Chunker) ([]rag.Chunk, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", path, err)
	}

	var chunks []rag.Chunk
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(raw, &chunks); err != nil {
			return nil, fmt.Errorf("ingestion: %s: expected an array of chunks: %w", path, err)
		}
	case ".jsonl", ".ndjson":
		chunks, err = decodeLines(raw)
		if err != nil {
			return nil, fmt.Errorf("ingestion: %s: %w", path, err)
		}
	default:
		text := string(raw)
		for i, piece := range c.Split(text) {
			chunks = append(chunks, rag.Chunk{Text: piece, Metadata: fileMetadata(root, path, text, i)})
		}
		return chunks, nil
	}

	return slices.DeleteFunc(chunks, func(ch rag.Chunk) bool {
		return strings.TrimSpace(ch.Text) == ""
	}), nil
}

// decodeLines parses JSON Lines. Blank lines are ignored.
func decodeLines(raw []byte) ([]rag.Chunk, error) {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var chunks []rag.Chunk
	for line := 1; sc.Scan(); line++ {
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var ch rag.Chunk
		if err := json.Unmarshal(b, &ch); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		chunks = append(chunks, ch)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}
