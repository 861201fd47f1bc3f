package rag

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Paths are the fixed locations of the persisted knowledge base.
type Paths struct {
	// Chunks is the ordered chunk collection (JSON array).
	Chunks string
	// Embeddings is the embeddings matrix, one row per chunk.
	Embeddings string
	// Manifest describes the built index and ties the other two files
	// together. It is written last and acts as the commit marker.
	Manifest string
}

// PathsIn returns the default file layout under dir.
func PathsIn(dir string) Paths {
	return Paths{
		Chunks:     filepath.Join(dir, "chunks.json"),
		Embeddings: filepath.Join(dir, "embeddings.bin"),
		Manifest:   filepath.Join(dir, "index.json"),
	}
}

// Manifest records how the persisted index was built.
type Manifest struct {
	// Backend is the [Backend.Name] that built the index.
	Backend string `json:"backend"`
	// Ref locates the index inside the backend (e.g. a Qdrant collection).
	Ref string `json:"ref,omitempty"`
	// PreviousRef is the index this one replaced. It is kept alive for one
	// generation so in-flight searches against it can finish.
	PreviousRef string `json:"previous_ref,omitempty"`
	// Dimension is the embedding length.
	Dimension int `json:"dimension"`
	// Count is the number of chunks and vectors.
	Count int `json:"count"`
	// ChunksSHA256 is the digest of the chunks file written alongside.
	ChunksSHA256 string `json:"chunks_sha256"`
	// EmbeddingsCRC32 is the [Matrix.Checksum] of the embeddings file
	// written alongside.
	EmbeddingsCRC32 uint32 `json:"embeddings_crc32"`
	// BuiltAt is when the rebuild completed.
	BuiltAt time.Time `json:"built_at"`
}

// UnmarshalJSON accepts either {"text": ..., "metadata": ...} or a bare
// string, which becomes a chunk without metadata.
func (c *Chunk) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Chunk{Text: s}
		return nil
	}
	type plain Chunk
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = Chunk(p)
	return nil
}

// ReadChunks loads an ordered chunk collection from path.
func ReadChunks(path string) ([]Chunk, error) {
	chunks, _, err := readChunks(path)
	return chunks, err
}

// readChunks loads chunks and returns the hex SHA-256 of the raw file.
func readChunks(path string) ([]Chunk, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("rag: read chunks %s: %w", path, err)
	}
	var chunks []Chunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return chunks, digest(raw), nil
}

// WriteChunks persists chunks to path atomically and returns the digest of
// the bytes written.
func WriteChunks(path string, chunks []Chunk) (string, error) {
	raw, err := encodeChunks(chunks)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, writeBytes(raw)); err != nil {
		return "", err
	}
	return digest(raw), nil
}

// encodeChunks renders the on-disk form of chunks.
func encodeChunks(chunks []Chunk) ([]byte, error) {
	raw, err := json.Marshal(chunks)
	if err != nil {
		return nil, fmt.Errorf("rag: encode chunks: %w", err)
	}
	return raw, nil
}

// writeBytes adapts a byte slice to the writer callback of writeFileAtomic.
func writeBytes(b []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	}
}

// readManifest loads the manifest at path.
func readManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rag: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return &m, nil
}

// writeManifest persists m to path atomically.
func writeManifest(path string, m *Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("rag: encode manifest: %w", err)
	}
	return writeFileAtomic(path, writeBytes(raw))
}

// writeFileAtomic writes to a temp file in the target directory, syncs it and
// renames it over path so readers never observe a partial file.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := stageFile(path, write)
	if err != nil {
		return err
	}
	defer os.Remove(tmp) // no-op after a successful rename
	return publishFile(tmp, path)
}

// stageFile writes and syncs a temp file next to path and returns its name.
// The caller owns the temp file until it is published or removed.
func stageFile(path string, write func(io.Writer) error) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("rag: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("rag: create temp file for %s: %w", path, err)
	}
	name := tmp.Name()

	err = write(tmp)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(name)
		return "", fmt.Errorf("rag: write %s: %w", path, err)
	}
	return name, nil
}

// publishFile renames a staged temp file over path.
func publishFile(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rag: rename %s: %w", path, err)
	}
	return nil
}

// digest returns the hex SHA-256 of b.
func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
