package rag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/54b3r/medchat-go/internal/logging"
)

// defaultEmbedBatch is the number of chunk texts embedded per call during a
// rebuild.
const defaultEmbedBatch = 64

// Config holds the dependencies of a [Manager].
type Config struct {
	// Paths locates the persisted chunks, embeddings and manifest.
	Paths Paths

	// Embedder produces L2-normalised vectors for chunk texts and queries.
	Embedder Embedder

	// Backend builds and reopens the vector index. Defaults to [FlatBackend].
	Backend Backend

	// EmbedBatch is the rebuild embedding batch size. Defaults to 64.
	EmbedBatch int

	// Logger is used when the request context carries none.
	Logger *slog.Logger
}

// snapshot is the published index+chunks pair. It is never mutated; a
// rebuild publishes a new one.
type snapshot struct {
	index    VectorIndex
	chunks   []Chunk
	manifest Manifest
}

// Status describes the published index.
type Status struct {
	Initialized bool      `json:"initialized"`
	Backend     string    `json:"backend"`
	IndexSize   int       `json:"index_size"`
	ChunksCount int       `json:"chunks_count"`
	Dimension   int       `json:"dimension"`
	BuiltAt     time.Time `json:"built_at,omitzero"`
}

// Manager owns the process-wide knowledge base: it lazily loads the
// persisted index, rebuilds it on demand and serves searches. It is safe for
// concurrent use; searches never take a lock once the index is loaded.
type Manager struct {
	paths      Paths
	embedder   Embedder
	backend    Backend
	embedBatch int
	log        *slog.Logger

	// current is nil until the first successful Load or Rebuild.
	current atomic.Pointer[snapshot]
	// loadMu guards loading and publishing.
	loadMu sync.Mutex
	// rebuildMu serialises rebuilds.
	rebuildMu sync.Mutex
}

// NewManager constructs a Manager. Nothing is read from disk until Load,
// Search or Rebuild is called.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if cfg.Paths.Chunks == "" || cfg.Paths.Embeddings == "" || cfg.Paths.Manifest == "" {
		return nil, fmt.Errorf("rag: chunks, embeddings and manifest paths are required")
	}

	backend := cfg.Backend
	if backend == nil {
		backend = FlatBackend{}
	}
	batch := cfg.EmbedBatch
	if batch <= 0 {
		batch = defaultEmbedBatch
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		paths:      cfg.Paths,
		embedder:   cfg.Embedder,
		backend:    backend,
		embedBatch: batch,
		log:        log,
	}, nil
}

// Ready reports whether an index is published.
func (m *Manager) Ready() bool {
	return m.current.Load() != nil
}

// Status reports what is currently published.
func (m *Manager) Status() Status {
	s := m.current.Load()
	if s == nil {
		return Status{Backend: m.backend.Name()}
	}
	return Status{
		Initialized: true,
		Backend:     s.manifest.Backend,
		IndexSize:   s.index.Size(),
		ChunksCount: len(s.chunks),
		Dimension:   s.index.Dimension(),
		BuiltAt:     s.manifest.BuiltAt,
	}
}

// Load publishes the persisted index if none is published yet. It returns
// (false, nil) when the index files do not exist and (false, err) when they
// exist but cannot be used. Concurrent callers share a single load.
func (m *Manager) Load(ctx context.Context) (bool, error) {
	if m.current.Load() != nil {
		return true, nil
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.current.Load() != nil {
		return true, nil
	}

	log := m.logger(ctx)
	start := time.Now()
	snap, err := m.readSnapshot(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("rag: index files not found, retrieval disabled until rebuild",
			slog.String("manifest", m.paths.Manifest),
			slog.String("chunks", m.paths.Chunks),
		)
		return false, nil
	}
	if err != nil {
		log.Error("rag: failed to load index", slog.Any("error", err))
		return false, err
	}

	m.current.Store(snap)
	log.Info("rag: index loaded",
		slog.String("backend", snap.manifest.Backend),
		slog.Int("chunks", len(snap.chunks)),
		slog.Int("dimension", snap.index.Dimension()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return true, nil
}

// readSnapshot reads and cross-checks the persisted files. The manifest is
// read first so a rebuild that crashed before committing is ignored.
func (m *Manager) readSnapshot(ctx context.Context) (*snapshot, error) {
	manifest, err := readManifest(m.paths.Manifest)
	if err != nil {
		return nil, err
	}
	if manifest.Backend != m.backend.Name() {
		return nil, fmt.Errorf("%w: built with %q, configured %q", ErrIncompatible, manifest.Backend, m.backend.Name())
	}

	chunks, sum, err := readChunks(m.paths.Chunks)
	if err != nil {
		return nil, err
	}
	if sum != manifest.ChunksSHA256 {
		return nil, fmt.Errorf("%w: chunks file does not match manifest digest", ErrCorrupt)
	}

	vectors, err := ReadMatrix(m.paths.Embeddings)
	if err != nil {
		return nil, err
	}
	if vectors.Rows() != len(chunks) || len(chunks) != manifest.Count {
		return nil, fmt.Errorf("%w: %d chunks, %d embeddings, manifest count %d",
			ErrCorrupt, len(chunks), vectors.Rows(), manifest.Count)
	}
	if vectors.Dim != manifest.Dimension {
		return nil, fmt.Errorf("%w: embeddings dimension %d, manifest %d", ErrCorrupt, vectors.Dim, manifest.Dimension)
	}
	if vectors.Checksum() != manifest.EmbeddingsCRC32 {
		return nil, fmt.Errorf("%w: embeddings file does not match manifest checksum", ErrCorrupt)
	}

	index, err := m.backend.Open(ctx, manifest, vectors)
	if err != nil {
		return nil, err
	}
	if index.Size() != len(chunks) {
		return nil, fmt.Errorf("%w: index size %d, chunk count %d", ErrCorrupt, index.Size(), len(chunks))
	}

	return &snapshot{index: index, chunks: chunks, manifest: *manifest}, nil
}

// Rebuild embeds chunks, builds a fresh index, persists everything and then
// publishes the new pair in one pointer swap. A nil chunks slice reindexes
// the persisted chunk collection. Rebuilds are serialised; searches keep
// using the previous pair until the swap.
func (m *Manager) Rebuild(ctx context.Context, chunks []Chunk) (bool, error) {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	log := m.logger(ctx)
	start := time.Now()

	if chunks == nil {
		persisted, err := ReadChunks(m.paths.Chunks)
		if err != nil {
			return false, err
		}
		chunks = persisted
	}
	if len(chunks) == 0 {
		return false, ErrNoChunks
	}
	chunks = slices.Clone(chunks)

	vectors, err := m.embedAll(ctx, chunks)
	if err != nil {
		return false, fmt.Errorf("rag: rebuild: %w", err)
	}

	index, err := m.backend.Build(ctx, vectors)
	if err != nil {
		return false, fmt.Errorf("rag: rebuild: build index: %w", err)
	}
	if index.Size() != len(chunks) {
		m.dropQuietly(ctx, index.Ref())
		return false, fmt.Errorf("%w: built index has %d vectors for %d chunks", ErrCorrupt, index.Size(), len(chunks))
	}

	retired, err := m.commit(ctx, index, chunks, vectors)
	if err != nil {
		m.dropQuietly(ctx, index.Ref())
		return false, err
	}
	if retired != "" && retired != index.Ref() {
		m.dropQuietly(ctx, retired)
	}

	log.Info("rag: index rebuilt",
		slog.String("backend", m.backend.Name()),
		slog.Int("chunks", len(chunks)),
		slog.Int("dimension", vectors.Dim),
		slog.Duration("elapsed", time.Since(start)),
	)
	return true, nil
}

// commit persists the new generation and publishes it. The load lock is held
// so a concurrent Load cannot read a half-written set of files. It returns
// the ref of the generation that is now two builds old and can be dropped.
//
// Both data files are encoded and staged before either replaces its
// predecessor, so a failed encode or write leaves the previous generation
// on disk untouched. The manifest binds both files by checksum; a crash
// between the renames is reported as ErrCorrupt on the next load instead
// of pairing vectors with the wrong chunks.
func (m *Manager) commit(ctx context.Context, index VectorIndex, chunks []Chunk, vectors *Matrix) (string, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	var previous, retired string
	if cur := m.current.Load(); cur != nil {
		previous, retired = cur.manifest.Ref, cur.manifest.PreviousRef
	} else if old, err := readManifest(m.paths.Manifest); err == nil && old.Backend == m.backend.Name() {
		previous, retired = old.Ref, old.PreviousRef
	}

	raw, err := encodeChunks(chunks)
	if err != nil {
		return "", err
	}
	embTmp, err := stageFile(m.paths.Embeddings, vectors.encode)
	if err != nil {
		return "", err
	}
	defer os.Remove(embTmp)
	chunksTmp, err := stageFile(m.paths.Chunks, writeBytes(raw))
	if err != nil {
		return "", err
	}
	defer os.Remove(chunksTmp)

	if err := publishFile(embTmp, m.paths.Embeddings); err != nil {
		return "", err
	}
	if err := publishFile(chunksTmp, m.paths.Chunks); err != nil {
		return "", err
	}
	manifest := Manifest{
		Backend:         m.backend.Name(),
		Ref:             index.Ref(),
		PreviousRef:     previous,
		Dimension:       vectors.Dim,
		Count:           len(chunks),
		ChunksSHA256:    digest(raw),
		EmbeddingsCRC32: vectors.Checksum(),
		BuiltAt:         time.Now().UTC(),
	}
	if err := writeManifest(m.paths.Manifest, &manifest); err != nil {
		return "", err
	}

	m.current.Store(&snapshot{index: index, chunks: chunks, manifest: manifest})
	m.logger(ctx).Debug("rag: published new index generation", slog.String("ref", manifest.Ref))
	return retired, nil
}

// embedAll embeds every chunk text in batches, preserving order.
func (m *Manager) embedAll(ctx context.Context, chunks []Chunk) (*Matrix, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += m.embedBatch {
		end := min(start+m.embedBatch, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}
		batch, err := m.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embed chunks %d-%d: got %d vectors for %d texts", start, end-1, len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return NewMatrix(vectors)
}

// dropQuietly releases an index and logs failures.
func (m *Manager) dropQuietly(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := m.backend.Drop(context.WithoutCancel(ctx), ref); err != nil {
		m.logger(ctx).Warn("rag: failed to drop retired index", slog.String("ref", ref), slog.Any("error", err))
	}
}

// Search returns up to topK chunks scoring at least threshold against query,
// in descending score order. Retrieval is optional: any failure is logged
// and yields an empty result.
func (m *Manager) Search(ctx context.Context, query string, topK int, threshold float32) []SearchResult {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}
	log := m.logger(ctx)

	snap := m.current.Load()
	if snap == nil {
		ok, err := m.Load(ctx)
		if !ok {
			if err != nil {
				log.Warn("rag: search skipped, index unavailable", slog.Any("error", err))
			}
			return nil
		}
		snap = m.current.Load()
	}

	vecs, err := m.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		log.Warn("rag: search skipped, query embedding failed", slog.Any("error", err))
		return nil
	}

	hits, err := snap.index.Search(ctx, vecs[0], topK)
	if err != nil {
		log.Warn("rag: vector search failed", slog.Any("error", err))
		return nil
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.Position < 0 || h.Position >= len(snap.chunks) {
			continue
		}
		if h.Score < threshold {
			continue
		}
		c := snap.chunks[h.Position]
		results = append(results, SearchResult{
			Position: h.Position,
			Text:     c.Text,
			Score:    h.Score,
			Metadata: c.Metadata,
		})
	}
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// warmer is implemented by embedders that can be loaded ahead of use.
type warmer interface {
	Load(ctx context.Context) error
}

// Init loads the index and warms the embedder. It is idempotent and safe to
// race with request-driven loads. It reports whether retrieval is usable.
func (m *Manager) Init(ctx context.Context) bool {
	log := m.logger(ctx)
	ok, err := m.Load(ctx)
	if err != nil {
		log.Warn("rag: init could not load index", slog.Any("error", err))
	}
	if w, isWarmer := m.embedder.(warmer); isWarmer {
		if err := w.Load(ctx); err != nil {
			log.Warn("rag: init could not load embedder", slog.Any("error", err))
			return false
		}
	}
	return ok
}

// logger prefers the request-scoped logger.
func (m *Manager) logger(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, m.log)
}
