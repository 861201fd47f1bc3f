package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/54b3r/medchat-go/internal/rag"
)

// ErrUnavailable wraps every failure to bring the embedding backend up.
// Callers treat it as "retrieval disabled for this request"; the next call
// tries again.
var ErrUnavailable = errors.New("embedder: provider unavailable")

// probeText is embedded once at load time to verify the backend and learn
// the vector dimension.
const probeText = "medical information"

// LoadFunc constructs the backend embedder. It may be slow.
type LoadFunc func(ctx context.Context) (rag.Embedder, error)

// loaded is the published backend and its dimension.
type loaded struct {
	backend rag.Embedder
	dim     int
}

// Provider is the shared embedding model for the process. The backend is
// built on first use under double-checked locking: the hot path is a single
// atomic load, and only one caller ever performs the load. A failed load is
// not remembered, so a later call retries it.
//
// All vectors returned by Provider are L2-normalised.
type Provider struct {
	load LoadFunc
	log  *slog.Logger

	mu    sync.Mutex
	ready atomic.Pointer[loaded]
}

// NewProvider returns a Provider that builds its backend with load.
func NewProvider(load LoadFunc, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{load: load, log: log}
}

// NewProviderFromEnv returns a Provider whose backend comes from [NewFromEnv].
func NewProviderFromEnv(log *slog.Logger) *Provider {
	return NewProvider(func(context.Context) (rag.Embedder, error) {
		return NewFromEnv()
	}, log)
}

// Load brings the backend up if it is not already. It is safe to call from
// a warm-up goroutine while requests are arriving.
func (p *Provider) Load(ctx context.Context) error {
	_, err := p.get(ctx)
	return err
}

// Ready reports whether the backend has been loaded.
func (p *Provider) Ready() bool {
	return p.ready.Load() != nil
}

// Dimension returns the vector length, or 0 before the first load.
func (p *Provider) Dimension() int {
	if l := p.ready.Load(); l != nil {
		return l.dim
	}
	return 0
}

// get returns the loaded backend, loading it exactly once.
func (p *Provider) get(ctx context.Context) (*loaded, error) {
	if l := p.ready.Load(); l != nil {
		return l, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if l := p.ready.Load(); l != nil {
		return l, nil
	}

	start := time.Now()
	backend, err := p.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	probe, err := backend.Embed(ctx, []string{probeText})
	if err != nil {
		return nil, fmt.Errorf("%w: probe embedding failed: %w", ErrUnavailable, err)
	}
	if len(probe) != 1 || len(probe[0]) == 0 {
		return nil, fmt.Errorf("%w: probe embedding returned no vector", ErrUnavailable)
	}

	l := &loaded{backend: backend, dim: len(probe[0])}
	p.ready.Store(l)
	p.log.Info("embedder: model loaded",
		slog.Int("dimension", l.dim),
		slog.Duration("elapsed", time.Since(start)),
	)
	return l, nil
}

// Embed returns one normalised vector per text.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	l, err := p.get(ctx)
	if err != nil {
		return nil, err
	}

	vecs, err := l.backend.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder: expected %d embeddings, got %d", len(texts), len(vecs))
	}
	for i, v := range vecs {
		if len(v) != l.dim {
			return nil, fmt.Errorf("embedder: embedding %d has dimension %d, want %d", i, len(v), l.dim)
		}
		vecs[i] = Normalize(v)
	}
	return vecs, nil
}

// EmbedOne returns the normalised vector for a single text.
func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Normalize returns v scaled to unit L2 norm. Zero vectors are returned
// unchanged. The input slice is not modified.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
