package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// qdrantUpsertBatch bounds the number of points sent per upsert call.
const qdrantUpsertBatch = 256

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the name prefix for index collections. Every rebuild
	// creates "<Collection>-<unix nanos>".
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantBackend stores each index generation in its own Qdrant collection.
// Point IDs are chunk positions, so a hit maps straight back to a chunk.
type QdrantBackend struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// prefix is the collection name prefix.
	prefix string
}

// NewQdrantBackend connects to Qdrant. No collection is touched until Build
// or Open is called.
func NewQdrantBackend(cfg *QdrantConfig) (*QdrantBackend, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "medchat"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantBackend{client: client, prefix: cfg.Collection}, nil
}

// Client exposes the gRPC client for health probes.
func (b *QdrantBackend) Client() *qdrant.Client { return b.client }

// Name implements [Backend].
func (b *QdrantBackend) Name() string { return "qdrant" }

// Build creates a fresh collection and uploads every row of vectors with its
// position as the point ID. On failure the partial collection is removed.
func (b *QdrantBackend) Build(ctx context.Context, vectors *Matrix) (VectorIndex, error) {
	name := fmt.Sprintf("%s-%d", b.prefix, time.Now().UnixNano())

	err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectors.Dim),
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}

	if err := b.upsert(ctx, name, vectors); err != nil {
		if dropErr := b.client.DeleteCollection(context.WithoutCancel(ctx), name); dropErr != nil {
			err = fmt.Errorf("%w (cleanup of %q also failed: %v)", err, name, dropErr)
		}
		return nil, err
	}

	return &QdrantIndex{client: b.client, collection: name, dim: vectors.Dim, size: vectors.Rows()}, nil
}

// upsert uploads vectors in batches and waits for each batch to be applied.
func (b *QdrantBackend) upsert(ctx context.Context, collection string, vectors *Matrix) error {
	wait := true
	rows := vectors.Rows()
	for start := 0; start < rows; start += qdrantUpsertBatch {
		end := min(start+qdrantUpsertBatch, rows)
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)),
				Vectors: qdrant.NewVectors(vectors.Row(i)...),
			})
		}
		_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
			Wait:           &wait,
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert into %q failed at offset %d: %w", collection, start, err)
		}
	}
	return nil
}

// Open attaches to the collection recorded in m and checks that it still
// holds one point per chunk.
func (b *QdrantBackend) Open(ctx context.Context, m *Manifest, _ *Matrix) (VectorIndex, error) {
	if m.Ref == "" {
		return nil, fmt.Errorf("%w: manifest has no qdrant collection", ErrCorrupt)
	}
	exists, err := b.client.CollectionExists(ctx, m.Ref)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: qdrant collection %q does not exist", ErrCorrupt, m.Ref)
	}

	exact := true
	count, err := b.client.Count(ctx, &qdrant.CountPoints{CollectionName: m.Ref, Exact: &exact})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to count points in %q: %w", m.Ref, err)
	}
	if int(count) != m.Count {
		return nil, fmt.Errorf("%w: qdrant collection %q holds %d points, manifest says %d", ErrCorrupt, m.Ref, count, m.Count)
	}

	return &QdrantIndex{client: b.client, collection: m.Ref, dim: m.Dimension, size: m.Count}, nil
}

// Drop deletes a retired collection.
func (b *QdrantBackend) Drop(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	exists, err := b.client.CollectionExists(ctx, ref)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return nil
	}
	if err := b.client.DeleteCollection(ctx, ref); err != nil {
		return fmt.Errorf("qdrant: failed to delete collection %q: %w", ref, err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (b *QdrantBackend) Close() error {
	return b.client.Close()
}

// QdrantIndex is one published Qdrant collection.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        int
	size       int
}

// Search runs a dot-product query against the collection.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != q.dim {
		return nil, fmt.Errorf("qdrant: query dimension %d, index dimension %d", len(query), q.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{Position: int(r.GetId().GetNum()), Score: r.GetScore()})
	}
	return hits, nil
}

// Size returns the number of points in the collection.
func (q *QdrantIndex) Size() int { return q.size }

// Dimension returns the vector length.
func (q *QdrantIndex) Dimension() int { return q.dim }

// Ref returns the collection name.
func (q *QdrantIndex) Ref() string { return q.collection }
