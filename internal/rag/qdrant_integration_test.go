//go:build integration

package rag

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"
)

// TestQdrantBackend_Integration runs two rebuilds and a reload against a real
// Qdrant, checking that positions survive the round trip and that retired
// collections are deleted.
//
// Prerequisites:
//
//	docker run -p 6334:6334 qdrant/qdrant
//
// Run with:
//
//	go test -tags=integration -run TestQdrantBackend_Integration ./internal/rag/
//
// In CI, set QDRANT_HOST and QDRANT_PORT if Qdrant is not on localhost:6334.
func TestQdrantBackend_Integration(t *testing.T) {
	cfg := &QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Collection: "medchat-it-" + strconv.FormatInt(time.Now().UnixNano(), 36),
	}
	if p, err := strconv.Atoi(os.Getenv("QDRANT_PORT")); err == nil {
		cfg.Port = p
	}
	backend, err := NewQdrantBackend(cfg)
	if err != nil {
		t.Fatalf("NewQdrantBackend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	paths := PathsIn(t.TempDir())
	m, err := NewManager(&Config{Paths: paths, Embedder: testEmbedder(), Backend: backend})
	if err != nil {
		t.Fatal(err)
	}

	var refs []string
	for range 3 {
		if _, err := m.Rebuild(ctx, testChunks()); err != nil {
			t.Fatalf("Rebuild: %v\n\nEnsure Qdrant is reachable on %s:%d", err, cfg.Host, cfg.Port)
		}
		refs = append(refs, m.current.Load().manifest.Ref)
	}
	t.Cleanup(func() {
		for _, ref := range refs {
			_ = backend.Drop(context.Background(), ref)
		}
	})

	exists, err := backend.Client().CollectionExists(ctx, refs[0])
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Errorf("collection %s should have been retired", refs[0])
	}

	reloaded, err := NewManager(&Config{Paths: paths, Embedder: testEmbedder(), Backend: backend})
	if err != nil {
		t.Fatal(err)
	}
	got := reloaded.Search(ctx, "mostly alpha", 2, 0.3)
	if len(got) != 2 || got[0].Text != "alpha" || got[0].Position != 0 || got[1].Text != "beta" {
		t.Errorf("Search after reload = %+v", got)
	}

	if err := backend.Drop(ctx, "medchat-it-missing"); err != nil {
		t.Errorf("Drop of unknown collection = %v, want nil", err)
	}
}
