package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/medchat-go/internal/logging"
	"github.com/54b3r/medchat-go/internal/provider"
	"github.com/54b3r/medchat-go/internal/rag"
)

// LLMPinger probes the chat backend. A zero-token provider.HealthChecker is
// used when the backend has one; otherwise a one-token Generate is sent.
type LLMPinger struct {
	// healthCheck is the zero-token probe, nil when the backend has none.
	healthCheck provider.HealthChecker
	// model is the fallback probe target.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "groq").
	name string
}

// NewLLMPinger constructs an LLMPinger. hc may be nil.
func NewLLMPinger(hc provider.HealthChecker, m model.BaseChatModel, name string) *LLMPinger {
	return &LLMPinger{healthCheck: hc, model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend for readiness.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.model == nil {
		return errors.New("no health check or model configured")
	}

	logging.FromContext(ctx).Debug("pinger: probing with a one-token generate",
		slog.String("backend", p.name),
	)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return errors.New("generate returned nil response")
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// indexStatus is satisfied by *rag.Manager and *pipeline.Pipeline.
type indexStatus interface {
	Status() rag.Status
}

// IndexPinger reports ready once the knowledge base is published. Until
// the warm-up finishes medical questions are answered without references.
type IndexPinger struct {
	index indexStatus
}

// NewIndexPinger constructs an IndexPinger.
func NewIndexPinger(index indexStatus) *IndexPinger {
	return &IndexPinger{index: index}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping fails while no index is published.
func (p *IndexPinger) Ping(context.Context) error {
	st := p.index.Status()
	if !st.Initialized {
		return errors.New("knowledge base not loaded")
	}
	if st.IndexSize != st.ChunksCount {
		return fmt.Errorf("index has %d vectors for %d chunks", st.IndexSize, st.ChunksCount)
	}
	return nil
}
