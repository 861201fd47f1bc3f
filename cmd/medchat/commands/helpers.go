package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/medchat-go/internal/answer"
	"github.com/54b3r/medchat-go/internal/embedder"
	"github.com/54b3r/medchat-go/internal/intent"
	"github.com/54b3r/medchat-go/internal/pipeline"
	"github.com/54b3r/medchat-go/internal/provider"
	"github.com/54b3r/medchat-go/internal/rag"
)

// defaultDataDir holds chunks.json, embeddings.bin and index.json unless
// RAG_DATA_DIR points elsewhere.
const defaultDataDir = "data"

// knowledgeBase is the retrieval side of the service.
type knowledgeBase struct {
	manager *rag.Manager
	paths   rag.Paths
	// qdrant is nil for the flat backend.
	qdrant *rag.QdrantBackend
}

// close releases the Qdrant connection, if any.
func (kb *knowledgeBase) close() {
	if kb.qdrant != nil {
		_ = kb.qdrant.Close()
	}
}

// buildKnowledgeBase constructs the index manager from RAG_DATA_DIR,
// RAG_BACKEND (flat | qdrant) and QDRANT_*. Nothing is read or embedded
// until the manager is first used.
func buildKnowledgeBase(log *slog.Logger) (*knowledgeBase, error) {
	kb := &knowledgeBase{paths: rag.PathsIn(getEnvOrDefault("RAG_DATA_DIR", defaultDataDir))}
	cfg := &rag.Config{
		Paths:    kb.paths,
		Embedder: embedder.NewProviderFromEnv(log),
		Logger:   log,
	}

	backend := getEnvOrDefault("RAG_BACKEND", "flat")
	switch backend {
	case "flat":
	case "qdrant":
		qb, err := rag.NewQdrantBackend(&rag.QdrantConfig{
			Host:       os.Getenv("QDRANT_HOST"),
			Port:       getEnvInt("QDRANT_PORT", 0),
			Collection: os.Getenv("QDRANT_COLLECTION"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     getEnvBool("QDRANT_TLS", false),
		})
		if err != nil {
			return nil, err
		}
		kb.qdrant = qb
		cfg.Backend = qb
	default:
		return nil, fmt.Errorf("unknown RAG_BACKEND %q, valid values: flat, qdrant", backend)
	}

	m, err := rag.NewManager(cfg)
	if err != nil {
		kb.close()
		return nil, err
	}
	kb.manager = m
	log.Info("knowledge base configured",
		slog.String("backend", backend),
		slog.String("chunks", kb.paths.Chunks),
	)
	return kb, nil
}

// buildClassifier loads INTENT_VOCABULARY when set, otherwise the built-in
// vocabulary.
func buildClassifier() (*intent.Classifier, error) {
	v := intent.DefaultVocabulary()
	if path := os.Getenv("INTENT_VOCABULARY"); path != "" {
		loaded, err := intent.LoadVocabulary(path)
		if err != nil {
			return nil, err
		}
		v = loaded
	}
	return intent.NewClassifier(v)
}

// service is a fully wired question pipeline.
type service struct {
	pipeline *pipeline.Pipeline
	model    model.BaseChatModel
	provider *provider.Config
	// kb is nil when USE_RAG is false.
	kb *knowledgeBase
}

// close releases the knowledge base connection.
func (s *service) close() {
	if s.kb != nil {
		s.kb.close()
	}
}

// buildService wires the chat model, answer synthesizer, intent classifier
// and knowledge base into a Pipeline. A missing provider credential is
// returned as an error wrapping provider.ErrConfiguration; embedding
// problems only degrade retrieval.
func buildService(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*service, error) {
	chatModel, pcfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(pcfg.Backend)),
		slog.String("model", pcfg.ModelName()),
	)

	synth, err := answer.New(&answer.Config{
		Model:        chatModel,
		Temperature:  pcfg.Tuning.Temperature,
		MaxTokens:    pcfg.Tuning.MaxTokens,
		OmitSampling: !pcfg.AcceptsSampling(),
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	classifier, err := buildClassifier()
	if err != nil {
		return nil, err
	}

	svc := &service{model: chatModel, provider: pcfg}
	pc := &pipeline.Config{
		Settings:   pipeline.SettingsFromEnv(),
		Classifier: classifier,
		Answerer:   synth,
		Registerer: reg,
		Logger:     log,
	}
	if pc.UseRAG {
		if err := embedder.Preflight(log); err != nil {
			log.Warn("embedding configuration invalid, medical answers will have no references", slog.Any("error", err))
		}
		kb, err := buildKnowledgeBase(log)
		if err != nil {
			return nil, err
		}
		svc.kb = kb
		pc.Retriever = kb.manager
		pc.Index = kb.manager
	} else {
		log.Info("retrieval disabled via USE_RAG")
	}

	p, err := pipeline.New(pc)
	if err != nil {
		svc.close()
		return nil, err
	}
	svc.pipeline = p
	return svc, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true")
}
