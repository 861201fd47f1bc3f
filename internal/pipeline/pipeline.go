// Package pipeline routes a user question to the right answer source.
//
// Every question is classified first. Conversational intents (greeting,
// thanks, goodbye, identity, off-topic) are answered from fixed text without
// touching the model. Medical questions get best-effort retrieval from the
// knowledge base followed by LLM synthesis. Retrieval never fails a request:
// an unavailable index simply means the model answers without references.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/medchat-go/internal/answer"
	"github.com/54b3r/medchat-go/internal/intent"
	"github.com/54b3r/medchat-go/internal/logging"
	"github.com/54b3r/medchat-go/internal/rag"
)

// ErrValidation is returned for questions that are rejected before any
// model or index work.
var ErrValidation = errors.New("pipeline: invalid question")

// RephraseMessage replaces buffered answers too short to be useful.
const RephraseMessage = "I understand you're asking about a health topic. Could you please provide more details or rephrase your question? I'm here to help with medical information."

const (
	// DefaultMinQuestionLen is the shortest accepted buffered question, in characters.
	DefaultMinQuestionLen = 2
	// minAnswerChars is the fewest non-whitespace characters an answer may have.
	minAnswerChars = 5
)

// Retriever is the knowledge-base search surface. *rag.Manager satisfies it.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, threshold float32) []rag.SearchResult
}

// Indexer controls the knowledge-base lifecycle. *rag.Manager satisfies it.
type Indexer interface {
	Init(ctx context.Context) bool
	Rebuild(ctx context.Context, chunks []rag.Chunk) (bool, error)
	Status() rag.Status
}

// Answerer synthesises medical answers. *answer.Synthesizer satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string, history []answer.Turn, ragContext string) string
	Stream(ctx context.Context, question, ragContext string) iter.Seq[answer.Frame]
}

// Config holds the collaborators and tunables for a Pipeline.
type Config struct {
	Settings

	// Classifier routes questions. Defaults to the built-in vocabulary.
	Classifier *intent.Classifier
	// Answerer is required.
	Answerer Answerer
	// Retriever is optional; nil disables retrieval.
	Retriever Retriever
	// Index is optional; nil makes InitRAG a no-op and RebuildIndex an error.
	Index Indexer

	// MinQuestionLen defaults to DefaultMinQuestionLen.
	MinQuestionLen int

	// Registerer receives the pipeline metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// Logger is used when the request context carries none.
	Logger *slog.Logger
}

// Result is the outcome of a buffered question.
type Result struct {
	Answer      string        `json:"answer"`
	Intent      intent.Intent `json:"questionType"`
	ContextUsed bool          `json:"contextUsed"`
}

// StreamResult is the outcome of a streamed question. Exactly one of
// Static and Frames is set.
type StreamResult struct {
	Intent intent.Intent
	// Static holds the complete reply for conversational intents.
	Static string
	// Frames is the lazy token stream for medical questions.
	Frames iter.Seq[answer.Frame]
	// ContextUsed reports whether references were found for the stream.
	ContextUsed bool
}

// Pipeline is the question orchestrator. It is safe for concurrent use.
type Pipeline struct {
	settings   Settings
	classifier *intent.Classifier
	answerer   Answerer
	retriever  Retriever
	index      Indexer
	minLen     int
	metrics    *metrics
	log        *slog.Logger
}

// New constructs a Pipeline from cfg.
func New(cfg *Config) (*Pipeline, error) {
	if cfg == nil || cfg.Answerer == nil {
		return nil, fmt.Errorf("pipeline: Answerer must not be nil")
	}
	p := &Pipeline{
		settings:   cfg.Settings.withDefaults(),
		classifier: cfg.Classifier,
		answerer:   cfg.Answerer,
		retriever:  cfg.Retriever,
		index:      cfg.Index,
		minLen:     cfg.MinQuestionLen,
		log:        cfg.Logger,
	}
	if p.classifier == nil {
		c, err := intent.NewClassifier(intent.DefaultVocabulary())
		if err != nil {
			return nil, fmt.Errorf("pipeline: default vocabulary: %w", err)
		}
		p.classifier = c
	}
	if p.minLen <= 0 {
		p.minLen = DefaultMinQuestionLen
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if cfg.Registerer != nil {
		p.metrics = newMetrics(cfg.Registerer)
	}
	return p, nil
}

// Settings returns the effective retrieval settings.
func (p *Pipeline) Settings() Settings {
	return p.settings
}

// Handle answers question in full. Only ErrValidation is ever returned;
// every downstream failure is reflected in the answer text instead.
func (p *Pipeline) Handle(ctx context.Context, question string, history []answer.Turn) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrValidation)
	}
	if utf8.RuneCountInString(question) < p.minLen {
		return nil, fmt.Errorf("%w: question must be at least %d characters", ErrValidation, p.minLen)
	}

	in := p.classifier.Classify(question)
	p.metrics.observeIntent(in, "buffered")
	if in != intent.Medical {
		return &Result{Answer: intent.StaticResponse(in), Intent: in}, nil
	}

	start := time.Now()
	ragContext := p.retrieve(ctx, question)
	text := p.answerer.Answer(ctx, question, history, ragContext)
	p.metrics.observeAnswer(time.Since(start))

	if countNonSpace(text) < minAnswerChars {
		p.logger(ctx).Warn("pipeline: answer too short, asking to rephrase",
			slog.Int("length", len(text)),
		)
		text = RephraseMessage
	}
	return &Result{Answer: text, Intent: in, ContextUsed: ragContext != ""}, nil
}

// HandleStream prepares a streamed answer. Conversational intents come back
// as Static text. For medical questions retrieval runs now and synthesis
// runs when Frames is ranged over.
func (p *Pipeline) HandleStream(ctx context.Context, question string) (*StreamResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrValidation)
	}

	in := p.classifier.Classify(question)
	p.metrics.observeIntent(in, "stream")
	if in != intent.Medical {
		return &StreamResult{Intent: in, Static: intent.StaticResponse(in)}, nil
	}

	ragContext := p.retrieve(ctx, question)
	return &StreamResult{
		Intent:      in,
		Frames:      p.answerer.Stream(ctx, question, ragContext),
		ContextUsed: ragContext != "",
	}, nil
}

// retrieve returns the reference context for question, or "" when
// retrieval is disabled, unavailable or finds nothing.
func (p *Pipeline) retrieve(ctx context.Context, question string) string {
	if !p.settings.UseRAG || p.retriever == nil {
		return ""
	}
	results := p.retriever.Search(ctx, question, p.settings.TopK, p.settings.ScoreThreshold)
	p.metrics.observeRetrieval(len(results))
	if len(results) == 0 {
		return ""
	}
	ragContext := rag.BuildContext(results, p.settings.MaxContext)
	p.logger(ctx).Info("pipeline: context retrieved",
		slog.Int("results", len(results)),
		slog.Int("chars", utf8.RuneCountInString(ragContext)),
	)
	return ragContext
}

// InitRAG warms the knowledge base and embedding model. It is safe to call
// concurrently with requests and reports whether the index is ready.
func (p *Pipeline) InitRAG(ctx context.Context) bool {
	if !p.settings.UseRAG || p.index == nil {
		return false
	}
	return p.index.Init(ctx)
}

// RebuildIndex re-embeds chunks (or the persisted chunks when nil) and
// publishes a new index.
func (p *Pipeline) RebuildIndex(ctx context.Context, chunks []rag.Chunk) (bool, error) {
	if p.index == nil {
		return false, fmt.Errorf("pipeline: retrieval is not configured")
	}
	return p.index.Rebuild(ctx, chunks)
}

// Status reports the published index, or a zero Status when retrieval is
// not configured.
func (p *Pipeline) Status() rag.Status {
	if p.index == nil {
		return rag.Status{}
	}
	return p.index.Status()
}

func (p *Pipeline) logger(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, p.log)
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
