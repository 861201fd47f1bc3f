package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/medchat-go/internal/answer"
	"github.com/54b3r/medchat-go/internal/pipeline"
	"github.com/54b3r/medchat-go/internal/rag"
	"github.com/54b3r/medchat-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It
	// must cover a full streamed answer.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single /api/ask or /api/stream request.
	// Defaults to 2 minutes.
	ChatTimeout time.Duration
	// RebuildTimeout bounds POST /api/rebuild. Defaults to 30 minutes.
	RebuildTimeout time.Duration
	// HistoryTurns is how many stored messages are loaded for a follow-up
	// question. Defaults to answer.DefaultHistoryTurns.
	HistoryTurns int
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// questioner is the slice of *pipeline.Pipeline the handlers use. Tests
// inject a fake.
type questioner interface {
	Handle(ctx context.Context, question string, history []answer.Turn) (*pipeline.Result, error)
	HandleStream(ctx context.Context, question string) (*pipeline.StreamResult, error)
	RebuildIndex(ctx context.Context, chunks []rag.Chunk) (bool, error)
	Status() rag.Status
	Settings() pipeline.Settings
}

// Server is the HTTP shell around the question pipeline.
type Server struct {
	// pipeline answers questions and manages the knowledge base.
	pipeline questioner
	// history persists exchanges; nil disables chat history.
	history store.ConversationStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers *MultiPinger
	// metrics holds the Prometheus collectors owned by the server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask and POST /api/stream.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// ChatID continues an existing conversation. A new ID is issued when
	// empty.
	ChatID string `json:"chatId,omitempty"`
	// History overrides the stored conversation when supplied.
	History []answer.Turn `json:"history,omitempty"`
}

// askResponse is the JSON response for a buffered answer, and for static
// replies on POST /api/stream.
type askResponse struct {
	Answer       string `json:"answer"`
	QuestionType string `json:"questionType"`
	ContextUsed  bool   `json:"contextUsed"`
	ChatID       string `json:"chatId"`
}

// chatResponse is the JSON response for GET /api/chats/{id}.
type chatResponse struct {
	ChatID   string          `json:"chatId"`
	Messages []store.Message `json:"messages"`
}

// statusResponse is the JSON response for GET /api/status.
type statusResponse struct {
	RAG      rag.Status     `json:"rag"`
	Settings statusSettings `json:"settings"`
}

// statusSettings mirrors pipeline.Settings with wire names.
type statusSettings struct {
	UseRAG         bool    `json:"use_rag"`
	TopK           int     `json:"top_k"`
	MaxContext     int     `json:"max_context"`
	ScoreThreshold float32 `json:"score_threshold"`
}

// rebuildRequest is the optional JSON body for POST /api/rebuild. When
// Chunks is empty the persisted chunks are re-embedded.
type rebuildRequest struct {
	Chunks []rag.Chunk `json:"chunks,omitempty"`
}

// rebuildResponse is the JSON response for POST /api/rebuild.
type rebuildResponse struct {
	Rebuilt bool       `json:"rebuilt"`
	Status  rag.Status `json:"status"`
}

// errorResponse is the JSON error body used by all handlers.
type errorResponse struct {
	Error string `json:"error"`
}
