// Package answer produces medical answers from an LLM. It owns the system
// prompt, the history window sent with each question, and both delivery
// modes: a buffered string and a lazily evaluated stream of frames.
//
// Model failures never surface as errors. Buffered answers degrade to a
// fallback message and streams end with a single error frame.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/medchat-go/internal/budget"
	"github.com/54b3r/medchat-go/internal/logging"
	"github.com/54b3r/medchat-go/internal/tracing"
)

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultTemperature  float32 = 0.3
	DefaultMaxTokens            = 300
	DefaultHistoryTurns         = 3
	DefaultHistoryChars         = 500
)

// fallbackPrefix is prepended to the failure reason in buffered answers.
const fallbackPrefix = "⚠️ Service temporarily unavailable: "

// Role identifies the author of a history turn.
type Role string

const (
	// RoleUser is a question asked by the end user.
	RoleUser Role = "user"
	// RoleAssistant is a previous answer.
	RoleAssistant Role = "assistant"
)

// Turn is one caller-supplied history entry.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Config holds the dependencies and generation settings for a Synthesizer.
type Config struct {
	// Model is the chat model constructed by the provider factory.
	Model model.BaseChatModel

	// Temperature is the sampling temperature. Defaults to 0.3.
	Temperature float32
	// MaxTokens bounds the generated answer. Defaults to 300.
	MaxTokens int
	// OmitSampling suppresses per-call temperature and max-token options for
	// models that reject them.
	OmitSampling bool

	// HistoryTurns is how many of the most recent turns are sent with each
	// buffered question. Defaults to 3.
	HistoryTurns int
	// HistoryChars truncates each history turn. Defaults to 500.
	HistoryChars int
	// MaxContextTokens is the estimated input token budget. History is
	// trimmed oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int

	// Logger is used when the request context carries none.
	Logger *slog.Logger
}

// Synthesizer turns a question plus optional reference context into an
// answer. It is safe for concurrent use.
type Synthesizer struct {
	model            model.BaseChatModel
	temperature      float32
	maxTokens        int
	omitSampling     bool
	historyTurns     int
	historyChars     int
	maxContextTokens int
	log              *slog.Logger
}

// New constructs a Synthesizer from cfg.
func New(cfg *Config) (*Synthesizer, error) {
	if cfg == nil || cfg.Model == nil {
		return nil, fmt.Errorf("answer: Model must not be nil")
	}
	s := &Synthesizer{
		model:            cfg.Model,
		temperature:      cfg.Temperature,
		maxTokens:        cfg.MaxTokens,
		omitSampling:     cfg.OmitSampling,
		historyTurns:     cfg.HistoryTurns,
		historyChars:     cfg.HistoryChars,
		maxContextTokens: cfg.MaxContextTokens,
		log:              cfg.Logger,
	}
	if s.temperature <= 0 {
		s.temperature = DefaultTemperature
	}
	if s.maxTokens <= 0 {
		s.maxTokens = DefaultMaxTokens
	}
	if s.historyTurns <= 0 {
		s.historyTurns = DefaultHistoryTurns
	}
	if s.historyChars <= 0 {
		s.historyChars = DefaultHistoryChars
	}
	if s.maxContextTokens <= 0 {
		s.maxContextTokens = budget.DefaultMaxContextTokens
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Answer generates a complete answer. It never returns an error: any model
// failure is reported inside the returned text.
func (s *Synthesizer) Answer(ctx context.Context, question string, history []Turn, ragContext string) string {
	log := s.logger(ctx)
	start := time.Now()

	msgs := s.buildMessages(ctx, question, history, ragContext)
	msg, err := s.model.Generate(tracing.StartChatModelRun(ctx, "medchat.answer"), msgs, s.options()...)
	if err != nil {
		log.Error("answer: generation failed", slog.Any("error", err))
		return fallbackPrefix + err.Error()
	}
	if msg == nil {
		log.Error("answer: model returned no message")
		return fallbackPrefix + "empty model response"
	}

	log.Info("answer: generated",
		slog.Duration("elapsed", time.Since(start)),
		slog.Bool("context_used", ragContext != ""),
	)
	return strings.TrimSpace(msg.Content)
}

// buildMessages assembles [system, ...history, user]. History is cut to the
// most recent turns, each truncated, then trimmed to the token budget.
func (s *Synthesizer) buildMessages(ctx context.Context, question string, history []Turn, ragContext string) []*schema.Message {
	system := schema.SystemMessage(BuildSystemPrompt(ragContext))
	user := schema.UserMessage(question)

	if len(history) > s.historyTurns {
		history = history[len(history)-s.historyTurns:]
	}
	historyMsgs := make([]*schema.Message, 0, len(history))
	for _, t := range history {
		content := truncateRunes(t.Content, s.historyChars)
		if t.Role == RoleAssistant {
			historyMsgs = append(historyMsgs, schema.AssistantMessage(content, nil))
		} else {
			historyMsgs = append(historyMsgs, schema.UserMessage(content))
		}
	}

	before := len(historyMsgs)
	historyMsgs = budget.TrimHistory([]*schema.Message{system, user}, historyMsgs, s.maxContextTokens)
	if dropped := before - len(historyMsgs); dropped > 0 {
		s.logger(ctx).Warn("budget: dropped history turns to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(historyMsgs)),
			slog.Int("max_tokens", s.maxContextTokens),
		)
	}

	msgs := make([]*schema.Message, 0, len(historyMsgs)+2)
	msgs = append(msgs, system)
	msgs = append(msgs, historyMsgs...)
	msgs = append(msgs, user)
	if !budget.Fits(msgs, s.maxContextTokens) {
		s.logger(ctx).Warn("budget: prompt exceeds context window without history",
			slog.Int("estimated_tokens", budget.EstimateMessages(msgs)),
			slog.Int("max_tokens", s.maxContextTokens),
		)
	}
	return msgs
}

func (s *Synthesizer) options() []model.Option {
	if s.omitSampling {
		return nil
	}
	return []model.Option{
		model.WithTemperature(s.temperature),
		model.WithMaxTokens(s.maxTokens),
	}
}

func (s *Synthesizer) logger(ctx context.Context) *slog.Logger {
	return logging.FromContextOr(ctx, s.log)
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
