package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/medchat-go/internal/answer"
	"github.com/54b3r/medchat-go/internal/logging"
	"github.com/54b3r/medchat-go/internal/pipeline"
	"github.com/54b3r/medchat-go/internal/store"
)

// maxRequestBytes bounds the JSON body of question requests.
const maxRequestBytes = 1 << 20

// Request outcomes recorded by the chat metrics.
const (
	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeTimeout  = "timeout"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

// decodeAsk parses and normalises an askRequest. It writes a 400 and returns
// false on failure.
func (s *Server) decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		req.ChatID = uuid.NewString()
	}
	return req, true
}

// handleAsk handles POST /api/ask: a complete answer as one JSON document.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := s.decodeAsk(w, r)
	if !ok {
		s.metrics.observeChat("ask", outcomeInvalid, time.Since(start))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	log := logging.FromContext(ctx).With(slog.String("chat_id", req.ChatID))

	history := req.History
	if history == nil {
		history = s.recentTurns(ctx, req.ChatID)
	}

	res, err := s.pipeline.Handle(ctx, req.Question, history)
	if err != nil {
		if errors.Is(err, pipeline.ErrValidation) {
			s.metrics.observeChat("ask", outcomeInvalid, time.Since(start))
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		s.metrics.observeChat("ask", outcomeError, time.Since(start))
		log.Error("ask failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	s.persist(ctx, req.ChatID, req.Question, res.Answer, string(res.Intent))
	s.metrics.observeChat("ask", ctxOutcome(ctx), time.Since(start))
	log.Info("answered",
		slog.String("question_type", string(res.Intent)),
		slog.Bool("context_used", res.ContextUsed),
	)

	writeJSON(w, r, http.StatusOK, askResponse{
		Answer:       res.Answer,
		QuestionType: string(res.Intent),
		ContextUsed:  res.ContextUsed,
		ChatID:       req.ChatID,
	})
}

// handleStream handles POST /api/stream. Medical questions are streamed as
// Server-Sent Events, one JSON payload per frame; conversational intents get
// their fixed reply as a single JSON document.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := s.decodeAsk(w, r)
	if !ok {
		s.metrics.observeChat("stream", outcomeInvalid, time.Since(start))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	log := logging.FromContext(ctx).With(slog.String("chat_id", req.ChatID))

	res, err := s.pipeline.HandleStream(ctx, req.Question)
	if err != nil {
		if errors.Is(err, pipeline.ErrValidation) {
			s.metrics.observeChat("stream", outcomeInvalid, time.Since(start))
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		s.metrics.observeChat("stream", outcomeError, time.Since(start))
		log.Error("stream failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	if res.Frames == nil {
		s.persist(ctx, req.ChatID, req.Question, res.Static, string(res.Intent))
		s.metrics.observeChat("stream", outcomeOK, time.Since(start))
		writeJSON(w, r, http.StatusOK, askResponse{
			Answer:       res.Static,
			QuestionType: string(res.Intent),
			ChatID:       req.ChatID,
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Chat-Id", req.ChatID)
	w.Header().Set("X-Question-Type", string(res.Intent))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()

	var (
		full    strings.Builder
		outcome = outcomeError
	)
	for frame := range res.Frames {
		if _, err := io.WriteString(w, frame.Wire()); err != nil {
			log.Warn("stream: client write failed", slog.Any("error", err))
			outcome = outcomeCanceled
			break
		}
		flusher.Flush()

		switch {
		case frame.Done:
			outcome = outcomeOK
			s.persist(ctx, req.ChatID, req.Question, strings.TrimSpace(full.String()), string(res.Intent))
		case frame.Err != nil:
			outcome = ctxOutcome(ctx)
			if outcome == outcomeOK {
				outcome = outcomeError
			}
		default:
			full.WriteString(frame.Token)
		}
	}

	s.metrics.observeChat("stream", outcome, time.Since(start))
	log.Info("streamed",
		slog.String("outcome", outcome),
		slog.Bool("context_used", res.ContextUsed),
		slog.Int("chars", full.Len()),
	)
}

// handleChatHistory handles GET /api/chats/{id}.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, "chat history is disabled")
		return
	}
	id := r.PathValue("id")
	msgs, err := s.history.History(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("history read failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if len(msgs) == 0 {
		writeError(w, r, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, r, http.StatusOK, chatResponse{ChatID: id, Messages: msgs})
}

// recentTurns loads the stored tail of a chat as synthesizer history. Read
// failures are logged and yield no history.
func (s *Server) recentTurns(ctx context.Context, chatID string) []answer.Turn {
	if s.history == nil {
		return nil
	}
	msgs, err := s.history.Recent(ctx, chatID, s.cfg.HistoryTurns)
	if err != nil {
		logging.FromContext(ctx).Warn("history: load failed, continuing without",
			slog.Any("error", err),
		)
		return nil
	}
	turns := make([]answer.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := answer.RoleUser
		if m.Role == store.RoleAssistant {
			role = answer.RoleAssistant
		}
		turns = append(turns, answer.Turn{Role: role, Content: m.Content, Timestamp: m.CreatedAt})
	}
	return turns
}

// persist appends an exchange to the chat history. Failures are logged and
// never fail the request.
func (s *Server) persist(ctx context.Context, chatID, question, reply, questionType string) {
	if s.history == nil || reply == "" {
		return
	}
	// The exchange is recorded even if the client went away mid-request.
	if err := s.history.AppendExchange(context.WithoutCancel(ctx), chatID, question, reply, questionType); err != nil {
		logging.FromContext(ctx).Warn("history: append failed", slog.Any("error", err))
	}
}

// ctxOutcome maps the request context state to a metrics outcome.
func ctxOutcome(ctx context.Context) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return outcomeTimeout
	case ctx.Err() != nil:
		return outcomeCanceled
	}
	return outcomeOK
}
