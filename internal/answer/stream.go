package answer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/medchat-go/internal/tracing"
)

// errConsumed is reported when a stream is ranged over a second time.
var errConsumed = errors.New("answer: stream already consumed")

// Frame is one unit of a streamed answer. Exactly one of Token, Done or Err
// is meaningful.
type Frame struct {
	Token string
	Done  bool
	Err   error
}

// IsTerminal reports whether f ends the stream.
func (f Frame) IsTerminal() bool {
	return f.Done || f.Err != nil
}

// Wire renders f as a server-sent event.
func (f Frame) Wire() string {
	var payload any
	switch {
	case f.Err != nil:
		payload = struct {
			Error string `json:"error"`
		}{f.Err.Error()}
	case f.Done:
		payload = struct {
			Done bool `json:"done"`
		}{true}
	default:
		payload = struct {
			Token string `json:"token"`
		}{f.Token}
	}
	// Marshal of these shapes cannot fail.
	b, _ := json.Marshal(payload)
	return "data: " + string(b) + "\n\n"
}

// Stream returns a lazy sequence of frames for question. Nothing is sent to
// the model until the sequence is ranged over. The sequence yields zero or
// more token frames followed by exactly one done or error frame. Stopping
// the range early cancels the model call and closes the underlying reader.
//
// Streams carry no conversation history. The returned sequence may be
// consumed once; a second range yields a single error frame.
func (s *Synthesizer) Stream(ctx context.Context, question, ragContext string) iter.Seq[Frame] {
	var used atomic.Bool
	return func(yield func(Frame) bool) {
		if used.Swap(true) {
			yield(Frame{Err: errConsumed})
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		log := s.logger(ctx)

		msgs := []*schema.Message{
			schema.SystemMessage(BuildSystemPrompt(ragContext)),
			schema.UserMessage(question),
		}
		sr, err := s.model.Stream(tracing.StartChatModelRun(ctx, "medchat.stream"), msgs, s.options()...)
		if err != nil {
			log.Error("answer: stream failed", slog.Any("error", err))
			yield(Frame{Err: err})
			return
		}
		defer sr.Close()

		tokens := 0
		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				log.Debug("answer: stream complete", slog.Int("tokens", tokens))
				yield(Frame{Done: true})
				return
			}
			if err != nil {
				log.Error("answer: stream receive error", slog.Any("error", err))
				yield(Frame{Err: err})
				return
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			tokens++
			if !yield(Frame{Token: msg.Content}) {
				log.Debug("answer: stream abandoned by consumer", slog.Int("tokens", tokens))
				return
			}
		}
	}
}
