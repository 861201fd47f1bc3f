package server

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/medchat-go/internal/rag"
)

type fakeHealthCheck struct{ err error }

func (f fakeHealthCheck) HealthCheck(context.Context) error { return f.err }

// pingModel is a model.BaseChatModel that counts Generate calls.
type pingModel struct {
	calls int
	err   error
}

func (m *pingModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage("pong", nil), nil
}

func (m *pingModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestLLMPinger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		hc        fakeHealthCheck
		useHC     bool
		model     *pingModel
		wantErr   bool
		wantCalls int
	}{
		{"health check ok skips generate", fakeHealthCheck{}, true, &pingModel{}, false, 0},
		{"health check failure", fakeHealthCheck{err: errors.New("401")}, true, &pingModel{}, true, 0},
		{"generate fallback", fakeHealthCheck{}, false, &pingModel{}, false, 1},
		{"generate fallback failure", fakeHealthCheck{}, false, &pingModel{err: errors.New("down")}, true, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var p *LLMPinger
			if tc.useHC {
				p = NewLLMPinger(tc.hc, tc.model, "groq")
			} else {
				p = NewLLMPinger(nil, tc.model, "ark")
			}
			err := p.Ping(t.Context())
			if (err != nil) != tc.wantErr {
				t.Errorf("Ping() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.model.calls != tc.wantCalls {
				t.Errorf("Generate calls = %d, want %d", tc.model.calls, tc.wantCalls)
			}
		})
	}
}

func TestLLMPinger_NothingToProbe(t *testing.T) {
	t.Parallel()
	if err := NewLLMPinger(nil, nil, "x").Ping(t.Context()); err == nil {
		t.Error("expected error with neither health check nor model")
	}
}

type staticStatus rag.Status

func (s staticStatus) Status() rag.Status { return rag.Status(s) }

func TestIndexPinger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  rag.Status
		wantErr bool
	}{
		{"not loaded", rag.Status{}, true},
		{"loaded", rag.Status{Initialized: true, IndexSize: 3, ChunksCount: 3}, false},
		{"size mismatch", rag.Status{Initialized: true, IndexSize: 2, ChunksCount: 3}, true},
	}
	for _, tc := range tests {
		p := NewIndexPinger(staticStatus(tc.status))
		if err := p.Ping(t.Context()); (err != nil) != tc.wantErr {
			t.Errorf("%s: Ping() error = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestMultiPinger_FirstFailureNamed(t *testing.T) {
	t.Parallel()
	m := NewMultiPinger(
		&fakePinger{name: "llm"},
		&fakePinger{name: "qdrant", err: errors.New("refused")},
		&fakePinger{name: "index", err: errors.New("never reached")},
	)
	err := m.Ping(t.Context())
	if err == nil || err.Error() != "qdrant: refused" {
		t.Errorf("Ping() = %v, want qdrant: refused", err)
	}
}
