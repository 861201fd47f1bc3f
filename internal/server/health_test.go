package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	name string
	// err is returned by Ping(); nil means healthy.
	err error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer()
	s.pingers = NewMultiPinger(pingers...)
	return s
}

// TestHandleHealth_OK verifies that GET /api/health returns 200 with a JSON
// body containing {"status":"ok"}.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d, body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

// TestHandleReady covers the readiness status code and per-dependency
// results for healthy, partially failing and fully failing dependencies.
func TestHandleReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingers    []Pinger
		wantStatus int
		wantReady  bool
		wantOK     []bool
	}{
		{
			name:       "no pingers",
			wantStatus: http.StatusOK,
			wantReady:  true,
			wantOK:     []bool{},
		},
		{
			name:       "all healthy",
			pingers:    []Pinger{&fakePinger{name: "groq"}, &fakePinger{name: "qdrant"}},
			wantStatus: http.StatusOK,
			wantReady:  true,
			wantOK:     []bool{true, true},
		},
		{
			name:       "one failing",
			pingers:    []Pinger{&fakePinger{name: "groq"}, &fakePinger{name: "qdrant", err: errors.New("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     []bool{true, false},
		},
		{
			name:       "all failing",
			pingers:    []Pinger{&fakePinger{name: "groq", err: errors.New("timeout")}, &fakePinger{name: "index", err: errors.New("not loaded")}},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     []bool{false, false},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newReadyTestServer(tc.pingers...)
			w := httptest.NewRecorder()
			s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body: %s", w.Code, tc.wantStatus, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var resp ReadyReport
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Ready != tc.wantReady {
				t.Errorf("ready = %v, want %v", resp.Ready, tc.wantReady)
			}
			if resp.Checks == nil || len(resp.Checks) != len(tc.wantOK) {
				t.Fatalf("checks = %+v, want %d entries", resp.Checks, len(tc.wantOK))
			}
			for i, c := range resp.Checks {
				if c.Name != tc.pingers[i].Name() {
					t.Errorf("check %d name = %q, want probe order", i, c.Name)
				}
				if c.OK != tc.wantOK[i] {
					t.Errorf("check %q ok = %v, want %v", c.Name, c.OK, tc.wantOK[i])
				}
				if c.OK != (c.Error == "") {
					t.Errorf("check %q: error %q inconsistent with ok=%v", c.Name, c.Error, c.OK)
				}
			}
		})
	}
}

// TestMultiPinger_CheckAppliesProbeTimeout verifies that each probe runs
// under its own deadline.
func TestMultiPinger_CheckAppliesProbeTimeout(t *testing.T) {
	t.Parallel()

	var hasDeadline bool
	probe := pingerFunc(func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})
	report := NewMultiPinger(probe).Check(t.Context())
	if !report.Ready || !hasDeadline {
		t.Errorf("report = %+v, deadline set = %v", report, hasDeadline)
	}
}

// pingerFunc adapts a function to Pinger.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Name() string                   { return "func" }
func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
