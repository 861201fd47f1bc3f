package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// okHandler is a trivial handler used to verify that allowed requests reach
// the downstream handler.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

// hit sends one request from remoteAddr through h.
func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(100, 5, nil, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	for i := range 5 {
		if w := hit(h, "127.0.0.1:12345"); w.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

// TestRateLimit_RejectsOverBurst verifies the 429 response: JSON error body,
// Retry-After in whole seconds and the rejection counter.
func TestRateLimit_RejectsOverBurst(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rejected := prometheus.NewCounter(prometheus.CounterOpts{Name: "rejected_total"})
	reg.MustRegister(rejected)
	// One token per 10s: the second request waits about 10s.
	rl, stop := newRateLimiter(0.1, 1, rejected, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	if w := hit(h, "10.0.0.2:1234"); w.Code != http.StatusOK {
		t.Fatalf("first request: %d", w.Code)
	}
	w := hit(h, "10.0.0.2:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || secs < 9 || secs > 10 {
		t.Errorf("Retry-After = %q, want about 10", w.Header().Get("Retry-After"))
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body.Error != "rate limit exceeded" {
		t.Errorf("body = %+v, err = %v", body, err)
	}
	if got, _ := gatheredValue(t, reg, "rejected_total", nil); got != 1 {
		t.Errorf("rejected counter = %v, want 1", got)
	}

	// A rejected request must not consume the token it waited for.
	if _, ok := rl.admit("10.0.0.2"); ok {
		t.Error("bucket refilled too early")
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, nil, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	for range 5 {
		hit(h, "192.168.1.1:1111")
	}
	if w := hit(h, "192.168.1.2:2222"); w.Code != http.StatusOK {
		t.Errorf("IP B: expected 200, got %d, should be independent of IP A", w.Code)
	}
}

func TestRateLimit_EvictsIdleBuckets(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, nil, slog.Default())
	defer stop()
	rl.getLimiter("10.0.0.1")
	rl.getLimiter("10.0.0.2")

	rl.evict(time.Now())
	if n := rl.size(); n != 2 {
		t.Fatalf("fresh buckets evicted: %d left", n)
	}
	rl.evict(time.Now().Add(limiterIdleTTL + time.Second))
	if n := rl.size(); n != 0 {
		t.Errorf("idle buckets kept: %d left", n)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		wantIP     string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"10.0.0.1:80", "10.0.0.1"},
		{"[::1]:8080", "::1"},
		{"noport", "noport"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.wantIP {
			t.Errorf("remoteAddr=%q: expected %q, got %q", tc.remoteAddr, tc.wantIP, got)
		}
	}
}
