package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/medchat-go/internal/logging"
)

// probeTimeout is the maximum time allowed for each individual dependency
// probe during a readiness check. Kept short so /api/ready responds quickly
// even when a dependency is slow rather than unreachable.
const probeTimeout = 5 * time.Second

// Pinger is the interface implemented by any dependency that can report its
// own reachability. Each implementation must return nil when the dependency
// is healthy and a descriptive error otherwise.
// Implementations must be safe to call from multiple goroutines.
type Pinger interface {
	// Ping checks whether the dependency is reachable within the given context.
	Ping(ctx context.Context) error

	// Name returns a short label used in readiness responses
	// (e.g. "groq", "qdrant", "index").
	Name() string
}

// CheckResult holds the per-dependency result of a readiness probe.
type CheckResult struct {
	// Name is the dependency label.
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error contains the failure reason when OK is false.
	Error string `json:"error,omitempty"`
}

// ReadyReport is the JSON body returned by GET /api/ready.
type ReadyReport struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks contains the per-dependency probe results in probe order.
	Checks []CheckResult `json:"checks"`
}

// MultiPinger aggregates one or more Pinger implementations and reports
// the combined readiness of all dependencies.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger from the provided list of Pingers.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping runs all registered probes sequentially and returns the first error
// encountered, or nil if all probes succeed.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// Name returns a combined label for logging purposes.
func (m *MultiPinger) Name() string { return "multi" }

// Check runs every probe, each bounded by probeTimeout, and reports all of
// them. Failures are logged at Warn.
func (m *MultiPinger) Check(ctx context.Context) ReadyReport {
	log := logging.FromContext(ctx)
	report := ReadyReport{Ready: true, Checks: []CheckResult{}}

	for _, p := range m.pingers {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.Ping(probeCtx)
		cancel()

		check := CheckResult{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			report.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		report.Checks = append(report.Checks, check)
	}
	return report
}

// handleHealth handles GET /api/health for liveness checks. It never
// touches a dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady handles GET /api/ready: 200 when every dependency answers,
// 503 otherwise. Unlike /api/health it reflects actual dependency state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	report := s.pingers.Check(r.Context())

	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, report)
}
