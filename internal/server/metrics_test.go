package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	s := newTestServer()
	reg, ok := s.cfg.MetricsGatherer.(*prometheus.Registry)
	if !ok {
		t.Fatal("test server gatherer is not a registry")
	}
	return s, reg
}

// gatheredValue returns the counter or gauge value of name{labels}.
func gatheredValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue(), true
			}
			return m.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_ObserveChat(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.observeChat("ask", outcomeOK, 2*time.Second)

	v, ok := gatheredValue(t, reg, "medchat_chat_requests_total", map[string]string{"endpoint": "ask", "outcome": "ok"})
	if !ok {
		t.Fatal(`medchat_chat_requests_total{endpoint="ask",outcome="ok"} not found`)
	}
	if v != 1 {
		t.Errorf("want counter=1, got %v", v)
	}
}

func Test_Metrics_ActiveStreamsGauge(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.chatActiveStreams.Inc()
	s.metrics.chatActiveStreams.Inc()

	v, ok := gatheredValue(t, reg, "medchat_chat_active_streams", nil)
	if !ok {
		t.Fatal("medchat_chat_active_streams not found in gathered metrics")
	}
	if v != 2 {
		t.Errorf("want active_streams=2, got %v", v)
	}
}

func Test_Metrics_InstrumentRecordsStatus(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	h := s.metrics.instrument("status", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))

	v, ok := gatheredValue(t, reg, "medchat_http_requests_total",
		map[string]string{"method": "GET", labelHandler: "status", "code": "418"})
	if !ok || v != 1 {
		t.Errorf("want one 418 recorded for handler=status, got %v (found=%v)", v, ok)
	}
}

func Test_Metrics_StreamOutcomeRecorded(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)
	s.pipeline = &fakePipeline{stream: streamOf(t)}

	s.handleStream(httptest.NewRecorder(), post("/api/stream", `{"question":"What is flu?"}`))

	if v, _ := gatheredValue(t, reg, "medchat_chat_requests_total",
		map[string]string{"endpoint": "stream", "outcome": "ok"}); v != 1 {
		t.Errorf("want one ok stream, got %v", v)
	}
	if v, _ := gatheredValue(t, reg, "medchat_chat_active_streams", nil); v != 0 {
		t.Errorf("active streams not released: %v", v)
	}
}
