package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/medchat-go/internal/intent"
)

// metrics holds the pipeline's Prometheus collectors. A nil *metrics is
// valid and records nothing.
type metrics struct {
	// questionsTotal counts classified questions by intent and mode.
	questionsTotal *prometheus.CounterVec
	// retrievalResults records how many chunks survived the score threshold.
	retrievalResults prometheus.Histogram
	// retrievalEmpty counts medical questions answered without references.
	retrievalEmpty prometheus.Counter
	// answerDurationSeconds records retrieval plus synthesis time for
	// buffered medical answers.
	answerDurationSeconds prometheus.Histogram
}

// deliveryModes are the values of the questions_total "mode" label.
var deliveryModes = []string{"buffered", "stream"}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	m := &metrics{
		questionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medchat",
			Subsystem: "pipeline",
			Name:      "questions_total",
			Help:      "Questions handled, partitioned by classified intent and delivery mode.",
		}, []string{"intent", "mode"}),

		retrievalResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medchat",
			Subsystem: "rag",
			Name:      "results",
			Help:      "Knowledge-base chunks kept per medical question after score filtering.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),

		retrievalEmpty: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "medchat",
			Subsystem: "rag",
			Name:      "empty_total",
			Help:      "Medical questions for which retrieval produced no context.",
		}),

		answerDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medchat",
			Subsystem: "pipeline",
			Name:      "answer_duration_seconds",
			Help:      "Retrieval plus synthesis time for buffered medical answers.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),
	}

	// Export every intent/mode series at zero so rates exist before the
	// first question of each kind.
	for _, in := range intent.All {
		for _, mode := range deliveryModes {
			m.questionsTotal.WithLabelValues(string(in), mode)
		}
	}
	return m
}

func (m *metrics) observeIntent(in intent.Intent, mode string) {
	if m == nil {
		return
	}
	m.questionsTotal.WithLabelValues(string(in), mode).Inc()
}

func (m *metrics) observeRetrieval(n int) {
	if m == nil {
		return
	}
	m.retrievalResults.Observe(float64(n))
	if n == 0 {
		m.retrievalEmpty.Inc()
	}
}

func (m *metrics) observeAnswer(d time.Duration) {
	if m == nil {
		return
	}
	m.answerDurationSeconds.Observe(d.Seconds())
}
