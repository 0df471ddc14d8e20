package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PostingMetrics captures ERP posting health and the pending-posting sweeper.
type PostingMetrics struct {
	callDuration  *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	sweeperRuns   prometheus.Counter
	sweeperErrors prometheus.Counter
	markedUnknown prometheus.Counter
}

var (
	postingMetricsOnce sync.Once
	postingMetrics     *PostingMetrics
)

// Posting returns the singleton posting metrics registry.
func Posting() *PostingMetrics {
	return PostingWithConfig(Config{})
}

// PostingWithConfig returns the singleton posting metrics registry using config labels.
func PostingWithConfig(cfg Config) *PostingMetrics {
	postingMetricsOnce.Do(func() {
		postingMetrics = newPostingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return postingMetrics
}

// ResetPostingMetricsForTest resets the posting metrics singleton for tests.
func ResetPostingMetricsForTest() {
	postingMetricsOnce = sync.Once{}
	postingMetrics = nil
}

func newPostingMetrics(registerer prometheus.Registerer, cfg Config) *PostingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	callDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "millroll_erp_call_duration_seconds",
		Help:        "Latency of synchronous ERP calls by posting kind.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		ConstLabels: labels,
	}, []string{"kind"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "millroll_erp_posting_outcomes_total",
		Help:        "ERP posting journal outcomes by kind and status.",
		ConstLabels: labels,
	}, []string{"kind", "status"})
	sweeperRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "millroll_posting_sweeper_runs_total",
		Help:        "Pending posting sweeper runs.",
		ConstLabels: labels,
	})
	sweeperErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "millroll_posting_sweeper_errors_total",
		Help:        "Pending posting sweeper failures.",
		ConstLabels: labels,
	})
	markedUnknown := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "millroll_posting_marked_unknown_total",
		Help:        "Stale pending postings moved to unknown for operator follow-up.",
		ConstLabels: labels,
	})

	registerer.MustRegister(callDuration, outcomes, sweeperRuns, sweeperErrors, markedUnknown)

	return &PostingMetrics{
		callDuration:  callDuration,
		outcomes:      outcomes,
		sweeperRuns:   sweeperRuns,
		sweeperErrors: sweeperErrors,
		markedUnknown: markedUnknown,
	}
}

// ObserveCall records ERP call latency in seconds.
func (m *PostingMetrics) ObserveCall(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.callDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *PostingMetrics) IncOutcome(kind, status string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(kind, status).Inc()
}

func (m *PostingMetrics) IncSweeperRun() {
	if m == nil {
		return
	}
	m.sweeperRuns.Inc()
}

func (m *PostingMetrics) IncSweeperError() {
	if m == nil {
		return
	}
	m.sweeperErrors.Inc()
}

func (m *PostingMetrics) AddMarkedUnknown(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.markedUnknown.Add(float64(n))
}
