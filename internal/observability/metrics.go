package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Profiles          prometheus.Gauge
	JobActive         prometheus.Gauge
	JobsTotal         *prometheus.CounterVec
	JobDuration       prometheus.Histogram
	SynthesisRequests *prometheus.CounterVec
	SynthesisDuration prometheus.Histogram
	ChunkFailures     prometheus.Counter
	RecognizerChunks  *prometheus.CounterVec
	RecognizerQueue   prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Profiles: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profiles",
			Help:      "Number of stored voice profiles.",
		}),
		JobActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_job_active",
			Help:      "1 while a profile training job holds the slot.",
		}),
		JobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_jobs_total",
			Help:      "Training jobs by outcome.",
		}, []string{"outcome"}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_job_seconds",
			Help:      "Wall-clock duration of profile training jobs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		SynthesisRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_requests_total",
			Help:      "Synthesis requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		SynthesisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_seconds",
			Help:      "Wall-clock duration of synthesis requests.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		ChunkFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_chunk_failures_total",
			Help:      "Chunks skipped during long-form synthesis.",
		}),
		RecognizerChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_chunks_total",
			Help:      "Audio chunks by disposition (accepted, dropped).",
		}, []string{"disposition"}),
		RecognizerQueue: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recognizer_queue_depth",
			Help:      "Audio chunks buffered for the recognition consumer.",
		}),
	}
}

func (m *Metrics) ObserveJobDuration(d time.Duration) {
	m.JobDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSynthesisDuration(d time.Duration) {
	m.SynthesisDuration.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
