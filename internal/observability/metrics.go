package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PipelineRuns     *prometheus.CounterVec
	StageFailures    *prometheus.CounterVec
	StageLatency     *prometheus.HistogramVec
	Online           prometheus.Gauge
	HealthChecks     *prometheus.CounterVec
	CacheEntries     prometheus.Gauge
	CaptureEvents    *prometheus.CounterVec
	TranscriptPeers  prometheus.Gauge
	BackendFailovers prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the instruments on reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PipelineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Voice pipeline runs by outcome.",
		}, []string{"outcome"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_failures_total",
			Help:      "Pipeline stage failures by stage.",
		}, []string{"stage"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_latency_ms",
			Help:      "Remote pipeline stage latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}, []string{"stage"}),
		Online: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_online",
			Help:      "1 when the remote service is considered reachable.",
		}),
		HealthChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Health checks by result.",
		}, []string{"result"}),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "response_cache_entries",
			Help:      "Exchanges currently held in the offline response cache.",
		}),
		CaptureEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_events_total",
			Help:      "Capture controller events by type.",
		}, []string{"event"}),
		TranscriptPeers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcript_ws_clients",
			Help:      "Connected transcript websocket clients.",
		}),
		BackendFailovers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_failovers_total",
			Help:      "Switches from the primary to the fallback remote service.",
		}),
	}
}

func (m *Metrics) ObservePipelineRun(outcome string) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStageFailure(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveStageLatency(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.Online.Set(1)
		return
	}
	m.Online.Set(0)
}

func (m *Metrics) ObserveHealthCheck(healthy bool) {
	if m == nil {
		return
	}
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	m.HealthChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

func (m *Metrics) ObserveCaptureEvent(event string) {
	if m == nil {
		return
	}
	m.CaptureEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) AddTranscriptPeers(delta int) {
	if m == nil {
		return
	}
	m.TranscriptPeers.Add(float64(delta))
}

func (m *Metrics) ObserveBackendFailover() {
	if m == nil {
		return
	}
	m.BackendFailovers.Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsHandlerFor serves a specific gatherer, used when metrics live on a private registry.
func MetricsHandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
