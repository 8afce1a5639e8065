package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects application metrics.
type Metrics interface {
	ObserveRequest(outcome string, duration time.Duration)
	ObserveStage(stage string, duration time.Duration)
	IncEmbeddingCall(purpose, status string)
	IncGeneration(backend, outcome string)
	IncCacheLoad(status string)
	SetIndexSize(chunks int)
}

// Stage names used with ObserveStage.
const (
	StageIndex    = "index"
	StageEmbed    = "embed_query"
	StageRank     = "rank"
	StageGenerate = "generate"
)

// PrometheusMetrics implements Metrics with client_golang collectors.
type PrometheusMetrics struct {
	requestLatency *prometheus.HistogramVec
	stageLatency   *prometheus.HistogramVec
	embeddingCalls *prometheus.CounterVec
	generations    *prometheus.CounterVec
	cacheLoads     *prometheus.CounterVec
	indexSize      prometheus.Gauge
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsletter_rag_request_duration_seconds",
			Help:    "Latency of answered questions",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"outcome"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsletter_rag_stage_duration_seconds",
			Help:    "Latency of individual pipeline stages",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60, 300},
		}, []string{"stage"}),
		embeddingCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_rag_embedding_calls_total",
			Help: "Embedding backend calls by purpose and status",
		}, []string{"purpose", "status"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_rag_generation_attempts_total",
			Help: "Generation attempts by backend and outcome",
		}, []string{"backend", "outcome"}),
		cacheLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_rag_cache_loads_total",
			Help: "Embedding cache loads by result",
		}, []string{"status"}),
		indexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newsletter_rag_index_chunks",
			Help: "Number of embedded chunks held in memory",
		}),
	}

	reg.MustRegister(m.Collectors()...)
	return m
}

// Collectors exposes all collectors.
func (m *PrometheusMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestLatency, m.stageLatency, m.embeddingCalls, m.generations, m.cacheLoads, m.indexSize,
	}
}

func (m *PrometheusMetrics) ObserveRequest(outcome string, d time.Duration) {
	m.requestLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *PrometheusMetrics) ObserveStage(stage string, d time.Duration) {
	m.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *PrometheusMetrics) IncEmbeddingCall(purpose, status string) {
	m.embeddingCalls.WithLabelValues(purpose, status).Inc()
}

func (m *PrometheusMetrics) IncGeneration(backend, outcome string) {
	m.generations.WithLabelValues(backend, outcome).Inc()
}

func (m *PrometheusMetrics) IncCacheLoad(status string) {
	m.cacheLoads.WithLabelValues(status).Inc()
}

func (m *PrometheusMetrics) SetIndexSize(chunks int) {
	m.indexSize.Set(float64(chunks))
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) ObserveRequest(string, time.Duration) {}
func (NopMetrics) ObserveStage(string, time.Duration)   {}
func (NopMetrics) IncEmbeddingCall(string, string)      {}
func (NopMetrics) IncGeneration(string, string)         {}
func (NopMetrics) IncCacheLoad(string)                  {}
func (NopMetrics) SetIndexSize(int)                     {}
