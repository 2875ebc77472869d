package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recserve",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stage"},
	)

	RetrievalFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recserve",
			Name:      "retrieval_fallback_total",
			Help:      "Retrievals served from the static fallback source",
		},
		[]string{"reason", "index_version"},
	)

	RankModeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recserve",
			Name:      "rank_mode_total",
			Help:      "Rank requests by resulting mode",
		},
		[]string{"mode"},
	)

	RerankOutcomeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recserve",
			Name:      "rerank_outcome_total",
			Help:      "Rerank stage outcomes",
		},
		[]string{"outcome"}, // "applied" / "bypassed" / "rejected" / "timeout" / "error"
	)

	ExpansionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recserve",
			Name:      "expansion_cache_total",
			Help:      "Query expansion cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recserve",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recserve",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recserve",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	GeneratorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recserve",
			Name:      "generator_requests_total",
			Help:      "Total number of generative text requests",
		},
		[]string{"provider", "model", "status"},
	)

	GeneratorRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recserve",
			Name:      "generator_request_duration_seconds",
			Help:      "Generative text request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(RetrievalFallbackTotal)
	prometheus.MustRegister(RankModeTotal)
	prometheus.MustRegister(RerankOutcomeTotal)
	prometheus.MustRegister(ExpansionCacheTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(GeneratorRequestsTotal)
	prometheus.MustRegister(GeneratorRequestDuration)
	pipelineMetricsRegistered = true
}
