// Package metrics provides Prometheus metrics for the answer and indexing pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "video_qa"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Answer metrics
	AnswersTotal      *prometheus.CounterVec
	AnswerLatency     *prometheus.HistogramVec
	SummaryFastPath   prometheus.Counter
	EmptyRetrievals   prometheus.Counter
	UnknownCitations  prometheus.Counter
	RetrievedChunks   prometheus.Histogram
	UpstreamErrors    *prometheus.CounterVec
	RejectedQuestions prometheus.Counter

	// Indexing metrics
	VideosIndexed      *prometheus.CounterVec
	ChunksIndexed      prometheus.Counter
	IndexingDuration   prometheus.Histogram
	EmbeddingFallbacks *prometheus.CounterVec

	// Analytics publish metrics
	AnalyticsPublished *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on reg. Call it once per registry;
// a second call on the same registry panics. A nil *Metrics records nothing.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AnswersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Total number of answers produced, by conversational mode",
		}, []string{"mode"}),
		AnswerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_latency_seconds",
			Help:      "End-to-end answer latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}, []string{"mode"}),
		SummaryFastPath: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_fast_path_total",
			Help:      "Answers served from a cached video summary",
		}),
		EmptyRetrievals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_retrievals_total",
			Help:      "Questions for which the vector index returned no matches",
		}),
		UnknownCitations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_citations_total",
			Help:      "Timestamp citations in answers that match no retrieved source",
		}),
		RetrievedChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_chunks",
			Help:      "Number of chunks placed into the answer context",
			Buckets:   []float64{0, 1, 3, 5, 10, 20, 50, 100},
		}),
		UpstreamErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed collaborator calls by stage and provider",
		}, []string{"stage", "provider"}),
		RejectedQuestions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_questions_total",
			Help:      "Questions rejected as malformed input",
		}),

		VideosIndexed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "videos_indexed_total",
			Help:      "Indexing runs by outcome",
		}, []string{"outcome"}),
		ChunksIndexed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks upserted into the vector index",
		}),
		IndexingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "indexing_duration_seconds",
			Help:      "Duration of a full video indexing run",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		EmbeddingFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_fallbacks_total",
			Help:      "Indexing runs that switched to the alternate embedding provider",
		}, []string{"from", "to"}),

		AnalyticsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_published_total",
			Help:      "Analytics records written, by sink and result",
		}, []string{"sink", "result"}),
	}
}

// RecordAnswer records a produced answer.
func (m *Metrics) RecordAnswer(mode string, latencySeconds float64, chunks int, usedSummary bool) {
	if m == nil {
		return
	}
	m.AnswersTotal.WithLabelValues(mode).Inc()
	m.AnswerLatency.WithLabelValues(mode).Observe(latencySeconds)
	m.RetrievedChunks.Observe(float64(chunks))
	if usedSummary {
		m.SummaryFastPath.Inc()
	}
}

// RecordEmptyRetrieval records a zero-match vector query.
func (m *Metrics) RecordEmptyRetrieval() {
	if m == nil {
		return
	}
	m.EmptyRetrievals.Inc()
}

// RecordUnknownCitations records citations that point at no retrieved source.
func (m *Metrics) RecordUnknownCitations(n int) {
	if m == nil {
		return
	}
	m.UnknownCitations.Add(float64(n))
}

// RecordUpstreamError records a failed embedding, vector index or generation call.
func (m *Metrics) RecordUpstreamError(stage, provider string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(stage, provider).Inc()
}

// RecordRejectedQuestion records a question rejected as malformed.
func (m *Metrics) RecordRejectedQuestion() {
	if m == nil {
		return
	}
	m.RejectedQuestions.Inc()
}

// RecordIndexing records a finished indexing run.
func (m *Metrics) RecordIndexing(err error, chunks int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.IndexingDuration.Observe(durationSeconds)
	if err != nil {
		m.VideosIndexed.WithLabelValues("failed").Inc()
		return
	}
	m.VideosIndexed.WithLabelValues("success").Inc()
	m.ChunksIndexed.Add(float64(chunks))
}

// RecordEmbeddingFallback records a switch to the alternate embedding provider.
func (m *Metrics) RecordEmbeddingFallback(from, to string) {
	if m == nil {
		return
	}
	m.EmbeddingFallbacks.WithLabelValues(from, to).Inc()
}

// RecordAnalytics records an analytics write to a sink.
func (m *Metrics) RecordAnalytics(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AnalyticsPublished.WithLabelValues(sink, result).Inc()
}
