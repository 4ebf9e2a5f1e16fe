// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMGenerationDuration tracks answer generation duration.
	LLMGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_generation_duration_seconds",
			Help:    "LLM answer generation duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// RetrievalConfidence tracks the confidence score of each retrieval.
	RetrievalConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rag_retrieval_confidence",
			Help:    "Confidence score computed from retrieval similarities",
			Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
		},
	)

	// EscalationsTotal tracks conversations handed to a human, by reason.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_escalations_total",
			Help: "Conversations escalated to a human agent",
		},
		[]string{"reason"},
	)

	// EmbeddingFailuresTotal tracks embedding calls that fell back to a zero vector.
	EmbeddingFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_failures_total",
			Help: "Embedding calls that degraded to a zero vector",
		},
		[]string{"model"},
	)

	// EmbeddingCacheLookups tracks embedding cache hits and misses.
	EmbeddingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_cache_lookups_total",
			Help: "Embedding cache lookups",
		},
		[]string{"result"},
	)

	// IngestedChunksTotal tracks chunks written to the knowledge store.
	IngestedChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knowledge_ingested_chunks_total",
			Help: "Knowledge chunks written, by source kind",
		},
		[]string{"kind"},
	)

	// EventsPublishedTotal tracks conversation events published to NATS.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_events_published_total",
			Help: "Conversation events published to the event stream",
		},
		[]string{"type", "status"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"tenant_id"},
	)

	// MessagesTotal tracks total messages appended to the ledger.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"tenant_id", "role"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordGeneration records metrics for an LLM completion.
func RecordGeneration(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMGenerationDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordRetrieval records the confidence of a retrieval.
func RecordRetrieval(confidence float64) {
	RetrievalConfidence.Observe(confidence)
}

// RecordEscalation records an escalation to a human agent.
func RecordEscalation(reason string) {
	EscalationsTotal.WithLabelValues(reason).Inc()
}

// RecordEmbeddingFailure records an embedding call that degraded.
func RecordEmbeddingFailure(model string) {
	EmbeddingFailuresTotal.WithLabelValues(model).Inc()
}

// RecordCacheLookup records an embedding cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	EmbeddingCacheLookups.WithLabelValues(result).Inc()
}

// RecordIngest records chunks written for a document.
func RecordIngest(kind string, chunks int) {
	IngestedChunksTotal.WithLabelValues(kind).Add(float64(chunks))
}

// RecordEvent records a conversation event publish attempt.
func RecordEvent(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}
