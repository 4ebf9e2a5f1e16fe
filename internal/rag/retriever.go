package rag

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/capitalize-ai/supportdesk/internal/embedding"
	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/store"
	"github.com/capitalize-ai/supportdesk/pkg/metrics"
	"github.com/capitalize-ai/supportdesk/pkg/tracing"
)

// Retrieval is the outcome of one query against a tenant's knowledge.
type Retrieval struct {
	// Results are the neighbours at or above the relevance floor, best first.
	Results []model.RetrievalResult

	// Raw are all neighbours returned by the store, best first.
	Raw []model.RetrievalResult

	// Confidence is derived from Raw, not Results.
	Confidence float64
}

// Retriever embeds a query and finds the tenant's closest chunks.
type Retriever struct {
	embedder embedding.Provider
	store    store.KnowledgeStore
	topK     int
	floor    float64
	scale    float64
}

// NewRetriever creates a Retriever. The embedder should be degrading so that
// an embedding outage lowers confidence instead of failing the request.
func NewRetriever(embedder embedding.Provider, ks store.KnowledgeStore, opts Options) *Retriever {
	opts = opts.WithDefaults()
	return &Retriever{
		embedder: embedder,
		store:    ks,
		topK:     opts.TopK,
		floor:    opts.RelevanceFloor,
		scale:    opts.ConfidenceScale,
	}
}

// Retrieve returns the filtered and raw neighbours of query together with
// the retrieval confidence. Store errors are returned as is.
func (r *Retriever) Retrieve(ctx context.Context, tenantID, query string) (*Retrieval, error) {
	ctx, span := tracing.Start(ctx, "rag.retrieve", attribute.String("tenant_id", tenantID))
	defer span.End()

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, goerr.Wrap(err, "failed to embed query", goerr.V("tenant_id", tenantID))
	}

	raw, err := r.store.NearestNeighbors(ctx, tenantID, vector, r.topK)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, goerr.Wrap(err, "failed to search knowledge", goerr.V("tenant_id", tenantID))
	}

	results := make([]model.RetrievalResult, 0, len(raw))
	for _, res := range raw {
		if res.Similarity >= r.floor {
			results = append(results, res)
		}
	}

	confidence := Confidence(raw, r.scale)
	metrics.RecordRetrieval(confidence)
	span.SetAttributes(
		attribute.Int("rag.raw_results", len(raw)),
		attribute.Int("rag.results", len(results)),
		attribute.Float64("rag.confidence", confidence),
	)

	return &Retrieval{
		Results:    results,
		Raw:        raw,
		Confidence: confidence,
	}, nil
}

// Confidence is min(mean(similarity) * scale, 1) over results, clamped at 0.
// No results yield 0.
func Confidence(results []model.RetrievalResult, scale float64) float64 {
	if len(results) == 0 {
		return 0
	}

	var sum float64
	for _, r := range results {
		sum += r.Similarity
	}

	c := sum / float64(len(results)) * scale
	switch {
	case c > 1:
		return 1
	case c < 0:
		return 0
	}
	return c
}
