// Package embedding turns text into dense vectors for similarity search.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/capitalize-ai/supportdesk/pkg/logger"
	"github.com/capitalize-ai/supportdesk/pkg/metrics"
)

// DefaultDimensions is the vector size of the default embedding model.
const DefaultDimensions = 1536

// Provider embeds text.
type Provider interface {
	// Embed returns the vector for text. All vectors from one provider have
	// Dimensions() entries.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector size.
	Dimensions() int

	// Model returns the model identifier.
	Model() string
}

// Degrading wraps a Provider so that Embed never fails. When the wrapped
// provider errors, the failure is logged and counted and a zero vector of the
// provider's dimension is returned. A zero vector has no cosine similarity
// with anything, so retrieval degrades to "nothing relevant".
type Degrading struct {
	provider Provider
	logger   *logger.Logger
}

// NewDegrading wraps provider.
func NewDegrading(provider Provider, log *logger.Logger) *Degrading {
	return &Degrading{provider: provider, logger: log}
}

// Embed implements Provider. The returned error is always nil.
func (d *Degrading) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := d.provider.Embed(ctx, text)
	if err == nil && len(vec) == d.provider.Dimensions() {
		return vec, nil
	}
	if err == nil {
		d.logger.Warn("embedding has unexpected dimension",
			zap.String("model", d.provider.Model()),
			zap.Int("got", len(vec)),
			zap.Int("want", d.provider.Dimensions()),
		)
	} else {
		d.logger.Warn("embedding failed, using zero vector",
			append(logger.Err(err), zap.String("model", d.provider.Model()))...,
		)
	}
	metrics.RecordEmbeddingFailure(d.provider.Model())

	return make([]float32, d.provider.Dimensions()), nil
}

// Dimensions implements Provider.
func (d *Degrading) Dimensions() int {
	return d.provider.Dimensions()
}

// Model implements Provider.
func (d *Degrading) Model() string {
	return d.provider.Model()
}

// Hash is a deterministic, offline provider. Each lower-cased word is hashed
// into one of Dimensions() buckets and the result is L2-normalised, so texts
// sharing vocabulary have positive cosine similarity.
type Hash struct {
	dimensions int
}

// NewHash creates a hash provider. A non-positive size selects DefaultDimensions.
func NewHash(dimensions int) *Hash {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Hash{dimensions: dimensions}
}

// Embed implements Provider.
func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, h.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.dimensions)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Dimensions implements Provider.
func (h *Hash) Dimensions() int {
	return h.dimensions
}

// Model implements Provider.
func (h *Hash) Model() string {
	return "hash"
}
