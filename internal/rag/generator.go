package rag

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/capitalize-ai/supportdesk/internal/llm"
	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/pkg/metrics"
	"github.com/capitalize-ai/supportdesk/pkg/tracing"
)

// Generator turns an assembled prompt into an answer.
type Generator struct {
	client      llm.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewGenerator creates a Generator using the model settings in opts.
func NewGenerator(client llm.Client, opts Options) *Generator {
	opts = opts.WithDefaults()
	return &Generator{
		client:      client,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
}

// Generate sends prompt as a single user message. Provider errors are
// returned wrapped; an empty completion fails with model.ErrGenerationFailed.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracing.Start(ctx, "rag.generate",
		attribute.String("llm.provider", g.client.Name()),
		attribute.String("llm.model", g.model),
	)
	defer span.End()

	start := time.Now()
	resp, err := g.client.Complete(ctx, &llm.CompletionRequest{
		Model:       g.model,
		Messages:    []llm.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordGeneration(g.model, "error", duration, 0, 0)
		tracing.RecordError(span, err)
		return "", goerr.Wrap(err, "failed to generate answer", goerr.V("model", g.model))
	}

	metrics.RecordGeneration(g.model, "success", duration, resp.TokensIn, resp.TokensOut)

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		err := goerr.Wrap(model.ErrGenerationFailed, "empty completion",
			goerr.V("model", g.model), goerr.V("stop_reason", resp.StopReason))
		tracing.RecordError(span, err)
		return "", err
	}

	return text, nil
}
