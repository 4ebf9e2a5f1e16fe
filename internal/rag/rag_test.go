package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/supportdesk/internal/llm"
	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/store/memory"
)

// fixedEmbedder returns a preset vector per text and a zero vector otherwise.
type fixedEmbedder struct {
	vectors map[string][]float32
	dims    int
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, f.dims), nil
}

func (f *fixedEmbedder) Dimensions() int { return f.dims }
func (f *fixedEmbedder) Model() string   { return "fixed" }

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*llm.CompletionResponse)
	return resp, args.Error(1)
}

func (m *mockLLM) Name() string     { return "mock" }
func (m *mockLLM) Models() []string { return []string{"mock-model"} }

func results(sims ...float64) []model.RetrievalResult {
	out := make([]model.RetrievalResult, len(sims))
	for i, s := range sims {
		out[i] = model.RetrievalResult{Similarity: s}
	}
	return out
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name string
		sims []float64
		want float64
	}{
		{"empty", nil, 0},
		{"single strong", []float64{0.9}, 1},
		{"mean scaled", []float64{0.2, 0.4}, 0.45},
		{"clamped to one", []float64{0.8, 0.7}, 1},
		{"negative clamped to zero", []float64{-0.5, 0.1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(results(tt.sims...), 1.5), 1e-9)
		})
	}
}

func TestConfidence_Monotonic(t *testing.T) {
	base := []float64{0.1, 0.25, 0.3, 0.45, 0.05}
	before := Confidence(results(base...), 1.5)

	for i := range base {
		raised := append([]float64(nil), base...)
		raised[i] += 0.1
		after := Confidence(results(raised...), 1.5)
		assert.GreaterOrEqual(t, after, before, "raising similarity %d lowered confidence", i)
	}
}

func TestRetriever_FloorAndConfidence(t *testing.T) {
	ctx := context.Background()
	ks := memory.NewKnowledgeStore()

	// Similarities to the query [1, 0]: 1.0, 0.6 (kept at the floor) and 1/sqrt(50).
	require.NoError(t, ks.UpsertChunks(ctx, "t1", model.SourceText, "Doc", []model.KnowledgeChunk{
		{ID: "a", Content: "exact", Embedding: []float32{1, 0}},
		{ID: "b", Content: "edge", Embedding: []float32{3, 4}},
		{ID: "c", Content: "weak", Embedding: []float32{1, 7}},
	}))

	opts := DefaultOptions()
	opts.RelevanceFloor = 0.6
	r := NewRetriever(&fixedEmbedder{dims: 2, vectors: map[string][]float32{"q": {1, 0}}}, ks, opts)
	got, err := r.Retrieve(ctx, "t1", "q")
	require.NoError(t, err)

	require.Len(t, got.Raw, 3)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "a", got.Results[0].Chunk.ID)
	assert.Equal(t, "b", got.Results[1].Chunk.ID)

	// Confidence uses the unfiltered set.
	want := (1 + 0.6 + 1/math.Sqrt(50)) / 3 * 1.5
	assert.InDelta(t, want, got.Confidence, 1e-6)
}

func TestRetriever_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	ks := memory.NewKnowledgeStore()
	require.NoError(t, ks.UpsertChunks(ctx, "t2", model.SourceText, "Doc", []model.KnowledgeChunk{
		{ID: "x", Content: "other tenant", Embedding: []float32{1, 0}},
	}))

	r := NewRetriever(&fixedEmbedder{dims: 2, vectors: map[string][]float32{"q": {1, 0}}}, ks, DefaultOptions())
	got, err := r.Retrieve(ctx, "t1", "q")
	require.NoError(t, err)
	assert.Empty(t, got.Raw)
	assert.Zero(t, got.Confidence)
}

type failingStore struct {
	*memory.KnowledgeStore
}

func (failingStore) NearestNeighbors(ctx context.Context, tenantID string, vector []float32, k int) ([]model.RetrievalResult, error) {
	return nil, errors.New("connection refused")
}

func TestRetriever_StoreErrorPropagates(t *testing.T) {
	r := NewRetriever(&fixedEmbedder{dims: 2}, failingStore{memory.NewKnowledgeStore()}, DefaultOptions())
	_, err := r.Retrieve(context.Background(), "t1", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		text       string
		want       bool
	}{
		{"confident plain answer", 0.9, "We are open 9-5 Mon-Fri.", false},
		{"at threshold", 0.4, "Sure.", false},
		{"low confidence", 0.39, "Sure.", true},
		{"indicator overrides confidence", 0.9, "I'm not sure, let me connect you with a human agent", true},
		{"indicator is case-insensitive", 1, "Let me CONNECT YOU WITH our team.", true},
		{"both", 0.1, "I cannot find that.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.confidence, tt.text))
		})
	}
}

func TestDecide_EveryIndicator(t *testing.T) {
	for _, phrase := range DefaultIndicators {
		assert.True(t, Decide(1, "Well, "+phrase+"."), phrase)
	}
}

func TestEscalationPolicy_ExtraIndicators(t *testing.T) {
	p := NewEscalationPolicy(0.4, []string{"  Refund Desk ", ""})

	d := p.Decide(0.95, "Please contact the refund desk.")
	assert.Equal(t, Decision{NeedsHuman: true, Reason: ReasonIndicator}, d)

	d = p.Decide(0.2, "Please contact the refund desk.")
	assert.Equal(t, ReasonLowConfidence, d.Reason)

	assert.False(t, p.Decide(0.95, "Done.").NeedsHuman)
	assert.True(t, p.Decide(0.95, "I'm not sure.").NeedsHuman, "built-in phrases are kept")
}

func TestAssemblePrompt_Order(t *testing.T) {
	bot := model.BotConfig{BotName: "Ava", Tone: model.ToneFormal}
	hits := []model.RetrievalResult{
		{Chunk: model.KnowledgeChunk{SourceName: "Returns", Content: "30 days."}},
		{Chunk: model.KnowledgeChunk{SourceName: "Shipping", Content: "3-5 days."}},
	}
	history := []model.Message{
		{Role: model.RoleUser, Content: "Hi"},
		{Role: model.RoleAssistant, Content: "Hello!"},
		{Role: model.RoleAgent, Content: "Agent here."},
	}

	prompt := AssemblePrompt(bot, "Acme", hits, history, "Can I return shoes?")

	assert.True(t, strings.HasPrefix(prompt, "You are Ava, a helpful customer support assistant for Acme.\n\n"))
	assert.True(t, strings.HasSuffix(prompt, "Current customer message: Can I return shoes?"))
	assert.Contains(t, prompt, "[Source: Returns]\n30 days.\n\n---\n\n[Source: Shipping]\n3-5 days.")
	assert.Contains(t, prompt, "CONVERSATION HISTORY:\nCustomer: Hi\nAssistant: Hello!\nAssistant: Agent here.\n")

	order := []string{
		"You are Ava",
		ToneInstruction(model.ToneFormal),
		"IMPORTANT RULES:",
		"KNOWLEDGE BASE CONTEXT:",
		"CONVERSATION HISTORY:",
		"Current customer message:",
	}
	last := -1
	for _, s := range order {
		idx := strings.Index(prompt, s)
		require.GreaterOrEqual(t, idx, 0, s)
		assert.Greater(t, idx, last, s)
		last = idx
	}
}

func TestAssemblePrompt_Defaults(t *testing.T) {
	prompt := AssemblePrompt(model.BotConfig{}, "Acme", nil, nil, "Hello?")

	assert.True(t, strings.HasPrefix(prompt, "You are Support Bot, a helpful customer support assistant for Acme."))
	assert.Contains(t, prompt, ToneInstruction(model.ToneFriendly))
	assert.Contains(t, prompt, "KNOWLEDGE BASE CONTEXT:\n"+NoContextMarker+"\n\n\n\nCurrent customer message: Hello?")
	assert.NotContains(t, prompt, "CONVERSATION HISTORY")
}

func TestAssemblePrompt_HistoryCap(t *testing.T) {
	var history []model.Message
	for i := 1; i <= 15; i++ {
		history = append(history, model.Message{Role: model.RoleUser, Content: fmt.Sprintf("turn %02d", i)})
	}

	prompt := AssemblePrompt(model.BotConfig{}, "Acme", nil, history, "Next?")

	for i := 1; i <= 5; i++ {
		assert.NotContains(t, prompt, fmt.Sprintf("turn %02d", i))
	}
	for i := 6; i <= 15; i++ {
		assert.Contains(t, prompt, fmt.Sprintf("Customer: turn %02d", i))
	}
	assert.Less(t, strings.Index(prompt, "turn 06"), strings.Index(prompt, "turn 15"), "oldest first")
}

func TestToneInstruction(t *testing.T) {
	assert.Contains(t, ToneInstruction(model.ToneCasual), "casual")
	assert.Equal(t, ToneInstruction(model.ToneFriendly), ToneInstruction("pirate"))
}

func TestGenerator_Generate(t *testing.T) {
	client := &mockLLM{}
	client.On("Complete", mock.Anything, mock.MatchedBy(func(req *llm.CompletionRequest) bool {
		return req.Model == "gpt-4o-mini" &&
			req.MaxTokens == 500 &&
			req.Temperature == 0.7 &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == "user" &&
			req.Messages[0].Content == "prompt"
	})).Return(&llm.CompletionResponse{Content: "  We ship worldwide.\n", TokensIn: 10, TokensOut: 4}, nil)

	text, err := NewGenerator(client, DefaultOptions()).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "We ship worldwide.", text)
	client.AssertExpectations(t)
}

func TestGenerator_Errors(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		client := &mockLLM{}
		client.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

		_, err := NewGenerator(client, DefaultOptions()).Generate(context.Background(), "prompt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("empty completion", func(t *testing.T) {
		client := &mockLLM{}
		client.On("Complete", mock.Anything, mock.Anything).Return(&llm.CompletionResponse{Content: " "}, nil)

		_, err := NewGenerator(client, DefaultOptions()).Generate(context.Background(), "prompt")
		assert.ErrorIs(t, err, model.ErrGenerationFailed)
	})
}

func TestScenarios(t *testing.T) {
	ctx := context.Background()
	query := "What are your hours?"
	queryVec := []float32{0.9, float32(math.Sqrt(1 - 0.81))}
	embedder := &fixedEmbedder{dims: 2, vectors: map[string][]float32{query: queryVec}}

	t.Run("A: strong FAQ match answers without escalation", func(t *testing.T) {
		ks := memory.NewKnowledgeStore()
		require.NoError(t, ks.UpsertChunks(ctx, "t1", model.SourceFAQ, query, []model.KnowledgeChunk{
			{Content: "Question: What are your hours?\n\nAnswer: 9-5 Mon-Fri", Embedding: []float32{1, 0}},
		}))

		got, err := NewRetriever(embedder, ks, DefaultOptions()).Retrieve(ctx, "t1", query)
		require.NoError(t, err)
		require.Len(t, got.Raw, 1)
		assert.InDelta(t, 0.9, got.Raw[0].Similarity, 1e-5)
		assert.InDelta(t, 1.0, got.Confidence, 1e-9)
		assert.False(t, Decide(got.Confidence, "We are open 9-5, Monday to Friday."))
	})

	t.Run("B: empty knowledge base always escalates", func(t *testing.T) {
		got, err := NewRetriever(embedder, memory.NewKnowledgeStore(), DefaultOptions()).Retrieve(ctx, "t1", query)
		require.NoError(t, err)
		assert.Zero(t, got.Confidence)
		assert.True(t, Decide(got.Confidence, "We are open 9-5, Monday to Friday."))
	})

	t.Run("C: indicator overrides high confidence", func(t *testing.T) {
		assert.True(t, Decide(0.9, "I'm not sure, let me connect you with a human agent"))
	})
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{TopK: 8, Temperature: 0}.WithDefaults()
	assert.Equal(t, 8, o.TopK)
	assert.Equal(t, 0.3, o.RelevanceFloor)
	assert.Equal(t, 10, o.HistoryTurns)
	assert.Equal(t, "gpt-4o-mini", o.Model)
	assert.Zero(t, o.Temperature)

	assert.Equal(t, 4, Options{HistoryTurns: 4}.WithDefaults().HistoryTurns)
	assert.Equal(t, MaxHistoryTurns, Options{HistoryTurns: 50}.WithDefaults().HistoryTurns)
}
