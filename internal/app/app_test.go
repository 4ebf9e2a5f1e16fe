package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/supportdesk/internal/config"
	"github.com/capitalize-ai/supportdesk/internal/embedding"
	"github.com/capitalize-ai/supportdesk/internal/llm"
	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/rag"
	"github.com/capitalize-ai/supportdesk/internal/service"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		DemoWorkspaceID:     "demo",
		DemoWorkspaceName:   "Demo",
		DemoWorkspaceKey:    "pk_demo",
		LLMProvider:         llm.ProviderOpenAI,
		EmbeddingDimensions: 64,
		RAG:                 rag.DefaultOptions(),
		Chunking:            service.DefaultChunkingOptions(),
	}
}

func TestNew_InMemory(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, memoryConfig(), logger.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Persistent)
	assert.Nil(t, a.Chat, "chat needs an LLM key")
	assert.Empty(t, a.Checkers)
	assert.Equal(t, 64, a.Embedder.Dimensions())

	ws, err := a.Workspaces.GetByPublicKey(ctx, "pk_demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", ws.ID)

	_, err = a.KnowledgeBase.AddText(ctx, "demo", &model.AddTextRequest{Title: "Hours", Content: "We are open 9-5."})
	require.NoError(t, err)

	retrieval, err := a.KnowledgeBase.Search(ctx, "demo", "We are open 9-5.")
	require.NoError(t, err)
	require.NotEmpty(t, retrieval.Raw)
	assert.Equal(t, "Hours", retrieval.Raw[0].Chunk.SourceName)
}

func TestNew_WithLLMAndCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := memoryConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.RedisURL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Chat)
	assert.Equal(t, "text-embedding-3-small", a.Embedder.Model())
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := memoryConfig()
	cfg.LLMProvider = "mistral"
	cfg.OpenAIAPIKey = "sk-test"

	_, err := New(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisURL = "://nope"

	_, err := New(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)
}

func TestCheckVectorDimensions(t *testing.T) {
	assert.NoError(t, checkVectorDimensions(embedding.NewHash(1536)))
	assert.Error(t, checkVectorDimensions(embedding.NewHash(64)))

	large, err := embedding.NewOpenAI("sk-test", "text-embedding-3-large", "")
	require.NoError(t, err)
	assert.Error(t, checkVectorDimensions(large))
}
