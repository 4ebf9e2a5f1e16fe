// Package app assembles the stores, providers and services shared by the
// API server and the operator CLI.
package app

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/supportdesk/internal/config"
	"github.com/capitalize-ai/supportdesk/internal/embedding"
	"github.com/capitalize-ai/supportdesk/internal/handler"
	"github.com/capitalize-ai/supportdesk/internal/llm"
	"github.com/capitalize-ai/supportdesk/internal/model"
	natsclient "github.com/capitalize-ai/supportdesk/internal/nats"
	"github.com/capitalize-ai/supportdesk/internal/rag"
	"github.com/capitalize-ai/supportdesk/internal/service"
	"github.com/capitalize-ai/supportdesk/internal/store"
	"github.com/capitalize-ai/supportdesk/internal/store/memory"
	"github.com/capitalize-ai/supportdesk/internal/store/postgres"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

// App holds the wired components.
type App struct {
	Workspaces store.WorkspaceStore
	Knowledge  store.KnowledgeStore
	Ledger     store.Ledger
	Embedder   embedding.Provider
	Retriever  *rag.Retriever

	KnowledgeBase *service.KnowledgeService
	Conversations *service.ConversationService

	// Chat is nil when no LLM API key is configured.
	Chat *service.ChatService

	// Checkers are the dependencies probed by the readiness endpoint.
	Checkers []handler.Checker

	// Persistent reports whether the stores outlive the process.
	Persistent bool

	closers []func()
}

// New connects to the configured backends and builds the services. Close
// releases them.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{}

	if err := a.initStores(ctx, cfg, log); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.initEmbedder(ctx, cfg, log); err != nil {
		a.Close()
		return nil, err
	}

	if a.Persistent {
		if err := checkVectorDimensions(a.Embedder); err != nil {
			a.Close()
			return nil, err
		}
	}

	publisher, reader, err := a.initEvents(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Retriever = rag.NewRetriever(a.Embedder, a.Knowledge, cfg.RAG)
	a.KnowledgeBase = service.NewKnowledgeService(a.Workspaces, a.Knowledge, a.Embedder, a.Retriever, cfg.Chunking, log)
	a.Conversations = service.NewConversationService(a.Ledger, publisher, reader, log)

	if key := cfg.LLMAPIKey(); key != "" {
		client, err := llm.NewClient(llm.Config{
			Provider: cfg.LLMProvider,
			APIKey:   key,
			BaseURL:  cfg.LLMBaseURL,
		})
		if err != nil {
			a.Close()
			return nil, goerr.Wrap(err, "failed to create LLM client", goerr.V("provider", cfg.LLMProvider))
		}
		generator := rag.NewGenerator(client, cfg.RAG)
		a.Chat = service.NewChatService(a.Workspaces, a.Ledger, a.Retriever, generator, publisher, cfg.RAG, log)
		log.Info("LLM client ready",
			zap.String("provider", client.Name()),
			zap.String("model", cfg.RAG.Model),
		)
	} else {
		log.Warn("no LLM API key configured, chat disabled", zap.String("provider", string(cfg.LLMProvider)))
	}

	return a, nil
}

func (a *App) initStores(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores",
			zap.String("workspace_key", cfg.DemoWorkspaceKey),
		)
		a.Workspaces = memory.NewWorkspaceStore(model.Workspace{
			ID:        cfg.DemoWorkspaceID,
			Name:      cfg.DemoWorkspaceName,
			PublicKey: cfg.DemoWorkspaceKey,
		})
		a.Knowledge = memory.NewKnowledgeStore()
		a.Ledger = memory.NewLedger()
		return nil
	}

	db, err := postgres.Connect(ctx, postgres.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return goerr.Wrap(err, "failed to connect to database")
	}
	a.closers = append(a.closers, func() { db.Close() })

	if cfg.DBAutoMigrate {
		if err := db.InitSchema(ctx); err != nil {
			return goerr.Wrap(err, "failed to initialize schema")
		}
	}

	a.Workspaces = postgres.NewWorkspaceStore(db)
	a.Knowledge = postgres.NewKnowledgeStore(db)
	a.Ledger = postgres.NewLedger(db)
	a.Checkers = append(a.Checkers, db)
	a.Persistent = true
	log.Info("connected to database")
	return nil
}

func (a *App) initEmbedder(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	var provider embedding.Provider
	if cfg.OpenAIAPIKey != "" {
		openai, err := embedding.NewOpenAI(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingBaseURL)
		if err != nil {
			return goerr.Wrap(err, "failed to create embedding provider")
		}
		provider = openai
	} else {
		log.Warn("OPENAI_API_KEY not set, using local hash embeddings",
			zap.Int("dimensions", cfg.EmbeddingDimensions),
		)
		provider = embedding.NewHash(cfg.EmbeddingDimensions)
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return goerr.Wrap(err, "invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() { client.Close() })

		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, embedding cache will fall through", logger.Err(err)...)
		}
		provider = embedding.NewCache(provider, client, cfg.EmbeddingCacheTTL, log)
	}

	a.Embedder = embedding.NewDegrading(provider, log)
	log.Info("embedding provider ready",
		zap.String("model", a.Embedder.Model()),
		zap.Int("dimensions", a.Embedder.Dimensions()),
		zap.Bool("cache", cfg.RedisURL != ""),
	)
	return nil
}

func (a *App) initEvents(ctx context.Context, cfg *config.Config, log *logger.Logger) (service.EventPublisher, service.EventReader, error) {
	if !cfg.NATSEnabled {
		return service.NopPublisher(), nil, nil
	}

	client, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to connect to NATS")
	}
	a.closers = append(a.closers, client.Close)

	streams := natsclient.NewStreamManager(client)
	if err := streams.EnsureStream(ctx); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to ensure stream")
	}
	a.Checkers = append(a.Checkers, client)

	return streams, streams, nil
}

// checkVectorDimensions rejects an embedder whose vectors do not fit the
// postgres embedding column.
func checkVectorDimensions(e embedding.Provider) error {
	if e.Dimensions() != postgres.VectorDimensions {
		return goerr.New("embedding dimensions do not match the database vector column",
			goerr.V("model", e.Model()),
			goerr.V("dimensions", e.Dimensions()),
			goerr.V("column_dimensions", postgres.VectorDimensions),
		)
	}
	return nil
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
