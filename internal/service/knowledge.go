package service

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/supportdesk/internal/chunker"
	"github.com/capitalize-ai/supportdesk/internal/embedding"
	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/rag"
	"github.com/capitalize-ai/supportdesk/internal/store"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
	"github.com/capitalize-ai/supportdesk/pkg/metrics"
	"github.com/capitalize-ai/supportdesk/pkg/tracing"
)

// MaxFAQSourceName caps the source name derived from an FAQ question, in
// runes.
const MaxFAQSourceName = 100

// ChunkingOptions controls how documents are split before embedding.
type ChunkingOptions struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
	Overlap      int `yaml:"overlap"`
}

// DefaultChunkingOptions returns the production chunking settings.
func DefaultChunkingOptions() ChunkingOptions {
	return ChunkingOptions{
		MaxChunkSize: chunker.DefaultMaxChunkSize,
		Overlap:      chunker.DefaultOverlap,
	}
}

// KnowledgeService ingests, lists and removes a tenant's knowledge
// documents.
type KnowledgeService struct {
	workspaces store.WorkspaceStore
	store      store.KnowledgeStore
	embedder   embedding.Provider
	retriever  *rag.Retriever
	chunking   ChunkingOptions
	logger     *logger.Logger
}

// NewKnowledgeService creates a new knowledge service. The embedder should
// be degrading; chunks are stored even when their embedding is a zero
// vector.
func NewKnowledgeService(
	workspaces store.WorkspaceStore,
	ks store.KnowledgeStore,
	embedder embedding.Provider,
	retriever *rag.Retriever,
	chunking ChunkingOptions,
	log *logger.Logger,
) *KnowledgeService {
	return &KnowledgeService{
		workspaces: workspaces,
		store:      ks,
		embedder:   embedder,
		retriever:  retriever,
		chunking:   chunking,
		logger:     log,
	}
}

// AddText chunks and stores a pasted text document under its title.
func (s *KnowledgeService) AddText(ctx context.Context, tenantID string, req *model.AddTextRequest) (*model.IngestResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || strings.TrimSpace(req.Content) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "title and content are required")
	}

	pieces := chunker.Chunk(req.Content, s.chunking.MaxChunkSize, s.chunking.Overlap)
	return s.ingest(ctx, tenantID, model.SourceText, title, pieces, map[string]any{"title": title})
}

// AddFAQ stores a question and answer as a single chunk named after the
// question.
func (s *KnowledgeService) AddFAQ(ctx context.Context, tenantID string, req *model.AddFAQRequest) (*model.IngestResponse, error) {
	question := strings.TrimSpace(req.Question)
	answer := strings.TrimSpace(req.Answer)
	if question == "" || answer == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "question and answer are required")
	}

	content := "Question: " + question + "\n\nAnswer: " + answer
	return s.ingest(ctx, tenantID, model.SourceFAQ, excerpt(question, MaxFAQSourceName), []string{content}, nil)
}

// AddPDF chunks and stores text extracted from an uploaded PDF.
func (s *KnowledgeService) AddPDF(ctx context.Context, tenantID string, req *model.AddPDFRequest) (*model.IngestResponse, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "file name is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "could not extract text from PDF", goerr.V("file_name", req.FileName))
	}

	pieces := chunker.Chunk(req.Text, s.chunking.MaxChunkSize, s.chunking.Overlap)
	return s.ingest(ctx, tenantID, model.SourcePDF, req.FileName, pieces, map[string]any{
		"fileName": req.FileName,
		"fileSize": req.FileSize,
	})
}

func (s *KnowledgeService) ingest(ctx context.Context, tenantID string, kind model.SourceKind, name string, pieces []string, metadata map[string]any) (*model.IngestResponse, error) {
	ctx, span := tracing.Start(ctx, "knowledge.ingest",
		attribute.String("tenant_id", tenantID),
		attribute.String("source_type", string(kind)),
		attribute.Int("chunks", len(pieces)),
	)
	defer span.End()

	if len(pieces) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "document has no content", goerr.V("source_name", name))
	}

	if err := s.checkDocumentLimit(ctx, tenantID, kind, name); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	start := time.Now()
	chunks := make([]model.KnowledgeChunk, len(pieces))
	for i, piece := range pieces {
		vec, err := s.embedder.Embed(ctx, piece)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, goerr.Wrap(err, "failed to embed chunk", goerr.V("source_name", name), goerr.V("index", i))
		}
		chunks[i] = model.KnowledgeChunk{
			Content:   piece,
			Embedding: vec,
			Metadata:  metadata,
		}
	}

	if err := s.store.UpsertChunks(ctx, tenantID, kind, name, chunks); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	metrics.RecordIngest(string(kind), len(chunks))
	s.logger.Info("document ingested",
		zap.String("tenant_id", tenantID),
		zap.String("source_type", string(kind)),
		zap.String("source_name", name),
		zap.Int("chunks", len(chunks)),
		zap.Duration("duration", time.Since(start)),
	)

	return &model.IngestResponse{Success: true, Chunks: len(chunks)}, nil
}

// checkDocumentLimit rejects a new document once the workspace holds its
// maximum number of documents. Replacing an existing document is allowed.
func (s *KnowledgeService) checkDocumentLimit(ctx context.Context, tenantID string, kind model.SourceKind, name string) error {
	ws, err := s.workspaces.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	limit := ws.Limits.MaxDocuments
	if limit <= 0 {
		return nil
	}

	n, err := s.store.CountSources(ctx, tenantID)
	if err != nil {
		return err
	}
	if n < limit {
		return nil
	}

	sources, err := s.store.ListSources(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, src := range sources {
		if src.SourceKind == kind && src.SourceName == name {
			return nil
		}
	}

	return goerr.Wrap(model.ErrLimitReached, "document limit reached",
		goerr.V("tenant_id", tenantID), goerr.V("count", n), goerr.V("limit", limit))
}

// Delete removes a document. Deleting an unknown document removes nothing
// and is not an error.
func (s *KnowledgeService) Delete(ctx context.Context, tenantID string, req *model.DeleteSourceRequest) (int, error) {
	if strings.TrimSpace(req.SourceName) == "" || !req.SourceType.Valid() {
		return 0, goerr.Wrap(model.ErrInvalidInput, "source name and type are required")
	}

	n, err := s.store.DeleteSource(ctx, tenantID, req.SourceType, req.SourceName)
	if err != nil {
		return 0, err
	}

	s.logger.Info("document deleted",
		zap.String("tenant_id", tenantID),
		zap.String("source_type", string(req.SourceType)),
		zap.String("source_name", req.SourceName),
		zap.Int("chunks", n),
	)
	return n, nil
}

// List returns the tenant's documents and knowledge base totals.
func (s *KnowledgeService) List(ctx context.Context, tenantID string) (*model.KnowledgeBaseResponse, error) {
	sources, err := s.store.ListSources(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var stats model.KnowledgeStats
	for _, src := range sources {
		stats.TotalChunks += src.ChunkCount
		stats.TotalCharacters += src.Characters
	}
	stats.TotalSources = len(sources)

	return &model.KnowledgeBaseResponse{Sources: sources, Stats: stats}, nil
}

// Search runs a retrieval probe against the tenant's knowledge without
// generating an answer.
func (s *KnowledgeService) Search(ctx context.Context, tenantID, query string) (*rag.Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "query is required")
	}
	return s.retriever.Retrieve(ctx, tenantID, query)
}
