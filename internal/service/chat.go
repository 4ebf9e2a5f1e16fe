package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/rag"
	"github.com/capitalize-ai/supportdesk/internal/store"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
	"github.com/capitalize-ai/supportdesk/pkg/metrics"
	"github.com/capitalize-ai/supportdesk/pkg/tracing"
)

// ChatService answers widget messages and serves the other public widget
// operations.
type ChatService struct {
	workspaces store.WorkspaceStore
	ledger     store.Ledger
	retriever  *rag.Retriever
	generator  *rag.Generator
	policy     *rag.EscalationPolicy
	notify     notifier
	logger     *logger.Logger
	opts       rag.Options
	now        func() time.Time
}

// NewChatService creates a new chat service.
func NewChatService(
	workspaces store.WorkspaceStore,
	ledger store.Ledger,
	retriever *rag.Retriever,
	generator *rag.Generator,
	events EventPublisher,
	opts rag.Options,
	log *logger.Logger,
) *ChatService {
	opts = opts.WithDefaults()
	if events == nil {
		events = NopPublisher()
	}
	return &ChatService{
		workspaces: workspaces,
		ledger:     ledger,
		retriever:  retriever,
		generator:  generator,
		policy:     rag.NewEscalationPolicy(opts.EscalationThreshold, opts.ExtraIndicators),
		notify:     notifier{events: events, logger: log},
		logger:     log,
		opts:       opts,
		now:        time.Now,
	}
}

// Send runs one visitor message through the answering pipeline. The user
// turn is written before generation, so it survives a failed generation.
// When the pipeline escalates, the status change is written before the
// assistant turn.
func (s *ChatService) Send(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	if strings.TrimSpace(req.WorkspaceKey) == "" || strings.TrimSpace(req.Message) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "workspace key and message are required")
	}

	ws, err := s.workspaces.GetByPublicKey(ctx, req.WorkspaceKey)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.Start(ctx, "chat.send", attribute.String("tenant_id", ws.ID))
	defer span.End()

	log := s.logger.With(zap.String("tenant_id", ws.ID))

	conv, err := s.resolveConversation(ctx, ws, req.ConversationID, req.VisitorID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("conversation_id", conv.ID))
	log = log.With(zap.String("conversation_id", conv.ID))

	history, err := s.ledger.RecentTurns(ctx, ws.ID, conv.ID, s.opts.HistoryTurns)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	userTurn := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        req.Message,
	}
	if err := s.ledger.AppendTurn(ctx, ws.ID, userTurn); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	s.notify.turn(ctx, ws.ID, userTurn)

	retrieval, err := s.retriever.Retrieve(ctx, ws.ID, req.Message)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	prompt := rag.AssemblePrompt(ws.Bot, ws.Name, retrieval.Results, history, req.Message)

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		tracing.RecordError(span, err)
		log.Error("generation failed", logger.Err(err)...)
		s.notify.event(ctx, ws.ID, conv.ID, model.EventTypeGenerationFailed, err.Error(), nil)
		if errors.Is(err, model.ErrGenerationFailed) {
			return nil, err
		}
		return nil, goerr.Wrap(fmt.Errorf("%w: %w", model.ErrGenerationFailed, err), "failed to generate answer")
	}

	decision := s.policy.Decide(retrieval.Confidence, answer)
	if decision.NeedsHuman {
		metrics.RecordEscalation(decision.Reason)
		if conv.Status != model.StatusNeedsHuman {
			if err := s.ledger.SetStatus(ctx, ws.ID, conv.ID, model.StatusNeedsHuman); err != nil {
				tracing.RecordError(span, err)
				return nil, err
			}
			log.Info("conversation escalated",
				zap.String("reason", decision.Reason),
				zap.Float64("confidence", retrieval.Confidence),
			)
			s.notify.event(ctx, ws.ID, conv.ID, model.EventTypeEscalated, decision.Reason, map[string]any{
				"confidence": retrieval.Confidence,
			})
		}
	}

	confidence := retrieval.Confidence
	assistantTurn := &model.Message{
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        answer,
		Sources:        s.snapshots(retrieval.Raw),
		Confidence:     &confidence,
	}
	if err := s.ledger.AppendTurn(ctx, ws.ID, assistantTurn); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	s.notify.turn(ctx, ws.ID, assistantTurn)

	span.SetAttributes(
		attribute.Float64("rag.confidence", confidence),
		attribute.Bool("rag.needs_human", decision.NeedsHuman),
	)

	return &model.ChatResponse{
		ConversationID: conv.ID,
		Message:        answer,
		Confidence:     confidence,
		NeedsHuman:     decision.NeedsHuman,
		Sources:        s.sourceRefs(retrieval.Raw),
	}, nil
}

// resolveConversation returns the conversation named by id, or a new one
// when id is empty or names a resolved conversation.
func (s *ChatService) resolveConversation(ctx context.Context, ws *model.Workspace, id, visitorID string) (*model.Conversation, error) {
	if id != "" {
		conv, err := s.ledger.GetConversation(ctx, ws.ID, id)
		if err != nil {
			return nil, err
		}
		if conv.Status != model.StatusResolved {
			return conv, nil
		}
		if visitorID == "" {
			visitorID = conv.VisitorID
		}
	}

	if err := s.checkConversationLimit(ctx, ws); err != nil {
		return nil, err
	}

	conv := &model.Conversation{
		TenantID:  ws.ID,
		VisitorID: visitorID,
		Status:    model.StatusActive,
	}
	if err := s.ledger.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	metrics.ConversationsTotal.WithLabelValues(ws.ID).Inc()

	return conv, nil
}

// checkConversationLimit enforces the monthly conversation allowance.
func (s *ChatService) checkConversationLimit(ctx context.Context, ws *model.Workspace) error {
	limit := ws.Limits.MaxConversationsPerMonth
	if limit <= 0 {
		return nil
	}

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	n, err := s.ledger.CountConversationsSince(ctx, ws.ID, monthStart)
	if err != nil {
		return err
	}
	if n >= limit {
		return goerr.Wrap(model.ErrLimitReached, "conversation limit reached",
			goerr.V("tenant_id", ws.ID), goerr.V("count", n), goerr.V("limit", limit))
	}
	return nil
}

func (s *ChatService) top(results []model.RetrievalResult) []model.RetrievalResult {
	if len(results) > s.opts.SourceLimit {
		return results[:s.opts.SourceLimit]
	}
	return results
}

func (s *ChatService) snapshots(results []model.RetrievalResult) []model.SourceSnapshot {
	top := s.top(results)
	if len(top) == 0 {
		return nil
	}
	out := make([]model.SourceSnapshot, len(top))
	for i, r := range top {
		out[i] = model.SourceSnapshot{
			Content:    excerpt(r.Chunk.Content, s.opts.ExcerptLength),
			SourceName: r.Chunk.SourceName,
		}
	}
	return out
}

func (s *ChatService) sourceRefs(results []model.RetrievalResult) []model.SourceRef {
	top := s.top(results)
	out := make([]model.SourceRef, len(top))
	for i, r := range top {
		out[i] = model.SourceRef{Name: r.Chunk.SourceName, Type: r.Chunk.SourceKind}
	}
	return out
}

// excerpt returns at most n runes of s.
func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// History returns the ledger of the conversation named by conversationID,
// or of the visitor's latest open conversation. An unknown conversation
// yields an empty history rather than an error.
func (s *ChatService) History(ctx context.Context, workspaceKey, conversationID, visitorID string) (*model.HistoryResponse, error) {
	if strings.TrimSpace(workspaceKey) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "workspace key required")
	}

	ws, err := s.workspaces.GetByPublicKey(ctx, workspaceKey)
	if err != nil {
		return nil, err
	}

	var conv *model.Conversation
	switch {
	case conversationID != "":
		conv, err = s.ledger.GetConversation(ctx, ws.ID, conversationID)
	case visitorID != "":
		conv, err = s.ledger.FindOpenConversation(ctx, ws.ID, visitorID)
	}
	if errors.Is(err, model.ErrConversationNotFound) || (err == nil && conv == nil) {
		return &model.HistoryResponse{Messages: []model.HistoryMessage{}}, nil
	}
	if err != nil {
		return nil, err
	}

	turns, err := s.ledger.ListTurns(ctx, ws.ID, conv.ID)
	if err != nil {
		return nil, err
	}

	messages := make([]model.HistoryMessage, len(turns))
	for i, m := range turns {
		messages[i] = m.ToHistory()
	}

	return &model.HistoryResponse{
		ConversationID: &conv.ID,
		Status:         conv.Status,
		Messages:       messages,
	}, nil
}

// WidgetConfig returns the public bot configuration for workspaceKey.
func (s *ChatService) WidgetConfig(ctx context.Context, workspaceKey string) (*model.WidgetConfig, error) {
	if strings.TrimSpace(workspaceKey) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "workspace key required")
	}

	ws, err := s.workspaces.GetByPublicKey(ctx, workspaceKey)
	if err != nil {
		return nil, err
	}

	cfg := ws.WidgetConfig()
	return &cfg, nil
}

// RequestHandoff marks a conversation as needing a human and emits one
// handoff event per conversation. Without a usable conversation a new one
// is opened directly in the needs_human state.
func (s *ChatService) RequestHandoff(ctx context.Context, req *model.HandoffRequest) (*model.HandoffResponse, error) {
	if strings.TrimSpace(req.WorkspaceKey) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "workspace key required")
	}

	ws, err := s.workspaces.GetByPublicKey(ctx, req.WorkspaceKey)
	if err != nil {
		return nil, err
	}

	visitorID := req.VisitorID
	if req.ConversationID != "" {
		conv, err := s.ledger.GetConversation(ctx, ws.ID, req.ConversationID)
		if err != nil {
			return nil, err
		}

		switch conv.Status {
		case model.StatusNeedsHuman:
			return &model.HandoffResponse{
				Success:        true,
				ConversationID: conv.ID,
				Message:        "Ticket already exists",
			}, nil
		case model.StatusActive:
			if err := s.ledger.SetStatus(ctx, ws.ID, conv.ID, model.StatusNeedsHuman); err != nil {
				return nil, err
			}
			s.handoffRequested(ctx, ws.ID, conv.ID)
			return &model.HandoffResponse{Success: true, ConversationID: conv.ID}, nil
		}

		if visitorID == "" {
			visitorID = conv.VisitorID
		}
	}

	conv := &model.Conversation{
		TenantID:  ws.ID,
		VisitorID: visitorID,
		Status:    model.StatusNeedsHuman,
	}
	if err := s.ledger.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	metrics.ConversationsTotal.WithLabelValues(ws.ID).Inc()
	s.handoffRequested(ctx, ws.ID, conv.ID)

	return &model.HandoffResponse{Success: true, ConversationID: conv.ID}, nil
}

func (s *ChatService) handoffRequested(ctx context.Context, tenantID, conversationID string) {
	metrics.RecordEscalation("visitor_request")
	s.logger.Info("handoff requested",
		zap.String("tenant_id", tenantID),
		zap.String("conversation_id", conversationID),
	)
	s.notify.event(ctx, tenantID, conversationID, model.EventTypeHandoffRequested, "visitor_request", nil)
}
