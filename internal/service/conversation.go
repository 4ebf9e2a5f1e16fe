package service

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/store"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

// ConversationService handles the agent-facing conversation operations.
type ConversationService struct {
	ledger store.Ledger
	notify notifier
	events EventReader
	logger *logger.Logger
}

// NewConversationService creates a new conversation service. reader may be
// nil, in which case Events returns an empty list.
func NewConversationService(ledger store.Ledger, publisher EventPublisher, reader EventReader, log *logger.Logger) *ConversationService {
	if publisher == nil {
		publisher = NopPublisher()
	}
	return &ConversationService{
		ledger: ledger,
		notify: notifier{events: publisher, logger: log},
		events: reader,
		logger: log,
	}
}

// List retrieves a page of conversations for a tenant.
func (s *ConversationService) List(ctx context.Context, tenantID string, status model.ConversationStatus, limit, offset int) (*model.ListConversationsResponse, error) {
	if status != "" && !status.Valid() {
		return nil, goerr.Wrap(model.ErrInvalidInput, "invalid status filter", goerr.V("status", status))
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	convs, total, err := s.ledger.ListConversations(ctx, tenantID, store.ConversationFilter{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         total,
		HasMore:       offset+len(convs) < total,
	}, nil
}

// Get retrieves a conversation with every turn.
func (s *ConversationService) Get(ctx context.Context, tenantID, conversationID string) (*model.ConversationDetail, error) {
	conv, err := s.ledger.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	turns, err := s.ledger.ListTurns(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	return &model.ConversationDetail{Conversation: *conv, Messages: turns}, nil
}

// UpdateStatus moves a conversation to a new status. Resolving emits a
// resolved event.
func (s *ConversationService) UpdateStatus(ctx context.Context, tenantID, conversationID string, req *model.UpdateConversationRequest) (*model.Conversation, error) {
	if !req.Status.Valid() {
		return nil, goerr.Wrap(model.ErrInvalidInput, "invalid status", goerr.V("status", req.Status))
	}

	before, err := s.ledger.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.SetStatus(ctx, tenantID, conversationID, req.Status); err != nil {
		return nil, err
	}

	conv, err := s.ledger.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}

	if before.Status != conv.Status {
		s.logger.Info("conversation status changed",
			zap.String("tenant_id", tenantID),
			zap.String("conversation_id", conversationID),
			zap.String("from", string(before.Status)),
			zap.String("to", string(conv.Status)),
		)
		switch conv.Status {
		case model.StatusResolved:
			s.notify.event(ctx, tenantID, conversationID, model.EventTypeResolved, "agent", nil)
		case model.StatusNeedsHuman:
			s.notify.event(ctx, tenantID, conversationID, model.EventTypeEscalated, "agent", nil)
		}
	}

	return conv, nil
}

// Reply appends a human agent's turn. The conversation status is left as
// is; a resolved conversation takes no more replies.
func (s *ConversationService) Reply(ctx context.Context, tenantID, conversationID string, req *model.AgentReplyRequest) (*model.Message, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "message is required")
	}

	conv, err := s.ledger.GetConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == model.StatusResolved {
		return nil, goerr.Wrap(model.ErrConversationResolved, "agent reply on resolved conversation",
			goerr.V("tenant_id", tenantID),
			goerr.V("conversation_id", conversationID),
		)
	}

	msg := &model.Message{
		ConversationID: conversationID,
		Role:           model.RoleAgent,
		Content:        req.Message,
	}
	if err := s.ledger.AppendTurn(ctx, tenantID, msg); err != nil {
		return nil, err
	}
	s.notify.turn(ctx, tenantID, msg)

	return msg, nil
}

// Events returns up to limit published events of a conversation.
func (s *ConversationService) Events(ctx context.Context, tenantID, conversationID string, limit int) ([]model.ConversationEvent, error) {
	if _, err := s.ledger.GetConversation(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	if s.events == nil {
		return []model.ConversationEvent{}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	events, err := s.events.GetEvents(ctx, tenantID, conversationID, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read events",
			goerr.V("tenant_id", tenantID), goerr.V("conversation_id", conversationID))
	}
	return events, nil
}
