// Package service wires the stores, the answering pipeline and the event
// stream into the operations exposed over HTTP and the CLI.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
	"github.com/capitalize-ai/supportdesk/pkg/metrics"
)

// EventPublisher sends ledger turns and conversation events to consumers
// outside the request path. It is implemented by nats.StreamManager.
type EventPublisher interface {
	PublishTurn(ctx context.Context, tenantID string, msg *model.Message) (uint64, error)
	PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
}

// EventReader reads back the events of one conversation.
type EventReader interface {
	GetEvents(ctx context.Context, tenantID, conversationID string, limit int) ([]model.ConversationEvent, error)
}

type nopPublisher struct{}

func (nopPublisher) PublishTurn(context.Context, string, *model.Message) (uint64, error) {
	return 0, nil
}

func (nopPublisher) PublishEvent(context.Context, *model.ConversationEvent) (uint64, error) {
	return 0, nil
}

// NopPublisher returns a publisher that drops everything.
func NopPublisher() EventPublisher {
	return nopPublisher{}
}

// notifier publishes on a best-effort basis. The ledger is the source of
// truth, so a failed publish is logged and counted but never fails the
// request.
type notifier struct {
	events EventPublisher
	logger *logger.Logger
}

func (n notifier) turn(ctx context.Context, tenantID string, msg *model.Message) {
	metrics.MessagesTotal.WithLabelValues(tenantID, string(msg.Role)).Inc()

	_, err := n.events.PublishTurn(ctx, tenantID, msg)
	metrics.RecordEvent("turn", err)
	if err != nil {
		n.logger.Warn("failed to publish turn",
			zap.String("tenant_id", tenantID),
			zap.String("conversation_id", msg.ConversationID),
			zap.Error(err),
		)
	}
}

func (n notifier) event(ctx context.Context, tenantID, conversationID string, eventType model.EventType, reason string, metadata map[string]any) {
	event := &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		Type:           eventType,
		Reason:         reason,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := n.events.PublishEvent(ctx, event)
	metrics.RecordEvent(string(eventType), err)
	if err != nil {
		n.logger.Warn("failed to publish event",
			zap.String("tenant_id", tenantID),
			zap.String("conversation_id", conversationID),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}
