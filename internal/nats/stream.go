package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/supportdesk/internal/model"
)

const (
	// StreamName is the name of the support events stream.
	StreamName = "SUPPORT"

	// SubjectPrefix is the prefix for all support subjects.
	SubjectPrefix = "support"
)

// StreamManager publishes conversation turns and events to JetStream for
// consumers outside the answering path, such as the ticket inbox.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// StreamConfig returns the configuration of the support stream. The stream
// is an audit trail, so deletes and purges are denied.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		MaxBytes:    20 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Support conversation turns and escalation events",
	}
}

// EnsureStream ensures the support stream exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	if _, err := js.CreateStream(ctx, StreamConfig()); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// subjectToken makes an ID safe to use as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// TurnSubject returns the subject for a ledger turn.
func TurnSubject(tenantID, conversationID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.%s.msg.%s", SubjectPrefix, subjectToken(tenantID), subjectToken(conversationID), role)
}

// EventSubject returns the subject for an event.
func EventSubject(tenantID, conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, subjectToken(tenantID), subjectToken(conversationID), eventType)
}

// ConversationEventsFilter returns the filter subject for every event of a
// conversation.
func ConversationEventsFilter(tenantID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.event.>", SubjectPrefix, subjectToken(tenantID), subjectToken(conversationID))
}

// turnEnvelope carries the tenant alongside a ledger turn, which does not
// hold it.
type turnEnvelope struct {
	TenantID string        `json:"tenant_id"`
	Message  model.Message `json:"message"`
}

// PublishTurn mirrors a ledger turn to JetStream.
func (m *StreamManager) PublishTurn(ctx context.Context, tenantID string, msg *model.Message) (uint64, error) {
	data, err := json.Marshal(turnEnvelope{TenantID: tenantID, Message: *msg})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal turn: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, TurnSubject(tenantID, msg.ConversationID, msg.Role), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish turn: %w", err)
	}

	return ack.Sequence, nil
}

// PublishEvent publishes an event to JetStream. The event ID is used as the
// message ID so a retried publish is deduplicated by the server.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error) {
	subject := EventSubject(event.TenantID, event.ConversationID, event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	var opts []jetstream.PublishOpt
	if event.ID != "" {
		opts = append(opts, jetstream.WithMsgID(event.ID))
	}

	ack, err := m.client.JetStream().Publish(ctx, subject, data, opts...)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	return ack.Sequence, nil
}

// GetEvents returns up to limit events of a conversation, oldest first.
func (m *StreamManager) GetEvents(ctx context.Context, tenantID, conversationID string, limit int) ([]model.ConversationEvent, error) {
	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ConversationEventsFilter(tenantID, conversationID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	info, err := consumer.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer info: %w", err)
	}
	pending := int(info.NumPending)
	if pending == 0 {
		return []model.ConversationEvent{}, nil
	}
	if pending > limit {
		pending = limit
	}

	batch, err := consumer.Fetch(pending, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	events := make([]model.ConversationEvent, 0, pending)
	for msg := range batch.Messages() {
		event, err := decodeEvent(msg.Data())
		if err != nil {
			continue
		}
		events = append(events, *event)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("batch error: %w", err)
	}

	return events, nil
}

func decodeEvent(data []byte) (*model.ConversationEvent, error) {
	var event model.ConversationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &event, nil
}
