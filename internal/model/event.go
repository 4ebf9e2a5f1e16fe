package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	// EventTypeEscalated is emitted when the escalation policy flags an answer.
	EventTypeEscalated EventType = "escalated"
	// EventTypeHandoffRequested is emitted when a visitor asks for a human.
	EventTypeHandoffRequested EventType = "handoff_requested"
	// EventTypeResolved is emitted when an agent closes a conversation.
	EventTypeResolved EventType = "resolved"
	// EventTypeGenerationFailed is emitted when no answer could be produced.
	EventTypeGenerationFailed EventType = "generation_failed"
)

// ConversationEvent is published for consumers outside the answering
// pipeline, such as the ticket inbox.
type ConversationEvent struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	TenantID       string         `json:"tenant_id"`
	Type           EventType      `json:"type"`
	Reason         string         `json:"reason"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
