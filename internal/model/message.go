package model

import (
	"time"
)

// Role represents the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAgent     Role = "agent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleAgent:
		return true
	}
	return false
}

// SourceSnapshot is the excerpt of a retrieved chunk stored with an
// assistant turn.
type SourceSnapshot struct {
	Content    string `json:"content"`
	SourceName string `json:"source_name"`
}

// Message is one immutable turn in a conversation ledger. Sources and
// Confidence are only set on assistant turns.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Role           Role             `json:"role"`
	Content        string           `json:"content"`
	Sources        []SourceSnapshot `json:"sources,omitempty"`
	Confidence     *float64         `json:"confidence,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// HistoryMessage is the widget's view of a ledger turn.
type HistoryMessage struct {
	ID         string           `json:"id"`
	Role       Role             `json:"role"`
	Content    string           `json:"content"`
	Sources    []SourceSnapshot `json:"sources,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ToHistory converts a ledger turn to its widget representation.
func (m Message) ToHistory() HistoryMessage {
	return HistoryMessage{
		ID:         m.ID,
		Role:       m.Role,
		Content:    m.Content,
		Sources:    m.Sources,
		Confidence: m.Confidence,
		Timestamp:  m.CreatedAt,
	}
}

// HistoryResponse is returned by the widget history endpoint.
// ConversationID is null when the visitor has no open conversation.
type HistoryResponse struct {
	ConversationID *string            `json:"conversationId"`
	Status         ConversationStatus `json:"status,omitempty"`
	Messages       []HistoryMessage   `json:"messages"`
}
