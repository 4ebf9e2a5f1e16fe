// Package model defines data structures for the support platform.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive     ConversationStatus = "active"
	StatusNeedsHuman ConversationStatus = "needs_human"
	StatusResolved   ConversationStatus = "resolved"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusNeedsHuman, StatusResolved:
		return true
	}
	return false
}

// CanTransition reports whether a conversation may move from one status to
// another. Re-applying the current status is always allowed. Resolved is
// terminal, and nothing moves back to active.
func CanTransition(from, to ConversationStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from == StatusResolved {
		return false
	}
	return to != StatusActive
}

// AnonymousVisitor is used when the widget does not send a visitor ID.
const AnonymousVisitor = "anonymous"

// Conversation is one visitor's chat session with a workspace's bot.
type Conversation struct {
	ID           string             `json:"id"`
	TenantID     string             `json:"workspace_id"`
	VisitorID    string             `json:"visitor_id"`
	VisitorEmail *string            `json:"visitor_email"`
	Status       ConversationStatus `json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// UpdateConversationRequest is the dashboard request to change a conversation.
type UpdateConversationRequest struct {
	Status ConversationStatus `json:"status"`
}

// AgentReplyRequest is a human agent's reply to a conversation.
type AgentReplyRequest struct {
	Message string `json:"message"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	HasMore       bool           `json:"has_more"`
}

// ConversationDetail is a conversation together with its full ledger.
type ConversationDetail struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}
