// Package store defines the persistence ports of the support pipeline: the
// knowledge store, the conversation ledger and the workspace directory.
// Every operation is scoped by an explicit tenant ID.
package store

import (
	"context"
	"time"

	"github.com/capitalize-ai/supportdesk/internal/model"
)

// KnowledgeStore persists knowledge chunks and answers nearest-neighbour
// queries over them.
type KnowledgeStore interface {
	// UpsertChunks replaces the document identified by (tenantID, kind, name)
	// with chunks. Either every chunk is written or the previous document is
	// left untouched.
	UpsertChunks(ctx context.Context, tenantID string, kind model.SourceKind, name string, chunks []model.KnowledgeChunk) error

	// DeleteSource removes a document and returns the number of chunks removed.
	DeleteSource(ctx context.Context, tenantID string, kind model.SourceKind, name string) (int, error)

	// NearestNeighbors returns up to k of the tenant's chunks ordered by cosine
	// similarity descending, ties by chunk ID ascending. Chunks without an
	// embedding are skipped.
	NearestNeighbors(ctx context.Context, tenantID string, vector []float32, k int) ([]model.RetrievalResult, error)

	// ListSources aggregates the tenant's chunks per document, most recently
	// updated first.
	ListSources(ctx context.Context, tenantID string) ([]model.SourceSummary, error)

	// CountSources returns the number of distinct documents of the tenant.
	CountSources(ctx context.Context, tenantID string) (int, error)
}

// ConversationFilter narrows ListConversations.
type ConversationFilter struct {
	Status model.ConversationStatus
	Limit  int
	Offset int
}

// Ledger is the append-only record of conversations and their turns. Turns
// cannot be updated or deleted.
type Ledger interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, tenantID, id string) (*model.Conversation, error)

	// FindOpenConversation returns the visitor's most recent conversation that
	// is not resolved, or model.ErrConversationNotFound.
	FindOpenConversation(ctx context.Context, tenantID, visitorID string) (*model.Conversation, error)

	// ListConversations returns a page of conversations, most recently
	// updated first, and the total number matching the filter.
	ListConversations(ctx context.Context, tenantID string, filter ConversationFilter) ([]model.Conversation, int, error)

	CountConversationsSince(ctx context.Context, tenantID string, since time.Time) (int, error)

	// AppendTurn appends msg to its conversation. The store assigns the ID
	// when empty and always assigns CreatedAt. Assistant turns on a resolved
	// conversation fail with model.ErrConversationResolved; sources or
	// confidence on a non-assistant turn fail with model.ErrInvalidTurn.
	AppendTurn(ctx context.Context, tenantID string, msg *model.Message) error

	// SetStatus moves a conversation to status. Setting the current status is
	// a no-op; disallowed moves fail with model.ErrInvalidTransition.
	SetStatus(ctx context.Context, tenantID, id string, status model.ConversationStatus) error

	// ListTurns returns every turn oldest first.
	ListTurns(ctx context.Context, tenantID, conversationID string) ([]model.Message, error)

	// RecentTurns returns the last n turns oldest first.
	RecentTurns(ctx context.Context, tenantID, conversationID string, n int) ([]model.Message, error)
}

// WorkspaceStore resolves tenants. The workspace rows are owned by the
// account side of the product; this service only reads them.
type WorkspaceStore interface {
	GetByPublicKey(ctx context.Context, key string) (*model.Workspace, error)
	GetByID(ctx context.Context, id string) (*model.Workspace, error)
}

// ValidateTurn checks the role-dependent shape of a turn.
func ValidateTurn(msg *model.Message) error {
	if !msg.Role.Valid() || msg.ConversationID == "" {
		return model.ErrInvalidTurn
	}
	if msg.Role != model.RoleAssistant && (len(msg.Sources) > 0 || msg.Confidence != nil) {
		return model.ErrInvalidTurn
	}
	return nil
}
