package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/store"
)

var _ store.WorkspaceStore = (*WorkspaceStore)(nil)

// WorkspaceStore reads workspaces and their bot settings.
type WorkspaceStore struct {
	db *DB
}

// NewWorkspaceStore creates a WorkspaceStore.
func NewWorkspaceStore(db *DB) *WorkspaceStore {
	return &WorkspaceStore{db: db}
}

const workspaceQuery = `
	SELECT id, name, public_key, bot_name, greeting_message, tone, primary_color, max_documents, max_conversations
	FROM workspaces
`

func (s *WorkspaceStore) get(ctx context.Context, where string, arg string) (*model.Workspace, error) {
	var ws model.Workspace
	err := s.db.QueryRowContext(ctx, workspaceQuery+where, arg).Scan(
		&ws.ID,
		&ws.Name,
		&ws.PublicKey,
		&ws.Bot.BotName,
		&ws.Bot.Greeting,
		&ws.Bot.Tone,
		&ws.Bot.PrimaryColor,
		&ws.Limits.MaxDocuments,
		&ws.Limits.MaxConversationsPerMonth,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrTenantNotFound, "workspace not found")
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get workspace")
	}
	return &ws, nil
}

// GetByPublicKey implements store.WorkspaceStore.
func (s *WorkspaceStore) GetByPublicKey(ctx context.Context, key string) (*model.Workspace, error) {
	return s.get(ctx, `WHERE public_key = $1`, key)
}

// GetByID implements store.WorkspaceStore.
func (s *WorkspaceStore) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	return s.get(ctx, `WHERE id = $1`, id)
}
