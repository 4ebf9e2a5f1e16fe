package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/store"
)

var _ store.WorkspaceStore = (*WorkspaceStore)(nil)

// WorkspaceStore is a fixed set of workspaces.
type WorkspaceStore struct {
	mu         sync.RWMutex
	workspaces map[string]model.Workspace
}

// NewWorkspaceStore creates a store holding workspaces.
func NewWorkspaceStore(workspaces ...model.Workspace) *WorkspaceStore {
	s := &WorkspaceStore{workspaces: make(map[string]model.Workspace)}
	for _, ws := range workspaces {
		s.Put(ws)
	}
	return s
}

// Put adds or replaces a workspace.
func (s *WorkspaceStore) Put(ws model.Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[ws.ID] = ws
}

// GetByPublicKey implements store.WorkspaceStore.
func (s *WorkspaceStore) GetByPublicKey(ctx context.Context, key string) (*model.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ws := range s.workspaces {
		if key != "" && ws.PublicKey == key {
			found := ws
			return &found, nil
		}
	}
	return nil, goerr.Wrap(model.ErrTenantNotFound, "unknown workspace key")
}

// GetByID implements store.WorkspaceStore.
func (s *WorkspaceStore) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws, ok := s.workspaces[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrTenantNotFound, "workspace not found", goerr.V("workspace_id", id))
	}
	return &ws, nil
}
