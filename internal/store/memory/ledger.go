package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/store"
)

var _ store.Ledger = (*Ledger)(nil)

// Ledger keeps conversations and their turns in memory. Turns are stored in
// append order.
type Ledger struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	turns         map[string][]*model.Message
	now           func() time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		conversations: make(map[string]*model.Conversation),
		turns:         make(map[string][]*model.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func copyConversation(c *model.Conversation) *model.Conversation {
	copied := *c
	if c.VisitorEmail != nil {
		email := *c.VisitorEmail
		copied.VisitorEmail = &email
	}
	return &copied
}

func copyMessage(m *model.Message) *model.Message {
	copied := *m
	if m.Sources != nil {
		copied.Sources = make([]model.SourceSnapshot, len(m.Sources))
		copy(copied.Sources, m.Sources)
	}
	if m.Confidence != nil {
		c := *m.Confidence
		copied.Confidence = &c
	}
	return &copied
}

// conversation returns the tenant's conversation. Callers hold the lock.
func (l *Ledger) conversation(tenantID, id string) (*model.Conversation, error) {
	conv, ok := l.conversations[id]
	if !ok || conv.TenantID != tenantID {
		return nil, goerr.Wrap(model.ErrConversationNotFound, "conversation not found",
			goerr.V("tenant_id", tenantID), goerr.V("conversation_id", id))
	}
	return conv, nil
}

// CreateConversation implements store.Ledger.
func (l *Ledger) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if conv.TenantID == "" {
		return goerr.Wrap(model.ErrInvalidInput, "conversation has no tenant")
	}
	if conv.ID == "" {
		conv.ID = uuid.Must(uuid.NewV7()).String()
	}
	if conv.VisitorID == "" {
		conv.VisitorID = model.AnonymousVisitor
	}
	if conv.Status == "" {
		conv.Status = model.StatusActive
	}
	if !conv.Status.Valid() {
		return goerr.Wrap(model.ErrInvalidInput, "invalid conversation status", goerr.V("status", conv.Status))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.conversations[conv.ID]; exists {
		return goerr.Wrap(model.ErrInvalidInput, "conversation already exists", goerr.V("conversation_id", conv.ID))
	}

	now := l.now()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	l.conversations[conv.ID] = copyConversation(conv)
	return nil
}

// GetConversation implements store.Ledger.
func (l *Ledger) GetConversation(ctx context.Context, tenantID, id string) (*model.Conversation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	conv, err := l.conversation(tenantID, id)
	if err != nil {
		return nil, err
	}
	return copyConversation(conv), nil
}

// FindOpenConversation implements store.Ledger.
func (l *Ledger) FindOpenConversation(ctx context.Context, tenantID, visitorID string) (*model.Conversation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var latest *model.Conversation
	for _, conv := range l.conversations {
		if conv.TenantID != tenantID || conv.VisitorID != visitorID || conv.Status == model.StatusResolved {
			continue
		}
		if latest == nil || conv.CreatedAt.After(latest.CreatedAt) ||
			(conv.CreatedAt.Equal(latest.CreatedAt) && conv.ID > latest.ID) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, goerr.Wrap(model.ErrConversationNotFound, "no open conversation",
			goerr.V("tenant_id", tenantID), goerr.V("visitor_id", visitorID))
	}
	return copyConversation(latest), nil
}

// ListConversations implements store.Ledger.
func (l *Ledger) ListConversations(ctx context.Context, tenantID string, filter store.ConversationFilter) ([]model.Conversation, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var convs []model.Conversation
	for _, conv := range l.conversations {
		if conv.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && conv.Status != filter.Status {
			continue
		}
		convs = append(convs, *copyConversation(conv))
	}

	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].ID > convs[j].ID
	})

	total := len(convs)
	start := filter.Offset
	if start > total {
		start = total
	}
	if start < 0 {
		start = 0
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < total {
		end = start + filter.Limit
	}

	return append([]model.Conversation{}, convs[start:end]...), total, nil
}

// CountConversationsSince implements store.Ledger.
func (l *Ledger) CountConversationsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, conv := range l.conversations {
		if conv.TenantID == tenantID && !conv.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// AppendTurn implements store.Ledger.
func (l *Ledger) AppendTurn(ctx context.Context, tenantID string, msg *model.Message) error {
	if err := store.ValidateTurn(msg); err != nil {
		return goerr.Wrap(err, "rejected turn", goerr.V("role", msg.Role), goerr.V("conversation_id", msg.ConversationID))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	conv, err := l.conversation(tenantID, msg.ConversationID)
	if err != nil {
		return err
	}
	if msg.Role == model.RoleAssistant && conv.Status == model.StatusResolved {
		return goerr.Wrap(model.ErrConversationResolved, "assistant turn on resolved conversation",
			goerr.V("conversation_id", conv.ID))
	}

	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	msg.CreatedAt = l.now()

	l.turns[conv.ID] = append(l.turns[conv.ID], copyMessage(msg))
	conv.UpdatedAt = msg.CreatedAt
	return nil
}

// SetStatus implements store.Ledger.
func (l *Ledger) SetStatus(ctx context.Context, tenantID, id string, status model.ConversationStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	conv, err := l.conversation(tenantID, id)
	if err != nil {
		return err
	}
	if !model.CanTransition(conv.Status, status) {
		return goerr.Wrap(model.ErrInvalidTransition, "status change not allowed",
			goerr.V("conversation_id", id), goerr.V("from", conv.Status), goerr.V("to", status))
	}
	if conv.Status == status {
		return nil
	}

	conv.Status = status
	conv.UpdatedAt = l.now()
	return nil
}

// ListTurns implements store.Ledger.
func (l *Ledger) ListTurns(ctx context.Context, tenantID, conversationID string) ([]model.Message, error) {
	return l.RecentTurns(ctx, tenantID, conversationID, -1)
}

// RecentTurns implements store.Ledger. A negative n returns every turn.
func (l *Ledger) RecentTurns(ctx context.Context, tenantID, conversationID string, n int) ([]model.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.conversation(tenantID, conversationID); err != nil {
		return nil, err
	}

	turns := l.turns[conversationID]
	if n >= 0 && n < len(turns) {
		turns = turns[len(turns)-n:]
	}

	out := make([]model.Message, len(turns))
	for i, m := range turns {
		out[i] = *copyMessage(m)
	}
	return out, nil
}
