package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/store"
)

var _ store.Ledger = (*Ledger)(nil)

// Ledger implements store.Ledger. Messages are only ever inserted.
type Ledger struct {
	db *DB
}

// NewLedger creates a Ledger.
func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db}
}

const conversationColumns = `id, workspace_id, visitor_id, visitor_email, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		conv  model.Conversation
		email sql.NullString
	)
	err := row.Scan(&conv.ID, &conv.TenantID, &conv.VisitorID, &email, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	conv.VisitorEmail = stringPtr(email)
	return &conv, nil
}

func notFound(tenantID, id string) error {
	return goerr.Wrap(model.ErrConversationNotFound, "conversation not found",
		goerr.V("tenant_id", tenantID), goerr.V("conversation_id", id))
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

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, workspace_id, visitor_id, visitor_email, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, conv.ID, conv.TenantID, conv.VisitorID, nullString(conv.VisitorEmail), conv.Status).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return goerr.Wrap(err, "failed to create conversation", goerr.V("tenant_id", conv.TenantID))
	}
	return nil
}

// GetConversation implements store.Ledger.
func (l *Ledger) GetConversation(ctx context.Context, tenantID, id string) (*model.Conversation, error) {
	conv, err := scanConversation(l.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1 AND workspace_id = $2`, id, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(tenantID, id)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation_id", id))
	}
	return conv, nil
}

// FindOpenConversation implements store.Ledger.
func (l *Ledger) FindOpenConversation(ctx context.Context, tenantID, visitorID string) (*model.Conversation, error) {
	conv, err := scanConversation(l.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE workspace_id = $1 AND visitor_id = $2 AND status <> $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, tenantID, visitorID, model.StatusResolved))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrConversationNotFound, "no open conversation",
			goerr.V("tenant_id", tenantID), goerr.V("visitor_id", visitorID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to find open conversation", goerr.V("visitor_id", visitorID))
	}
	return conv, nil
}

// ListConversations implements store.Ledger.
func (l *Ledger) ListConversations(ctx context.Context, tenantID string, filter store.ConversationFilter) ([]model.Conversation, int, error) {
	var total int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE workspace_id = $1 AND ($2 = '' OR status = $2)`,
		tenantID, filter.Status).Scan(&total)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to count conversations", goerr.V("tenant_id", tenantID))
	}

	limit := sql.NullInt64{}
	if filter.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(filter.Limit), Valid: true}
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE workspace_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY updated_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, tenantID, filter.Status, limit, offset)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to list conversations", goerr.V("tenant_id", tenantID))
	}
	defer rows.Close()

	convs := []model.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to scan conversation")
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, goerr.Wrap(err, "failed to iterate conversations")
	}

	return convs, total, nil
}

// CountConversationsSince implements store.Ledger.
func (l *Ledger) CountConversationsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE workspace_id = $1 AND created_at >= $2`,
		tenantID, since).Scan(&n)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count conversations", goerr.V("tenant_id", tenantID))
	}
	return n, nil
}

// AppendTurn implements store.Ledger. The conversation row is share-locked
// so a concurrent resolve cannot interleave with the status check.
func (l *Ledger) AppendTurn(ctx context.Context, tenantID string, msg *model.Message) error {
	if err := store.ValidateTurn(msg); err != nil {
		return goerr.Wrap(err, "rejected turn", goerr.V("role", msg.Role), goerr.V("conversation_id", msg.ConversationID))
	}
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}

	var sources any
	if len(msg.Sources) > 0 {
		data, err := json.Marshal(msg.Sources)
		if err != nil {
			return goerr.Wrap(err, "failed to encode sources")
		}
		sources = string(data)
	}

	return l.db.Transaction(ctx, func(tx *sql.Tx) error {
		var status model.ConversationStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM conversations WHERE id = $1 AND workspace_id = $2 FOR SHARE`,
			msg.ConversationID, tenantID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(tenantID, msg.ConversationID)
		}
		if err != nil {
			return goerr.Wrap(err, "failed to lock conversation", goerr.V("conversation_id", msg.ConversationID))
		}
		if msg.Role == model.RoleAssistant && status == model.StatusResolved {
			return goerr.Wrap(model.ErrConversationResolved, "assistant turn on resolved conversation",
				goerr.V("conversation_id", msg.ConversationID))
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, sources, confidence)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at
		`, msg.ID, msg.ConversationID, msg.Role, msg.Content, sources, nullFloat(msg.Confidence)).Scan(&msg.CreatedAt)
		if err != nil {
			return goerr.Wrap(err, "failed to insert message", goerr.V("conversation_id", msg.ConversationID))
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = $2 WHERE id = $1`, msg.ConversationID, msg.CreatedAt); err != nil {
			return goerr.Wrap(err, "failed to touch conversation", goerr.V("conversation_id", msg.ConversationID))
		}
		return nil
	})
}

// SetStatus implements store.Ledger.
func (l *Ledger) SetStatus(ctx context.Context, tenantID, id string, status model.ConversationStatus) error {
	return l.db.Transaction(ctx, func(tx *sql.Tx) error {
		var current model.ConversationStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM conversations WHERE id = $1 AND workspace_id = $2 FOR UPDATE`,
			id, tenantID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(tenantID, id)
		}
		if err != nil {
			return goerr.Wrap(err, "failed to lock conversation", goerr.V("conversation_id", id))
		}

		if !model.CanTransition(current, status) {
			return goerr.Wrap(model.ErrInvalidTransition, "status change not allowed",
				goerr.V("conversation_id", id), goerr.V("from", current), goerr.V("to", status))
		}
		if current == status {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET status = $2, updated_at = now() WHERE id = $1`, id, status); err != nil {
			return goerr.Wrap(err, "failed to update status", goerr.V("conversation_id", id))
		}
		return nil
	})
}

// ListTurns implements store.Ledger.
func (l *Ledger) ListTurns(ctx context.Context, tenantID, conversationID string) ([]model.Message, error) {
	if _, err := l.GetConversation(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, sources, confidence, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list turns", goerr.V("conversation_id", conversationID))
	}
	defer rows.Close()

	return scanMessages(rows)
}

// RecentTurns implements store.Ledger.
func (l *Ledger) RecentTurns(ctx context.Context, tenantID, conversationID string, n int) ([]model.Message, error) {
	if _, err := l.GetConversation(ctx, tenantID, conversationID); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []model.Message{}, nil
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, sources, confidence, created_at
		FROM (
			SELECT id, conversation_id, role, content, sources, confidence, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) AS recent
		ORDER BY created_at, id
	`, conversationID, n)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list recent turns", goerr.V("conversation_id", conversationID))
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	messages := []model.Message{}
	for rows.Next() {
		var (
			m          model.Message
			sources    []byte
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &sources, &confidence, &m.CreatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan message")
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &m.Sources); err != nil {
				return nil, goerr.Wrap(err, "failed to decode sources", goerr.V("message_id", m.ID))
			}
		}
		m.Confidence = floatPtr(confidence)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate messages")
	}
	return messages, nil
}
