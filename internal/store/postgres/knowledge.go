package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pgvector/pgvector-go"

	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/store"
)

var _ store.KnowledgeStore = (*KnowledgeStore)(nil)

// KnowledgeStore implements store.KnowledgeStore on a pgvector column.
type KnowledgeStore struct {
	db *DB
}

// NewKnowledgeStore creates a KnowledgeStore.
func NewKnowledgeStore(db *DB) *KnowledgeStore {
	return &KnowledgeStore{db: db}
}

// UpsertChunks implements store.KnowledgeStore. The delete and the inserts
// share one transaction.
func (s *KnowledgeStore) UpsertChunks(ctx context.Context, tenantID string, kind model.SourceKind, name string, chunks []model.KnowledgeChunk) error {
	if tenantID == "" || name == "" || !kind.Valid() {
		return goerr.Wrap(model.ErrInvalidInput, "invalid document key",
			goerr.V("tenant_id", tenantID), goerr.V("source_type", kind), goerr.V("source_name", name))
	}

	now := time.Now().UTC()

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM knowledge_chunks WHERE workspace_id = $1 AND source_type = $2 AND source_name = $3`,
			tenantID, kind, name)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO knowledge_chunks (id, workspace_id, source_type, source_name, content, embedding, metadata, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			id := c.ID
			if id == "" {
				id = uuid.Must(uuid.NewV7()).String()
			}
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}

			var embedding any
			if len(c.Embedding) > 0 {
				embedding = pgvector.NewVector(c.Embedding)
			}

			metadata, err := json.Marshal(c.Metadata)
			if err != nil {
				return err
			}
			if c.Metadata == nil {
				metadata = []byte("{}")
			}

			if _, err := stmt.ExecContext(ctx, id, tenantID, kind, name, c.Content, embedding, metadata, createdAt, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upsert document",
			goerr.V("tenant_id", tenantID), goerr.V("source_type", kind), goerr.V("source_name", name))
	}
	return nil
}

// DeleteSource implements store.KnowledgeStore.
func (s *KnowledgeStore) DeleteSource(ctx context.Context, tenantID string, kind model.SourceKind, name string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM knowledge_chunks WHERE workspace_id = $1 AND source_type = $2 AND source_name = $3`,
		tenantID, kind, name)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete document",
			goerr.V("tenant_id", tenantID), goerr.V("source_type", kind), goerr.V("source_name", name))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count deleted chunks")
	}
	return int(n), nil
}

// NearestNeighbors implements store.KnowledgeStore. Similarity is
// 1 - cosine distance; chunks stored with a zero vector rank last with
// similarity 0.
func (s *KnowledgeStore) NearestNeighbors(ctx context.Context, tenantID string, vector []float32, k int) ([]model.RetrievalResult, error) {
	if k <= 0 || isZero(vector) {
		return []model.RetrievalResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, source_type, source_name, content, metadata, created_at, updated_at,
		       1 - (embedding <=> $2) AS similarity
		FROM knowledge_chunks
		WHERE workspace_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2, id
		LIMIT $3
	`, tenantID, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to search chunks", goerr.V("tenant_id", tenantID))
	}
	defer rows.Close()

	results := []model.RetrievalResult{}
	for rows.Next() {
		var (
			r        model.RetrievalResult
			metadata []byte
		)
		err := rows.Scan(
			&r.Chunk.ID,
			&r.Chunk.TenantID,
			&r.Chunk.SourceKind,
			&r.Chunk.SourceName,
			&r.Chunk.Content,
			&metadata,
			&r.Chunk.CreatedAt,
			&r.Chunk.UpdatedAt,
			&r.Similarity,
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan chunk")
		}
		if math.IsNaN(r.Similarity) {
			r.Similarity = 0
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Chunk.Metadata); err != nil {
				return nil, goerr.Wrap(err, "failed to decode chunk metadata", goerr.V("chunk_id", r.Chunk.ID))
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate chunks")
	}

	return results, nil
}

// ListSources implements store.KnowledgeStore.
func (s *KnowledgeStore) ListSources(ctx context.Context, tenantID string) ([]model.SourceSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_type, source_name, COUNT(*), COALESCE(SUM(char_length(content)), 0),
		       MIN(created_at), MAX(updated_at)
		FROM knowledge_chunks
		WHERE workspace_id = $1
		GROUP BY source_type, source_name
		ORDER BY MAX(updated_at) DESC, source_name
	`, tenantID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sources", goerr.V("tenant_id", tenantID))
	}
	defer rows.Close()

	summaries := []model.SourceSummary{}
	for rows.Next() {
		var src model.SourceSummary
		if err := rows.Scan(&src.SourceKind, &src.SourceName, &src.ChunkCount, &src.Characters, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan source")
		}
		summaries = append(summaries, src)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate sources")
	}

	return summaries, nil
}

// CountSources implements store.KnowledgeStore.
func (s *KnowledgeStore) CountSources(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT DISTINCT source_type, source_name FROM knowledge_chunks WHERE workspace_id = $1
		) AS documents
	`, tenantID).Scan(&n)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count sources", goerr.V("tenant_id", tenantID))
	}
	return n, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
