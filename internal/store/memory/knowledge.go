// Package memory provides in-process implementations of the store ports,
// used by tests and single-node development setups.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/store"
)

var _ store.KnowledgeStore = (*KnowledgeStore)(nil)

// documentKey identifies one knowledge document.
type documentKey struct {
	tenantID string
	kind     model.SourceKind
	name     string
}

// KnowledgeStore keeps chunks in memory and searches them by brute force.
type KnowledgeStore struct {
	mu        sync.RWMutex
	documents map[documentKey][]*model.KnowledgeChunk
}

// NewKnowledgeStore creates an empty store.
func NewKnowledgeStore() *KnowledgeStore {
	return &KnowledgeStore{
		documents: make(map[documentKey][]*model.KnowledgeChunk),
	}
}

func copyChunk(c *model.KnowledgeChunk) *model.KnowledgeChunk {
	copied := *c
	if c.Embedding != nil {
		copied.Embedding = make([]float32, len(c.Embedding))
		copy(copied.Embedding, c.Embedding)
	}
	if c.Metadata != nil {
		copied.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}

// UpsertChunks implements store.KnowledgeStore.
func (s *KnowledgeStore) UpsertChunks(ctx context.Context, tenantID string, kind model.SourceKind, name string, chunks []model.KnowledgeChunk) error {
	if tenantID == "" || name == "" || !kind.Valid() {
		return goerr.Wrap(model.ErrInvalidInput, "invalid document key",
			goerr.V("tenant_id", tenantID), goerr.V("source_type", kind), goerr.V("source_name", name))
	}

	now := time.Now().UTC()
	replacement := make([]*model.KnowledgeChunk, 0, len(chunks))
	for i := range chunks {
		c := copyChunk(&chunks[i])
		if c.ID == "" {
			c.ID = uuid.Must(uuid.NewV7()).String()
		}
		c.TenantID = tenantID
		c.SourceKind = kind
		c.SourceName = name
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		replacement = append(replacement, c)
	}

	key := documentKey{tenantID: tenantID, kind: kind, name: name}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(replacement) == 0 {
		delete(s.documents, key)
		return nil
	}
	s.documents[key] = replacement
	return nil
}

// DeleteSource implements store.KnowledgeStore.
func (s *KnowledgeStore) DeleteSource(ctx context.Context, tenantID string, kind model.SourceKind, name string) (int, error) {
	key := documentKey{tenantID: tenantID, kind: kind, name: name}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.documents[key])
	delete(s.documents, key)
	return n, nil
}

// NearestNeighbors implements store.KnowledgeStore.
func (s *KnowledgeStore) NearestNeighbors(ctx context.Context, tenantID string, vector []float32, k int) ([]model.RetrievalResult, error) {
	if k <= 0 || isZero(vector) {
		return []model.RetrievalResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []model.RetrievalResult
	for key, chunks := range s.documents {
		if key.tenantID != tenantID {
			continue
		}
		for _, c := range chunks {
			if len(c.Embedding) == 0 {
				continue
			}
			candidates = append(candidates, model.RetrievalResult{
				Chunk:      *copyChunk(c),
				Similarity: cosineSimilarity(vector, c.Embedding),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k], nil
}

// ListSources implements store.KnowledgeStore.
func (s *KnowledgeStore) ListSources(ctx context.Context, tenantID string) ([]model.SourceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := []model.SourceSummary{}
	for key, chunks := range s.documents {
		if key.tenantID != tenantID {
			continue
		}
		summary := model.SourceSummary{
			SourceKind: key.kind,
			SourceName: key.name,
			ChunkCount: len(chunks),
		}
		for _, c := range chunks {
			summary.Characters += utf8.RuneCountInString(c.Content)
			if summary.CreatedAt.IsZero() || c.CreatedAt.Before(summary.CreatedAt) {
				summary.CreatedAt = c.CreatedAt
			}
			if c.UpdatedAt.After(summary.UpdatedAt) {
				summary.UpdatedAt = c.UpdatedAt
			}
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
		}
		return summaries[i].SourceName < summaries[j].SourceName
	})

	return summaries, nil
}

// CountSources implements store.KnowledgeStore.
func (s *KnowledgeStore) CountSources(ctx context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for key := range s.documents {
		if key.tenantID == tenantID {
			n++
		}
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

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
