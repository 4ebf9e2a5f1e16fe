package model

import (
	"time"
)

// SourceKind identifies how a knowledge document entered the system.
type SourceKind string

const (
	SourcePDF  SourceKind = "pdf"
	SourceFAQ  SourceKind = "faq"
	SourceText SourceKind = "text"
	SourceURL  SourceKind = "url"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourcePDF, SourceFAQ, SourceText, SourceURL:
		return true
	}
	return false
}

// KnowledgeChunk is a retrievable unit of tenant knowledge. All chunks with
// the same (TenantID, SourceKind, SourceName) form one document.
type KnowledgeChunk struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"workspace_id"`
	SourceKind SourceKind     `json:"source_type"`
	SourceName string         `json:"source_name"`
	Content    string         `json:"content"`
	Embedding  []float32      `json:"-"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RetrievalResult is a chunk ranked against one query.
type RetrievalResult struct {
	Chunk      KnowledgeChunk
	Similarity float64
}

// SourceSummary aggregates the chunks of one knowledge document.
type SourceSummary struct {
	SourceKind SourceKind `json:"source_type"`
	SourceName string     `json:"source_name"`
	ChunkCount int        `json:"chunk_count"`
	Characters int        `json:"characters"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// KnowledgeStats summarises a workspace's knowledge base.
type KnowledgeStats struct {
	TotalChunks     int `json:"total_chunks"`
	TotalSources    int `json:"total_sources"`
	TotalCharacters int `json:"total_characters"`
}

// KnowledgeBaseResponse is returned by the knowledge base listing endpoint.
type KnowledgeBaseResponse struct {
	Sources []SourceSummary `json:"sources"`
	Stats   KnowledgeStats  `json:"stats"`
}

// AddTextRequest ingests a pasted text document.
type AddTextRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// AddFAQRequest ingests a single question/answer pair.
type AddFAQRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AddPDFRequest ingests text already extracted from a PDF upload.
type AddPDFRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	Text     string `json:"text"`
}

// DeleteSourceRequest removes one knowledge document.
type DeleteSourceRequest struct {
	SourceName string     `json:"sourceName"`
	SourceType SourceKind `json:"sourceType"`
}

// IngestResponse reports how many chunks a document produced.
type IngestResponse struct {
	Success bool `json:"success"`
	Chunks  int  `json:"chunks"`
}
