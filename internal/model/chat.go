package model

// ChatRequest is the widget's chat request body. Field names are part of the
// embedded widget contract.
type ChatRequest struct {
	WorkspaceKey   string `json:"workspaceKey"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	VisitorID      string `json:"visitorId,omitempty"`
}

// SourceRef names a knowledge document that contributed to an answer.
type SourceRef struct {
	Name string     `json:"name"`
	Type SourceKind `json:"type"`
}

// ChatResponse is the widget's chat response body.
type ChatResponse struct {
	ConversationID string      `json:"conversationId"`
	Message        string      `json:"message"`
	Confidence     float64     `json:"confidence"`
	NeedsHuman     bool        `json:"needsHuman"`
	Sources        []SourceRef `json:"sources"`
}

// HandoffRequest is sent by the widget when a visitor asks for a human.
type HandoffRequest struct {
	WorkspaceKey   string `json:"workspaceKey"`
	ConversationID string `json:"conversationId,omitempty"`
	VisitorID      string `json:"visitorId,omitempty"`
}

// HandoffResponse acknowledges a handoff request.
type HandoffResponse struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message,omitempty"`
}
