package handler

import (
	"net/http"
	"strings"

	"github.com/capitalize-ai/supportdesk/internal/middleware"
	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/service"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

// ChatHandler handles the public widget endpoints.
type ChatHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// Send handles POST /api/chat
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.WorkspaceKey) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Workspace key and message are required")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Send(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to process message",
			errorCase{model.ErrLimitReached, http.StatusTooManyRequests, "Conversation limit reached for this workspace"},
			errorCase{model.ErrInvalidTransition, http.StatusConflict, "Conversation is resolved"},
		)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /api/chat/history
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	workspaceKey := q.Get("workspaceKey")
	if workspaceKey == "" {
		writeError(w, http.StatusBadRequest, "Workspace key required")
		return
	}

	resp, err := h.service.History(r.Context(), workspaceKey, q.Get("conversationId"), q.Get("visitorId"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to fetch history")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Config handles GET /api/widget/config
func (h *ChatHandler) Config(w http.ResponseWriter, r *http.Request) {
	workspaceKey := r.URL.Query().Get("workspaceKey")
	if workspaceKey == "" {
		writeError(w, http.StatusBadRequest, "Workspace key required")
		return
	}

	cfg, err := h.service.WidgetConfig(r.Context(), workspaceKey)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to fetch widget config")
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// Handoff handles POST /api/tickets/widget
func (h *ChatHandler) Handoff(w http.ResponseWriter, r *http.Request) {
	var req model.HandoffRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.WorkspaceKey) == "" {
		writeError(w, http.StatusBadRequest, "Workspace key required")
		return
	}

	resp, err := h.service.RequestHandoff(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to create ticket")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
