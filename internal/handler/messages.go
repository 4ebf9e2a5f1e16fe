package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/supportdesk/internal/middleware"
	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/service"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

// MessageHandler handles agent turns and the event trail of a conversation.
type MessageHandler struct {
	conversationService *service.ConversationService
	logger              *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(convSvc *service.ConversationService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		conversationService: convSvc,
		logger:              log,
	}
}

// Reply handles POST /api/v1/conversations/{id}/replies
func (h *MessageHandler) Reply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.AgentReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.conversationService.Reply(ctx, middleware.GetTenantID(ctx), conversationID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to send reply")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Events handles GET /api/v1/conversations/{id}/events
func (h *MessageHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	events, err := h.conversationService.Events(ctx, middleware.GetTenantID(ctx), conversationID, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to fetch events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
