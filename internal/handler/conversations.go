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

// ConversationHandler handles the dashboard conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := 50
	offset := 0

	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	if o := q.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	status := model.ConversationStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	resp, err := h.service.List(ctx, middleware.GetTenantID(ctx), status, limit, offset)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to fetch conversations")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := h.service.Get(ctx, middleware.GetTenantID(ctx), conversationID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to fetch conversation")
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// Update handles PATCH /api/v1/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	conv, err := h.service.UpdateStatus(ctx, middleware.GetTenantID(ctx), conversationID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to update conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
