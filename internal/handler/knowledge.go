package handler

import (
	"net/http"
	"strings"

	"github.com/capitalize-ai/supportdesk/internal/middleware"
	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/internal/service"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

var documentLimit = errorCase{model.ErrLimitReached, http.StatusForbidden, "Document limit reached"}

// KnowledgeHandler handles the dashboard knowledge base endpoints.
type KnowledgeHandler struct {
	service *service.KnowledgeService
	logger  *logger.Logger
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(svc *service.KnowledgeService, log *logger.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/knowledge-base
func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.List(r.Context(), middleware.GetTenantID(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to fetch knowledge base")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddText handles POST /api/v1/knowledge-base/text
func (h *KnowledgeHandler) AddText(w http.ResponseWriter, r *http.Request) {
	var req model.AddTextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Title and content are required")
		return
	}
	if err := middleware.ValidateTitle(req.Title); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateDocument(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.AddText(r.Context(), middleware.GetTenantID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to add text", documentLimit)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddFAQ handles POST /api/v1/knowledge-base/faq
func (h *KnowledgeHandler) AddFAQ(w http.ResponseWriter, r *http.Request) {
	var req model.AddFAQRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, "Question and answer are required")
		return
	}
	if err := middleware.ValidateDocument(req.Question + req.Answer); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.AddFAQ(r.Context(), middleware.GetTenantID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to add FAQ", documentLimit)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddPDF handles POST /api/v1/knowledge-base/pdf. The client extracts the
// text before upload.
func (h *KnowledgeHandler) AddPDF(w http.ResponseWriter, r *http.Request) {
	var req model.AddPDFRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.FileName) == "" {
		writeError(w, http.StatusBadRequest, "File name is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Could not extract text from PDF")
		return
	}
	if err := middleware.ValidateDocument(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.AddPDF(r.Context(), middleware.GetTenantID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to process PDF", documentLimit)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/knowledge-base
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req model.DeleteSourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.SourceName) == "" || !req.SourceType.Valid() {
		writeError(w, http.StatusBadRequest, "Source name and type are required")
		return
	}

	n, err := h.service.Delete(r.Context(), middleware.GetTenantID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to delete source")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": n,
	})
}
