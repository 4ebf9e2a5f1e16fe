// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/supportdesk/internal/middleware"
	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies. Documents are the largest.
const maxBodyBytes = middleware.MaxDocumentLength + 64<<10

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// errorCase maps a sentinel error to a response.
type errorCase struct {
	target  error
	status  int
	message string
}

var defaultErrorCases = []errorCase{
	{model.ErrTenantNotFound, http.StatusNotFound, "Workspace not found"},
	{model.ErrConversationNotFound, http.StatusNotFound, "Conversation not found"},
	{model.ErrConversationResolved, http.StatusConflict, "Conversation is resolved"},
	{model.ErrInvalidTransition, http.StatusConflict, "Invalid status transition"},
	{model.ErrInvalidInput, http.StatusBadRequest, "Invalid request"},
}

// writeServiceError maps err to a response. cases are checked before the
// defaults; anything unmatched is a 500 with fallback as the message.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error, fallback string, cases ...errorCase) {
	for _, list := range [][]errorCase{cases, defaultErrorCases} {
		for _, c := range list {
			if errors.Is(err, c.target) {
				log.Debug("request rejected",
					append(logger.Err(err),
						zap.String("path", r.URL.Path),
						zap.Int("status", c.status),
					)...,
				)
				writeError(w, c.status, c.message)
				return
			}
		}
	}

	log.Error(fallback,
		append(logger.Err(err),
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		)...,
	)
	writeError(w, http.StatusInternalServerError, fallback)
}
