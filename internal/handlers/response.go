package handlers

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/logger"
	"github.com/maneesh/sharebox/internal/middleware"
	"github.com/maneesh/sharebox/internal/models"
)

var tracer = otel.Tracer("sharebox-handlers")

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// MessageResponse wraps a single file with a human readable message
type MessageResponse struct {
	Message string       `json:"message"`
	File    *models.File `json:"file,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	status := apperrors.Status(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{
		Error: apperrors.Message(err),
		Code:  apperrors.Code(err),
	})
}

// caller returns the authenticated identity or writes a 401
func caller(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: apperrors.ErrUnauthorized.Error(),
			Code:  apperrors.CodeUnauthorized,
		})
	}
	return id, ok
}
