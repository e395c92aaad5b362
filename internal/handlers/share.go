package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/logger"
	"github.com/maneesh/sharebox/internal/models"
	"github.com/maneesh/sharebox/internal/sharing"
)

// Sharer changes and queries who may see a file
type Sharer interface {
	SetVisibility(ctx context.Context, storedName, ownerID string, public bool) (*models.File, error)
	ReplaceShares(ctx context.Context, storedName, ownerID, emailList string) (*sharing.ShareResult, error)
	FindSharedWith(ctx context.Context, email string) ([]*models.File, error)
}

// ShareHandler serves visibility and share list endpoints
type ShareHandler struct {
	sharer Sharer
	log    *logger.Logger
}

func NewShareHandler(sharer Sharer, log *logger.Logger) *ShareHandler {
	return &ShareHandler{
		sharer: sharer,
		log:    log.Named("share"),
	}
}

// VisibilityRequest is the body of PATCH /visibility/{storedName}
type VisibilityRequest struct {
	State *bool `json:"state"`
}

// ShareRequest is the body of PATCH /share/{storedName}
type ShareRequest struct {
	// Users is a comma separated list of emails
	Users string `json:"users"`
}

type ShareResponse struct {
	Message    string       `json:"message"`
	File       *models.File `json:"file"`
	Unresolved []string     `json:"unresolved"`
}

type SharedResponse struct {
	Message string         `json:"message"`
	Files   []*models.File `json:"files"`
}

// Visibility handles PATCH /api/files/visibility/{storedName}
func (sh *ShareHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "change_visibility")
	defer span.End()

	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.State == nil {
		writeError(w, sh.log, fmt.Errorf("%w: state must be true or false", apperrors.ErrBadRequest))
		return
	}

	file, err := sh.sharer.SetVisibility(ctx, mux.Vars(r)["storedName"], id.UserID, *req.State)
	if err != nil {
		span.RecordError(err)
		writeError(w, sh.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "Successfully updated",
		File:    file,
	})
}

// Share handles PATCH /api/files/share/{storedName}
func (sh *ShareHandler) Share(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "share_file")
	defer span.End()

	id, ok := caller(w, r)
	if !ok {
		return
	}

	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, sh.log, fmt.Errorf("%w: invalid request body", apperrors.ErrBadRequest))
		return
	}

	res, err := sh.sharer.ReplaceShares(ctx, mux.Vars(r)["storedName"], id.UserID, req.Users)
	if err != nil {
		span.RecordError(err)
		writeError(w, sh.log, err)
		return
	}

	unresolved := res.Unresolved
	if unresolved == nil {
		unresolved = []string{}
	}
	span.SetAttributes(attribute.Int("unresolved_count", len(unresolved)))
	writeJSON(w, http.StatusOK, ShareResponse{
		Message:    "File shared successfully!",
		File:       res.File,
		Unresolved: unresolved,
	})
}

// Shared handles GET /api/files/shared?email=
func (sh *ShareHandler) Shared(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "shared_files")
	defer span.End()

	files, err := sh.sharer.FindSharedWith(ctx, r.URL.Query().Get("email"))
	if err != nil {
		span.RecordError(err)
		writeError(w, sh.log, err)
		return
	}

	if len(files) == 0 {
		writeJSON(w, http.StatusOK, SharedResponse{
			Message: "No files found for the provided email",
			Files:   []*models.File{},
		})
		return
	}
	writeJSON(w, http.StatusOK, SharedResponse{
		Message: "Files found",
		Files:   files,
	})
}
