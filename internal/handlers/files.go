package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/logger"
	"github.com/maneesh/sharebox/internal/models"
)

// FileStore lists and renames the caller's files
type FileStore interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*models.File, error)
	Rename(ctx context.Context, fileID, ownerID, newName, actor string, at time.Time) (*models.File, error)
}

// LimitProvider exposes the configured storage limit
type LimitProvider interface {
	Limit(ctx context.Context) (*models.Limit, error)
}

// FilesHandler serves the owner's file listing, the storage limit and renames
type FilesHandler struct {
	files  FileStore
	limits LimitProvider
	log    *logger.Logger
	now    func() time.Time
}

func NewFilesHandler(files FileStore, limits LimitProvider, log *logger.Logger) *FilesHandler {
	return &FilesHandler{
		files:  files,
		limits: limits,
		log:    log.Named("files"),
		now:    time.Now,
	}
}

// RenameRequest is the body of PATCH /rename/{fileId}
type RenameRequest struct {
	NewFileName string `json:"newFileName"`
}

// List handles GET /api/files/list
func (fh *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_files")
	defer span.End()

	id, ok := caller(w, r)
	if !ok {
		return
	}

	files, err := fh.files.ListByOwner(ctx, id.UserID)
	if err != nil {
		span.RecordError(err)
		writeError(w, fh.log, fmt.Errorf("failed to list files: %w", err))
		return
	}
	if files == nil {
		files = []*models.File{}
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))
	writeJSON(w, http.StatusOK, files)
}

// Limit handles GET /api/files/limit
func (fh *FilesHandler) Limit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "get_limit")
	defer span.End()

	if _, ok := caller(w, r); !ok {
		return
	}

	limit, err := fh.limits.Limit(ctx)
	if errors.Is(err, apperrors.ErrNotConfigured) {
		// a missing limit is a 404 here, unlike on upload
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "no limit configuration found",
			Code:  apperrors.CodeNotConfigured,
		})
		return
	}
	if err != nil {
		span.RecordError(err)
		writeError(w, fh.log, err)
		return
	}
	writeJSON(w, http.StatusOK, limit)
}

// Rename handles PATCH /api/files/rename/{fileId}
func (fh *FilesHandler) Rename(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "rename_file",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	id, ok := caller(w, r)
	if !ok {
		return
	}

	fileID := mux.Vars(r)["fileId"]
	span.SetAttributes(attribute.String("file_id", fileID))

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fh.log, fmt.Errorf("%w: invalid request body", apperrors.ErrBadRequest))
		return
	}
	newName := strings.TrimSpace(req.NewFileName)
	if newName == "" {
		writeError(w, fh.log, fmt.Errorf("%w: newFileName is required", apperrors.ErrBadRequest))
		return
	}

	file, err := fh.files.Rename(ctx, fileID, id.UserID, newName, id.Name, fh.now().UTC())
	if err != nil {
		span.RecordError(err)
		writeError(w, fh.log, err)
		return
	}

	fh.log.Info("file renamed",
		zap.String("file_id", fileID),
		zap.String("user_id", id.UserID),
	)
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "File name updated successfully",
		File:    file,
	})
}
