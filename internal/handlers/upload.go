package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/logger"
	"github.com/maneesh/sharebox/internal/models"
	"github.com/maneesh/sharebox/internal/quota"
)

const filePart = "file"

// Admitter decides whether an upload fits its owner's quota and stores it
type Admitter interface {
	Admit(ctx context.Context, up quota.Upload) (*models.File, error)
}

// UploadHandler handles multipart file uploads
type UploadHandler struct {
	admitter      Admitter
	maxFieldBytes int64
	log           *logger.Logger
}

// NewUploadHandler creates a new upload handler. maxFieldBytes bounds the
// form fields buffered in memory ahead of the file part.
func NewUploadHandler(admitter Admitter, maxFieldBytes int64, log *logger.Logger) *UploadHandler {
	return &UploadHandler{
		admitter:      admitter,
		maxFieldBytes: maxFieldBytes,
		log:           log.Named("upload"),
	}
}

// ServeHTTP handles POST /api/files/upload
//
// The form is read part by part and the file part is handed to the
// admission controller as a stream, so quota is checked before any payload
// bytes are read. Fields sent after the file part are ignored.
func (uh *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "upload_file",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	id, ok := caller(w, r)
	if !ok {
		return
	}
	log := uh.log.With(zap.String("user_id", id.UserID))

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, log, fmt.Errorf("%w: expected multipart form: %v", apperrors.ErrBadRequest, err))
		return
	}

	fields := map[string]string{}
	remaining := uh.maxFieldBytes
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, log, fmt.Errorf("%w: no file uploaded", apperrors.ErrBadRequest))
			return
		}
		if err != nil {
			writeError(w, log, fmt.Errorf("%w: malformed multipart form: %v", apperrors.ErrBadRequest, err))
			return
		}

		if part.FormName() == filePart {
			uh.admit(ctx, w, log, id.UserID, part, fields)
			part.Close()
			return
		}

		value, err := io.ReadAll(io.LimitReader(part, remaining+1))
		part.Close()
		if err != nil {
			writeError(w, log, fmt.Errorf("%w: failed to read field %q: %v", apperrors.ErrBadRequest, part.FormName(), err))
			return
		}
		if int64(len(value)) > remaining {
			writeError(w, log, fmt.Errorf("%w: form fields too large", apperrors.ErrBadRequest))
			return
		}
		remaining -= int64(len(value))
		fields[part.FormName()] = string(value)
	}
}

func (uh *UploadHandler) admit(ctx context.Context, w http.ResponseWriter, log *logger.Logger, ownerID string, part *multipart.Part, fields map[string]string) {
	span := trace.SpanFromContext(ctx)

	clientName := filepath.Base(part.FileName())
	if clientName == "." || clientName == string(filepath.Separator) {
		clientName = ""
	}
	fileName := strings.TrimSpace(fields["fileName"])
	if fileName == "" {
		fileName = clientName
	}
	if fileName == "" {
		writeError(w, log, fmt.Errorf("%w: fileName is required", apperrors.ErrBadRequest))
		return
	}

	contentType := part.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var folderID *string
	if v := strings.TrimSpace(fields["folderId"]); v != "" {
		folderID = &v
	}

	// size is the client's own claim for the file part; the request's
	// Content-Length covers the whole form and is not used.
	var declared int64
	if v, err := strconv.ParseInt(strings.TrimSpace(fields["size"]), 10, 64); err == nil && v > 0 {
		declared = v
	}

	span.SetAttributes(
		attribute.String("file_name", fileName),
		attribute.String("content_type", contentType),
	)

	file, err := uh.admitter.Admit(ctx, quota.Upload{
		OwnerID:      ownerID,
		FileName:     fileName,
		ContentType:  contentType,
		Extension:    filepath.Ext(clientName),
		FolderID:     folderID,
		DeclaredSize: declared,
		Body:         part,
	})
	if err != nil {
		span.RecordError(err)
		writeError(w, log, err)
		return
	}

	span.SetAttributes(
		attribute.String("file_id", file.ID),
		attribute.Int64("file_size", file.Size),
	)
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "File uploaded successfully",
		File:    file,
	})
}
