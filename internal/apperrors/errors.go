// Package apperrors defines the failure reasons surfaced by sharebox and
// their mapping onto HTTP status codes and response codes.
package apperrors

import (
	"errors"
	"net/http"
)

var (
	// ErrNotConfigured means no storage limit record exists. All uploads are refused.
	ErrNotConfigured = errors.New("storage limit not set")
	// ErrQuotaExceeded means the upload would take the owner over the ceiling.
	ErrQuotaExceeded = errors.New("storage limit exceeded")
	// ErrBlobWrite means the payload could not be written to blob storage.
	ErrBlobWrite = errors.New("failed to store file")
	// ErrMetadataPersist means the blob was written but its record was not.
	ErrMetadataPersist = errors.New("failed to save file metadata")
	// ErrNotFound means no record matched the id and owner.
	ErrNotFound = errors.New("file not found")
	// ErrNoMatchingUsers means none of the given emails belong to a user.
	ErrNoMatchingUsers = errors.New("no users found for the provided emails")
	ErrUnauthorized    = errors.New("invalid token")
	ErrBadRequest      = errors.New("bad request")
	// ErrUploadBusy means another upload by the same owner holds the upload lock.
	ErrUploadBusy = errors.New("another upload is in progress")
)

// Response codes
const (
	CodeNotConfigured   = "NOT_CONFIGURED"
	CodeQuotaExceeded   = "QUOTA_EXCEEDED"
	CodeBlobWrite       = "BLOB_WRITE_FAILED"
	CodeMetadataPersist = "METADATA_PERSIST_FAILED"
	CodeNotFound        = "NOT_FOUND"
	CodeNoMatchingUsers = "NO_MATCHING_USERS"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeBadRequest      = "BAD_REQUEST"
	CodeUploadBusy      = "UPLOAD_BUSY"
	CodeInternal        = "INTERNAL"
)

var table = []struct {
	err    error
	code   string
	status int
}{
	{ErrNotConfigured, CodeNotConfigured, http.StatusInternalServerError},
	{ErrQuotaExceeded, CodeQuotaExceeded, http.StatusBadRequest},
	{ErrBlobWrite, CodeBlobWrite, http.StatusInternalServerError},
	{ErrMetadataPersist, CodeMetadataPersist, http.StatusInternalServerError},
	{ErrNotFound, CodeNotFound, http.StatusNotFound},
	{ErrNoMatchingUsers, CodeNoMatchingUsers, http.StatusNotFound},
	{ErrUnauthorized, CodeUnauthorized, http.StatusUnauthorized},
	{ErrBadRequest, CodeBadRequest, http.StatusBadRequest},
	{ErrUploadBusy, CodeUploadBusy, http.StatusConflict},
}

// Code returns the response code for err, CodeInternal if err is not one of ours.
func Code(err error) string {
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternal
}

// Status returns the HTTP status for err.
func Status(err error) int {
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// Message returns the text safe to show a client. Client errors keep their
// detail; server errors are reduced to the sentinel text.
func Message(err error) string {
	for _, e := range table {
		if errors.Is(err, e.err) {
			if e.status >= http.StatusInternalServerError {
				return e.err.Error()
			}
			return err.Error()
		}
	}
	return "internal server error"
}
