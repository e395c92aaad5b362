package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/sharebox/internal/apperrors"
	"github.com/maneesh/sharebox/internal/logger"
	"github.com/maneesh/sharebox/internal/models"
	"github.com/maneesh/sharebox/internal/sharing"
)

type fakeSharer struct {
	file       *models.File
	unresolved []string
	shared     []*models.File
	err        error

	gotPublic *bool
	gotEmails string
}

func (s *fakeSharer) SetVisibility(ctx context.Context, storedName, ownerID string, public bool) (*models.File, error) {
	s.gotPublic = &public
	if s.err != nil {
		return nil, s.err
	}
	f := *s.file
	f.Anyone = public
	return &f, nil
}

func (s *fakeSharer) ReplaceShares(ctx context.Context, storedName, ownerID, emailList string) (*sharing.ShareResult, error) {
	s.gotEmails = emailList
	if s.err != nil {
		return nil, s.err
	}
	return &sharing.ShareResult{File: s.file, Unresolved: s.unresolved}, nil
}

func (s *fakeSharer) FindSharedWith(ctx context.Context, email string) ([]*models.File, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.shared, nil
}

var vars = map[string]string{"storedName": "abc.txt"}

func TestVisibility(t *testing.T) {
	sharer := &fakeSharer{file: &models.File{StoredName: "abc.txt", OwnerID: "user-1"}}
	h := NewShareHandler(sharer, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Visibility(rec, request(http.MethodPatch, "/api/files/visibility/abc.txt", []byte(`{"state":true}`), &alice, vars))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sharer.gotPublic)
	assert.True(t, *sharer.gotPublic)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.File.Anyone)
}

func TestVisibilityRejects(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing state", `{}`, nil, http.StatusBadRequest},
		{"not a bool", `{"state":"yes"}`, nil, http.StatusBadRequest},
		{"not owner", `{"state":false}`, apperrors.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewShareHandler(&fakeSharer{file: &models.File{}, err: tt.err}, logger.NewNop())

			rec := httptest.NewRecorder()
			h.Visibility(rec, request(http.MethodPatch, "/api/files/visibility/abc.txt", []byte(tt.body), &alice, vars))

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestShare(t *testing.T) {
	sharer := &fakeSharer{
		file: &models.File{
			StoredName: "abc.txt",
			Shared:     []models.Share{{UserID: "user-2", Email: "a@x.com"}},
		},
		unresolved: []string{"bogus@nowhere"},
	}
	h := NewShareHandler(sharer, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Share(rec, request(http.MethodPatch, "/api/files/share/abc.txt",
		[]byte(`{"users":"a@x.com,bogus@nowhere"}`), &alice, vars))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com,bogus@nowhere", sharer.gotEmails)

	var resp ShareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "File shared successfully!", resp.Message)
	assert.Equal(t, []string{"bogus@nowhere"}, resp.Unresolved)
	assert.Len(t, resp.File.Shared, 1)
}

func TestShareUnresolvedIsArray(t *testing.T) {
	h := NewShareHandler(&fakeSharer{file: &models.File{}}, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Share(rec, request(http.MethodPatch, "/api/files/share/abc.txt", []byte(`{"users":"a@x.com"}`), &alice, vars))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unresolved":[]`)
}

func TestShareNoMatchingUsers(t *testing.T) {
	h := NewShareHandler(&fakeSharer{err: apperrors.ErrNoMatchingUsers}, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Share(rec, request(http.MethodPatch, "/api/files/share/abc.txt", []byte(`{"users":"ghost@void"}`), &alice, vars))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNoMatchingUsers, decodeError(t, rec).Code)
}

func TestShared(t *testing.T) {
	h := NewShareHandler(&fakeSharer{shared: []*models.File{{StoredName: "abc.txt"}}}, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Shared(rec, request(http.MethodGet, "/api/files/shared?email=a@x.com", nil, nil, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SharedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Files found", resp.Message)
	assert.Len(t, resp.Files, 1)
}

func TestSharedNoMatches(t *testing.T) {
	h := NewShareHandler(&fakeSharer{}, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Shared(rec, request(http.MethodGet, "/api/files/shared?email=nobody@x.com", nil, nil, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"No files found for the provided email","files":[]}`, rec.Body.String())
}

func TestSharedMissingEmail(t *testing.T) {
	h := NewShareHandler(&fakeSharer{err: apperrors.ErrBadRequest}, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Shared(rec, request(http.MethodGet, "/api/files/shared", nil, nil, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
