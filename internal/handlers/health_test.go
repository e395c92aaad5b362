package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/sharebox/internal/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func up(ctx context.Context) error { return nil }

func TestHealthAllUp(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{"tidb": pingFunc(up), "minio": pingFunc(up)}, time.Second, logger.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]string{"tidb": "ok", "minio": "ok"}, resp.Checks)
}

func TestHealthDegraded(t *testing.T) {
	down := pingFunc(func(ctx context.Context) error { return errors.New("connection refused") })
	h := NewHealthHandler(map[string]Pinger{"tidb": pingFunc(up), "redis": down}, time.Second, logger.NewNop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"])
}
