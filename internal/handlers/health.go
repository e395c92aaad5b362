package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/maneesh/sharebox/internal/logger"
)

// Pinger is a dependency that can report whether it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the reachability of the service's backends
type HealthHandler struct {
	deps    map[string]Pinger
	timeout time.Duration
	log     *logger.Logger
}

func NewHealthHandler(deps map[string]Pinger, timeout time.Duration, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		deps:    deps,
		timeout: timeout,
		log:     log.Named("health"),
	}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ServeHTTP handles GET /health
func (hh *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), hh.timeout)
	defer cancel()

	names := make([]string, 0, len(hh.deps))
	for name := range hh.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := hh.deps[name].Ping(ctx); err != nil {
			hh.log.Warn("dependency unhealthy", zap.String("dependency", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
