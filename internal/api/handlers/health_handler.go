package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lumnicode/engine/internal/api/types"
	"github.com/lumnicode/engine/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type healthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{Status: "healthy", Timestamp: time.Now().UTC()})
}

// Readiness answers 503 when any dependency check fails.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	res := healthStatus{Status: "ready", Timestamp: time.Now().UTC(), Checks: map[string]string{}}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logger.L().Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			res.Checks[name] = "down"
			res.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "up"
	}
	types.WriteJSON(w, code, types.APIResponse{Success: code == http.StatusOK, Data: res})
}
