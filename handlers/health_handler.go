package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/rag-chat/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Documents *int              `json:"documents,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// DocumentCounter is satisfied by every vector store
type DocumentCounter interface {
	Count(ctx context.Context) (int, error)
}

// HealthChecker is satisfied by the postgres connection
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	store  DocumentCounter
	db     HealthChecker
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil when no
// database is configured.
func NewHealthHandler(store DocumentCounter, db HealthChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		db:     db,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Basic liveness check - always returns 200 if the process is serving
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true
	response := HealthResponse{Timestamp: time.Now().UTC().Format(time.RFC3339)}

	if h.store == nil {
		checks["vector_store"] = "not_initialized"
		allHealthy = false
	} else if n, err := h.store.Count(ctx); err != nil {
		h.logger.Warn("vector store health check failed", zap.Error(err))
		checks["vector_store"] = "unhealthy"
		allHealthy = false
	} else {
		checks["vector_store"] = "healthy"
		response.Documents = &n
	}

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			allHealthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	response.Status = "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		response.Status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}
	response.Checks = checks

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
