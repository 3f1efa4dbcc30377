package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"refcache/internal/shared/errors"
	"refcache/internal/shared/response"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Storage   string `json:"storage"`
	Resolver  string `json:"resolver"`
}

// Pinger is the durable layer's connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	storage  Pinger
	resolver Resolution
}

func NewHealthHandler(storage Pinger, resolver Resolution) *HealthHandler {
	return &HealthHandler{storage: storage, resolver: resolver}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "health")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	storageStatus := "connected"
	if err := h.storage.Ping(ctx); err != nil {
		logger.Warn("Storage ping failed", "error", err)
		storageStatus = "disconnected"
		status = "degraded"
	}

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
		Storage:   storageStatus,
		Resolver:  h.resolver.State().String(),
	}

	response.Success(w, http.StatusOK, resp)
}
