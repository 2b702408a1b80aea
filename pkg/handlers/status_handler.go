package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/auth"
	"github.com/assetlink-io/assetlink-engine/pkg/services"
)

// StatusHandler serves the migration dashboard snapshot.
type StatusHandler struct {
	statusService services.StatusService
	logger        *zap.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(statusService services.StatusService, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		statusService: statusService,
		logger:        logger,
	}
}

// RegisterRoutes registers the status handler's routes on the given mux.
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/status", authMiddleware.RequireAuth(h.Status))
}

// Status handles GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	report, err := h.statusService.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("Failed to build status snapshot", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "status_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
