package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/auth"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// DuplicateListResponse for GET /api/duplicates
type DuplicateListResponse struct {
	Groups []models.DuplicateGroup `json:"groups"`
	Total  int                     `json:"total"`
}

// MergeRequest for POST /api/duplicates/merge
type MergeRequest struct {
	CorrelationIDs []string `json:"correlation_ids" validate:"required,min=2,dive,uuid"`
	MasterID       string   `json:"master_id" validate:"required,uuid"`
}

// ============================================================================
// Handler
// ============================================================================

// DuplicateHandler handles duplicate detection and merge requests.
type DuplicateHandler struct {
	duplicateService services.DuplicateService
	logger           *zap.Logger
}

// NewDuplicateHandler creates a new duplicate handler.
func NewDuplicateHandler(duplicateService services.DuplicateService, logger *zap.Logger) *DuplicateHandler {
	return &DuplicateHandler{
		duplicateService: duplicateService,
		logger:           logger,
	}
}

// RegisterRoutes registers the duplicate handler's routes on the given mux.
func (h *DuplicateHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/duplicates", authMiddleware.RequireAuth(h.Detect))
	mux.HandleFunc("POST /api/duplicates/merge", authMiddleware.RequireAuth(h.Merge))
}

// Detect handles GET /api/duplicates
func (h *DuplicateHandler) Detect(w http.ResponseWriter, r *http.Request) {
	groups, err := h.duplicateService.DetectDuplicates(r.Context())
	if err != nil {
		if errors.Is(err, apperrors.ErrLockHeld) {
			if err := ErrorResponse(w, http.StatusConflict, "scan_in_progress", "Another correlation mutation is in progress"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to detect duplicates", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "detect_duplicates_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := DuplicateListResponse{Groups: groups, Total: len(groups)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Merge handles POST /api/duplicates/merge
func (h *DuplicateHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if err := validate.Struct(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	ids := make([]uuid.UUID, len(req.CorrelationIDs))
	for i, raw := range req.CorrelationIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_correlation_id", "Invalid correlation ID format"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		ids[i] = id
	}
	masterID, err := uuid.Parse(req.MasterID)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_master_id", "Invalid master ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	master, err := h.duplicateService.Merge(r.Context(), ids, masterID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrMergeRequiresTwo):
			err = ErrorResponse(w, http.StatusBadRequest, "merge_requires_two", "A merge needs at least two distinct correlations")
		case errors.Is(err, apperrors.ErrMasterNotInSet):
			err = ErrorResponse(w, http.StatusBadRequest, "master_not_in_set", "Master ID must be one of the merged correlations")
		case errors.Is(err, apperrors.ErrNotFound):
			err = ErrorResponse(w, http.StatusNotFound, "correlation_not_found", "One or more correlations do not exist")
		case errors.Is(err, apperrors.ErrLockHeld):
			err = ErrorResponse(w, http.StatusConflict, "merge_in_progress", "Another correlation mutation is in progress")
		default:
			h.logger.Error("Failed to merge correlations",
				zap.String("master_id", req.MasterID),
				zap.Error(err))
			err = ErrorResponse(w, http.StatusInternalServerError, "merge_failed", err.Error())
		}
		if err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: master}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
