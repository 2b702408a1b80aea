package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/auth"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// ConflictListResponse for GET /api/correlations/{cid}/conflicts
type ConflictListResponse struct {
	Conflicts []*models.Conflict `json:"conflicts"`
	Total     int                `json:"total"`
}

// ResolveConflictRequest for POST /api/correlations/{cid}/resolve
type ResolveConflictRequest struct {
	ConflictType string `json:"conflict_type" validate:"required"`
	Field        string `json:"field" validate:"required"`
	Resolution   string `json:"resolution" validate:"required"`
}

// ============================================================================
// Handler
// ============================================================================

// QualityHandler handles conflict detection and resolution requests.
type QualityHandler struct {
	qualityService    services.QualityService
	resolutionService services.ResolutionService
	logger            *zap.Logger
}

// NewQualityHandler creates a new quality handler.
func NewQualityHandler(
	qualityService services.QualityService,
	resolutionService services.ResolutionService,
	logger *zap.Logger,
) *QualityHandler {
	return &QualityHandler{
		qualityService:    qualityService,
		resolutionService: resolutionService,
		logger:            logger,
	}
}

// RegisterRoutes registers the quality handler's routes on the given mux.
func (h *QualityHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/correlations/{cid}/conflicts", authMiddleware.RequireAuth(h.Detect))
	mux.HandleFunc("POST /api/correlations/{cid}/resolve", authMiddleware.RequireAuth(h.Resolve))
}

// Detect handles POST /api/correlations/{cid}/conflicts
// Runs the quality analysis and returns the open findings.
func (h *QualityHandler) Detect(w http.ResponseWriter, r *http.Request) {
	correlationID, ok := ParseCorrelationID(w, r, h.logger)
	if !ok {
		return
	}

	conflicts, err := h.qualityService.DetectConflicts(r.Context(), correlationID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "correlation_not_found", "Correlation not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to detect conflicts",
			zap.String("correlation_id", correlationID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "detect_conflicts_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := ConflictListResponse{Conflicts: conflicts, Total: len(conflicts)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Resolve handles POST /api/correlations/{cid}/resolve
func (h *QualityHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	correlationID, ok := ParseCorrelationID(w, r, h.logger)
	if !ok {
		return
	}

	var req ResolveConflictRequest
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

	actor := "unknown"
	if claims, ok := auth.GetClaims(r.Context()); ok {
		actor = claims.Actor()
	}

	conflict := &models.Conflict{
		CorrelationID: correlationID,
		Type:          models.ConflictType(req.ConflictType),
		Field:         req.Field,
	}

	err := h.resolutionService.Resolve(r.Context(), correlationID, conflict, models.Resolution(req.Resolution), actor)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidResolution):
			err = ErrorResponse(w, http.StatusBadRequest, "invalid_resolution", "Resolution must be one of USE_RFID, USE_POS, MANUAL, IGNORE")
		case errors.Is(err, apperrors.ErrNotFound):
			err = ErrorResponse(w, http.StatusNotFound, "correlation_not_found", "Correlation not found")
		default:
			h.logger.Error("Failed to resolve conflict",
				zap.String("correlation_id", correlationID.String()),
				zap.Error(err))
			err = ErrorResponse(w, http.StatusInternalServerError, "resolve_conflict_failed", err.Error())
		}
		if err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Message: "Conflict resolved"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
