package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/auth"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/repositories"
	"github.com/assetlink-io/assetlink-engine/pkg/services"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// CreateManualLinkRequest for POST /api/correlations
type CreateManualLinkRequest struct {
	RFIDTagID  string  `json:"rfid_tag_id"`
	POSItemNum string  `json:"pos_item_num"`
	Confidence float64 `json:"confidence" validate:"omitempty,min=0,max=1"`
}

// ============================================================================
// Handler
// ============================================================================

// CorrelationHandler handles correlation lookup and manual linking requests.
type CorrelationHandler struct {
	matchService services.MatchService
	auditService services.AuditService
	correlations repositories.CorrelationRepository
	logger       *zap.Logger
}

// NewCorrelationHandler creates a new correlation handler.
func NewCorrelationHandler(
	matchService services.MatchService,
	auditService services.AuditService,
	correlations repositories.CorrelationRepository,
	logger *zap.Logger,
) *CorrelationHandler {
	return &CorrelationHandler{
		matchService: matchService,
		auditService: auditService,
		correlations: correlations,
		logger:       logger,
	}
}

// RegisterRoutes registers the correlation handler's routes on the given mux.
func (h *CorrelationHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/correlations", authMiddleware.RequireAuth(h.CreateManualLink))
	mux.HandleFunc("GET /api/correlations/{cid}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("GET /api/correlations/{cid}/audit", authMiddleware.RequireAuth(h.AuditTrail))
}

// CreateManualLink handles POST /api/correlations
func (h *CorrelationHandler) CreateManualLink(w http.ResponseWriter, r *http.Request) {
	var req CreateManualLinkRequest
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
	if req.Confidence == 0 {
		req.Confidence = 1.0
	}

	c, err := h.matchService.CreateManualLink(r.Context(), req.RFIDTagID, req.POSItemNum, req.Confidence)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrMissingIdentifier):
			err = ErrorResponse(w, http.StatusBadRequest, "missing_identifier", "At least one of rfid_tag_id or pos_item_num is required")
		case errors.Is(err, apperrors.ErrDuplicateTag):
			err = ErrorResponse(w, http.StatusConflict, "duplicate_tag", "RFID tag is already linked to another item")
		case errors.Is(err, apperrors.ErrDuplicatePOSItem):
			err = ErrorResponse(w, http.StatusConflict, "duplicate_pos_item", "POS item number is already linked to another item")
		default:
			h.logger.Error("Failed to create manual link", zap.Error(err))
			err = ErrorResponse(w, http.StatusInternalServerError, "create_link_failed", err.Error())
		}
		if err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: c}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/correlations/{cid}
func (h *CorrelationHandler) Get(w http.ResponseWriter, r *http.Request) {
	correlationID, ok := ParseCorrelationID(w, r, h.logger)
	if !ok {
		return
	}

	c, err := h.correlations.GetByID(r.Context(), correlationID)
	if err != nil {
		h.logger.Error("Failed to load correlation",
			zap.String("correlation_id", correlationID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_correlation_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if c == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "correlation_not_found", "Correlation not found"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: c}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AuditTrail handles GET /api/correlations/{cid}/audit
func (h *CorrelationHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	correlationID, ok := ParseCorrelationID(w, r, h.logger)
	if !ok {
		return
	}

	entries, err := h.auditService.Trail(r.Context(), models.AuditTableCorrelations, correlationID)
	if err != nil {
		h.logger.Error("Failed to load audit trail",
			zap.String("correlation_id", correlationID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "audit_trail_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: entries}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
