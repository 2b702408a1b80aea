package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/auth"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/services"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ============================================================================
// Request/Response Types
// ============================================================================

// StageBatchRequest for PUT /api/batches/{bid}
type StageBatchRequest struct {
	FileName string           `json:"file_name" validate:"required"`
	Rows     []StagedRowInput `json:"rows" validate:"required,min=1,dive"`
}

// StagedRowInput is one already-parsed POS record.
type StagedRowInput struct {
	RowNumber      int      `json:"row_number" validate:"omitempty,min=1"`
	ItemNum        string   `json:"item_num"`
	ItemName       string   `json:"item_name"`
	Quantity       *int     `json:"quantity,omitempty" validate:"omitempty,min=0"`
	SerialNumber   string   `json:"serial_number"`
	AnnualTurnover *float64 `json:"annual_turnover,omitempty"`
}

// StageBatchResponse for PUT /api/batches/{bid}
type StageBatchResponse struct {
	ImportBatchID string `json:"import_batch_id"`
	Staged        int    `json:"staged"`
}

// ============================================================================
// Handler
// ============================================================================

// BatchHandler handles POS import staging and batch processing requests.
type BatchHandler struct {
	batchService services.BatchService
	logger       *zap.Logger
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(batchService services.BatchService, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{
		batchService: batchService,
		logger:       logger,
	}
}

// RegisterRoutes registers the batch handler's routes on the given mux.
func (h *BatchHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("PUT /api/batches/{bid}", authMiddleware.RequireAuth(h.Stage))
	mux.HandleFunc("POST /api/batches/{bid}/process", authMiddleware.RequireAuth(h.Process))
}

// Stage handles PUT /api/batches/{bid}
// Replaces any previously staged rows for the batch.
func (h *BatchHandler) Stage(w http.ResponseWriter, r *http.Request) {
	batchID, ok := ParseBatchID(w, r, h.logger)
	if !ok {
		return
	}

	var req StageBatchRequest
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

	rows := make([]*models.StagedRow, len(req.Rows))
	for i, in := range req.Rows {
		rows[i] = &models.StagedRow{
			RowNumber:      in.RowNumber,
			ItemNum:        in.ItemNum,
			ItemName:       in.ItemName,
			Quantity:       in.Quantity,
			SerialNumber:   in.SerialNumber,
			AnnualTurnover: in.AnnualTurnover,
		}
	}

	staged, err := h.batchService.Stage(r.Context(), batchID, req.FileName, rows)
	if err != nil {
		h.logger.Error("Failed to stage batch",
			zap.String("import_batch_id", batchID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "stage_batch_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := StageBatchResponse{ImportBatchID: batchID, Staged: staged}
	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Process handles POST /api/batches/{bid}/process
// Runs the staged batch through the matching pipeline.
func (h *BatchHandler) Process(w http.ResponseWriter, r *http.Request) {
	batchID, ok := ParseBatchID(w, r, h.logger)
	if !ok {
		return
	}

	summary, err := h.batchService.ProcessBatch(r.Context(), batchID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrBatchEmpty):
			err = ErrorResponse(w, http.StatusNotFound, "batch_empty", "No staged rows for this batch")
		case errors.Is(err, apperrors.ErrLockHeld):
			err = ErrorResponse(w, http.StatusConflict, "processing_in_progress", "Another correlation mutation is in progress")
		default:
			h.logger.Error("Failed to process batch",
				zap.String("import_batch_id", batchID),
				zap.Error(err))
			err = ErrorResponse(w, http.StatusInternalServerError, "process_batch_failed", err.Error())
		}
		if err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: summary}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
