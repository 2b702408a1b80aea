package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseCorrelationID extracts and validates the correlation ID from the
// request path. Returns the parsed UUID and true on success, or uuid.Nil and
// false after writing an error response.
// Expects path parameter: cid
func ParseCorrelationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_correlation_id", "Invalid correlation ID format", logger)
}

// ParseBatchID extracts the import batch ID from the request path. Batch ids
// are caller-assigned strings, so only emptiness is rejected.
// Expects path parameter: bid
func ParseBatchID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (string, bool) {
	batchID := r.PathValue("bid")
	if batchID == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_batch_id", "Batch ID is required"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", false
	}
	return batchID, true
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
