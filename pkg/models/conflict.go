package models

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies a disagreement between the RFID and POS views.
type ConflictType string

const (
	ConflictNameMismatch     ConflictType = "NAME_MISMATCH"
	ConflictQuantityMismatch ConflictType = "QUANTITY_MISMATCH"
	ConflictStatus           ConflictType = "STATUS_CONFLICT"
	// ConflictError marks an incomplete analysis (a lookup failed mid-scan).
	ConflictError ConflictType = "ERROR"
)

// Severity grades how urgently a finding needs attention.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ResolutionStatus tracks whether a recorded conflict has been acted on.
type ResolutionStatus string

const (
	ResolutionOpen     ResolutionStatus = "OPEN"
	ResolutionResolved ResolutionStatus = "RESOLVED"
)

// Conflict is a single data-quality finding against a correlation.
// Findings are recorded append-only in quality_metrics.
type Conflict struct {
	ID            uuid.UUID    `json:"id"`
	CorrelationID uuid.UUID    `json:"correlation_id"`
	Type          ConflictType `json:"type"`
	Field         string       `json:"field"`
	RFIDValue     string       `json:"rfid_value"`
	POSValue      string       `json:"pos_value"`
	Severity      Severity     `json:"severity"`

	// Similarity carries the name-similarity ratio for NAME_MISMATCH and the
	// absolute quantity difference for QUANTITY_MISMATCH.
	Similarity float64 `json:"similarity,omitempty"`

	ResolutionStatus ResolutionStatus `json:"resolution_status"`
	DetectedAt       time.Time        `json:"detected_at"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
	ResolvedBy       string           `json:"resolved_by,omitempty"`
}

// Resolution is the operator-chosen policy for settling a conflict.
type Resolution string

const (
	ResolveUseRFID Resolution = "USE_RFID"
	ResolveUsePOS  Resolution = "USE_POS"
	ResolveManual  Resolution = "MANUAL"
	ResolveIgnore  Resolution = "IGNORE"
)

// Valid reports whether r is a recognized resolution policy.
func (r Resolution) Valid() bool {
	switch r {
	case ResolveUseRFID, ResolveUsePOS, ResolveManual, ResolveIgnore:
		return true
	}
	return false
}
