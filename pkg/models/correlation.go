package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackingType describes how a correlated item is tracked in the field.
type TrackingType string

const (
	// TrackingRFID items carry an individual serialized RFID tag.
	TrackingRFID TrackingType = "RFID"
	// TrackingBulk items are tracked by aggregate quantity only.
	TrackingBulk TrackingType = "BULK"
	// TrackingHybrid items carry a tag and a bulk quantity for the same logical item.
	TrackingHybrid TrackingType = "HYBRID"
)

// Valid reports whether t is a known tracking type.
func (t TrackingType) Valid() bool {
	switch t {
	case TrackingRFID, TrackingBulk, TrackingHybrid:
		return true
	}
	return false
}

// VerificationSource records how a correlation was last verified.
type VerificationSource string

const (
	VerificationManual          VerificationSource = "MANUAL"
	VerificationRFIDPreferred   VerificationSource = "RFID_PREFERRED"
	VerificationPOSPreferred    VerificationSource = "POS_PREFERRED"
	VerificationConflictIgnored VerificationSource = "CONFLICT_IGNORED"
	VerificationAutomatic       VerificationSource = "AUTOMATIC"
)

// Correlation links an RFID tag and/or a POS item number into one tracked item.
// At least one of RFIDTagID / POSItemNum is always set. Stored in item_correlations.
type Correlation struct {
	ID           uuid.UUID `json:"id"`
	MasterItemID string    `json:"master_item_id"`

	RFIDTagID  *string      `json:"rfid_tag_id,omitempty"`
	POSItemNum *string      `json:"pos_item_num,omitempty"`
	Tracking   TrackingType `json:"tracking_type"`

	CommonName         string  `json:"common_name"`
	BulkQuantityOnHand *int    `json:"bulk_quantity_on_hand,omitempty"`
	ConfidenceScore    float64 `json:"confidence_score"`

	LastVerifiedAt     *time.Time         `json:"last_verified_at,omitempty"`
	VerificationSource VerificationSource `json:"verification_source"`
	UpdatedBy          string             `json:"updated_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasRFID reports whether the correlation claims an RFID tag.
func (c *Correlation) HasRFID() bool {
	return c.RFIDTagID != nil && *c.RFIDTagID != ""
}

// HasPOS reports whether the correlation claims a POS item number.
func (c *Correlation) HasPOS() bool {
	return c.POSItemNum != nil && *c.POSItemNum != ""
}

// SourcePriority orders correlations for deterministic merge field selection:
// RFID-tracked sources outrank HYBRID, which outrank BULK.
func (c *Correlation) SourcePriority() int {
	switch c.Tracking {
	case TrackingRFID:
		return 0
	case TrackingHybrid:
		return 1
	case TrackingBulk:
		return 2
	}
	return 3
}
