package models

import "time"

// AssetStatus is the authoritative lifecycle state reported by the RFID system.
type AssetStatus string

const (
	// AssetReady is the canonical "in service" state.
	AssetReady AssetStatus = "READY"
	// Benign out-of-service states.
	AssetInRepair      AssetStatus = "IN_REPAIR"
	AssetNeedsCleaning AssetStatus = "NEEDS_CLEANING"
	// States that warrant attention when a correlation still claims the tag.
	AssetMissing AssetStatus = "MISSING"
	AssetRetired AssetStatus = "RETIRED"
)

// Benign reports whether s is an expected, low-urgency out-of-service state.
func (s AssetStatus) Benign() bool {
	return s == AssetInRepair || s == AssetNeedsCleaning
}

// RFIDAsset is one record of the externally populated RFID catalog.
// This engine reads the catalog; it never writes it.
type RFIDAsset struct {
	TagID            string      `json:"tag_id"`
	SerialNumber     string      `json:"serial_number"`
	NormalizedSerial string      `json:"normalized_serial"`
	CommonName       string      `json:"common_name"`
	Status           AssetStatus `json:"status"`
	Quantity         *int        `json:"quantity,omitempty"`
	LastSeenAt       *time.Time  `json:"last_seen_at,omitempty"`
}
