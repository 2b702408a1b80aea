package models

import "github.com/google/uuid"

// DuplicateType names the scan that produced a duplicate group.
type DuplicateType string

const (
	DuplicateRFID DuplicateType = "RFID_DUPLICATE"
	DuplicatePOS  DuplicateType = "POS_DUPLICATE"
	// DuplicateNameSimilar pairs share a phonetic key and a high name-similarity
	// ratio; they are surfaced for review rather than merged automatically.
	DuplicateNameSimilar DuplicateType = "NAME_SIMILAR"
)

// DuplicateGroup is a transient detector result: a set of correlations
// believed to represent the same real-world item. Consumed immediately by the
// merger or a human operator; never persisted.
type DuplicateGroup struct {
	Type           DuplicateType `json:"type"`
	Key            string        `json:"key"`
	CorrelationIDs []uuid.UUID   `json:"correlation_ids"`
	Severity       Severity      `json:"severity"`

	// Similarity is set for NAME_SIMILAR groups only.
	Similarity float64 `json:"similarity,omitempty"`
}
