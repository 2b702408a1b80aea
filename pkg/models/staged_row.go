package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus is the lifecycle state of a staged POS row.
type ProcessingStatus string

const (
	// StatusPending rows have been staged but not yet matched.
	StatusPending ProcessingStatus = "PENDING"
	// StatusMatched rows were linked to a correlation with no open conflicts.
	StatusMatched ProcessingStatus = "MATCHED"
	// StatusPartial rows were linked but the quality pass flagged conflicts.
	StatusPartial ProcessingStatus = "PARTIAL"
	// StatusOrphaned rows are serialized items with no RFID counterpart.
	// Not an error - a legitimate catalog-only item awaiting human review.
	StatusOrphaned ProcessingStatus = "ORPHANED"
	// StatusError rows could not be processed; ErrorMessage carries the cause.
	StatusError ProcessingStatus = "ERROR"
)

// StagedRow is one POS record imported in a batch, awaiting matching.
// Stored in pos_staging; superseded wholesale when a batch is restaged.
type StagedRow struct {
	ID            uuid.UUID `json:"id"`
	ImportBatchID string    `json:"import_batch_id"`
	FileName      string    `json:"file_name"`
	RowNumber     int       `json:"row_number"`

	ItemNum        string   `json:"item_num"`
	ItemName       string   `json:"item_name"`
	Quantity       *int     `json:"quantity,omitempty"`
	SerialNumber   string   `json:"serial_number"`
	AnnualTurnover *float64 `json:"annual_turnover,omitempty"`

	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CorrelationID    *uuid.UUID       `json:"correlation_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BatchSummary reports the outcome of processing one import batch.
type BatchSummary struct {
	ImportBatchID string `json:"import_batch_id"`
	Matched       int    `json:"matched"`
	Partial       int    `json:"partial"`
	Orphaned      int    `json:"orphaned"`
	Errors        int    `json:"error"`
}

// Total returns the number of rows the summary accounts for.
func (s *BatchSummary) Total() int {
	return s.Matched + s.Partial + s.Orphaned + s.Errors
}
