package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of mutation being recorded.
const (
	AuditActionCreate  = "CREATE"
	AuditActionUpdate  = "UPDATE"
	AuditActionDelete  = "DELETE"
	AuditActionMerge   = "MERGE"
	AuditActionResolve = "RESOLVE"
)

// Audited table names.
const (
	AuditTableCorrelations = "item_correlations"
	AuditTableStaging      = "pos_staging"
)

// AuditLogEntry is one append-only record of a mutation. Entries are never
// updated or deleted. Stored in audit_log.
type AuditLogEntry struct {
	ID        uuid.UUID `json:"id"`
	TableName string    `json:"table_name"`
	RecordID  uuid.UUID `json:"record_id"`
	Action    string    `json:"action"`

	// OldValues/NewValues hold the changed fields as field -> value.
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`

	Actor  string `json:"actor"`
	Source string `json:"source"`

	CreatedAt time.Time `json:"created_at"`
}

// FieldChange pairs the before and after values of one field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}
