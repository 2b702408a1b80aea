package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/assetlink-io/assetlink-engine/pkg/database"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
)

// AuditRepository stores the append-only mutation trail.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	GetByRecord(ctx context.Context, tableName string, recordID uuid.UUID) ([]*models.AuditLogEntry, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

var _ AuditRepository = (*auditRepository)(nil)

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log (table_name, record_id, action, old_values, new_values, actor, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		entry.TableName,
		entry.RecordID,
		entry.Action,
		jsonbMap(entry.OldValues),
		jsonbMap(entry.NewValues),
		entry.Actor,
		entry.Source,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) GetByRecord(ctx context.Context, tableName string, recordID uuid.UUID) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT id, table_name, record_id, action, old_values, new_values,
		       actor, source, created_at
		FROM audit_log
		WHERE table_name = $1 AND record_id = $2
		ORDER BY created_at`

	rows, err := r.db.Querier(ctx).Query(ctx, query, tableName, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		var oldValues, newValues []byte
		err := rows.Scan(
			&e.ID,
			&e.TableName,
			&e.RecordID,
			&e.Action,
			&oldValues,
			&newValues,
			&e.Actor,
			&e.Source,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(oldValues) > 0 && string(oldValues) != "null" {
			if err := json.Unmarshal(oldValues, &e.OldValues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal old_values: %w", err)
			}
		}
		if len(newValues) > 0 && string(newValues) != "null" {
			if err := json.Unmarshal(newValues, &e.NewValues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal new_values: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return out, nil
}

// jsonbMap converts a change map to JSONB for insertion, storing NULL for
// empty maps.
func jsonbMap(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	return m
}
