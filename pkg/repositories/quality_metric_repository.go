package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/assetlink-io/assetlink-engine/pkg/database"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
)

// QualityMetricRepository records data-quality findings append-only.
type QualityMetricRepository interface {
	Record(ctx context.Context, conflict *models.Conflict) error
	GetOpenByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]*models.Conflict, error)
	CountOpenByCorrelation(ctx context.Context, correlationID uuid.UUID) (int, error)
	// MarkResolved closes every open finding on the correlation matching the
	// conflict's type and field, returning how many were closed.
	MarkResolved(ctx context.Context, correlationID uuid.UUID, conflictType models.ConflictType, field, resolvedBy string) (int64, error)
	// Repoint moves findings from a merged-away correlation to the master.
	Repoint(ctx context.Context, fromID, toID uuid.UUID) (int64, error)
	OpenStats(ctx context.Context) (*models.QualityStats, error)
}

type qualityMetricRepository struct {
	db *database.DB
}

// NewQualityMetricRepository creates a new QualityMetricRepository.
func NewQualityMetricRepository(db *database.DB) QualityMetricRepository {
	return &qualityMetricRepository{db: db}
}

var _ QualityMetricRepository = (*qualityMetricRepository)(nil)

func (r *qualityMetricRepository) Record(ctx context.Context, conflict *models.Conflict) error {
	if conflict.ResolutionStatus == "" {
		conflict.ResolutionStatus = models.ResolutionOpen
	}

	query := `
		INSERT INTO quality_metrics (
			correlation_id, conflict_type, field_name, rfid_value, pos_value,
			severity, similarity, resolution_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, detected_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		conflict.CorrelationID,
		conflict.Type,
		conflict.Field,
		conflict.RFIDValue,
		conflict.POSValue,
		conflict.Severity,
		conflict.Similarity,
		conflict.ResolutionStatus,
	).Scan(&conflict.ID, &conflict.DetectedAt)
	if err != nil {
		return fmt.Errorf("failed to record quality finding: %w", err)
	}
	return nil
}

func (r *qualityMetricRepository) GetOpenByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]*models.Conflict, error) {
	query := `
		SELECT id, correlation_id, conflict_type, field_name, rfid_value,
		       pos_value, severity, similarity, resolution_status,
		       detected_at, resolved_at, resolved_by
		FROM quality_metrics
		WHERE correlation_id = $1 AND resolution_status = 'OPEN'
		ORDER BY detected_at`

	rows, err := r.db.Querier(ctx).Query(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open findings: %w", err)
	}
	defer rows.Close()

	var out []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating findings: %w", err)
	}
	return out, nil
}

func (r *qualityMetricRepository) CountOpenByCorrelation(ctx context.Context, correlationID uuid.UUID) (int, error) {
	var count int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT count(*) FROM quality_metrics WHERE correlation_id = $1 AND resolution_status = 'OPEN'`,
		correlationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open findings: %w", err)
	}
	return count, nil
}

func (r *qualityMetricRepository) MarkResolved(ctx context.Context, correlationID uuid.UUID, conflictType models.ConflictType, field, resolvedBy string) (int64, error) {
	query := `
		UPDATE quality_metrics
		SET resolution_status = 'RESOLVED', resolved_at = $4, resolved_by = $5
		WHERE correlation_id = $1 AND conflict_type = $2 AND field_name = $3
		  AND resolution_status = 'OPEN'`

	result, err := r.db.Querier(ctx).Exec(ctx, query,
		correlationID, conflictType, field, time.Now(), resolvedBy)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve findings: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *qualityMetricRepository) Repoint(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	result, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE quality_metrics SET correlation_id = $2 WHERE correlation_id = $1`, fromID, toID)
	if err != nil {
		return 0, fmt.Errorf("failed to repoint findings: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *qualityMetricRepository) OpenStats(ctx context.Context) (*models.QualityStats, error) {
	var stats models.QualityStats
	err := r.db.Querier(ctx).QueryRow(ctx, `
		SELECT count(*), count(DISTINCT correlation_id)
		FROM quality_metrics
		WHERE resolution_status = 'OPEN'`,
	).Scan(&stats.OpenIssues, &stats.AffectedItems)
	if err != nil {
		return nil, fmt.Errorf("failed to query quality stats: %w", err)
	}
	return &stats, nil
}

func scanConflict(row pgx.Row) (*models.Conflict, error) {
	var c models.Conflict
	var resolvedBy *string
	err := row.Scan(
		&c.ID,
		&c.CorrelationID,
		&c.Type,
		&c.Field,
		&c.RFIDValue,
		&c.POSValue,
		&c.Severity,
		&c.Similarity,
		&c.ResolutionStatus,
		&c.DetectedAt,
		&c.ResolvedAt,
		&resolvedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan finding: %w", err)
	}
	if resolvedBy != nil {
		c.ResolvedBy = *resolvedBy
	}
	return &c, nil
}
