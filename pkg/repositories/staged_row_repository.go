package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/database"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
)

// StagedRowRepository provides data access for staged POS import rows.
type StagedRowRepository interface {
	// ReplaceBatch discards any previously staged rows for the batch and
	// inserts the given rows, making restaging idempotent per batch id.
	ReplaceBatch(ctx context.Context, batchID string, rows []*models.StagedRow) error
	GetByBatch(ctx context.Context, batchID string) ([]*models.StagedRow, error)
	GetByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]*models.StagedRow, error)
	// LatestForPOSItem returns the most recently staged row carrying the given
	// POS item number, the freshest POS view of the item.
	LatestForPOSItem(ctx context.Context, posItemNum string) (*models.StagedRow, error)
	UpdateOutcome(ctx context.Context, row *models.StagedRow) error
	// Repoint moves every staged row referencing fromID to toID (merge support).
	Repoint(ctx context.Context, fromID, toID uuid.UUID) (int64, error)
}

type stagedRowRepository struct {
	db *database.DB
}

// NewStagedRowRepository creates a new StagedRowRepository.
func NewStagedRowRepository(db *database.DB) StagedRowRepository {
	return &stagedRowRepository{db: db}
}

var _ StagedRowRepository = (*stagedRowRepository)(nil)

const stagedRowColumns = `
	id, import_batch_id, file_name, row_number, item_num, item_name,
	quantity, serial_number, annual_turnover, processing_status,
	error_message, correlation_id, created_at`

func (r *stagedRowRepository) ReplaceBatch(ctx context.Context, batchID string, rows []*models.StagedRow) error {
	q := r.db.Querier(ctx)

	if _, err := q.Exec(ctx, `DELETE FROM pos_staging WHERE import_batch_id = $1`, batchID); err != nil {
		return fmt.Errorf("failed to discard staged batch %s: %w", batchID, err)
	}

	query := `
		INSERT INTO pos_staging (
			import_batch_id, file_name, row_number, item_num, item_name,
			quantity, serial_number, annual_turnover, processing_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	for _, row := range rows {
		row.ImportBatchID = batchID
		if row.ProcessingStatus == "" {
			row.ProcessingStatus = models.StatusPending
		}
		err := q.QueryRow(ctx, query,
			row.ImportBatchID,
			row.FileName,
			row.RowNumber,
			row.ItemNum,
			row.ItemName,
			row.Quantity,
			row.SerialNumber,
			row.AnnualTurnover,
			row.ProcessingStatus,
		).Scan(&row.ID, &row.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to stage row %d of batch %s: %w", row.RowNumber, batchID, err)
		}
	}

	return nil
}

func (r *stagedRowRepository) GetByBatch(ctx context.Context, batchID string) ([]*models.StagedRow, error) {
	query := `SELECT` + stagedRowColumns + `
		FROM pos_staging
		WHERE import_batch_id = $1
		ORDER BY row_number`
	return r.list(ctx, query, batchID)
}

func (r *stagedRowRepository) GetByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]*models.StagedRow, error) {
	query := `SELECT` + stagedRowColumns + `
		FROM pos_staging
		WHERE correlation_id = $1
		ORDER BY created_at DESC, row_number`
	return r.list(ctx, query, correlationID)
}

func (r *stagedRowRepository) LatestForPOSItem(ctx context.Context, posItemNum string) (*models.StagedRow, error) {
	query := `SELECT` + stagedRowColumns + `
		FROM pos_staging
		WHERE upper(trim(item_num)) = $1
		ORDER BY created_at DESC, row_number DESC
		LIMIT 1`

	row := r.db.Querier(ctx).QueryRow(ctx, query, posItemNum)
	staged, err := scanStagedRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return staged, nil
}

func (r *stagedRowRepository) UpdateOutcome(ctx context.Context, row *models.StagedRow) error {
	query := `
		UPDATE pos_staging
		SET processing_status = $2, error_message = $3, correlation_id = $4
		WHERE id = $1`

	result, err := r.db.Querier(ctx).Exec(ctx, query,
		row.ID, row.ProcessingStatus, row.ErrorMessage, row.CorrelationID)
	if err != nil {
		return fmt.Errorf("failed to update staged row outcome: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *stagedRowRepository) Repoint(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	result, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE pos_staging SET correlation_id = $2 WHERE correlation_id = $1`, fromID, toID)
	if err != nil {
		return 0, fmt.Errorf("failed to repoint staged rows: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *stagedRowRepository) list(ctx context.Context, query string, args ...any) ([]*models.StagedRow, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged rows: %w", err)
	}
	defer rows.Close()

	var out []*models.StagedRow
	for rows.Next() {
		staged, err := scanStagedRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, staged)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staged rows: %w", err)
	}
	return out, nil
}

func scanStagedRow(row pgx.Row) (*models.StagedRow, error) {
	var s models.StagedRow
	err := row.Scan(
		&s.ID,
		&s.ImportBatchID,
		&s.FileName,
		&s.RowNumber,
		&s.ItemNum,
		&s.ItemName,
		&s.Quantity,
		&s.SerialNumber,
		&s.AnnualTurnover,
		&s.ProcessingStatus,
		&s.ErrorMessage,
		&s.CorrelationID,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan staged row: %w", err)
	}
	return &s, nil
}
