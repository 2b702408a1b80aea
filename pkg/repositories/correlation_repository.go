package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/database"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
)

// CorrelationRepository provides data access for correlation records.
type CorrelationRepository interface {
	Create(ctx context.Context, c *models.Correlation) error
	Update(ctx context.Context, c *models.Correlation) error
	Delete(ctx context.Context, id uuid.UUID) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.Correlation, error)
	// GetByIDForUpdate row-locks the correlation for the life of the
	// enclosing transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Correlation, error)
	GetByTagID(ctx context.Context, tagID string) (*models.Correlation, error)
	// GetByPOSItemNum returns the best claimant of a POS item number,
	// preferring tag-tracked correlations over bulk ones.
	GetByPOSItemNum(ctx context.Context, posItemNum string) (*models.Correlation, error)
	// GetNonBulkByPOSItemNum returns the unique non-bulk claimant, if any.
	GetNonBulkByPOSItemNum(ctx context.Context, posItemNum string) (*models.Correlation, error)

	// ListNamed returns id, name and tracking type for every correlation with
	// a non-empty common name (input to the similar-name scan).
	ListNamed(ctx context.Context) ([]*models.Correlation, error)
	// TagGroups returns rfid_tag_id -> claiming correlation ids for tags
	// claimed more than once.
	TagGroups(ctx context.Context) (map[string][]uuid.UUID, error)
	// POSGroups returns pos_item_num -> claiming correlation ids for numbers
	// claimed by more than one non-bulk correlation.
	POSGroups(ctx context.Context) (map[string][]uuid.UUID, error)

	Status(ctx context.Context) (*models.StatusReport, error)
}

type correlationRepository struct {
	db *database.DB
}

// NewCorrelationRepository creates a new CorrelationRepository.
func NewCorrelationRepository(db *database.DB) CorrelationRepository {
	return &correlationRepository{db: db}
}

var _ CorrelationRepository = (*correlationRepository)(nil)

const correlationColumns = `
	id, master_item_id, rfid_tag_id, pos_item_num, tracking_type,
	common_name, bulk_quantity_on_hand, confidence_score,
	last_verified_at, verification_source, updated_by, created_at, updated_at`

// ============================================================================
// CRUD Operations
// ============================================================================

func (r *correlationRepository) Create(ctx context.Context, c *models.Correlation) error {
	if !c.HasRFID() && !c.HasPOS() {
		return apperrors.ErrMissingIdentifier
	}

	now := time.Now()

	query := `
		INSERT INTO item_correlations (
			master_item_id, rfid_tag_id, pos_item_num, tracking_type,
			common_name, bulk_quantity_on_hand, confidence_score,
			last_verified_at, verification_source, updated_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		c.MasterItemID,
		c.RFIDTagID,
		c.POSItemNum,
		c.Tracking,
		c.CommonName,
		c.BulkQuantityOnHand,
		c.ConfidenceScore,
		c.LastVerifiedAt,
		c.VerificationSource,
		c.UpdatedBy,
		now,
		now,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return classifyUniqueViolation(err, "failed to create correlation")
	}

	return nil
}

func (r *correlationRepository) Update(ctx context.Context, c *models.Correlation) error {
	query := `
		UPDATE item_correlations
		SET master_item_id = $2, rfid_tag_id = $3, pos_item_num = $4,
		    tracking_type = $5, common_name = $6, bulk_quantity_on_hand = $7,
		    confidence_score = $8, last_verified_at = $9,
		    verification_source = $10, updated_by = $11, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.Querier(ctx).QueryRow(ctx, query,
		c.ID,
		c.MasterItemID,
		c.RFIDTagID,
		c.POSItemNum,
		c.Tracking,
		c.CommonName,
		c.BulkQuantityOnHand,
		c.ConfidenceScore,
		c.LastVerifiedAt,
		c.VerificationSource,
		c.UpdatedBy,
	).Scan(&c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return classifyUniqueViolation(err, "failed to update correlation")
	}

	return nil
}

func (r *correlationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Querier(ctx).Exec(ctx, `DELETE FROM item_correlations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete correlation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Lookups
// ============================================================================

func (r *correlationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Correlation, error) {
	query := `SELECT` + correlationColumns + ` FROM item_correlations WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *correlationRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Correlation, error) {
	query := `SELECT` + correlationColumns + ` FROM item_correlations WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *correlationRepository) GetByTagID(ctx context.Context, tagID string) (*models.Correlation, error) {
	query := `SELECT` + correlationColumns + ` FROM item_correlations WHERE rfid_tag_id = $1`
	return r.getOne(ctx, query, tagID)
}

func (r *correlationRepository) GetByPOSItemNum(ctx context.Context, posItemNum string) (*models.Correlation, error) {
	query := `SELECT` + correlationColumns + `
		FROM item_correlations
		WHERE pos_item_num = $1
		ORDER BY CASE tracking_type WHEN 'RFID' THEN 0 WHEN 'HYBRID' THEN 1 ELSE 2 END, created_at
		LIMIT 1`
	return r.getOne(ctx, query, posItemNum)
}

func (r *correlationRepository) GetNonBulkByPOSItemNum(ctx context.Context, posItemNum string) (*models.Correlation, error) {
	query := `SELECT` + correlationColumns + `
		FROM item_correlations
		WHERE pos_item_num = $1 AND tracking_type <> 'BULK'`
	return r.getOne(ctx, query, posItemNum)
}

func (r *correlationRepository) getOne(ctx context.Context, query string, args ...any) (*models.Correlation, error) {
	row := r.db.Querier(ctx).QueryRow(ctx, query, args...)
	c, err := scanCorrelation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // not found
		}
		return nil, err
	}
	return c, nil
}

func (r *correlationRepository) ListNamed(ctx context.Context) ([]*models.Correlation, error) {
	query := `SELECT` + correlationColumns + `
		FROM item_correlations
		WHERE common_name <> ''
		ORDER BY created_at`

	rows, err := r.db.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query named correlations: %w", err)
	}
	defer rows.Close()

	var out []*models.Correlation
	for rows.Next() {
		c, err := scanCorrelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating correlations: %w", err)
	}
	return out, nil
}

// ============================================================================
// Duplicate scans
// ============================================================================

func (r *correlationRepository) TagGroups(ctx context.Context) (map[string][]uuid.UUID, error) {
	query := `
		SELECT rfid_tag_id, array_agg(id ORDER BY created_at)
		FROM item_correlations
		WHERE rfid_tag_id IS NOT NULL
		GROUP BY rfid_tag_id
		HAVING count(*) > 1`
	return r.groups(ctx, query, "tag")
}

func (r *correlationRepository) POSGroups(ctx context.Context) (map[string][]uuid.UUID, error) {
	query := `
		SELECT pos_item_num, array_agg(id ORDER BY created_at)
		FROM item_correlations
		WHERE pos_item_num IS NOT NULL AND tracking_type <> 'BULK'
		GROUP BY pos_item_num
		HAVING count(*) > 1`
	return r.groups(ctx, query, "pos item")
}

func (r *correlationRepository) groups(ctx context.Context, query, what string) (map[string][]uuid.UUID, error) {
	rows, err := r.db.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s groups: %w", what, err)
	}
	defer rows.Close()

	groups := make(map[string][]uuid.UUID)
	for rows.Next() {
		var key string
		var ids []uuid.UUID
		if err := rows.Scan(&key, &ids); err != nil {
			return nil, fmt.Errorf("failed to scan %s group: %w", what, err)
		}
		groups[key] = ids
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s groups: %w", what, err)
	}
	return groups, nil
}

// ============================================================================
// Aggregates
// ============================================================================

func (r *correlationRepository) Status(ctx context.Context) (*models.StatusReport, error) {
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE rfid_tag_id IS NOT NULL),
			count(*) FILTER (WHERE pos_item_num IS NOT NULL),
			coalesce(avg(confidence_score), 0),
			count(*) FILTER (WHERE tracking_type = 'RFID'),
			count(*) FILTER (WHERE tracking_type = 'BULK'),
			count(*) FILTER (WHERE tracking_type = 'HYBRID'),
			count(*) FILTER (WHERE rfid_tag_id IS NOT NULL AND pos_item_num IS NOT NULL),
			count(*) FILTER (WHERE rfid_tag_id IS NOT NULL AND pos_item_num IS NULL),
			count(*) FILTER (WHERE rfid_tag_id IS NULL AND pos_item_num IS NOT NULL)
		FROM item_correlations`

	var report models.StatusReport
	err := r.db.Querier(ctx).QueryRow(ctx, query).Scan(
		&report.Total,
		&report.RFIDItems,
		&report.POSItems,
		&report.AvgConfidence,
		&report.ByType.RFID,
		&report.ByType.Bulk,
		&report.ByType.Hybrid,
		&report.Migration.LinkedBothSides,
		&report.Migration.RFIDOnly,
		&report.Migration.POSOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query correlation status: %w", err)
	}

	if report.Total > 0 {
		report.Migration.PercentLinked = float64(report.Migration.LinkedBothSides) / float64(report.Total) * 100
	}
	return &report, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func scanCorrelation(row pgx.Row) (*models.Correlation, error) {
	var c models.Correlation
	err := row.Scan(
		&c.ID,
		&c.MasterItemID,
		&c.RFIDTagID,
		&c.POSItemNum,
		&c.Tracking,
		&c.CommonName,
		&c.BulkQuantityOnHand,
		&c.ConfidenceScore,
		&c.LastVerifiedAt,
		&c.VerificationSource,
		&c.UpdatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan correlation: %w", err)
	}
	return &c, nil
}

// classifyUniqueViolation maps the partial unique indexes on item_correlations
// to the sentinel errors callers branch on.
func classifyUniqueViolation(err error, msg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "uq_correlations_rfid_tag":
			return apperrors.ErrDuplicateTag
		case "uq_correlations_pos_item":
			return apperrors.ErrDuplicatePOSItem
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
