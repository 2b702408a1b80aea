package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/assetlink-io/assetlink-engine/pkg/database"
)

// MappingRepository tracks validated pointers from correlations into external
// systems. Validated mappings raise the confidence score.
type MappingRepository interface {
	CountValidated(ctx context.Context, correlationID uuid.UUID) (int, error)
	Repoint(ctx context.Context, fromID, toID uuid.UUID) (int64, error)
}

type mappingRepository struct {
	db *database.DB
}

// NewMappingRepository creates a new MappingRepository.
func NewMappingRepository(db *database.DB) MappingRepository {
	return &mappingRepository{db: db}
}

var _ MappingRepository = (*mappingRepository)(nil)

func (r *mappingRepository) CountValidated(ctx context.Context, correlationID uuid.UUID) (int, error) {
	var count int
	err := r.db.Querier(ctx).QueryRow(ctx,
		`SELECT count(*) FROM item_mappings WHERE correlation_id = $1 AND validated`,
		correlationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count validated mappings: %w", err)
	}
	return count, nil
}

func (r *mappingRepository) Repoint(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	result, err := r.db.Querier(ctx).Exec(ctx,
		`UPDATE item_mappings SET correlation_id = $2 WHERE correlation_id = $1`, fromID, toID)
	if err != nil {
		return 0, fmt.Errorf("failed to repoint mappings: %w", err)
	}
	return result.RowsAffected(), nil
}
