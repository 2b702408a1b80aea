package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/assetlink-io/assetlink-engine/pkg/database"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
)

// RFIDAssetRepository reads the externally populated RFID catalog.
// The engine never writes this table.
type RFIDAssetRepository interface {
	GetByTagID(ctx context.Context, tagID string) (*models.RFIDAsset, error)
	// GetBySerial matches against the pre-normalized serial column, so callers
	// must pass a normalized identifier.
	GetBySerial(ctx context.Context, normalizedSerial string) (*models.RFIDAsset, error)
	// GetByIdentifier tries the tag id first, then the serial number.
	GetByIdentifier(ctx context.Context, identifier string) (*models.RFIDAsset, error)
}

type rfidAssetRepository struct {
	db *database.DB
}

// NewRFIDAssetRepository creates a new RFIDAssetRepository.
func NewRFIDAssetRepository(db *database.DB) RFIDAssetRepository {
	return &rfidAssetRepository{db: db}
}

var _ RFIDAssetRepository = (*rfidAssetRepository)(nil)

const rfidAssetColumns = `
	tag_id, serial_number, normalized_serial, common_name, status, quantity, last_seen_at`

func (r *rfidAssetRepository) GetByTagID(ctx context.Context, tagID string) (*models.RFIDAsset, error) {
	query := `SELECT` + rfidAssetColumns + ` FROM rfid_assets WHERE tag_id = $1`
	return r.getOne(ctx, query, tagID)
}

func (r *rfidAssetRepository) GetBySerial(ctx context.Context, normalizedSerial string) (*models.RFIDAsset, error) {
	query := `SELECT` + rfidAssetColumns + ` FROM rfid_assets WHERE normalized_serial = $1`
	return r.getOne(ctx, query, normalizedSerial)
}

func (r *rfidAssetRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.RFIDAsset, error) {
	asset, err := r.GetByTagID(ctx, identifier)
	if err != nil || asset != nil {
		return asset, err
	}
	return r.GetBySerial(ctx, identifier)
}

func (r *rfidAssetRepository) getOne(ctx context.Context, query string, args ...any) (*models.RFIDAsset, error) {
	var a models.RFIDAsset
	err := r.db.Querier(ctx).QueryRow(ctx, query, args...).Scan(
		&a.TagID,
		&a.SerialNumber,
		&a.NormalizedSerial,
		&a.CommonName,
		&a.Status,
		&a.Quantity,
		&a.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query rfid asset: %w", err)
	}
	return &a, nil
}
