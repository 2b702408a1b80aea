package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/config"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/normalize"
	"github.com/assetlink-io/assetlink-engine/pkg/repositories"
)

// MatchService links staged POS rows to RFID records by exact normalized
// identifier equality. No fuzzy matching happens here: a false link costs far
// more than a false negative, so anything short of exact equality is left
// ORPHANED for human review.
type MatchService interface {
	// MatchRow links one staged row, creating or refreshing a correlation,
	// and returns the resulting row status. MatchRow mutates row's
	// ProcessingStatus, ErrorMessage and CorrelationID but does not persist
	// the row; callers own the write.
	MatchRow(ctx context.Context, row *models.StagedRow) error

	// CreateManualLink is a direct operator-asserted correlation, bypassing
	// the matcher but still subject to the uniqueness invariant.
	CreateManualLink(ctx context.Context, rfidTag, posItemNum string, confidence float64) (*models.Correlation, error)
}

type matchService struct {
	db           TxRunner
	correlations repositories.CorrelationRepository
	assets       repositories.RFIDAssetRepository
	audit        AuditService
	thresholds   config.ThresholdConfig
	logger       *zap.Logger
}

// NewMatchService creates a new MatchService.
func NewMatchService(
	db TxRunner,
	correlations repositories.CorrelationRepository,
	assets repositories.RFIDAssetRepository,
	audit AuditService,
	thresholds config.ThresholdConfig,
	logger *zap.Logger,
) MatchService {
	return &matchService{
		db:           db,
		correlations: correlations,
		assets:       assets,
		audit:        audit,
		thresholds:   thresholds,
		logger:       logger.Named("match-service"),
	}
}

var _ MatchService = (*matchService)(nil)

func (s *matchService) MatchRow(ctx context.Context, row *models.StagedRow) error {
	itemNum := normalize.Identifier(row.ItemNum)
	serial := normalize.Identifier(row.SerialNumber)

	if itemNum == "" && serial == "" {
		row.ProcessingStatus = models.StatusError
		row.ErrorMessage = "row carries no usable identifier"
		return nil
	}

	// Existing claimant of the POS item number wins outright.
	if itemNum != "" {
		existing, err := s.correlations.GetByPOSItemNum(ctx, itemNum)
		if err != nil {
			return fmt.Errorf("failed to look up pos item %s: %w", itemNum, err)
		}
		if existing != nil {
			return s.refreshFromRow(ctx, existing, row)
		}
	}

	// Try the RFID side: the row's serial may be a tag id or a physical
	// serial known to the catalog.
	if serial != "" {
		existing, asset, err := s.findRFIDSide(ctx, serial)
		if err != nil {
			return fmt.Errorf("failed to resolve serial %s: %w", serial, err)
		}
		if existing != nil {
			return s.adoptPOSSide(ctx, existing, row, itemNum)
		}
		if asset != nil {
			return s.createFromAsset(ctx, row, asset, itemNum)
		}
		// Serialized item with no RFID counterpart: a legitimate
		// catalog-only item, parked for human review.
		row.ProcessingStatus = models.StatusOrphaned
		row.CorrelationID = nil
		return nil
	}

	// Non-serialized row with a fresh item number: bulk tracking.
	return s.createBulk(ctx, row, itemNum)
}

// findRFIDSide resolves a normalized serial to an existing correlation or a
// catalog asset.
func (s *matchService) findRFIDSide(ctx context.Context, serial string) (*models.Correlation, *models.RFIDAsset, error) {
	existing, err := s.correlations.GetByTagID(ctx, serial)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return existing, nil, nil
	}

	asset, err := s.assets.GetByIdentifier(ctx, serial)
	if err != nil {
		return nil, nil, err
	}
	if asset == nil {
		return nil, nil, nil
	}

	// The asset's tag may already be claimed under its canonical tag id.
	existing, err = s.correlations.GetByTagID(ctx, asset.TagID)
	if err != nil {
		return nil, nil, err
	}
	return existing, asset, nil
}

// refreshFromRow updates the POS-side view of an already-linked correlation.
// Fields held from the RFID source are never overwritten here: the name is
// refreshed only when the correlation has none or is tracked purely from POS.
func (s *matchService) refreshFromRow(ctx context.Context, c *models.Correlation, row *models.StagedRow) error {
	old := snapshotCorrelation(c)

	if c.CommonName == "" || c.Tracking == models.TrackingBulk {
		if row.ItemName != "" {
			c.CommonName = row.ItemName
		}
	}
	if c.Tracking != models.TrackingRFID && row.Quantity != nil {
		c.BulkQuantityOnHand = row.Quantity
	}

	if err := s.correlations.Update(ctx, c); err != nil {
		return err
	}
	if err := s.audit.LogChange(ctx, models.AuditTableCorrelations, c.ID, models.AuditActionUpdate, old, snapshotCorrelation(c)); err != nil {
		return err
	}

	row.ProcessingStatus = models.StatusMatched
	row.CorrelationID = &c.ID
	return nil
}

// adoptPOSSide attaches the row's POS item number to a correlation matched on
// its RFID side.
func (s *matchService) adoptPOSSide(ctx context.Context, c *models.Correlation, row *models.StagedRow, itemNum string) error {
	old := snapshotCorrelation(c)

	if !c.HasPOS() && itemNum != "" {
		c.POSItemNum = &itemNum
		c.MasterItemID = masterItemID(c.RFIDTagID, c.POSItemNum)
	} else if c.HasPOS() && itemNum != "" && *c.POSItemNum != itemNum {
		// The linked item number wins; the divergent one is surfaced for
		// review rather than adopted.
		s.logger.Warn("Staged row item number diverges from linked correlation",
			zap.String("correlation_id", c.ID.String()),
			zap.String("linked_pos_item", *c.POSItemNum),
			zap.String("row_pos_item", itemNum))
	}
	if row.Quantity != nil && *row.Quantity > 1 && c.Tracking == models.TrackingRFID {
		c.Tracking = models.TrackingHybrid
	}
	if c.Tracking != models.TrackingRFID && row.Quantity != nil {
		c.BulkQuantityOnHand = row.Quantity
	}
	if c.CommonName == "" && row.ItemName != "" {
		c.CommonName = row.ItemName
	}

	if err := s.correlations.Update(ctx, c); err != nil {
		return err
	}
	if err := s.audit.LogChange(ctx, models.AuditTableCorrelations, c.ID, models.AuditActionUpdate, old, snapshotCorrelation(c)); err != nil {
		return err
	}

	row.ProcessingStatus = models.StatusMatched
	row.CorrelationID = &c.ID
	return nil
}

// createFromAsset creates a correlation for a row whose serial resolved to an
// RFID catalog record.
func (s *matchService) createFromAsset(ctx context.Context, row *models.StagedRow, asset *models.RFIDAsset, itemNum string) error {
	tracking := models.TrackingRFID
	if row.Quantity != nil && *row.Quantity > 1 {
		tracking = models.TrackingHybrid
	}

	name := asset.CommonName
	if name == "" {
		name = row.ItemName
	}

	c := &models.Correlation{
		RFIDTagID:  &asset.TagID,
		Tracking:   tracking,
		CommonName: name,
	}
	if itemNum != "" {
		c.POSItemNum = &itemNum
	}
	if tracking == models.TrackingHybrid {
		c.BulkQuantityOnHand = row.Quantity
	}

	if err := s.createCorrelation(ctx, c); err != nil {
		return err
	}

	row.ProcessingStatus = models.StatusMatched
	row.CorrelationID = &c.ID
	return nil
}

// createBulk creates a POS-only bulk correlation for a non-serialized row.
func (s *matchService) createBulk(ctx context.Context, row *models.StagedRow, itemNum string) error {
	c := &models.Correlation{
		POSItemNum:         &itemNum,
		Tracking:           models.TrackingBulk,
		CommonName:         row.ItemName,
		BulkQuantityOnHand: row.Quantity,
	}

	if err := s.createCorrelation(ctx, c); err != nil {
		return err
	}

	row.ProcessingStatus = models.StatusMatched
	row.CorrelationID = &c.ID
	return nil
}

func (s *matchService) createCorrelation(ctx context.Context, c *models.Correlation) error {
	now := time.Now()
	c.MasterItemID = masterItemID(c.RFIDTagID, c.POSItemNum)
	c.VerificationSource = models.VerificationAutomatic
	c.LastVerifiedAt = &now
	if prov, ok := models.GetProvenance(ctx); ok {
		c.UpdatedBy = prov.Actor
	}
	c.ConfidenceScore = Score(ScoreInput{
		HasRFIDTag:     c.HasRFID(),
		HasPOSItem:     c.HasPOS(),
		HasName:        c.CommonName != "",
		LastVerifiedAt: c.LastVerifiedAt,
		Now:            now,
		StaleDays:      s.thresholds.VerificationStaleDays,
		VeryStaleDays:  s.thresholds.VerificationVeryStaleDays,
	})

	if err := s.correlations.Create(ctx, c); err != nil {
		return err
	}
	return s.audit.LogChange(ctx, models.AuditTableCorrelations, c.ID, models.AuditActionCreate, nil, snapshotCorrelation(c))
}

func (s *matchService) CreateManualLink(ctx context.Context, rfidTag, posItemNum string, confidence float64) (*models.Correlation, error) {
	tag := normalize.Identifier(rfidTag)
	itemNum := normalize.Identifier(posItemNum)
	if tag == "" && itemNum == "" {
		return nil, apperrors.ErrMissingIdentifier
	}

	var created *models.Correlation
	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		// Resolve the tag through the catalog when possible, so manual links
		// entered by physical serial land on the canonical tag id.
		var asset *models.RFIDAsset
		if tag != "" {
			var err error
			asset, err = s.assets.GetByIdentifier(ctx, tag)
			if err != nil {
				return err
			}
			if asset != nil {
				tag = asset.TagID
			}

			claimed, err := s.correlations.GetByTagID(ctx, tag)
			if err != nil {
				return err
			}
			if claimed != nil {
				return apperrors.ErrDuplicateTag
			}
		}

		c := &models.Correlation{
			Tracking:           models.TrackingRFID,
			VerificationSource: models.VerificationManual,
			ConfidenceScore:    clampScore(confidence),
		}
		if tag != "" {
			c.RFIDTagID = &tag
		}
		if itemNum != "" {
			c.POSItemNum = &itemNum
		}
		if tag == "" {
			c.Tracking = models.TrackingBulk
		}
		if asset != nil {
			c.CommonName = asset.CommonName
			if asset.Quantity != nil && *asset.Quantity > 1 {
				c.Tracking = models.TrackingHybrid
				c.BulkQuantityOnHand = asset.Quantity
			}
		}
		now := time.Now()
		c.LastVerifiedAt = &now
		c.MasterItemID = masterItemID(c.RFIDTagID, c.POSItemNum)
		if prov, ok := models.GetProvenance(ctx); ok {
			c.UpdatedBy = prov.Actor
		}

		if err := s.correlations.Create(ctx, c); err != nil {
			return err
		}
		if err := s.audit.LogChange(ctx, models.AuditTableCorrelations, c.ID, models.AuditActionCreate, nil, snapshotCorrelation(c)); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Manual link created",
		zap.String("correlation_id", created.ID.String()),
		zap.String("rfid_tag", tag),
		zap.String("pos_item_num", itemNum))
	return created, nil
}

// masterItemID derives the human-readable composite key from the linkage
// identifiers.
func masterItemID(tag, pos *string) string {
	var parts []string
	if tag != nil && *tag != "" {
		parts = append(parts, *tag)
	}
	if pos != nil && *pos != "" {
		parts = append(parts, *pos)
	}
	return strings.Join(parts, "/")
}

// snapshotCorrelation captures the audited fields of a correlation for
// old/new audit values.
func snapshotCorrelation(c *models.Correlation) map[string]any {
	snap := map[string]any{
		"master_item_id":      c.MasterItemID,
		"tracking_type":       string(c.Tracking),
		"common_name":         c.CommonName,
		"confidence_score":    c.ConfidenceScore,
		"verification_source": string(c.VerificationSource),
	}
	if c.RFIDTagID != nil {
		snap["rfid_tag_id"] = *c.RFIDTagID
	}
	if c.POSItemNum != nil {
		snap["pos_item_num"] = *c.POSItemNum
	}
	if c.BulkQuantityOnHand != nil {
		snap["bulk_quantity_on_hand"] = *c.BulkQuantityOnHand
	}
	return snap
}
