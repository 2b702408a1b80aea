package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/config"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/normalize"
	"github.com/assetlink-io/assetlink-engine/pkg/repositories"
)

// QualityService inspects a correlation's joined view and classifies
// disagreements between the RFID and POS sources. Conflicts are first-class
// data, never errors: the engine records them and leaves resolution to an
// explicit operator decision.
type QualityService interface {
	// DetectConflicts returns the correlation's current open findings,
	// recording any newly observed ones. A lookup failure while gathering the
	// joined view is surfaced as a CRITICAL finding of type ERROR rather than
	// dropped, so callers see that analysis was incomplete.
	DetectConflicts(ctx context.Context, correlationID uuid.UUID) ([]*models.Conflict, error)
}

type qualityService struct {
	correlations repositories.CorrelationRepository
	assets       repositories.RFIDAssetRepository
	staging      repositories.StagedRowRepository
	metrics      repositories.QualityMetricRepository
	thresholds   config.ThresholdConfig
	logger       *zap.Logger
}

// NewQualityService creates a new QualityService.
func NewQualityService(
	correlations repositories.CorrelationRepository,
	assets repositories.RFIDAssetRepository,
	staging repositories.StagedRowRepository,
	metrics repositories.QualityMetricRepository,
	thresholds config.ThresholdConfig,
	logger *zap.Logger,
) QualityService {
	return &qualityService{
		correlations: correlations,
		assets:       assets,
		staging:      staging,
		metrics:      metrics,
		thresholds:   thresholds,
		logger:       logger.Named("quality-service"),
	}
}

var _ QualityService = (*qualityService)(nil)

func (s *qualityService) DetectConflicts(ctx context.Context, correlationID uuid.UUID) ([]*models.Conflict, error) {
	c, err := s.correlations.GetByID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperrors.ErrNotFound
	}

	open, err := s.metrics.GetOpenByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	var found []*models.Conflict

	asset, stagedRow, gatherErr := s.gatherSources(ctx, c)
	if gatherErr != nil {
		// Incomplete analysis is itself a finding.
		s.logger.Error("Failed to gather joined view",
			zap.String("correlation_id", correlationID.String()),
			zap.Error(gatherErr))
		found = append(found, &models.Conflict{
			CorrelationID: correlationID,
			Type:          models.ConflictError,
			Field:         "joined_view",
			Severity:      models.SeverityCritical,
			POSValue:      gatherErr.Error(),
		})
	}

	if asset != nil {
		found = append(found, s.checkNames(c, asset, stagedRow)...)
		found = append(found, s.checkQuantities(c, asset)...)
		found = append(found, s.checkStatus(c, asset)...)
	}

	// Record findings not already open; return the full open set.
	for _, conflict := range found {
		if findOpen(open, conflict) != nil {
			continue
		}
		if err := s.metrics.Record(ctx, conflict); err != nil {
			return nil, err
		}
		open = append(open, conflict)
	}

	return open, nil
}

func (s *qualityService) gatherSources(ctx context.Context, c *models.Correlation) (*models.RFIDAsset, *models.StagedRow, error) {
	var asset *models.RFIDAsset
	var stagedRow *models.StagedRow

	if c.HasRFID() {
		a, err := s.assets.GetByTagID(ctx, *c.RFIDTagID)
		if err != nil {
			return nil, nil, fmt.Errorf("rfid catalog lookup: %w", err)
		}
		asset = a
	}
	if c.HasPOS() {
		r, err := s.staging.LatestForPOSItem(ctx, *c.POSItemNum)
		if err != nil {
			return nil, nil, fmt.Errorf("staging lookup: %w", err)
		}
		stagedRow = r
	}
	return asset, stagedRow, nil
}

// checkNames raises NAME_MISMATCH when both sides carry a name and the
// similarity of the normalized forms falls below the configured floor.
func (s *qualityService) checkNames(c *models.Correlation, asset *models.RFIDAsset, stagedRow *models.StagedRow) []*models.Conflict {
	posName := ""
	if stagedRow != nil {
		posName = stagedRow.ItemName
	}
	if asset.CommonName == "" || posName == "" {
		return nil
	}

	sim := normalize.NameSimilarity(asset.CommonName, posName)
	if sim >= s.thresholds.NameSimilarityFloor {
		return nil
	}

	severity := models.SeverityMedium
	if sim < s.thresholds.NameSimilarityHigh {
		severity = models.SeverityHigh
	}

	return []*models.Conflict{{
		CorrelationID: c.ID,
		Type:          models.ConflictNameMismatch,
		Field:         "common_name",
		RFIDValue:     asset.CommonName,
		POSValue:      posName,
		Severity:      severity,
		Similarity:    sim,
	}}
}

// checkQuantities raises QUANTITY_MISMATCH for bulk-tracked items whose two
// reported quantities diverge beyond the tolerance.
func (s *qualityService) checkQuantities(c *models.Correlation, asset *models.RFIDAsset) []*models.Conflict {
	if c.Tracking == models.TrackingRFID {
		return nil
	}
	if asset.Quantity == nil || c.BulkQuantityOnHand == nil {
		return nil
	}

	diff := *asset.Quantity - *c.BulkQuantityOnHand
	if diff < 0 {
		diff = -diff
	}
	if diff <= s.thresholds.QuantityTolerance {
		return nil
	}

	severity := models.SeverityMedium
	if diff > s.thresholds.QuantityHigh {
		severity = models.SeverityHigh
	}

	return []*models.Conflict{{
		CorrelationID: c.ID,
		Type:          models.ConflictQuantityMismatch,
		Field:         "bulk_quantity_on_hand",
		RFIDValue:     strconv.Itoa(*asset.Quantity),
		POSValue:      strconv.Itoa(*c.BulkQuantityOnHand),
		Severity:      severity,
		Similarity:    float64(diff),
	}}
}

// checkStatus raises STATUS_CONFLICT whenever the RFID lifecycle state is not
// the canonical ready state.
func (s *qualityService) checkStatus(c *models.Correlation, asset *models.RFIDAsset) []*models.Conflict {
	if asset.Status == models.AssetReady {
		return nil
	}

	severity := models.SeverityHigh
	if asset.Status.Benign() {
		severity = models.SeverityLow
	}

	return []*models.Conflict{{
		CorrelationID: c.ID,
		Type:          models.ConflictStatus,
		Field:         "status",
		RFIDValue:     string(asset.Status),
		POSValue:      string(models.AssetReady),
		Severity:      severity,
	}}
}

// findOpen returns the already-open finding matching the candidate's type and
// field, if any.
func findOpen(open []*models.Conflict, candidate *models.Conflict) *models.Conflict {
	for _, o := range open {
		if o.Type == candidate.Type && o.Field == candidate.Field {
			return o
		}
	}
	return nil
}
