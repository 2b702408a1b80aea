package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/repositories"
)

// Confidence assigned by the explicit resolution override paths. These are
// asserted, not recomputed: an operator decision is itself the verification.
const (
	confidenceRFIDPreferred = 0.90
	confidencePOSPreferred  = 0.85
	ignoreDecayFactor       = 0.95
)

// ResolutionService applies an operator-chosen policy to a conflict. The
// correlation update, the audit entry and the conflict-status update commit as
// one atomic unit; a failure leaves the store untouched.
type ResolutionService interface {
	Resolve(ctx context.Context, correlationID uuid.UUID, conflict *models.Conflict, resolution models.Resolution, actor string) error
}

type resolutionService struct {
	db           TxRunner
	correlations repositories.CorrelationRepository
	assets       repositories.RFIDAssetRepository
	staging      repositories.StagedRowRepository
	metrics      repositories.QualityMetricRepository
	confidence   ConfidenceService
	audit        AuditService
	logger       *zap.Logger
}

// NewResolutionService creates a new ResolutionService.
func NewResolutionService(
	db TxRunner,
	correlations repositories.CorrelationRepository,
	assets repositories.RFIDAssetRepository,
	staging repositories.StagedRowRepository,
	metrics repositories.QualityMetricRepository,
	confidence ConfidenceService,
	audit AuditService,
	logger *zap.Logger,
) ResolutionService {
	return &resolutionService{
		db:           db,
		correlations: correlations,
		assets:       assets,
		staging:      staging,
		metrics:      metrics,
		confidence:   confidence,
		audit:        audit,
		logger:       logger.Named("resolution-service"),
	}
}

var _ ResolutionService = (*resolutionService)(nil)

func (s *resolutionService) Resolve(ctx context.Context, correlationID uuid.UUID, conflict *models.Conflict, resolution models.Resolution, actor string) error {
	// Reject before any mutation.
	if !resolution.Valid() {
		return apperrors.ErrInvalidResolution
	}
	if conflict == nil {
		return fmt.Errorf("resolve requires the originating conflict")
	}

	err := s.db.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.correlations.GetByIDForUpdate(ctx, correlationID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperrors.ErrNotFound
		}

		old := snapshotCorrelation(c)
		now := time.Now()

		switch resolution {
		case models.ResolveUseRFID:
			if err := s.applyRFID(ctx, c); err != nil {
				return err
			}
		case models.ResolveUsePOS:
			if err := s.applyPOS(ctx, c); err != nil {
				return err
			}
		case models.ResolveIgnore:
			// Field values stay; trust decays so chronically ignored records
			// sink in the confidence ranking.
			c.ConfidenceScore = clampScore(c.ConfidenceScore * ignoreDecayFactor)
			c.VerificationSource = models.VerificationConflictIgnored
		case models.ResolveManual:
			c.VerificationSource = models.VerificationManual
		}

		c.LastVerifiedAt = &now
		c.UpdatedBy = actor

		if err := s.correlations.Update(ctx, c); err != nil {
			return err
		}

		if _, err := s.metrics.MarkResolved(ctx, c.ID, conflict.Type, conflict.Field, actor); err != nil {
			return err
		}

		// Manual resolutions carry no override constant; the score is
		// recomputed from the verified state, with this finding closed.
		if resolution == models.ResolveManual {
			score, err := s.confidence.Recompute(ctx, c.ID)
			if err != nil {
				return err
			}
			c.ConfidenceScore = score
		}

		return s.audit.LogChange(ctx, models.AuditTableCorrelations, c.ID, models.AuditActionResolve, old, snapshotCorrelation(c))
	})
	if err != nil {
		return err
	}

	s.logger.Info("Conflict resolved",
		zap.String("correlation_id", correlationID.String()),
		zap.String("conflict_type", string(conflict.Type)),
		zap.String("resolution", string(resolution)),
		zap.String("actor", actor))
	return nil
}

// applyRFID overwrites the correlation's display fields from the RFID source.
func (s *resolutionService) applyRFID(ctx context.Context, c *models.Correlation) error {
	if !c.HasRFID() {
		return fmt.Errorf("cannot prefer rfid: correlation has no rfid tag")
	}
	asset, err := s.assets.GetByTagID(ctx, *c.RFIDTagID)
	if err != nil {
		return err
	}
	if asset == nil {
		return fmt.Errorf("cannot prefer rfid: tag %s not in catalog", *c.RFIDTagID)
	}

	if asset.CommonName != "" {
		c.CommonName = asset.CommonName
	}
	if c.Tracking != models.TrackingRFID && asset.Quantity != nil {
		c.BulkQuantityOnHand = asset.Quantity
	}
	c.ConfidenceScore = confidenceRFIDPreferred
	c.VerificationSource = models.VerificationRFIDPreferred
	return nil
}

// applyPOS overwrites the correlation's display fields from the freshest
// staged POS view.
func (s *resolutionService) applyPOS(ctx context.Context, c *models.Correlation) error {
	if !c.HasPOS() {
		return fmt.Errorf("cannot prefer pos: correlation has no pos item number")
	}
	row, err := s.staging.LatestForPOSItem(ctx, *c.POSItemNum)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("cannot prefer pos: no staged rows for item %s", *c.POSItemNum)
	}

	if row.ItemName != "" {
		c.CommonName = row.ItemName
	}
	if c.Tracking != models.TrackingRFID && row.Quantity != nil {
		c.BulkQuantityOnHand = row.Quantity
	}
	c.ConfidenceScore = confidencePOSPreferred
	c.VerificationSource = models.VerificationPOSPreferred
	return nil
}
