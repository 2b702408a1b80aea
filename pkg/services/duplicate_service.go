package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/config"
	"github.com/assetlink-io/assetlink-engine/pkg/locking"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/normalize"
	"github.com/assetlink-io/assetlink-engine/pkg/repositories"
)

// mergeDecayFactor is applied to the merged record's recomputed score once per
// absorbed duplicate: a record that needed merging is less trustworthy than
// one that never did.
const mergeDecayFactor = 0.95

// DuplicateService finds correlations that likely describe the same physical
// item, and collapses a confirmed set into a single survivor.
type DuplicateService interface {
	// DetectDuplicates scans the whole correlation set. Exact identifier
	// collisions come first, fuzzy name groups last.
	DetectDuplicates(ctx context.Context) ([]models.DuplicateGroup, error)
	// Merge collapses ids into masterID, repointing all references and
	// deleting the losers. Returns the updated master.
	Merge(ctx context.Context, ids []uuid.UUID, masterID uuid.UUID) (*models.Correlation, error)
}

type duplicateService struct {
	db           TxRunner
	correlations repositories.CorrelationRepository
	staging      repositories.StagedRowRepository
	metrics      repositories.QualityMetricRepository
	mappings     repositories.MappingRepository
	confidence   ConfidenceService
	audit        AuditService
	locker       locking.Locker
	thresholds   config.ThresholdConfig
	logger       *zap.Logger
}

// NewDuplicateService creates a new DuplicateService.
func NewDuplicateService(
	db TxRunner,
	correlations repositories.CorrelationRepository,
	staging repositories.StagedRowRepository,
	metrics repositories.QualityMetricRepository,
	mappings repositories.MappingRepository,
	confidence ConfidenceService,
	audit AuditService,
	locker locking.Locker,
	thresholds config.ThresholdConfig,
	logger *zap.Logger,
) DuplicateService {
	return &duplicateService{
		db:           db,
		correlations: correlations,
		staging:      staging,
		metrics:      metrics,
		mappings:     mappings,
		confidence:   confidence,
		audit:        audit,
		locker:       locker,
		thresholds:   thresholds,
		logger:       logger.Named("duplicate-service"),
	}
}

var _ DuplicateService = (*duplicateService)(nil)

// ============================================================================
// Detection
// ============================================================================

func (s *duplicateService) DetectDuplicates(ctx context.Context) ([]models.DuplicateGroup, error) {
	release, err := s.locker.Acquire(ctx, locking.CorrelationLockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	var groups []models.DuplicateGroup

	tagGroups, err := s.correlations.TagGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan tag duplicates: %w", err)
	}
	for _, key := range sortedKeys(tagGroups) {
		groups = append(groups, models.DuplicateGroup{
			Type:           models.DuplicateRFID,
			Key:            key,
			CorrelationIDs: tagGroups[key],
			Severity:       models.SeverityHigh,
		})
	}

	posGroups, err := s.correlations.POSGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan pos duplicates: %w", err)
	}
	for _, key := range sortedKeys(posGroups) {
		groups = append(groups, models.DuplicateGroup{
			Type:           models.DuplicatePOS,
			Key:            key,
			CorrelationIDs: posGroups[key],
			Severity:       models.SeverityMedium,
		})
	}

	nameGroups, err := s.detectSimilarNames(ctx)
	if err != nil {
		return nil, err
	}
	groups = append(groups, nameGroups...)

	s.logger.Info("Duplicate scan complete", zap.Int("groups", len(groups)))
	return groups, nil
}

// detectSimilarNames buckets correlations by phonetic key then compares names
// pairwise within each bucket. Bucketing keeps the comparison count linear in
// practice without missing same-sounding spellings.
func (s *duplicateService) detectSimilarNames(ctx context.Context) ([]models.DuplicateGroup, error) {
	named, err := s.correlations.ListNamed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list named correlations: %w", err)
	}

	buckets := make(map[string][]*models.Correlation)
	for _, c := range named {
		key := normalize.PhoneticKey(c.CommonName)
		if key == "" {
			continue
		}
		buckets[key] = append(buckets[key], c)
	}

	var groups []models.DuplicateGroup
	for _, key := range sortedKeys(buckets) {
		bucket := buckets[key]
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				sim := normalize.NameSimilarity(bucket[i].CommonName, bucket[j].CommonName)
				if sim <= s.thresholds.NameDuplicate {
					continue
				}
				groups = append(groups, models.DuplicateGroup{
					Type:           models.DuplicateNameSimilar,
					Key:            key,
					CorrelationIDs: []uuid.UUID{bucket[i].ID, bucket[j].ID},
					Severity:       models.SeverityLow,
					Similarity:     sim,
				})
			}
		}
	}
	return groups, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ============================================================================
// Merge
// ============================================================================

func (s *duplicateService) Merge(ctx context.Context, ids []uuid.UUID, masterID uuid.UUID) (*models.Correlation, error) {
	ids = dedupeIDs(ids)
	if len(ids) < 2 {
		return nil, apperrors.ErrMergeRequiresTwo
	}
	if !containsID(ids, masterID) {
		return nil, apperrors.ErrMasterNotInSet
	}

	release, err := s.locker.Acquire(ctx, locking.CorrelationLockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	var master *models.Correlation
	err = s.db.RunInTx(ctx, func(ctx context.Context) error {
		// Lock in id order so two concurrent merges over overlapping sets
		// cannot deadlock.
		sorted := append([]uuid.UUID(nil), ids...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].String() < sorted[j].String()
		})

		loaded := make(map[uuid.UUID]*models.Correlation, len(sorted))
		for _, id := range sorted {
			c, err := s.correlations.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if c == nil {
				return fmt.Errorf("correlation %s: %w", id, apperrors.ErrNotFound)
			}
			loaded[id] = c
		}

		master = loaded[masterID]
		oldMaster := snapshotCorrelation(master)

		losers := make([]*models.Correlation, 0, len(loaded)-1)
		for _, id := range ids {
			if id != masterID {
				losers = append(losers, loaded[id])
			}
		}
		// Higher-priority sources fill master gaps first; created-at breaks
		// ties so the outcome does not depend on input order.
		sort.Slice(losers, func(i, j int) bool {
			if losers[i].SourcePriority() != losers[j].SourcePriority() {
				return losers[i].SourcePriority() < losers[j].SourcePriority()
			}
			return losers[i].CreatedAt.Before(losers[j].CreatedAt)
		})

		for _, loser := range losers {
			if _, err := s.staging.Repoint(ctx, loser.ID, master.ID); err != nil {
				return err
			}
			if _, err := s.metrics.Repoint(ctx, loser.ID, master.ID); err != nil {
				return err
			}
			if _, err := s.mappings.Repoint(ctx, loser.ID, master.ID); err != nil {
				return err
			}
			absorbFields(master, loser)
		}

		// Losers go first: the master may be inheriting a tag or item number
		// the partial unique indexes would otherwise still see as claimed.
		for _, loser := range losers {
			if err := s.audit.LogChange(ctx, models.AuditTableCorrelations, loser.ID, models.AuditActionMerge, snapshotCorrelation(loser), map[string]any{"merged_into": master.ID.String()}); err != nil {
				return err
			}
			if err := s.correlations.Delete(ctx, loser.ID); err != nil {
				return err
			}
		}

		if err := s.correlations.Update(ctx, master); err != nil {
			return err
		}

		score, err := s.confidence.ScoreCorrelation(ctx, master)
		if err != nil {
			return err
		}
		for range losers {
			score *= mergeDecayFactor
		}
		master.ConfidenceScore = clampScore(score)
		if err := s.correlations.Update(ctx, master); err != nil {
			return err
		}

		return s.audit.LogChange(ctx, models.AuditTableCorrelations, master.ID, models.AuditActionMerge, oldMaster, snapshotCorrelation(master))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Correlations merged",
		zap.String("master_id", masterID.String()),
		zap.Int("absorbed", len(ids)-1))
	return master, nil
}

// absorbFields copies loser fields the master lacks. Master values always win;
// losers only fill gaps.
func absorbFields(master, loser *models.Correlation) {
	if !master.HasRFID() && loser.HasRFID() {
		master.RFIDTagID = loser.RFIDTagID
	}
	if !master.HasPOS() && loser.HasPOS() {
		master.POSItemNum = loser.POSItemNum
	}
	if master.CommonName == "" && loser.CommonName != "" {
		master.CommonName = loser.CommonName
	}
	if master.BulkQuantityOnHand == nil && loser.BulkQuantityOnHand != nil {
		master.BulkQuantityOnHand = loser.BulkQuantityOnHand
	}
	if master.LastVerifiedAt == nil && loser.LastVerifiedAt != nil {
		master.LastVerifiedAt = loser.LastVerifiedAt
	}

	// A merge can turn a bulk-only record into a tagged one.
	switch {
	case master.HasRFID() && master.BulkQuantityOnHand != nil && *master.BulkQuantityOnHand > 1:
		master.Tracking = models.TrackingHybrid
	case master.HasRFID() && master.Tracking == models.TrackingBulk:
		master.Tracking = models.TrackingRFID
	}

	// The composite key follows the identifiers the master now holds.
	master.MasterItemID = masterItemID(master.RFIDTagID, master.POSItemNum)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsID(ids []uuid.UUID, target uuid.UUID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
