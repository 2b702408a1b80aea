package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/config"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
)

// passthroughTx satisfies TxRunner without a database; mutations are applied
// directly to the in-memory mocks.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func testThresholds() config.ThresholdConfig {
	return config.ThresholdConfig{
		NameSimilarityHigh:        0.5,
		NameSimilarityFloor:       0.7,
		NameDuplicate:             0.85,
		QuantityTolerance:         5,
		QuantityHigh:              20,
		VerificationStaleDays:     30,
		VerificationVeryStaleDays: 90,
	}
}

// ============================================================================
// Correlation repository mock
// ============================================================================

// mockCorrelationRepository is an in-memory CorrelationRepository. It mimics
// the partial unique indexes so uniqueness-violation paths are testable.
type mockCorrelationRepository struct {
	store map[uuid.UUID]*models.Correlation
}

func newMockCorrelationRepository() *mockCorrelationRepository {
	return &mockCorrelationRepository{store: make(map[uuid.UUID]*models.Correlation)}
}

func (m *mockCorrelationRepository) Create(ctx context.Context, c *models.Correlation) error {
	if !c.HasRFID() && !c.HasPOS() {
		return apperrors.ErrMissingIdentifier
	}
	for _, other := range m.store {
		if c.HasRFID() && other.HasRFID() && *other.RFIDTagID == *c.RFIDTagID {
			return apperrors.ErrDuplicateTag
		}
		if c.HasPOS() && other.HasPOS() && *other.POSItemNum == *c.POSItemNum &&
			c.Tracking != models.TrackingBulk && other.Tracking != models.TrackingBulk {
			return apperrors.ErrDuplicatePOSItem
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = time.Now()
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *mockCorrelationRepository) Update(ctx context.Context, c *models.Correlation) error {
	if _, ok := m.store[c.ID]; !ok {
		return apperrors.ErrNotFound
	}
	c.UpdatedAt = time.Now()
	cp := *c
	m.store[c.ID] = &cp
	return nil
}

func (m *mockCorrelationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.store, id)
	return nil
}

func (m *mockCorrelationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Correlation, error) {
	c, ok := m.store[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *mockCorrelationRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Correlation, error) {
	return m.GetByID(ctx, id)
}

func (m *mockCorrelationRepository) GetByTagID(ctx context.Context, tagID string) (*models.Correlation, error) {
	for _, c := range m.store {
		if c.HasRFID() && *c.RFIDTagID == tagID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockCorrelationRepository) GetByPOSItemNum(ctx context.Context, posItemNum string) (*models.Correlation, error) {
	var best *models.Correlation
	for _, c := range m.store {
		if !c.HasPOS() || *c.POSItemNum != posItemNum {
			continue
		}
		if best == nil || c.SourcePriority() < best.SourcePriority() {
			cp := *c
			best = &cp
		}
	}
	return best, nil
}

func (m *mockCorrelationRepository) GetNonBulkByPOSItemNum(ctx context.Context, posItemNum string) (*models.Correlation, error) {
	for _, c := range m.store {
		if c.HasPOS() && *c.POSItemNum == posItemNum && c.Tracking != models.TrackingBulk {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockCorrelationRepository) ListNamed(ctx context.Context) ([]*models.Correlation, error) {
	var out []*models.Correlation
	for _, c := range m.store {
		if c.CommonName != "" {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockCorrelationRepository) TagGroups(ctx context.Context) (map[string][]uuid.UUID, error) {
	all := make(map[string][]uuid.UUID)
	for _, c := range m.store {
		if c.HasRFID() {
			all[*c.RFIDTagID] = append(all[*c.RFIDTagID], c.ID)
		}
	}
	return keepGroups(all), nil
}

func (m *mockCorrelationRepository) POSGroups(ctx context.Context) (map[string][]uuid.UUID, error) {
	all := make(map[string][]uuid.UUID)
	for _, c := range m.store {
		if c.HasPOS() && c.Tracking != models.TrackingBulk {
			all[*c.POSItemNum] = append(all[*c.POSItemNum], c.ID)
		}
	}
	return keepGroups(all), nil
}

func keepGroups(all map[string][]uuid.UUID) map[string][]uuid.UUID {
	groups := make(map[string][]uuid.UUID)
	for key, ids := range all {
		if len(ids) > 1 {
			groups[key] = ids
		}
	}
	return groups
}

func (m *mockCorrelationRepository) Status(ctx context.Context) (*models.StatusReport, error) {
	report := &models.StatusReport{}
	var confidenceSum float64
	for _, c := range m.store {
		report.Total++
		confidenceSum += c.ConfidenceScore
		if c.HasRFID() {
			report.RFIDItems++
		}
		if c.HasPOS() {
			report.POSItems++
		}
		switch c.Tracking {
		case models.TrackingRFID:
			report.ByType.RFID++
		case models.TrackingBulk:
			report.ByType.Bulk++
		case models.TrackingHybrid:
			report.ByType.Hybrid++
		}
		switch {
		case c.HasRFID() && c.HasPOS():
			report.Migration.LinkedBothSides++
		case c.HasRFID():
			report.Migration.RFIDOnly++
		default:
			report.Migration.POSOnly++
		}
	}
	if report.Total > 0 {
		report.AvgConfidence = confidenceSum / float64(report.Total)
		report.Migration.PercentLinked = float64(report.Migration.LinkedBothSides) / float64(report.Total) * 100
	}
	return report, nil
}

// ============================================================================
// RFID asset repository mock
// ============================================================================

type mockRFIDAssetRepository struct {
	assets []*models.RFIDAsset
}

func (m *mockRFIDAssetRepository) GetByTagID(ctx context.Context, tagID string) (*models.RFIDAsset, error) {
	for _, a := range m.assets {
		if a.TagID == tagID {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockRFIDAssetRepository) GetBySerial(ctx context.Context, normalizedSerial string) (*models.RFIDAsset, error) {
	for _, a := range m.assets {
		if a.NormalizedSerial == normalizedSerial {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockRFIDAssetRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.RFIDAsset, error) {
	if a, _ := m.GetByTagID(ctx, identifier); a != nil {
		return a, nil
	}
	return m.GetBySerial(ctx, identifier)
}

// ============================================================================
// Staged row repository mock
// ============================================================================

type mockStagedRowRepository struct {
	rows []*models.StagedRow
}

func (m *mockStagedRowRepository) ReplaceBatch(ctx context.Context, batchID string, rows []*models.StagedRow) error {
	kept := m.rows[:0]
	for _, r := range m.rows {
		if r.ImportBatchID != batchID {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	for _, r := range rows {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.ProcessingStatus = models.StatusPending
		r.CreatedAt = time.Now()
		m.rows = append(m.rows, r)
	}
	return nil
}

func (m *mockStagedRowRepository) GetByBatch(ctx context.Context, batchID string) ([]*models.StagedRow, error) {
	var out []*models.StagedRow
	for _, r := range m.rows {
		if r.ImportBatchID == batchID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out, nil
}

func (m *mockStagedRowRepository) GetByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]*models.StagedRow, error) {
	var out []*models.StagedRow
	for _, r := range m.rows {
		if r.CorrelationID != nil && *r.CorrelationID == correlationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStagedRowRepository) LatestForPOSItem(ctx context.Context, posItemNum string) (*models.StagedRow, error) {
	var latest *models.StagedRow
	for _, r := range m.rows {
		if r.ItemNum != posItemNum {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return latest, nil
}

func (m *mockStagedRowRepository) UpdateOutcome(ctx context.Context, row *models.StagedRow) error {
	for i, r := range m.rows {
		if r.ID == row.ID {
			m.rows[i] = row
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockStagedRowRepository) Repoint(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	var n int64
	for _, r := range m.rows {
		if r.CorrelationID != nil && *r.CorrelationID == fromID {
			to := toID
			r.CorrelationID = &to
			n++
		}
	}
	return n, nil
}

// ============================================================================
// Quality metric repository mock
// ============================================================================

type mockQualityMetricRepository struct {
	conflicts []*models.Conflict
}

func (m *mockQualityMetricRepository) Record(ctx context.Context, conflict *models.Conflict) error {
	if conflict.ID == uuid.Nil {
		conflict.ID = uuid.New()
	}
	conflict.ResolutionStatus = models.ResolutionOpen
	conflict.DetectedAt = time.Now()
	m.conflicts = append(m.conflicts, conflict)
	return nil
}

func (m *mockQualityMetricRepository) GetOpenByCorrelation(ctx context.Context, correlationID uuid.UUID) ([]*models.Conflict, error) {
	var out []*models.Conflict
	for _, c := range m.conflicts {
		if c.CorrelationID == correlationID && c.ResolutionStatus == models.ResolutionOpen {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockQualityMetricRepository) CountOpenByCorrelation(ctx context.Context, correlationID uuid.UUID) (int, error) {
	open, _ := m.GetOpenByCorrelation(ctx, correlationID)
	return len(open), nil
}

func (m *mockQualityMetricRepository) MarkResolved(ctx context.Context, correlationID uuid.UUID, conflictType models.ConflictType, field, resolvedBy string) (int64, error) {
	var n int64
	now := time.Now()
	for _, c := range m.conflicts {
		if c.CorrelationID == correlationID && c.Type == conflictType && c.Field == field &&
			c.ResolutionStatus == models.ResolutionOpen {
			c.ResolutionStatus = models.ResolutionResolved
			c.ResolvedAt = &now
			c.ResolvedBy = resolvedBy
			n++
		}
	}
	return n, nil
}

func (m *mockQualityMetricRepository) Repoint(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	var n int64
	for _, c := range m.conflicts {
		if c.CorrelationID == fromID {
			c.CorrelationID = toID
			n++
		}
	}
	return n, nil
}

func (m *mockQualityMetricRepository) OpenStats(ctx context.Context) (*models.QualityStats, error) {
	stats := &models.QualityStats{}
	affected := make(map[uuid.UUID]struct{})
	for _, c := range m.conflicts {
		if c.ResolutionStatus == models.ResolutionOpen {
			stats.OpenIssues++
			affected[c.CorrelationID] = struct{}{}
		}
	}
	stats.AffectedItems = len(affected)
	return stats, nil
}

// ============================================================================
// Mapping and audit repository mocks
// ============================================================================

type mockMappingRepository struct {
	validated map[uuid.UUID]int
}

func (m *mockMappingRepository) CountValidated(ctx context.Context, correlationID uuid.UUID) (int, error) {
	return m.validated[correlationID], nil
}

func (m *mockMappingRepository) Repoint(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	if m.validated == nil {
		return 0, nil
	}
	n := int64(m.validated[fromID])
	m.validated[toID] += m.validated[fromID]
	delete(m.validated, fromID)
	return n, nil
}

type mockAuditRepository struct {
	entries []*models.AuditLogEntry
}

func (m *mockAuditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepository) GetByRecord(ctx context.Context, tableName string, recordID uuid.UUID) ([]*models.AuditLogEntry, error) {
	var out []*models.AuditLogEntry
	for _, e := range m.entries {
		if e.TableName == tableName && e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

// actions returns the recorded action names for a record, in insertion order.
func (m *mockAuditRepository) actions(recordID uuid.UUID) []string {
	var out []string
	for _, e := range m.entries {
		if e.RecordID == recordID {
			out = append(out, e.Action)
		}
	}
	return out
}
