//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/testhelpers"
)

type qualityMetricTestContext struct {
	t        *testing.T
	engineDB *testhelpers.EngineDB
	repo     QualityMetricRepository
}

func setupQualityMetricTest(t *testing.T) *qualityMetricTestContext {
	t.Helper()

	engineDB := testhelpers.GetEngineDB(t)
	tc := &qualityMetricTestContext{
		t:        t,
		engineDB: engineDB,
		repo:     NewQualityMetricRepository(engineDB.DB),
	}
	resetTables(t, engineDB)
	return tc
}

func (tc *qualityMetricTestContext) record(ctx context.Context, c *models.Conflict) *models.Conflict {
	tc.t.Helper()

	if err := tc.repo.Record(ctx, c); err != nil {
		tc.t.Fatalf("Failed to record finding: %v", err)
	}
	return c
}

func TestQualityMetricRepository_Record_RoundTrip(t *testing.T) {
	tc := setupQualityMetricTest(t)
	ctx := context.Background()

	correlationID := uuid.New()
	finding := tc.record(ctx, &models.Conflict{
		CorrelationID: correlationID,
		Type:          models.ConflictNameMismatch,
		Field:         "common_name",
		RFIDValue:     "Round Table",
		POSValue:      "Rnd Tbl",
		Severity:      models.SeverityMedium,
		Similarity:    0.62,
	})
	if finding.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	if finding.DetectedAt.IsZero() {
		t.Error("expected DetectedAt to be set")
	}
	if finding.ResolutionStatus != models.ResolutionOpen {
		t.Errorf("expected OPEN default, got %s", finding.ResolutionStatus)
	}

	open, err := tc.repo.GetOpenByCorrelation(ctx, correlationID)
	if err != nil {
		t.Fatalf("GetOpenByCorrelation failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open finding, got %d", len(open))
	}
	got := open[0]
	if got.Type != models.ConflictNameMismatch || got.Field != "common_name" {
		t.Errorf("unexpected finding: %+v", got)
	}
	if got.RFIDValue != "Round Table" || got.POSValue != "Rnd Tbl" {
		t.Errorf("unexpected values: %q vs %q", got.RFIDValue, got.POSValue)
	}
	if got.Similarity != 0.62 {
		t.Errorf("expected similarity 0.62, got %f", got.Similarity)
	}
}

func TestQualityMetricRepository_MarkResolved_MatchesTypeAndField(t *testing.T) {
	tc := setupQualityMetricTest(t)
	ctx := context.Background()

	correlationID := uuid.New()
	tc.record(ctx, &models.Conflict{
		CorrelationID: correlationID,
		Type:          models.ConflictNameMismatch,
		Field:         "common_name",
		Severity:      models.SeverityMedium,
	})
	tc.record(ctx, &models.Conflict{
		CorrelationID: correlationID,
		Type:          models.ConflictQuantityMismatch,
		Field:         "quantity",
		Severity:      models.SeverityHigh,
	})

	closed, err := tc.repo.MarkResolved(ctx, correlationID, models.ConflictNameMismatch, "common_name", "ops@example.com")
	if err != nil {
		t.Fatalf("MarkResolved failed: %v", err)
	}
	if closed != 1 {
		t.Errorf("expected 1 finding closed, got %d", closed)
	}

	open, err := tc.repo.GetOpenByCorrelation(ctx, correlationID)
	if err != nil {
		t.Fatalf("GetOpenByCorrelation failed: %v", err)
	}
	if len(open) != 1 || open[0].Type != models.ConflictQuantityMismatch {
		t.Errorf("expected only the quantity finding to stay open, got %+v", open)
	}

	count, err := tc.repo.CountOpenByCorrelation(ctx, correlationID)
	if err != nil {
		t.Fatalf("CountOpenByCorrelation failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected open count 1, got %d", count)
	}

	// Already-resolved findings are not closed again.
	closed, err = tc.repo.MarkResolved(ctx, correlationID, models.ConflictNameMismatch, "common_name", "ops@example.com")
	if err != nil {
		t.Fatalf("MarkResolved failed: %v", err)
	}
	if closed != 0 {
		t.Errorf("expected 0 findings closed on repeat, got %d", closed)
	}
}

func TestQualityMetricRepository_Repoint(t *testing.T) {
	tc := setupQualityMetricTest(t)
	ctx := context.Background()

	loserID := uuid.New()
	masterID := uuid.New()
	tc.record(ctx, &models.Conflict{
		CorrelationID: loserID,
		Type:          models.ConflictStatus,
		Field:         "status",
		Severity:      models.SeverityLow,
	})

	moved, err := tc.repo.Repoint(ctx, loserID, masterID)
	if err != nil {
		t.Fatalf("Repoint failed: %v", err)
	}
	if moved != 1 {
		t.Errorf("expected 1 finding repointed, got %d", moved)
	}

	open, err := tc.repo.GetOpenByCorrelation(ctx, masterID)
	if err != nil {
		t.Fatalf("GetOpenByCorrelation failed: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("expected master to own the finding, got %d", len(open))
	}
}

func TestQualityMetricRepository_OpenStats(t *testing.T) {
	tc := setupQualityMetricTest(t)
	ctx := context.Background()

	affected := uuid.New()
	other := uuid.New()
	tc.record(ctx, &models.Conflict{CorrelationID: affected, Type: models.ConflictNameMismatch, Field: "common_name", Severity: models.SeverityMedium})
	tc.record(ctx, &models.Conflict{CorrelationID: affected, Type: models.ConflictQuantityMismatch, Field: "quantity", Severity: models.SeverityHigh})
	tc.record(ctx, &models.Conflict{CorrelationID: other, Type: models.ConflictStatus, Field: "status", Severity: models.SeverityLow})

	if _, err := tc.repo.MarkResolved(ctx, other, models.ConflictStatus, "status", "ops@example.com"); err != nil {
		t.Fatalf("MarkResolved failed: %v", err)
	}

	stats, err := tc.repo.OpenStats(ctx)
	if err != nil {
		t.Fatalf("OpenStats failed: %v", err)
	}
	if stats.OpenIssues != 2 {
		t.Errorf("expected 2 open issues, got %d", stats.OpenIssues)
	}
	if stats.AffectedItems != 1 {
		t.Errorf("expected 1 affected item, got %d", stats.AffectedItems)
	}
}
