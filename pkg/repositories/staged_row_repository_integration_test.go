//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/testhelpers"
)

type stagedRowTestContext struct {
	t            *testing.T
	engineDB     *testhelpers.EngineDB
	repo         StagedRowRepository
	correlations CorrelationRepository
}

func setupStagedRowTest(t *testing.T) *stagedRowTestContext {
	t.Helper()

	engineDB := testhelpers.GetEngineDB(t)
	tc := &stagedRowTestContext{
		t:            t,
		engineDB:     engineDB,
		repo:         NewStagedRowRepository(engineDB.DB),
		correlations: NewCorrelationRepository(engineDB.DB),
	}
	resetTables(t, engineDB)
	return tc
}

func (tc *stagedRowTestContext) stage(ctx context.Context, batchID string, rows ...*models.StagedRow) {
	tc.t.Helper()

	if err := tc.repo.ReplaceBatch(ctx, batchID, rows); err != nil {
		tc.t.Fatalf("Failed to stage batch %s: %v", batchID, err)
	}
}

func TestStagedRowRepository_ReplaceBatch_RoundTrip(t *testing.T) {
	tc := setupStagedRowTest(t)
	ctx := context.Background()

	turnover := 1250.5
	tc.stage(ctx, "batch-1",
		&models.StagedRow{FileName: "export.csv", RowNumber: 1, ItemNum: "POS-1", ItemName: "Round Table", Quantity: intp(4), SerialNumber: "SER-1", AnnualTurnover: &turnover},
		&models.StagedRow{FileName: "export.csv", RowNumber: 2, ItemNum: "POS-2", ItemName: "Stadium Seat"},
	)

	rows, err := tc.repo.GetByBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetByBatch failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first := rows[0]
	if first.ImportBatchID != "batch-1" || first.RowNumber != 1 {
		t.Errorf("unexpected first row: %+v", first)
	}
	if first.ProcessingStatus != models.StatusPending {
		t.Errorf("expected PENDING default, got %s", first.ProcessingStatus)
	}
	if first.Quantity == nil || *first.Quantity != 4 {
		t.Errorf("expected quantity 4, got %v", first.Quantity)
	}
	if first.AnnualTurnover == nil || *first.AnnualTurnover != 1250.5 {
		t.Errorf("expected turnover 1250.5, got %v", first.AnnualTurnover)
	}
	if rows[1].ItemName != "Stadium Seat" {
		t.Errorf("expected row-number ordering, got %q second", rows[1].ItemName)
	}
}

func TestStagedRowRepository_ReplaceBatch_DiscardsPreviousRows(t *testing.T) {
	tc := setupStagedRowTest(t)
	ctx := context.Background()

	tc.stage(ctx, "batch-2",
		&models.StagedRow{RowNumber: 1, ItemNum: "POS-OLD"},
		&models.StagedRow{RowNumber: 2, ItemNum: "POS-OLDER"},
	)
	tc.stage(ctx, "batch-2",
		&models.StagedRow{RowNumber: 1, ItemNum: "POS-NEW"},
	)

	rows, err := tc.repo.GetByBatch(ctx, "batch-2")
	if err != nil {
		t.Fatalf("GetByBatch failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ItemNum != "POS-NEW" {
		t.Errorf("expected restaging to replace the batch, got %+v", rows)
	}
}

func TestStagedRowRepository_LatestForPOSItem(t *testing.T) {
	tc := setupStagedRowTest(t)
	ctx := context.Background()

	// Item number matching is normalized, so raw values may carry whitespace
	// and lowercase.
	tc.stage(ctx, "batch-3",
		&models.StagedRow{RowNumber: 1, ItemNum: " pos-9 ", ItemName: "Stale View", Quantity: intp(2)},
		&models.StagedRow{RowNumber: 2, ItemNum: "POS-9", ItemName: "Fresh View", Quantity: intp(5)},
	)

	row, err := tc.repo.LatestForPOSItem(ctx, "POS-9")
	if err != nil {
		t.Fatalf("LatestForPOSItem failed: %v", err)
	}
	if row == nil {
		t.Fatal("expected a staged row")
	}
	if row.ItemName != "Fresh View" {
		t.Errorf("expected the freshest row, got %q", row.ItemName)
	}

	missing, err := tc.repo.LatestForPOSItem(ctx, "POS-NOPE")
	if err != nil {
		t.Fatalf("LatestForPOSItem failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown item number")
	}
}

func TestStagedRowRepository_UpdateOutcome(t *testing.T) {
	tc := setupStagedRowTest(t)
	ctx := context.Background()

	corr := &models.Correlation{
		MasterItemID: "MI-200",
		POSItemNum:   strp("POS-200"),
		Tracking:     models.TrackingBulk,
	}
	if err := tc.correlations.Create(ctx, corr); err != nil {
		t.Fatalf("Failed to create correlation: %v", err)
	}

	tc.stage(ctx, "batch-4", &models.StagedRow{RowNumber: 1, ItemNum: "POS-200"})
	rows, err := tc.repo.GetByBatch(ctx, "batch-4")
	if err != nil {
		t.Fatalf("GetByBatch failed: %v", err)
	}

	row := rows[0]
	row.ProcessingStatus = models.StatusMatched
	row.CorrelationID = &corr.ID
	if err := tc.repo.UpdateOutcome(ctx, row); err != nil {
		t.Fatalf("UpdateOutcome failed: %v", err)
	}

	linked, err := tc.repo.GetByCorrelation(ctx, corr.ID)
	if err != nil {
		t.Fatalf("GetByCorrelation failed: %v", err)
	}
	if len(linked) != 1 || linked[0].ProcessingStatus != models.StatusMatched {
		t.Errorf("expected one matched row linked to the correlation, got %+v", linked)
	}
}

func TestStagedRowRepository_UpdateOutcome_NotFound(t *testing.T) {
	tc := setupStagedRowTest(t)

	err := tc.repo.UpdateOutcome(context.Background(), &models.StagedRow{
		ID:               uuid.New(),
		ProcessingStatus: models.StatusError,
	})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStagedRowRepository_Repoint(t *testing.T) {
	tc := setupStagedRowTest(t)
	ctx := context.Background()

	loser := &models.Correlation{MasterItemID: "MI-201", POSItemNum: strp("POS-201"), Tracking: models.TrackingBulk}
	master := &models.Correlation{MasterItemID: "MI-202", RFIDTagID: strp("TAG-202"), Tracking: models.TrackingRFID}
	for _, c := range []*models.Correlation{loser, master} {
		if err := tc.correlations.Create(ctx, c); err != nil {
			t.Fatalf("Failed to create correlation: %v", err)
		}
	}

	tc.stage(ctx, "batch-5",
		&models.StagedRow{RowNumber: 1, ItemNum: "POS-201"},
		&models.StagedRow{RowNumber: 2, ItemNum: "POS-201"},
	)
	rows, err := tc.repo.GetByBatch(ctx, "batch-5")
	if err != nil {
		t.Fatalf("GetByBatch failed: %v", err)
	}
	for _, row := range rows {
		row.ProcessingStatus = models.StatusMatched
		row.CorrelationID = &loser.ID
		if err := tc.repo.UpdateOutcome(ctx, row); err != nil {
			t.Fatalf("UpdateOutcome failed: %v", err)
		}
	}

	moved, err := tc.repo.Repoint(ctx, loser.ID, master.ID)
	if err != nil {
		t.Fatalf("Repoint failed: %v", err)
	}
	if moved != 2 {
		t.Errorf("expected 2 rows repointed, got %d", moved)
	}

	linked, err := tc.repo.GetByCorrelation(ctx, master.ID)
	if err != nil {
		t.Fatalf("GetByCorrelation failed: %v", err)
	}
	if len(linked) != 2 {
		t.Errorf("expected master to own both rows, got %d", len(linked))
	}
}
