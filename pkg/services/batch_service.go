package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/locking"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/repositories"
)

// BatchService stages POS imports and drives a batch through the
// match -> quality -> confidence pipeline. One row failing never aborts the
// batch; the failure is recorded on the row and processing continues.
type BatchService interface {
	// Stage replaces any previously staged rows for the batch.
	Stage(ctx context.Context, batchID, fileName string, rows []*models.StagedRow) (int, error)
	// ProcessBatch matches every staged row of the batch and returns per-status
	// counts. Rows are processed in row-number order, each in its own
	// transaction.
	ProcessBatch(ctx context.Context, batchID string) (*models.BatchSummary, error)
}

type batchService struct {
	db         TxRunner
	staging    repositories.StagedRowRepository
	matcher    MatchService
	quality    QualityService
	confidence ConfidenceService
	locker     locking.Locker
	logger     *zap.Logger
}

// NewBatchService creates a new BatchService.
func NewBatchService(
	db TxRunner,
	staging repositories.StagedRowRepository,
	matcher MatchService,
	quality QualityService,
	confidence ConfidenceService,
	locker locking.Locker,
	logger *zap.Logger,
) BatchService {
	return &batchService{
		db:         db,
		staging:    staging,
		matcher:    matcher,
		quality:    quality,
		confidence: confidence,
		locker:     locker,
		logger:     logger.Named("batch-service"),
	}
}

var _ BatchService = (*batchService)(nil)

func (s *batchService) Stage(ctx context.Context, batchID, fileName string, rows []*models.StagedRow) (int, error) {
	if len(rows) == 0 {
		return 0, apperrors.ErrBatchEmpty
	}

	for i, row := range rows {
		row.ImportBatchID = batchID
		row.FileName = fileName
		if row.RowNumber == 0 {
			row.RowNumber = i + 1
		}
	}

	if err := s.staging.ReplaceBatch(ctx, batchID, rows); err != nil {
		return 0, fmt.Errorf("failed to stage batch %s: %w", batchID, err)
	}

	s.logger.Info("Batch staged",
		zap.String("import_batch_id", batchID),
		zap.String("file_name", fileName),
		zap.Int("rows", len(rows)))
	return len(rows), nil
}

func (s *batchService) ProcessBatch(ctx context.Context, batchID string) (*models.BatchSummary, error) {
	release, err := s.locker.Acquire(ctx, locking.CorrelationLockKey)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.staging.GetByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	if len(rows) == 0 {
		return nil, apperrors.ErrBatchEmpty
	}

	// Everything the pipeline writes is attributed to the batch.
	ctx = models.WithImportProvenance(ctx, batchID)

	summary := &models.BatchSummary{ImportBatchID: batchID}
	for _, row := range rows {
		if err := s.processRow(ctx, row); err != nil {
			// Row-level isolation: record the failure and move on.
			row.ProcessingStatus = models.StatusError
			row.ErrorMessage = err.Error()
			if uerr := s.staging.UpdateOutcome(ctx, row); uerr != nil {
				s.logger.Error("Failed to record row error",
					zap.String("import_batch_id", batchID),
					zap.Int("row_number", row.RowNumber),
					zap.Error(uerr))
			}
			s.logger.Warn("Row processing failed",
				zap.String("import_batch_id", batchID),
				zap.Int("row_number", row.RowNumber),
				zap.Error(err))
		}
		tally(summary, row.ProcessingStatus)
	}

	s.logger.Info("Batch processed",
		zap.String("import_batch_id", batchID),
		zap.Int("matched", summary.Matched),
		zap.Int("partial", summary.Partial),
		zap.Int("orphaned", summary.Orphaned),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

// processRow runs one staged row through the full pipeline atomically. The
// row's correlation, quality findings and outcome commit together or not at
// all.
func (s *batchService) processRow(ctx context.Context, row *models.StagedRow) error {
	return s.db.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.matcher.MatchRow(ctx, row); err != nil {
			return err
		}

		if row.CorrelationID != nil {
			conflicts, err := s.quality.DetectConflicts(ctx, *row.CorrelationID)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 && row.ProcessingStatus == models.StatusMatched {
				row.ProcessingStatus = models.StatusPartial
			}

			if _, err := s.confidence.Recompute(ctx, *row.CorrelationID); err != nil {
				return err
			}
		}

		return s.staging.UpdateOutcome(ctx, row)
	})
}

func tally(summary *models.BatchSummary, status models.ProcessingStatus) {
	switch status {
	case models.StatusMatched:
		summary.Matched++
	case models.StatusPartial:
		summary.Partial++
	case models.StatusOrphaned:
		summary.Orphaned++
	default:
		summary.Errors++
	}
}
