package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/repositories"
)

// StatusService assembles the migration dashboard snapshot.
type StatusService interface {
	Snapshot(ctx context.Context) (*models.StatusReport, error)
}

type statusService struct {
	correlations repositories.CorrelationRepository
	metrics      repositories.QualityMetricRepository
	logger       *zap.Logger
}

// NewStatusService creates a new StatusService.
func NewStatusService(correlations repositories.CorrelationRepository, metrics repositories.QualityMetricRepository, logger *zap.Logger) StatusService {
	return &statusService{
		correlations: correlations,
		metrics:      metrics,
		logger:       logger.Named("status-service"),
	}
}

var _ StatusService = (*statusService)(nil)

func (s *statusService) Snapshot(ctx context.Context) (*models.StatusReport, error) {
	report, err := s.correlations.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build status report: %w", err)
	}

	quality, err := s.metrics.OpenStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load quality stats: %w", err)
	}
	report.Quality = *quality

	return report, nil
}
