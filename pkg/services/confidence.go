package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/assetlink-io/assetlink-engine/pkg/apperrors"
	"github.com/assetlink-io/assetlink-engine/pkg/config"
	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/repositories"
)

// ScoreInput is the joined view of a correlation that the confidence score is
// a pure function of.
type ScoreInput struct {
	HasRFIDTag        bool
	HasPOSItem        bool
	HasName           bool
	OpenIssues        int
	ValidatedMappings int
	LastVerifiedAt    *time.Time

	Now           time.Time
	StaleDays     int
	VeryStaleDays int
}

// Score computes the [0, 1] trust metric for a correlation. It is idempotent
// and has no side effects; callers persist the result explicitly.
//
// Weights: start at 1.0; missing tag -0.20, missing POS number -0.10, missing
// name -0.15; -0.05 per open issue capped at five; +0.10 for any validated
// external mapping; recency penalty -0.05 past StaleDays, -0.10 past
// VeryStaleDays (a never-verified record counts as very stale).
func Score(in ScoreInput) float64 {
	score := 1.0

	if !in.HasRFIDTag {
		score -= 0.20
	}
	if !in.HasPOSItem {
		score -= 0.10
	}
	if !in.HasName {
		score -= 0.15
	}

	open := in.OpenIssues
	if open > 5 {
		open = 5
	}
	score -= 0.05 * float64(open)

	if in.ValidatedMappings > 0 {
		score += 0.10
	}

	score -= recencyPenalty(in)

	return clampScore(score)
}

func recencyPenalty(in ScoreInput) float64 {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	if in.LastVerifiedAt == nil {
		return 0.10
	}
	age := now.Sub(*in.LastVerifiedAt)
	switch {
	case age > time.Duration(in.VeryStaleDays)*24*time.Hour:
		return 0.10
	case age > time.Duration(in.StaleDays)*24*time.Hour:
		return 0.05
	}
	return 0
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// ConfidenceService recomputes and persists correlation confidence scores.
type ConfidenceService interface {
	// Recompute scores the correlation's current joined state and persists the
	// result. Must run after any mutation outside the resolver's explicit
	// override paths.
	Recompute(ctx context.Context, correlationID uuid.UUID) (float64, error)
	// ScoreCorrelation computes (without persisting) the score for an already
	// loaded correlation.
	ScoreCorrelation(ctx context.Context, c *models.Correlation) (float64, error)
}

type confidenceService struct {
	correlations repositories.CorrelationRepository
	metrics      repositories.QualityMetricRepository
	mappings     repositories.MappingRepository
	thresholds   config.ThresholdConfig
}

// NewConfidenceService creates a new ConfidenceService.
func NewConfidenceService(
	correlations repositories.CorrelationRepository,
	metrics repositories.QualityMetricRepository,
	mappings repositories.MappingRepository,
	thresholds config.ThresholdConfig,
) ConfidenceService {
	return &confidenceService{
		correlations: correlations,
		metrics:      metrics,
		mappings:     mappings,
		thresholds:   thresholds,
	}
}

var _ ConfidenceService = (*confidenceService)(nil)

func (s *confidenceService) Recompute(ctx context.Context, correlationID uuid.UUID) (float64, error) {
	c, err := s.correlations.GetByID(ctx, correlationID)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, apperrors.ErrNotFound
	}

	score, err := s.ScoreCorrelation(ctx, c)
	if err != nil {
		return 0, err
	}

	c.ConfidenceScore = score
	if err := s.correlations.Update(ctx, c); err != nil {
		return 0, fmt.Errorf("failed to persist confidence score: %w", err)
	}
	return score, nil
}

func (s *confidenceService) ScoreCorrelation(ctx context.Context, c *models.Correlation) (float64, error) {
	openIssues, err := s.metrics.CountOpenByCorrelation(ctx, c.ID)
	if err != nil {
		return 0, err
	}
	validated, err := s.mappings.CountValidated(ctx, c.ID)
	if err != nil {
		return 0, err
	}

	return Score(ScoreInput{
		HasRFIDTag:        c.HasRFID(),
		HasPOSItem:        c.HasPOS(),
		HasName:           c.CommonName != "",
		OpenIssues:        openIssues,
		ValidatedMappings: validated,
		LastVerifiedAt:    c.LastVerifiedAt,
		StaleDays:         s.thresholds.VerificationStaleDays,
		VeryStaleDays:     s.thresholds.VerificationVeryStaleDays,
	}), nil
}
