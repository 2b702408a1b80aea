package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetlink-io/assetlink-engine/pkg/models"
)

func daysAgo(n int) *time.Time {
	t := time.Now().Add(-time.Duration(n) * 24 * time.Hour)
	return &t
}

func TestScore(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-time.Hour)

	tests := []struct {
		name string
		in   ScoreInput
		want float64
	}{
		{
			name: "fully linked and fresh",
			in: ScoreInput{
				HasRFIDTag: true, HasPOSItem: true, HasName: true,
				LastVerifiedAt: &fresh, Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 1.0,
		},
		{
			name: "missing rfid tag",
			in: ScoreInput{
				HasPOSItem: true, HasName: true,
				LastVerifiedAt: &fresh, Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 0.80,
		},
		{
			name: "missing pos item",
			in: ScoreInput{
				HasRFIDTag: true, HasName: true,
				LastVerifiedAt: &fresh, Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 0.90,
		},
		{
			name: "missing name",
			in: ScoreInput{
				HasRFIDTag: true, HasPOSItem: true,
				LastVerifiedAt: &fresh, Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 0.85,
		},
		{
			name: "open issues capped at five",
			in: ScoreInput{
				HasRFIDTag: true, HasPOSItem: true, HasName: true, OpenIssues: 9,
				LastVerifiedAt: &fresh, Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 0.75,
		},
		{
			name: "validated mapping bonus",
			in: ScoreInput{
				HasRFIDTag: true, HasPOSItem: true, OpenIssues: 1, ValidatedMappings: 2,
				LastVerifiedAt: &fresh, Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 0.90,
		},
		{
			name: "bonus never exceeds one",
			in: ScoreInput{
				HasRFIDTag: true, HasPOSItem: true, HasName: true, ValidatedMappings: 1,
				LastVerifiedAt: &fresh, Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 1.0,
		},
		{
			name: "never verified counts as very stale",
			in: ScoreInput{
				HasRFIDTag: true, HasPOSItem: true, HasName: true,
				Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 0.90,
		},
		{
			name: "stale verification",
			in: ScoreInput{
				HasRFIDTag: true, HasPOSItem: true, HasName: true,
				LastVerifiedAt: daysAgo(45), Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 0.95,
		},
		{
			name: "very stale verification",
			in: ScoreInput{
				HasRFIDTag: true, HasPOSItem: true, HasName: true,
				LastVerifiedAt: daysAgo(120), Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 0.90,
		},
		{
			name: "all penalties stack",
			in: ScoreInput{
				OpenIssues: 5, Now: now, StaleDays: 30, VeryStaleDays: 90,
			},
			want: 0.20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.in), 1e-9)
		})
	}
}

func TestScoreIdempotent(t *testing.T) {
	now := time.Now()
	in := ScoreInput{
		HasRFIDTag: true, HasName: true, OpenIssues: 2,
		LastVerifiedAt: daysAgo(10), Now: now, StaleDays: 30, VeryStaleDays: 90,
	}
	first := Score(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Score(in))
	}
}

func TestConfidenceService_Recompute(t *testing.T) {
	correlations := newMockCorrelationRepository()
	metrics := &mockQualityMetricRepository{}
	mappings := &mockMappingRepository{validated: map[uuid.UUID]int{}}
	svc := NewConfidenceService(correlations, metrics, mappings, testThresholds())

	tag := "TAG-001"
	pos := "POS-001"
	now := time.Now()
	c := &models.Correlation{
		RFIDTagID:      &tag,
		POSItemNum:     &pos,
		Tracking:       models.TrackingRFID,
		CommonName:     "Round Table",
		LastVerifiedAt: &now,
	}
	require.NoError(t, correlations.Create(context.Background(), c))

	score, err := svc.Recompute(context.Background(), c.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)

	// An open finding drags the persisted score down.
	require.NoError(t, metrics.Record(context.Background(), &models.Conflict{
		CorrelationID: c.ID,
		Type:          models.ConflictNameMismatch,
		Field:         "common_name",
	}))

	score, err = svc.Recompute(context.Background(), c.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, score, 1e-9)

	stored, err := correlations.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, stored.ConfidenceScore, 1e-9)
}

func TestConfidenceService_RecomputeNotFound(t *testing.T) {
	svc := NewConfidenceService(newMockCorrelationRepository(), &mockQualityMetricRepository{}, &mockMappingRepository{}, testThresholds())

	_, err := svc.Recompute(context.Background(), uuid.New())
	assert.Error(t, err)
}
