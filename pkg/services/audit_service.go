package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetlink-io/assetlink-engine/pkg/models"
	"github.com/assetlink-io/assetlink-engine/pkg/repositories"
)

// AuditService writes the append-only mutation trail for correlation records.
// Actor and source are extracted from the provenance context.
type AuditService interface {
	// LogChange records one mutation with its changed fields.
	LogChange(ctx context.Context, tableName string, recordID uuid.UUID, action string, old, new map[string]any) error

	// Trail returns the recorded history of one record, oldest first.
	Trail(ctx context.Context, tableName string, recordID uuid.UUID) ([]*models.AuditLogEntry, error)
}

type auditService struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo repositories.AuditRepository, logger *zap.Logger) AuditService {
	return &auditService{
		repo:   repo,
		logger: logger.Named("audit-service"),
	}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) LogChange(ctx context.Context, tableName string, recordID uuid.UUID, action string, old, new map[string]any) error {
	prov, ok := models.GetProvenance(ctx)
	if !ok {
		// Engine-internal callers that forgot provenance still get an entry,
		// attributed to the system.
		s.logger.Warn("No provenance context for audit entry",
			zap.String("table", tableName),
			zap.String("record_id", recordID.String()),
			zap.String("action", action))
		prov = models.ProvenanceContext{Source: models.SourceSystem, Actor: "system"}
	}

	entry := &models.AuditLogEntry{
		TableName: tableName,
		RecordID:  recordID,
		Action:    action,
		OldValues: old,
		NewValues: new,
		Actor:     prov.Actor,
		Source:    prov.Source.String(),
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to create audit entry",
			zap.String("table", tableName),
			zap.String("record_id", recordID.String()),
			zap.String("action", action),
			zap.Error(err))
		return fmt.Errorf("create audit entry: %w", err)
	}

	return nil
}

func (s *auditService) Trail(ctx context.Context, tableName string, recordID uuid.UUID) ([]*models.AuditLogEntry, error) {
	return s.repo.GetByRecord(ctx, tableName, recordID)
}
