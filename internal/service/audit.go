package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/observability"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"go.uber.org/zap"
)

// AuditRecorder appends audit entries for state transitions and privileged
// access. It is called inside the same transaction as the transition it
// records, so a rolled-back operation leaves no audit trace.
type AuditRecorder struct {
	audits repository.AuditRepository
	logger *zap.Logger
	now    func() time.Time
}

func NewAuditRecorder(audits repository.AuditRepository, logger *zap.Logger) (*AuditRecorder, error) {
	if audits == nil {
		return nil, fmt.Errorf("audit repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuditRecorder{
		audits: audits,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (r *AuditRecorder) Record(
	ctx context.Context,
	actor domain.Actor,
	action string,
	resourceType string,
	resourceID string,
	payload map[string]any,
) error {
	entry := &domain.AuditEntry{
		ID:           uuid.NewString(),
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OriginIP:     actor.OriginIP,
		UserAgent:    actor.UserAgent,
		OccurredAt:   r.now().UTC(),
	}

	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
		entry.Payload = encoded
	}

	if err := entry.Validate(); err != nil {
		return err
	}

	if err := r.audits.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	observability.WithContextLogger(r.logger, ctx).Debug("audit entry recorded",
		zap.String("action", action),
		zap.String("resourceType", resourceType),
		zap.String("resourceId", resourceID),
		zap.String("actorId", actor.ID),
	)
	return nil
}
