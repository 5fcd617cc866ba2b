package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Audit action names, one per recorded state transition or privileged access.
const (
	AuditActionBatchCreated       = "batch_created"
	AuditActionBatchStatusChanged = "batch_status_changed"
	AuditActionBatchAccessed      = "batch_accessed"
	AuditActionReportEmitted      = "report_emitted"
	AuditActionReportDelivered    = "report_delivered"
	AuditActionEvaluationReset    = "evaluation_reset"
	AuditActionAutoEmitScheduled  = "auto_emission_scheduled"
	AuditActionAutoEmitSkipped    = "auto_emission_skipped"
	AuditActionEmissionFailed     = "emission_failed"
	AuditActionIntegrityViolation = "integrity_violation"
)

// Audit resource types.
const (
	AuditResourceBatch      = "batch"
	AuditResourceEvaluation = "evaluation"
	AuditResourceReport     = "report"
	AuditResourceQueueItem  = "emission_queue_item"
)

// AuditEntry is one append-only record of a state transition or privileged
// access. No update or delete path exists outside retention tooling.
type AuditEntry struct {
	ID           string
	ActorID      string
	ActorRole    Role
	Action       string
	ResourceType string
	ResourceID   string
	Payload      json.RawMessage
	OriginIP     string
	UserAgent    string
	OccurredAt   time.Time
}

func (e *AuditEntry) Validate() error {
	if strings.TrimSpace(e.ActorID) == "" {
		return fmt.Errorf("%w: actor id is required", ErrValidation)
	}
	if strings.TrimSpace(e.Action) == "" {
		return fmt.Errorf("%w: action is required", ErrValidation)
	}
	if strings.TrimSpace(e.ResourceType) == "" {
		return fmt.Errorf("%w: resource type is required", ErrValidation)
	}
	if strings.TrimSpace(e.ResourceID) == "" {
		return fmt.Errorf("%w: resource id is required", ErrValidation)
	}
	return nil
}
