package repository

import (
	"encoding/json"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
)

// BatchModel is the persistence model for the batches table.
type BatchModel struct {
	ID                  string             `gorm:"type:uuid;primaryKey"`
	ClientRef           string             `gorm:"type:varchar(64);not null"`
	Status              domain.BatchStatus `gorm:"type:varchar(20);not null"`
	TotalCount          int                `gorm:"not null;default:0"`
	CompletedCount      int                `gorm:"not null;default:0"`
	InactivatedCount    int                `gorm:"not null;default:0"`
	ConcludedAt         *time.Time         `gorm:"type:timestamptz"`
	ScheduledAutoEmitAt *time.Time         `gorm:"type:timestamptz"`
	AutoEmitFlag        bool               `gorm:"not null;default:false"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// EvaluationModel is the persistence model for the evaluations table.
type EvaluationModel struct {
	ID          string                  `gorm:"type:uuid;primaryKey"`
	BatchID     string                  `gorm:"type:uuid;not null"`
	SubjectRef  string                  `gorm:"type:varchar(64);not null"`
	Status      domain.EvaluationStatus `gorm:"type:varchar(20);not null"`
	Responses   json.RawMessage         `gorm:"type:jsonb"`
	CompletedAt *time.Time              `gorm:"type:timestamptz"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (EvaluationModel) TableName() string {
	return "evaluations"
}

// ReportModel is the persistence model for the reports table. Its primary
// key references batches(id): one report per batch, same identity.
type ReportModel struct {
	ID          string              `gorm:"type:uuid;primaryKey"`
	Status      domain.ReportStatus `gorm:"type:varchar(20);not null"`
	ContentHash *string             `gorm:"type:char(64)"`
	EmittedAt   *time.Time          `gorm:"type:timestamptz"`
	SentAt      *time.Time          `gorm:"type:timestamptz"`
	RemoteURL   *string             `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ReportModel) TableName() string {
	return "reports"
}

// EmissionQueueItemModel is the persistence model for emission_queue.
type EmissionQueueItemModel struct {
	ID            string             `gorm:"type:uuid;primaryKey"`
	BatchID       string             `gorm:"type:uuid;not null"`
	Status        domain.QueueStatus `gorm:"type:varchar(20);not null"`
	Priority      domain.Priority    `gorm:"type:varchar(10);not null"`
	PriorityRank  int                `gorm:"not null;default:0"`
	Attempts      int                `gorm:"not null;default:0"`
	LastError     *string            `gorm:"type:text"`
	NextAttemptAt time.Time          `gorm:"type:timestamptz;not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (EmissionQueueItemModel) TableName() string {
	return "emission_queue"
}

// AuditEntryModel is the persistence model for audit_log.
type AuditEntryModel struct {
	ID           string          `gorm:"type:uuid;primaryKey"`
	ActorID      string          `gorm:"type:varchar(64);not null"`
	ActorRole    domain.Role     `gorm:"type:varchar(20);not null"`
	Action       string          `gorm:"type:varchar(64);not null"`
	ResourceType string          `gorm:"type:varchar(32);not null"`
	ResourceID   string          `gorm:"type:uuid;not null"`
	Payload      json.RawMessage `gorm:"type:jsonb"`
	OriginIP     *string         `gorm:"type:varchar(45)"`
	UserAgent    *string         `gorm:"type:varchar(255)"`
	OccurredAt   time.Time       `gorm:"type:timestamptz;not null"`
}

func (AuditEntryModel) TableName() string {
	return "audit_log"
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:                  b.ID,
		ClientRef:           b.ClientRef,
		Status:              b.Status,
		TotalCount:          b.TotalCount,
		CompletedCount:      b.CompletedCount,
		InactivatedCount:    b.InactivatedCount,
		ConcludedAt:         b.ConcludedAt,
		ScheduledAutoEmitAt: b.ScheduledAutoEmitAt,
		AutoEmitFlag:        b.AutoEmitFlag,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel) *domain.Batch {
	if m == nil {
		return nil
	}

	return &domain.Batch{
		ID:                  m.ID,
		ClientRef:           m.ClientRef,
		Status:              m.Status,
		TotalCount:          m.TotalCount,
		CompletedCount:      m.CompletedCount,
		InactivatedCount:    m.InactivatedCount,
		ConcludedAt:         m.ConcludedAt,
		ScheduledAutoEmitAt: m.ScheduledAutoEmitAt,
		AutoEmitFlag:        m.AutoEmitFlag,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func evaluationModelFromDomain(e *domain.Evaluation) *EvaluationModel {
	if e == nil {
		return nil
	}

	return &EvaluationModel{
		ID:          e.ID,
		BatchID:     e.BatchID,
		SubjectRef:  e.SubjectRef,
		Status:      e.Status,
		Responses:   e.Responses,
		CompletedAt: e.CompletedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func evaluationModelToDomain(m *EvaluationModel) *domain.Evaluation {
	if m == nil {
		return nil
	}

	return &domain.Evaluation{
		ID:          m.ID,
		BatchID:     m.BatchID,
		SubjectRef:  m.SubjectRef,
		Status:      m.Status,
		Responses:   m.Responses,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func reportModelToDomain(m *ReportModel) *domain.Report {
	if m == nil {
		return nil
	}

	r := &domain.Report{
		ID:        m.ID,
		Status:    m.Status,
		EmittedAt: m.EmittedAt,
		SentAt:    m.SentAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.ContentHash != nil {
		r.ContentHash = *m.ContentHash
	}
	if m.RemoteURL != nil {
		r.RemoteURL = *m.RemoteURL
	}
	return r
}

func queueItemModelFromDomain(i *domain.EmissionQueueItem) *EmissionQueueItemModel {
	if i == nil {
		return nil
	}

	return &EmissionQueueItemModel{
		ID:            i.ID,
		BatchID:       i.BatchID,
		Status:        i.Status,
		Priority:      i.Priority,
		PriorityRank:  i.Priority.Rank(),
		Attempts:      i.Attempts,
		LastError:     i.LastError,
		NextAttemptAt: i.NextAttemptAt,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

func queueItemModelToDomain(m *EmissionQueueItemModel) *domain.EmissionQueueItem {
	if m == nil {
		return nil
	}

	return &domain.EmissionQueueItem{
		ID:            m.ID,
		BatchID:       m.BatchID,
		Status:        m.Status,
		Priority:      m.Priority,
		Attempts:      m.Attempts,
		LastError:     m.LastError,
		NextAttemptAt: m.NextAttemptAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func auditEntryModelFromDomain(e *domain.AuditEntry) *AuditEntryModel {
	if e == nil {
		return nil
	}

	m := &AuditEntryModel{
		ID:           e.ID,
		ActorID:      e.ActorID,
		ActorRole:    e.ActorRole,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Payload:      e.Payload,
		OccurredAt:   e.OccurredAt,
	}
	if e.OriginIP != "" {
		value := e.OriginIP
		m.OriginIP = &value
	}
	if e.UserAgent != "" {
		value := e.UserAgent
		m.UserAgent = &value
	}
	return m
}

func auditEntryModelToDomain(m *AuditEntryModel) *domain.AuditEntry {
	if m == nil {
		return nil
	}

	e := &domain.AuditEntry{
		ID:           m.ID,
		ActorID:      m.ActorID,
		ActorRole:    m.ActorRole,
		Action:       m.Action,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Payload:      m.Payload,
		OccurredAt:   m.OccurredAt,
	}
	if m.OriginIP != nil {
		e.OriginIP = *m.OriginIP
	}
	if m.UserAgent != nil {
		e.UserAgent = *m.UserAgent
	}
	return e
}
