package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/service"
)

type BatchCommandService interface {
	CreateBatch(ctx context.Context, actor domain.Actor, input service.CreateBatchInput) (*domain.Batch, error)
}

type BatchQueryService interface {
	GetBatch(ctx context.Context, actor domain.Actor, batchID string) (*domain.Batch, error)
	GetReport(ctx context.Context, actor domain.Actor, batchID string) (*domain.Report, error)
	AuditTrail(ctx context.Context, actor domain.Actor, resourceType string, resourceID string) ([]domain.AuditEntry, error)
}

type ReportEmitService interface {
	Generate(ctx context.Context, actor domain.Actor, batchID string) (*domain.Report, error)
}

type ReportDeliverService interface {
	Deliver(ctx context.Context, actor domain.Actor, batchID string) (*domain.Report, error)
}

type BatchHandler struct {
	commands   BatchCommandService
	queries    BatchQueryService
	emitter    ReportEmitService
	dispatcher ReportDeliverService
}

func NewBatchHandler(
	commands BatchCommandService,
	queries BatchQueryService,
	emitter ReportEmitService,
	dispatcher ReportDeliverService,
) (*BatchHandler, error) {
	if commands == nil || queries == nil {
		return nil, fmt.Errorf("batch command and query services are required")
	}
	if emitter == nil || dispatcher == nil {
		return nil, fmt.Errorf("emitter and dispatcher services are required")
	}
	return &BatchHandler{
		commands:   commands,
		queries:    queries,
		emitter:    emitter,
		dispatcher: dispatcher,
	}, nil
}

func RegisterBatchRoutes(
	router fiber.Router,
	commands BatchCommandService,
	queries BatchQueryService,
	emitter ReportEmitService,
	dispatcher ReportDeliverService,
) error {
	h, err := NewBatchHandler(commands, queries, emitter, dispatcher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches/:batchId", h.GetBatch)
	v1.Get("/batches/:batchId/report", h.GetReport)
	v1.Post("/batches/:batchId/report/emit", h.EmitReport)
	v1.Post("/batches/:batchId/report/deliver", h.DeliverReport)
	v1.Get("/batches/:batchId/audit", h.GetBatchAudit)

	return nil
}

type createBatchRequest struct {
	ClientRef   string   `json:"clientRef"`
	SubjectRefs []string `json:"subjectRefs"`
}

type batchResponse struct {
	ID                  string     `json:"id"`
	ClientRef           string     `json:"clientRef"`
	Status              string     `json:"status"`
	TotalCount          int        `json:"totalCount"`
	CompletedCount      int        `json:"completedCount"`
	InactivatedCount    int        `json:"inactivatedCount"`
	ConcludedAt         *time.Time `json:"concludedAt,omitempty"`
	ScheduledAutoEmitAt *time.Time `json:"scheduledAutoEmitAt,omitempty"`
	AutoEmitFlag        bool       `json:"autoEmitFlag"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type reportResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	ContentHash string     `json:"contentHash,omitempty"`
	EmittedAt   *time.Time `json:"emittedAt,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	RemoteURL   string     `json:"remoteUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type auditEntryResponse struct {
	ID           string          `json:"id"`
	ActorID      string          `json:"actorId"`
	ActorRole    string          `json:"actorRole"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	OriginIP     string          `json:"originIp,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	OccurredAt   time.Time       `json:"occurredAt"`
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	batch, err := h.commands.CreateBatch(c.UserContext(), actor, service.CreateBatchInput{
		ClientRef:   req.ClientRef,
		SubjectRefs: req.SubjectRefs,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}

	batch, err := h.queries.GetBatch(c.UserContext(), actor, strings.TrimSpace(c.Params("batchId")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toBatchResponse(batch))
}

func (h *BatchHandler) GetReport(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.queries.GetReport(c.UserContext(), actor, strings.TrimSpace(c.Params("batchId")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toReportResponse(report))
}

func (h *BatchHandler) EmitReport(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.emitter.Generate(c.UserContext(), actor, strings.TrimSpace(c.Params("batchId")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toReportResponse(report))
}

func (h *BatchHandler) DeliverReport(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.dispatcher.Deliver(c.UserContext(), actor, strings.TrimSpace(c.Params("batchId")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toReportResponse(report))
}

func (h *BatchHandler) GetBatchAudit(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}

	entries, err := h.queries.AuditTrail(c.UserContext(), actor, domain.AuditResourceBatch, strings.TrimSpace(c.Params("batchId")))
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, toAuditEntryResponse(entry))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": responses})
}

func toBatchResponse(b *domain.Batch) batchResponse {
	if b == nil {
		return batchResponse{}
	}

	return batchResponse{
		ID:                  b.ID,
		ClientRef:           b.ClientRef,
		Status:              b.Status.String(),
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

func toReportResponse(r *domain.Report) reportResponse {
	if r == nil {
		return reportResponse{}
	}

	return reportResponse{
		ID:          r.ID,
		Status:      r.Status.String(),
		ContentHash: r.ContentHash,
		EmittedAt:   r.EmittedAt,
		SentAt:      r.SentAt,
		RemoteURL:   r.RemoteURL,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toAuditEntryResponse(e domain.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:           e.ID,
		ActorID:      e.ActorID,
		ActorRole:    e.ActorRole.String(),
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Payload:      e.Payload,
		OriginIP:     e.OriginIP,
		UserAgent:    e.UserAgent,
		OccurredAt:   e.OccurredAt,
	}
}
