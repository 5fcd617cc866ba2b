package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
)

type EvaluationLifecycleService interface {
	Submit(ctx context.Context, actor domain.Actor, evaluationID string, responses json.RawMessage) (*domain.Evaluation, error)
	Inactivate(ctx context.Context, actor domain.Actor, evaluationID string) (*domain.Evaluation, error)
	Reset(ctx context.Context, actor domain.Actor, evaluationID string, reason string) (*domain.Evaluation, error)
}

type EvaluationHandler struct {
	service EvaluationLifecycleService
}

func NewEvaluationHandler(service EvaluationLifecycleService) (*EvaluationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("evaluation service is required")
	}
	return &EvaluationHandler{service: service}, nil
}

func RegisterEvaluationRoutes(router fiber.Router, service EvaluationLifecycleService) error {
	h, err := NewEvaluationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/evaluations/:id/submit", h.SubmitEvaluation)
	v1.Post("/evaluations/:id/inactivate", h.InactivateEvaluation)
	v1.Post("/evaluations/:id/reset", h.ResetEvaluation)

	return nil
}

type submitEvaluationRequest struct {
	Responses json.RawMessage `json:"responses"`
}

type resetEvaluationRequest struct {
	Reason string `json:"reason"`
}

type evaluationResponse struct {
	ID          string          `json:"id"`
	BatchID     string          `json:"batchId"`
	SubjectRef  string          `json:"subjectRef"`
	Status      string          `json:"status"`
	Responses   json.RawMessage `json:"responses,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (h *EvaluationHandler) SubmitEvaluation(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req submitEvaluationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	evaluation, err := h.service.Submit(c.UserContext(), actor, strings.TrimSpace(c.Params("id")), req.Responses)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toEvaluationResponse(evaluation))
}

func (h *EvaluationHandler) InactivateEvaluation(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}

	evaluation, err := h.service.Inactivate(c.UserContext(), actor, strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toEvaluationResponse(evaluation))
}

func (h *EvaluationHandler) ResetEvaluation(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req resetEvaluationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	evaluation, err := h.service.Reset(c.UserContext(), actor, strings.TrimSpace(c.Params("id")), req.Reason)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toEvaluationResponse(evaluation))
}

func toEvaluationResponse(e *domain.Evaluation) evaluationResponse {
	if e == nil {
		return evaluationResponse{}
	}

	return evaluationResponse{
		ID:          e.ID,
		BatchID:     e.BatchID,
		SubjectRef:  e.SubjectRef,
		Status:      e.Status.String(),
		Responses:   e.Responses,
		CompletedAt: e.CompletedAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
