package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/service"
)

type MonitorService interface {
	Snapshot(ctx context.Context) (*service.MonitorSnapshot, error)
}

type SweepService interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

type PresenceService interface {
	Heartbeat(ctx context.Context, actorID string) error
}

type MonitoringHandler struct {
	monitor   MonitorService
	scheduler SweepService
	presence  PresenceService
}

func NewMonitoringHandler(monitor MonitorService, scheduler SweepService, presence PresenceService) (*MonitoringHandler, error) {
	if monitor == nil {
		return nil, fmt.Errorf("monitor service is required")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler service is required")
	}
	return &MonitoringHandler{
		monitor:   monitor,
		scheduler: scheduler,
		presence:  presence,
	}, nil
}

func RegisterMonitoringRoutes(router fiber.Router, monitor MonitorService, scheduler SweepService, presence PresenceService) error {
	h, err := NewMonitoringHandler(monitor, scheduler, presence)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/monitoring/emissions", h.GetSnapshot)
	v1.Post("/monitoring/sweep", h.RunSweep)
	v1.Post("/monitoring/heartbeat", h.Heartbeat)

	return nil
}

func (h *MonitoringHandler) GetSnapshot(c *fiber.Ctx) error {
	if _, err := actorFromRequest(c); err != nil {
		return toHTTPError(err)
	}

	snapshot, err := h.monitor.Snapshot(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(snapshot)
}

func (h *MonitoringHandler) RunSweep(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}
	if !actor.CanEmit() {
		return toHTTPError(fmt.Errorf("%w: actor %s may not trigger sweeps", domain.ErrAuthorization, actor.ID))
	}

	result, err := h.scheduler.Sweep(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *MonitoringHandler) Heartbeat(c *fiber.Ctx) error {
	actor, err := actorFromRequest(c)
	if err != nil {
		return toHTTPError(err)
	}
	if h.presence == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "presence registry is not configured")
	}

	if err := h.presence.Heartbeat(c.UserContext(), actor.ID); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusNoContent).Send(nil)
}
