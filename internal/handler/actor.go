package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
)

const (
	headerActorID   = "X-Actor-Id"
	headerActorRole = "X-Actor-Role"
)

// actorFromRequest builds the acting identity from request headers plus
// connection provenance. Every mutating route requires it; the audit trail
// stores what it returns.
func actorFromRequest(c *fiber.Ctx) (domain.Actor, error) {
	id := strings.TrimSpace(c.Get(headerActorID))
	if id == "" {
		return domain.Actor{}, fmt.Errorf("%w: %s header is required", domain.ErrValidation, headerActorID)
	}

	role, err := domain.ParseRoleFromString(c.Get(headerActorRole))
	if err != nil {
		return domain.Actor{}, err
	}

	return domain.Actor{
		ID:        id,
		Role:      role,
		OriginIP:  c.IP(),
		UserAgent: string(c.Request().Header.UserAgent()),
	}, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAuthorization):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrStateConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrIntegrity):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrTransient):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
