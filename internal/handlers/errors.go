package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/peakpoint/backend/internal/services"
	"github.com/peakpoint/backend/pkg/authtoken"
	"github.com/peakpoint/backend/pkg/logger"
	"github.com/peakpoint/backend/pkg/utils"
)

// respondError maps service errors onto the HTTP error envelope. Anything
// unrecognised is logged and reported as a 500 without detail.
func respondError(c *fiber.Ctx, action string, err error) error {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return utils.Error(c, fiber.StatusUnauthorized, services.ErrUnauthorized.Error())
	case errors.Is(err, authtoken.ErrInvalidToken), errors.Is(err, authtoken.ErrWrongStage):
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, services.ErrInvalidCode):
		return utils.Error(c, fiber.StatusUnauthorized, services.ErrInvalidCode.Error())
	case errors.Is(err, services.ErrNoSecret):
		return utils.Error(c, fiber.StatusBadRequest, services.ErrNoSecret.Error())
	case errors.Is(err, services.ErrTwoFactorNotEnabled):
		return utils.Error(c, fiber.StatusBadRequest, services.ErrTwoFactorNotEnabled.Error())
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrUserNotFound):
		return utils.Error(c, fiber.StatusNotFound, "user not found")
	case errors.Is(err, services.ErrConflict):
		return utils.Error(c, fiber.StatusConflict, "user already exists")
	case errors.Is(err, services.ErrForbidden):
		return utils.Error(c, fiber.StatusForbidden, services.ErrForbidden.Error())
	case errors.Is(err, services.ErrProviderDisabled):
		return utils.Error(c, fiber.StatusNotFound, services.ErrProviderDisabled.Error())
	case errors.Is(err, services.ErrUnavailable):
		logger.Error(action, err, map[string]interface{}{"path": c.Path()})
		return utils.Error(c, fiber.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		logger.Error(action, err, map[string]interface{}{"path": c.Path()})
		return utils.Error(c, fiber.StatusInternalServerError, "internal server error")
	}
}
