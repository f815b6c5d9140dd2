package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/peakpoint/backend/internal/services"
	"github.com/peakpoint/backend/pkg/utils"
)

type AuthHandler struct {
	Auth *services.Authenticator
}

func NewAuthHandler(auth *services.Authenticator) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

type authenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Authenticate answers 201 with a session, or 200 with a two-factor challenge
// when the account has it enabled.
func (h *AuthHandler) Authenticate(c *fiber.Ctx) error {
	var req authenticateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	result, err := h.Auth.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, "login_failed", err)
	}
	return loginResponse(c, result)
}

func loginResponse(c *fiber.Ctx, result *services.LoginResult) error {
	if result.TwoFactorRequired {
		return utils.JSON(c, fiber.StatusOK, fiber.Map{
			"twoFactorRequired": true,
			"tempToken":         result.TempToken,
			"name":              result.User.Name(),
			"email":             result.User.Email,
			"id":                result.User.ID.String(),
		})
	}
	return utils.JSON(c, fiber.StatusCreated, fiber.Map{
		"success": true,
		"name":    result.User.Name(),
		"email":   result.User.Email,
		"token":   result.Token,
		"id":      result.User.ID.String(),
	})
}
