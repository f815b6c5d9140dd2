package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/peakpoint/backend/internal/middleware"
	"github.com/peakpoint/backend/internal/services"
	"github.com/peakpoint/backend/pkg/utils"
)

type TwoFactorHandler struct {
	TwoFactor *services.TwoFactorService
}

func NewTwoFactorHandler(twoFactor *services.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{TwoFactor: twoFactor}
}

func (h *TwoFactorHandler) Setup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	setup, err := h.TwoFactor.Setup(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, "two_factor_setup_failed", err)
	}
	return utils.JSON(c, fiber.StatusOK, fiber.Map{
		"otpauthUrl": setup.OTPAuthURL,
		"secret":     setup.Secret,
	})
}

type verifySetupRequest struct {
	Code string `json:"code"`
}

func (h *TwoFactorHandler) VerifySetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req verifySetupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Code) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	codes, err := h.TwoFactor.VerifySetup(c.UserContext(), user.ID, req.Code)
	if err != nil {
		return respondError(c, "two_factor_verify_setup_failed", err)
	}
	return utils.JSON(c, fiber.StatusOK, fiber.Map{
		"enabled":       true,
		"recoveryCodes": codes,
	})
}

type verifyLoginRequest struct {
	TempToken    string `json:"tempToken"`
	Code         string `json:"code"`
	RecoveryCode string `json:"recoveryCode"`
}

func (h *TwoFactorHandler) VerifyLogin(c *fiber.Ctx) error {
	var req verifyLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.TempToken == "" || strings.TrimSpace(req.Code) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "tempToken and code are required")
	}

	result, err := h.TwoFactor.VerifyLoginCode(c.UserContext(), req.TempToken, req.Code)
	if err != nil {
		return respondError(c, "two_factor_login_failed", err)
	}
	return loginResponse(c, result)
}

func (h *TwoFactorHandler) RecoveryLogin(c *fiber.Ctx) error {
	var req verifyLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.TempToken == "" || strings.TrimSpace(req.RecoveryCode) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "tempToken and recoveryCode are required")
	}

	result, err := h.TwoFactor.VerifyRecoveryCode(c.UserContext(), req.TempToken, req.RecoveryCode)
	if err != nil {
		return respondError(c, "recovery_login_failed", err)
	}
	return loginResponse(c, result)
}

func (h *TwoFactorHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	status, err := h.TwoFactor.Status(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, "two_factor_status_failed", err)
	}
	return utils.JSON(c, fiber.StatusOK, fiber.Map{
		"enabled":                status.Enabled,
		"pending":                status.Pending,
		"recoveryCodesRemaining": status.RecoveryCodesRemaining,
	})
}

type disableRequest struct {
	Password string `json:"password"`
}

func (h *TwoFactorHandler) Disable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req disableRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "password is required")
	}

	if err := h.TwoFactor.Disable(c.UserContext(), user.ID, req.Password); err != nil {
		return respondError(c, "two_factor_disable_failed", err)
	}
	return utils.JSON(c, fiber.StatusOK, fiber.Map{"enabled": false})
}
