package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/peakpoint/backend/internal/middleware"
	"github.com/peakpoint/backend/internal/services"
	"github.com/peakpoint/backend/pkg/utils"
)

type UsersHandler struct {
	Users *services.UserService
}

func NewUsersHandler(users *services.UserService) *UsersHandler {
	return &UsersHandler{Users: users}
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}

	user, err := h.Users.Register(c.UserContext(), services.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		return respondError(c, "user_register_failed", err)
	}
	return utils.JSON(c, fiber.StatusCreated, user)
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	users, err := h.Users.List(c.UserContext(), actor)
	if err != nil {
		return respondError(c, "user_list_failed", err)
	}
	return utils.JSON(c, fiber.StatusOK, users)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	user, err := h.Users.Get(c.UserContext(), actor, id)
	if err != nil {
		return respondError(c, "user_get_failed", err)
	}
	return utils.JSON(c, fiber.StatusOK, user)
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if err := h.Users.Delete(c.UserContext(), actor, id); err != nil {
		return respondError(c, "user_delete_failed", err)
	}
	return utils.NoContent(c)
}

func (h *UsersHandler) DeleteAll(c *fiber.Ctx) error {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	deleted, err := h.Users.DeleteAll(c.UserContext(), actor)
	if err != nil {
		return respondError(c, "user_delete_all_failed", err)
	}
	return utils.JSON(c, fiber.StatusOK, fiber.Map{"success": true, "deleted": deleted})
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}
