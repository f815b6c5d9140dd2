package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/peakpoint/backend/internal/models"
	"github.com/peakpoint/backend/internal/services"
	"github.com/peakpoint/backend/pkg/logger"
	"github.com/peakpoint/backend/pkg/utils"
)

const (
	currentUserKey = "currentUser"
	validationKey  = "validation"
	userIDKey      = "userID"
)

type AuthMiddleware struct {
	Auth *services.Authenticator
}

func NewAuthMiddleware(auth *services.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{Auth: auth}
}

func CORS(frontendURL string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: frontendURL,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// bearerToken extracts the credentials of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func bearerToken(authHeader string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireAuth rejects the request before any handler runs unless it carries
// a valid session token for an existing user.
func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("jwt_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString, ok := bearerToken(authHeader)
	if !ok {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	validation, err := a.Auth.ValidateToken(c.UserContext(), tokenString)
	if err != nil {
		logger.Error("jwt_validation_unavailable", err, map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusServiceUnavailable, "authentication temporarily unavailable")
	}
	if !validation.Valid {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	setValidation(c, validation)
	return c.Next()
}

func setValidation(c *fiber.Ctx, validation services.Validation) {
	c.Locals(validationKey, validation)
	c.Locals(currentUserKey, validation.User)
	c.Locals(userIDKey, validation.User.ID.String())
}

func AdminOnly(c *fiber.Ctx) error {
	validation, ok := GetValidation(c)
	if !ok {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if !validation.IsAdmin {
		return utils.Error(c, fiber.StatusForbidden, "admin access required")
	}
	return c.Next()
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

func GetValidation(c *fiber.Ctx) (services.Validation, bool) {
	validation, ok := c.Locals(validationKey).(services.Validation)
	if !ok || !validation.Valid {
		return services.Validation{}, false
	}
	return validation, true
}

// GetActor returns the caller as seen by user operations.
func GetActor(c *fiber.Ctx) (services.Actor, bool) {
	validation, ok := GetValidation(c)
	if !ok {
		return services.Actor{}, false
	}
	return services.Actor{UserID: validation.User.ID, IsAdmin: validation.IsAdmin}, true
}
