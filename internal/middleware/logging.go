package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/peakpoint/backend/pkg/logger"
)

func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := logger.GenerateRequestID()
		c.Locals("requestID", requestID)
		c.Set("X-Request-ID", requestID)

		err := c.Next()

		statusCode := responseStatus(c, err)
		details := map[string]interface{}{
			"method":        c.Method(),
			"path":          c.Path(),
			"status_code":   statusCode,
			"latency_ms":    time.Since(start).Milliseconds(),
			"user_agent":    c.Get("User-Agent"),
			"ip":            c.IP(),
			"request_body":  logger.GetRequestBodySummary(c),
			"response_body": logger.GetResponseSizeSummary(c),
			"request_id":    requestID,
		}

		userID := logger.GetUserIDFromContext(c)
		switch {
		case userID != nil && statusCode >= 500:
			logger.ErrorWithUser(*userID, "http_request", err, details)
		case userID != nil && statusCode >= 400:
			logger.WarnWithUser(*userID, "http_request", details)
		case userID != nil:
			logger.InfoWithUser(*userID, "http_request", details)
		case statusCode >= 500:
			logger.Error("http_request", err, details)
		case statusCode >= 400:
			logger.Warn("http_request", details)
		default:
			logger.Info("http_request", details)
		}

		return err
	}
}

// SecurityLogger records rejected and denied requests so repeated probing
// shows up in the logs.
func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		var reason string
		switch responseStatus(c, err) {
		case fiber.StatusUnauthorized:
			reason = "unauthorized"
		case fiber.StatusForbidden:
			reason = "access_denied"
		case fiber.StatusNotFound:
			reason = "not_found"
		default:
			return err
		}

		userID := logger.GetUserIDFromContext(c)
		details := map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
			"ip":     c.IP(),
			"reason": reason,
		}
		if userID != nil {
			logger.WarnWithUser(*userID, reason, details)
		} else {
			logger.Warn(reason+"_unauthenticated", details)
		}

		return err
	}
}

// responseStatus accounts for errors that the app error handler has not
// written to the response yet.
func responseStatus(c *fiber.Ctx, err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	if err != nil {
		return fiber.StatusInternalServerError
	}
	return c.Response().StatusCode()
}
