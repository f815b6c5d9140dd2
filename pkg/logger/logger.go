package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var globalLogger = zap.NewNop()

// New builds a zap logger writing JSON in production and console output otherwise.
func New(level LogLevel, environment string) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "action"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if environment == "production" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), parseLevel(level))
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
}

func Init(level LogLevel, environment string) {
	globalLogger = New(level, environment)
}

// Replace swaps the global logger and returns a function restoring the previous one.
func Replace(l *zap.Logger) func() {
	previous := globalLogger
	globalLogger = l
	return func() { globalLogger = previous }
}

func Sync() {
	_ = globalLogger.Sync()
}

func parseLevel(level LogLevel) zapcore.Level {
	switch LogLevel(strings.ToLower(string(level))) {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func log(level zapcore.Level, action string, userID *string, details map[string]interface{}, err error) {
	ce := globalLogger.Check(level, action)
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, len(details)+2)
	if userID != nil {
		fields = append(fields, zap.String("user_id", *userID))
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", redactDetails(details)))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

func Info(action string, details map[string]interface{}) {
	log(zapcore.InfoLevel, action, nil, details, nil)
}

func InfoWithUser(userID string, action string, details map[string]interface{}) {
	log(zapcore.InfoLevel, action, &userID, details, nil)
}

func Warn(action string, details map[string]interface{}) {
	log(zapcore.WarnLevel, action, nil, details, nil)
}

func WarnWithUser(userID string, action string, details map[string]interface{}) {
	log(zapcore.WarnLevel, action, &userID, details, nil)
}

func Error(action string, err error, details map[string]interface{}) {
	log(zapcore.ErrorLevel, action, nil, details, err)
}

func ErrorWithUser(userID string, action string, err error, details map[string]interface{}) {
	log(zapcore.ErrorLevel, action, &userID, details, err)
}

func GetUserIDFromContext(c *fiber.Ctx) *string {
	if userID := c.Locals("userID"); userID != nil {
		if id, ok := userID.(string); ok {
			return &id
		}
	}
	return nil
}

var sensitiveFields = []string{
	"password", "oldPassword", "newPassword", "secret", "token",
	"tempToken", "code", "recoveryCode", "recoveryCodes",
}

func isSensitive(key string) bool {
	for _, field := range sensitiveFields {
		if strings.EqualFold(field, key) {
			return true
		}
	}
	return false
}

func redactDetails(details map[string]interface{}) map[string]interface{} {
	redacted := make(map[string]interface{}, len(details))
	for key, value := range details {
		if isSensitive(key) {
			redacted[key] = "[REDACTED]"
			continue
		}
		redacted[key] = value
	}
	return redacted
}

func GetRequestBodySummary(c *fiber.Ctx) string {
	body := c.Body()
	if len(body) == 0 {
		return "empty"
	}

	if len(body) > 1024 {
		return fmt.Sprintf("large (%d bytes)", len(body))
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(body, &jsonMap); err == nil {
		if jsonBytes, err := json.Marshal(redactDetails(jsonMap)); err == nil {
			if len(jsonBytes) > 200 {
				return string(jsonBytes[:200]) + "..."
			}
			return string(jsonBytes)
		}
	}

	return fmt.Sprintf("binary (%d bytes)", len(body))
}

func GetResponseSizeSummary(c *fiber.Ctx) string {
	body := c.Response().Body()
	if len(body) == 0 {
		return "empty"
	}

	if len(body) > 1024 {
		return fmt.Sprintf("large (%d bytes)", len(body))
	}

	return fmt.Sprintf("small (%d bytes)", len(body))
}

func GenerateRequestID() string {
	return uuid.New().String()
}
