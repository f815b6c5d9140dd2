package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/peakpoint/backend/internal/middleware"
	"github.com/peakpoint/backend/pkg/utils"
)

type Routes struct {
	Auth      *AuthHandler
	Users     *UsersHandler
	TwoFactor *TwoFactorHandler
	OAuth     *OAuthHandler
	Guard     *middleware.AuthMiddleware

	// LoginRateLimit is the per-IP budget per minute for password and
	// second-factor attempts. Zero disables it.
	LoginRateLimit int
}

func NewApp(frontendURL string) *fiber.App {
	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(frontendURL))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	return app
}

func loginLimiter(max int) fiber.Handler {
	if max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return utils.Error(c, fiber.StatusTooManyRequests, "too many attempts, try again later")
		},
	})
}

func RegisterRoutes(app *fiber.App, r Routes) {
	guard := r.Guard.RequireAuth
	limit := loginLimiter(r.LoginRateLimit)

	api := app.Group("/api")

	userRoutes := api.Group("/users")
	userRoutes.Post("/authenticate", limit, r.Auth.Authenticate)
	userRoutes.Post("/", r.Users.Register)
	userRoutes.Get("/", guard, middleware.AdminOnly, r.Users.List)
	userRoutes.Delete("/", guard, middleware.AdminOnly, r.Users.DeleteAll)
	userRoutes.Get("/:id", guard, r.Users.Get)
	userRoutes.Delete("/:id", guard, r.Users.Delete)

	twoFactorRoutes := api.Group("/2fa")
	twoFactorRoutes.Post("/verify-login", limit, r.TwoFactor.VerifyLogin)
	twoFactorRoutes.Post("/recovery-login", limit, r.TwoFactor.RecoveryLogin)
	twoFactorRoutes.Post("/setup", guard, r.TwoFactor.Setup)
	twoFactorRoutes.Post("/verify-setup", guard, r.TwoFactor.VerifySetup)
	twoFactorRoutes.Get("/status", guard, r.TwoFactor.Status)
	twoFactorRoutes.Post("/disable", guard, r.TwoFactor.Disable)

	oauthRoutes := api.Group("/oauth")
	oauthRoutes.Get("/providers", r.OAuth.ListProviders)
	oauthRoutes.Get("/:provider", r.OAuth.Start)
	oauthRoutes.Get("/:provider/callback", r.OAuth.Callback)
}
