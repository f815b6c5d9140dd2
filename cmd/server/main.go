package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peakpoint/backend/internal/cache"
	"github.com/peakpoint/backend/internal/config"
	"github.com/peakpoint/backend/internal/database"
	"github.com/peakpoint/backend/internal/handlers"
	"github.com/peakpoint/backend/internal/middleware"
	"github.com/peakpoint/backend/internal/services"
	"github.com/peakpoint/backend/pkg/authtoken"
	"github.com/peakpoint/backend/pkg/logger"
	"github.com/peakpoint/backend/pkg/utils"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.LogLevel(cfg.Log.Level), cfg.Log.Environment)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if !cfg.Admin.Configured() {
		logger.Warn("admin_not_configured", map[string]interface{}{
			"hint": "set ADMIN_EMAIL and ADMIN_PASSWORD to enable the admin account",
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	codec, err := authtoken.NewCodec(authtoken.Options{
		Secret:       cfg.JWT.Secret,
		SessionTTL:   cfg.JWT.SessionTTL,
		ChallengeTTL: cfg.JWT.ChallengeTTL,
	})
	if err != nil {
		log.Fatalf("token codec initialization failed: %v", err)
	}

	cipher, err := utils.NewSecretCipher(cfg.MFA.EncryptionSecret)
	if err != nil {
		log.Fatalf("secret cipher initialization failed: %v", err)
	}

	var ledger services.ChallengeLedger
	if cfg.Redis.Enabled() {
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer client.Close()
		ledger = cache.NewRedisChallengeLedger(client)
		logger.Info("challenge_ledger_selected", map[string]interface{}{"backend": "redis", "addr": cfg.Redis.Addr})
	} else {
		memory := services.NewMemoryChallengeLedger()
		memory.StartCleanup(ctx, time.Minute)
		ledger = memory
		logger.Info("challenge_ledger_selected", map[string]interface{}{"backend": "memory"})
	}

	store := database.NewUserRepository(db)
	admin := services.NewAdminPolicy(cfg.Admin)
	verifier := services.NewCredentialVerifier(store, admin)
	authenticator := services.NewAuthenticator(verifier, codec, store, admin)
	twoFactor := services.NewTwoFactorService(store, codec, ledger, cipher, cfg.MFA.Issuer, cfg.MFA.RecoveryCodeCount)
	linker := services.NewIdentityLinker(store, codec, admin)
	oauthProviders := services.NewOAuthProviderService(cfg)

	app := handlers.NewApp(cfg.Server.FrontendURL)
	handlers.RegisterRoutes(app, handlers.Routes{
		Auth:           handlers.NewAuthHandler(authenticator),
		Users:          handlers.NewUsersHandler(services.NewUserService(store, admin)),
		TwoFactor:      handlers.NewTwoFactorHandler(twoFactor),
		OAuth:          handlers.NewOAuthHandler(cfg, oauthProviders, linker),
		Guard:          middleware.NewAuthMiddleware(authenticator),
		LoginRateLimit: cfg.Server.LoginRateLimit,
	})

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":         cfg.Server.Port,
		"address":      listenAddr,
		"admin_policy": cfg.Admin.Policy,
		"github":       cfg.SSO.GitHub.Enabled,
		"google":       cfg.SSO.Google.Enabled,
		"oidc":         cfg.SSO.OIDC.Enabled,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("server_shutting_down", map[string]interface{}{"signal": sig.String()})
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("server_shutdown_failed", err, nil)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("server_error", err, nil)
			logger.Sync()
			os.Exit(1)
		}
	}
}
