package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mementolink/mementolink-backend/internal/clients/gcp"
	redisclient "github.com/mementolink/mementolink-backend/internal/clients/redis"
	"github.com/mementolink/mementolink-backend/internal/db"
	httpRouter "github.com/mementolink/mementolink-backend/internal/http"
	httpH "github.com/mementolink/mementolink-backend/internal/http/handlers"
	httpMW "github.com/mementolink/mementolink-backend/internal/http/middleware"
	"github.com/mementolink/mementolink-backend/internal/observability"
	"github.com/mementolink/mementolink-backend/internal/platform/envutil"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/platform/sendgrid"
	"github.com/mementolink/mementolink-backend/internal/repos"
	"github.com/mementolink/mementolink-backend/internal/services"
)

func main() {
	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "mementolink-backend",
		Environment: envutil.Str("APP_ENV", "development"),
		Version:     envutil.Str("APP_VERSION", "dev"),
	})

	jwtSecretKey := envutil.Str("JWT_SECRET_KEY", "")
	if jwtSecretKey == "" {
		log.Error("JWT_SECRET_KEY is required")
		os.Exit(1)
	}
	webhookSecret := envutil.Str("PAYMENT_WEBHOOK_SECRET", "")
	if webhookSecret == "" {
		log.Error("PAYMENT_WEBHOOK_SECRET is required")
		os.Exit(1)
	}
	publicBaseURL := envutil.Str("PUBLIC_BASE_URL", "https://pages.mementolink.app")
	claimBaseURL := envutil.Str("CLAIM_BASE_URL", "https://claim.mementolink.app")
	loginBaseURL := envutil.Str("LOGIN_BASE_URL", "https://app.mementolink.app")
	staffAPIKey := envutil.Str("STAFF_API_KEY", "")

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	pg := postgresService.DB()

	// Repos
	tenantRepo := repos.NewTenantRepo(pg, log)
	claimRequestRepo := repos.NewClaimRequestRepo(pg, log)
	orderRepo := repos.NewOrderRepo(pg, log)
	memoryRepo := repos.NewMemoryRepo(pg, log)
	publicPageRepo := repos.NewPublicPageRepo(pg, log)
	webhookEventRepo := repos.NewWebhookEventRepo(pg, log)
	userRepo := repos.NewUserRepo(pg, log)

	// Clients
	mailClient, err := sendgrid.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init SendGrid client", "error", err)
		os.Exit(1)
	}
	sessionStore, err := redisclient.NewSessionStore(log)
	if err != nil {
		log.Warn("Could not init session store (continuing without sessions)", "error", err)
		sessionStore = nil
	}
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Warn("Could not init media bucket (continuing without uploads)", "error", err)
		bucketService = nil
	}

	// Services
	branding, err := services.LoadBrandingCatalog(log, envutil.Str("BRANDING_CONFIG_PATH", ""))
	if err != nil {
		log.Error("Could not load branding config", "error", err)
		os.Exit(1)
	}
	identity := services.NewIdentityResolver(pg, log, tenantRepo)
	credentials, err := services.NewCredentialIssuer(log, jwtSecretKey)
	if err != nil {
		log.Error("Could not init credential issuer", "error", err)
		os.Exit(1)
	}
	notifier := services.NewNotificationDispatcher(log, mailClient, branding)
	verifier := services.NewClaimVerifier(pg, log, credentials, claimRequestRepo, identity)
	provisioner := services.NewProvisioningEngine(pg, log, memoryRepo, publicPageRepo, publicBaseURL)
	reconciler := services.NewClaimReconciler(pg, log, claimRequestRepo, identity)
	intake := services.NewClaimIntakeService(pg, log, claimRequestRepo, identity, credentials, notifier, claimBaseURL)
	authService, err := services.NewAuthService(pg, log, userRepo, identity, jwtSecretKey)
	if err != nil {
		log.Error("Could not init auth service", "error", err)
		os.Exit(1)
	}
	payment, err := services.NewPaymentEventHandler(pg, log, webhookSecret, webhookEventRepo, orderRepo, claimRequestRepo, identity, credentials, notifier)
	if err != nil {
		log.Error("Could not init payment event handler", "error", err)
		os.Exit(1)
	}

	// Handlers
	authMiddleware := httpMW.NewAuthMiddleware(log, authService, staffAPIKey)
	router := httpRouter.NewRouter(httpRouter.RouterConfig{
		Log:            log,
		AuthHandler:    httpH.NewAuthHandler(authService),
		AuthMiddleware: authMiddleware,
		ClaimHandler:   httpH.NewClaimHandler(log, intake, verifier, authService, provisioner, reconciler, notifier, claimRequestRepo, sessionStore, loginBaseURL),
		WebhookHandler: httpH.NewWebhookHandler(log, payment),
		MemoryHandler:  httpH.NewMemoryHandler(log, memoryRepo, bucketService),
		StaffHandler:   httpH.NewStaffHandler(intake),
		HealthHandler:  httpH.NewHealthHandler(),
	})

	addr := ":" + envutil.Str("PORT", "8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown failed", "error", err)
	}
	if sessionStore != nil {
		_ = sessionStore.Close()
	}
	if bucketService != nil {
		_ = bucketService.Close()
	}
	if shutdownOTel != nil {
		_ = shutdownOTel(shutdownCtx)
	}
}
