package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/mementolink/mementolink-backend/internal/http/handlers"
	httpMW "github.com/mementolink/mementolink-backend/internal/http/middleware"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthHandler    *httpH.AuthHandler
	AuthMiddleware *httpMW.AuthMiddleware
	ClaimHandler   *httpH.ClaimHandler
	WebhookHandler *httpH.WebhookHandler
	MemoryHandler  *httpH.MemoryHandler
	StaffHandler   *httpH.StaffHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("mementolink-backend"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	// Webhooks (provider-signed, outside /api)
	if cfg.WebhookHandler != nil {
		r.POST("/webhooks/payment", cfg.WebhookHandler.PaymentEvent)
	}

	api := r.Group("/api")
	{
		// Claim intake and verification (public)
		if cfg.ClaimHandler != nil {
			api.POST("/claims", cfg.ClaimHandler.Submit)
			api.GET("/claims/verify", cfg.ClaimHandler.Verify)
			api.POST("/claims/password", cfg.ClaimHandler.SetPassword)
		}
		if cfg.AuthHandler != nil {
			api.POST("/auth/login", cfg.AuthHandler.Login)
		}
	}

	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.ClaimHandler != nil {
			protected.POST("/claims/:id/provision", cfg.ClaimHandler.Provision)
			protected.POST("/claims/:id/urls", cfg.ClaimHandler.WriteBackURLs)
			protected.POST("/claims/:id/notify", cfg.ClaimHandler.Notify)
		}

		if cfg.MemoryHandler != nil {
			protected.POST("/memories/:id/media", cfg.MemoryHandler.UploadMedia)
		}
	}

	staff := api.Group("/staff")
	{
		if cfg.AuthMiddleware != nil {
			staff.Use(cfg.AuthMiddleware.RequireStaff())
		}
		if cfg.StaffHandler != nil {
			staff.GET("/claims", cfg.StaffHandler.ListClaims)
		}
	}

	return r
}
