package handler

import (
	"shop-ingest/internal/adapter/http/middleware"
	redisStore "shop-ingest/internal/adapter/storage/redis"
	"shop-ingest/internal/core/ports"
	"shop-ingest/internal/observability/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	BackfillSvc     ports.BackfillService
	WebhookIngestor ports.WebhookIngestor
	TenantSvc       ports.TenantService        // nil = tenant routes disabled
	TokenSvc        ports.TokenService         // nil = operator auth disabled
	RateLimitStore  *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimitRules  map[string]middleware.RateLimitRule
	HealthCheckers  []ports.HealthChecker
	Metrics         *metrics.Metrics // nil = no /metrics route
	MetricsPath     string
	PublicURL       string
	MaxBodyBytes    int64
	Mode            string
	Logger          zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(middleware.MaxBodySize(maxBody))

	// Health check (deep: PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.Metrics.Handler()))
	}

	// Return rate limiter middleware if store and rule are available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := deps.RateLimitRules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// --- Webhooks (signature verified by the ingestor) ---
	webhookHandler := NewWebhookHandler(deps.WebhookIngestor)
	r.POST("/webhooks/:resource", rl("webhooks"), webhookHandler.Receive)

	// --- Operator API ---
	operatorAuth := middleware.OperatorAuth(deps.TokenSvc, deps.Logger)
	ingest := r.Group("/ingest", operatorAuth, rl("backfill"))

	backfillHandler := NewBackfillHandler(deps.BackfillSvc)
	backfill := ingest.Group("/backfill")
	{
		backfill.POST("", backfillHandler.Enqueue)
		backfill.GET("/job/:id", backfillHandler.GetJob)
		backfill.GET("/state", backfillHandler.ListStates)
		backfill.POST("/state/reset", backfillHandler.ResetState)
	}

	if deps.TenantSvc != nil {
		tenantHandler := NewTenantHandler(deps.TenantSvc, deps.PublicURL)
		ingest.POST("/tenants/:id/webhooks", tenantHandler.RegisterWebhooks)
	}

	return r
}
