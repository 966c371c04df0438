// Package app assembles the ingestion components from configuration.
// The api, worker and ingestctl binaries share this wiring.
package app

import (
	"context"
	"fmt"

	"shop-ingest/config"
	"shop-ingest/internal/adapter/http/handler"
	"shop-ingest/internal/adapter/http/middleware"
	"shop-ingest/internal/adapter/remote/shopify"
	pgStorage "shop-ingest/internal/adapter/storage/postgres"
	redisStorage "shop-ingest/internal/adapter/storage/redis"
	"shop-ingest/internal/core/ports"
	"shop-ingest/internal/observability/metrics"
	"shop-ingest/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Notification modes for backfill.notify.
const (
	NotifyNone   = "none"
	NotifyMemory = "memory"
	NotifyRedis  = "redis"
)

// App holds the connected infrastructure and the services built on it.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *goredis.Client
	Metrics *metrics.Metrics

	Tenants     *pgStorage.TenantRepo
	Jobs        *pgStorage.JobRepo
	States      *pgStorage.BackfillStateRepo
	WebhookLogs *pgStorage.WebhookLogRepo

	Codec        ports.CredentialCodec
	Signer       *service.HMACWebhookSigner
	Tokens       ports.TokenService // nil when auth.jwt_secret is empty
	Notifier     ports.JobNotifier  // nil when backfill.notify is none
	Remote       *shopify.Client
	Writer       *service.RecordWriterImpl
	Orchestrator *service.BackfillOrchestrator
	Backfill     ports.BackfillService
	TenantSvc    ports.TenantService
	Ingestor     ports.WebhookIngestor
}

// New connects to PostgreSQL and Redis and builds every service.
// The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	a, err := build(cfg, log, pool, rdb)
	if err != nil {
		_ = rdb.Close()
		pool.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, log zerolog.Logger, pool *pgxpool.Pool, rdb *goredis.Client) (*App, error) {
	codec, err := NewCredentialCodec(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	a := &App{
		Config:      cfg,
		Log:         log,
		Pool:        pool,
		Redis:       rdb,
		Metrics:     m,
		Tenants:     pgStorage.NewTenantRepo(pool),
		Jobs:        pgStorage.NewJobRepo(pool),
		States:      pgStorage.NewBackfillStateRepo(pool),
		WebhookLogs: pgStorage.NewWebhookLogRepo(pool),
		Codec:       codec,
		Signer:      service.NewHMACWebhookSigner(),
		Tokens:      NewTokenService(cfg.Auth),
		Notifier:    NewNotifier(cfg.Backfill, rdb),
		Remote:      shopify.NewClient(cfg.Shopify, m, log),
	}

	a.Writer = service.NewRecordWriter(pgStorage.NewRecordRepo(pool))
	a.Orchestrator = service.NewBackfillOrchestrator(a.Jobs, a.Tenants, a.States, a.Remote, a.Codec, a.Writer, m, log)
	a.Backfill = service.NewBackfillService(a.Jobs, a.Tenants, a.States, a.Notifier, log)
	a.TenantSvc = service.NewTenantService(a.Tenants, a.Codec, a.Remote, log)
	a.Ingestor = service.NewWebhookIngestor(
		a.Tenants,
		a.WebhookLogs,
		redisStorage.NewDeliveryCache(rdb),
		a.Signer,
		a.Writer,
		service.WebhookOptions{
			GlobalSecret:       cfg.Webhook.Secret,
			BypassSignature:    cfg.Webhook.BypassSignature,
			DedupByPayloadHash: cfg.Webhook.DedupByPayloadHash,
			DedupTTL:           cfg.Webhook.DedupTTL,
		},
		m,
		log,
	)

	if cfg.Webhook.BypassSignature {
		log.Warn().Msg("Webhook signature verification is DISABLED (webhook.bypass_signature)")
	}
	if a.Tokens == nil {
		log.Warn().Msg("Operator auth disabled: auth.jwt_secret is empty")
	}

	return a, nil
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		a.Log.Warn().Err(err).Msg("Closing Redis client")
	}
	a.Pool.Close()
}

// NewPoller builds the backfill job poller around the orchestrator.
func (a *App) NewPoller() *service.Poller {
	return service.NewPoller(
		a.Jobs,
		a.Orchestrator,
		a.Notifier,
		a.Config.Backfill.PollInterval,
		a.Config.Backfill.BatchSize,
		a.Log,
	)
}

// Router builds the HTTP engine for the API binary.
func (a *App) Router() *gin.Engine {
	return handler.SetupRouter(handler.RouterDeps{
		BackfillSvc:     a.Backfill,
		WebhookIngestor: a.Ingestor,
		TenantSvc:       a.TenantSvc,
		TokenSvc:        a.Tokens,
		RateLimitStore:  redisStorage.NewRateLimitStore(a.Redis),
		RateLimitRules:  middleware.DefaultRateLimitRules(a.Config.Webhook.RateLimit, a.Config.Webhook.RateWindow),
		HealthCheckers: []ports.HealthChecker{
			pgStorage.NewHealthCheck(a.Pool),
			redisStorage.NewHealthCheck(a.Redis),
		},
		Metrics:      a.Metrics,
		MetricsPath:  a.Config.Metrics.Path,
		PublicURL:    a.Config.Server.PublicURL,
		MaxBodyBytes: a.Config.Server.MaxBodyBytes,
		Mode:         a.Config.Server.Mode,
		Logger:       a.Log,
	})
}

// NewCredentialCodec returns the AES-GCM codec when encryption is enabled and
// the plaintext codec otherwise.
func NewCredentialCodec(cfg config.CredentialsConfig) (ports.CredentialCodec, error) {
	if !cfg.EncryptionEnabled {
		return service.PlaintextCredentialCodec{}, nil
	}
	codec, err := service.NewAESCredentialCodec(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("initializing credential codec: %w", err)
	}
	return codec, nil
}

// NewTokenService returns nil when no JWT secret is configured.
func NewTokenService(cfg config.AuthConfig) ports.TokenService {
	if cfg.JWTSecret == "" {
		return nil
	}
	return service.NewJWTTokenService(cfg.JWTSecret, cfg.Expiry, cfg.Issuer)
}

// NewNotifier returns the job notifier for backfill.notify, or nil for none.
func NewNotifier(cfg config.BackfillConfig, rdb goredis.Cmdable) ports.JobNotifier {
	switch cfg.Notify {
	case NotifyMemory:
		return service.NewChannelNotifier(cfg.BatchSize)
	case NotifyRedis:
		return redisStorage.NewJobNotifier(rdb, cfg.QueueKey)
	default:
		return nil
	}
}
