package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/factory_os/internal/app/auth"
	"github.com/R3E-Network/factory_os/internal/app/services/devices"
	"github.com/R3E-Network/factory_os/internal/app/services/genai"
	"github.com/R3E-Network/factory_os/internal/app/services/housekeeping"
	"github.com/R3E-Network/factory_os/internal/app/storage"
	"github.com/R3E-Network/factory_os/internal/app/storage/rediscache"
	"github.com/R3E-Network/factory_os/internal/app/storage/sqlstore"
	"github.com/R3E-Network/factory_os/internal/app/system"
	"github.com/R3E-Network/factory_os/internal/config"
	"github.com/R3E-Network/factory_os/internal/logging"
	"github.com/R3E-Network/factory_os/internal/metrics"
	"github.com/R3E-Network/factory_os/internal/middleware"
	"github.com/R3E-Network/factory_os/internal/platform/database"
	"github.com/R3E-Network/factory_os/internal/platform/migrations"
)

// Version is stamped at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

// ServiceName identifies the service in logs, metrics and health output.
const ServiceName = "factory_os"

// Housekeeping job names.
const (
	JobTokenUsageReport   = "ai_token_usage"
	JobRateLimiterCleanup = "rate_limiter_cleanup"

	rateLimiterCleanupSchedule = "@every 5m"
)

// Option overrides a dependency the application would otherwise build
// from configuration.
type Option func(*options)

type options struct {
	store   storage.DeviceStore
	cache   storage.DeviceCache
	genai   genai.Service
	metrics *metrics.Metrics
}

// WithDeviceStore uses store instead of opening DATABASE_URL.
func WithDeviceStore(store storage.DeviceStore) Option {
	return func(o *options) { o.store = store }
}

// WithDeviceCache uses cache instead of connecting to REDIS_URL.
func WithDeviceCache(cache storage.DeviceCache) Option {
	return func(o *options) { o.cache = cache }
}

// WithGenAI fixes the AI provider instead of choosing one from the API key.
func WithGenAI(svc genai.Service) Option {
	return func(o *options) { o.genai = svc }
}

// WithMetrics shares an existing collector set.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Application ties services together and manages their lifecycle.
type Application struct {
	cfg       *config.Config
	log       *logging.Logger
	manager   *system.Manager
	scheduler *housekeeping.Scheduler

	db    *sqlx.DB
	redis *rediscache.Cache

	genaiOnce sync.Once
	genai     genai.Service

	Metrics   *metrics.Metrics
	Auth      *auth.Manager
	Devices   *devices.Service
	AILimiter *middleware.RateLimiter
}

// New builds the application from cfg.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logging.NewDefault("app")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &Application{
		cfg:     cfg,
		log:     log,
		manager: system.NewManager(),
		genai:   o.genai,
		Metrics: o.metrics,
	}
	if a.Metrics == nil {
		a.Metrics = metrics.New(ServiceName)
	}

	store := o.store
	if store == nil {
		db, err := database.Open(ctx, database.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		a.db = db
		store = sqlstore.New(db)
		log.WithField("driver", db.DriverName()).Info("database connected")
	}

	cache := o.cache
	if cache == nil && cfg.Cache.RedisURL != "" {
		rc, err := rediscache.NewFromURL(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			// the cache is optional; lookups fall through to the store
			log.WithError(err).Warn("redis unavailable; device cache disabled")
		} else {
			a.redis = rc
			cache = rc
		}
	}

	deviceOpts := []devices.Option{devices.WithMetrics(a.Metrics)}
	if cache != nil {
		deviceOpts = append(deviceOpts, devices.WithCache(cache))
	}
	a.Devices = devices.New(store, log, deviceOpts...)

	a.Auth = auth.NewManager(auth.Config{
		AdminUsername:     cfg.Auth.AdminUsername,
		AdminPasswordHash: cfg.Auth.AdminPasswordHash,
		JWTSecret:         cfg.Auth.JWTSecret,
		TokenTTL:          cfg.Auth.TokenTTL,
	})
	if a.Auth.MockMode() {
		log.Warn("JWT_SECRET not set; login issues the static mock token")
	}

	a.AILimiter = middleware.NewRateLimiter(cfg.RateLimit.AIRequestsPerSecond, cfg.RateLimit.AIBurst, log)

	a.scheduler = housekeeping.NewScheduler(log)
	if err := a.scheduler.Add(JobTokenUsageReport, cfg.UsageReportSchedule, a.reportTokenUsage); err != nil {
		a.closeResources()
		return nil, err
	}
	if err := a.scheduler.Add(JobRateLimiterCleanup, rateLimiterCleanupSchedule, a.cleanupLimiters); err != nil {
		a.closeResources()
		return nil, err
	}
	if err := a.manager.Register(a.scheduler); err != nil {
		a.closeResources()
		return nil, fmt.Errorf("register %s: %w", a.scheduler.Name(), err)
	}

	return a, nil
}

// Config returns the configuration the application was built from.
func (a *Application) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *Application) Logger() *logging.Logger { return a.log }

// GenAI returns the AI provider. It is created on first use and shared by
// every caller afterwards.
func (a *Application) GenAI() genai.Service {
	a.genaiOnce.Do(func() {
		if a.genai == nil {
			if a.cfg.AIEnabled() {
				a.genai = genai.NewOpenAI(genai.OpenAIConfig{
					APIKey:      a.cfg.OpenAI.APIKey,
					Model:       a.cfg.OpenAI.Model,
					BaseURL:     a.cfg.OpenAI.BaseURL,
					Temperature: float32(a.cfg.OpenAI.Temperature),
				}, a.log, a.Metrics)
			} else {
				a.log.Warn("OPENAI_API_KEY not set; using mock AI provider")
				a.genai = genai.NewMock()
			}
		}
		a.log.WithField("provider", a.genai.Provider()).Info("ai provider ready")
	})
	return a.genai
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start migrates the schema when configured and starts background services.
func (a *Application) Start(ctx context.Context) error {
	if a.db != nil && a.cfg.Database.AutoMigrate {
		if err := migrations.Apply(ctx, a.db.DB); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		a.log.Info("database schema up to date")
	}
	return a.manager.Start(ctx)
}

// Stop stops background services and closes connections.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	return errors.Join(err, a.closeResources())
}

// Ready reports whether the device store is reachable.
func (a *Application) Ready(ctx context.Context) error {
	return a.Devices.Ping(ctx)
}

// RunJob executes a housekeeping job immediately.
func (a *Application) RunJob(name string) error {
	return a.scheduler.RunNow(name)
}

func (a *Application) closeResources() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	return errors.Join(errs...)
}

func (a *Application) reportTokenUsage(ctx context.Context) {
	svc := a.GenAI()
	a.log.WithContext(ctx).WithFields(logrus.Fields{
		"provider":     svc.Provider(),
		"total_tokens": svc.TokenUsage(),
		"location":     a.cfg.FactoryLocation,
	}).Info("ai_token_usage")
}

func (a *Application) cleanupLimiters(ctx context.Context) {
	if removed := a.AILimiter.Cleanup(); removed > 0 {
		a.log.WithContext(ctx).WithField("removed", removed).Debug("rate limiter cleanup")
	}
}
