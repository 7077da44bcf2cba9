package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/osvaldoandrade/gaitkeepr/internal/metrics"
	"github.com/osvaldoandrade/gaitkeepr/internal/middleware"
	"github.com/osvaldoandrade/gaitkeepr/internal/providers"
	"github.com/osvaldoandrade/gaitkeepr/internal/ratelimit"
	"github.com/osvaldoandrade/gaitkeepr/internal/services"
	"github.com/osvaldoandrade/gaitkeepr/internal/tracing"
	"github.com/osvaldoandrade/gaitkeepr/pkg/auth"
	"github.com/osvaldoandrade/gaitkeepr/pkg/auth/hmac"
	"github.com/osvaldoandrade/gaitkeepr/pkg/auth/static"
	"github.com/osvaldoandrade/gaitkeepr/pkg/config"
	"github.com/osvaldoandrade/gaitkeepr/pkg/persistence"

	// storage plugins register themselves
	_ "github.com/osvaldoandrade/gaitkeepr/pkg/persistence/memory"
	redisstore "github.com/osvaldoandrade/gaitkeepr/pkg/persistence/redis"
	sqlitestore "github.com/osvaldoandrade/gaitkeepr/pkg/persistence/sqlite"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

type Application struct {
	Config      *config.Config
	Engine      *gin.Engine
	Jobs        services.JobsService
	Coach       services.CoachService
	Cleanup     services.CleanupService
	Persistence persistence.PluginPersistence
	Logger      *slog.Logger
	TZ          *time.Location
	Validator   auth.Validator
	RateLimiter ratelimit.Limiter

	TracingShutdown func(context.Context) error

	now         func() time.Time
	redisClient *redis.Client
	stop        context.CancelFunc
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithValidator sets a custom bearer token validator
func WithValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.Validator = validator
		return nil
	}
}

// WithPersistence replaces the configured storage plugin
func WithPersistence(p persistence.PluginPersistence) ApplicationOption {
	return func(app *Application) error {
		app.Persistence = p
		return nil
	}
}

// WithClock overrides time.Now for job progression
func WithClock(now func() time.Time) ApplicationOption {
	return func(app *Application) error {
		app.now = now
		return nil
	}
}

// WithLogger replaces the JSON/text logger built from config
func WithLogger(logger *slog.Logger) ApplicationOption {
	return func(app *Application) error {
		app.Logger = logger
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.FixedZone("UTC", 0)
	}

	app := &Application{
		Config: cfg,
		TZ:     loc,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.Logger == nil {
		app.Logger = newLogger(cfg)
	}
	logger := app.Logger
	slog.SetDefault(logger)

	shutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  "gaitkeepr-api",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		SampleRatio:  cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.TracingShutdown = shutdown

	if app.Persistence == nil {
		p, err := newPersistence(cfg, loc)
		if err != nil {
			return nil, err
		}
		app.Persistence = p
	}
	store := app.Persistence.JobStorage()
	metrics.RegisterJobsCollector(store, logger)

	app.RateLimiter = app.newLimiter()

	if app.Validator == nil && cfg.AuthProvider != "" {
		v, err := newValidator(cfg)
		if err != nil {
			return nil, err
		}
		app.Validator = v
	}

	uploader := providers.NewLocalUploader(cfg.ArtifactsDir, cfg.MaxUploadBytes)
	app.Jobs = services.NewJobsService(store, uploader, services.Progression{
		Queued:     time.Duration(cfg.QueuedSeconds) * time.Second,
		Processing: time.Duration(cfg.ProcessingSeconds) * time.Second,
		FailMarker: cfg.FailMarker,
	}, logger, app.now, loc)
	app.Coach = services.NewCoachService()

	if exp, ok := app.Persistence.(persistence.Expirer); ok {
		app.Cleanup = services.NewCleanupService(exp, logger, cfg.CleanupIntervalSeconds, app.now)
	}

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
		middleware.TracingMiddleware("gaitkeepr-api"),
		middleware.CORSMiddleware(cfg.CORSOrigins),
	)
	app.Engine = engine

	return app, nil
}

// Start launches background work (job cleanup) until Close is called.
func (a *Application) Start() {
	if a.Cleanup == nil || a.stop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stop = cancel
	go a.Cleanup.Start(ctx)
}

// Close stops background work, flushes traces and releases storage.
func (a *Application) Close(ctx context.Context) error {
	if a.stop != nil {
		a.stop()
	}
	var errs []error
	if a.TracingShutdown != nil {
		errs = append(errs, a.TracingShutdown(ctx))
	}
	if a.redisClient != nil {
		errs = append(errs, a.redisClient.Close())
	}
	if a.Persistence != nil {
		errs = append(errs, a.Persistence.Close())
	}
	return errors.Join(errs...)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "gaitkeepr-api", "env", cfg.Env)
}

func newPersistence(cfg *config.Config, loc *time.Location) (persistence.PluginPersistence, error) {
	var settings any = struct{}{}
	switch cfg.PersistenceProvider {
	case "redis":
		settings = redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, RetentionHours: cfg.JobRetentionHours}
	case "sqlite":
		settings = sqlitestore.Config{Path: cfg.SQLitePath, RetentionHours: cfg.JobRetentionHours}
	}
	return persistence.Open(cfg.PersistenceProvider, settings, loc)
}

// newLimiter shares the job store's Redis connection when there is one, opens
// its own when only redisAddr is configured, and otherwise limits in process.
func (a *Application) newLimiter() ratelimit.Limiter {
	if rp, ok := a.Persistence.(*redisstore.Plugin); ok {
		return ratelimit.NewTokenBucketLimiter(rp.Client())
	}
	if a.Config.RedisAddr != "" {
		a.redisClient = providers.NewRedisProvider(a.Config.RedisAddr, a.Config.RedisPassword)
		return ratelimit.NewTokenBucketLimiter(a.redisClient)
	}
	return ratelimit.NewMemoryLimiter()
}

func newValidator(cfg *config.Config) (auth.Validator, error) {
	switch cfg.AuthProvider {
	case "hmac":
		return auth.Build("hmac", hmac.Config{
			Secret:           cfg.AuthSecret,
			Issuer:           cfg.AuthIssuer,
			Audience:         cfg.AuthAudience,
			ClockSkewSeconds: 30,
		})
	default:
		return auth.Build(cfg.AuthProvider, static.Config{Token: cfg.AuthToken, Tokens: cfg.AuthTokens})
	}
}
