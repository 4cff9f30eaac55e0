package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/internal/storage/migrations"
	"github.com/utafrali/storefront/internal/storage/postgres"
	"github.com/utafrali/storefront/internal/storage/redis"
	"github.com/utafrali/storefront/internal/store"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

const serviceName = "storefront"

// backend is an opened durable store plus whatever must be closed with it.
type backend struct {
	kv    storage.KV
	pool  *pgxpool.Pool
	redis *goredis.Client
}

func (b *backend) close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		return b.redis.Close()
	}
	return nil
}

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	backend        *backend
	persister      *storage.Persister
	producer       *pkgkafka.Producer
	sessions       *session.Manager
	scheduler      *cron.Cron
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	persister := storage.NewPersister(be.kv, logger)

	// Remote catalog services share one resilient client.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.HTTPClientTimeout
	catalog := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("catalog"),
		logger,
	)
	wishlists := client.NewWishlistClient(catalog, cfg.CatalogBaseURL)
	branches := client.NewBranchClient(catalog, cfg.CatalogBaseURL)

	// Kafka is optional; without brokers events are dropped silently.
	var (
		producer  *pkgkafka.Producer
		publisher event.Publisher
	)
	if cfg.EventsEnabled() {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		publisher = producer
	} else {
		logger.Info("no kafka brokers configured, storefront events disabled")
	}
	events := event.NewProducer(publisher, logger)

	branchCfg := store.DefaultBranchConfig()
	branchCfg.PermissionTimeout = cfg.GPSPermissionTimeout
	branchCfg.FixTimeout = cfg.GPSFixTimeout

	sessions := session.NewManager(session.Config{
		IdleTTL:     cfg.SessionIdleTTL(),
		MaxSessions: cfg.SessionMax,
		Branch:      branchCfg,
	}, session.Dependencies{
		KV:        be.kv,
		Persister: persister,
		Wishlist: func(deviceID string) store.WishlistRemote {
			return wishlists.ForUser(deviceID)
		},
		Branches: branches,
		Events:   events,
		Logger:   logger,
	})

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("storage", be.kv.Ping)
	if producer != nil {
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
	}

	scheduler, err := newScheduler(cfg, sessions, be, logger)
	if err != nil {
		_ = persister.Close(ctx)
		_ = be.close()
		return nil, err
	}

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment
	router := handler.NewRouter(sessions, healthHandler, logger, handler.RouterConfig{
		CORS:           corsCfg,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		IPLimitRPS:     cfg.IPRateLimitRPS,
		IPLimitBurst:   cfg.IPRateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		backend:        be,
		persister:      persister,
		producer:       producer,
		sessions:       sessions,
		scheduler:      scheduler,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Migrate applies the postgres schema and exits. Other backends need no
// migration.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.StorageBackend != config.BackendPostgres {
		logger.Info("storage backend needs no migrations", slog.String("backend", cfg.StorageBackend))
		return nil
	}
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return be.close()
}

// openBackend connects the configured durable store. The postgres schema is
// migrated on every open.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Host = cfg.RedisHost
		redisCfg.Port = cfg.RedisPort
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB

		rdb, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", redisCfg.Addr()))
		return &backend{kv: redis.New(rdb, cfg.StorageTTL()), redis: rdb}, nil

	case config.BackendPostgres:
		pgCfg := database.PostgresConfig{
			Host:            cfg.PostgresHost,
			Port:            cfg.PostgresPort,
			User:            cfg.PostgresUser,
			Password:        cfg.PostgresPass,
			DBName:          cfg.PostgresDB,
			SSLMode:         cfg.PostgresSSL,
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
			MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
		}
		pool, err := database.NewPostgresPool(ctx, &pgCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool); err != nil {
			pool.Close()
			return nil, err
		}

		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
		}
		return &backend{kv: postgres.New(pool), pool: pool}, nil

	default:
		logger.Warn("using in-memory storage, device state is lost on restart")
		return &backend{kv: memory.New()}, nil
	}
}

// newScheduler registers the background jobs: idle session eviction always,
// stale row purging for postgres.
func newScheduler(cfg *config.Config, sessions *session.Manager, be *backend, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc(cfg.SessionSweepSchedule, func() {
		sessions.EvictIdle(time.Now())
	}); err != nil {
		return nil, fmt.Errorf("register session sweep job: %w", err)
	}

	if pg, ok := be.kv.(*postgres.Store); ok && cfg.StorageTTLHours > 0 {
		if _, err := c.AddFunc(cfg.StoragePurgeSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			n, err := pg.PurgeStale(ctx, time.Now().Add(-cfg.StorageTTL()))
			if err != nil {
				logger.Error("stale storage purge error", slog.String("error", err.Error()))
				return
			}
			if n > 0 {
				logger.Info("purged stale storage rows", slog.Int64("rows", n))
			}
		}); err != nil {
			return nil, fmt.Errorf("register storage purge job: %w", err)
		}
	}
	return c, nil
}

// Run starts the HTTP server and background jobs, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	a.scheduler.Start()
	a.logger.Info("background jobs started", slog.Int("jobs", len(a.scheduler.Entries())))

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Cron jobs (wait for running jobs)
// 3. Persister (flush queued writes)
// 4. Tracer
// 5. Kafka producer
// 6. Storage backend
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	select {
	case <-a.scheduler.Stop().Done():
	case <-time.After(5 * time.Second):
		a.logger.Warn("background jobs still running at shutdown")
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := a.persister.Close(flushCtx); err != nil {
		a.logger.Error("persister flush error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.backend.close(); err != nil {
		a.logger.Error("storage close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete", slog.Int("sessions", a.sessions.Len()))
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := producer.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
