package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/config"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/event"
	handler "github.com/mmtuentertainment/wvwo-storefront-sub002/internal/handler/http"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/pricing"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/repository"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/repository/breaker"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/repository/memory"
	redisrepo "github.com/mmtuentertainment/wvwo-storefront-sub002/internal/repository/redis"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/internal/session"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/database"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/health"
	pkgkafka "github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/kafka"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/middleware"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/tracing"
)

// ServiceName identifies the service in logs, traces and metrics.
const ServiceName = "cart-engine"

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	registry       *session.Registry
	httpServer     *http.Server
	shutdownTracer func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracer = shutdownTracer

	healthHandler := health.NewHandler()
	healthHandler.SetTimeout(2 * time.Second)

	store, err := a.buildStore(ctx, healthHandler)
	if err != nil {
		a.closeClients()
		return nil, err
	}

	sink := a.buildSink(healthHandler)

	a.registry = session.NewRegistry(session.Config{
		KeyPrefix:   cfg.StorageKey,
		Expiry:      cfg.Expiry(),
		Debounce:    cfg.Debounce(),
		IdleTimeout: cfg.SessionIdle(),
	}, store, pricing.NewCalculator(), sink, logger)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.Environment = cfg.Environment

	router := handler.NewRouter(a.registry, healthHandler, logger, handler.RouterConfig{
		CORS:           cors,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// buildStore returns the snapshot store for the configured backend. Redis is
// wrapped in a circuit breaker so an outage degrades carts to session-only
// instead of stalling every write on network timeouts.
func (a *App) buildStore(ctx context.Context, hh *health.Handler) (repository.SnapshotStore, error) {
	if a.cfg.StorageBackend == config.StorageMemory {
		a.logger.Warn("using in-memory snapshot store, carts will not survive restarts")
		return memory.NewStore(), nil
	}

	redisCfg := database.DefaultRedisConfig()
	redisCfg.Addr = a.cfg.RedisAddr
	redisCfg.Password = a.cfg.RedisPass
	redisCfg.DB = a.cfg.RedisDB

	rdb, err := database.NewRedisClient(ctx, redisCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.rdb = rdb
	a.logger.Info("connected to Redis",
		slog.String("addr", a.cfg.RedisAddr),
		slog.Int("db", a.cfg.RedisDB),
	)

	database.SetSlowCommandLogging(a.cfg.RedisSlowThreshold(), a.logger)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, rdb, ServiceName); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register redis pool metrics: %w", err)
		}
	}

	bcfg := breaker.DefaultConfig("redis-snapshots")
	bcfg.Timeout = a.cfg.BreakerTimeout()
	bcfg.FailureRatio = a.cfg.BreakerFailureRatio
	bcfg.MinRequests = a.cfg.BreakerMinRequests
	redisStore := redisrepo.NewStore(rdb, a.cfg.Expiry())
	guarded := breaker.NewStore(redisStore, bcfg, a.logger)

	// Carts keep working in memory while Redis is down, so readiness stays up.
	hh.RegisterNonCritical("redis", redisStore.Ping)
	hh.RegisterNonCritical("snapshot_store", func(context.Context) error {
		if guarded.State() == gobreaker.StateOpen {
			return fmt.Errorf("circuit breaker open")
		}
		return nil
	})

	return guarded, nil
}

// buildSink returns the analytics sink. Without Kafka, events are logged.
func (a *App) buildSink(hh *health.Handler) event.Sink {
	if !a.cfg.AnalyticsEnabled {
		return event.NewLogSink(a.logger)
	}

	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(a.cfg.KafkaBrokers), a.logger)
	a.logger.Info("kafka producer initialized",
		slog.Any("brokers", a.cfg.KafkaBrokers),
		slog.String("topic", a.cfg.AnalyticsTopic),
	)
	hh.RegisterNonCritical("kafka", a.producer.Ping)

	return event.NewKafkaSink(a.producer, a.cfg.AnalyticsTopic, a.logger)
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
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

	evictCtx, stopEvict := context.WithCancel(ctx)
	defer stopEvict()
	go a.registry.Run(evictCtx, evictionInterval(a.cfg.SessionIdle()))

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components. Live carts are flushed to storage
// before the clients they write through are closed.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.registry.Close(shutdownCtx); err != nil {
		a.logger.Error("session flush error", slog.String("error", err.Error()))
	}

	a.closeClients()

	if err := a.shutdownTracer(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeClients() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
}

// evictionInterval sweeps a few times per idle window, at most once a minute.
func evictionInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
