package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"roomsync/internal/config"
	"roomsync/internal/handler"
	"roomsync/internal/middleware"
	"roomsync/internal/realtime"
	"roomsync/internal/repository"
	"roomsync/internal/service"
	"roomsync/pkg/logger"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)
	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = uuid.NewString()
	}
	appLogger = appLogger.With("instance", cfg.Server.InstanceID)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := initTracing(ctx, cfg.Tracing)
	if err != nil {
		appLogger.Fatal("Failed to init tracing", "error", err)
	}

	// PostgreSQL (опционально)
	var dbPool *pgxpool.Pool
	if cfg.Database.DSN != "" {
		dbPool, err = connectPostgres(ctx, cfg.Database)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", "error", err)
		}
		defer dbPool.Close()
		appLogger.Info("Database connection established")

		if cfg.Database.AutoMigrate {
			if err := repository.Migrate(ctx, dbPool, appLogger); err != nil {
				appLogger.Fatal("Failed to migrate database", "error", err)
			}
		}
	}

	// Redis (опционально)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", "error", err)
		}
		appLogger.Info("Redis connection established")
	}

	repos := repository.NewRepositories(dbPool, rdb, cfg, appLogger)

	// Транспорты синхронизации
	hub := realtime.NewHub(appLogger)
	poll := realtime.NewPollTransport(repos.EventLog)
	fanout := realtime.NewFanout(appLogger)
	fanout.Register("push", hub)
	fanout.Register("poll", poll)

	var relay *realtime.RedisRelay
	if rdb != nil {
		relay = realtime.NewRedisRelay(rdb, cfg.Redis.RelayChannel, cfg.Server.InstanceID, hub, appLogger)
		fanout.Register("relay", relay)
	}

	var notifier *realtime.KafkaNotifier
	if len(cfg.Kafka.Brokers) > 0 {
		notifier = realtime.NewKafkaNotifier(realtime.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), appLogger)
		fanout.Register("kafka", notifier)
		appLogger.Info("Kafka notifier enabled", "topic", cfg.Kafka.Topic)
	}

	services := service.NewServices(repos, fanout, service.NewProfanityFilter(), cfg, appLogger)

	if err := handler.RegisterValidators(); err != nil {
		appLogger.Fatal("Failed to register validators", "error", err)
	}
	handlers := handler.NewHandlers(services, repos, hub, poll, cfg, appLogger)
	identity := middleware.NewIdentityMiddleware(cfg.Auth.JWTSecret, cfg.Auth.Required, appLogger)
	rateLimit := middleware.NewRateLimitMiddleware(services.RateLimit, cfg.RateLimit.Limit, cfg.RateLimit.Window, appLogger)

	router := setupRouter(handlers, identity, rateLimit, cfg, appLogger)

	var wg sync.WaitGroup
	if relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx, nil); err != nil {
				appLogger.Error("Redis relay stopped", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSweeper(ctx, services, cfg.Chat.SweepInterval, appLogger)
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(router, cfg.Tracing.ServiceName),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr, "mode", cfg.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	stop()
	wg.Wait()
	hub.Close()

	if notifier != nil {
		if err := notifier.Close(); err != nil {
			appLogger.Warn("Failed to close kafka writer", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Warn("Failed to shutdown tracer provider", "error", err)
	}

	appLogger.Info("Server exited")
}

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// initTracing включает экспорт трейсов по OTLP/HTTP, если задан endpoint
func initTracing(ctx context.Context, cfg config.TracingConfig) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// runSweeper периодически удаляет истекшие записи присутствия и рассылает userLeft
func runSweeper(ctx context.Context, services *service.Services, interval time.Duration, log logger.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := services.Presence.Sweep(ctx)
			if err != nil {
				log.Error("Presence sweep failed", "error", err)
			}
			if len(events) == 0 {
				continue
			}
			if err := services.Dispatcher.Dispatch(ctx, events); err != nil {
				log.Warn("Failed to dispatch sweep events", "error", err)
			}
		}
	}
}

func setupRouter(
	handlers *handler.Handlers,
	identity *middleware.IdentityMiddleware,
	rateLimit *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket - push-транспорт; таймаут запроса к нему не применяется
	router.GET("/ws", identity.Identify(), handlers.WebSocket.ServeWS)

	api := router.Group("/api")
	api.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	api.Use(identity.Identify())
	handlers.RegisterRoutes(api, rateLimit.Limit())

	return router
}
