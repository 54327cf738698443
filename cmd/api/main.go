package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/ledger"
	"github.com/Ramsey-B/clover/pkg/lifecycle"
	"github.com/Ramsey-B/clover/pkg/logistics"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/notify"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

// version is set at build time via ldflags
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		log.Fatalf("failed to bind config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		fatal(logger, err, "failed to set up tracing")
	}
	defer shutdownTracing()

	db, err := connectDatabase(cfg)
	if err != nil {
		fatal(logger, err, "failed to connect to database")
	}
	defer db.Close()

	if err := runMigrations(cfg, logger, db); err != nil {
		fatal(logger, err, "failed to run migrations")
	}

	dbInstance := database.NewDatabaseInstance(db, logger)

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		fatal(logger, err, "failed to connect to redis")
	}
	defer redisClient.Close()

	producer := kafka.NewProducer(kafka.Config{
		Brokers:           cfg.KafkaBrokers,
		NotificationTopic: cfg.KafkaNotificationTopic,
		ErrorTopic:        cfg.KafkaErrorTopic,
	}, logger)
	defer producer.Close()

	// Repositories
	actorRepo := repositories.NewActorRepository(dbInstance, logger)
	requestRepo := repositories.NewRequestRepository(dbInstance, logger)
	contributionRepo := repositories.NewContributionRepository(dbInstance, logger)
	routeRepo := repositories.NewRouteRepository(dbInstance, logger)
	logisticRepo := repositories.NewLogisticRepository(dbInstance, logger)
	notificationRepo := repositories.NewNotificationRepository(dbInstance, logger)

	// Services
	contributionLedger := ledger.NewLedger(dbInstance, requestRepo, contributionRepo, logger)
	bridge := logistics.NewBridge(logisticRepo, logger)
	fanout := notify.NewFanout(actorRepo, notificationRepo, producer, logger)
	lifecycleService := lifecycle.NewService(requestRepo, fanout, logger)

	locker := redis.NewLocker(redisClient, "clover:")
	scheduler := lifecycle.NewScheduler(lifecycleService, locker, lifecycle.SchedulerConfig{
		FlagInterval:  cfg.SLAFlagInterval,
		CloseInterval: cfg.SLACloseInterval,
		LockTTL:       cfg.SLALockTTL,
		SLAWindowDays: cfg.SLAWindowDays,
	}, logger)

	orchestrator := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	if cfg.SLASchedulerEnabled {
		orchestrator.AddDependency(&schedulerDependency{scheduler: scheduler})
	}
	if err := orchestrator.Start(ctx); err != nil {
		fatal(logger, err, "failed to start dependencies")
	}

	checker := health.NewChecker(dbInstance, redisClient, version)

	e := buildServer(cfg, logger)
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	handlers.NewRequestHandler(requestRepo, logger).RegisterRoutes(api)
	handlers.NewContributionHandler(contributionLedger, contributionRepo, requestRepo, fanout, logger).RegisterRoutes(api)
	handlers.NewRouteHandler(dbInstance, routeRepo, bridge, logger).RegisterRoutes(api)
	handlers.NewLogisticHandler(logisticRepo, routeRepo, logger).RegisterRoutes(api)
	handlers.NewNotificationHandler(notificationRepo, logger).RegisterRoutes(api)
	handlers.NewJobsHandler(lifecycleService, logger).RegisterRoutes(api)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:    time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		checker.SetReady(true)
		logger.WithField("port", cfg.Port).Infof("%s listening on port %d", cfg.AppName, cfg.Port)
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			fatal(logger, err, "server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	checker.SetReady(false)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("failed to shut down server cleanly")
	}
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("failed to stop dependencies cleanly")
	}
}

func fatal(logger ectologger.Logger, err error, message string) {
	logger.WithError(err).Error(message)
	os.Exit(1)
}

func newLogger(cfg *config.Config) (ectologger.Logger, error) {
	if cfg.PrettyLogs {
		zapLogger, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
	}

	zapCfg := zap.NewProductionConfig()
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func setupTracing(ctx context.Context, cfg *config.Config) (func(), error) {
	if !cfg.TracingEnabled {
		return func() {}, nil
	}

	// "console" keeps spans flowing through the SDK without a collector,
	// for local runs.
	var exporter sdktrace.SpanExporter = &exporters.ConsoleExporter{}
	if cfg.TracingOTLPProtocol != "console" {
		var err error
		exporter, err = exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.TracingOTLPEndpoint,
			Protocol: cfg.TracingOTLPProtocol,
			Insecure: true,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.AppName),
		semconv.ServiceVersion(version),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}, nil
}

func connectDatabase(cfg *config.Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost,
		cfg.DatabasePort,
		cfg.DatabaseUserName,
		cfg.DatabasePassword,
		cfg.DatabaseName,
		cfg.DatabaseSSLMode,
	)

	db, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	return db, nil
}

func runMigrations(cfg *config.Config, logger ectologger.Logger, db *sqlx.DB) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrationService := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})

	return migrationService.Migrate(cfg.DatabaseName, driver)
}

func buildServer(cfg *config.Config, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	if cfg.AuthEnabled {
		e.Use(middleware.Authentication(logger, cfg.AuthIssuerURL, cfg.AuthClientID))
	}

	return e
}

// schedulerDependency adapts the lifecycle scheduler to the startup
// orchestrator's dependency interface.
type schedulerDependency struct {
	scheduler *lifecycle.Scheduler
}

func (d *schedulerDependency) GetName() string {
	return "sla-scheduler"
}

func (d *schedulerDependency) DependsOn() []string {
	return nil
}

func (d *schedulerDependency) Start(ctx context.Context) error {
	return d.scheduler.Start(ctx)
}

func (d *schedulerDependency) Stop(ctx context.Context) error {
	return d.scheduler.Stop(ctx)
}
