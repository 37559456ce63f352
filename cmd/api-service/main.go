package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/api/handler"
	"github.com/cuongbtq/tracker-enrich/internal/api/router"
	"github.com/cuongbtq/tracker-enrich/internal/config"
	"github.com/cuongbtq/tracker-enrich/internal/dispatch"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/geocode"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/location"
	"github.com/cuongbtq/tracker-enrich/internal/enrich/pipeline"
	"github.com/cuongbtq/tracker-enrich/internal/storage"
	"github.com/cuongbtq/tracker-enrich/internal/worker"
	"github.com/cuongbtq/tracker-enrich/migrations"
	"github.com/cuongbtq/tracker-enrich/shared/logger"
	"github.com/cuongbtq/tracker-enrich/shared/postgresql"
	"github.com/cuongbtq/tracker-enrich/shared/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("background", cfg.Enrich.Background),
	)

	// Background runs and the cache autosave live until shutdown
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	cache, err := location.OpenCache(cfg.Enrich.CachePath, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to open location cache: %w", err)
	}
	autosaveDone := cache.StartAutoSave(baseCtx, cfg.Enrich.AutosaveInterval)

	appLogger.Info("Location cache loaded",
		slog.String("path", cfg.Enrich.CachePath),
		slog.Int("entries", cache.Len()),
	)

	resolver := initResolver(&cfg.Enrich, cache, appLogger.Logger)

	var (
		dbClient     *postgresql.Client
		rabbitClient *rabbitmq.Client
		localRuns    *dispatch.Local
		runs         interface {
			pipeline.RunStore
			handler.RunReader
		}
		dispatcher pipeline.Dispatcher
	)
	checks := map[string]handler.HealthChecker{}

	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	switch cfg.Enrich.Background {
	case config.BackgroundQueue:
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		appLogger.Info("Database connection established")

		if err := dbClient.Migrate(baseCtx, migrations.FS); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		appLogger.Info("RabbitMQ connection established")

		runs = storage.NewPostgresStore(dbClient.GetDB(), appLogger.Logger)
		dispatcher = dispatch.NewQueue(rabbitClient, appLogger.Logger)
		checks["postgresql"] = dbClient
		checks["rabbitmq"] = rabbitClient

	default:
		memory := storage.NewMemoryStore()

		// The processor gets its own pipeline so it does not depend on the
		// dispatcher it is wired into
		processor := worker.NewProcessor(&worker.ProcessorConfig{
			Logger: appLogger.Logger,
			Store:  memory,
			Runner: pipeline.New(&pipeline.Config{
				Logger:   appLogger.Logger,
				Resolver: resolver,
			}),
			WorkerID:   fmt.Sprintf("api-%s", uuid.New().String()),
			RunTimeout: cfg.Enrich.RunTimeout,
		})
		localRuns = dispatch.NewLocal(baseCtx, processor, appLogger.Logger)

		runs = memory
		dispatcher = localRuns
	}

	enricher := pipeline.New(&pipeline.Config{
		Logger:     appLogger.Logger,
		Resolver:   resolver,
		Runs:       runs,
		Dispatcher: dispatcher,
		MaxRetries: cfg.Enrich.MaxRetries,
	})

	// Initialize router
	r := initRouter(cfg.App.Environment, &handler.Dependencies{
		Logger:   appLogger.Logger,
		Pipeline: enricher,
		Runs:     runs,
		DataDir:  cfg.Enrich.DataDir,
		Checks:   checks,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Shutting down server...", slog.String("signal", sig.String()))
	case err := <-serverErr:
		appLogger.Error("Server failed to start", slog.Any("error", err))
		return err
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(ctx)
	if shutdownErr != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", shutdownErr),
		)
	}

	// Stop background runs, then flush the cache once they have returned
	cancelBase()
	if localRuns != nil {
		waitWithTimeout(ctx, localRuns.Wait, appLogger.Logger)
	}
	<-autosaveDone
	if err := cache.Save(); err != nil {
		appLogger.Error("Failed to save location cache", slog.Any("error", err))
	}

	if shutdownErr != nil {
		return shutdownErr
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// waitWithTimeout runs wait and gives up when ctx expires
func waitWithTimeout(ctx context.Context, wait func(), logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Background runs stopped")
	case <-ctx.Done():
		logger.Warn("Background runs did not stop before the shutdown timeout")
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initResolver builds the geocoder-backed location resolver
func initResolver(cfg *config.EnrichConfig, cache *location.Cache, logger *slog.Logger) *location.Resolver {
	geocoder := geocode.NewNominatim(
		geocode.WithBaseURL(cfg.Geocoder.BaseURL),
		geocode.WithUserAgent(cfg.Geocoder.UserAgent),
		geocode.WithRateLimit(cfg.Geocoder.RateLimitRPS),
	)

	return location.NewResolver(geocoder, cache, location.Options{
		Logger:        logger,
		CourtesyDelay: cfg.CourtesyDelay,
		LookupTimeout: cfg.GeocodeTimeout,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		DeadLetterExchange: cfg.Queue.DeadLetterExchange,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(environment string, deps *handler.Dependencies) *gin.Engine {
	// Set Gin mode based on environment
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
