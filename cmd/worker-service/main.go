package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := fmt.Sprintf("worker-%s", uuid.New().String())

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	if err := dbClient.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	// The cache file is shared with the API service; Reload before each
	// resolve pass picks up entries it wrote
	cache, err := location.OpenCache(cfg.Enrich.CachePath, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to open location cache: %w", err)
	}
	autosaveDone := cache.StartAutoSave(ctx, cfg.Enrich.AutosaveInterval)

	geocoder := geocode.NewNominatim(
		geocode.WithBaseURL(cfg.Enrich.Geocoder.BaseURL),
		geocode.WithUserAgent(cfg.Enrich.Geocoder.UserAgent),
		geocode.WithRateLimit(cfg.Enrich.Geocoder.RateLimitRPS),
	)
	resolver := location.NewResolver(geocoder, cache, location.Options{
		Logger:        appLogger.Logger,
		CourtesyDelay: cfg.Enrich.CourtesyDelay,
		LookupTimeout: cfg.Enrich.GeocodeTimeout,
	})

	runStore := storage.NewPostgresStore(dbClient.GetDB(), appLogger.Logger)

	processor := worker.NewProcessor(&worker.ProcessorConfig{
		Logger: appLogger.Logger,
		Store:  runStore,
		Runner: pipeline.New(&pipeline.Config{
			Logger:   appLogger.Logger,
			Resolver: resolver,
		}),
		WorkerID:          workerID,
		RunTimeout:        cfg.Enrich.RunTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:      appLogger.Logger,
		Broker:      rabbitClient,
		Processor:   processor,
		WorkerID:    workerID,
		Concurrency: cfg.Worker.Concurrency,
		QueueName:   cfg.RabbitMQ.Queue.Name,
	})

	// Runs left RUNNING by a crashed worker go back through the queue
	reaper := worker.NewReaper(&worker.ReaperConfig{
		Logger:     appLogger.Logger,
		Store:      runStore,
		Dispatcher: dispatch.NewQueue(rabbitClient, appLogger.Logger),
		Interval:   cfg.Worker.HeartbeatInterval,
		StaleAfter: cfg.Worker.StaleAfter,
	})
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		reaper.Run(ctx)
	}()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", runErr),
		)
	case <-rabbitClient.Closed():
		runErr = errors.New("rabbitmq channel closed")
		appLogger.Error("Worker lost its RabbitMQ channel")
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	<-reaperDone
	<-autosaveDone
	if err := cache.Save(); err != nil {
		appLogger.Error("Failed to save location cache", slog.Any("error", err))
	}

	if runErr != nil {
		return runErr
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
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
		PrefetchCount:      cfg.Consumer.PrefetchCount,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
