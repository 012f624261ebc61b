package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/applyflow/applyflow-be/internal/ai"
	"github.com/applyflow/applyflow-be/internal/apply"
	"github.com/applyflow/applyflow-be/internal/config"
	"github.com/applyflow/applyflow-be/internal/domain"
	"github.com/applyflow/applyflow-be/internal/notify"
	"github.com/applyflow/applyflow-be/internal/provider"
	"github.com/applyflow/applyflow-be/internal/queue"
	"github.com/applyflow/applyflow-be/internal/scheduler"
	"github.com/applyflow/applyflow-be/internal/scorer"
	"github.com/applyflow/applyflow-be/internal/search"
	"github.com/applyflow/applyflow-be/internal/storage"
	"github.com/applyflow/applyflow-be/internal/worker"
	"github.com/applyflow/applyflow-be/shared/logger"
	"github.com/applyflow/applyflow-be/shared/postgresql"
	"github.com/applyflow/applyflow-be/shared/rabbitmq"
	"github.com/applyflow/applyflow-be/shared/redisclient"
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

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize the queue service
	var redisClient *redis.Client
	var queues queue.Service
	switch cfg.Queue.Backend {
	case "memory":
		queues = queue.NewMemoryService(cfg.Queue.MaxAttempts)
	default:
		redisClient, err = redisclient.New(context.Background(), cfg.Redis.URL, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		queues = queue.NewRedisService(redisClient, cfg.Queue.MaxAttempts, appLogger.Logger)
	}

	appLogger.Info("Queue service ready", slog.String("backend", cfg.Queue.Backend))

	// Initialize RabbitMQ client for the notification event bus
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	store := storage.New(dbClient, appLogger.Logger)
	notifier := notify.NewAMQPNotifier(rabbitClient, appLogger.Logger)
	auditor := notify.NewAuditor(queues, appLogger.Logger)

	// Text generation is optional: without it the scorer falls back to
	// skill overlap and application materials come from templates.
	var gen ai.TextGenerator
	if cfg.AI.Enabled {
		client, err := initGemini(context.Background(), &cfg.AI, appLogger.Logger)
		if err != nil {
			appLogger.Warn("Text generation unavailable, using deterministic fallbacks",
				slog.Any("error", err),
			)
		} else {
			gen = client
		}
	}

	relevancyScorer := scorer.New(gen, appLogger.Logger)

	sources := make([]provider.Source, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sources = append(sources, provider.NewHTTPSource(provider.HTTPSourceConfig{
			Name:     src.Name,
			BaseURL:  src.BaseURL,
			AppID:    src.AppID,
			AppKey:   src.AppKey,
			Country:  src.Country,
			PageSize: src.PageSize,
			Timeout:  src.Timeout,
		}, appLogger.Logger))
	}
	fallbackSource := provider.NewStaticSource(nil)

	var submitter provider.Submitter
	switch cfg.Submission.Mode {
	case config.SubmissionModeHTTP:
		submitter = provider.NewHTTPSubmitter(provider.HTTPSubmitterConfig{
			Endpoint: cfg.Submission.Endpoint,
			APIKey:   cfg.Submission.APIKey,
			Timeout:  cfg.Submission.Timeout,
		}, appLogger.Logger)
	default:
		submitter = provider.SimulatedSubmitter{}
	}

	searchHandler := search.NewHandler(
		sources, fallbackSource, relevancyScorer, store, queues, notifier, auditor, appLogger.Logger,
	)
	applyHandler := apply.NewHandler(
		store, relevancyScorer, gen, submitter, queues, notifier, auditor, appLogger.Logger,
	)

	searchRunner := worker.NewRunner(runnerConfig(domain.QueueSearchJobs, cfg.SearchWorker), queues, searchHandler, appLogger.Logger)
	applyRunner := worker.NewRunner(runnerConfig(domain.QueueProcessApplications, cfg.ApplyWorker), queues, applyHandler, appLogger.Logger)

	sched := scheduler.New(scheduler.Config{
		TickInterval:          cfg.Scheduler.TickInterval,
		Cadence:               cfg.Scheduler.Cadence,
		BackpressureThreshold: cfg.Scheduler.BackpressureThreshold,
		JitterMax:             cfg.Scheduler.JitterMax,
	}, store, queues, appLogger.Logger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	var wg sync.WaitGroup
	for _, runner := range []*worker.Runner{searchRunner, applyRunner} {
		wg.Add(1)
		go func(r *worker.Runner) {
			defer wg.Done()
			r.Start(ctx)
		}(runner)
	}

	// Expose worker metrics and liveness; the pipeline counters live in
	// this process, not the API's.
	metricsSrv := startMetricsServer(cfg.Server.Port, appLogger.Logger)

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	sched.Stop()
	searchRunner.Stop()
	applyRunner.Stop()

	// Give workers time to finish in-flight messages
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Workers stopped gracefully")
	case <-time.After(30 * time.Second):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Metrics server shutdown failed", slog.Any("error", err))
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if redisClient != nil {
			redisClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// startMetricsServer serves /metrics and /health for the worker process.
func startMetricsServer(port int, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"applyflow-worker"}`))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	logger.Info("Metrics server listening", slog.String("address", srv.Addr))
	return srv
}

func runnerConfig(queueName string, cfg config.WorkerConfig) worker.Config {
	return worker.Config{
		Queue:             queueName,
		Concurrency:       cfg.Concurrency,
		BatchSize:         cfg.BatchSize,
		PollInterval:      cfg.PollInterval,
		VisibilityTimeout: cfg.VisibilityTimeout,
		JobTimeout:        cfg.JobTimeout,
		MaxRetries:        cfg.MaxRetries,
		RetryBaseDelay:    cfg.RetryBaseDelay,
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
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initGemini initializes the Gemini text-generation client. The API key is
// taken from the environment when not set in the config file.
func initGemini(ctx context.Context, cfg *config.AIConfig, logger *slog.Logger) (*ai.GeminiClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}

	return ai.NewGeminiClient(ctx, &ai.Config{
		APIKey:         apiKey,
		Model:          cfg.Model,
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      cfg.BaseDelay,
		MaxDelay:       cfg.MaxDelay,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)
}
