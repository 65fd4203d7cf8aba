package main

import (
	"context"
	"log"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/internal/logger"
	"social-publisher-platform/internal/platform"
	"social-publisher-platform/internal/queue"
	"social-publisher-platform/internal/scheduler"
	"social-publisher-platform/internal/store/mongostore"
	"social-publisher-platform/internal/telemetry"
	"social-publisher-platform/services"
	"social-publisher-platform/utils"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := utils.WithTimeout(context.Background())
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Tracing and metrics
	shutdownTracer, err := telemetry.InitTracer("social-publisher-worker", cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}
	platform.UseMetrics(metrics)

	// Redis options for Asynq
	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to build queue connection:", err)
	}

	// Stores and services
	posts := mongostore.NewPostStore(db)
	profiles := mongostore.NewProfileStore(db)
	registry := platform.NewRegistry(cfg)

	publisher := services.NewPublisher(posts, profiles, registry, cfg.PublishTimeout, cfg.TokenHardFailAfter).
		WithMetrics(metrics)

	publishQueue := queue.NewPublishQueue(redisOpt, queue.Options{
		Queue:     cfg.PublishQueue,
		MaxRetry:  cfg.PublishMaxRetry,
		Timeout:   cfg.PublishTimeout,
		Retention: cfg.PublishRetention,
	})
	defer publishQueue.Close()

	sweeper := services.NewSweeper(posts, publishQueue, cfg.StalePublishingAfter).WithMetrics(metrics)
	refresher := services.NewTokenRefresher(profiles, registry, cfg.TokenLookahead, cfg.TokenFailureAlertRatio).
		WithMetrics(metrics)

	// Periodic jobs: reconciliation sweep and token refresh
	jobs := scheduler.NewScheduler()
	if err := jobs.ScheduleInterval("sweep", cfg.SweepInterval, sweeper.Run); err != nil {
		log.Fatal("Failed to schedule sweep job:", err)
	}
	if err := jobs.ScheduleInterval("token-refresh", cfg.TokenRefreshInterval, refresher.Run); err != nil {
		log.Fatal("Failed to schedule token refresh job:", err)
	}
	jobs.Start()
	defer jobs.Stop()

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				cfg.PublishQueue: 1,
			},
			RetryDelayFunc: queue.RetryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskPublishPost, publisher.HandlePublishTask)

	log.Println("🚀 Starting publish worker...")
	log.Printf("   Concurrency: %d", cfg.WorkerConcurrency)
	log.Printf("   Queue: %s", cfg.PublishQueue)
	log.Printf("   Sweep every %s, token refresh every %s", cfg.SweepInterval, cfg.TokenRefreshInterval)

	// Run blocks until SIGINT/SIGTERM; deferred jobs.Stop then cancels the
	// periodic jobs.
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}

	log.Println("Worker exited")
}
