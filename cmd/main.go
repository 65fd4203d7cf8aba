package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/internal/logger"
	"social-publisher-platform/internal/platform"
	"social-publisher-platform/internal/queue"
	"social-publisher-platform/internal/store/mongostore"
	"social-publisher-platform/internal/telemetry"
	"social-publisher-platform/middleware"
	"social-publisher-platform/routes"
	"social-publisher-platform/services"
	"social-publisher-platform/utils"

	"github.com/gin-gonic/gin"
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

	// Connect to Redis (auth revocation, rate limiting)
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Tracing and metrics
	shutdownTracer, err := telemetry.InitTracer("social-publisher-api", cfg.OTLPEndpoint)
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

	// Publish queue client
	asynqOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to build queue connection:", err)
	}
	publishQueue := queue.NewPublishQueue(asynqOpt, queue.Options{
		Queue:     cfg.PublishQueue,
		MaxRetry:  cfg.PublishMaxRetry,
		Timeout:   cfg.PublishTimeout,
		Retention: cfg.PublishRetention,
	})
	defer publishQueue.Close()

	// Stores and services
	posts := mongostore.NewPostStore(db)
	profiles := mongostore.NewProfileStore(db)
	states := mongostore.NewOAuthStateStore(db)
	users := mongostore.NewUserStore(db)

	registry := platform.NewRegistry(cfg)
	sweeper := services.NewSweeper(posts, publishQueue, cfg.StalePublishingAfter).WithMetrics(metrics)
	refresher := services.NewTokenRefresher(profiles, registry, cfg.TokenLookahead, cfg.TokenFailureAlertRatio).WithMetrics(metrics)
	exporter := services.NewExportService(db.Collection("posts"))

	captions, err := services.NewCaptionService(context.Background(), cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal("Failed to init caption service:", err)
	}
	defer captions.Close()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.CORSMiddlewareWithOrigins(cfg.CORSOrigins))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg, rdb)
	roleMiddleware := middleware.NewRoleMiddleware()

	// Setup routes
	routes.SetupAuthRoutes(router, cfg, users, rdb)
	routes.SetupPostRoutes(router, cfg, authMiddleware, routes.PostRoutesDeps{
		Posts:    posts,
		Profiles: profiles,
		Queue:    publishQueue,
		Captions: captions,
	})
	routes.SetupOAuthRoutes(router, cfg, authMiddleware, routes.OAuthRoutesDeps{
		Profiles: profiles,
		States:   states,
		Registry: registry,
	})
	routes.SetupAdminRoutes(router, cfg, authMiddleware, roleMiddleware, routes.AdminRoutesDeps{
		Queue:     publishQueue,
		Sweeper:   sweeper,
		Refresher: refresher,
		Export:    exporter,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := utils.WithLongTimeout(context.Background())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
