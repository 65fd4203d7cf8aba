package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string
	BcryptCost  int

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// JWT Token Secrets
	AccessSecret  string
	RefreshSecret string

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Publish queue
	PublishQueue      string
	WorkerConcurrency int
	PublishMaxRetry   int
	PublishTimeout    time.Duration
	PublishRetention  time.Duration

	// Reconciliation sweeper
	SweepInterval        time.Duration
	StalePublishingAfter time.Duration

	// Token refresh scheduler
	TokenRefreshInterval   time.Duration
	TokenLookahead         time.Duration
	TokenHardFailAfter     time.Duration
	TokenFailureAlertRatio float64

	// OAuth connect flow
	OAuthStateTTL time.Duration
	OAuth         map[string]OAuthClient

	// Optional caption assistant
	GeminiAPIKey string

	// Telemetry
	OTLPEndpoint string
}

// OAuthClient holds one platform's app credentials for the connect flow
// and token refresh.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/social_publisher"),
		DBName:      getEnv("DB_NAME", "social_publisher"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		BcryptCost:  getEnvInt("BCRYPT_COST", 12),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// JWT Token Secrets
		AccessSecret:  getEnv("ACCESS_SECRET", ""),
		RefreshSecret: getEnv("REFRESH_SECRET", ""),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		// Publish queue
		PublishQueue:      getEnv("PUBLISH_QUEUE", "posts"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
		PublishMaxRetry:   getEnvInt("PUBLISH_MAX_RETRY", 5),
		PublishTimeout:    getEnvDuration("PUBLISH_TIMEOUT", 2*time.Minute),
		PublishRetention:  getEnvDuration("PUBLISH_RETENTION", 24*time.Hour),

		// Reconciliation sweeper
		SweepInterval:        getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		StalePublishingAfter: getEnvDuration("STALE_PUBLISHING_AFTER", 10*time.Minute),

		// Token refresh scheduler
		TokenRefreshInterval:   getEnvDuration("TOKEN_REFRESH_INTERVAL", 12*time.Hour),
		TokenLookahead:         getEnvDuration("TOKEN_LOOKAHEAD", 5*24*time.Hour),
		TokenHardFailAfter:     getEnvDuration("TOKEN_HARD_FAIL_AFTER", 24*time.Hour),
		TokenFailureAlertRatio: getEnvFloat64("TOKEN_FAILURE_ALERT_RATIO", 0.5),

		// OAuth connect flow
		OAuthStateTTL: getEnvDuration("OAUTH_STATE_TTL", 10*time.Minute),
		OAuth: map[string]OAuthClient{
			"facebook":  loadOAuthClient("FACEBOOK"),
			"instagram": loadOAuthClient("INSTAGRAM"),
			"tiktok":    loadOAuthClient("TIKTOK"),
			"twitter":   loadOAuthClient("TWITTER"),
			"youtube":   loadOAuthClient("YOUTUBE"),
		},

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET is required - set it in .env file")
	}

	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("REFRESH_SECRET is required - set it in .env file")
	}

	if cfg.StalePublishingAfter < cfg.PublishTimeout {
		return nil, fmt.Errorf("STALE_PUBLISHING_AFTER must not be shorter than PUBLISH_TIMEOUT")
	}

	return cfg, nil
}

func loadOAuthClient(prefix string) OAuthClient {
	return OAuthClient{
		ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
		ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
		RedirectURL:  getEnv(prefix+"_REDIRECT_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
