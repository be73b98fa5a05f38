package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	minPollTimeoutSeconds = 60
	maxPollTimeoutSeconds = 1200
)

type Config struct {
	// Server
	Port        string
	Env         string
	LogLevel    string
	FrontendURL string

	// Job store: Postgres when DatabaseURL is set, SQLite otherwise
	DatabaseURL    string
	SQLitePath     string
	MigrationsPath string

	// Redis (optional; in-process queue when empty)
	RedisURL    string
	WorkerCount int

	// TwelveLabs
	TwelveLabsAPIKey           string
	TwelveLabsIndexID          string
	TwelveLabsBaseURL          string
	TwelveLabsMock             bool
	PollTimeout                time.Duration
	PollBaseInterval           time.Duration
	PollMaxInterval            time.Duration
	PollMultiplier             float64
	TwelveLabsHTTPTimeout      time.Duration
	TwelveLabsSummarizeTimeout time.Duration

	// Evidence storage
	StorageType string // "s3" | "local"
	StoragePath string

	// AWS
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3Bucket           string
	S3Endpoint         string
	DynamoDBTable      string
	DynamoDBEndpoint   string

	// Identity
	CognitoRegion     string
	CognitoUserPoolID string
	CognitoClientID   string
	JWTSecret         string

	// Gemini
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	apiKey := getEnvOrDefault("TWELVELABS_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnvOrDefault("TWELVE_LABS_API_KEY", "")
	}

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8000"),
		Env:         getEnvOrDefault("ENVIRONMENT", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),

		DatabaseURL:    getEnvOrDefault("DATABASE_URL", ""),
		SQLitePath:     getEnvOrDefault("SQLITE_PATH", "./noirvision_jobs.db"),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "migrations"),

		RedisURL:    getEnvOrDefault("REDIS_URL", ""),
		WorkerCount: getEnvAsIntOrDefault("WORKER_COUNT", 4),

		TwelveLabsAPIKey:           apiKey,
		TwelveLabsIndexID:          getEnvOrDefault("TWELVELABS_INDEX_ID", ""),
		TwelveLabsBaseURL:          strings.TrimRight(getEnvOrDefault("TWELVELABS_BASE_URL", "https://api.twelvelabs.io/v1.3"), "/"),
		TwelveLabsMock:             getEnvAsBoolOrDefault("TWELVELABS_MOCK", false),
		PollTimeout:                time.Duration(clampPollTimeout(getEnvAsIntOrDefault("TWELVELABS_POLL_TIMEOUT_SECONDS", 600))) * time.Second,
		PollBaseInterval:           time.Duration(getEnvAsFloatOrDefault("TWELVELABS_POLL_BASE_SECONDS", 5) * float64(time.Second)),
		PollMaxInterval:            time.Duration(getEnvAsFloatOrDefault("TWELVELABS_POLL_MAX_SECONDS", 60) * float64(time.Second)),
		PollMultiplier:             getEnvAsFloatOrDefault("TWELVELABS_POLL_MULTIPLIER", 1.5),
		TwelveLabsHTTPTimeout:      time.Duration(getEnvAsIntOrDefault("TWELVELABS_HTTP_TIMEOUT_SECONDS", 60)) * time.Second,
		TwelveLabsSummarizeTimeout: time.Duration(getEnvAsIntOrDefault("TWELVELABS_SUMMARIZE_TIMEOUT_SECONDS", 120)) * time.Second,

		StorageType: getEnvOrDefault("STORAGE_TYPE", "s3"),
		StoragePath: getEnvOrDefault("STORAGE_PATH", "./evidence"),

		AWSRegion:          getEnvOrDefault("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnvOrDefault("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnvOrDefault("AWS_SECRET_ACCESS_KEY", ""),
		S3Bucket:           getEnvOrDefault("S3_BUCKET", ""),
		S3Endpoint:         getEnvOrDefault("S3_ENDPOINT", ""),
		DynamoDBTable:      getEnvOrDefault("DYNAMODB_TABLE_NAME", "noirvision-users"),
		DynamoDBEndpoint:   getEnvOrDefault("DYNAMODB_ENDPOINT", ""),

		CognitoRegion:     getEnvOrDefault("COGNITO_REGION", getEnvOrDefault("AWS_REGION", "us-east-1")),
		CognitoUserPoolID: getEnvOrDefault("COGNITO_USER_POOL_ID", ""),
		CognitoClientID:   getEnvOrDefault("COGNITO_CLIENT_ID", ""),
		JWTSecret:         getEnvOrDefault("JWT_SECRET", ""),

		GeminiAPIKey:         getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
	}

	return cfg
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// TwelveLabsConfigured reports whether analysis can run at all.
func (c *Config) TwelveLabsConfigured() bool {
	return c.TwelveLabsMock || c.TwelveLabsAPIKey != ""
}

// RequireTwelveLabs validates provider settings when mock mode is off.
func (c *Config) RequireTwelveLabs() error {
	if c.TwelveLabsMock {
		return nil
	}
	if c.TwelveLabsAPIKey == "" {
		return fmt.Errorf("missing required env: TWELVELABS_API_KEY (or TWELVE_LABS_API_KEY); set TWELVELABS_MOCK=true for demo without API key")
	}
	if c.TwelveLabsIndexID == "" {
		return fmt.Errorf("missing required env: TWELVELABS_INDEX_ID; create an index in TwelveLabs or use TWELVELABS_MOCK=true")
	}
	return nil
}

// RequireS3 validates evidence storage settings for the S3 backend.
func (c *Config) RequireS3() error {
	if c.StorageType != "s3" {
		return nil
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("missing required env: S3_BUCKET")
	}
	return nil
}

func clampPollTimeout(seconds int) int {
	if seconds < minPollTimeoutSeconds {
		return minPollTimeoutSeconds
	}
	if seconds > maxPollTimeoutSeconds {
		return maxPollTimeoutSeconds
	}
	return seconds
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
