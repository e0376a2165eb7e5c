// Package config loads the coordinator's environment-driven configuration,
// following the same getEnv-with-default convention used across this
// codebase's other services.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the coordinator's full runtime configuration.
type Config struct {
	AppID          string // DAPR_APP_ID
	PubsubName     string // DAPR_PUBSUB_NAME
	ListenAddress  string // LISTEN_ADDRESS, dapr app-callback server (the health surface uses HEALTH_ADDRESS)
	Environment    string // ENVIRONMENT

	DatabaseURL string // DATABASE_URL, Postgres DSN for the saga log
	UseMemoryStore bool // STORE_BACKEND=memory, for local/dev runs without Postgres

	MaxAttempts       int           // SAGA_MAX_ATTEMPTS
	ReprocessInterval time.Duration // SAGA_REPROCESS_INTERVAL
	ReprocessRate     float64       // SAGA_REPROCESS_RATE, entries/sec

	CircuitBreakerFailureThreshold float64       // BUS_CB_FAILURE_THRESHOLD, fraction of requests (0-1)
	CircuitBreakerMinRequests      int           // BUS_CB_MIN_REQUESTS
	CircuitBreakerResetTimeout     time.Duration // BUS_CB_RESET_TIMEOUT
}

// Load reads Config from the environment, applying the same defaults this
// repository uses elsewhere for local development.
func Load() Config {
	return Config{
		AppID:         getEnv("DAPR_APP_ID", "saga-coordinator"),
		PubsubName:    getEnv("DAPR_PUBSUB_NAME", "saga-pubsub"),
		ListenAddress: getEnv("LISTEN_ADDRESS", ":8085"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/saga_choreography?sslmode=disable"),
		UseMemoryStore: getEnv("STORE_BACKEND", "postgres") == "memory",

		MaxAttempts:       getEnvInt("SAGA_MAX_ATTEMPTS", 3),
		ReprocessInterval: getEnvDuration("SAGA_REPROCESS_INTERVAL", 30*time.Second),
		ReprocessRate:     getEnvFloat("SAGA_REPROCESS_RATE", 10),

		CircuitBreakerFailureThreshold: getEnvFloat("BUS_CB_FAILURE_THRESHOLD", 0.5),
		CircuitBreakerMinRequests:      getEnvInt("BUS_CB_MIN_REQUESTS", 5),
		CircuitBreakerResetTimeout:     getEnvDuration("BUS_CB_RESET_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return v
}
