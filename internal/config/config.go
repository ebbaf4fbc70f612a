package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment-sourced settings for the gateway.
type Config struct {
	// ListenAddr is the address the gateway HTTP server binds to.
	ListenAddr string

	// Roboflow local inference server settings.
	RoboflowURL    string
	RoboflowAPIKey string
	Workspace      string
	WorkflowID     string
	ClientTimeout  time.Duration

	// DatabaseDSN enables the analysis audit log when non-empty.
	DatabaseDSN string

	// RedisAddr enables the gateway-side result cache when non-empty.
	RedisAddr string

	// JWTSecret enables bearer auth on the reporting endpoints when non-empty.
	JWTSecret   string
	JWTAudience string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	// Missing .env is fine; explicit env vars always win.
	_ = godotenv.Load()

	return Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":5000"),
		RoboflowURL:    getEnv("ROBOFLOW_API_URL", "http://localhost:9001"),
		RoboflowAPIKey: os.Getenv("ROBOFLOW_API_KEY"),
		Workspace:      getEnv("ROBOFLOW_WORKSPACE", "civicrezo"),
		WorkflowID:     getEnv("ROBOFLOW_WORKFLOW_ID", "custom-workflow-6"),
		ClientTimeout:  getDurationEnv("ROBOFLOW_TIMEOUT", 30*time.Second),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTAudience:    os.Getenv("JWT_AUDIENCE"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
