package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Client settings.
	APIBaseURL  string
	HTTPTimeout time.Duration
	LogLevel    string
	LogFormat   string

	// Local state persistence. Backend is one of "sqlite", "redis", "memory".
	StoreBackend string
	StatePath    string
	RedisURL     string

	// Stub server settings.
	StubPort   string
	GinMode    string
	JWTSecret  string
	JWTExpiry  time.Duration
	BcryptCost int
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		APIBaseURL:   getEnv("API_BASE_URL", "http://localhost:8000"),
		HTTPTimeout:  time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "pretty"),
		StoreBackend: getEnv("STORE_BACKEND", "sqlite"),
		StatePath:    getEnv("STATE_PATH", "./autonex-state.db"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		StubPort:     getEnv("STUB_PORT", "8000"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		JWTSecret:    getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		JWTExpiry:    time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		BcryptCost:   getEnvInt("BCRYPT_COST", 6),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
