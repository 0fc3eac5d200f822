package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the application configuration.
type Config struct {
	// Database connection string (DSN). PostgreSQL URLs and SQLite paths
	// are both accepted.
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Bcrypt work factor for password hashing
	BcryptCost int

	// Failed login attempts before an account locks
	LockoutThreshold int

	// How long a locked account stays locked
	LockoutDuration time.Duration

	// Lifetime of a normal session
	SessionTTL time.Duration

	// Lifetime of a remember-me session
	RememberSessionTTL time.Duration

	// How long resolved sessions may be served from the in-process cache
	SessionCacheTTL time.Duration

	// Secret for signing API access tokens. Required.
	JWTSecret string

	// Lifetime of issued API access tokens
	JWTTTL time.Duration

	// Mark session cookies Secure; enable when serving over TLS
	SecureCookies bool

	// Enable debug logging
	Debug bool
}

// Load reads configuration from environment variables with fallback
// defaults. JWT_SECRET has no default; the server refuses to start
// without one.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        getEnv("DATABASE_URL", "accountd.db"),
		ServerAddr:         getEnv("SERVER_ADDR", "localhost:8080"),
		BcryptCost:         getEnvInt("BCRYPT_COST", 11),
		LockoutThreshold:   getEnvInt("LOCKOUT_THRESHOLD", 5),
		LockoutDuration:    getEnvDuration("LOCKOUT_DURATION", 15*time.Minute),
		SessionTTL:         getEnvDuration("SESSION_TTL", time.Hour),
		RememberSessionTTL: getEnvDuration("REMEMBER_SESSION_TTL", 7*24*time.Hour),
		SessionCacheTTL:    getEnvDuration("SESSION_CACHE_TTL", 30*time.Second),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTTTL:             getEnvDuration("JWT_TTL", time.Hour),
		SecureCookies:      getEnvBool("SECURE_COOKIES", false),
		Debug:              getEnvBool("DEBUG", false),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.LockoutThreshold < 1 {
		return nil, fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1")
	}
	if cfg.SessionTTL <= 0 || cfg.RememberSessionTTL <= 0 {
		return nil, fmt.Errorf("session TTLs must be positive")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "15m") or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
