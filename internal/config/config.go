// Package config centralizes the environment-derived settings the
// teacher's cmd/api/main.go and server.go read ad hoc via os.Getenv
// scattered across routes.go's getAllowedOrigin and server.go's port
// literal. One struct, loaded once at startup.
package config

import (
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
)

// Config is every environment-derived setting the server needs.
type Config struct {
	Port        int
	Environment string // "production" or "development", same values as the teacher's ENVIRONMENT
	DatabaseURL string
	LogLevel    string
}

// Load reads Config from the process environment (.env is pulled in by
// godotenv/autoload, the same import the teacher's cmd/api/main.go used).
func Load() Config {
	return Config{
		Port:        envInt("PORT", 8080),
		Environment: envString("ENVIRONMENT", "development"),
		DatabaseURL: envString("DATABASE_URL", ""),
		LogLevel:    envString("LOG_LEVEL", "info"),
	}
}

// Production mirrors routes.go's corsMiddleware/websocketHandler check.
func (c Config) Production() bool { return c.Environment == "production" }

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
