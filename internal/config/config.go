// Package config loads application configuration from environment
// variables.  Values may be seeded from a .env file by the commands
// before Load is called.
package config

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.
type Config struct {
	Env          string // APP_ENV (dev, test, prod)
	Port         string // APP_PORT
	DBUser       string // DB_USER
	DBPass       string // DB_PASS (optional)
	DBHost       string // DB_HOST
	DBPort       string // DB_PORT
	DBName       string // DB_NAME
	JWTSecret    string // JWT_SECRET, signs trainer access tokens
	AccessTTLMin int    // ACCESS_TOKEN_TTL_MIN
	LogLevel     string // LOG_LEVEL
	LogFormat    string // LOG_FORMAT (json, console, auto)
	RabbitURL    string // RABBITMQ_URL; empty disables event publishing

	Allocation AllocationConfig
}

// Load reads configuration values from environment variables.  Missing
// required variables terminate the process.
func Load() Config {
	return Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"),
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: envInt("ACCESS_TOKEN_TTL_MIN", 60),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		LogFormat:    envStr("LOG_FORMAT", "auto"),
		RabbitURL:    os.Getenv("RABBITMQ_URL"),
		Allocation:   LoadAllocationConfig(),
	}
}

// must retrieves the value of a required environment variable.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatal().Str("key", key).Msg("missing required env var")
	}
	return v
}
