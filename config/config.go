// Package config loads and validates the server's runtime configuration.
// It is the only place in this module that reads the process environment;
// engine, controller, and store never touch os.Getenv themselves.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the validated set of settings cmd/server needs to start.
type Config struct {
	HTTPAddr        string `validate:"required"`
	JWTSigningKey   string `validate:"required,min=16"`
	RepositoryDSN   string `validate:"required"`
	RepositoryKind  string `validate:"required,oneof=memory sqlite mysql"`
	NodeTimeout     time.Duration
	OpenAIAPIKey    string
	AnthropicAPIKey string
	RedisAddr       string
}

// Load reads an optional .env file (godotenv reports a missing file as an
// error, which Load ignores), then populates and validates a Config from
// the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		JWTSigningKey:   os.Getenv("JWT_SIGNING_KEY"),
		RepositoryDSN:   os.Getenv("REPOSITORY_DSN"),
		RepositoryKind:  getenv("REPOSITORY_KIND", "memory"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
	}

	if cfg.RepositoryKind == "memory" && cfg.RepositoryDSN == "" {
		// The memory backend needs no DSN; validator still requires a
		// non-empty RepositoryDSN below, so give it a harmless placeholder.
		cfg.RepositoryDSN = "memory"
	}

	timeoutStr := getenv("NODE_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("parse NODE_TIMEOUT=%q: %w", timeoutStr, err)
	}
	cfg.NodeTimeout = timeout

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
