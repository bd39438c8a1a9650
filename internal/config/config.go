// Package config loads the NAAS process configuration from the environment,
// keeping cmd/naas/main.go lean.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures every environment variable spec.md §6 names.
type Config struct {
	Environment string `env:"APP_ENVIRONMENT" envDefault:"dev"`
	LogLevel    string `env:"LOG_LEVEL"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	Mode       string `env:"MODE" envDefault:"api"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JobTTLSuccess  time.Duration `env:"JOB_TTL_SUCCESS" envDefault:"86400s"`
	JobTTLFailed   time.Duration `env:"JOB_TTL_FAILED" envDefault:"604800s"`
	JobMaxRetries  int           `env:"JOB_MAX_RETRIES" envDefault:"5"`
	WorkerCount    int           `env:"WORKER_COUNT" envDefault:"20"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	CircuitBreakerEnabled   bool          `env:"CIRCUIT_BREAKER_ENABLED" envDefault:"true"`
	CircuitBreakerThreshold int           `env:"CIRCUIT_BREAKER_THRESHOLD" envDefault:"5"`
	CircuitBreakerTimeout   time.Duration `env:"CIRCUIT_BREAKER_TIMEOUT" envDefault:"300s"`

	LockoutThreshold int           `env:"LOCKOUT_THRESHOLD" envDefault:"10"`
	LockoutWindow    time.Duration `env:"LOCKOUT_WINDOW" envDefault:"600s"`
}

// Load parses Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.LogLevel == "" {
		if cfg.Environment == "dev" {
			cfg.LogLevel = "DEBUG"
		} else {
			cfg.LogLevel = "INFO"
		}
	}
	return cfg, nil
}

// RedisAddr builds the host:port pair go-redis expects.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
