// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	AdminToken  string `env:"ADMIN_TOKEN,required"`

	APIPort    int `env:"API_PORT" envDefault:"8081"`
	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`

	// Upload pipeline
	UploadDir       string        `env:"UPLOAD_DIR" envDefault:"./uploads"`
	CheckChunkSize  int           `env:"CHECK_CHUNK_SIZE" envDefault:"1000"`
	InsertChunkSize int           `env:"INSERT_CHUNK_SIZE" envDefault:"5000"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"524288000"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT" envDefault:"30s"`

	// Per-token upload rate limiting
	UploadRateRPS   float64 `env:"UPLOAD_RATE_RPS" envDefault:"2"`
	UploadRateBurst int     `env:"UPLOAD_RATE_BURST" envDefault:"5"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"25"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"5"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.CheckChunkSize <= 0 {
		return fmt.Errorf("CHECK_CHUNK_SIZE must be positive, got %d", c.CheckChunkSize)
	}

	if c.InsertChunkSize <= 0 {
		return fmt.Errorf("INSERT_CHUNK_SIZE must be positive, got %d", c.InsertChunkSize)
	}

	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive, got %s", c.StoreTimeout)
	}

	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}

	return nil
}
