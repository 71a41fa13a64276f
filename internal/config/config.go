// Package config loads service configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds everything stackd needs to start.
type Config struct {
	HTTPAddr    string `env:"STACKD_HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"STACKD_METRICS_ADDR" envDefault:":9090"`
	DBPath      string `env:"STACKD_DB_PATH" envDefault:"./data/badger"`
	NATSURL     string `env:"STACKD_NATS_URL"`
	Trace       bool   `env:"STACKD_TRACE"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
