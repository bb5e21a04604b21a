// Package config loads engine settings from environment variables,
// providing defaults for everything but the Postgres URL.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the ledger engine process.
type Config struct {
	ListenAddr string `mapstructure:"LISTEN_ADDR"`

	// StorageBackend selects the store: "sqlite", "postgres", or "memory".
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	SQLitePath     string `mapstructure:"SQLITE_PATH"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`

	InvestmentSweepSchedule string `mapstructure:"INVESTMENT_SWEEP_SCHEDULE"`
	SalaryTickSchedule      string `mapstructure:"SALARY_TICK_SCHEDULE"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	viper.SetDefault("LISTEN_ADDR", ":8080")
	viper.SetDefault("STORAGE_BACKEND", "sqlite")
	viper.SetDefault("SQLITE_PATH", "bank.db")
	viper.SetDefault("INVESTMENT_SWEEP_SCHEDULE", "@every 10m")
	viper.SetDefault("SALARY_TICK_SCHEDULE", "@every 3h")
	viper.AutomaticEnv()

	// Bind explicitly so the variables appear in Unmarshal.
	_ = viper.BindEnv("LISTEN_ADDR")
	_ = viper.BindEnv("STORAGE_BACKEND")
	_ = viper.BindEnv("SQLITE_PATH")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("INVESTMENT_SWEEP_SCHEDULE")
	_ = viper.BindEnv("SALARY_TICK_SCHEDULE")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case "sqlite", "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return &cfg, nil
}
