// Package config loads vtagger's settings from environment variables
// (prefix VTAGGER_) with YAML overrides from ~/.vtagger/config.yaml,
// matching the enumerated option set in the system's external interface
// contract.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable the sync coordinator, pipeline, and
// upstream client read at startup.
type Config struct {
	DatabasePath    string   `mapstructure:"database_path"`
	APIHost         string   `mapstructure:"api_host"`
	APIPort         int      `mapstructure:"api_port"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	UmbrellaAPIBase string   `mapstructure:"umbrella_api_base"`
	OutputDir       string   `mapstructure:"output_dir"`
	BatchSize       int      `mapstructure:"batch_size"`
	RetentionDays   int      `mapstructure:"retention_days"`
	MasterKey       string   `mapstructure:"master_key"`
	RedisAddr       string   `mapstructure:"redis_addr"`
	LogLevel        string   `mapstructure:"log_level"`
	LogFormat       string   `mapstructure:"log_format"`
}

const envPrefix = "VTAGGER"

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_path", "./data/vtagger.db")
	v.SetDefault("api_host", "0.0.0.0")
	v.SetDefault("api_port", 8000)
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("umbrella_api_base", "https://api.umbrellacost.io/api")
	v.SetDefault("output_dir", "./data/output")
	v.SetDefault("batch_size", 1000)
	v.SetDefault("retention_days", 90)
	v.SetDefault("redis_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads configuration from ~/.vtagger/config.yaml (if present) and
// environment variables prefixed VTAGGER_, environment taking precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".vtagger"))
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize)
	}

	return &cfg, nil
}
