package config

import (
	"time"

	"github.com/helmavik/embedfall"
)

// Config is the top-level configuration for the embedfall binaries.
type Config struct {
	Engine     embedfall.Config `yaml:"engine" mapstructure:"engine"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Precompute PrecomputeConfig `yaml:"precompute" mapstructure:"precompute"`
}

// ServerConfig configures the embedding sidecar HTTP service.
type ServerConfig struct {
	Port         int             `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxBatchSize int             `yaml:"max_batch_size" mapstructure:"max_batch_size"`
}

// RateLimitConfig configures per-client request throttling.
type RateLimitConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig configures zap construction.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// StoreConfig configures the precompute pipeline's pgvector store.
type StoreConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// PrecomputeConfig configures the document embedding pipeline.
type PrecomputeConfig struct {
	BatchSize     int  `yaml:"batch_size" mapstructure:"batch_size"`
	CreateIndex   bool `yaml:"create_index" mapstructure:"create_index"`
	ProgressEvery int  `yaml:"progress_every" mapstructure:"progress_every"`
}

// GetDefaults returns a configuration with documented defaults.
func GetDefaults() *Config {
	return &Config{
		Engine: embedfall.DefaultConfig(),
		Server: ServerConfig{
			Port:         8091,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBatchSize: 64,
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerSec: 50,
				Burst:          100,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Precompute: PrecomputeConfig{
			BatchSize:     256,
			CreateIndex:   true,
			ProgressEvery: 1000,
		},
	}
}
