package embedfall

import (
	"fmt"
	"time"

	"github.com/helmavik/embedfall/backend"
)

// Config is the immutable engine configuration. It is read at construction
// and never mutated afterwards.
type Config struct {
	// ModelID names the embedding model.
	ModelID string `yaml:"model_id" mapstructure:"model_id"`

	// Dimensions is the output vector length. Constant for the engine's
	// lifetime regardless of which backend becomes active.
	Dimensions int `yaml:"dimensions" mapstructure:"dimensions"`

	// MaxLength bounds the token sequence, including the start/end markers.
	MaxLength int `yaml:"max_length" mapstructure:"max_length"`

	// ModelPath and VocabPath locate the local ONNX model artifacts.
	ModelPath string `yaml:"model_path" mapstructure:"model_path"`
	VocabPath string `yaml:"vocab_path" mapstructure:"vocab_path"`

	// RemoteBaseURL enables the remote backend when non-empty.
	RemoteBaseURL string        `yaml:"remote_base_url" mapstructure:"remote_base_url"`
	RemoteTimeout time.Duration `yaml:"remote_timeout" mapstructure:"remote_timeout"`
	RemoteRPS     float64       `yaml:"remote_rps" mapstructure:"remote_rps"`

	// EnableGPU and EnableSIMD gate the accelerated chain entries.
	EnableGPU  bool `yaml:"enable_gpu" mapstructure:"enable_gpu"`
	EnableSIMD bool `yaml:"enable_simd" mapstructure:"enable_simd"`

	// CacheCapacity bounds the in-process LRU query cache.
	CacheCapacity int `yaml:"cache_capacity" mapstructure:"cache_capacity"`

	// RedisURL enables a shared second cache tier when non-empty.
	RedisURL string        `yaml:"redis_url" mapstructure:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ModelID:       "sentence-transformers/all-MiniLM-L6-v2",
		Dimensions:    384,
		MaxLength:     256,
		ModelPath:     "./models/minilm-l6-v2.onnx",
		VocabPath:     "./models/vocab.txt",
		RemoteTimeout: 10 * time.Second,
		EnableGPU:     true,
		EnableSIMD:    true,
		CacheCapacity: 100,
		CacheTTL:      24 * time.Hour,
	}
}

// Validate rejects programmer errors at construction rather than letting
// them surface mid-request.
func (c Config) Validate() error {
	if c.Dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", ErrConfig, c.Dimensions)
	}
	if c.MaxLength < 3 {
		return fmt.Errorf("%w: max_length %d leaves no room for tokens", ErrConfig, c.MaxLength)
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("%w: cache_capacity must be positive, got %d", ErrConfig, c.CacheCapacity)
	}
	if c.RemoteRPS < 0 {
		return fmt.Errorf("%w: remote_rps cannot be negative", ErrConfig)
	}
	return nil
}

// settings extracts the backend-facing subset.
func (c Config) settings() backend.Settings {
	return backend.Settings{
		ModelID:       c.ModelID,
		Dimensions:    c.Dimensions,
		MaxLength:     c.MaxLength,
		ModelPath:     c.ModelPath,
		VocabPath:     c.VocabPath,
		RemoteBaseURL: c.RemoteBaseURL,
		RemoteTimeout: c.RemoteTimeout,
		RemoteRPS:     c.RemoteRPS,
	}
}
