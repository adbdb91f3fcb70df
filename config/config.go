// Package config binds runtime configuration from environment variables
// (optionally seeded from a .env file) to a typed Config.
package config

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/resilience"
)

// RedisConfig configures the optional Redis checkpoint backend.
type RedisConfig struct {
	URL          string `split_words:"true"`
	ReadTimeout  int    `split_words:"true" default:"3"`
	WriteTimeout int    `split_words:"true" default:"3"`
	DialTimeout  int    `split_words:"true" default:"5"`
}

// Enabled reports whether a Redis URL was configured.
func (r *RedisConfig) Enabled() bool { return r.URL != "" }

// New connects a Redis client and verifies reachability with a ping.
func (r *RedisConfig) New(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(r.URL)
	if err != nil {
		return nil, err
	}
	opts.ReadTimeout = time.Duration(r.ReadTimeout) * time.Second
	opts.WriteTimeout = time.Duration(r.WriteTimeout) * time.Second
	opts.DialTimeout = time.Duration(r.DialTimeout) * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

// Config holds all tunables of the conversation core.
type Config struct {
	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Circuit breakers
	BreakerFailureThreshold uint          `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerRecoveryTimeout  time.Duration `envconfig:"BREAKER_RECOVERY_TIMEOUT" default:"60s"`

	// Retries
	RetryMaxRetries     int           `envconfig:"RETRY_MAX_RETRIES" default:"3"`
	RetryInitialBackoff time.Duration `envconfig:"RETRY_INITIAL_BACKOFF" default:"1s"`
	RetryMaxBackoff     time.Duration `envconfig:"RETRY_MAX_BACKOFF" default:"10s"`

	// Memory
	MemoryDuplicateThreshold float64 `envconfig:"MEMORY_DUPLICATE_THRESHOLD" default:"0.90"`
	MemoryRecallK            int     `envconfig:"MEMORY_RECALL_K" default:"5"`
	MemoryEmbedCacheEntries  int64   `envconfig:"MEMORY_EMBED_CACHE_ENTRIES" default:"4096"`

	// Orchestrator
	SummarizeEvery     uint          `envconfig:"SUMMARIZE_EVERY" default:"20"`
	TurnTimeout        time.Duration `envconfig:"TURN_TIMEOUT" default:"60s"`
	MaxConcurrentTurns int           `envconfig:"MAX_CONCURRENT_TURNS" default:"0"`
	Persona            string        `envconfig:"PERSONA"`

	// Checkpoints
	CheckpointTTL time.Duration `envconfig:"CHECKPOINT_TTL" default:"0"`
	Redis         RedisConfig

	// Providers
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
}

// Load reads .env when present, then binds PARLEY_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("parley", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BreakerConfig translates the breaker settings.
func (c *Config) BreakerConfig() resilience.Config {
	return resilience.Config{
		FailureThreshold: c.BreakerFailureThreshold,
		RecoveryTimeout:  c.BreakerRecoveryTimeout,
	}
}

// RetryConfig translates the retry settings.
func (c *Config) RetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxRetries:     c.RetryMaxRetries,
		InitialBackoff: c.RetryInitialBackoff,
		MaxBackoff:     c.RetryMaxBackoff,
	}
}

// LoggerLevel maps the configured level string to a logging level.
func (c *Config) LoggerLevel() logging.LogLevel {
	switch c.LogLevel {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
