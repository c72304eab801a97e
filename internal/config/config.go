package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Ollama upstream
	OllamaBaseURL    string        `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel      string        `env:"OLLAMA_MODEL" envDefault:"mistral-small:latest"`
	OllamaTimeout    time.Duration `env:"OLLAMA_TIMEOUT" envDefault:"120s"`
	OllamaMaxRetries int           `env:"OLLAMA_MAX_RETRIES" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`

	// Circuit breaker
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"60s"`

	// File translation
	MaxUploadSize    int64 `env:"MAX_UPLOAD_SIZE" envDefault:"52428800"` // 50MB
	BatchConcurrency int   `env:"BATCH_CONCURRENCY" envDefault:"2"`

	// Response cache
	CacheProvider string        `env:"CACHE_PROVIDER" envDefault:"noop"` // "noop" or "redis"
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"1h"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}
