package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"dcia/internal/breaker"
	"dcia/internal/cache"
	"dcia/internal/config"
	"dcia/internal/logger"
	"dcia/internal/metrics"
	"dcia/internal/ollama"
	"dcia/internal/scenari"
)

// Deps bundles the runtime dependencies handlers need.
type Deps struct {
	Config  config.Config
	Log     *slog.Logger
	Gen     ollama.Generator
	Files   *scenari.Translator
	Cache   cache.Cache
	Metrics *metrics.Counters
}

// Build loads env, config, and shared components. A missing .env file is
// not an error; environment variables alone are enough.
func Build() (Deps, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	br := breaker.New(cfg.BreakerThreshold, cfg.BreakerCooldown)
	gen := ollama.NewClient(ollama.Options{
		BaseURL:    cfg.OllamaBaseURL,
		Model:      cfg.OllamaModel,
		Timeout:    cfg.OllamaTimeout,
		MaxRetries: cfg.OllamaMaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		Breaker:    br,
		Logger:     log,
	})

	c, err := buildCache(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize cache: %w", err)
	}

	return Deps{
		Config:  cfg,
		Log:     log,
		Gen:     gen,
		Files:   scenari.NewTranslator(gen, log),
		Cache:   c,
		Metrics: metrics.New(),
	}, nil
}

func buildCache(cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheProvider {
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when CACHE_PROVIDER=redis")
		}
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		log.Info("using Redis response cache", "addr", cfg.RedisAddr)
		return c, nil
	case "noop":
		return cache.NewNoOpCache(), nil
	default:
		return nil, fmt.Errorf("invalid CACHE_PROVIDER: %s (valid options: noop, redis)", cfg.CacheProvider)
	}
}
