package cache

import (
	"context"
	"time"
)

// NoOpCache never stores anything: every lookup is a miss. It is the
// default provider, keeping the service free of storage beyond the
// breaker and counters.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}

func (c *NoOpCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}

func (c *NoOpCache) Close() error {
	return nil
}
