// Package cache optionally caches non-streaming generation results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores generated text keyed by request fingerprint.
type Cache interface {
	// Get retrieves a cached result. ok is false on a miss.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores a result with TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Close releases the underlying connection.
	Close() error
}

// Key fingerprints a generation request. The task name keeps results of
// different use cases apart even for identical input text.
func Key(task, model string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(task))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}
