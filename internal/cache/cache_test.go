package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyIsStable(t *testing.T) {
	a := Key("translate", "mistral-small:latest", "fr", "en", "bonjour")
	b := Key("translate", "mistral-small:latest", "fr", "en", "bonjour")
	assert.Equal(t, a, b)
}

func TestKeySeparatesTasksAndInputs(t *testing.T) {
	base := Key("translate", "m", "fr", "en", "bonjour")

	assert.NotEqual(t, base, Key("correct", "m", "fr", "en", "bonjour"))
	assert.NotEqual(t, base, Key("translate", "other", "fr", "en", "bonjour"))
	assert.NotEqual(t, base, Key("translate", "m", "fr", "ar", "bonjour"))
	// Shifting text between parts must not collide.
	assert.NotEqual(t, Key("t", "m", "ab", "c"), Key("t", "m", "a", "bc"))
}

func TestNoOpCacheAlwaysMisses(t *testing.T) {
	c := NewNoOpCache()
	ctx := context.Background()

	assert.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	_, ok, err := c.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, c.Close())
}
