package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyCache_RecordAndSeen(t *testing.T) {
	cache := NewIdempotencyCache(24 * time.Hour)

	assert.False(t, cache.Seen("E1"))

	cache.Record("E1")
	assert.True(t, cache.Seen("E1"))
	assert.Equal(t, 1, cache.Len())
}

func TestIdempotencyCache_EntrySurvivesUntilSwept(t *testing.T) {
	// Una entrada expirada pero aún no barrida sigue contando como vista.
	cache := NewIdempotencyCache(time.Hour)
	cache.Record("E1")

	removed := cache.Sweep(time.Now().UTC().Add(time.Hour - time.Second))
	assert.Equal(t, 0, removed)
	assert.True(t, cache.Seen("E1"))

	removed = cache.Sweep(time.Now().UTC().Add(2 * time.Hour))
	assert.Equal(t, 1, removed)
	assert.False(t, cache.Seen("E1"))
	assert.Equal(t, 0, cache.Len())
}

func TestIdempotencyCache_RecordKeepsFirstTimestamp(t *testing.T) {
	cache := NewIdempotencyCache(time.Hour)
	cache.Record("E1")
	first := cache.entries["E1"]

	cache.Record("E1")
	assert.Equal(t, first, cache.entries["E1"])
	assert.Equal(t, 1, cache.Len())
}
