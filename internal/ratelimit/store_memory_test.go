package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClockedStore(start time.Time) (*MemoryStore, *time.Time) {
	now := start
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	return s, &now
}

func TestMemoryStore_AllowsUpToLimit(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newClockedStore(start)
	ctx := context.Background()

	for i := range 3 {
		res, err := s.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3-(i+1), res.Remaining)
		assert.Equal(t, start.Add(time.Minute), res.ResetAt)
	}

	res, err := s.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 60, res.RetryAfter)
}

func TestMemoryStore_WindowSlides(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, now := newClockedStore(start)
	ctx := context.Background()

	_, err := s.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	*now = start.Add(30 * time.Second)
	_, err = s.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)

	res, err := s.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30, res.RetryAfter)

	*now = start.Add(61 * time.Second)
	res, err = s.Allow(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	res, err := s.Allow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = s.Allow(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = s.Allow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestMemoryStore_Sweep(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, now := newClockedStore(start)
	ctx := context.Background()

	_, err := s.Allow(ctx, "old", 5, time.Minute)
	require.NoError(t, err)
	*now = start.Add(50 * time.Second)
	_, err = s.Allow(ctx, "fresh", 5, time.Minute)
	require.NoError(t, err)

	*now = start.Add(90 * time.Second)
	assert.Equal(t, 1, s.Sweep())
	assert.Len(t, s.windows, 1)
	assert.Contains(t, s.windows, "fresh")
}
