package rateLimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type memCounter struct {
	hits map[string]int64
	err  error
}

func (m *memCounter) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.hits[key]++
	return m.hits[key], nil
}

func TestAllow(t *testing.T) {
	rl := NewRateLimiter(&memCounter{hits: map[string]int64{}})
	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(context.Background(), "tenant:a", 3, time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := rl.Allow(context.Background(), "tenant:a", 3, time.Minute)
	assert.False(t, ok)

	ok, _ = rl.Allow(context.Background(), "tenant:b", 3, time.Minute)
	assert.True(t, ok)
}

func TestAllowFailsOpen(t *testing.T) {
	rl := NewRateLimiter(&memCounter{err: errors.New("connection refused")})
	ok, err := rl.Allow(context.Background(), "tenant:a", 1, time.Minute)
	assert.Error(t, err)
	assert.True(t, ok)
}
