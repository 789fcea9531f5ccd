package throttle

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

type Memory struct {
	c *cache.Cache
}

func NewMemory() *Memory {
	return &Memory{c: cache.New(cache.NoExpiration, 10*time.Minute)}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	// Add fails when an unexpired item already exists
	if err := m.c.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}

	return true, nil
}
