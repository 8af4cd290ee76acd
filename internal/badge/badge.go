// Package badge keeps the unread push counter shown as the application badge.
// Every invocation increments it; opening the notifications view resets it.
package badge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	redisSvc "push_notify/internal/service/redis"
)

type (
	// Counter is shared by all concurrent invocations. Increment is a single
	// serialized read-increment-write.
	Counter interface {
		Init(ctx context.Context) error
		Increment(ctx context.Context) (int64, error)
		Reset(ctx context.Context) error
		Value(ctx context.Context) (int64, error)
	}

	MemoryCounter struct {
		n atomic.Int64
	}

	RedisCounter struct {
		svc *redisSvc.RedisService
		key string
	}
)

var (
	_ Counter = (*MemoryCounter)(nil)
	_ Counter = (*RedisCounter)(nil)
)

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

func (c *MemoryCounter) Init(context.Context) error {
	return nil
}

func (c *MemoryCounter) Increment(context.Context) (int64, error) {
	return c.n.Add(1), nil
}

func (c *MemoryCounter) Reset(context.Context) error {
	c.n.Store(0)
	return nil
}

func (c *MemoryCounter) Value(context.Context) (int64, error) {
	return c.n.Load(), nil
}

func NewRedisCounter(svc *redisSvc.RedisService, key string) *RedisCounter {
	return &RedisCounter{
		svc: svc,
		key: key,
	}
}

// Init creates the key at zero unless a previous process left a value.
func (c *RedisCounter) Init(ctx context.Context) error {
	if _, err := c.svc.SetNX(ctx, c.key, 0, 0); err != nil {
		return fmt.Errorf("badge: init: %w", err)
	}
	return nil
}

func (c *RedisCounter) Increment(ctx context.Context) (int64, error) {
	n, err := c.svc.Incr(ctx, c.key)
	if err != nil {
		return 0, fmt.Errorf("badge: increment: %w", err)
	}
	return n, nil
}

func (c *RedisCounter) Reset(ctx context.Context) error {
	if err := c.svc.Set(ctx, c.key, 0, time.Duration(0)); err != nil {
		return fmt.Errorf("badge: reset: %w", err)
	}
	return nil
}

func (c *RedisCounter) Value(ctx context.Context) (int64, error) {
	n, err := c.svc.GetInt64(ctx, c.key)
	if err != nil {
		return 0, fmt.Errorf("badge: value: %w", err)
	}
	return n, nil
}
