package alarms

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CounterStore 报警次数计数器（基于 Redis INCR）
// Redis 不可用时计数降级为 0，不影响报警发布
type CounterStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCounterStore 创建报警计数器
func NewCounterStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *CounterStore {
	return &CounterStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Next 递增并返回该租户、级别、键的报警次数
func (c *CounterStore) Next(ctx context.Context, tenant, severity, key string) int64 {
	if c.client == nil {
		return 0
	}

	redisKey := fmt.Sprintf("alarm:count:%s:%s:%s", tenant, severity, key)

	count, err := c.client.Incr(ctx, redisKey).Result()
	if err != nil {
		c.logger.Warn("Failed to increment alarm count",
			zap.String("key", redisKey),
			zap.Error(err),
		)
		return 0
	}

	// 每次命中刷新 TTL，窗口从最后一次报警起算
	if c.ttl > 0 {
		if err := c.client.Expire(ctx, redisKey, c.ttl).Err(); err != nil {
			c.logger.Warn("Failed to set alarm count TTL",
				zap.String("key", redisKey),
				zap.Error(err),
			)
		}
	}

	return count
}
