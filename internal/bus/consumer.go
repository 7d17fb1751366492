package bus

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/models"
)

// Subscription 单个主题订阅：解码为 AmrMeasurement 后交给 Handler
type Subscription struct {
	Topic   string
	Handler func(*models.AmrMeasurement)
}

// StreamConsumer 事件流消费者
// 按会话 ID 管理一组订阅；同一主题内记录按到达顺序投递
type StreamConsumer struct {
	nc     *nats.Conn
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string][]*nats.Subscription
}

// NewStreamConsumer 创建事件流消费者
func NewStreamConsumer(nc *nats.Conn, logger *zap.Logger) *StreamConsumer {
	return &StreamConsumer{
		nc:       nc,
		logger:   logger,
		sessions: make(map[string][]*nats.Subscription),
	}
}

// Start 为会话挂载订阅；同一会话重复挂载前先卸载旧订阅
func (c *StreamConsumer) Start(sessionID string, subs []Subscription) error {
	c.Stop(sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	attached := make([]*nats.Subscription, 0, len(subs))
	for _, sub := range subs {
		sub := sub
		natsSub, err := c.nc.Subscribe(sub.Topic, func(msg *nats.Msg) {
			c.deliver(sub, msg.Data)
		})
		if err != nil {
			// 回滚已挂载的订阅，避免半启动状态
			for _, s := range attached {
				_ = s.Unsubscribe()
			}
			return fmt.Errorf("failed to subscribe to %s: %w", sub.Topic, err)
		}
		attached = append(attached, natsSub)

		c.logger.Info("Subscribed to event stream",
			zap.String("session_id", sessionID),
			zap.String("topic", sub.Topic),
		)
	}

	c.sessions[sessionID] = attached
	return nil
}

// deliver 解码并投递记录
// 解码失败只记录日志并投递默认值，订阅不中断
func (c *StreamConsumer) deliver(sub Subscription, data []byte) {
	m := &models.AmrMeasurement{}
	if err := json.Unmarshal(data, m); err != nil {
		c.logger.Warn("Failed to decode measurement, delivering empty value",
			zap.String("topic", sub.Topic),
			zap.Error(err),
		)
		m = &models.AmrMeasurement{}
	}
	sub.Handler(m)
}

// Stop 卸载会话的全部订阅（幂等）
func (c *StreamConsumer) Stop(sessionID string) {
	c.mu.Lock()
	subs := c.sessions[sessionID]
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to unsubscribe",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}
	if len(subs) > 0 {
		c.logger.Info("Stopped event stream subscriptions",
			zap.String("session_id", sessionID),
			zap.Int("count", len(subs)),
		)
	}
}

// Close 卸载全部会话订阅（进程退出时调用）
func (c *StreamConsumer) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Stop(id)
	}
}
