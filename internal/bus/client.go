// Package bus 消息总线适配层（NATS）
// 入站：按 <entryPoint>-<tenant> 主题订阅 JSON 事件；
// 出站：按报警级别对应的主题发布带 key 的记录。
package bus

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ianic-gr/alarms-service/internal/config"
)

// 出站记录的领域键放在消息头中传递
const keyHeader = "key"

// Connect 建立 NATS 连接
func Connect(cfg *config.NatsConfig, logger *zap.Logger) (*nats.Conn, error) {
	name := "alarms-service-" + uuid.NewString()[:8]

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	logger.Info("Connected to NATS",
		zap.String("url", cfg.URL),
		zap.String("client_name", name),
	)
	return nc, nil
}
