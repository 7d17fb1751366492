package bus

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// AlarmProducer 报警输出生产者
// 发布失败只记录日志并丢弃；topic 始终为级别推导的常量，不来自外部输入
type AlarmProducer struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewAlarmProducer 创建报警生产者
func NewAlarmProducer(nc *nats.Conn, logger *zap.Logger) *AlarmProducer {
	return &AlarmProducer{
		nc:     nc,
		logger: logger,
	}
}

// Send 发布单条记录（key 放入消息头）
func (p *AlarmProducer) Send(topic, key string, value []byte) {
	msg := nats.NewMsg(topic)
	msg.Header.Set(keyHeader, key)
	msg.Data = value

	if err := p.nc.PublishMsg(msg); err != nil {
		p.logger.Error("Failed to publish alarm",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("Alarm published",
		zap.String("topic", topic),
		zap.String("key", key),
	)
}
