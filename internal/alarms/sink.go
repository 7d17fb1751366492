package alarms

import (
	"context"

	"github.com/ianic-gr/alarms-service/internal/models"
	"go.uber.org/zap"
)

// Publisher 报警发布接口（由 bus.AlarmProducer 实现）
type Publisher interface {
	Send(topic, key string, value []byte)
}

// Sink 规则动作的报警出口
// 注册为规则会话全局变量，规则结论里通过 Sink.Info/Warning/Critical 发出报警
// 发布链路任何一步失败都不会中断规则执行
type Sink struct {
	tenant   string
	producer Publisher
	counter  *CounterStore
	logger   *zap.Logger
}

// NewSink 创建指定租户的报警出口
func NewSink(tenant string, producer Publisher, counter *CounterStore, logger *zap.Logger) *Sink {
	return &Sink{
		tenant:   tenant,
		producer: producer,
		counter:  counter,
		logger:   logger,
	}
}

// Info 发出 INFO 级别报警
func (s *Sink) Info(message, key string) {
	s.emit(models.SeverityInfo, message, key)
}

// Warning 发出 WARNING 级别报警
func (s *Sink) Warning(message, key string) {
	s.emit(models.SeverityWarning, message, key)
}

// Critical 发出 CRITICAL 级别报警
func (s *Sink) Critical(message, key string) {
	s.emit(models.SeverityCritical, message, key)
}

// Emit 按级别标签发出报警，未知标签降级为 INFO
func (s *Sink) Emit(severity, message, key string) {
	sev, ok := models.SeverityOf(severity)
	if !ok {
		s.logger.Warn("Unknown alarm severity, falling back to INFO",
			zap.String("tenant", s.tenant),
			zap.String("severity", severity),
		)
		sev = models.SeverityInfo
	}
	s.emit(sev, message, key)
}

func (s *Sink) emit(severity models.Severity, message, key string) {
	alarm := models.NewAlarm(severity, message, key)

	if s.counter != nil {
		alarm.Count = int(s.counter.Next(context.Background(), s.tenant, string(severity), key))
	}

	data, err := alarm.JSON()
	if err != nil {
		s.logger.Error("Failed to serialize alarm",
			zap.String("tenant", s.tenant),
			zap.String("severity", string(severity)),
			zap.Error(err),
		)
		return
	}

	s.producer.Send(alarm.Topic, key, data)

	s.logger.Info("Alarm emitted",
		zap.String("tenant", s.tenant),
		zap.String("severity", string(severity)),
		zap.String("key", key),
		zap.Int("count", alarm.Count),
	)
}
