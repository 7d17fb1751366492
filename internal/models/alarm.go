package models

import (
	"encoding/json"
	"time"
)

// Severity 报警级别
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// 各级别对应的输出 topic（严格由级别决定，不接受外部输入）
const (
	TopicInfoAlarms     = "info-alarms"
	TopicWarningAlarms  = "warning-alarms"
	TopicCriticalAlarms = "critical-alarms"
)

// SeverityOf 根据字符串标签返回级别，未知标签返回 false
func SeverityOf(label string) (Severity, bool) {
	switch Severity(label) {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return Severity(label), true
	}
	return "", false
}

// Topic 级别到输出 topic 的映射
func (s Severity) Topic() string {
	switch s {
	case SeverityWarning:
		return TopicWarningAlarms
	case SeverityCritical:
		return TopicCriticalAlarms
	default:
		return TopicInfoAlarms
	}
}

// Alarm 规则触发产生的报警
// 发布到由级别决定的 topic 后即从工作内存移除，不做留存
type Alarm struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	DateTime int64    `json:"dateTime"`
	Count    int      `json:"count"`
	Key      string   `json:"key"`
	Topic    string   `json:"topic"`
}

// NewAlarm 创建报警，时间默认为当前毫秒时间戳，次数默认为 0
func NewAlarm(severity Severity, message, key string) *Alarm {
	return &Alarm{
		Severity: severity,
		Message:  message,
		DateTime: time.Now().UnixMilli(),
		Count:    0,
		Key:      key,
		Topic:    severity.Topic(),
	}
}

// JSON 序列化为 JSON 字节串
func (a *Alarm) JSON() ([]byte, error) {
	return json.Marshal(a)
}
