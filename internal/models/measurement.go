package models

import (
	"time"
)

// 事件时间解析支持的格式（AMR 网关上报格式不统一）
var readingDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseEventTime 解析事件时间字符串，失败返回零值
func parseEventTime(s string) time.Time {
	for _, layout := range readingDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// AmrMeasurement AMR（自动抄表）测量事件
// 以 reading_date 为事件时间；JSON 中的未知字段忽略
type AmrMeasurement struct {
	// 状态标志
	PowerLow    int     `json:"power_low"`
	Hardware    int     `json:"hardware"`
	EmptySpool  int     `json:"empty_spool"`
	ReverseFlow int     `json:"reverse_flow"`
	Leakage     int     `json:"leakage"`
	Burst       int     `json:"burst"`
	Freeze      int     `json:"freeze"`
	Tamper      int     `json:"tamper"`
	Rssi        int     `json:"rssi"`
	Snr         float64 `json:"snr"`

	Valid             int   `json:"valid"`
	NoMeasurementDays int64 `json:"noMeasurementDays"`

	// 各异常首次出现时间
	FirstPowerLowOccurrence    string `json:"first_power_low_occurrence"`
	FirstHardwareOccurrence    string `json:"first_hardware_occurrence"`
	FirstEmptySpoolOccurrence  string `json:"first_empty_spool_occurrence"`
	FirstReverseFlowOccurrence string `json:"first_reverse_flow_occurrence"`
	FirstLeakageOccurrence     string `json:"first_leakage_occurrence"`
	FirstBurstOccurrence       string `json:"first_burst_occurrence"`
	FirstFreezeOccurrence      string `json:"first_freeze_occurrence"`
	FirstTamperOccurrence      string `json:"first_tamper_occurrence"`

	// 标识字段
	MeterAddress      string `json:"meter_address"`
	ReadingDate       string `json:"reading_date"`
	Telegram          string `json:"telegram"`
	GatewayID         string `json:"gateway_id"`
	Filename          string `json:"filename"`
	Source            string `json:"source"`
	OperatorLatitude  string `json:"operator_latitude"`
	OperatorLongitude string `json:"operator_longitude"`
	Notes             string `json:"notes"`
	RoutelistID       string `json:"routelist_id"`
	UserID            string `json:"user_id"`

	// 用量字段
	Volume                int64 `json:"volume"`
	Consumption           int64 `json:"consumption"`
	SummarizedConsumption int64 `json:"summarizedConsumption"`

	// 调试字段
	WasFirst        int `json:"wasFirst"`
	NegativeDelta   int `json:"negativeDelta"`
	OutOfOrder      int `json:"outOfOrder"`
	IsSimulated     int `json:"isSimulated"`
	IsApproximation int `json:"isApproximation"`
	IsNovelty       int `json:"isNovelty"`
	Last            int `json:"last"`
}

// EventTime 事件时间（来自 reading_date）
func (m *AmrMeasurement) EventTime() time.Time {
	return parseEventTime(m.ReadingDate)
}

// EventKey 事件分组键（按表地址归并时间窗口）
func (m *AmrMeasurement) EventKey() string {
	return m.MeterAddress
}

// ScadaMeasurement SCADA 测量事件
// time 为 ISO-8601 字符串，可换算为毫秒时间戳；未知字段忽略
type ScadaMeasurement struct {
	Time         string  `json:"time"`
	Value        float64 `json:"value"`
	Consumption  float64 `json:"consumption"`
	SensorName   string  `json:"sensorName"`
	VariableName string  `json:"variableName"`
	VariableType string  `json:"variableType"`
	SensorType   string  `json:"sensorType"`
	QualityCode  string  `json:"qualityCode"`
}

// EventTime 事件时间（来自 time 字段）
func (m *ScadaMeasurement) EventTime() time.Time {
	return parseEventTime(m.Time)
}

// EventKey 事件分组键
func (m *ScadaMeasurement) EventKey() string {
	return m.SensorName
}

// EpochMillis 事件时间的毫秒时间戳，解析失败返回 0
func (m *ScadaMeasurement) EpochMillis() int64 {
	t := m.EventTime()
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
