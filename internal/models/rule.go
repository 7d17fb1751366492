package models

// 规则模式常量
const (
	// ModeStream 流式规则（实时评估）
	ModeStream = "stream"
	// ModeSchedule 定时规则（本服务暂不处理）
	ModeSchedule = "schedule"
)

// IsValidMode 判断规则模式是否合法
func IsValidMode(mode string) bool {
	return mode == ModeStream || mode == ModeSchedule
}

// Rule 租户规则（存储于 Cassandra rules 表，主键 tenant/mode/name）
// DRL 为规则引擎可编译的规则文本，EntryPoints/Entities 为规则声明的
// 入口点和参照实体标签
type Rule struct {
	Tenant      string   `json:"tenant"`
	Mode        string   `json:"mode"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	EntryPoints []string `json:"entryPoints"`
	Entities    []string `json:"entities"`
	DRL         string   `json:"drl"`
}

// TenantRulesInfo 单租户规则汇总（由 Organizer 产出）
// EntryPoints/Entities 为该租户所有规则声明的并集，Rules 包含每条输入规则一次
type TenantRulesInfo struct {
	EntryPoints []string
	Entities    []string
	Rules       []Rule
}

// HasEntryPoint 判断入口点是否在汇总中
func (i *TenantRulesInfo) HasEntryPoint(name string) bool {
	for _, ep := range i.EntryPoints {
		if ep == name {
			return true
		}
	}
	return false
}
