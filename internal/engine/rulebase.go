// Package engine 将嵌入式规则引擎（grule）适配为流式评估所需的形态：
// 文本规则编译、带命名入口点的工作内存会话、事实句柄、fire-until-halt。
package engine

import (
	"fmt"

	"github.com/hyperjumptech/grule-rule-engine/ast"
	"github.com/hyperjumptech/grule-rule-engine/builder"
	"github.com/hyperjumptech/grule-rule-engine/pkg"

	"github.com/ianic-gr/alarms-service/internal/models"
)

// 规则库版本号（grule 知识库实例要求显式版本）
const kbVersion = "0.0.1"

// RuleBase 编译后的规则库
// 每个入口点对应一个知识库，包含所有声明了该入口点的规则；
// 事件按其入口点路由到对应知识库评估
type RuleBase struct {
	tenant      string
	knowledge   map[string]*ast.KnowledgeBase
	ruleCount   int
	entryPoints []string
}

// CompileRuleBase 将规则文本编译为规则库
// 任一规则编译失败则整体失败（调用方保持原会话不变）
func CompileRuleBase(tenant string, rules []models.Rule) (*RuleBase, error) {
	perEntryPoint := make(map[string][]models.Rule)
	for _, rule := range rules {
		for _, ep := range rule.EntryPoints {
			perEntryPoint[ep] = append(perEntryPoint[ep], rule)
		}
	}

	lib := ast.NewKnowledgeLibrary()
	rb := builder.NewRuleBuilder(lib)

	result := &RuleBase{
		tenant:    tenant,
		knowledge: make(map[string]*ast.KnowledgeBase, len(perEntryPoint)),
	}

	for ep, epRules := range perEntryPoint {
		kbName := tenant + "-" + ep
		for _, rule := range epRules {
			if err := rb.BuildRuleFromResource(kbName, kbVersion,
				pkg.NewBytesResource([]byte(rule.DRL))); err != nil {
				return nil, fmt.Errorf("failed to compile rule %q for entry point %q: %w", rule.Name, ep, err)
			}
		}

		kb, err := lib.NewKnowledgeBaseInstance(kbName, kbVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to build knowledge base for entry point %q: %w", ep, err)
		}
		result.knowledge[ep] = kb
		result.entryPoints = append(result.entryPoints, ep)
	}

	result.ruleCount = len(rules)
	return result, nil
}

// EntryPoints 规则库声明的事件入口点
func (rb *RuleBase) EntryPoints() []string {
	return rb.entryPoints
}

// RuleCount 编译的规则条数
func (rb *RuleBase) RuleCount() int {
	return rb.ruleCount
}
