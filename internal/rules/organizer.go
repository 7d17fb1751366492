package rules

import (
	"sort"

	"github.com/ianic-gr/alarms-service/internal/models"
)

// OrganizeRules 按租户归并规则
// 每条规则恰好归入其租户的汇总一次，入口点和实体标签取并集（去重且排序，
// 保证同一批输入得到相同输出）
func OrganizeRules(rules []models.Rule) map[string]models.TenantRulesInfo {
	byTenant := make(map[string][]models.Rule)
	for _, r := range rules {
		byTenant[r.Tenant] = append(byTenant[r.Tenant], r)
	}

	result := make(map[string]models.TenantRulesInfo, len(byTenant))
	for tenant, tenantRules := range byTenant {
		result[tenant] = OrganizeSingleTenantRules(tenantRules)
	}
	return result
}

// OrganizeSingleTenantRules 汇总单租户规则（输入应属于同一租户）
func OrganizeSingleTenantRules(rules []models.Rule) models.TenantRulesInfo {
	entryPoints := make(map[string]struct{})
	entities := make(map[string]struct{})

	for _, r := range rules {
		for _, ep := range r.EntryPoints {
			entryPoints[ep] = struct{}{}
		}
		for _, e := range r.Entities {
			entities[e] = struct{}{}
		}
	}

	return models.TenantRulesInfo{
		EntryPoints: sortedKeys(entryPoints),
		Entities:    sortedKeys(entities),
		Rules:       rules,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
