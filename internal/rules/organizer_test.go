package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianic-gr/alarms-service/internal/models"
)

func TestOrganizeRules_GroupsByTenant(t *testing.T) {
	input := []models.Rule{
		{Tenant: "T1", Mode: models.ModeStream, Name: "A", EntryPoints: []string{"amr"}, Entities: []string{"gateway"}},
		{Tenant: "T1", Mode: models.ModeStream, Name: "B", EntryPoints: []string{"amr", "scada"}},
		{Tenant: "T2", Mode: models.ModeStream, Name: "C", EntryPoints: []string{"scada"}, Entities: []string{"sector"}},
	}

	result := OrganizeRules(input)
	require.Len(t, result, 2)

	t1 := result["T1"]
	assert.ElementsMatch(t, []string{"amr", "scada"}, t1.EntryPoints)
	assert.ElementsMatch(t, []string{"gateway"}, t1.Entities)
	assert.Len(t, t1.Rules, 2)

	t2 := result["T2"]
	assert.Equal(t, []string{"scada"}, t2.EntryPoints)
	assert.Equal(t, []string{"sector"}, t2.Entities)
	assert.Len(t, t2.Rules, 1)

	// 每条输入规则恰好出现在其租户的汇总中一次
	total := 0
	for _, info := range result {
		total += len(info.Rules)
	}
	assert.Equal(t, len(input), total)
}

func TestOrganizeRules_Empty(t *testing.T) {
	result := OrganizeRules(nil)
	assert.Empty(t, result)
}

func TestOrganizeSingleTenantRules_Unions(t *testing.T) {
	input := []models.Rule{
		{Tenant: "T", Name: "A", EntryPoints: []string{"amr", "scada"}, Entities: []string{"gateway"}},
		{Tenant: "T", Name: "B", EntryPoints: []string{"amr"}, Entities: []string{"gateway", "sector"}},
	}

	info := OrganizeSingleTenantRules(input)
	assert.Equal(t, []string{"amr", "scada"}, info.EntryPoints)
	assert.Equal(t, []string{"gateway", "sector"}, info.Entities)
	assert.Len(t, info.Rules, len(input))
}

func TestOrganizeSingleTenantRules_EmptyEntryPoints(t *testing.T) {
	// 不声明入口点的规则对并集无贡献，但仍保留在规则列表中
	input := []models.Rule{
		{Tenant: "T", Name: "A"},
	}

	info := OrganizeSingleTenantRules(input)
	assert.Empty(t, info.EntryPoints)
	assert.Empty(t, info.Entities)
	assert.Len(t, info.Rules, 1)
}

func TestOrganizeSingleTenantRules_DuplicateKeptTwice(t *testing.T) {
	rule := models.Rule{Tenant: "T", Name: "A", EntryPoints: []string{"amr"}}
	info := OrganizeSingleTenantRules([]models.Rule{rule, rule})

	assert.Equal(t, []string{"amr"}, info.EntryPoints)
	assert.Len(t, info.Rules, 2)
}

func TestTenantRulesInfo_HasEntryPoint(t *testing.T) {
	info := OrganizeSingleTenantRules([]models.Rule{
		{Tenant: "T", Name: "A", EntryPoints: []string{"amr"}},
	})

	assert.True(t, info.HasEntryPoint("amr"))
	assert.False(t, info.HasEntryPoint("scada"))
}
