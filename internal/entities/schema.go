package entities

import (
	"encoding/json"
	"fmt"
	"strings"
)

// schemaDocument 实体图谱 schema 响应
type schemaDocument struct {
	Definitions []struct {
		EntityName string `json:"entityName"`
		Properties []struct {
			PropertyName string `json:"propertyName"`
			DataType     string `json:"dataType"`
		} `json:"properties"`
	} `json:"definitions"`
}

// ParseSchema 解析 schema，返回 实体名 → (字段名 → 数据类型)
func ParseSchema(schemaJSON []byte) (map[string]map[string]string, error) {
	var doc schemaDocument
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	entityFields := make(map[string]map[string]string)
	for _, def := range doc.Definitions {
		if len(def.Properties) == 0 {
			continue
		}
		fields := make(map[string]string, len(def.Properties))
		for _, p := range def.Properties {
			dataType := p.DataType
			if dataType == "" {
				dataType = "unknown"
			}
			fields[p.PropertyName] = dataType
		}
		entityFields[def.EntityName] = fields
	}
	return entityFields, nil
}

// MapResultsToSchema 将原始查询结果按 schema 投影
// schema 之外的字段丢弃；缺失/null 字段省略；类型按 schema 转换：
// integer|int → int，double → float64，boolean → bool，其余 → string
func MapResultsToSchema(resultsJSON []byte, entity string, schemaMap map[string]map[string]string) ([]map[string]any, error) {
	fieldTypes, ok := schemaMap[entity]
	if !ok {
		return nil, nil
	}

	var root struct {
		Results []map[string]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(resultsJSON, &root); err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	mapped := make([]map[string]any, 0, len(root.Results))
	for _, raw := range root.Results {
		node := make(map[string]any)
		for field, dataType := range fieldTypes {
			value, ok := raw[field]
			if !ok || string(value) == "null" {
				continue
			}
			node[field] = convertValue(value, dataType)
		}
		mapped = append(mapped, node)
	}
	return mapped, nil
}

// convertValue 按 schema 类型转换单个字段值
func convertValue(raw json.RawMessage, dataType string) any {
	switch strings.ToLower(dataType) {
	case "integer", "int":
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return int(f)
		}
		return 0
	case "double":
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f
		}
		return 0.0
	case "boolean":
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b
		}
		return false
	default:
		// String、UUID、Date 等一律按字符串处理
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return strings.Trim(string(raw), `"`)
	}
}
