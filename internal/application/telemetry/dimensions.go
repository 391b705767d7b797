// Package telemetry 提供受限基数的运行指标采集
package telemetry

import (
	"strings"
)

// Dimensions 固定的低基数维度元组。
// 所有字符串维度在写入时按白名单清洗，基数永不无界增长。
type Dimensions struct {
	Provider      string `json:"provider"`
	Intent        string `json:"intent"`
	Role          string `json:"role"`
	Region        string `json:"region"`
	ToolsUsed     bool   `json:"tools_used"`
	CacheEligible bool   `json:"cache_eligible"`
	ModelFamily   string `json:"model_family"`
}

// DimensionDefault 白名单外取值的安全默认值
const DimensionDefault = "unknown"

// 各维度的封闭白名单
var (
	allowedProviders = map[string]struct{}{
		"bedrock": {},
		"google":  {},
		"meta":    {},
	}
	allowedIntents = map[string]struct{}{
		"generation": {},
		"rag_cached": {},
	}
	allowedRoles = map[string]struct{}{
		"orchestrator":        {},
		"user-worker":         {},
		"audience-specialist": {},
	}
	allowedRegions = map[string]struct{}{
		"eu-central-1": {},
		"eu-west-1":    {},
		"us-east-1":    {},
	}
	allowedModelFamilies = map[string]struct{}{
		"claude": {},
		"gemini": {},
		"llama":  {},
	}
)

// sanitizeValue 将取值清洗进白名单，未命中时返回安全默认值
func sanitizeValue(v string, allowed map[string]struct{}) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if _, ok := allowed[v]; ok {
		return v
	}
	return DimensionDefault
}

// sanitize 清洗整个维度元组
func sanitize(d Dimensions) Dimensions {
	return Dimensions{
		Provider:      sanitizeValue(d.Provider, allowedProviders),
		Intent:        sanitizeValue(d.Intent, allowedIntents),
		Role:          sanitizeValue(d.Role, allowedRoles),
		Region:        sanitizeValue(d.Region, allowedRegions),
		ToolsUsed:     d.ToolsUsed,
		CacheEligible: d.CacheEligible,
		ModelFamily:   sanitizeValue(d.ModelFamily, allowedModelFamilies),
	}
}

// dimensionValue 按维度键取字符串化的值
func dimensionValue(d Dimensions, key string) (string, bool) {
	switch key {
	case "provider":
		return d.Provider, true
	case "intent":
		return d.Intent, true
	case "role":
		return d.Role, true
	case "region":
		return d.Region, true
	case "tools_used":
		return boolString(d.ToolsUsed), true
	case "cache_eligible":
		return boolString(d.CacheEligible), true
	case "model_family":
		return d.ModelFamily, true
	default:
		return "", false
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// allowlistSizes 各受限维度的白名单容量（含安全默认值），
// 用于基数自检的上界说明。
func allowlistSizes() map[string]int {
	return map[string]int{
		"provider":     len(allowedProviders) + 1,
		"intent":       len(allowedIntents) + 1,
		"role":         len(allowedRoles) + 1,
		"region":       len(allowedRegions) + 1,
		"model_family": len(allowedModelFamilies) + 1,
	}
}
