// Package entity 定义领域实体
package entity

import (
	"strings"
)

// Provider AI 提供商标识
type Provider string

// 已知提供商（部署级封闭列表）
const (
	ProviderBedrock Provider = "bedrock"
	ProviderGoogle  Provider = "google"
	ProviderMeta    Provider = "meta"
	ProviderUnknown Provider = "unknown"
)

// KnownProviders 返回封闭的提供商列表（不含 unknown）
func KnownProviders() []Provider {
	return []Provider{ProviderBedrock, ProviderGoogle, ProviderMeta}
}

// ParseProvider 解析提供商标识，未知值归一化为 unknown
func ParseProvider(s string) Provider {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderBedrock:
		return ProviderBedrock
	case ProviderGoogle:
		return ProviderGoogle
	case ProviderMeta:
		return ProviderMeta
	default:
		return ProviderUnknown
	}
}

// IsKnown 检查是否为已知提供商
func (p Provider) IsKnown() bool {
	switch p {
	case ProviderBedrock, ProviderGoogle, ProviderMeta:
		return true
	default:
		return false
	}
}

// String 实现 fmt.Stringer
func (p Provider) String() string {
	return string(p)
}
