// Package entity 定义领域实体
package entity

import (
	"time"
)

// AiRequest 进入编排核心的 AI 请求
type AiRequest struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	// Context 附加的业务上下文（不含受限维度）
	Context map[string]string `json:"context,omitempty"`

	// Provider 期望的提供商，为空时使用默认提供商
	Provider string `json:"provider,omitempty"`
	// Intent 请求意图：generation / rag_cached
	Intent string `json:"intent,omitempty"`
	// Role 请求角色：orchestrator / user-worker / audience-specialist
	Role string `json:"role,omitempty"`
	// Region 目标区域
	Region string `json:"region,omitempty"`

	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// TokenUsage 一次调用的 Token 用量
type TokenUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ComplianceMetadata 附加在响应上的合规元数据
type ComplianceMetadata struct {
	Checked         bool            `json:"checked"`
	Score           int             `json:"score"`
	AgreementStatus AgreementStatus `json:"agreement_status"`
}

// ResponseMetadata AI 响应的元数据
type ResponseMetadata struct {
	Provider   Provider            `json:"provider"`
	Model      string              `json:"model,omitempty"`
	LatencyMs  int64               `json:"latency_ms"`
	CacheHit   bool                `json:"cache_hit"`
	Usage      *TokenUsage         `json:"usage,omitempty"`
	Compliance *ComplianceMetadata `json:"compliance,omitempty"`
	Fallbacks  []string            `json:"fallbacks,omitempty"`
}

// AiResponse 编排核心返回的 AI 响应
type AiResponse struct {
	RequestID string           `json:"request_id"`
	Content   string           `json:"content"`
	Metadata  ResponseMetadata `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
}
