package dto

import (
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
)

// GenerateRequest AI 生成请求
type GenerateRequest struct {
	Prompt   string            `json:"prompt" binding:"required"`
	Context  map[string]string `json:"context,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Intent   string            `json:"intent,omitempty"`
	Role     string            `json:"role,omitempty"`
	Region   string            `json:"region,omitempty"`

	MaxTokens   *int     `json:"max_tokens,omitempty" binding:"omitempty,gt=0"`
	Temperature *float64 `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
}

// ToAiRequest 转换为领域请求
func (r *GenerateRequest) ToAiRequest() *entity.AiRequest {
	return &entity.AiRequest{
		Prompt:      r.Prompt,
		Context:     r.Context,
		Provider:    r.Provider,
		Intent:      r.Intent,
		Role:        r.Role,
		Region:      r.Region,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	}
}

// ComplianceInfo 响应中的合规信息
type ComplianceInfo struct {
	Checked         bool   `json:"checked"`
	Score           int    `json:"score"`
	AgreementStatus string `json:"agreement_status"`
}

// TokenUsageInfo 响应中的 Token 用量
type TokenUsageInfo struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// GenerateResponse AI 生成响应
type GenerateResponse struct {
	RequestID  string          `json:"request_id"`
	Content    string          `json:"content"`
	Provider   string          `json:"provider"`
	Model      string          `json:"model,omitempty"`
	LatencyMs  int64           `json:"latency_ms"`
	CacheHit   bool            `json:"cache_hit"`
	Usage      *TokenUsageInfo `json:"usage,omitempty"`
	Compliance *ComplianceInfo `json:"compliance,omitempty"`
	Fallbacks  []string        `json:"fallbacks,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ToGenerateResponse 转换领域响应为 DTO
func ToGenerateResponse(resp *entity.AiResponse) *GenerateResponse {
	out := &GenerateResponse{
		RequestID: resp.RequestID,
		Content:   resp.Content,
		Provider:  resp.Metadata.Provider.String(),
		Model:     resp.Metadata.Model,
		LatencyMs: resp.Metadata.LatencyMs,
		CacheHit:  resp.Metadata.CacheHit,
		Fallbacks: resp.Metadata.Fallbacks,
		CreatedAt: resp.CreatedAt,
	}
	if usage := resp.Metadata.Usage; usage != nil {
		out.Usage = &TokenUsageInfo{
			PromptTokens: usage.PromptTokens,
			OutputTokens: usage.OutputTokens,
			TotalTokens:  usage.TotalTokens,
		}
	}
	if comp := resp.Metadata.Compliance; comp != nil {
		out.Compliance = &ComplianceInfo{
			Checked:         comp.Checked,
			Score:           comp.Score,
			AgreementStatus: string(comp.AgreementStatus),
		}
	}
	return out
}
