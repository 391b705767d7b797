// Package llm 基于 Eino 的 AI 提供商接入层
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/config"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
)

// EinoFactory 管理按提供商划分的 Eino ChatModel 客户端实例
type EinoFactory struct {
	config *config.AIConfig
	models map[entity.Provider]model.BaseChatModel
	mu     sync.RWMutex
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config: &cfg.AI,
		models: make(map[entity.Provider]model.BaseChatModel),
	}
}

// Get 获取指定提供商的 ChatModel，未指定时返回默认提供商的客户端
func (f *EinoFactory) Get(ctx context.Context, provider entity.Provider) (model.BaseChatModel, error) {
	if provider == "" || provider == entity.ProviderUnknown {
		provider = entity.ParseProvider(f.config.DefaultProvider)
	}

	f.mu.RLock()
	m, ok := f.models[provider]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = f.models[provider]; ok {
		return m, nil
	}

	providerCfg, ok := f.config.Providers[provider.String()]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in AI config", provider)
	}

	// 所有提供商都走 OpenAI 兼容端点
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       providerCfg.Model,
		MaxTokens:   &providerCfg.MaxTokens,
		Temperature: ptrFloat32(float32(providerCfg.Temperature)),
		Timeout:     providerCfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", provider, err)
	}

	f.models[provider] = chatModel
	return chatModel, nil
}

// Default 返回默认提供商的 ChatModel
func (f *EinoFactory) Default(ctx context.Context) (model.BaseChatModel, error) {
	return f.Get(ctx, entity.ProviderUnknown)
}

func ptrFloat32(f float32) *float32 {
	return &f
}
