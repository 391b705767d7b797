package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/config"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
	apperrors "github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/errors"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/tracer"
)

// EinoInvoker 通过 Eino ChatModel 执行实际的提供商调用
type EinoInvoker struct {
	factory *EinoFactory
	config  *config.AIConfig
}

// NewEinoInvoker 创建基于 Eino 的调用器
func NewEinoInvoker(factory *EinoFactory, cfg *config.Config) *EinoInvoker {
	return &EinoInvoker{
		factory: factory,
		config:  &cfg.AI,
	}
}

// Invoke 调用指定提供商完成一次生成
func (iv *EinoInvoker) Invoke(ctx context.Context, provider entity.Provider, req *entity.AiRequest) (*entity.AiResponse, error) {
	ctx, span := tracer.Start(ctx, "llm.Invoke")
	defer span.End()

	chatModel, err := iv.factory.Get(ctx, provider)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderNotFound,
			fmt.Sprintf("no chat model for provider %s", provider))
	}

	outMsg, err := chatModel.Generate(ctx, formatMessages(req), buildModelOptions(req)...)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if outMsg == nil {
		return nil, fmt.Errorf("empty llm response from %s", provider)
	}

	content := strings.TrimSpace(outMsg.Content)
	if content == "" {
		return nil, fmt.Errorf("empty content from %s", provider)
	}

	resp := &entity.AiResponse{
		RequestID: req.ID,
		Content:   content,
		Metadata: entity.ResponseMetadata{
			Provider: provider,
			Model:    iv.modelName(provider),
		},
		CreatedAt: time.Now().UTC(),
	}
	if outMsg.ResponseMeta != nil && outMsg.ResponseMeta.Usage != nil {
		usage := outMsg.ResponseMeta.Usage
		resp.Metadata.Usage = &entity.TokenUsage{
			PromptTokens: usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
			TotalTokens:  usage.PromptTokens + usage.CompletionTokens,
		}
	}
	return resp, nil
}

func (iv *EinoInvoker) modelName(provider entity.Provider) string {
	if cfg, ok := iv.config.Providers[provider.String()]; ok {
		return cfg.Model
	}
	return ""
}

func formatMessages(req *entity.AiRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, 2)
	if system := strings.TrimSpace(req.Context["system"]); system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	msgs = append(msgs, schema.UserMessage(req.Prompt))
	return msgs
}

func buildModelOptions(req *entity.AiRequest) []model.Option {
	opts := make([]model.Option, 0, 2)
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(float32(*req.Temperature)))
	}
	if req.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*req.MaxTokens))
	}
	return opts
}
