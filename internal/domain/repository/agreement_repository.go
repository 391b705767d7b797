// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
)

// AgreementRepository 使用协议仓储接口。
// 协议数据由外部系统维护，本核心只读。
type AgreementRepository interface {
	// GetByProvider 获取指定提供商的协议，不存在时返回 (nil, nil)
	GetByProvider(ctx context.Context, provider entity.Provider) (*entity.ComplianceAgreement, error)

	// List 获取全部协议
	List(ctx context.Context) ([]*entity.ComplianceAgreement, error)
}
