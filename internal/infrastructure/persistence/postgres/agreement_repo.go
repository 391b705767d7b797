// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
)

// AgreementRepository 使用协议仓储实现
type AgreementRepository struct {
	client *Client
}

// NewAgreementRepository 创建使用协议仓储
func NewAgreementRepository(client *Client) *AgreementRepository {
	return &AgreementRepository{client: client}
}

// GetByProvider 获取指定提供商的协议，不存在时返回 (nil, nil)
func (r *AgreementRepository) GetByProvider(ctx context.Context, provider entity.Provider) (*entity.ComplianceAgreement, error) {
	ctx, span := tracer.Start(ctx, "postgres.AgreementRepository.GetByProvider")
	defer span.End()

	var agreement entity.ComplianceAgreement
	err := r.client.db.WithContext(ctx).
		Order("expires_at DESC").
		First(&agreement, "provider = ?", provider).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get agreement for %s: %w", provider, err)
	}
	return &agreement, nil
}

// List 获取全部协议
func (r *AgreementRepository) List(ctx context.Context) ([]*entity.ComplianceAgreement, error) {
	ctx, span := tracer.Start(ctx, "postgres.AgreementRepository.List")
	defer span.End()

	var agreements []*entity.ComplianceAgreement
	if err := r.client.db.WithContext(ctx).
		Order("provider ASC, expires_at DESC").
		Find(&agreements).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list agreements: %w", err)
	}
	return agreements, nil
}
