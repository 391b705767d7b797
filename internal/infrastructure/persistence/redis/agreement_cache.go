package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/repository"
)

// DefaultAgreementTTL 协议缓存默认有效期
const DefaultAgreementTTL = 5 * time.Minute

// cachedAgreement 缓存载荷。协议缺失（(nil, nil)）同样需要缓存，
// 否则缺失提供商的每次请求都会穿透到数据库。
type cachedAgreement struct {
	Found     bool                        `json:"found"`
	Agreement *entity.ComplianceAgreement `json:"agreement,omitempty"`
}

// CachedAgreementRepository 带 Redis 读穿缓存的协议仓储装饰器
type CachedAgreementRepository struct {
	inner repository.AgreementRepository
	cache *Cache
	ttl   time.Duration
}

// NewCachedAgreementRepository 创建协议缓存仓储
func NewCachedAgreementRepository(inner repository.AgreementRepository, cache *Cache, ttl time.Duration) *CachedAgreementRepository {
	if ttl <= 0 {
		ttl = DefaultAgreementTTL
	}
	return &CachedAgreementRepository{
		inner: inner,
		cache: cache,
		ttl:   ttl,
	}
}

func agreementKey(provider entity.Provider) string {
	return fmt.Sprintf("agreement:%s", provider)
}

// GetByProvider 获取指定提供商的协议，不存在时返回 (nil, nil)
func (r *CachedAgreementRepository) GetByProvider(ctx context.Context, provider entity.Provider) (*entity.ComplianceAgreement, error) {
	bytes, err := r.cache.GetOrLoadSafe(ctx, agreementKey(provider), r.ttl, func() (interface{}, error) {
		agreement, err := r.inner.GetByProvider(ctx, provider)
		if err != nil {
			return nil, err
		}
		return cachedAgreement{Found: agreement != nil, Agreement: agreement}, nil
	})
	if err != nil {
		return nil, err
	}

	var cached cachedAgreement
	if err := json.Unmarshal(bytes, &cached); err != nil {
		return nil, fmt.Errorf("failed to decode cached agreement: %w", err)
	}
	if !cached.Found {
		return nil, nil
	}
	return cached.Agreement, nil
}

// List 获取全部协议，汇总视图走库保证新鲜度
func (r *CachedAgreementRepository) List(ctx context.Context) ([]*entity.ComplianceAgreement, error) {
	return r.inner.List(ctx)
}

// Invalidate 使指定提供商的协议缓存失效
func (r *CachedAgreementRepository) Invalidate(ctx context.Context, providers ...entity.Provider) error {
	keys := make([]string, 0, len(providers))
	for _, p := range providers {
		keys = append(keys, agreementKey(p))
	}
	if len(keys) == 0 {
		return nil
	}
	return r.cache.Delete(ctx, keys...)
}
