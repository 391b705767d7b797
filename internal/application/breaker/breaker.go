// Package breaker 提供按提供商隔离的熔断器
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
	apperrors "github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/errors"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/logger"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/metrics"
)

// providerState 单个提供商的熔断状态。
// 状态只能通过熔断器自身的转移规则或显式 force 操作变更。
type providerState struct {
	state               State
	consecutiveFailures int
	totalSuccesses      int64
	totalFailures       int64
	rejections          int64
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	stateEnteredAt      time.Time
	halfOpenInFlight    int
}

// CircuitBreaker 按提供商维护独立的熔断状态机。
// 提供商之间完全隔离：A 的失败不影响 B 的状态或计数。
// 状态转移是 (state, stateEnteredAt, now, recoveryTimeout) 的纯函数，
// 在 Execute 时惰性计算，没有后台定时器。
type CircuitBreaker struct {
	mu        sync.RWMutex
	providers map[entity.Provider]*providerState
	cfg       Config
	now       func() time.Time
	destroyed bool
}

// New 创建熔断器，未设置的配置项使用显式默认值
func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{
		providers: make(map[entity.Provider]*providerState),
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// ensure 惰性创建提供商状态（调用方需持有写锁）
func (b *CircuitBreaker) ensure(provider entity.Provider) *providerState {
	st, ok := b.providers[provider]
	if !ok {
		st = &providerState{
			state:          StateClosed,
			stateEnteredAt: b.now(),
		}
		b.providers[provider] = st
	}
	return st
}

// transition 执行状态转移并更新指标（调用方需持有写锁）
func (b *CircuitBreaker) transition(provider entity.Provider, st *providerState, to State) {
	if st.state == to {
		return
	}
	st.state = to
	st.stateEnteredAt = b.now()
	if to == StateHalfOpen {
		st.halfOpenInFlight = 0
	}

	metrics.CircuitTransitionsTotal.WithLabelValues(provider.String(), string(to)).Inc()
	metrics.CircuitState.WithLabelValues(provider.String()).Set(stateGaugeValue(to))
}

func stateGaugeValue(s State) float64 {
	switch s {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

// refresh 惰性执行 open -> half_open 转移（调用方需持有写锁）
func (b *CircuitBreaker) refresh(provider entity.Provider, st *providerState) {
	if st.state == StateOpen && b.now().Sub(st.stateEnteredAt) >= b.cfg.RecoveryTimeout {
		b.transition(provider, st, StateHalfOpen)
	}
}

// Execute 执行被熔断器保护的提供商调用。
// open 状态下直接拒绝且不调用 op；调用方可通过 IsCircuitOpen
// 区分“熔断拒绝”与“调用失败”。
func (b *CircuitBreaker) Execute(ctx context.Context, provider entity.Provider, op Operation) (any, error) {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return nil, apperrors.New(apperrors.CodeServiceUnavailable, "circuit breaker destroyed")
	}

	st := b.ensure(provider)
	b.refresh(provider, st)

	isProbe := false
	switch st.state {
	case StateOpen:
		st.rejections++
		b.mu.Unlock()
		metrics.CircuitRejectionsTotal.WithLabelValues(provider.String()).Inc()
		return nil, openError(provider)
	case StateHalfOpen:
		if st.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			st.rejections++
			b.mu.Unlock()
			metrics.CircuitRejectionsTotal.WithLabelValues(provider.String()).Inc()
			return nil, openError(provider)
		}
		st.halfOpenInFlight++
		isProbe = true
	}
	b.mu.Unlock()

	result, err := op(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	if isProbe && st.halfOpenInFlight > 0 {
		st.halfOpenInFlight--
	}

	if err != nil {
		b.recordFailure(ctx, provider, st)
		return nil, apperrors.Wrap(err, apperrors.CodeProviderError,
			fmt.Sprintf("provider %s operation failed", provider))
	}

	b.recordSuccess(provider, st)
	return result, nil
}

// recordFailure 记录失败并评估转移（调用方需持有写锁）
func (b *CircuitBreaker) recordFailure(ctx context.Context, provider entity.Provider, st *providerState) {
	st.totalFailures++
	st.consecutiveFailures++
	st.lastFailureAt = b.now()

	// 半开探测失败立即重新熔断；closed 下达到阈值熔断
	if st.state == StateHalfOpen {
		b.transition(provider, st, StateOpen)
		logger.Warn(ctx, "circuit breaker reopened after half-open probe failure",
			"provider", provider.String())
		return
	}
	if st.state == StateClosed && st.consecutiveFailures >= b.cfg.FailureThreshold {
		b.transition(provider, st, StateOpen)
		logger.Warn(ctx, "circuit breaker opened",
			"provider", provider.String(),
			"consecutive_failures", st.consecutiveFailures,
		)
	}
}

// recordSuccess 记录成功（调用方需持有写锁）。
// 半开状态下单次成功即完全闭合。
func (b *CircuitBreaker) recordSuccess(provider entity.Provider, st *providerState) {
	st.totalSuccesses++
	st.consecutiveFailures = 0
	st.lastSuccessAt = b.now()

	if st.state == StateHalfOpen {
		b.transition(provider, st, StateClosed)
	}
}

// IsAvailable 检查提供商当前是否可被调用。
// 只读操作，不触发状态转移；open -> half_open 的实际转移发生在
// 下一次 Execute 中。
func (b *CircuitBreaker) IsAvailable(provider entity.Provider) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st, ok := b.providers[provider]
	if !ok {
		return true
	}

	switch st.state {
	case StateClosed:
		return true
	case StateOpen:
		return b.now().Sub(st.stateEnteredAt) >= b.cfg.RecoveryTimeout
	case StateHalfOpen:
		return st.halfOpenInFlight < b.cfg.HalfOpenMaxCalls
	default:
		return false
	}
}

// Metrics 返回提供商的熔断指标快照
func (b *CircuitBreaker) Metrics(provider entity.Provider) Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st, ok := b.providers[provider]
	if !ok {
		return Metrics{
			Provider: provider,
			State:    StateClosed,
			Uptime:   1,
		}
	}

	m := Metrics{
		Provider:            provider,
		State:               st.state,
		TotalSuccesses:      st.totalSuccesses,
		TotalFailures:       st.totalFailures,
		ConsecutiveFailures: st.consecutiveFailures,
		Rejections:          st.rejections,
		LastSuccessAt:       st.lastSuccessAt,
		LastFailureAt:       st.lastFailureAt,
		StateEnteredAt:      st.stateEnteredAt,
	}

	total := st.totalSuccesses + st.totalFailures
	if total > 0 {
		m.Uptime = float64(st.totalSuccesses) / float64(total)
		m.FailureRate = float64(st.totalFailures) / float64(total)
	} else {
		m.Uptime = 1
	}
	return m
}

// AvailableProviders 返回当前可调用的已知提供商，供调用方做降级选择
func (b *CircuitBreaker) AvailableProviders() []entity.Provider {
	known := entity.KnownProviders()
	available := make([]entity.Provider, 0, len(known))
	for _, p := range known {
		if b.IsAvailable(p) {
			available = append(available, p)
		}
	}
	return available
}

// ForceOpen 手动熔断指定提供商（运维/测试用）
func (b *CircuitBreaker) ForceOpen(provider entity.Provider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.ensure(provider)
	b.transition(provider, st, StateOpen)
}

// ForceClose 手动闭合指定提供商，保留历史计数
func (b *CircuitBreaker) ForceClose(provider entity.Provider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.ensure(provider)
	st.consecutiveFailures = 0
	b.transition(provider, st, StateClosed)
}

// Reset 清零指定提供商的全部计数并回到 closed
func (b *CircuitBreaker) Reset(provider entity.Provider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers[provider] = &providerState{
		state:          StateClosed,
		stateEnteredAt: b.now(),
	}
	metrics.CircuitState.WithLabelValues(provider.String()).Set(0)
}

// Destroy 释放熔断器。没有后台定时器需要清理，标记后续调用拒绝。
// 幂等，可安全重复调用。
func (b *CircuitBreaker) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = true
}

// openError 构造熔断拒绝错误
func openError(provider entity.Provider) *apperrors.AppError {
	return apperrors.New(apperrors.CodeCircuitOpen,
		fmt.Sprintf("circuit breaker is OPEN for provider %s", provider))
}

// IsCircuitOpen 检查错误是否为熔断拒绝（未实际调用提供商）
func IsCircuitOpen(err error) bool {
	appErr, ok := err.(*apperrors.AppError)
	return ok && appErr.Code == apperrors.CodeCircuitOpen
}
