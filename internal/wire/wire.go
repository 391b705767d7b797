// Package wire 提供依赖注入装配
package wire

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/breaker"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/orchestrator"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/telemetry"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/config"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/repository"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/infrastructure/llm"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/infrastructure/persistence/postgres"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/infrastructure/persistence/redis"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/interfaces/http/handler"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/interfaces/http/router"
)

// App 装配完成的应用
type App struct {
	Router       *router.Router
	Breaker      *breaker.CircuitBreaker
	Compliance   *compliance.Integration
	Telemetry    *telemetry.Collector
	Orchestrator *orchestrator.Orchestrator
}

// Engine 返回 HTTP 引擎
func (a *App) Engine() *gin.Engine {
	return a.Router.Engine()
}

// InitializeApp 初始化整个应用
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	// 数据层
	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		pgClient.Close()
		return nil, nil, err
	}

	cache := redis.NewCache(redisClient)
	rateLimiter := redis.NewRateLimiter(redisClient)

	var agreementRepo repository.AgreementRepository = postgres.NewAgreementRepository(pgClient)
	agreementRepo = redis.NewCachedAgreementRepository(agreementRepo, cache, cfg.Compliance.CacheTTL)

	// 核心组件
	cb := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	})

	ci := compliance.New(agreementRepo, complianceConfig(cfg))
	tc := telemetry.NewCollector(cfg.Telemetry.MaxMetrics)

	// 提供商接入
	einoFactory := llm.NewEinoFactory(cfg)
	invoker := llm.NewEinoInvoker(einoFactory, cfg)

	orch := orchestrator.New(cb, ci, tc, invoker, orchestratorConfig(cfg))

	// HTTP 层
	handlers := router.Handlers{
		Health:     handler.NewHealthHandler(pgClient, redisClient),
		Ai:         handler.NewAiHandler(orch),
		Provider:   handler.NewProviderHandler(cb),
		Compliance: handler.NewComplianceHandler(ci),
		Telemetry:  handler.NewTelemetryHandler(tc),
	}

	r := router.New(cfg, rateLimiter, handlers)

	app := &App{
		Router:       r,
		Breaker:      cb,
		Compliance:   ci,
		Telemetry:    tc,
		Orchestrator: orch,
	}

	cleanup := func() {
		cb.Destroy()
		_ = redisClient.Close()
		_ = pgClient.Close()
	}
	return app, cleanup, nil
}

// complianceConfig 转换合规配置
func complianceConfig(cfg *config.Config) compliance.Config {
	providerScores := make(map[entity.Provider]compliance.ScoreThresholds, len(cfg.Compliance.ProviderScores))
	for name, scores := range cfg.Compliance.ProviderScores {
		provider := entity.ParseProvider(name)
		if !provider.IsKnown() {
			continue
		}
		providerScores[provider] = compliance.ScoreThresholds{
			WarnScore: scores.WarnScore,
			OKScore:   scores.OKScore,
		}
	}
	return compliance.Config{
		EnforceCompliance:    cfg.Compliance.EnforceCompliance,
		BlockOnViolations:    cfg.Compliance.BlockOnViolations,
		WarningThresholdDays: cfg.Compliance.WarningThresholdDays,
		WarnScore:            cfg.Compliance.WarnScore,
		OKScore:              cfg.Compliance.OKScore,
		ProviderScores:       providerScores,
	}
}

// orchestratorConfig 转换编排器配置
func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	chain := make([]entity.Provider, 0, len(cfg.AI.FallbackChain))
	for _, name := range cfg.AI.FallbackChain {
		provider := entity.ParseProvider(name)
		if provider.IsKnown() {
			chain = append(chain, provider)
		}
	}

	modelFamilies := make(map[entity.Provider]string, len(cfg.AI.Providers))
	costs := make(map[entity.Provider]float64, len(cfg.AI.Providers))
	for name, providerCfg := range cfg.AI.Providers {
		provider := entity.ParseProvider(name)
		if !provider.IsKnown() {
			continue
		}
		modelFamilies[provider] = providerCfg.ModelFamily
		if providerCfg.CostPerKTokens > 0 {
			costs[provider] = providerCfg.CostPerKTokens
		}
	}

	return orchestrator.Config{
		DefaultProvider: entity.ParseProvider(cfg.AI.DefaultProvider),
		FallbackChain:   chain,
		Region:          cfg.AI.Region,
		ModelFamilies:   modelFamilies,
		CostPerKTokens:  costs,
	}
}
