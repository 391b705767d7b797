package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/breaker"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/compliance"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/application/telemetry"
	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
	apperrors "github.com/matbakh-app/matbakh-visibility-boost-sub015/pkg/errors"
)

type memoryAgreementRepo struct {
	agreements map[entity.Provider]*entity.ComplianceAgreement
}

func (r *memoryAgreementRepo) GetByProvider(_ context.Context, provider entity.Provider) (*entity.ComplianceAgreement, error) {
	return r.agreements[provider], nil
}

func (r *memoryAgreementRepo) List(_ context.Context) ([]*entity.ComplianceAgreement, error) {
	out := make([]*entity.ComplianceAgreement, 0, len(r.agreements))
	for _, a := range r.agreements {
		out = append(out, a)
	}
	return out, nil
}

type fakeInvoker struct {
	calls map[entity.Provider]int
	fail  map[entity.Provider]error
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		calls: make(map[entity.Provider]int),
		fail:  make(map[entity.Provider]error),
	}
}

func (f *fakeInvoker) Invoke(_ context.Context, provider entity.Provider, req *entity.AiRequest) (*entity.AiResponse, error) {
	f.calls[provider]++
	if err := f.fail[provider]; err != nil {
		return nil, err
	}
	return &entity.AiResponse{
		Content: "generated for " + req.Prompt,
		Metadata: entity.ResponseMetadata{
			Model: "test-model",
			Usage: &entity.TokenUsage{PromptTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
		CreatedAt: time.Now(),
	}, nil
}

func activeAgreements(providers ...entity.Provider) map[entity.Provider]*entity.ComplianceAgreement {
	out := make(map[entity.Provider]*entity.ComplianceAgreement)
	for _, p := range providers {
		out[p] = &entity.ComplianceAgreement{
			ID:        "agr-" + p.String(),
			Provider:  p,
			Status:    entity.AgreementStatusActive,
			ExpiresAt: time.Now().Add(365 * 24 * time.Hour),
		}
	}
	return out
}

func newTestOrchestrator(t *testing.T, repo *memoryAgreementRepo, invoker ProviderInvoker) *Orchestrator {
	t.Helper()
	cb := breaker.New(breaker.Config{FailureThreshold: 2, RecoveryTimeout: time.Minute, HalfOpenMaxCalls: 1})
	ci := compliance.New(repo, compliance.Config{EnforceCompliance: true, BlockOnViolations: true})
	tc := telemetry.NewCollector(100)
	return New(cb, ci, tc, invoker, Config{
		DefaultProvider: entity.ProviderBedrock,
		FallbackChain:   []entity.Provider{entity.ProviderBedrock, entity.ProviderGoogle, entity.ProviderMeta},
		Region:          "eu-central-1",
		ModelFamilies: map[entity.Provider]string{
			entity.ProviderBedrock: "claude",
			entity.ProviderGoogle:  "gemini",
			entity.ProviderMeta:    "llama",
		},
		CostPerKTokens: map[entity.Provider]float64{entity.ProviderBedrock: 0.01},
	})
}

func TestGenerate_Success(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: activeAgreements(entity.KnownProviders()...)}
	invoker := newFakeInvoker()
	o := newTestOrchestrator(t, repo, invoker)

	resp, err := o.Generate(context.Background(), &entity.AiRequest{Prompt: "hello", Intent: "generation", Role: "orchestrator"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.RequestID == "" {
		t.Error("expected a generated request id")
	}
	if resp.Metadata.Provider != entity.ProviderBedrock {
		t.Errorf("provider = %s, want bedrock", resp.Metadata.Provider)
	}
	if resp.Metadata.Compliance == nil || !resp.Metadata.Compliance.Checked {
		t.Fatal("expected compliance metadata on response")
	}
	if resp.Metadata.Compliance.AgreementStatus != entity.AgreementStatusActive {
		t.Errorf("agreement status = %s, want active", resp.Metadata.Compliance.AgreementStatus)
	}
	if len(resp.Metadata.Fallbacks) != 0 {
		t.Errorf("fallbacks = %v, want none", resp.Metadata.Fallbacks)
	}

	latencies := o.telemetry.GetMetrics(time.Minute)
	if len(latencies) == 0 {
		t.Error("expected telemetry metrics after a successful call")
	}
}

func TestGenerate_FallbackOnProviderFailure(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: activeAgreements(entity.KnownProviders()...)}
	invoker := newFakeInvoker()
	invoker.fail[entity.ProviderBedrock] = errors.New("upstream 500")
	o := newTestOrchestrator(t, repo, invoker)

	resp, err := o.Generate(context.Background(), &entity.AiRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Metadata.Provider != entity.ProviderGoogle {
		t.Errorf("provider = %s, want google after fallback", resp.Metadata.Provider)
	}
	if len(resp.Metadata.Fallbacks) != 1 || resp.Metadata.Fallbacks[0] != "bedrock" {
		t.Errorf("fallbacks = %v, want [bedrock]", resp.Metadata.Fallbacks)
	}
}

func TestGenerate_ComplianceViolationNotRetried(t *testing.T) {
	// 仅 google 有协议，请求的 bedrock 缺失协议
	repo := &memoryAgreementRepo{agreements: activeAgreements(entity.ProviderGoogle)}
	invoker := newFakeInvoker()
	o := newTestOrchestrator(t, repo, invoker)

	_, err := o.Generate(context.Background(), &entity.AiRequest{Prompt: "hello", Provider: "bedrock"})
	if err == nil {
		t.Fatal("expected compliance violation error")
	}
	if !compliance.IsComplianceViolation(err) {
		t.Errorf("expected compliance violation, got %v", err)
	}
	if !strings.Contains(err.Error(), "Compliance violation") {
		t.Errorf("error message = %q, want it to mention the violation", err.Error())
	}
	if total := len(invoker.calls); total != 0 {
		t.Errorf("invoker was called %d times, violations must not reach providers", total)
	}
}

func TestGenerate_CircuitOpenFallsBack(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: activeAgreements(entity.KnownProviders()...)}
	invoker := newFakeInvoker()
	o := newTestOrchestrator(t, repo, invoker)
	o.breaker.ForceOpen(entity.ProviderBedrock)

	resp, err := o.Generate(context.Background(), &entity.AiRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Metadata.Provider != entity.ProviderGoogle {
		t.Errorf("provider = %s, want google while bedrock circuit is open", resp.Metadata.Provider)
	}
	if invoker.calls[entity.ProviderBedrock] != 0 {
		t.Error("open circuit must not invoke the provider")
	}
}

func TestGenerate_AllProvidersFailed(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: activeAgreements(entity.KnownProviders()...)}
	invoker := newFakeInvoker()
	for _, p := range entity.KnownProviders() {
		invoker.fail[p] = errors.New("upstream down")
	}
	o := newTestOrchestrator(t, repo, invoker)

	_, err := o.Generate(context.Background(), &entity.AiRequest{Prompt: "hello"})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeAllProvidersFailed {
		t.Errorf("code = %s, want %s", appErr.Code, apperrors.CodeAllProvidersFailed)
	}
}

func TestGenerate_EmptyPromptRejected(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: activeAgreements(entity.KnownProviders()...)}
	o := newTestOrchestrator(t, repo, newFakeInvoker())

	_, err := o.Generate(context.Background(), &entity.AiRequest{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if apperrors.AsAppError(err).Code != apperrors.CodeInvalidParam {
		t.Errorf("code = %s, want invalid param", apperrors.AsAppError(err).Code)
	}
}

func TestGenerate_UnknownRequestedProviderUsesChain(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: activeAgreements(entity.KnownProviders()...)}
	invoker := newFakeInvoker()
	o := newTestOrchestrator(t, repo, invoker)

	resp, err := o.Generate(context.Background(), &entity.AiRequest{Prompt: "hello", Provider: "someco"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Metadata.Provider != entity.ProviderBedrock {
		t.Errorf("provider = %s, want chain head bedrock", resp.Metadata.Provider)
	}
}
