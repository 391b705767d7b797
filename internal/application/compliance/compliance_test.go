package compliance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
)

// memoryAgreementRepo 测试用内存协议仓储
type memoryAgreementRepo struct {
	agreements map[entity.Provider]*entity.ComplianceAgreement
	err        error
}

func (r *memoryAgreementRepo) GetByProvider(ctx context.Context, provider entity.Provider) (*entity.ComplianceAgreement, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.agreements[provider], nil
}

func (r *memoryAgreementRepo) List(ctx context.Context) ([]*entity.ComplianceAgreement, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]*entity.ComplianceAgreement, 0, len(r.agreements))
	for _, a := range r.agreements {
		out = append(out, a)
	}
	return out, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestIntegration(repo *memoryAgreementRepo, cfg Config) *Integration {
	i := New(repo, cfg)
	i.now = func() time.Time { return testNow }
	return i
}

func agreementExpiring(provider entity.Provider, in time.Duration) *entity.ComplianceAgreement {
	return &entity.ComplianceAgreement{
		ID:        "agr-" + provider.String(),
		Provider:  provider,
		Status:    entity.AgreementStatusActive,
		ExpiresAt: testNow.Add(in),
		Terms:     "standard usage terms",
	}
}

func TestPerformComplianceCheck_MissingProvider(t *testing.T) {
	i := newTestIntegration(&memoryAgreementRepo{agreements: map[entity.Provider]*entity.ComplianceAgreement{}}, Config{})

	for _, provider := range []entity.Provider{entity.ProviderUnknown, entity.Provider("totally-bogus")} {
		result := i.PerformComplianceCheck(context.Background(), nil, provider, "req-1")
		if result.Allowed {
			t.Errorf("%s: allowed = true, want false", provider)
		}
		if result.ComplianceScore != 0 {
			t.Errorf("%s: score = %d, want 0", provider, result.ComplianceScore)
		}
		if result.AgreementStatus != entity.AgreementStatusMissing {
			t.Errorf("%s: status = %s, want missing", provider, result.AgreementStatus)
		}
		if len(result.Violations) == 0 || !strings.Contains(result.Violations[0], "No agreement found") {
			t.Errorf("%s: violations = %v, want 'No agreement found'", provider, result.Violations)
		}
	}
}

func TestPerformComplianceCheck_NoAgreementForKnownProvider(t *testing.T) {
	i := newTestIntegration(&memoryAgreementRepo{agreements: map[entity.Provider]*entity.ComplianceAgreement{}}, Config{})

	result := i.PerformComplianceCheck(context.Background(), nil, entity.ProviderBedrock, "req-1")
	if result.Allowed {
		t.Error("allowed = true, want false")
	}
	if result.AgreementStatus != entity.AgreementStatusMissing {
		t.Errorf("status = %s, want missing", result.AgreementStatus)
	}
	if !strings.Contains(strings.Join(result.Violations, " "), "No agreement found for provider bedrock") {
		t.Errorf("violations = %v", result.Violations)
	}
}

func TestPerformComplianceCheck_Expired(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: map[entity.Provider]*entity.ComplianceAgreement{
		entity.ProviderGoogle: agreementExpiring(entity.ProviderGoogle, -48 * time.Hour),
	}}
	i := newTestIntegration(repo, Config{})

	result := i.PerformComplianceCheck(context.Background(), nil, entity.ProviderGoogle, "req-1")
	if result.Allowed {
		t.Error("expired agreement must not be allowed")
	}
	if result.AgreementStatus != entity.AgreementStatusExpired {
		t.Errorf("status = %s, want expired", result.AgreementStatus)
	}
	if len(result.Violations) == 0 {
		t.Error("expected a violation for expired agreement")
	}
}

func TestPerformComplianceCheck_ExpiringSoonWarns(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: map[entity.Provider]*entity.ComplianceAgreement{
		entity.ProviderMeta: agreementExpiring(entity.ProviderMeta, 10 * 24 * time.Hour),
	}}
	i := newTestIntegration(repo, Config{WarningThresholdDays: 30})

	result := i.PerformComplianceCheck(context.Background(), nil, entity.ProviderMeta, "req-1")
	if !result.Allowed {
		t.Error("expiring agreement should still be allowed")
	}
	if result.AgreementStatus != entity.AgreementStatusExpiring {
		t.Errorf("status = %s, want expiring", result.AgreementStatus)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", result.Warnings)
	}
	if len(result.Violations) != 0 {
		t.Errorf("violations = %v, want none", result.Violations)
	}

	// 分数按剩余天数比例降低，但不低于告警下限
	full := i.PerformComplianceCheck(context.Background(), nil, entity.ProviderMeta, "req-2")
	if result.ComplianceScore >= 100 || result.ComplianceScore < 70 {
		t.Errorf("score = %d, want proportionally reduced within [70,100)", full.ComplianceScore)
	}
}

func TestPerformComplianceCheck_Valid(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: map[entity.Provider]*entity.ComplianceAgreement{
		entity.ProviderGoogle: agreementExpiring(entity.ProviderGoogle, 365 * 24 * time.Hour),
	}}
	i := newTestIntegration(repo, Config{})

	result := i.PerformComplianceCheck(context.Background(), nil, entity.ProviderGoogle, "req-1")
	if !result.Allowed {
		t.Error("valid agreement should be allowed")
	}
	if result.ComplianceScore < 70 {
		t.Errorf("score = %d, want >= 70", result.ComplianceScore)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", result.Warnings)
	}
	if result.AgreementStatus != entity.AgreementStatusActive {
		t.Errorf("status = %s, want active", result.AgreementStatus)
	}
}

func TestPerformComplianceCheck_LookupFailureFailsClosed(t *testing.T) {
	repo := &memoryAgreementRepo{err: errors.New("connection refused")}
	i := newTestIntegration(repo, Config{})

	result := i.PerformComplianceCheck(context.Background(), nil, entity.ProviderBedrock, "req-1")
	if result.Allowed {
		t.Error("lookup failure must fail closed")
	}
	if len(result.Violations) == 0 {
		t.Error("lookup failure must surface as a violation")
	}
}

func TestEnforceCompliance_BlocksWhenEnforced(t *testing.T) {
	i := newTestIntegration(&memoryAgreementRepo{agreements: map[entity.Provider]*entity.ComplianceAgreement{}},
		Config{EnforceCompliance: true})

	_, err := i.EnforceCompliance(context.Background(), nil, entity.ProviderBedrock, "req-1")
	if err == nil {
		t.Fatal("expected enforcement error")
	}
	if !strings.Contains(err.Error(), "Compliance violation") {
		t.Errorf("error %q should contain 'Compliance violation'", err.Error())
	}
	if !IsComplianceViolation(err) {
		t.Error("error should be recognizable as compliance violation")
	}
}

func TestEnforceCompliance_LogsOnlyWhenDisabled(t *testing.T) {
	i := newTestIntegration(&memoryAgreementRepo{agreements: map[entity.Provider]*entity.ComplianceAgreement{}},
		Config{EnforceCompliance: false})

	result, err := i.EnforceCompliance(context.Background(), nil, entity.ProviderBedrock, "req-1")
	if err != nil {
		t.Fatalf("enforcement disabled, got error: %v", err)
	}
	if result.Allowed {
		t.Error("result should still report the violation")
	}
	if len(result.Violations) == 0 {
		t.Error("violations should be non-empty even when not enforced")
	}
}

func TestWrapResponseWithCompliance(t *testing.T) {
	i := newTestIntegration(&memoryAgreementRepo{}, Config{})

	resp := &entity.AiResponse{
		RequestID: "req-1",
		Content:   "hello",
	}
	result := CheckResult{
		ComplianceScore: 95,
		AgreementStatus: entity.AgreementStatusActive,
	}

	wrapped := i.WrapResponseWithCompliance(resp, result)
	if wrapped.Content != "hello" {
		t.Error("wrapping must not mutate primary content")
	}
	meta := wrapped.Metadata.Compliance
	if meta == nil || !meta.Checked || meta.Score != 95 || meta.AgreementStatus != entity.AgreementStatusActive {
		t.Errorf("compliance metadata = %+v", meta)
	}
}

func TestGetComplianceSummary(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: map[entity.Provider]*entity.ComplianceAgreement{
		entity.ProviderBedrock: agreementExpiring(entity.ProviderBedrock, 365 * 24 * time.Hour),
		entity.ProviderGoogle:  agreementExpiring(entity.ProviderGoogle, 5 * 24 * time.Hour),
		// meta 无协议
	}}
	i := newTestIntegration(repo, Config{BlockOnViolations: true})

	summary := i.GetComplianceSummary(context.Background())
	if summary.OverallCompliance != OverallNonCompliant {
		t.Errorf("overall = %s, want non_compliant (meta has no agreement)", summary.OverallCompliance)
	}
	if len(summary.Providers) != 3 {
		t.Fatalf("providers = %d, want 3", len(summary.Providers))
	}
	if summary.PendingActions != 1 {
		t.Errorf("pending actions = %d, want 1", summary.PendingActions)
	}
	if summary.RecentViolations == 0 {
		t.Error("recent violations should be counted")
	}

	byProvider := map[entity.Provider]ProviderSummary{}
	for _, ps := range summary.Providers {
		byProvider[ps.Provider] = ps
	}
	if !byProvider[entity.ProviderBedrock].Compliant {
		t.Error("bedrock should be compliant")
	}
	if byProvider[entity.ProviderGoogle].Compliant {
		t.Error("google is expiring, should not count as fully compliant")
	}
	if byProvider[entity.ProviderMeta].Compliant {
		t.Error("meta has no agreement, should not be compliant")
	}
}

func TestUpdateConfig_Partial(t *testing.T) {
	i := newTestIntegration(&memoryAgreementRepo{}, Config{EnforceCompliance: true, WarningThresholdDays: 30})

	off := false
	days := 14
	i.UpdateConfig(ConfigUpdate{EnforceCompliance: &off, WarningThresholdDays: &days})

	cfg := i.GetConfig()
	if cfg.EnforceCompliance {
		t.Error("enforce_compliance should be off")
	}
	if cfg.WarningThresholdDays != 14 {
		t.Errorf("warning_threshold_days = %d, want 14", cfg.WarningThresholdDays)
	}
	if !cfg.BlockOnViolations && cfg.WarnScore != DefaultWarnScore {
		t.Errorf("untouched fields should keep defaults, warn_score = %v", cfg.WarnScore)
	}
}

func TestProviderScoreOverride(t *testing.T) {
	repo := &memoryAgreementRepo{agreements: map[entity.Provider]*entity.ComplianceAgreement{
		entity.ProviderGoogle: agreementExpiring(entity.ProviderGoogle, 365 * 24 * time.Hour),
	}}
	i := newTestIntegration(repo, Config{
		ProviderScores: map[entity.Provider]ScoreThresholds{
			entity.ProviderGoogle: {OKScore: 0.6},
		},
	})

	result := i.PerformComplianceCheck(context.Background(), nil, entity.ProviderGoogle, "req-1")
	if !result.Allowed {
		t.Fatal("valid agreement should be allowed")
	}
	// 即使提供商阈值更低，有效协议的分数仍须 > 70
	if result.ComplianceScore <= 70 {
		t.Errorf("score = %d, want > 70", result.ComplianceScore)
	}
}
