package breaker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
)

// fakeClock 可手动推进的测试时钟
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
	b := New(cfg)
	b.now = clock.Now
	return b, clock
}

var errProvider = errors.New("provider unavailable")

func failingOp(ctx context.Context) (any, error) {
	return nil, errProvider
}

func succeedingOp(ctx context.Context) (any, error) {
	return "ok", nil
}

func TestExecute_OpensAfterFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := b.Execute(ctx, entity.ProviderBedrock, failingOp); err == nil {
			t.Fatal("expected failure from op")
		}
	}

	if b.IsAvailable(entity.ProviderBedrock) {
		t.Error("provider should be unavailable after threshold failures")
	}
	if got := b.Metrics(entity.ProviderBedrock).State; got != StateOpen {
		t.Errorf("state = %s, want %s", got, StateOpen)
	}
}

func TestExecute_OpenRejectsWithoutInvokingOp(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	if _, err := b.Execute(ctx, entity.ProviderBedrock, failingOp); err == nil {
		t.Fatal("expected failure")
	}

	calls := 0
	spy := func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	}

	_, err := b.Execute(ctx, entity.ProviderBedrock, spy)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if !IsCircuitOpen(err) {
		t.Errorf("expected circuit-open error, got %v", err)
	}
	if got, want := err.Error(), "circuit breaker is OPEN"; !strings.Contains(got, want) {
		t.Errorf("error %q should contain %q", got, want)
	}
	if calls != 0 {
		t.Errorf("op invoked %d times while open, want 0", calls)
	}
}

func TestExecute_DistinguishesRejectionFromFailure(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	_, err := b.Execute(ctx, entity.ProviderGoogle, failingOp)
	if IsCircuitOpen(err) {
		t.Error("operation failure must not look like circuit-open rejection")
	}
	if !errors.Is(err, errProvider) {
		t.Error("wrapped provider error should still match errors.Is")
	}
}

func TestExecute_SuccessResetsConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, entity.ProviderMeta, failingOp)
	b.Execute(ctx, entity.ProviderMeta, failingOp)
	b.Execute(ctx, entity.ProviderMeta, succeedingOp)
	b.Execute(ctx, entity.ProviderMeta, failingOp)
	b.Execute(ctx, entity.ProviderMeta, failingOp)

	m := b.Metrics(entity.ProviderMeta)
	if m.State != StateClosed {
		t.Errorf("state = %s, want closed (success in between resets the streak)", m.State)
	}
	if m.ConsecutiveFailures != 2 {
		t.Errorf("consecutive failures = %d, want 2", m.ConsecutiveFailures)
	}
	if m.TotalSuccesses != 1 || m.TotalFailures != 4 {
		t.Errorf("totals = %d/%d, want 1/4", m.TotalSuccesses, m.TotalFailures)
	}
}

func TestRecoveryTimeout_AllowsHalfOpenProbe(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, entity.ProviderBedrock, failingOp)
	if b.IsAvailable(entity.ProviderBedrock) {
		t.Fatal("should be unavailable right after opening")
	}

	clock.Advance(59 * time.Second)
	if b.IsAvailable(entity.ProviderBedrock) {
		t.Error("should stay unavailable before recovery timeout")
	}

	clock.Advance(2 * time.Second)
	if !b.IsAvailable(entity.ProviderBedrock) {
		t.Error("should become available once recovery timeout elapsed")
	}
	// IsAvailable 不应触发状态转移
	if got := b.Metrics(entity.ProviderBedrock).State; got != StateOpen {
		t.Errorf("state = %s, IsAvailable must not mutate state", got)
	}
}

func TestHalfOpen_SingleSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, entity.ProviderBedrock, failingOp)
	clock.Advance(2 * time.Minute)

	if _, err := b.Execute(ctx, entity.ProviderBedrock, succeedingOp); err != nil {
		t.Fatalf("half-open probe should pass through: %v", err)
	}

	m := b.Metrics(entity.ProviderBedrock)
	if m.State != StateClosed {
		t.Errorf("state = %s, want closed after successful probe", m.State)
	}
	if m.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0", m.ConsecutiveFailures)
	}
}

func TestHalfOpen_SingleFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, entity.ProviderBedrock, failingOp)
	clock.Advance(2 * time.Minute)

	opened := clock.Now()
	b.Execute(ctx, entity.ProviderBedrock, failingOp)

	m := b.Metrics(entity.ProviderBedrock)
	if m.State != StateOpen {
		t.Errorf("state = %s, want open after failed probe", m.State)
	}
	// 超时重新计时
	if m.StateEnteredAt.Before(opened) {
		t.Error("reopening must restart the recovery timeout")
	}
	if b.IsAvailable(entity.ProviderBedrock) {
		t.Error("should be unavailable again after probe failure")
	}
}

func TestForceClose_OverridesFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, entity.ProviderGoogle, failingOp)
	b.ForceClose(entity.ProviderGoogle)

	if !b.IsAvailable(entity.ProviderGoogle) {
		t.Error("should be available after ForceClose")
	}
	if got := b.Metrics(entity.ProviderGoogle).State; got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestForceOpen(t *testing.T) {
	b, _ := newTestBreaker(Config{})

	b.ForceOpen(entity.ProviderMeta)
	if b.IsAvailable(entity.ProviderMeta) {
		t.Error("should be unavailable after ForceOpen")
	}
	if got := b.Metrics(entity.ProviderMeta).State; got != StateOpen {
		t.Errorf("state = %s, want open", got)
	}
}

func TestReset_ZeroesCounters(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	b.Execute(ctx, entity.ProviderBedrock, succeedingOp)
	b.Execute(ctx, entity.ProviderBedrock, failingOp)
	b.Reset(entity.ProviderBedrock)

	m := b.Metrics(entity.ProviderBedrock)
	if m.TotalSuccesses != 0 || m.TotalFailures != 0 {
		t.Errorf("totals = %d/%d, want 0/0", m.TotalSuccesses, m.TotalFailures)
	}
	if m.State != StateClosed {
		t.Errorf("state = %s, want closed", m.State)
	}
}

func TestProviderIndependence(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		b.Execute(ctx, entity.ProviderBedrock, failingOp)
	}

	m := b.Metrics(entity.ProviderGoogle)
	if m.State != StateClosed || m.TotalFailures != 0 {
		t.Errorf("google state = %s failures = %d, must be untouched by bedrock failures",
			m.State, m.TotalFailures)
	}
	if !b.IsAvailable(entity.ProviderGoogle) {
		t.Error("google should stay available")
	}
}

func TestAvailableProviders_ExcludesOpen(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, entity.ProviderBedrock, failingOp)
	}

	_, err := b.Execute(ctx, entity.ProviderBedrock, succeedingOp)
	if err == nil || !IsCircuitOpen(err) {
		t.Fatalf("4th call should be rejected, got %v", err)
	}

	available := b.AvailableProviders()
	for _, p := range available {
		if p == entity.ProviderBedrock {
			t.Error("bedrock should be excluded from available providers")
		}
	}
	if len(available) == 0 {
		t.Error("other providers should remain available")
	}
}

func TestMetrics_DerivedValues(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 10, RecoveryTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, entity.ProviderGoogle, succeedingOp)
	}
	b.Execute(ctx, entity.ProviderGoogle, failingOp)

	m := b.Metrics(entity.ProviderGoogle)
	if m.Uptime != 0.75 {
		t.Errorf("uptime = %v, want 0.75", m.Uptime)
	}
	if m.FailureRate != 0.25 {
		t.Errorf("failure rate = %v, want 0.25", m.FailureRate)
	}
}

func TestHalfOpen_MaxProbes(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute, HalfOpenMaxCalls: 1})
	ctx := context.Background()

	b.Execute(ctx, entity.ProviderBedrock, failingOp)
	clock.Advance(2 * time.Minute)

	// 第一个探测占住名额后，第二个并发请求应被拒绝
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := b.Execute(ctx, entity.ProviderBedrock, func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "ok", nil
		})
		done <- err
	}()

	<-started
	_, err := b.Execute(ctx, entity.ProviderBedrock, succeedingOp)
	if !IsCircuitOpen(err) {
		t.Errorf("second concurrent probe should be rejected, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first probe should succeed: %v", err)
	}
}

func TestDestroy_Idempotent(t *testing.T) {
	b, _ := newTestBreaker(Config{})
	b.Destroy()
	b.Destroy()

	_, err := b.Execute(context.Background(), entity.ProviderBedrock, succeedingOp)
	if err == nil {
		t.Error("Execute after Destroy should fail")
	}
}

