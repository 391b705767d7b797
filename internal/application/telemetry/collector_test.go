package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub015/internal/domain/entity"
)

func newTestCollector(max int) (*Collector, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewCollector(max)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestSanitize_AllowlistEnforced(t *testing.T) {
	tests := []struct {
		name string
		in   Dimensions
		want Dimensions
	}{
		{
			name: "known values pass through",
			in:   Dimensions{Provider: "bedrock", Intent: "generation", Role: "orchestrator", Region: "eu-central-1", ModelFamily: "claude"},
			want: Dimensions{Provider: "bedrock", Intent: "generation", Role: "orchestrator", Region: "eu-central-1", ModelFamily: "claude"},
		},
		{
			name: "unknown values coerced",
			in:   Dimensions{Provider: "openai", Intent: "chat", Role: "admin", Region: "cn-north-1", ModelFamily: "gpt"},
			want: Dimensions{Provider: "unknown", Intent: "unknown", Role: "unknown", Region: "unknown", ModelFamily: "unknown"},
		},
		{
			name: "adversarial input coerced",
			in:   Dimensions{Provider: "bedrock'; DROP TABLE metrics;--", Intent: "\x00\xff", Role: "a-very-long-role-" + string(make([]byte, 500)), Region: "../../etc", ModelFamily: "<script>"},
			want: Dimensions{Provider: "unknown", Intent: "unknown", Role: "unknown", Region: "unknown", ModelFamily: "unknown"},
		},
		{
			name: "case and whitespace normalized",
			in:   Dimensions{Provider: " Bedrock ", Intent: "GENERATION", Role: "Orchestrator", Region: "EU-CENTRAL-1", ModelFamily: "Claude"},
			want: Dimensions{Provider: "bedrock", Intent: "generation", Role: "orchestrator", Region: "eu-central-1", ModelFamily: "claude"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitize(tt.in); got != tt.want {
				t.Errorf("sanitize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRecordLatency_WithTokens(t *testing.T) {
	c, _ := newTestCollector(100)
	ctx := context.Background()

	c.RecordLatency(ctx, entity.ProviderBedrock, 420, LatencyContext{
		Intent: "generation",
		Role:   "orchestrator",
		Region: "eu-central-1",
		Tokens: &entity.TokenUsage{PromptTokens: 100, OutputTokens: 50, TotalTokens: 150},
	})

	all := c.GetMetrics(time.Minute)
	if len(all) != 4 {
		t.Fatalf("metrics = %d, want 4 (latency + 3 token metrics)", len(all))
	}
	if all[0].Name != MetricLatency || all[0].Unit != UnitMs || all[0].Value != 420 {
		t.Errorf("latency metric = %+v", all[0])
	}

	names := map[string]float64{}
	for _, m := range all[1:] {
		names[m.Name] = m.Value
	}
	if names[MetricTokensPrompt] != 100 || names[MetricTokensOutput] != 50 || names[MetricTokensTotal] != 150 {
		t.Errorf("token metrics = %v", names)
	}
}

func TestRecordCost_NeutralizesCallDimensions(t *testing.T) {
	c, _ := newTestCollector(100)

	c.RecordCost(context.Background(), entity.ProviderGoogle, 0.042, CostContext{
		Intent: "generation", Role: "user-worker", Region: "eu-west-1", ModelFamily: "gemini",
	})

	all := c.GetMetrics(time.Minute)
	if len(all) != 1 {
		t.Fatalf("metrics = %d, want 1", len(all))
	}
	m := all[0]
	if m.Unit != UnitEuro {
		t.Errorf("unit = %s, want euro", m.Unit)
	}
	if m.Dimensions.ToolsUsed || m.Dimensions.CacheEligible {
		t.Error("cost metrics must carry neutral tools_used/cache_eligible")
	}
}

func TestRecordCacheHit(t *testing.T) {
	c, _ := newTestCollector(100)

	c.RecordCacheHit(context.Background(), entity.ProviderMeta, true, CacheContext{Intent: "rag_cached"})
	c.RecordCacheHit(context.Background(), entity.ProviderMeta, false, CacheContext{Intent: "rag_cached"})

	all := c.GetMetrics(time.Minute)
	if len(all) != 2 {
		t.Fatalf("metrics = %d, want 2", len(all))
	}
	if all[0].Value != 1 || all[1].Value != 0 {
		t.Errorf("values = %v/%v, want 1/0", all[0].Value, all[1].Value)
	}
	for _, m := range all {
		if !m.Dimensions.CacheEligible {
			t.Error("cache metrics must be tagged cache_eligible=true")
		}
	}
}

func TestRecordError_TypeNotADimension(t *testing.T) {
	c, _ := newTestCollector(100)

	c.RecordError(context.Background(), entity.ProviderBedrock, "ThrottlingException", ErrorContext{Intent: "generation"})

	all := c.GetMetrics(time.Minute)
	if len(all) != 1 {
		t.Fatalf("metrics = %d, want 1", len(all))
	}
	m := all[0]
	if m.Name != MetricErrors || m.Value != 1 || m.Unit != UnitCount {
		t.Errorf("error metric = %+v", m)
	}
	// errorType 不得出现在任何维度取值中
	for _, key := range []string{"provider", "intent", "role", "region", "model_family"} {
		if v, _ := dimensionValue(m.Dimensions, key); v == "ThrottlingException" {
			t.Errorf("error type leaked into dimension %s", key)
		}
	}
}

func TestRingEviction_FIFO(t *testing.T) {
	c, _ := newTestCollector(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.RecordCost(ctx, entity.ProviderBedrock, float64(i), CostContext{})
	}

	all := c.GetMetrics(time.Minute)
	if len(all) != 3 {
		t.Fatalf("retained = %d, want 3 (capacity)", len(all))
	}
	// 最旧的两条（0、1）被淘汰，保留 2、3、4
	for i, want := range []float64{2, 3, 4} {
		if all[i].Value != want {
			t.Errorf("metric %d value = %v, want %v", i, all[i].Value, want)
		}
	}
}

func TestGetMetrics_WindowFiltering(t *testing.T) {
	c, now := newTestCollector(100)
	ctx := context.Background()

	c.RecordCost(ctx, entity.ProviderBedrock, 1, CostContext{})
	*now = now.Add(10 * time.Minute)
	c.RecordCost(ctx, entity.ProviderBedrock, 2, CostContext{})

	recent := c.GetMetrics(5 * time.Minute)
	if len(recent) != 1 || recent[0].Value != 2 {
		t.Errorf("recent = %+v, want only the second metric", recent)
	}

	all := c.GetMetrics(time.Hour)
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}
}

func TestGetMetricsByDimension_RoundTrip(t *testing.T) {
	c, _ := newTestCollector(100)

	c.RecordLatency(context.Background(), entity.ProviderBedrock, 100, LatencyContext{Intent: "generation"})

	groups := c.GetMetricsByDimension(MetricLatency, "provider", time.Minute)
	got, ok := groups["bedrock"]
	if !ok {
		t.Fatalf("groups = %v, want key 'bedrock'", groups)
	}
	if len(got) != 1 || got[0].Value != 100 {
		t.Errorf("grouped metrics = %+v", got)
	}
}

func TestGetAggregatedMetrics(t *testing.T) {
	c, _ := newTestCollector(200)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		c.RecordLatency(ctx, entity.ProviderBedrock, float64(i), LatencyContext{Intent: "generation"})
	}

	tests := []struct {
		agg  Aggregation
		want float64
	}{
		{AggSum, 5050},
		{AggAvg, 50.5},
		{AggP95, 96}, // floor(100*0.95)=95 → sorted[95]=96
		{AggP99, 100},
	}
	for _, tt := range tests {
		got := c.GetAggregatedMetrics(MetricLatency, tt.agg, time.Minute)
		if got["bedrock"] != tt.want {
			t.Errorf("%s = %v, want %v", tt.agg, got["bedrock"], tt.want)
		}
	}
}

func TestGetCardinalityReport_BoundedUnderAdversarialInput(t *testing.T) {
	c, _ := newTestCollector(5000)
	ctx := context.Background()

	// 大量随机取值也不能撑大基数
	for i := 0; i < 1000; i++ {
		c.RecordLatency(ctx, entity.Provider(string(rune('a'+i%26))+"provider"), float64(i), LatencyContext{
			Intent:      string(rune(i)),
			Role:        "role-" + string(rune(i)),
			Region:      "region-" + string(rune(i%200)),
			ModelFamily: "family-" + string(rune(i%100)),
		})
	}
	c.RecordLatency(ctx, entity.ProviderBedrock, 1, LatencyContext{Intent: "generation", Role: "orchestrator", Region: "eu-central-1", ModelFamily: "claude"})

	report := c.GetCardinalityReport()
	for dim, limit := range allowlistSizes() {
		if report[dim] > limit {
			t.Errorf("dimension %s cardinality = %d, exceeds allow-list bound %d", dim, report[dim], limit)
		}
	}
}

func TestExportForCloudWatch(t *testing.T) {
	c, _ := newTestCollector(100)

	c.RecordLatency(context.Background(), entity.ProviderGoogle, 250, LatencyContext{
		Intent: "generation", Role: "orchestrator", Region: "eu-central-1", ModelFamily: "gemini",
	})

	records := c.ExportForCloudWatch()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.MetricName != MetricLatency || r.Value != 250 || r.Unit != "Milliseconds" {
		t.Errorf("record = %+v", r)
	}

	dims := map[string]string{}
	for _, d := range r.Dimensions {
		dims[d.Name] = d.Value
	}
	if dims["Provider"] != "google" || dims["ModelFamily"] != "gemini" {
		t.Errorf("dimensions = %v", dims)
	}
}

func TestReset(t *testing.T) {
	c, _ := newTestCollector(100)

	c.RecordCost(context.Background(), entity.ProviderBedrock, 1, CostContext{})
	c.Reset()

	if got := c.GetMetrics(time.Hour); len(got) != 0 {
		t.Errorf("metrics after reset = %d, want 0", len(got))
	}
}
