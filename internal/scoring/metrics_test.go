package scoring

import "testing"

func intPtr(v int) *int { return &v }

func TestComputeMetrics_KnownUsage(t *testing.T) {
	completion := 50
	m := ComputeMetrics(1000, 2000, intPtr(100), "ignored", &completion, false)
	if m.TotalLatencyMs != 1000 {
		t.Fatalf("expected total_latency_ms=1000, got %d", m.TotalLatencyMs)
	}
	if m.GenerationMs == nil || *m.GenerationMs != 900 {
		t.Fatalf("expected generation_ms=900, got %v", m.GenerationMs)
	}
	if m.OutputTokens != 50 || m.OutputTokensEstimated {
		t.Fatalf("expected known output_tokens=50, got %d estimated=%v", m.OutputTokens, m.OutputTokensEstimated)
	}
	if m.TokensPerSec == nil {
		t.Fatal("expected tokens_per_sec to be set")
	}
	want := 50.0 / 0.9
	if diff := *m.TokensPerSec - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected tokens_per_sec≈%v, got %v", want, *m.TokensPerSec)
	}
}

func TestComputeMetrics_NoUsageEstimatesFromText(t *testing.T) {
	m := ComputeMetrics(100, 1200, intPtr(200), "hello world from llm", nil, false)
	if m.TotalLatencyMs != 1100 {
		t.Fatalf("expected total_latency_ms=1100, got %d", m.TotalLatencyMs)
	}
	if m.GenerationMs == nil || *m.GenerationMs != 900 {
		t.Fatalf("expected generation_ms=900, got %v", m.GenerationMs)
	}
	if !m.OutputTokensEstimated {
		t.Fatal("expected output_tokens_estimated=true with no usage")
	}
	if m.OutputTokens < 1 {
		t.Fatalf("expected output_tokens > 0, got %d", m.OutputTokens)
	}
}

func TestComputeMetrics_NoTTFTLeavesGenerationNil(t *testing.T) {
	completion := 10
	m := ComputeMetrics(100, 500, nil, "x", &completion, false)
	if m.GenerationMs != nil {
		t.Fatalf("expected generation_ms=nil without ttft, got %v", *m.GenerationMs)
	}
	if m.TokensPerSec != nil {
		t.Fatal("expected tokens_per_sec=nil without generation_ms")
	}
}

func TestEstimateTokens_AtLeastOne(t *testing.T) {
	if got := EstimateTokens(""); got != 1 {
		t.Fatalf("expected minimum of 1, got %d", got)
	}
}
