// Package scoring computes per-attempt latency/throughput metrics and evaluates
// expected-output constraints (§4.C). Grounded on original_source's
// runs/{metrics,assertions}.py. Named scoring rather than metrics to avoid colliding
// with the Prometheus internal/pkg/metrics package.
package scoring

// MetricComputation is the result of one attempt's latency/throughput accounting (§8).
type MetricComputation struct {
	TTFTMs                *int
	TotalLatencyMs        int
	GenerationMs          *int
	OutputTokens          int
	OutputTokensEstimated bool
	TokensPerSec          *float64
}

// EstimateTokens is the word-count heuristic used when a provider returns no usage.
func EstimateTokens(text string) int {
	n := int(float64(wordCount(text)) * 1.25)
	if n < 1 {
		return 1
	}
	return n
}

func wordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}

// ComputeMetrics derives the full metric set for one attempt (§8: generation_ms =
// total_latency_ms - ttft_ms, tokens_per_sec = output_tokens / (generation_ms/1000)).
// usageCompletionTokens is nil when the provider reported no usage at all.
func ComputeMetrics(startedMs, finishedMs int64, ttftMs *int, outputText string, usageCompletionTokens *int, usageEstimated bool) MetricComputation {
	totalLatencyMs := int(finishedMs - startedMs)
	if totalLatencyMs < 0 {
		totalLatencyMs = 0
	}

	var generationMs *int
	if ttftMs != nil {
		g := totalLatencyMs - *ttftMs
		if g < 1 {
			g = 1
		}
		generationMs = &g
	}

	var outputTokens int
	var estimated bool
	if usageCompletionTokens == nil {
		outputTokens = EstimateTokens(outputText)
		estimated = true
	} else {
		outputTokens = *usageCompletionTokens
		if outputTokens < 1 {
			outputTokens = 1
		}
		estimated = usageEstimated
	}

	var tokensPerSec *float64
	if generationMs != nil && *generationMs > 0 {
		tps := float64(outputTokens) / (float64(*generationMs) / 1000.0)
		tokensPerSec = &tps
	}

	return MetricComputation{
		TTFTMs:                ttftMs,
		TotalLatencyMs:        totalLatencyMs,
		GenerationMs:          generationMs,
		OutputTokens:          outputTokens,
		OutputTokensEstimated: estimated,
		TokensPerSec:          tokensPerSec,
	}
}
