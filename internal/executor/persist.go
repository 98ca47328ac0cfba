package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/providers"
	"github.com/llmrace/llmrace-backend/internal/scoring"
)

// persistAttemptResult writes the Output/Metric rows for a successful attempt (both
// overwritten in place on retry, per §3's invariant) and marks the RunItem COMPLETED
// or PARTIAL_TOOL_SUPPORT depending on whether the tool loop ran out of room.
func (e *RaceExecutor) persistAttemptResult(
	ctx context.Context,
	runID string,
	runItem *models.RunItem,
	loopMessages []providers.Message,
	streamedText string,
	outputText string,
	lastResponse *providers.Response,
	metricValues scoring.MetricComputation,
	assertionSummary scoring.ConstraintEvaluation,
	toolLoopExhausted bool,
) error {
	requestMessages := make([]map[string]interface{}, 0, len(loopMessages))
	for _, m := range loopMessages {
		requestMessages = append(requestMessages, map[string]interface{}{
			"role": m.Role, "content": m.Content, "tool_call_id": m.ToolCallID, "name": m.Name,
		})
	}
	requestMessagesJSON, err := json.Marshal(requestMessages)
	if err != nil {
		return err
	}

	payloadRaw := map[string]interface{}{}
	if lastResponse != nil && len(lastResponse.Raw) > 0 {
		var rawValue interface{}
		if err := json.Unmarshal(lastResponse.Raw, &rawValue); err == nil {
			payloadRaw["provider_raw"] = rawValue
		} else {
			payloadRaw["provider_raw"] = string(lastResponse.Raw)
		}
	}
	if assertionSummary.Total > 0 {
		payloadRaw["assertions"] = assertionSummary
	}
	payloadRawJSON, err := json.Marshal(payloadRaw)
	if err != nil {
		return err
	}

	streamedTextCopy := streamedText
	finalTextCopy := outputText
	rawPayloadStr := string(payloadRawJSON)
	output := &models.Output{
		RunItemID:          runItem.ID,
		RequestMessages:    string(requestMessagesJSON),
		StreamedText:       &streamedTextCopy,
		FinalText:          &finalTextCopy,
		RawProviderPayload: &rawPayloadStr,
	}
	if err := e.store.UpsertOutput(ctx, output); err != nil {
		return err
	}

	metric := &models.Metric{
		RunItemID:             runItem.ID,
		TTFTMs:                metricValues.TTFTMs,
		TotalLatencyMs:        &metricValues.TotalLatencyMs,
		GenerationMs:          metricValues.GenerationMs,
		OutputTokens:          metricValues.OutputTokens,
		OutputTokensEstimated: metricValues.OutputTokensEstimated,
		TokensPerSec:          metricValues.TokensPerSec,
		ErrorFlag:             false,
	}
	if err := e.store.UpsertMetric(ctx, metric); err != nil {
		return err
	}

	finishedAt := time.Now().UTC()
	if toolLoopExhausted {
		runItem.Status = models.RunItemPartialToolSupport
	} else {
		runItem.Status = models.RunItemCompleted
	}
	runItem.FinishedAt = &finishedAt
	runItem.ErrorMessage = nil
	if err := e.store.UpdateRunItem(ctx, runItem); err != nil {
		return err
	}

	if _, err := e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventItemMetrics, map[string]interface{}{
		"run_item_id":    runItem.ID,
		"ttft_ms":        metricValues.TTFTMs,
		"latency_ms":     metricValues.TotalLatencyMs,
		"tokens_per_sec": metricValues.TokensPerSec,
		"output_tokens":  metricValues.OutputTokens,
		"estimated":      metricValues.OutputTokensEstimated,
	}); err != nil {
		return err
	}

	if assertionSummary.Total > 0 {
		if _, err := e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventItemAssertions, map[string]interface{}{
			"run_item_id": runItem.ID, "passed": assertionSummary.Passed, "total": assertionSummary.Total,
		}); err != nil {
			return err
		}
	}

	_, err = e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventItemCompleted, map[string]interface{}{
		"run_item_id": runItem.ID, "status": string(runItem.Status),
	})
	return err
}
