package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/pkg/secret"
	"github.com/llmrace/llmrace-backend/internal/providers"
	"github.com/llmrace/llmrace-backend/internal/scoring"
	"github.com/llmrace/llmrace-backend/internal/tools"
)

// executeItem runs one (Test, Car) item to completion: resolves or creates the
// provider's settings, retries the attempt up to retry_count times with a fixed
// retry_backoff_ms delay between attempts, and marks the item FAILED with an error_flag Metric if every attempt fails
// (§7: retry policy, RunItem-level failure does not fail the Run).
func (e *RaceExecutor) executeItem(ctx context.Context, runID string, runItem *models.RunItem, test *models.Test, car *models.Car, connection *models.Connection) error {
	settings, err := e.store.GetProviderSettings(ctx, connection.Type)
	if err != nil {
		return err
	}
	if settings == nil {
		defaults := models.DefaultProviderSettings(connection.Type)
		if err := e.store.UpsertProviderSettings(ctx, &defaults); err != nil {
			return err
		}
		settings = &defaults
	}

	now := time.Now().UTC()
	runItem.Status = models.RunItemRunning
	runItem.StartedAt = &now
	if err := e.store.UpdateRunItem(ctx, runItem); err != nil {
		return err
	}
	if _, err := e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventItemStarted, map[string]interface{}{
		"run_item_id": runItem.ID, "car_id": car.ID, "test_id": test.ID,
	}); err != nil {
		return err
	}

	retries := settings.RetryCount
	if retries < 0 {
		retries = 0
	}
	backoff := time.Duration(settings.RetryBackoffMs) * time.Millisecond
	if backoff < 0 {
		backoff = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		err := e.executeItemAttempt(ctx, runID, runItem, test, car, connection, settings, attempt+1)
		if err == nil {
			return nil
		}
		lastErr = err
		retrying := attempt < retries
		if _, emitErr := e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventItemError, map[string]interface{}{
			"run_item_id": runItem.ID, "attempt": attempt + 1, "error": err.Error(), "retrying": retrying,
		}); emitErr != nil {
			return emitErr
		}
		if retrying {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	finishedAt := time.Now().UTC()
	runItem.Status = models.RunItemFailed
	if lastErr != nil {
		msg := lastErr.Error()
		runItem.ErrorMessage = &msg
	}
	runItem.FinishedAt = &finishedAt
	if err := e.store.UpdateRunItem(ctx, runItem); err != nil {
		return err
	}

	existingMetric, err := e.store.GetMetricByRunItem(ctx, runItem.ID)
	if err != nil {
		return err
	}
	if existingMetric == nil {
		if err := e.store.UpsertMetric(ctx, &models.Metric{
			RunItemID: runItem.ID, ErrorFlag: true, OutputTokensEstimated: true,
		}); err != nil {
			return err
		}
	}

	_, err = e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventItemCompleted, map[string]interface{}{
		"run_item_id": runItem.ID, "status": string(models.RunItemFailed),
	})
	return err
}

// executeItemAttempt drives one attempt's model tool-call loop to completion and
// persists the resulting Output/Metric/ToolCall rows. Grounded on original_source's
// _execute_item_attempt, with the per-provider-type semaphore acquired for the whole
// loop (matching the Python `async with semaphore:` scope).
func (e *RaceExecutor) executeItemAttempt(ctx context.Context, runID string, runItem *models.RunItem, test *models.Test, car *models.Car, connection *models.Connection, settings *models.ProviderSettings, attemptNumber int) error {
	runItem.AttemptCount = attemptNumber
	if err := e.store.UpdateRunItem(ctx, runItem); err != nil {
		return err
	}

	connInfo := providers.ConnectionInfo{
		Type:    string(connection.Type),
		BaseURL: connection.BaseURL,
		APIKey:  e.resolveAPIKey(connection),
	}

	sem := e.sems.get(string(connection.Type), settings.MaxInFlight)
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)

	requestTemplate := buildRequest(car, test)
	loopMessages := append([]providers.Message{}, requestTemplate.Messages...)

	started := time.Now()
	var ttftMs *int
	var streamedParts strings.Builder
	var lastResponse *providers.Response
	toolLoopExhausted := false

	for loopIdx := 0; loopIdx < e.toolLoopLimit; loopIdx++ {
		req := requestTemplate
		req.Messages = loopMessages

		if _, err := e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventRequestSent, map[string]interface{}{
			"run_item_id": runItem.ID, "attempt": attemptNumber, "loop": loopIdx, "model": req.Model,
		}); err != nil {
			return err
		}

		onToken := func(token string) {
			streamedParts.WriteString(token)
			if ttftMs == nil {
				ms := int(time.Since(started).Milliseconds())
				ttftMs = &ms
				e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventTTFTRecorded, map[string]interface{}{
					"run_item_id": runItem.ID, "ttft_ms": ms,
				})
			}
			e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventTokenDelta, map[string]interface{}{
				"run_item_id": runItem.ID, "token": token,
			})
		}
		onTelemetry := func(eventType string, payload map[string]interface{}) {
			e.telemetryLog.Emit(ctx, runID, &runItem.ID, eventType, payload)
		}

		resp, err := e.client.Generate(ctx, connInfo, req, settings.TimeoutMs, onToken, onTelemetry)
		if err != nil {
			return err
		}
		lastResponse = resp

		toolCalls := resp.ToolCalls
		providerStyle := models.ToolCallNative
		if len(toolCalls) == 0 {
			if fallback := tools.ParseFallbackToolCommand(resp.Text); fallback != nil {
				argsJSON, _ := json.Marshal(fallback.Arguments)
				toolCalls = []providers.ToolCall{{
					ID: fmt.Sprintf("fallback_%d", loopIdx), Name: fallback.Name, Arguments: argsJSON,
				}}
				providerStyle = models.ToolCallFallback
			}
		}

		if len(toolCalls) == 0 {
			break
		}
		if loopIdx == e.toolLoopLimit-1 {
			toolLoopExhausted = true
		}

		if resp.Text != "" {
			loopMessages = append(loopMessages, providers.Message{Role: "assistant", Content: resp.Text})
		}

		for _, tc := range toolCalls {
			var args map[string]interface{}
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				args = map[string]interface{}{"raw": string(tc.Arguments)}
			}

			result, toolErr := tools.Execute(tc.Name, args)
			status := models.ToolCallOK
			var resultPayload map[string]interface{}
			if toolErr != nil {
				status = models.ToolCallError
				resultPayload = map[string]interface{}{"error": toolErr.Error()}
			} else {
				resultPayload = result
			}

			argsJSON, _ := json.Marshal(args)
			resultJSON, _ := json.Marshal(resultPayload)
			toolCallRow := &models.ToolCall{
				ID: uuid.New().String(), RunItemID: runItem.ID, LoopIndex: loopIdx,
				ToolName: tc.Name, Args: string(argsJSON), Result: string(resultJSON),
				Status: status, ProviderStyle: providerStyle,
			}
			if err := e.store.CreateToolCall(ctx, toolCallRow); err != nil {
				return err
			}
			if _, err := e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventToolCallExecuted, map[string]interface{}{
				"run_item_id": runItem.ID, "tool_name": tc.Name, "args": args, "result": resultPayload, "status": string(status),
			}); err != nil {
				return err
			}

			loopMessages = append(loopMessages, providers.Message{
				Role: "tool", Name: tc.Name, ToolCallID: tc.ID, Content: string(resultJSON),
			})
		}

		if _, err := e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventToolLoopContinue, map[string]interface{}{
			"run_item_id": runItem.ID, "loop": loopIdx, "tool_calls": len(toolCalls),
		}); err != nil {
			return err
		}
	}

	if toolLoopExhausted {
		if _, err := e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventToolLoopExhausted, map[string]interface{}{
			"run_item_id": runItem.ID, "limit": e.toolLoopLimit,
		}); err != nil {
			return err
		}
	}

	outputText := streamedParts.String()
	if outputText == "" && lastResponse != nil {
		outputText = lastResponse.Text
	}

	var completionTokens *int
	usageEstimated := false
	if lastResponse != nil {
		tokens := lastResponse.Usage.CompletionTokens
		completionTokens = &tokens
		usageEstimated = lastResponse.Usage.Estimated
	}

	metricValues := scoring.ComputeMetrics(started.UnixMilli(), time.Now().UnixMilli(), ttftMs, outputText, completionTokens, usageEstimated)

	var expectedConstraints string
	if test.ExpectedConstraints != nil {
		expectedConstraints = *test.ExpectedConstraints
	}
	assertionSummary := scoring.EvaluateExpectedConstraints(expectedConstraints, outputText)

	return e.persistAttemptResult(ctx, runID, runItem, loopMessages, streamedParts.String(), outputText, lastResponse, metricValues, assertionSummary, toolLoopExhausted)
}

func (e *RaceExecutor) resolveAPIKey(connection *models.Connection) string {
	return ResolveAPIKey(connection, e.secretKey)
}

// ResolveAPIKey implements the tri-tier key lookup (§6): the encrypted column decrypted
// under secretKey, falling back to the named env var, or "" if neither yields a key.
// Exported so the judge pipeline resolves its judge Car's connection the same way.
func ResolveAPIKey(connection *models.Connection, secretKey string) string {
	if connection.APIKeyEncrypted != nil && *connection.APIKeyEncrypted != "" && secretKey != "" {
		if key, err := secret.Decrypt(*connection.APIKeyEncrypted, secretKey); err == nil {
			return key
		}
	}
	if connection.APIKeyEnvVar != nil && *connection.APIKeyEnvVar != "" {
		return os.Getenv(*connection.APIKeyEnvVar)
	}
	return ""
}
