package models

import "time"

// RunStatus is the lifecycle of a Run: QUEUED -> RUNNING -> (COMPLETED | FAILED).
type RunStatus string

const (
	RunQueued    RunStatus = "QUEUED"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// RunItemStatus is the lifecycle of a RunItem.
type RunItemStatus string

const (
	RunItemPending            RunItemStatus = "PENDING"
	RunItemRunning            RunItemStatus = "RUNNING"
	RunItemCompleted          RunItemStatus = "COMPLETED"
	RunItemFailed             RunItemStatus = "FAILED"
	RunItemPartialToolSupport RunItemStatus = "PARTIAL_TOOL_SUPPORT"
)

// Run is one benchmark invocation of a Suite against selected Cars.
type Run struct {
	ID             string     `db:"id" json:"id"`
	SuiteID        string     `db:"suite_id" json:"suite_id"`
	Status         RunStatus  `db:"status" json:"status"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	SelectedCarIDs string     `db:"selected_car_ids" json:"selected_car_ids"` // JSON array, preserves selection order
	JudgeCarID     *string    `db:"judge_car_id" json:"judge_car_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// RunItem is one (Run, Test, Car) triple — the Cartesian-product leaf.
type RunItem struct {
	ID           string        `db:"id" json:"id"`
	RunID        string        `db:"run_id" json:"run_id"`
	TestID       string        `db:"test_id" json:"test_id"`
	CarID        string        `db:"car_id" json:"car_id"`
	Status       RunItemStatus `db:"status" json:"status"`
	AttemptCount int           `db:"attempt_count" json:"attempt_count"`
	StartedAt    *time.Time    `db:"started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time    `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
}

// Output holds the request/response payload for a terminal RunItem. Overwritten on retry.
type Output struct {
	RunItemID         string  `db:"run_item_id" json:"run_item_id"`
	RequestMessages   string  `db:"request_messages_json" json:"request_messages_json"`
	StreamedText      *string `db:"streamed_text" json:"streamed_text,omitempty"`
	FinalText         *string `db:"final_text" json:"final_text,omitempty"`
	RawProviderPayload *string `db:"raw_provider_payload" json:"raw_provider_payload,omitempty"` // JSON, may carry an "assertions" summary
}

// Metric holds the computed latency/throughput numbers for a terminal RunItem. Overwritten on retry.
type Metric struct {
	RunItemID             string   `db:"run_item_id" json:"run_item_id"`
	TTFTMs                *int     `db:"ttft_ms" json:"ttft_ms,omitempty"`
	TotalLatencyMs        *int     `db:"total_latency_ms" json:"total_latency_ms,omitempty"`
	GenerationMs          *int     `db:"generation_ms" json:"generation_ms,omitempty"`
	OutputTokens          int      `db:"output_tokens" json:"output_tokens"`
	OutputTokensEstimated bool     `db:"output_tokens_estimated" json:"output_tokens_estimated"`
	TokensPerSec          *float64 `db:"tokens_per_sec" json:"tokens_per_sec,omitempty"`
	ErrorFlag             bool     `db:"error_flag" json:"error_flag"`
}

// ToolCallStatus is the outcome of one tool invocation within a run-item's tool loop.
type ToolCallStatus string

const (
	ToolCallOK    ToolCallStatus = "ok"
	ToolCallError ToolCallStatus = "error"
)

// ToolCallStyle distinguishes model-native tool calls from fallback-parsed ones.
type ToolCallStyle string

const (
	ToolCallNative   ToolCallStyle = "native"
	ToolCallFallback ToolCallStyle = "fallback"
)

// ToolCall records one tool invocation. Append-only; accumulates across retries.
type ToolCall struct {
	ID            string         `db:"id" json:"id"`
	RunItemID     string         `db:"run_item_id" json:"run_item_id"`
	LoopIndex     int            `db:"loop_index" json:"loop_index"`
	ToolName      string         `db:"tool_name" json:"tool_name"`
	Args          string         `db:"args" json:"args"`     // JSON object
	Result        string         `db:"result" json:"result"` // JSON
	Status        ToolCallStatus `db:"status" json:"status"`
	ProviderStyle ToolCallStyle  `db:"provider_style" json:"provider_style"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}

// JudgeResult is one rubric-scored row: per-item (run_item_id set), per-car (only car_id set),
// or the per-run aggregate (both null).
type JudgeResult struct {
	ID           string  `db:"id" json:"id"`
	RunID        string  `db:"run_id" json:"run_id"`
	RunItemID    *string `db:"run_item_id" json:"run_item_id,omitempty"`
	CarID        *string `db:"car_id" json:"car_id,omitempty"`
	WritingScore float64 `db:"writing_score" json:"writing_score"`
	CodingScore  float64 `db:"coding_score" json:"coding_score"`
	ToolScore    float64 `db:"tool_score" json:"tool_score"`
	Overall      float64 `db:"overall" json:"overall"`
	Rationale    string  `db:"rationale" json:"rationale"`
	Raw          *string `db:"raw" json:"raw,omitempty"`
}

// TelemetryEvent is one entry in a run's monotonic event log.
// Invariant: for each run_id, seq_no is strictly increasing starting at 1, no gaps.
type TelemetryEvent struct {
	ID          string    `db:"id" json:"id"`
	RunID       string    `db:"run_id" json:"run_id"`
	RunItemID   *string   `db:"run_item_id" json:"run_item_id,omitempty"`
	SeqNo       int       `db:"seq_no" json:"seq_no"`
	EventType   string    `db:"event_type" json:"event_type"`
	PayloadJSON string    `db:"payload_json" json:"payload_json"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Telemetry event type constants emitted by the executor and judge pipeline (§4.D).
const (
	EventRunStarted        = "run.started"
	EventRunCompleted      = "run.completed"
	EventItemStarted       = "item.started"
	EventItemError         = "item.error"
	EventItemCompleted     = "item.completed"
	EventItemMetrics       = "item.metrics"
	EventItemAssertions    = "item.assertions"
	EventRequestSent       = "request.sent"
	EventTTFTRecorded      = "ttft.recorded"
	EventTokenDelta        = "token.delta"
	EventToolCallDetected  = "tool.call.detected"
	EventToolCallExecuted  = "tool.call.executed"
	EventToolLoopContinue  = "tool.loop.continue"
	EventToolLoopExhausted = "tool.loop.exhausted"
	EventJudgeStarted      = "judge.started"
	EventJudgeCompleted    = "judge.completed"
)
