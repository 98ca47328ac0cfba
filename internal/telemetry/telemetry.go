// Package telemetry appends run events to the durable log and serves them back over
// SSE to run-stream subscribers (§4.D). Grounded on original_source's
// runs/telemetry.py (emit_event/list_events_after) for the log semantics, and on the
// teacher's http.Flusher-per-write idiom (internal/api/rest/logs.go) for the streaming
// mechanics.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/repository"
)

// Log appends and reads a run's telemetry event stream.
type Log struct {
	store repository.TelemetryRepository
}

func New(store repository.TelemetryRepository) *Log {
	return &Log{store: store}
}

// Emit appends one event to run_id's log, folding in run_id/run_item_id/timestamp the
// way original_source's emit_event does for its payload_json, then returns the stored
// event (with its assigned seq_no) for callers that also want to push it to subscribers.
func (l *Log) Emit(ctx context.Context, runID string, runItemID *string, eventType string, payload map[string]interface{}) (*models.TelemetryEvent, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload["run_id"] = runID
	if runItemID != nil {
		payload["run_item_id"] = *runItemID
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	event := &models.TelemetryEvent{
		ID:          uuid.New().String(),
		RunID:       runID,
		RunItemID:   runItemID,
		EventType:   eventType,
		PayloadJSON: string(payloadJSON),
	}
	if err := l.store.AppendTelemetryEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// EventsAfter returns every event for runID with seq_no strictly greater than afterSeq,
// in ascending seq_no order — the page a reconnecting SSE subscriber replays to catch up.
func (l *Log) EventsAfter(ctx context.Context, runID string, afterSeq int) ([]*models.TelemetryEvent, error) {
	return l.store.EventsAfter(ctx, runID, afterSeq)
}
