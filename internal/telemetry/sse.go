package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/llmrace/llmrace-backend/internal/models"
)

const (
	pollInterval    = 400 * time.Millisecond
	heartbeatPeriod = 10 * time.Second
)

// RunStatusFunc reports a Run's current status string for the subscriber loop's
// terminal-state check.
type RunStatusFunc func(runID string) (string, error)

var terminalStatuses = map[string]bool{
	string(models.RunCompleted): true, string(models.RunFailed): true,
}

// Subscribe serves GET /api/runs/{id}/stream: it resolves the starting seq_no cursor
// from (in priority order) the after_seq query parameter, the Last-Event-ID header, or
// 0, then polls the log every pollInterval, flushing new events and a ": heartbeat\n\n"
// comment line when nothing has flowed for heartbeatPeriod. It returns once the run is
// terminal and a final poll produced no further events (§4.D, §6).
func (l *Log) Subscribe(w http.ResponseWriter, r *http.Request, runID string, statusOf RunStatusFunc) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported by this response writer")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	afterSeq := startingCursor(r)
	lastFlow := time.Now()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case <-ticker.C:
			events, err := l.EventsAfter(r.Context(), runID, afterSeq)
			if err != nil {
				return err
			}

			for _, ev := range events {
				if err := writeEvent(w, ev); err != nil {
					return err
				}
				afterSeq = ev.SeqNo
			}
			if len(events) > 0 {
				lastFlow = time.Now()
				flusher.Flush()
				continue
			}

			status, err := statusOf(runID)
			if err != nil {
				return err
			}
			if terminalStatuses[status] {
				return nil
			}

			if time.Since(lastFlow) >= heartbeatPeriod {
				fmt.Fprint(w, ": heartbeat\n\n")
				flusher.Flush()
				lastFlow = time.Now()
			}
		}
	}
}

func startingCursor(r *http.Request) int {
	if q := r.URL.Query().Get("after_seq"); q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			return n
		}
	}
	if h := r.Header.Get("Last-Event-ID"); h != "" {
		if n, err := strconv.Atoi(h); err == nil {
			return n
		}
	}
	return 0
}

func writeEvent(w http.ResponseWriter, ev *models.TelemetryEvent) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.SeqNo, ev.EventType, ev.PayloadJSON)
	return err
}
