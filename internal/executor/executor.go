// Package executor implements the Race Executor (§4.E): a single background worker
// drains an in-memory run-id queue, and for each queued run walks every (Test, Car)
// pair, driving the model tool-call loop and persisting Output/Metric/ToolCall rows.
// Grounded directly on original_source's runs/executor.py, with the inner (car) loop
// re-expressed as a goroutine fan-out bounded by a real per-provider-type semaphore —
// the idiomatic parallel re-implementation the design notes explicitly allow, rather
// than asyncio's single-threaded cooperative loop.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/providers"
	"github.com/llmrace/llmrace-backend/internal/queue"
	"github.com/llmrace/llmrace-backend/internal/repository"
	"github.com/llmrace/llmrace-backend/internal/telemetry"
)

// RaceExecutor owns the worker goroutine that drains queued runs.
type RaceExecutor struct {
	store         repository.Store
	client        providers.Client
	telemetryLog  *telemetry.Log
	secretKey     string
	toolLoopLimit int
	log           *slog.Logger

	queue *queue.RunQueue
	sems  *semaphorePool

	stopped chan struct{}
}

// New constructs a RaceExecutor. toolLoopLimit bounds how many request/tool-call
// round-trips one attempt may take before the executor gives up and marks the item
// PARTIAL_TOOL_SUPPORT (§9).
func New(store repository.Store, client providers.Client, telemetryLog *telemetry.Log, secretKey string, toolLoopLimit int, log *slog.Logger) *RaceExecutor {
	return &RaceExecutor{
		store:         store,
		client:        client,
		telemetryLog:  telemetryLog,
		secretKey:     secretKey,
		toolLoopLimit: toolLoopLimit,
		log:           log,
		queue:         queue.New(),
		sems:          newSemaphorePool(),
		stopped:       make(chan struct{}),
	}
}

// Start launches the worker loop in a new goroutine. Not idempotent — calling twice
// starts two workers draining the same queue, which the caller should avoid (mirrors
// original_source's single-worker-task assumption).
func (e *RaceExecutor) Start(ctx context.Context) {
	go e.workerLoop(ctx)
}

// Stop closes the run queue, which unblocks the worker loop's next Pop and lets it exit.
func (e *RaceExecutor) Stop() {
	e.queue.Close()
}

// Enqueue schedules runID for execution. Non-blocking; the worker picks it up in FIFO order.
func (e *RaceExecutor) Enqueue(runID string) {
	e.queue.Push(runID)
}

func (e *RaceExecutor) workerLoop(ctx context.Context) {
	for {
		runID, ok := e.queue.Pop()
		if !ok {
			return
		}
		if err := e.executeRun(ctx, runID); err != nil {
			e.log.Error("run execution failed", "run_id", runID, "error", err)
			e.failRun(ctx, runID, err)
		}
	}
}

func (e *RaceExecutor) failRun(ctx context.Context, runID string, cause error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil || run == nil {
		return
	}
	now := time.Now().UTC()
	run.Status = models.RunFailed
	run.FinishedAt = &now
	if err := e.store.UpdateRun(ctx, run); err != nil {
		e.log.Error("failed to mark run FAILED after executor error", "run_id", runID, "error", err)
	}
	e.telemetryLog.Emit(ctx, runID, nil, models.EventRunCompleted, map[string]interface{}{
		"status": string(models.RunFailed), "error": cause.Error(),
	})
}

func (e *RaceExecutor) executeRun(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return nil
	}

	now := time.Now().UTC()
	run.Status = models.RunRunning
	run.StartedAt = &now
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return err
	}
	if _, err := e.telemetryLog.Emit(ctx, runID, nil, models.EventRunStarted, map[string]interface{}{"status": string(run.Status)}); err != nil {
		return err
	}

	var selectedCarIDs []string
	if err := json.Unmarshal([]byte(run.SelectedCarIDs), &selectedCarIDs); err != nil {
		return fmt.Errorf("parsing selected_car_ids: %w", err)
	}

	tests, err := e.store.ListTestsBySuite(ctx, run.SuiteID)
	if err != nil {
		return err
	}

	carByID := map[string]*models.Car{}
	for _, carID := range selectedCarIDs {
		car, err := e.store.GetCar(ctx, carID)
		if err != nil {
			return err
		}
		if car != nil {
			carByID[carID] = car
		}
	}

	items, err := e.store.ListRunItemsByRun(ctx, runID)
	if err != nil {
		return err
	}
	itemByTestAndCar := map[[2]string]*models.RunItem{}
	for _, it := range items {
		itemByTestAndCar[[2]string{it.TestID, it.CarID}] = it
	}

	for _, test := range tests {
		if err := e.executeTestAcrossCars(ctx, runID, test, selectedCarIDs, carByID, itemByTestAndCar); err != nil {
			return err
		}
	}

	return e.finalizeRun(ctx, run)
}

// executeTestAcrossCars runs one Test against every selected Car concurrently — the
// idiomatic re-implementation of original_source's serial inner loop — admission-gated
// per Car's connection type by the real semaphore in semaphorePool.
func (e *RaceExecutor) executeTestAcrossCars(ctx context.Context, runID string, test *models.Test, carIDs []string, carByID map[string]*models.Car, itemByTestAndCar map[[2]string]*models.RunItem) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, carID := range carIDs {
		car, ok := carByID[carID]
		if !ok {
			continue
		}
		runItem, ok := itemByTestAndCar[[2]string{test.ID, carID}]
		if !ok {
			continue
		}
		car, runItem := car, runItem
		g.Go(func() error {
			return e.executeCarItem(gctx, runID, test, car, runItem)
		})
	}
	return g.Wait()
}

func (e *RaceExecutor) executeCarItem(ctx context.Context, runID string, test *models.Test, car *models.Car, runItem *models.RunItem) error {
	connection, err := e.store.GetConnection(ctx, car.ConnectionID)
	if err != nil {
		return err
	}
	if connection == nil {
		runItem.Status = models.RunItemFailed
		msg := "Connection missing"
		runItem.ErrorMessage = &msg
		if err := e.store.UpdateRunItem(ctx, runItem); err != nil {
			return err
		}
		_, err := e.telemetryLog.Emit(ctx, runID, &runItem.ID, models.EventItemError, map[string]interface{}{
			"error": msg, "car_id": car.ID, "test_id": test.ID,
		})
		return err
	}

	return e.executeItem(ctx, runID, runItem, test, car, connection)
}

func (e *RaceExecutor) finalizeRun(ctx context.Context, run *models.Run) error {
	items, err := e.store.ListRunItemsByRun(ctx, run.ID)
	if err != nil {
		return err
	}
	total := len(items)
	failed := 0
	for _, it := range items {
		if it.Status == models.RunItemFailed {
			failed++
		}
	}

	now := time.Now().UTC()
	run.FinishedAt = &now
	if total > 0 && failed == total {
		run.Status = models.RunFailed
	} else {
		run.Status = models.RunCompleted
	}
	if err := e.store.UpdateRun(ctx, run); err != nil {
		return err
	}
	_, err = e.telemetryLog.Emit(ctx, run.ID, nil, models.EventRunCompleted, map[string]interface{}{"status": string(run.Status)})
	return err
}

