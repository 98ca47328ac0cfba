package views

import (
	"context"
	"testing"

	"github.com/llmrace/llmrace-backend/internal/models"
)

// fakeViewStore implements repository.Store with only the surface the views package
// touches populated; everything else no-ops.
type fakeViewStore struct {
	runs        map[string]*models.Run
	cars        map[string]*models.Car
	connections map[string]*models.Connection
	runItemsByRun map[string][]*models.RunItem
	allRunItems []*models.RunItem
	metricsByItem map[string]*models.Metric
	outputsByItem map[string]*models.Output
	judgeResultsByRun map[string][]*models.JudgeResult
	allJudgeResults []*models.JudgeResult
}

func (s *fakeViewStore) Close() error                   { return nil }
func (s *fakeViewStore) Ping(ctx context.Context) error { return nil }
func (s *fakeViewStore) RunMigrations(sql string) error { return nil }

func (s *fakeViewStore) CreateConnection(ctx context.Context, c *models.Connection) error { return nil }
func (s *fakeViewStore) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	return s.connections[id], nil
}
func (s *fakeViewStore) ListConnections(ctx context.Context) ([]*models.Connection, error) { return nil, nil }
func (s *fakeViewStore) UpdateConnection(ctx context.Context, c *models.Connection) error   { return nil }
func (s *fakeViewStore) DeleteConnection(ctx context.Context, id string) error              { return nil }

func (s *fakeViewStore) CreateCar(ctx context.Context, c *models.Car) error { return nil }
func (s *fakeViewStore) GetCar(ctx context.Context, id string) (*models.Car, error) {
	return s.cars[id], nil
}
func (s *fakeViewStore) ListCars(ctx context.Context) ([]*models.Car, error) { return nil, nil }
func (s *fakeViewStore) UpdateCar(ctx context.Context, c *models.Car) error  { return nil }
func (s *fakeViewStore) DeleteCar(ctx context.Context, id string) error     { return nil }

func (s *fakeViewStore) CreateSuite(ctx context.Context, su *models.Suite) error         { return nil }
func (s *fakeViewStore) GetSuite(ctx context.Context, id string) (*models.Suite, error) { return nil, nil }
func (s *fakeViewStore) ListSuites(ctx context.Context) ([]*models.Suite, error)         { return nil, nil }
func (s *fakeViewStore) UpdateSuite(ctx context.Context, su *models.Suite) error         { return nil }
func (s *fakeViewStore) DeleteSuite(ctx context.Context, id string) error                { return nil }

func (s *fakeViewStore) CreateTest(ctx context.Context, t *models.Test) error { return nil }
func (s *fakeViewStore) GetTest(ctx context.Context, id string) (*models.Test, error) { return nil, nil }
func (s *fakeViewStore) ListTestsBySuite(ctx context.Context, suiteID string) ([]*models.Test, error) {
	return nil, nil
}
func (s *fakeViewStore) UpdateTest(ctx context.Context, t *models.Test) error { return nil }
func (s *fakeViewStore) DeleteTest(ctx context.Context, id string) error     { return nil }

func (s *fakeViewStore) GetProviderSettings(ctx context.Context, providerType models.ConnectionType) (*models.ProviderSettings, error) {
	return nil, nil
}
func (s *fakeViewStore) ListProviderSettings(ctx context.Context) ([]*models.ProviderSettings, error) {
	return nil, nil
}
func (s *fakeViewStore) UpsertProviderSettings(ctx context.Context, set *models.ProviderSettings) error {
	return nil
}

func (s *fakeViewStore) CreateRun(ctx context.Context, r *models.Run) error { return nil }
func (s *fakeViewStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return s.runs[id], nil
}
func (s *fakeViewStore) ListRuns(ctx context.Context) ([]*models.Run, error) { return nil, nil }
func (s *fakeViewStore) UpdateRun(ctx context.Context, r *models.Run) error  { return nil }

func (s *fakeViewStore) CreateRunItem(ctx context.Context, it *models.RunItem) error { return nil }
func (s *fakeViewStore) GetRunItem(ctx context.Context, id string) (*models.RunItem, error) {
	return nil, nil
}
func (s *fakeViewStore) ListRunItemsByRun(ctx context.Context, runID string) ([]*models.RunItem, error) {
	return s.runItemsByRun[runID], nil
}
func (s *fakeViewStore) ListAllRunItems(ctx context.Context) ([]*models.RunItem, error) {
	return s.allRunItems, nil
}
func (s *fakeViewStore) UpdateRunItem(ctx context.Context, it *models.RunItem) error { return nil }

func (s *fakeViewStore) UpsertOutput(ctx context.Context, o *models.Output) error { return nil }
func (s *fakeViewStore) GetOutputByRunItem(ctx context.Context, runItemID string) (*models.Output, error) {
	return s.outputsByItem[runItemID], nil
}
func (s *fakeViewStore) ListAllOutputs(ctx context.Context) ([]*models.Output, error) {
	var out []*models.Output
	for _, o := range s.outputsByItem {
		out = append(out, o)
	}
	return out, nil
}

func (s *fakeViewStore) UpsertMetric(ctx context.Context, m *models.Metric) error { return nil }
func (s *fakeViewStore) GetMetricByRunItem(ctx context.Context, runItemID string) (*models.Metric, error) {
	return s.metricsByItem[runItemID], nil
}
func (s *fakeViewStore) ListMetricsByRun(ctx context.Context, runID string) ([]*models.Metric, error) {
	var out []*models.Metric
	for _, it := range s.runItemsByRun[runID] {
		if m, ok := s.metricsByItem[it.ID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
func (s *fakeViewStore) ListAllMetrics(ctx context.Context) ([]*models.Metric, error) {
	var out []*models.Metric
	for _, m := range s.metricsByItem {
		out = append(out, m)
	}
	return out, nil
}

func (s *fakeViewStore) CreateToolCall(ctx context.Context, tc *models.ToolCall) error { return nil }
func (s *fakeViewStore) ListToolCallsByRunItem(ctx context.Context, runItemID string) ([]*models.ToolCall, error) {
	return nil, nil
}

func (s *fakeViewStore) CreateJudgeResult(ctx context.Context, jr *models.JudgeResult) error { return nil }
func (s *fakeViewStore) DeleteJudgeResultsByRun(ctx context.Context, runID string) error      { return nil }
func (s *fakeViewStore) ListJudgeResultsByRun(ctx context.Context, runID string) ([]*models.JudgeResult, error) {
	return s.judgeResultsByRun[runID], nil
}
func (s *fakeViewStore) ListAllItemJudgeResults(ctx context.Context) ([]*models.JudgeResult, error) {
	return s.allJudgeResults, nil
}

func (s *fakeViewStore) AppendTelemetryEvent(ctx context.Context, e *models.TelemetryEvent) error {
	return nil
}
func (s *fakeViewStore) EventsAfter(ctx context.Context, runID string, afterSeq int) ([]*models.TelemetryEvent, error) {
	return nil, nil
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func buildFixture() *fakeViewStore {
	connA := &models.Connection{ID: "conn-a", Name: "local-ollama"}
	carFast := &models.Car{ID: "car-fast", Name: "fast-7b", ConnectionID: connA.ID, ModelName: "fast-7b"}
	carSlow := &models.Car{ID: "car-slow", Name: "slow-70b", ConnectionID: connA.ID, ModelName: "slow-70b"}

	itemFast := &models.RunItem{ID: "item-fast", RunID: "run-1", TestID: "test-1", CarID: carFast.ID, Status: models.RunItemCompleted}
	itemSlow := &models.RunItem{ID: "item-slow", RunID: "run-1", TestID: "test-1", CarID: carSlow.ID, Status: models.RunItemFailed}

	outputFast := &models.Output{RunItemID: itemFast.ID, RawProviderPayload: strPtr(`{"assertions":{"total":2,"passed":2}}`)}
	outputSlow := &models.Output{RunItemID: itemSlow.ID}

	metricFast := &models.Metric{RunItemID: itemFast.ID, TTFTMs: intPtr(100), TotalLatencyMs: intPtr(500), TokensPerSec: floatPtr(20)}
	metricSlow := &models.Metric{RunItemID: itemSlow.ID, ErrorFlag: true}

	judgeFast := &models.JudgeResult{ID: "jr-fast", RunID: "run-1", RunItemID: strPtr(itemFast.ID), Overall: 9}

	return &fakeViewStore{
		runs:        map[string]*models.Run{"run-1": {ID: "run-1"}},
		cars:        map[string]*models.Car{carFast.ID: carFast, carSlow.ID: carSlow},
		connections: map[string]*models.Connection{connA.ID: connA},
		runItemsByRun: map[string][]*models.RunItem{"run-1": {itemFast, itemSlow}},
		allRunItems: []*models.RunItem{itemFast, itemSlow},
		metricsByItem: map[string]*models.Metric{itemFast.ID: metricFast, itemSlow.ID: metricSlow},
		outputsByItem: map[string]*models.Output{itemFast.ID: outputFast, itemSlow.ID: outputSlow},
		judgeResultsByRun: map[string][]*models.JudgeResult{"run-1": {judgeFast}},
		allJudgeResults:   []*models.JudgeResult{judgeFast},
	}
}

func strPtr(s string) *string { return &s }

func TestScorecard_RanksFasterCompleteCarAboveFailedCar(t *testing.T) {
	store := buildFixture()
	v := New(store)

	rows, err := v.Scorecard(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Scorecard returned error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].CarID != "car-fast" {
		t.Fatalf("rows[0].CarID = %s, want car-fast (judge overall 9 beats no judge score)", rows[0].CarID)
	}
	if rows[0].AssertionPassRate == nil || *rows[0].AssertionPassRate != 1 {
		t.Fatalf("rows[0].AssertionPassRate = %+v, want 1", rows[0].AssertionPassRate)
	}
	if rows[1].ErrorRate != 1 {
		t.Fatalf("rows[1].ErrorRate = %v, want 1 (the one item failed)", rows[1].ErrorRate)
	}
}

func TestLeaderboard_AggregatesAcrossAllRuns(t *testing.T) {
	store := buildFixture()
	v := New(store)

	rows, err := v.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("Leaderboard returned error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	var fastRow *LeaderboardRow
	for i := range rows {
		if rows[i].CarID == "car-fast" {
			fastRow = &rows[i]
		}
	}
	if fastRow == nil {
		t.Fatalf("car-fast missing from leaderboard rows: %+v", rows)
	}
	if fastRow.ConnectionName != "local-ollama" {
		t.Fatalf("ConnectionName = %s, want local-ollama", fastRow.ConnectionName)
	}
	if fastRow.AvgJudgeOverall == nil || *fastRow.AvgJudgeOverall != 9 {
		t.Fatalf("AvgJudgeOverall = %+v, want 9", fastRow.AvgJudgeOverall)
	}
}

func TestCompare_ClassifiesNewCarAndRegression(t *testing.T) {
	store := buildFixture()

	// Baseline run-0 has car-fast performing much better (lower latency, higher judge score)
	// than current run-1, and does not include car-slow at all.
	baseItem := &models.RunItem{ID: "item-fast-base", RunID: "run-0", TestID: "test-1", CarID: "car-fast", Status: models.RunItemCompleted}
	baseMetric := &models.Metric{RunItemID: baseItem.ID, TotalLatencyMs: intPtr(100), TokensPerSec: floatPtr(20)}
	baseJudge := &models.JudgeResult{ID: "jr-base", RunID: "run-0", RunItemID: strPtr(baseItem.ID), Overall: 9.5}
	store.runs["run-0"] = &models.Run{ID: "run-0"}
	store.runItemsByRun["run-0"] = []*models.RunItem{baseItem}
	store.metricsByItem[baseItem.ID] = baseMetric
	store.judgeResultsByRun["run-0"] = []*models.JudgeResult{baseJudge}

	v := New(store)
	result, err := v.Compare(context.Background(), "run-1", "run-0")
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if result.RunID != "run-1" || result.BaselineRunID != "run-0" {
		t.Fatalf("unexpected result ids: %+v", result)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}

	var fastRow, slowRow *ComparisonRow
	for i := range result.Rows {
		switch result.Rows[i].CarID {
		case "car-fast":
			fastRow = &result.Rows[i]
		case "car-slow":
			slowRow = &result.Rows[i]
		}
	}
	if fastRow == nil || slowRow == nil {
		t.Fatalf("expected both cars in comparison rows: %+v", result.Rows)
	}
	if fastRow.Summary != "regressed" {
		t.Fatalf("car-fast summary = %s, want regressed (latency +400ms, judge -0.5)", fastRow.Summary)
	}
	if slowRow.Summary != "new profile in current run" {
		t.Fatalf("car-slow summary = %s, want 'new profile in current run'", slowRow.Summary)
	}
}

func TestCompare_RejectsSameRunAsBaseline(t *testing.T) {
	store := buildFixture()
	v := New(store)
	if _, err := v.Compare(context.Background(), "run-1", "run-1"); err == nil {
		t.Fatalf("expected an error comparing a run against itself")
	}
}
