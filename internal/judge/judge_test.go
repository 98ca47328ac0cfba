package judge

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/providers"
	"github.com/llmrace/llmrace-backend/internal/telemetry"
)

// fakeJudgeStore implements repository.Store with only the surface the judge pipeline
// touches populated; everything else no-ops (judge never calls it).
type fakeJudgeStore struct {
	run         *models.Run
	cars        map[string]*models.Car
	connections map[string]*models.Connection
	tests       map[string]*models.Test
	runItems    []*models.RunItem
	outputs     map[string]*models.Output
	judgeResults []*models.JudgeResult
}

func (s *fakeJudgeStore) Close() error                            { return nil }
func (s *fakeJudgeStore) Ping(ctx context.Context) error          { return nil }
func (s *fakeJudgeStore) RunMigrations(sql string) error          { return nil }

func (s *fakeJudgeStore) CreateConnection(ctx context.Context, c *models.Connection) error { return nil }
func (s *fakeJudgeStore) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	return s.connections[id], nil
}
func (s *fakeJudgeStore) ListConnections(ctx context.Context) ([]*models.Connection, error) { return nil, nil }
func (s *fakeJudgeStore) UpdateConnection(ctx context.Context, c *models.Connection) error   { return nil }
func (s *fakeJudgeStore) DeleteConnection(ctx context.Context, id string) error               { return nil }

func (s *fakeJudgeStore) CreateCar(ctx context.Context, c *models.Car) error { return nil }
func (s *fakeJudgeStore) GetCar(ctx context.Context, id string) (*models.Car, error) {
	return s.cars[id], nil
}
func (s *fakeJudgeStore) ListCars(ctx context.Context) ([]*models.Car, error) { return nil, nil }
func (s *fakeJudgeStore) UpdateCar(ctx context.Context, c *models.Car) error  { return nil }
func (s *fakeJudgeStore) DeleteCar(ctx context.Context, id string) error      { return nil }

func (s *fakeJudgeStore) CreateSuite(ctx context.Context, su *models.Suite) error   { return nil }
func (s *fakeJudgeStore) GetSuite(ctx context.Context, id string) (*models.Suite, error) { return nil, nil }
func (s *fakeJudgeStore) ListSuites(ctx context.Context) ([]*models.Suite, error)   { return nil, nil }
func (s *fakeJudgeStore) UpdateSuite(ctx context.Context, su *models.Suite) error   { return nil }
func (s *fakeJudgeStore) DeleteSuite(ctx context.Context, id string) error         { return nil }

func (s *fakeJudgeStore) CreateTest(ctx context.Context, t *models.Test) error { return nil }
func (s *fakeJudgeStore) GetTest(ctx context.Context, id string) (*models.Test, error) {
	return s.tests[id], nil
}
func (s *fakeJudgeStore) ListTestsBySuite(ctx context.Context, suiteID string) ([]*models.Test, error) {
	return nil, nil
}
func (s *fakeJudgeStore) UpdateTest(ctx context.Context, t *models.Test) error { return nil }
func (s *fakeJudgeStore) DeleteTest(ctx context.Context, id string) error      { return nil }

func (s *fakeJudgeStore) GetProviderSettings(ctx context.Context, providerType models.ConnectionType) (*models.ProviderSettings, error) {
	return nil, nil
}
func (s *fakeJudgeStore) ListProviderSettings(ctx context.Context) ([]*models.ProviderSettings, error) {
	return nil, nil
}
func (s *fakeJudgeStore) UpsertProviderSettings(ctx context.Context, set *models.ProviderSettings) error {
	return nil
}

func (s *fakeJudgeStore) CreateRun(ctx context.Context, r *models.Run) error { return nil }
func (s *fakeJudgeStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return s.run, nil
}
func (s *fakeJudgeStore) ListRuns(ctx context.Context) ([]*models.Run, error) { return nil, nil }
func (s *fakeJudgeStore) UpdateRun(ctx context.Context, r *models.Run) error  { return nil }

func (s *fakeJudgeStore) CreateRunItem(ctx context.Context, it *models.RunItem) error { return nil }
func (s *fakeJudgeStore) GetRunItem(ctx context.Context, id string) (*models.RunItem, error) {
	return nil, nil
}
func (s *fakeJudgeStore) ListRunItemsByRun(ctx context.Context, runID string) ([]*models.RunItem, error) {
	return s.runItems, nil
}
func (s *fakeJudgeStore) ListAllRunItems(ctx context.Context) ([]*models.RunItem, error) {
	return s.runItems, nil
}
func (s *fakeJudgeStore) UpdateRunItem(ctx context.Context, it *models.RunItem) error { return nil }

func (s *fakeJudgeStore) UpsertOutput(ctx context.Context, o *models.Output) error { return nil }
func (s *fakeJudgeStore) GetOutputByRunItem(ctx context.Context, runItemID string) (*models.Output, error) {
	return s.outputs[runItemID], nil
}
func (s *fakeJudgeStore) ListAllOutputs(ctx context.Context) ([]*models.Output, error) {
	var out []*models.Output
	for _, o := range s.outputs {
		out = append(out, o)
	}
	return out, nil
}

func (s *fakeJudgeStore) UpsertMetric(ctx context.Context, m *models.Metric) error { return nil }
func (s *fakeJudgeStore) GetMetricByRunItem(ctx context.Context, runItemID string) (*models.Metric, error) {
	return nil, nil
}
func (s *fakeJudgeStore) ListMetricsByRun(ctx context.Context, runID string) ([]*models.Metric, error) {
	return nil, nil
}
func (s *fakeJudgeStore) ListAllMetrics(ctx context.Context) ([]*models.Metric, error) { return nil, nil }

func (s *fakeJudgeStore) CreateToolCall(ctx context.Context, tc *models.ToolCall) error { return nil }
func (s *fakeJudgeStore) ListToolCallsByRunItem(ctx context.Context, runItemID string) ([]*models.ToolCall, error) {
	return nil, nil
}

func (s *fakeJudgeStore) CreateJudgeResult(ctx context.Context, jr *models.JudgeResult) error {
	s.judgeResults = append(s.judgeResults, jr)
	return nil
}
func (s *fakeJudgeStore) DeleteJudgeResultsByRun(ctx context.Context, runID string) error {
	s.judgeResults = nil
	return nil
}
func (s *fakeJudgeStore) ListJudgeResultsByRun(ctx context.Context, runID string) ([]*models.JudgeResult, error) {
	return s.judgeResults, nil
}
func (s *fakeJudgeStore) ListAllItemJudgeResults(ctx context.Context) ([]*models.JudgeResult, error) {
	var out []*models.JudgeResult
	for _, jr := range s.judgeResults {
		if jr.RunItemID != nil {
			out = append(out, jr)
		}
	}
	return out, nil
}

func (s *fakeJudgeStore) AppendTelemetryEvent(ctx context.Context, e *models.TelemetryEvent) error {
	return nil
}
func (s *fakeJudgeStore) EventsAfter(ctx context.Context, runID string, afterSeq int) ([]*models.TelemetryEvent, error) {
	return nil, nil
}

type fakeJudgeClient struct {
	responses []string
	calls     int
}

func (c *fakeJudgeClient) DiscoverModels(ctx context.Context, conn providers.ConnectionInfo, timeoutMs int) ([]string, error) {
	return nil, nil
}
func (c *fakeJudgeClient) TestConnection(ctx context.Context, conn providers.ConnectionInfo, timeoutMs int) (bool, int, []string, string) {
	return true, 0, nil, ""
}
func (c *fakeJudgeClient) Generate(ctx context.Context, conn providers.ConnectionInfo, req providers.ChatRequest, timeoutMs int, onToken providers.TokenCallback, onTelemetry providers.TelemetryCallback) (*providers.Response, error) {
	if c.calls >= len(c.responses) {
		return nil, fmt.Errorf("no scripted response left")
	}
	text := c.responses[c.calls]
	c.calls++
	return &providers.Response{Text: text}, nil
}

func newFixture(t *testing.T, responses []string) (*fakeJudgeStore, *fakeJudgeClient, *Pipeline) {
	t.Helper()
	conn := &models.Connection{ID: "conn-judge", Type: models.ConnectionOpenAICompat, BaseURL: "http://localhost"}
	judgeCar := &models.Car{ID: "car-judge", ConnectionID: conn.ID, ModelName: "judge-model"}
	test := &models.Test{ID: "test-1", Name: "greet", UserPrompt: "say hi"}
	output := &models.Output{RunItemID: "item-1", FinalText: strPtrForTest("hi there")}
	run := &models.Run{ID: "run-1", JudgeCarID: &judgeCar.ID}
	runItem := &models.RunItem{ID: "item-1", RunID: run.ID, TestID: test.ID, CarID: "car-1"}

	store := &fakeJudgeStore{
		run:         run,
		cars:        map[string]*models.Car{judgeCar.ID: judgeCar},
		connections: map[string]*models.Connection{conn.ID: conn},
		tests:       map[string]*models.Test{test.ID: test},
		runItems:    []*models.RunItem{runItem},
		outputs:     map[string]*models.Output{output.RunItemID: output},
	}
	client := &fakeJudgeClient{responses: responses}
	log := telemetry.New(store)
	return store, client, New(store, client, log, "", 1000, slog.Default())
}

func strPtrForTest(s string) *string { return &s }

func TestParseJudgeJSON_WholeTextPayload(t *testing.T) {
	raw := `{"writing_score":8,"coding_score":7,"tool_score":9,"overall":8,"rationale":"clear and correct"}`
	score, err := parseJudgeJSON(raw)
	if err != nil {
		t.Fatalf("parseJudgeJSON returned error: %v", err)
	}
	if score.Overall != 8 || score.Rationale != "clear and correct" {
		t.Fatalf("unexpected score: %+v", score)
	}
}

func TestParseJudgeJSON_RecoversFromMarkdownFence(t *testing.T) {
	raw := "```json\n{\"writing_score\":5,\"coding_score\":5,\"tool_score\":5,\"overall\":5,\"rationale\":\"ok\"}\n```"
	score, err := parseJudgeJSON(raw)
	if err != nil {
		t.Fatalf("parseJudgeJSON returned error: %v", err)
	}
	if score.Overall != 5 {
		t.Fatalf("overall = %v, want 5", score.Overall)
	}
}

func TestParseJudgeJSON_OutOfRangeScoreFails(t *testing.T) {
	raw := `{"writing_score":11,"coding_score":7,"tool_score":9,"overall":8,"rationale":"x"}`
	if _, err := parseJudgeJSON(raw); err == nil {
		t.Fatalf("expected an error for an out-of-range score")
	}
}

func TestRun_HappyPathProducesItemAndAggregateRows(t *testing.T) {
	store, _, pipeline := newFixture(t, []string{
		`{"writing_score":8,"coding_score":7,"tool_score":9,"overall":8,"rationale":"solid answer"}`,
	})

	summary, err := pipeline.Run(context.Background(), "run-1", "")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.ItemScores != 1 {
		t.Fatalf("item scores = %d, want 1", summary.ItemScores)
	}
	if summary.RunAggregate.Overall != 8 {
		t.Fatalf("run aggregate overall = %v, want 8", summary.RunAggregate.Overall)
	}
	if agg, ok := summary.CarAggregates["car-1"]; !ok || agg.Overall != 8 {
		t.Fatalf("car aggregate = %+v", summary.CarAggregates)
	}
	// one per-item row + one per-car aggregate row + one per-run aggregate row
	if len(store.judgeResults) != 3 {
		t.Fatalf("persisted judge results = %d, want 3", len(store.judgeResults))
	}
}

func TestRun_MalformedJudgeResponseYieldsZeroScoreRow(t *testing.T) {
	_, _, pipeline := newFixture(t, []string{"not json at all"})

	summary, err := pipeline.Run(context.Background(), "run-1", "")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if summary.RunAggregate.Overall != 0 {
		t.Fatalf("run aggregate overall = %v, want 0 after a parse failure", summary.RunAggregate.Overall)
	}
}

func TestRun_NoJudgeCarReturnsError(t *testing.T) {
	store, client, _ := newFixture(t, nil)
	store.run.JudgeCarID = nil
	log := telemetry.New(store)
	pipeline := New(store, client, log, "", 1000, slog.Default())

	if _, err := pipeline.Run(context.Background(), "run-1", ""); err == nil {
		t.Fatalf("expected an error when no judge car is configured")
	}
}
