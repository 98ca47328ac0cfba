package repository

import (
	"context"

	"github.com/llmrace/llmrace-backend/internal/models"
)

// Store is the durable persistence boundary for every entity in §3. Both the Postgres and
// SQLite implementations satisfy it; callers depend only on this interface.
type Store interface {
	Close() error
	Ping(ctx context.Context) error
	RunMigrations(migrationSQL string) error

	ConnectionRepository
	CarRepository
	SuiteRepository
	TestRepository
	ProviderSettingsRepository
	RunRepository
	RunItemRepository
	OutputRepository
	MetricRepository
	ToolCallRepository
	JudgeResultRepository
	TelemetryRepository
}

type ConnectionRepository interface {
	CreateConnection(ctx context.Context, c *models.Connection) error
	GetConnection(ctx context.Context, id string) (*models.Connection, error)
	ListConnections(ctx context.Context) ([]*models.Connection, error)
	UpdateConnection(ctx context.Context, c *models.Connection) error
	DeleteConnection(ctx context.Context, id string) error
}

type CarRepository interface {
	CreateCar(ctx context.Context, c *models.Car) error
	GetCar(ctx context.Context, id string) (*models.Car, error)
	ListCars(ctx context.Context) ([]*models.Car, error)
	UpdateCar(ctx context.Context, c *models.Car) error
	DeleteCar(ctx context.Context, id string) error
}

type SuiteRepository interface {
	CreateSuite(ctx context.Context, s *models.Suite) error
	GetSuite(ctx context.Context, id string) (*models.Suite, error)
	ListSuites(ctx context.Context) ([]*models.Suite, error)
	UpdateSuite(ctx context.Context, s *models.Suite) error
	DeleteSuite(ctx context.Context, id string) error
}

type TestRepository interface {
	CreateTest(ctx context.Context, t *models.Test) error
	GetTest(ctx context.Context, id string) (*models.Test, error)
	ListTestsBySuite(ctx context.Context, suiteID string) ([]*models.Test, error) // order_index asc
	UpdateTest(ctx context.Context, t *models.Test) error
	DeleteTest(ctx context.Context, id string) error
}

type ProviderSettingsRepository interface {
	GetProviderSettings(ctx context.Context, providerType models.ConnectionType) (*models.ProviderSettings, error)
	ListProviderSettings(ctx context.Context) ([]*models.ProviderSettings, error)
	UpsertProviderSettings(ctx context.Context, s *models.ProviderSettings) error
}

type RunRepository interface {
	CreateRun(ctx context.Context, r *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context) ([]*models.Run, error)
	UpdateRun(ctx context.Context, r *models.Run) error
}

type RunItemRepository interface {
	CreateRunItem(ctx context.Context, it *models.RunItem) error
	GetRunItem(ctx context.Context, id string) (*models.RunItem, error)
	ListRunItemsByRun(ctx context.Context, runID string) ([]*models.RunItem, error)
	// ListAllRunItems backs the cross-run Leaderboard view (§4.G): every RunItem with a
	// non-null car_id, across every Run.
	ListAllRunItems(ctx context.Context) ([]*models.RunItem, error)
	UpdateRunItem(ctx context.Context, it *models.RunItem) error
}

type OutputRepository interface {
	UpsertOutput(ctx context.Context, o *models.Output) error
	GetOutputByRunItem(ctx context.Context, runItemID string) (*models.Output, error)
	// ListAllOutputs backs the cross-run Leaderboard view's assertion-pass-rate aggregate.
	ListAllOutputs(ctx context.Context) ([]*models.Output, error)
}

type MetricRepository interface {
	UpsertMetric(ctx context.Context, m *models.Metric) error
	GetMetricByRunItem(ctx context.Context, runItemID string) (*models.Metric, error)
	ListMetricsByRun(ctx context.Context, runID string) ([]*models.Metric, error)
	// ListAllMetrics backs the cross-run Leaderboard view.
	ListAllMetrics(ctx context.Context) ([]*models.Metric, error)
}

type ToolCallRepository interface {
	CreateToolCall(ctx context.Context, tc *models.ToolCall) error
	ListToolCallsByRunItem(ctx context.Context, runItemID string) ([]*models.ToolCall, error)
}

type JudgeResultRepository interface {
	CreateJudgeResult(ctx context.Context, jr *models.JudgeResult) error
	DeleteJudgeResultsByRun(ctx context.Context, runID string) error
	ListJudgeResultsByRun(ctx context.Context, runID string) ([]*models.JudgeResult, error)
	// ListAllItemJudgeResults backs the cross-run Leaderboard view: every per-item
	// (run_item_id set) JudgeResult across every Run.
	ListAllItemJudgeResults(ctx context.Context) ([]*models.JudgeResult, error)
}

type TelemetryRepository interface {
	// AppendTelemetryEvent assigns the next seq_no for run_id atomically and stores the event.
	AppendTelemetryEvent(ctx context.Context, e *models.TelemetryEvent) error
	// EventsAfter returns events for run_id with seq_no > afterSeq, ordered by seq_no asc.
	EventsAfter(ctx context.Context, runID string, afterSeq int) ([]*models.TelemetryEvent, error)
}
