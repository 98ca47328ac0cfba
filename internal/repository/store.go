// Package repository implements the durable Store (§3, §6) over two interchangeable sqlx
// backends (Postgres, SQLite), following the teacher's struct-wraps-*sqlx.DB, CRUD-delegates-to-
// private-helpers shape. Query text uses sqlx named bindvars (":field") so it runs unmodified
// against both drivers' placeholder styles.
package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/llmrace/llmrace-backend/internal/models"
)

// sqlStore holds the CRUD logic shared by PostgresStore and SQLiteStore.
type sqlStore struct {
	db *sqlx.DB

	// seqMu guards the read-max-then-insert sequence assignment per run_id (§5: "telemetry
	// append... must be serialized such that the (run_id, seq_no) assignment is atomic").
	seqMu   sync.Mutex
	seqLock map[string]*sync.Mutex
}

func newSQLStore(db *sqlx.DB) sqlStore {
	return sqlStore{db: db, seqLock: make(map[string]*sync.Mutex)}
}

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) RunMigrations(migrationSQL string) error {
	_, err := s.db.Exec(migrationSQL)
	return err
}

func (s *sqlStore) lockFor(runID string) *sync.Mutex {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	l, ok := s.seqLock[runID]
	if !ok {
		l = &sync.Mutex{}
		s.seqLock[runID] = l
	}
	return l
}

// --- Connection ---

func (s *sqlStore) CreateConnection(ctx context.Context, c *models.Connection) error {
	return instrumentQuery("create_connection", func() error {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		c.CreatedAt, c.UpdatedAt = now, now
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO connections (id, name, type, base_url, api_key_encrypted, api_key_env_var, created_at, updated_at)
			VALUES (:id, :name, :type, :base_url, :api_key_encrypted, :api_key_env_var, :created_at, :updated_at)`, c)
		return err
	})
}

func (s *sqlStore) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	var c models.Connection
	err := instrumentQuery("get_connection", func() error {
		return s.db.GetContext(ctx, &c, s.db.Rebind(`SELECT * FROM connections WHERE id = ?`), id)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *sqlStore) ListConnections(ctx context.Context) ([]*models.Connection, error) {
	var out []*models.Connection
	err := instrumentQuery("list_connections", func() error {
		return s.db.SelectContext(ctx, &out, `SELECT * FROM connections ORDER BY name ASC`)
	})
	return out, err
}

func (s *sqlStore) UpdateConnection(ctx context.Context, c *models.Connection) error {
	return instrumentQuery("update_connection", func() error {
		c.UpdatedAt = time.Now().UTC()
		_, err := s.db.NamedExecContext(ctx, `
			UPDATE connections SET name=:name, type=:type, base_url=:base_url,
				api_key_encrypted=:api_key_encrypted, api_key_env_var=:api_key_env_var, updated_at=:updated_at
			WHERE id = :id`, c)
		return err
	})
}

func (s *sqlStore) DeleteConnection(ctx context.Context, id string) error {
	return instrumentQuery("delete_connection", func() error {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM connections WHERE id = ?`), id)
		return err
	})
}

// --- Car ---

func (s *sqlStore) CreateCar(ctx context.Context, c *models.Car) error {
	return instrumentQuery("create_car", func() error {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		c.CreatedAt, c.UpdatedAt = now, now
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO cars (id, name, connection_id, model_name, temperature, top_p, max_tokens, stop, seed, created_at, updated_at)
			VALUES (:id, :name, :connection_id, :model_name, :temperature, :top_p, :max_tokens, :stop, :seed, :created_at, :updated_at)`, c)
		return err
	})
}

func (s *sqlStore) GetCar(ctx context.Context, id string) (*models.Car, error) {
	var c models.Car
	err := instrumentQuery("get_car", func() error {
		return s.db.GetContext(ctx, &c, s.db.Rebind(`SELECT * FROM cars WHERE id = ?`), id)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *sqlStore) ListCars(ctx context.Context) ([]*models.Car, error) {
	var out []*models.Car
	err := instrumentQuery("list_cars", func() error {
		return s.db.SelectContext(ctx, &out, `SELECT * FROM cars ORDER BY name ASC`)
	})
	return out, err
}

func (s *sqlStore) UpdateCar(ctx context.Context, c *models.Car) error {
	return instrumentQuery("update_car", func() error {
		c.UpdatedAt = time.Now().UTC()
		_, err := s.db.NamedExecContext(ctx, `
			UPDATE cars SET name=:name, connection_id=:connection_id, model_name=:model_name,
				temperature=:temperature, top_p=:top_p, max_tokens=:max_tokens, stop=:stop, seed=:seed, updated_at=:updated_at
			WHERE id = :id`, c)
		return err
	})
}

func (s *sqlStore) DeleteCar(ctx context.Context, id string) error {
	return instrumentQuery("delete_car", func() error {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM cars WHERE id = ?`), id)
		return err
	})
}

// --- Suite ---

func (s *sqlStore) CreateSuite(ctx context.Context, suite *models.Suite) error {
	return instrumentQuery("create_suite", func() error {
		if suite.ID == "" {
			suite.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		suite.CreatedAt, suite.UpdatedAt = now, now
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO suites (id, name, category, is_demo, created_at, updated_at)
			VALUES (:id, :name, :category, :is_demo, :created_at, :updated_at)`, suite)
		return err
	})
}

func (s *sqlStore) GetSuite(ctx context.Context, id string) (*models.Suite, error) {
	var suite models.Suite
	err := instrumentQuery("get_suite", func() error {
		return s.db.GetContext(ctx, &suite, s.db.Rebind(`SELECT * FROM suites WHERE id = ?`), id)
	})
	if err != nil {
		return nil, err
	}
	return &suite, nil
}

func (s *sqlStore) ListSuites(ctx context.Context) ([]*models.Suite, error) {
	var out []*models.Suite
	err := instrumentQuery("list_suites", func() error {
		return s.db.SelectContext(ctx, &out, `SELECT * FROM suites ORDER BY name ASC`)
	})
	return out, err
}

func (s *sqlStore) UpdateSuite(ctx context.Context, suite *models.Suite) error {
	return instrumentQuery("update_suite", func() error {
		suite.UpdatedAt = time.Now().UTC()
		_, err := s.db.NamedExecContext(ctx, `
			UPDATE suites SET name=:name, category=:category, is_demo=:is_demo, updated_at=:updated_at WHERE id = :id`, suite)
		return err
	})
}

func (s *sqlStore) DeleteSuite(ctx context.Context, id string) error {
	return instrumentQuery("delete_suite", func() error {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM suites WHERE id = ?`), id)
		return err
	})
}

// --- Test ---

func (s *sqlStore) CreateTest(ctx context.Context, t *models.Test) error {
	return instrumentQuery("create_test", func() error {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		t.CreatedAt = time.Now().UTC()
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO tests (id, suite_id, order_index, name, system_prompt, user_prompt, expected_constraints, tools_schema, created_at)
			VALUES (:id, :suite_id, :order_index, :name, :system_prompt, :user_prompt, :expected_constraints, :tools_schema, :created_at)`, t)
		return err
	})
}

func (s *sqlStore) GetTest(ctx context.Context, id string) (*models.Test, error) {
	var t models.Test
	err := instrumentQuery("get_test", func() error {
		return s.db.GetContext(ctx, &t, s.db.Rebind(`SELECT * FROM tests WHERE id = ?`), id)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *sqlStore) ListTestsBySuite(ctx context.Context, suiteID string) ([]*models.Test, error) {
	var out []*models.Test
	err := instrumentQuery("list_tests_by_suite", func() error {
		return s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT * FROM tests WHERE suite_id = ? ORDER BY order_index ASC`), suiteID)
	})
	return out, err
}

func (s *sqlStore) UpdateTest(ctx context.Context, t *models.Test) error {
	return instrumentQuery("update_test", func() error {
		_, err := s.db.NamedExecContext(ctx, `
			UPDATE tests SET order_index=:order_index, name=:name, system_prompt=:system_prompt,
				user_prompt=:user_prompt, expected_constraints=:expected_constraints, tools_schema=:tools_schema
			WHERE id = :id`, t)
		return err
	})
}

func (s *sqlStore) DeleteTest(ctx context.Context, id string) error {
	return instrumentQuery("delete_test", func() error {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM tests WHERE id = ?`), id)
		return err
	})
}

// --- ProviderSettings ---

func (s *sqlStore) GetProviderSettings(ctx context.Context, providerType models.ConnectionType) (*models.ProviderSettings, error) {
	var ps models.ProviderSettings
	err := instrumentQuery("get_provider_settings", func() error {
		return s.db.GetContext(ctx, &ps, s.db.Rebind(`SELECT * FROM provider_settings WHERE provider_type = ?`), providerType)
	})
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

func (s *sqlStore) ListProviderSettings(ctx context.Context) ([]*models.ProviderSettings, error) {
	var out []*models.ProviderSettings
	err := instrumentQuery("list_provider_settings", func() error {
		return s.db.SelectContext(ctx, &out, `SELECT * FROM provider_settings ORDER BY provider_type ASC`)
	})
	return out, err
}

func (s *sqlStore) UpsertProviderSettings(ctx context.Context, ps *models.ProviderSettings) error {
	return instrumentQuery("upsert_provider_settings", func() error {
		if ps.ID == "" {
			ps.ID = uuid.New().String()
		}
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO provider_settings (id, provider_type, max_in_flight, timeout_ms, retry_count, retry_backoff_ms)
			VALUES (:id, :provider_type, :max_in_flight, :timeout_ms, :retry_count, :retry_backoff_ms)
			ON CONFLICT (provider_type) DO UPDATE SET
				max_in_flight = excluded.max_in_flight,
				timeout_ms = excluded.timeout_ms,
				retry_count = excluded.retry_count,
				retry_backoff_ms = excluded.retry_backoff_ms`, ps)
		return err
	})
}

// --- Run ---

func (s *sqlStore) CreateRun(ctx context.Context, r *models.Run) error {
	return instrumentQuery("create_run", func() error {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.CreatedAt = time.Now().UTC()
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO runs (id, suite_id, status, started_at, finished_at, selected_car_ids, judge_car_id, created_at)
			VALUES (:id, :suite_id, :status, :started_at, :finished_at, :selected_car_ids, :judge_car_id, :created_at)`, r)
		return err
	})
}

func (s *sqlStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var r models.Run
	err := instrumentQuery("get_run", func() error {
		return s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT * FROM runs WHERE id = ?`), id)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *sqlStore) ListRuns(ctx context.Context) ([]*models.Run, error) {
	var out []*models.Run
	err := instrumentQuery("list_runs", func() error {
		return s.db.SelectContext(ctx, &out, `SELECT * FROM runs ORDER BY created_at DESC`)
	})
	return out, err
}

func (s *sqlStore) UpdateRun(ctx context.Context, r *models.Run) error {
	return instrumentQuery("update_run", func() error {
		_, err := s.db.NamedExecContext(ctx, `
			UPDATE runs SET status=:status, started_at=:started_at, finished_at=:finished_at,
				selected_car_ids=:selected_car_ids, judge_car_id=:judge_car_id WHERE id = :id`, r)
		return err
	})
}

// --- RunItem ---

func (s *sqlStore) CreateRunItem(ctx context.Context, it *models.RunItem) error {
	return instrumentQuery("create_run_item", func() error {
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO run_items (id, run_id, test_id, car_id, status, attempt_count, started_at, finished_at, error_message)
			VALUES (:id, :run_id, :test_id, :car_id, :status, :attempt_count, :started_at, :finished_at, :error_message)`, it)
		return err
	})
}

func (s *sqlStore) GetRunItem(ctx context.Context, id string) (*models.RunItem, error) {
	var it models.RunItem
	err := instrumentQuery("get_run_item", func() error {
		return s.db.GetContext(ctx, &it, s.db.Rebind(`SELECT * FROM run_items WHERE id = ?`), id)
	})
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *sqlStore) ListRunItemsByRun(ctx context.Context, runID string) ([]*models.RunItem, error) {
	var out []*models.RunItem
	err := instrumentQuery("list_run_items_by_run", func() error {
		return s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT * FROM run_items WHERE run_id = ? ORDER BY rowid ASC`), runID)
	})
	return out, err
}

func (s *sqlStore) ListAllRunItems(ctx context.Context) ([]*models.RunItem, error) {
	var out []*models.RunItem
	err := instrumentQuery("list_all_run_items", func() error {
		return s.db.SelectContext(ctx, &out, `SELECT * FROM run_items`)
	})
	return out, err
}

func (s *sqlStore) UpdateRunItem(ctx context.Context, it *models.RunItem) error {
	return instrumentQuery("update_run_item", func() error {
		_, err := s.db.NamedExecContext(ctx, `
			UPDATE run_items SET status=:status, attempt_count=:attempt_count, started_at=:started_at,
				finished_at=:finished_at, error_message=:error_message WHERE id = :id`, it)
		return err
	})
}

// --- Output ---

func (s *sqlStore) UpsertOutput(ctx context.Context, o *models.Output) error {
	return instrumentQuery("upsert_output", func() error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO outputs (run_item_id, request_messages_json, streamed_text, final_text, raw_provider_payload)
			VALUES (:run_item_id, :request_messages_json, :streamed_text, :final_text, :raw_provider_payload)
			ON CONFLICT (run_item_id) DO UPDATE SET
				request_messages_json = excluded.request_messages_json,
				streamed_text = excluded.streamed_text,
				final_text = excluded.final_text,
				raw_provider_payload = excluded.raw_provider_payload`, o)
		return err
	})
}

func (s *sqlStore) GetOutputByRunItem(ctx context.Context, runItemID string) (*models.Output, error) {
	var o models.Output
	err := instrumentQuery("get_output_by_run_item", func() error {
		return s.db.GetContext(ctx, &o, s.db.Rebind(`SELECT * FROM outputs WHERE run_item_id = ?`), runItemID)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *sqlStore) ListAllOutputs(ctx context.Context) ([]*models.Output, error) {
	var out []*models.Output
	err := instrumentQuery("list_all_outputs", func() error {
		return s.db.SelectContext(ctx, &out, `SELECT * FROM outputs`)
	})
	return out, err
}

// --- Metric ---

func (s *sqlStore) UpsertMetric(ctx context.Context, m *models.Metric) error {
	return instrumentQuery("upsert_metric", func() error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO metrics (run_item_id, ttft_ms, total_latency_ms, generation_ms, output_tokens, output_tokens_estimated, tokens_per_sec, error_flag)
			VALUES (:run_item_id, :ttft_ms, :total_latency_ms, :generation_ms, :output_tokens, :output_tokens_estimated, :tokens_per_sec, :error_flag)
			ON CONFLICT (run_item_id) DO UPDATE SET
				ttft_ms = excluded.ttft_ms,
				total_latency_ms = excluded.total_latency_ms,
				generation_ms = excluded.generation_ms,
				output_tokens = excluded.output_tokens,
				output_tokens_estimated = excluded.output_tokens_estimated,
				tokens_per_sec = excluded.tokens_per_sec,
				error_flag = excluded.error_flag`, m)
		return err
	})
}

func (s *sqlStore) GetMetricByRunItem(ctx context.Context, runItemID string) (*models.Metric, error) {
	var m models.Metric
	err := instrumentQuery("get_metric_by_run_item", func() error {
		return s.db.GetContext(ctx, &m, s.db.Rebind(`SELECT * FROM metrics WHERE run_item_id = ?`), runItemID)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *sqlStore) ListMetricsByRun(ctx context.Context, runID string) ([]*models.Metric, error) {
	var out []*models.Metric
	err := instrumentQuery("list_metrics_by_run", func() error {
		return s.db.SelectContext(ctx, &out, s.db.Rebind(`
			SELECT m.* FROM metrics m JOIN run_items ri ON ri.id = m.run_item_id WHERE ri.run_id = ?`), runID)
	})
	return out, err
}

func (s *sqlStore) ListAllMetrics(ctx context.Context) ([]*models.Metric, error) {
	var out []*models.Metric
	err := instrumentQuery("list_all_metrics", func() error {
		return s.db.SelectContext(ctx, &out, `SELECT * FROM metrics`)
	})
	return out, err
}

// --- ToolCall ---

func (s *sqlStore) CreateToolCall(ctx context.Context, tc *models.ToolCall) error {
	return instrumentQuery("create_tool_call", func() error {
		if tc.ID == "" {
			tc.ID = uuid.New().String()
		}
		tc.CreatedAt = time.Now().UTC()
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO tool_calls (id, run_item_id, loop_index, tool_name, args, result, status, provider_style, created_at)
			VALUES (:id, :run_item_id, :loop_index, :tool_name, :args, :result, :status, :provider_style, :created_at)`, tc)
		return err
	})
}

func (s *sqlStore) ListToolCallsByRunItem(ctx context.Context, runItemID string) ([]*models.ToolCall, error) {
	var out []*models.ToolCall
	err := instrumentQuery("list_tool_calls_by_run_item", func() error {
		return s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT * FROM tool_calls WHERE run_item_id = ? ORDER BY loop_index ASC, created_at ASC`), runItemID)
	})
	return out, err
}

// --- JudgeResult ---

func (s *sqlStore) CreateJudgeResult(ctx context.Context, jr *models.JudgeResult) error {
	return instrumentQuery("create_judge_result", func() error {
		if jr.ID == "" {
			jr.ID = uuid.New().String()
		}
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO judge_results (id, run_id, run_item_id, car_id, writing_score, coding_score, tool_score, overall, rationale, raw)
			VALUES (:id, :run_id, :run_item_id, :car_id, :writing_score, :coding_score, :tool_score, :overall, :rationale, :raw)`, jr)
		return err
	})
}

func (s *sqlStore) DeleteJudgeResultsByRun(ctx context.Context, runID string) error {
	return instrumentQuery("delete_judge_results_by_run", func() error {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM judge_results WHERE run_id = ?`), runID)
		return err
	})
}

func (s *sqlStore) ListJudgeResultsByRun(ctx context.Context, runID string) ([]*models.JudgeResult, error) {
	var out []*models.JudgeResult
	err := instrumentQuery("list_judge_results_by_run", func() error {
		return s.db.SelectContext(ctx, &out, s.db.Rebind(`SELECT * FROM judge_results WHERE run_id = ?`), runID)
	})
	return out, err
}

func (s *sqlStore) ListAllItemJudgeResults(ctx context.Context) ([]*models.JudgeResult, error) {
	var out []*models.JudgeResult
	err := instrumentQuery("list_all_item_judge_results", func() error {
		return s.db.SelectContext(ctx, &out, `SELECT * FROM judge_results WHERE run_item_id IS NOT NULL`)
	})
	return out, err
}

// --- TelemetryEvent ---

func (s *sqlStore) AppendTelemetryEvent(ctx context.Context, e *models.TelemetryEvent) error {
	return instrumentQuery("append_telemetry_event", func() error {
		lock := s.lockFor(e.RunID)
		lock.Lock()
		defer lock.Unlock()

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var maxSeq int
		if err := tx.GetContext(ctx, &maxSeq, tx.Rebind(`SELECT COALESCE(MAX(seq_no), 0) FROM telemetry_events WHERE run_id = ?`), e.RunID); err != nil {
			return err
		}

		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		e.SeqNo = maxSeq + 1
		e.CreatedAt = time.Now().UTC()

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO telemetry_events (id, run_id, run_item_id, seq_no, event_type, payload_json, created_at)
			VALUES (:id, :run_id, :run_item_id, :seq_no, :event_type, :payload_json, :created_at)`, e); err != nil {
			return err
		}

		return tx.Commit()
	})
}

func (s *sqlStore) EventsAfter(ctx context.Context, runID string, afterSeq int) ([]*models.TelemetryEvent, error) {
	var out []*models.TelemetryEvent
	err := instrumentQuery("events_after", func() error {
		return s.db.SelectContext(ctx, &out, s.db.Rebind(`
			SELECT * FROM telemetry_events WHERE run_id = ? AND seq_no > ? ORDER BY seq_no ASC`), runID, afterSeq)
	})
	return out, err
}
