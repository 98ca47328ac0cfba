// Package views implements the Read-side Views (§4.G): the cross-run Leaderboard, the
// single-run Scorecard, and the two-run Comparison. Grounded on original_source's
// app/api/leaderboard.py (_build_run_scorecard_rows's aggregation shape is shared between
// the cross-run and single-run views here, the way the Python's leaderboard() and
// _build_run_scorecard_rows() duplicate the same bucket-then-average pattern) and
// app/api/runs.py (_build_run_scorecard_rows, _classify_delta).
package views

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/repository"
)

// ScorecardRow is one Car's aggregate numbers, restricted to a single Run.
type ScorecardRow struct {
	CarID                string   `json:"car_id"`
	CarName              string   `json:"car_name"`
	ModelName            string   `json:"model_name"`
	ItemsTotal           int      `json:"items_total"`
	ItemsCompleted       int      `json:"items_completed"`
	ItemsFailed          int      `json:"items_failed"`
	ItemsPartial         int      `json:"items_partial"`
	ErrorRate            float64  `json:"error_rate"`
	AvgTTFTMs            *float64 `json:"avg_ttft_ms,omitempty"`
	AvgLatencyMs         *float64 `json:"avg_latency_ms,omitempty"`
	AvgTokensPerSec      *float64 `json:"avg_tokens_per_sec,omitempty"`
	AssertionPassRate    *float64 `json:"assertion_pass_rate,omitempty"`
	AvgJudgeOverall      *float64 `json:"avg_judge_overall,omitempty"`
}

// LeaderboardRow is ScorecardRow's shape plus the Connection name, aggregated across
// every Run the Car has appeared in.
type LeaderboardRow struct {
	CarID                string   `json:"car_id"`
	CarName              string   `json:"car_name"`
	ConnectionName       string   `json:"connection_name"`
	ModelName            string   `json:"model_name"`
	ItemsTotal           int      `json:"items_total"`
	ItemsFailed          int      `json:"items_failed"`
	ItemsPartial         int      `json:"items_partial"`
	ErrorRate            float64  `json:"error_rate"`
	AvgTTFTMs            *float64 `json:"avg_ttft_ms,omitempty"`
	AvgLatencyMs         *float64 `json:"avg_latency_ms,omitempty"`
	AvgTokensPerSec      *float64 `json:"avg_tokens_per_sec,omitempty"`
	AvgAssertionPassRate *float64 `json:"avg_assertion_pass_rate,omitempty"`
	AvgJudgeOverall      *float64 `json:"avg_judge_overall,omitempty"`
}

// ComparisonRow is one Car's signed deltas between a current Run and a baseline Run.
type ComparisonRow struct {
	CarID                  string   `json:"car_id"`
	CarName                string   `json:"car_name"`
	ModelName              string   `json:"model_name"`
	LatencyDeltaMs         *float64 `json:"latency_delta_ms,omitempty"`
	TokensPerSecDelta      *float64 `json:"tokens_per_sec_delta,omitempty"`
	ErrorRateDelta         *float64 `json:"error_rate_delta,omitempty"`
	AssertionPassRateDelta *float64 `json:"assertion_pass_rate_delta,omitempty"`
	JudgeOverallDelta      *float64 `json:"judge_overall_delta,omitempty"`
	Summary                string   `json:"summary"`
}

// ComparisonResult is the /compare response body.
type ComparisonResult struct {
	RunID         string          `json:"run_id"`
	BaselineRunID string          `json:"baseline_run_id"`
	Rows          []ComparisonRow `json:"rows"`
}

type bucket struct {
	itemsTotal, itemsCompleted, itemsFailed, itemsPartial int
	errorCount                                            int
	ttftSum                                               float64
	ttftCount                                              int
	latencySum                                            float64
	latencyCount                                           int
	tpsSum                                                float64
	tpsCount                                               int
	assertionsPassed, assertionsTotal                     int
	judgeSum                                              float64
	judgeCount                                             int
}

func (b *bucket) avgTTFT() *float64       { return avgOrNil(b.ttftSum, b.ttftCount) }
func (b *bucket) avgLatency() *float64    { return avgOrNil(b.latencySum, b.latencyCount) }
func (b *bucket) avgTPS() *float64        { return avgOrNil(b.tpsSum, b.tpsCount) }
func (b *bucket) avgJudge() *float64      { return avgOrNil(b.judgeSum, b.judgeCount) }
func (b *bucket) assertionRate() *float64 {
	if b.assertionsTotal <= 0 {
		return nil
	}
	v := float64(b.assertionsPassed) / float64(b.assertionsTotal)
	return &v
}
func (b *bucket) errorRate() float64 {
	if b.itemsTotal <= 0 {
		return 0
	}
	return float64(b.errorCount) / float64(b.itemsTotal)
}

func avgOrNil(sum float64, count int) *float64 {
	if count <= 0 {
		return nil
	}
	v := sum / float64(count)
	return &v
}

// Views reads the aggregate Read-side projections over the durable Store.
type Views struct {
	store repository.Store
}

func New(store repository.Store) *Views {
	return &Views{store: store}
}

// Scorecard is one Run's per-car aggregates (§4.G: "same shape restricted to one run").
func (v *Views) Scorecard(ctx context.Context, runID string) ([]ScorecardRow, error) {
	run, err := v.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	items, err := v.store.ListRunItemsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	metrics, err := v.store.ListMetricsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	metricsByItem := map[string]*models.Metric{}
	for _, m := range metrics {
		metricsByItem[m.RunItemID] = m
	}

	judgeResults, err := v.store.ListJudgeResultsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	judgeByItem := map[string]*models.JudgeResult{}
	for _, jr := range judgeResults {
		if jr.RunItemID != nil {
			judgeByItem[*jr.RunItemID] = jr
		}
	}

	buckets := map[string]*bucket{}
	for _, item := range items {
		b := buckets[item.CarID]
		if b == nil {
			b = &bucket{}
			buckets[item.CarID] = b
		}
		b.itemsTotal++
		switch item.Status {
		case models.RunItemCompleted:
			b.itemsCompleted++
		case models.RunItemFailed:
			b.itemsFailed++
		case models.RunItemPartialToolSupport:
			b.itemsPartial++
		}

		if metric, ok := metricsByItem[item.ID]; ok {
			applyMetric(b, metric)
		} else if item.Status == models.RunItemFailed {
			b.errorCount++
		}

		output, err := v.store.GetOutputByRunItem(ctx, item.ID)
		if err == nil && output != nil {
			applyAssertions(b, output)
		}

		if judge, ok := judgeByItem[item.ID]; ok {
			b.judgeSum += judge.Overall
			b.judgeCount++
		}
	}

	carNames := map[string]*models.Car{}
	for carID := range buckets {
		car, err := v.store.GetCar(ctx, carID)
		if err != nil {
			return nil, err
		}
		carNames[carID] = car
	}

	rows := make([]ScorecardRow, 0, len(buckets))
	for carID, b := range buckets {
		car := carNames[carID]
		name, model := fmt.Sprintf("car:%s", carID), "unknown"
		if car != nil {
			name, model = car.Name, car.ModelName
		}
		rows = append(rows, ScorecardRow{
			CarID: carID, CarName: name, ModelName: model,
			ItemsTotal: b.itemsTotal, ItemsCompleted: b.itemsCompleted, ItemsFailed: b.itemsFailed, ItemsPartial: b.itemsPartial,
			ErrorRate: b.errorRate(), AvgTTFTMs: b.avgTTFT(), AvgLatencyMs: b.avgLatency(), AvgTokensPerSec: b.avgTPS(),
			AssertionPassRate: b.assertionRate(), AvgJudgeOverall: b.avgJudge(),
		})
	}
	sortScorecardRows(rows)
	return rows, nil
}

// Leaderboard aggregates every RunItem across every Run, per Car (§4.G).
func (v *Views) Leaderboard(ctx context.Context) ([]LeaderboardRow, error) {
	items, err := v.store.ListAllRunItems(ctx)
	if err != nil {
		return nil, err
	}

	metrics, err := v.store.ListAllMetrics(ctx)
	if err != nil {
		return nil, err
	}
	metricsByItem := map[string]*models.Metric{}
	for _, m := range metrics {
		metricsByItem[m.RunItemID] = m
	}

	outputs, err := v.store.ListAllOutputs(ctx)
	if err != nil {
		return nil, err
	}
	outputsByItem := map[string]*models.Output{}
	for _, o := range outputs {
		outputsByItem[o.RunItemID] = o
	}

	judgeResults, err := v.store.ListAllItemJudgeResults(ctx)
	if err != nil {
		return nil, err
	}
	// Judge rows are keyed by run_item_id; resolve each to its owning Car via the item list.
	judgeByCar := map[string][]float64{}
	itemByID := map[string]*models.RunItem{}
	for _, it := range items {
		itemByID[it.ID] = it
	}
	for _, jr := range judgeResults {
		if jr.RunItemID == nil {
			continue
		}
		item, ok := itemByID[*jr.RunItemID]
		if !ok {
			continue
		}
		judgeByCar[item.CarID] = append(judgeByCar[item.CarID], jr.Overall)
	}

	buckets := map[string]*bucket{}
	for _, item := range items {
		b := buckets[item.CarID]
		if b == nil {
			b = &bucket{}
			buckets[item.CarID] = b
		}
		b.itemsTotal++
		if item.Status == models.RunItemFailed {
			b.itemsFailed++
		}
		if item.Status == models.RunItemPartialToolSupport {
			b.itemsPartial++
		}
		if metric, ok := metricsByItem[item.ID]; ok {
			applyMetric(b, metric)
		}
		if output, ok := outputsByItem[item.ID]; ok {
			applyAssertions(b, output)
		}
	}

	rows := make([]LeaderboardRow, 0, len(buckets))
	for carID, b := range buckets {
		car, err := v.store.GetCar(ctx, carID)
		if err != nil {
			return nil, err
		}
		if car == nil {
			continue
		}
		connection, err := v.store.GetConnection(ctx, car.ConnectionID)
		if err != nil {
			return nil, err
		}
		connName := "unknown"
		if connection != nil {
			connName = connection.Name
		}

		row := LeaderboardRow{
			CarID: carID, CarName: car.Name, ConnectionName: connName, ModelName: car.ModelName,
			ItemsTotal: b.itemsTotal, ItemsFailed: b.itemsFailed, ItemsPartial: b.itemsPartial,
			ErrorRate: b.errorRate(), AvgTTFTMs: b.avgTTFT(), AvgLatencyMs: b.avgLatency(), AvgTokensPerSec: b.avgTPS(),
			AvgAssertionPassRate: b.assertionRate(),
		}
		if values := judgeByCar[carID]; len(values) > 0 {
			var sum float64
			for _, v := range values {
				sum += v
			}
			mean := sum / float64(len(values))
			row.AvgJudgeOverall = &mean
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return lessByLeaderboardRank(rows[i], rows[j])
	})
	return rows, nil
}

// Compare pairs cars present in both runs and classifies the delta per car (§4.G).
func (v *Views) Compare(ctx context.Context, runID, baselineRunID string) (*ComparisonResult, error) {
	if runID == baselineRunID {
		return nil, fmt.Errorf("baseline run must be different from the current run")
	}
	current, err := v.Scorecard(ctx, runID)
	if err != nil {
		return nil, err
	}
	baseline, err := v.Scorecard(ctx, baselineRunID)
	if err != nil {
		return nil, err
	}
	baselineByCar := map[string]ScorecardRow{}
	for _, row := range baseline {
		baselineByCar[row.CarID] = row
	}

	rows := make([]ComparisonRow, 0, len(current))
	for _, cur := range current {
		base, ok := baselineByCar[cur.CarID]
		if !ok {
			rows = append(rows, ComparisonRow{
				CarID: cur.CarID, CarName: cur.CarName, ModelName: cur.ModelName,
				Summary: "new profile in current run",
			})
			continue
		}

		latencyDelta := deltaOrNil(cur.AvgLatencyMs, base.AvgLatencyMs)
		tpsDelta := deltaOrNil(cur.AvgTokensPerSec, base.AvgTokensPerSec)
		errorDelta := cur.ErrorRate - base.ErrorRate
		assertionDelta := deltaOrNil(cur.AssertionPassRate, base.AssertionPassRate)
		judgeDelta := deltaOrNil(cur.AvgJudgeOverall, base.AvgJudgeOverall)

		rows = append(rows, ComparisonRow{
			CarID: cur.CarID, CarName: cur.CarName, ModelName: cur.ModelName,
			LatencyDeltaMs: latencyDelta, TokensPerSecDelta: tpsDelta, ErrorRateDelta: &errorDelta,
			AssertionPassRateDelta: assertionDelta, JudgeOverallDelta: judgeDelta,
			Summary: classifyDelta(latencyDelta, tpsDelta, &errorDelta, assertionDelta, judgeDelta),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].CarName) < strings.ToLower(rows[j].CarName)
	})
	return &ComparisonResult{RunID: runID, BaselineRunID: baselineRunID, Rows: rows}, nil
}

// classifyDelta scores each signal (+1 improved, -1 regressed, 0 neutral) and buckets the
// total into "improved"/"regressed"/"mixed", per §4.G's exact thresholds.
func classifyDelta(latencyDelta, tpsDelta, errorDelta, assertionDelta, judgeDelta *float64) string {
	score := 0
	if latencyDelta != nil {
		switch {
		case *latencyDelta <= -50:
			score++
		case *latencyDelta >= 50:
			score--
		}
	}
	if tpsDelta != nil {
		switch {
		case *tpsDelta >= 0.5:
			score++
		case *tpsDelta <= -0.5:
			score--
		}
	}
	if errorDelta != nil {
		switch {
		case *errorDelta <= -0.05:
			score++
		case *errorDelta >= 0.05:
			score--
		}
	}
	if assertionDelta != nil {
		switch {
		case *assertionDelta >= 0.05:
			score++
		case *assertionDelta <= -0.05:
			score--
		}
	}
	if judgeDelta != nil {
		switch {
		case *judgeDelta >= 0.3:
			score++
		case *judgeDelta <= -0.3:
			score--
		}
	}

	switch {
	case score >= 2:
		return "improved"
	case score <= -2:
		return "regressed"
	default:
		return "mixed"
	}
}

func deltaOrNil(current, baseline *float64) *float64 {
	if current == nil || baseline == nil {
		return nil
	}
	d := *current - *baseline
	return &d
}

func applyMetric(b *bucket, m *models.Metric) {
	if m.ErrorFlag {
		b.errorCount++
	}
	if m.TTFTMs != nil {
		b.ttftSum += float64(*m.TTFTMs)
		b.ttftCount++
	}
	if m.TotalLatencyMs != nil {
		b.latencySum += float64(*m.TotalLatencyMs)
		b.latencyCount++
	}
	if m.TokensPerSec != nil {
		b.tpsSum += *m.TokensPerSec
		b.tpsCount++
	}
}

// assertionsPayload extracts {total,passed} from Output.RawProviderPayload's folded-in
// "assertions" object (persist.go writes it there when ConstraintEvaluation.Total > 0).
type assertionsPayload struct {
	Assertions *struct {
		Total  int `json:"total"`
		Passed int `json:"passed"`
	} `json:"assertions"`
}

func applyAssertions(b *bucket, output *models.Output) {
	if output.RawProviderPayload == nil {
		return
	}
	var payload assertionsPayload
	if err := json.Unmarshal([]byte(*output.RawProviderPayload), &payload); err != nil {
		return
	}
	if payload.Assertions == nil || payload.Assertions.Total <= 0 {
		return
	}
	b.assertionsTotal += payload.Assertions.Total
	b.assertionsPassed += payload.Assertions.Passed
}

// sortScorecardRows orders descending by (avg_judge_overall, assertion_pass_rate, -error_rate),
// treating a missing judge/assertion value as -1, per §4.G.
func sortScorecardRows(rows []ScorecardRow) {
	sort.Slice(rows, func(i, j int) bool {
		return scorecardRank(rows[i]) > scorecardRank(rows[j])
	})
}

func scorecardRank(r ScorecardRow) [3]float64 {
	judge := -1.0
	if r.AvgJudgeOverall != nil {
		judge = *r.AvgJudgeOverall
	}
	assertion := -1.0
	if r.AssertionPassRate != nil {
		assertion = *r.AssertionPassRate
	}
	return [3]float64{judge, assertion, -r.ErrorRate}
}

func lessByLeaderboardRank(a, b LeaderboardRow) bool {
	aJudge, bJudge := -1.0, -1.0
	if a.AvgJudgeOverall != nil {
		aJudge = *a.AvgJudgeOverall
	}
	if b.AvgJudgeOverall != nil {
		bJudge = *b.AvgJudgeOverall
	}
	if aJudge != bJudge {
		return aJudge > bJudge
	}
	aAssert, bAssert := -1.0, -1.0
	if a.AvgAssertionPassRate != nil {
		aAssert = *a.AvgAssertionPassRate
	}
	if b.AvgAssertionPassRate != nil {
		bAssert = *b.AvgAssertionPassRate
	}
	if aAssert != bAssert {
		return aAssert > bAssert
	}
	return a.ErrorRate < b.ErrorRate
}
