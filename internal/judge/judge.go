// Package judge implements the Judge Pipeline (§4.F): a designated Car re-scores every
// RunItem's output against a fixed strict-JSON rubric, and the pipeline rolls the
// per-item scores up into per-car and per-run aggregates. Grounded on original_source's
// runs/judge.py for the rubric prompt and parse-with-recovery shape, and on the
// executor's retry-free single-attempt request pattern for driving provider.Generate.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/llmrace/llmrace-backend/internal/executor"
	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/providers"
	"github.com/llmrace/llmrace-backend/internal/repository"
	"github.com/llmrace/llmrace-backend/internal/telemetry"
)

const rubricSystemPrompt = "You are an LLM judge. Score output quality in strict JSON only. " +
	"Scores are 0-10. Be deterministic and concise."

const parseFailedRationale = "Judge JSON parse failed"

// RubricScore is the {writing_score, coding_score, tool_score, overall, rationale}
// payload a judge Car returns for one RunItem, and the shape aggregates are averaged in.
type RubricScore struct {
	WritingScore float64
	CodingScore  float64
	ToolScore    float64
	Overall      float64
	Rationale    string
}

// Summary is what Run returns: how many items were scored, plus the per-car and single
// per-run aggregate rows (§4.F step 6). The judge.completed event carries only
// ItemScores and CarAggregates.
type Summary struct {
	ItemScores    int
	CarAggregates map[string]RubricScore
	RunAggregate  RubricScore
}

var judgeJSONSpan = regexp.MustCompile(`(?s)\{.*\}`)

// Pipeline drives judge(run_id, judge_car_id?) end to end.
type Pipeline struct {
	store        repository.Store
	client       providers.Client
	telemetryLog *telemetry.Log
	secretKey    string
	timeoutMs    int
	log          *slog.Logger
}

func New(store repository.Store, client providers.Client, telemetryLog *telemetry.Log, secretKey string, timeoutMs int, log *slog.Logger) *Pipeline {
	if timeoutMs <= 0 {
		timeoutMs = 60000
	}
	return &Pipeline{store: store, client: client, telemetryLog: telemetryLog, secretKey: secretKey, timeoutMs: timeoutMs, log: log}
}

// Run executes the full judge pipeline for runID. judgeCarID, if non-empty, overrides
// the Run's stored judge_car_id (§4.F step 1: "explicit arg → Run's stored judge id → error").
func (p *Pipeline) Run(ctx context.Context, runID string, judgeCarID string) (*Summary, error) {
	run, err := p.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	resolvedCarID := judgeCarID
	if resolvedCarID == "" && run.JudgeCarID != nil {
		resolvedCarID = *run.JudgeCarID
	}
	if resolvedCarID == "" {
		return nil, fmt.Errorf("no judge car specified for run %s", runID)
	}
	judgeCar, err := p.store.GetCar(ctx, resolvedCarID)
	if err != nil {
		return nil, err
	}
	if judgeCar == nil {
		return nil, fmt.Errorf("judge car %s not found", resolvedCarID)
	}
	connection, err := p.store.GetConnection(ctx, judgeCar.ConnectionID)
	if err != nil {
		return nil, err
	}
	if connection == nil {
		return nil, fmt.Errorf("connection %s not found for judge car %s", judgeCar.ConnectionID, judgeCar.ID)
	}

	if _, err := p.telemetryLog.Emit(ctx, runID, nil, models.EventJudgeStarted, map[string]interface{}{
		"judge_car_id": judgeCar.ID,
	}); err != nil {
		return nil, err
	}

	if err := p.store.DeleteJudgeResultsByRun(ctx, runID); err != nil {
		return nil, err
	}

	items, err := p.store.ListRunItemsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	connInfo := providers.ConnectionInfo{
		Type:    string(connection.Type),
		BaseURL: connection.BaseURL,
		APIKey:  executor.ResolveAPIKey(connection, p.secretKey),
	}

	carScores := map[string][]RubricScore{}
	allScores := make([]RubricScore, 0, len(items))

	for _, item := range items {
		output, err := p.store.GetOutputByRunItem(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		if output == nil {
			continue
		}
		test, err := p.store.GetTest(ctx, item.TestID)
		if err != nil {
			return nil, err
		}
		if test == nil {
			continue
		}

		score := p.scoreItem(ctx, connInfo, judgeCar, test, output, runID, item.ID)

		result := &models.JudgeResult{
			ID:           uuid.New().String(),
			RunID:        runID,
			RunItemID:    &item.ID,
			WritingScore: score.WritingScore,
			CodingScore:  score.CodingScore,
			ToolScore:    score.ToolScore,
			Overall:      score.Overall,
			Rationale:    score.Rationale,
		}
		if err := p.store.CreateJudgeResult(ctx, result); err != nil {
			return nil, err
		}

		carScores[item.CarID] = append(carScores[item.CarID], score)
		allScores = append(allScores, score)
	}

	carAggregates := map[string]RubricScore{}
	for carID, scores := range carScores {
		agg := averageScores(scores)
		carAggregates[carID] = agg
		if err := p.store.CreateJudgeResult(ctx, &models.JudgeResult{
			ID: uuid.New().String(), RunID: runID, CarID: strPtr(carID),
			WritingScore: agg.WritingScore, CodingScore: agg.CodingScore, ToolScore: agg.ToolScore,
			Overall: agg.Overall, Rationale: "per-car aggregate",
		}); err != nil {
			return nil, err
		}
	}

	runAggregate := averageScores(allScores)
	if err := p.store.CreateJudgeResult(ctx, &models.JudgeResult{
		ID: uuid.New().String(), RunID: runID,
		WritingScore: runAggregate.WritingScore, CodingScore: runAggregate.CodingScore, ToolScore: runAggregate.ToolScore,
		Overall: runAggregate.Overall, Rationale: "per-run aggregate",
	}); err != nil {
		return nil, err
	}

	summary := &Summary{ItemScores: len(allScores), CarAggregates: carAggregates, RunAggregate: runAggregate}
	if _, err := p.telemetryLog.Emit(ctx, runID, nil, models.EventJudgeCompleted, map[string]interface{}{
		"item_scores": summary.ItemScores, "car_aggregates": summary.CarAggregates,
	}); err != nil {
		return nil, err
	}
	return summary, nil
}

// scoreItem drives one judge request and recovers to a zero-score row on any failure,
// per §4.F step 4 — a malformed judge response never fails the pipeline, only that item.
func (p *Pipeline) scoreItem(ctx context.Context, connInfo providers.ConnectionInfo, judgeCar *models.Car, test *models.Test, output *models.Output, runID, runItemID string) RubricScore {
	outputText := ""
	if output.FinalText != nil {
		outputText = *output.FinalText
	}

	req := buildJudgeRequest(judgeCar, test, outputText)
	resp, err := p.client.Generate(ctx, connInfo, req, p.timeoutMs, nil, func(eventType string, payload map[string]interface{}) {
		p.telemetryLog.Emit(ctx, runID, &runItemID, eventType, payload)
	})
	if err != nil {
		p.log.Warn("judge request failed", "run_item_id", runItemID, "error", err)
		return zeroScore()
	}

	score, err := parseJudgeJSON(resp.Text)
	if err != nil {
		return zeroScore()
	}
	return score
}

// buildJudgeMessages builds the fixed rubric + per-item prompt (§4.F step 3), grounded
// on original_source's build_judge_messages.
func buildJudgeMessages(testName, prompt, outputText string) []providers.Message {
	user := fmt.Sprintf(
		"Test Name: %s\nPrompt: %s\nModel Output:\n%s\n\nReturn JSON with keys: writing_score, coding_score, tool_score, overall, rationale.",
		testName, prompt, outputText,
	)
	return []providers.Message{
		{Role: "system", Content: rubricSystemPrompt},
		{Role: "user", Content: user},
	}
}

func buildJudgeRequest(judgeCar *models.Car, test *models.Test, outputText string) providers.ChatRequest {
	maxTokens := 300
	return providers.ChatRequest{
		Model:       judgeCar.ModelName,
		Messages:    buildJudgeMessages(test.Name, test.UserPrompt, outputText),
		Temperature: 0,
		TopP:        1,
		MaxTokens:   &maxTokens,
	}
}

// parseJudgeJSON recovers the rubric payload from raw judge text: a whole-text JSON
// object first, else the widest brace-delimited span (dot-all), per §4.F step 4.
func parseJudgeJSON(raw string) (RubricScore, error) {
	stripped := strings.TrimSpace(raw)
	var payload rubricPayload
	if strings.HasPrefix(stripped, "{") && strings.HasSuffix(stripped, "}") {
		if err := json.Unmarshal([]byte(stripped), &payload); err == nil {
			if score, ok := payload.validate(); ok {
				return score, nil
			}
		}
	}

	span := judgeJSONSpan.FindString(raw)
	if span == "" {
		return RubricScore{}, fmt.Errorf("no JSON object found in judge response")
	}
	if err := json.Unmarshal([]byte(span), &payload); err != nil {
		return RubricScore{}, err
	}
	score, ok := payload.validate()
	if !ok {
		return RubricScore{}, fmt.Errorf("judge payload failed rubric validation")
	}
	return score, nil
}

type rubricPayload struct {
	WritingScore float64 `json:"writing_score"`
	CodingScore  float64 `json:"coding_score"`
	ToolScore    float64 `json:"tool_score"`
	Overall      float64 `json:"overall"`
	Rationale    string  `json:"rationale"`
}

func (p rubricPayload) validate() (RubricScore, bool) {
	for _, v := range []float64{p.WritingScore, p.CodingScore, p.ToolScore, p.Overall} {
		if v < 0 || v > 10 {
			return RubricScore{}, false
		}
	}
	if p.Rationale == "" {
		return RubricScore{}, false
	}
	return RubricScore{
		WritingScore: p.WritingScore, CodingScore: p.CodingScore, ToolScore: p.ToolScore,
		Overall: p.Overall, Rationale: p.Rationale,
	}, true
}

func zeroScore() RubricScore {
	return RubricScore{Rationale: parseFailedRationale}
}

func averageScores(scores []RubricScore) RubricScore {
	if len(scores) == 0 {
		return RubricScore{}
	}
	var writing, coding, tool, overall float64
	for _, s := range scores {
		writing += s.WritingScore
		coding += s.CodingScore
		tool += s.ToolScore
		overall += s.Overall
	}
	n := float64(len(scores))
	return RubricScore{
		WritingScore: writing / n,
		CodingScore:  coding / n,
		ToolScore:    tool / n,
		Overall:      overall / n,
	}
}

func strPtr(s string) *string { return &s }
