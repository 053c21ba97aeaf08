package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/evalflow/testutil"
	"github.com/BaSui01/evalflow/testutil/fixtures"
	"github.com/BaSui01/evalflow/types"
)

func completedRun(task *types.AtomicTask, output map[string]any) *types.RunRecord {
	rec := types.NewRunRecord(task, "test_runner", "1.0.0", nil)
	rec.Complete(output)
	return rec
}

func TestStringSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"kitten", "kitten", 1},
		{"", "abc", 0},
		{"kitten", "sitting", 1 - 3.0/7},
		{"你好世界", "你好", 0.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, StringSimilarity(tt.a, tt.b), 1e-9, "%q vs %q", tt.a, tt.b)
	}
}

func TestExactMatchScorer(t *testing.T) {
	ctx := context.Background()
	task := fixtures.IntentTask("i1", "hello", "greeting")

	tests := []struct {
		name       string
		config     ExactMatchConfig
		output     map[string]any
		exact      bool
		similarity float64
	}{
		{"match ignoring case", ExactMatchConfig{}, map[string]any{"intent": " Greeting "}, true, 1},
		{"case sensitive", ExactMatchConfig{CaseSensitive: true}, map[string]any{"intent": "Greeting"}, false, 1 - 1.0/8},
		{"missing field", ExactMatchConfig{}, map[string]any{"reply": "hi"}, false, 0},
		{"contains", ExactMatchConfig{UseContains: true}, map[string]any{"intent": "greeting_formal"}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := NewExactMatchScorer(tt.config).Evaluate(ctx, completedRun(task, tt.output), task, nil)
			require.NoError(t, err)
			byMetric := testutil.ScoresByMetric(scores)
			require.Len(t, byMetric, 2)

			exact := byMetric[MetricExactMatch]
			assert.Equal(t, tt.exact, exact.Value.Any())
			assert.Equal(t, types.TargetFinal, exact.Target)
			assert.Equal(t, ExactMatchScorerID, exact.ScorerID)
			require.NotNil(t, exact.Evidence)
			assert.Contains(t, exact.Evidence.Alignment, "intent")

			sim, ok := byMetric[MetricSimilarity].Value.Float()
			require.True(t, ok)
			assert.InDelta(t, tt.similarity, sim, 1e-9)
		})
	}
}

func TestExactMatchScorer_NonStringValues(t *testing.T) {
	task := &types.AtomicTask{ID: "t", Type: types.CapabilityMemory, Expected: map[string]any{
		"count": 2,
		"tags":  []any{"a", "b"},
	}}
	run := completedRun(task, map[string]any{"count": 2.0, "tags": []any{"b", "a"}})

	scores, err := NewExactMatchScorer(ExactMatchConfig{}).Evaluate(context.Background(), run, task, nil)
	require.NoError(t, err)
	byMetric := testutil.ScoresByMetric(scores)

	exact := byMetric[MetricExactMatch]
	assert.Equal(t, false, exact.Value.Any())
	assert.Equal(t, "mismatched fields: tags", exact.Evidence.Explanation)
	sim, _ := byMetric[MetricSimilarity].Value.Float()
	assert.InDelta(t, 0.5, sim, 1e-9)
}

func TestExactMatchScorer_NoExpectation(t *testing.T) {
	task := fixtures.IntentTask("i1", "hello", "")
	scores, err := NewExactMatchScorer(ExactMatchConfig{}).Evaluate(context.Background(), completedRun(task, nil), task, nil)
	require.NoError(t, err)
	assert.Empty(t, scores)

	scores, err = NewExactMatchScorer(ExactMatchConfig{Fields: []string{"other"}}).
		Evaluate(context.Background(), completedRun(task, nil), fixtures.IntentTask("i2", "hello", "greeting"), nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestExprScorer(t *testing.T) {
	s, err := NewExprScorer(
		Assertion{Name: "intent_ok", Expr: `output.intent == expected.intent`},
		Assertion{Name: "cheap", Expr: `metrics.tokens_used < 100 && status == "completed"`},
		Assertion{Name: "tagged", Expr: `"smoke" in task.tags`},
		Assertion{Name: "not_bool", Expr: `output.intent`},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"intent_ok", "cheap", "tagged", "not_bool"}, s.Metrics())

	task := fixtures.IntentTask("i1", "hello", "greeting")
	task.Metadata.Tags = []string{"smoke"}
	run := completedRun(task, map[string]any{"intent": "greeting"})
	run.Metrics.TokensUsed = 30

	scores, err := s.Evaluate(context.Background(), run, task, nil)
	require.NoError(t, err)
	byMetric := testutil.ScoresByMetric(scores)
	require.Len(t, byMetric, 4)

	assert.Equal(t, true, byMetric["intent_ok"].Value.Any())
	assert.Equal(t, true, byMetric["cheap"].Value.Any())
	assert.Equal(t, true, byMetric["tagged"].Value.Any())
	assert.Equal(t, false, byMetric["not_bool"].Value.Any())
	assert.Contains(t, byMetric["not_bool"].Evidence.Explanation, "must evaluate to bool")
	assert.Equal(t, []string{`output.intent == expected.intent`}, byMetric["intent_ok"].Evidence.Snippets)
}

func TestExprScorer_FailingAssertion(t *testing.T) {
	s, err := NewExprScorer(Assertion{Name: "intent_ok", Expr: `output.intent == expected.intent`})
	require.NoError(t, err)

	task := fixtures.IntentTask("i1", "hello", "greeting")
	scores, err := s.Evaluate(context.Background(), completedRun(task, map[string]any{"intent": "refund"}), task, nil)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, false, scores[0].Value.Any())
	assert.Equal(t, "assertion failed", scores[0].Evidence.Explanation)
}

func TestNewExprScorer_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		assertions []Assertion
	}{
		{"empty name", []Assertion{{Name: " ", Expr: "true"}}},
		{"duplicate", []Assertion{{Name: "a", Expr: "true"}, {Name: "a", Expr: "false"}}},
		{"unknown variable", []Assertion{{Name: "a", Expr: "nope == 1"}}},
		{"syntax", []Assertion{{Name: "a", Expr: "output.intent =="}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExprScorer(tt.assertions...)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrInvalidInput))
		})
	}
}

func TestUsageScorer(t *testing.T) {
	task := fixtures.IntentTask("i1", "hello", "")
	run := completedRun(task, nil)
	run.Metrics = types.RunMetrics{LatencyMs: 250, TokensUsed: 40, Cost: 0.002}

	scores, err := NewUsageScorer(UsageThresholds{}).Evaluate(context.Background(), run, task, nil)
	require.NoError(t, err)
	byMetric := testutil.ScoresByMetric(scores)
	require.Len(t, byMetric, 3)
	for _, rec := range scores {
		assert.Equal(t, types.TargetGlobal, rec.Target)
	}
	latency, _ := byMetric[MetricLatencyMs].Value.Float()
	assert.Equal(t, 250.0, latency)
	tokens, _ := byMetric[MetricTokens].Value.Float()
	assert.Equal(t, 40.0, tokens)

	scores, err = NewUsageScorer(UsageThresholds{LatencyMs: 1000, Tokens: 20}).Evaluate(context.Background(), run, task, nil)
	require.NoError(t, err)
	byMetric = testutil.ScoresByMetric(scores)
	latency, _ = byMetric[MetricLatencyMs].Value.Float()
	assert.InDelta(t, 0.75, latency, 1e-9)
	tokens, _ = byMetric[MetricTokens].Value.Float()
	assert.Equal(t, 0.0, tokens)
	assert.Equal(t, 250.0, byMetric[MetricLatencyMs].Evidence.Alignment["raw"])
	assert.Nil(t, byMetric[MetricCost].Evidence)
}

func TestStepStatusScorer(t *testing.T) {
	run := types.NewRunRecord(&types.AtomicTask{ID: "greeting-flow", Type: types.CapabilityScenario}, "scenario", "", nil)
	run.Steps = []types.StepResult{
		{ID: "step-1", Status: types.RunCompleted},
		{ID: "step-2", Status: types.RunFailed, Error: &types.RunError{Message: "boom"}},
		{ID: "step-3"},
	}
	run.Fail("step step-2 failed", "step-2", "")

	scores, err := NewStepStatusScorer().Evaluate(context.Background(), run, nil, nil)
	require.NoError(t, err)
	require.Len(t, scores, 4)

	assert.Equal(t, types.StepTarget("step-1"), scores[0].Target)
	assert.Equal(t, true, scores[0].Value.Any())
	assert.Equal(t, false, scores[1].Value.Any())
	assert.Equal(t, "step failed: boom", scores[1].Evidence.Explanation)
	assert.Equal(t, "step not executed", scores[2].Evidence.Explanation)

	final := scores[3]
	assert.Equal(t, MetricCompletionRate, final.Metric)
	assert.Equal(t, types.TargetFinal, final.Target)
	rate, _ := final.Value.Float()
	assert.InDelta(t, 1.0/3, rate, 1e-9)
}

func TestStepStatusScorer_SingleRun(t *testing.T) {
	task := fixtures.IntentTask("i1", "hello", "")
	scores, err := NewStepStatusScorer().Evaluate(context.Background(), completedRun(task, nil), task, nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}
